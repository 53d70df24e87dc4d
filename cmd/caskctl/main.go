// Command caskctl is an interactive console for cask buckets.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dd0wney/cluso-cask/pkg/catalog"
	"github.com/dd0wney/cluso-cask/pkg/config"
	"github.com/dd0wney/cluso-cask/pkg/logging"
	"github.com/dd0wney/cluso-cask/pkg/metrics"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	dataDir := flag.String("data", "", "Data directory (overrides config)")
	bucket := flag.String("bucket", "", "Bucket to select at start (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *dataDir, *bucket)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("config: "+err.Error()))
		os.Exit(2)
	}

	logger := logging.NewJSONLogger(os.Stderr, cfg.Level())
	logging.SetDefaultLogger(logger)
	reg := metrics.DefaultRegistry()

	cat, err := catalog.Open(cfg.DataDir, cfg.CaskOptions(logger, reg))
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("open: "+err.Error()))
		os.Exit(1)
	}

	c := newConsole(cat, cfg, logger, reg, os.Stdin, os.Stdout)
	c.printBanner()
	if err := c.selectInitial(cfg.DefaultBucket); err != nil {
		c.printError(err)
	}
	c.run()

	if err := cat.Close(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("close: "+err.Error()))
		os.Exit(1)
	}
}

// loadConfig applies, in order: defaults, the config file, the
// environment, then flags.
func loadConfig(path, dataDir, bucket string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if bucket != "" {
		cfg.DefaultBucket = bucket
	}
	return cfg, cfg.Validate()
}

// selectInitial opens the start bucket, creating it on first use.
func (c *console) selectInitial(name string) error {
	if err := c.catalog.Create(name); err != nil && status.KindOf(err) != status.InvalidArgument {
		return err
	}
	_, err := c.catalog.Select(name)
	return err
}
