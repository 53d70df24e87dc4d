package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dd0wney/cluso-cask/pkg/backup"
	"github.com/dd0wney/cluso-cask/pkg/cask"
	"github.com/dd0wney/cluso-cask/pkg/catalog"
	"github.com/dd0wney/cluso-cask/pkg/config"
	"github.com/dd0wney/cluso-cask/pkg/logging"
	"github.com/dd0wney/cluso-cask/pkg/metrics"
	"github.com/dd0wney/cluso-cask/pkg/query"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

type console struct {
	catalog *catalog.Catalog
	parser  *query.Parser
	cfg     config.Config
	logger  logging.Logger
	metrics *metrics.Registry
	scanner *bufio.Scanner
	out     io.Writer

	// batch is non-nil between proc begin and proc end
	batch *cask.Batch
	// exporter is built on the first backup command
	exporter *backup.Exporter
}

func newConsole(cat *catalog.Catalog, cfg config.Config, logger logging.Logger, reg *metrics.Registry, in io.Reader, out io.Writer) *console {
	c := &console{
		catalog: cat,
		parser:  query.NewParser(),
		cfg:     cfg,
		logger:  logging.OrNop(logger),
		metrics: reg,
		scanner: bufio.NewScanner(in),
		out:     out,
	}
	c.bind()
	return c
}

func (c *console) bind() {
	handlers := map[query.Verb]query.Handler{
		query.VerbGet:          c.get,
		query.VerbPut:          c.put,
		query.VerbDelete:       c.del,
		query.VerbEnumerate:    c.enumerate,
		query.VerbCompact:      c.compact,
		query.VerbListBucket:   c.listBuckets,
		query.VerbSelectBucket: c.selectBucket,
		query.VerbCreateBucket: c.createBucket,
		query.VerbRemoveBucket: c.removeBucket,
		query.VerbProcBegin:    c.procBegin,
		query.VerbProcEnd:      c.procEnd,
	}
	for verb, h := range handlers {
		if err := c.parser.Bind(verb, h); err != nil {
			panic(err)
		}
	}
}

func (c *console) printBanner() {
	fmt.Fprintln(c.out, titleStyle.Render("caskctl - embedded key-value console"))
	fmt.Fprintln(c.out, helpStyle.Render("Type 'help' for available commands, 'exit' to quit"))
	fmt.Fprintln(c.out)
}

func (c *console) prompt() string {
	name := c.catalog.CurrentName()
	if name == "" {
		name = "-"
	}
	if c.batch != nil {
		name += " (proc)"
	}
	return promptStyle.Render("cask:" + name + "> ")
}

func (c *console) run() {
	for {
		fmt.Fprint(c.out, c.prompt())
		if !c.scanner.Scan() {
			fmt.Fprintln(c.out)
			return
		}
		input := strings.TrimSpace(c.scanner.Text())
		if input == "" {
			continue
		}
		if !c.execute(input) {
			fmt.Fprintln(c.out, "Goodbye!")
			return
		}
	}
}

// execute runs one line and reports whether the console should continue.
func (c *console) execute(input string) bool {
	switch strings.ToLower(input) {
	case "exit", "quit":
		if c.batch != nil {
			fmt.Fprintln(c.out, helpStyle.Render(fmt.Sprintf("discarding %d queued operations", c.batch.Len())))
		}
		return false
	case "help":
		c.showHelp()
		return true
	case "stats", "status":
		c.report(c.showStats())
		return true
	case "backup":
		c.report(c.runBackup())
		return true
	case "clear":
		fmt.Fprint(c.out, "\033[H\033[2J")
		return true
	}
	c.report(c.parser.Exec(input))
	return true
}

func (c *console) report(err error) {
	if err != nil {
		c.printError(err)
	}
}

func (c *console) printError(err error) {
	fmt.Fprintln(c.out, errorStyle.Render("error: "+err.Error()))
}

func (c *console) ok(format string, args ...any) error {
	fmt.Fprintln(c.out, successStyle.Render(fmt.Sprintf(format, args...)))
	return nil
}

func (c *console) bucket() (*cask.Bucket, error) {
	return c.catalog.Current()
}

func (c *console) get(args []string) error {
	b, err := c.bucket()
	if err != nil {
		return err
	}
	v, err := b.Get([]byte(args[0]))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, string(v))
	return nil
}

func (c *console) put(args []string) error {
	if c.batch != nil {
		c.batch.Put([]byte(args[0]), []byte(args[1]))
		return c.ok("queued (%d)", c.batch.Len())
	}
	b, err := c.bucket()
	if err != nil {
		return err
	}
	if err := b.Put([]byte(args[0]), []byte(args[1])); err != nil {
		return err
	}
	return c.ok("OK")
}

func (c *console) del(args []string) error {
	if c.batch != nil {
		c.batch.Delete([]byte(args[0]))
		return c.ok("queued (%d)", c.batch.Len())
	}
	b, err := c.bucket()
	if err != nil {
		return err
	}
	if err := b.Delete([]byte(args[0])); err != nil {
		return err
	}
	return c.ok("OK")
}

func (c *console) enumerate([]string) error {
	b, err := c.bucket()
	if err != nil {
		return err
	}
	n := 0
	err = b.Enumerate(func(key, value []byte) error {
		n++
		fmt.Fprintf(c.out, "%s = %s\n", keyStyle.Render(string(key)), value)
		return nil
	})
	if err != nil {
		return err
	}
	return c.ok("%d pairs", n)
}

func (c *console) compact([]string) error {
	b, err := c.bucket()
	if err != nil {
		return err
	}
	res, err := b.CompactWithResult()
	if err != nil {
		return err
	}
	return c.ok("compacted %d keys, reclaimed %d bytes in %s",
		res.Keys, res.Reclaimed(), res.Duration.Round(time.Millisecond))
}

func (c *console) listBuckets([]string) error {
	names, err := c.catalog.List()
	if err != nil {
		return err
	}
	current := c.catalog.CurrentName()
	for _, name := range names {
		marker := "  "
		if name == current {
			marker = "* "
		}
		fmt.Fprintln(c.out, marker+name)
	}
	return c.ok("%d buckets", len(names))
}

func (c *console) selectBucket(args []string) error {
	if c.batch != nil {
		return status.Errorf(status.InvalidArgument, "select", "cannot switch buckets inside a procedure")
	}
	if _, err := c.catalog.Select(args[0]); err != nil {
		return err
	}
	return c.ok("using %s", args[0])
}

func (c *console) createBucket(args []string) error {
	if err := c.catalog.Create(args[0]); err != nil {
		return err
	}
	return c.ok("created %s", args[0])
}

func (c *console) removeBucket(args []string) error {
	if c.batch != nil && args[0] == c.catalog.CurrentName() {
		return status.Errorf(status.InvalidArgument, "remove", "bucket %s has a procedure in progress", args[0])
	}
	if err := c.catalog.Remove(args[0]); err != nil {
		return err
	}
	return c.ok("removed %s", args[0])
}

func (c *console) procBegin([]string) error {
	if c.batch != nil {
		return status.Errorf(status.InvalidArgument, "proc_begin", "procedure already in progress")
	}
	if _, err := c.bucket(); err != nil {
		return err
	}
	c.batch = cask.NewBatch()
	return c.ok("procedure started")
}

func (c *console) procEnd([]string) error {
	if c.batch == nil {
		return status.Errorf(status.InvalidArgument, "proc_end", "no procedure in progress")
	}
	bt := c.batch
	c.batch = nil
	b, err := c.bucket()
	if err != nil {
		return err
	}
	if err := b.Apply(bt); err != nil {
		return err
	}
	return c.ok("applied %d operations", bt.Len())
}

func (c *console) showStats() error {
	b, err := c.bucket()
	if err != nil {
		return err
	}
	s := b.Stats()
	lines := []string{
		titleStyle.Render("bucket " + s.Name),
		fmt.Sprintf("dir:            %s", s.Dir),
		fmt.Sprintf("keys:           %d", s.Keys),
		fmt.Sprintf("segments:       %d (active %d)", s.Segments, s.ActiveSegment),
		fmt.Sprintf("disk bytes:     %d", s.DiskBytes),
		fmt.Sprintf("reads/writes:   %d / %d", s.Reads, s.Writes),
		fmt.Sprintf("deletes:        %d", s.Deletes),
		fmt.Sprintf("compactions:    %d", s.Compactions),
		fmt.Sprintf("cache:          %d/%d, hit rate %.2f", s.Cache.Size, s.Cache.Capacity, s.Cache.HitRate),
	}
	fmt.Fprintln(c.out, statsBoxStyle.Render(strings.Join(lines, "\n")))
	return nil
}

func (c *console) runBackup() error {
	if !c.cfg.Backup.Enabled() {
		return status.Errorf(status.NotSupported, "backup", "no backup destination configured")
	}
	b, err := c.bucket()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	if c.exporter == nil {
		client, err := backup.NewS3Client(ctx, c.cfg.Backup)
		if err != nil {
			return err
		}
		c.exporter = backup.NewExporter(client, c.cfg.Backup, c.logger, c.metrics)
	}
	m, err := c.exporter.Backup(ctx, b)
	if err != nil {
		return err
	}
	return c.ok("uploaded %d bytes to s3://%s/%s", m.Bytes, m.Destination, m.Prefix)
}

func (c *console) showHelp() {
	var sb strings.Builder
	sb.WriteString("Statements:\n")
	for _, v := range c.parser.Verbs() {
		sb.WriteString("  " + c.parser.Usage(v) + "\n")
	}
	sb.WriteString("\nConsole commands:\n")
	sb.WriteString("  help      show this help\n")
	sb.WriteString("  stats     show statistics of the current bucket\n")
	sb.WriteString("  backup    upload the current bucket to the configured S3 bucket\n")
	sb.WriteString("  clear     clear the screen\n")
	sb.WriteString("  exit      leave the console\n")
	sb.WriteString("\nQuote keys and values containing spaces with ' or \".")
	fmt.Fprintln(c.out, helpStyle.Render(sb.String()))
}
