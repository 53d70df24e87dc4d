// Package catalog manages the buckets kept as sub-directories of one data
// directory and tracks which of them is selected.
package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dd0wney/cluso-cask/pkg/cask"
	"github.com/dd0wney/cluso-cask/pkg/logging"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

// reservedChars may not appear in a bucket name.
const reservedChars = `\/:*?"<>|`

// ValidName checks that name can be used as a bucket directory.
func ValidName(name string) error {
	switch {
	case name == "":
		return status.Errorf(status.InvalidArgument, "valid_name", "empty bucket name")
	case name == "." || name == "..":
		return status.Errorf(status.InvalidArgument, "valid_name", "bucket name %q", name)
	case strings.ContainsAny(name, reservedChars):
		return status.Errorf(status.InvalidArgument, "valid_name",
			"bucket name %q contains one of %s", name, reservedChars)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return status.Errorf(status.InvalidArgument, "valid_name", "bucket name %q contains a control character", name)
		}
	}
	return nil
}

// transient reports whether a directory entry is a compaction leftover.
func transient(name string) bool {
	return strings.Contains(name, ".compact-") || strings.Contains(name, ".old-")
}

// Catalog opens buckets on demand and keeps them open until removed or
// closed.
type Catalog struct {
	mu      sync.Mutex
	root    string
	opts    cask.Options
	buckets map[string]*cask.Bucket
	current string
	logger  logging.Logger
}

// Open returns a catalog rooted at root, creating the directory if needed.
func Open(root string, opts cask.Options) (*Catalog, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, status.FromOS("catalog_open", err)
	}
	logger := logging.OrNop(opts.Logger).With(logging.Component("catalog"))
	return &Catalog{
		root:    root,
		opts:    opts,
		buckets: make(map[string]*cask.Bucket),
		logger:  logger,
	}, nil
}

// Root returns the data directory.
func (c *Catalog) Root() string { return c.root }

// List returns the names of all buckets, sorted.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, status.FromOS("list", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() || transient(e.Name()) || ValidName(e.Name()) != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Create makes an empty bucket directory. The bucket is not opened.
func (c *Catalog) Create(name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Mkdir(filepath.Join(c.root, name), 0o755)
	if errors.Is(err, os.ErrExist) {
		return status.Errorf(status.InvalidArgument, "create", "bucket %s already exists", name)
	}
	if err != nil {
		return status.FromOS("create", err)
	}
	c.logger.Info("bucket created", logging.Bucket(name))
	return nil
}

// Remove closes the bucket if it is open and deletes its directory.
func (c *Catalog) Remove(name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := filepath.Join(c.root, name)
	if _, err := os.Stat(dir); err != nil {
		return status.FromOS("remove", err)
	}
	if b, ok := c.buckets[name]; ok {
		if err := b.CloseWithoutHint(); err != nil {
			c.logger.Warn("close before remove failed", logging.Bucket(name), logging.Error(err))
		}
		delete(c.buckets, name)
	}
	if c.current == name {
		c.current = ""
	}
	if err := os.RemoveAll(dir); err != nil {
		return status.FromOS("remove", err)
	}
	c.logger.Info("bucket removed", logging.Bucket(name))
	return nil
}

// Select opens the named bucket if needed and makes it current.
func (c *Catalog) Select(name string) (*cask.Bucket, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.buckets[name]
	if !ok {
		opts := c.opts
		opts.Name = name
		var err error
		b, err = cask.Open(filepath.Join(c.root, name), opts)
		if err != nil {
			return nil, status.Wrap(err, "catalog.select")
		}
		c.buckets[name] = b
	}
	c.current = name
	return b, nil
}

// Current returns the selected bucket.
func (c *Catalog) Current() (*cask.Bucket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == "" {
		return nil, status.Errorf(status.InvalidArgument, "current", "no bucket selected")
	}
	return c.buckets[c.current], nil
}

// CurrentName returns the name of the selected bucket, or "".
func (c *Catalog) CurrentName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Close closes every open bucket, writing their hint files.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for name, b := range c.buckets {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.buckets, name)
	}
	c.current = ""
	return errors.Join(errs...)
}
