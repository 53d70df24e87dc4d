// Package backup uploads bucket snapshots to S3-compatible object storage.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/dd0wney/cluso-cask/pkg/cask"
	"github.com/dd0wney/cluso-cask/pkg/config"
	"github.com/dd0wney/cluso-cask/pkg/logging"
	"github.com/dd0wney/cluso-cask/pkg/metrics"
	"github.com/dd0wney/cluso-cask/pkg/record"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

// ManifestName is the object written last in every backup.
const ManifestName = "manifest.json"

const timeLayout = "20060102T150405Z"

// ObjectPutter is the part of the S3 API the exporter needs. *s3.Client
// implements it.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Object is one uploaded file.
type Object struct {
	Key       string `json:"key"`
	Size      int64  `json:"size"`
	SegmentID uint32 `json:"segment_id,omitempty"`
}

// Manifest lists the objects of one backup.
type Manifest struct {
	Bucket      string    `json:"bucket"`
	Destination string    `json:"destination"`
	Prefix      string    `json:"prefix"`
	Taken       time.Time `json:"taken"`
	Keys        int       `json:"keys"`
	Hint        Object    `json:"hint"`
	Segments    []Object  `json:"segments"`
	Bytes       int64     `json:"bytes"`
}

// Exporter writes snapshots under <prefix>/<bucket>/<time>/.
type Exporter struct {
	client      ObjectPutter
	dest        string
	prefix      string
	concurrency int
	logger      logging.Logger
	metrics     *metrics.Registry
}

// NewExporter creates an exporter for the destination in cfg. reg may be
// nil.
func NewExporter(client ObjectPutter, cfg config.BackupConfig, logger logging.Logger, reg *metrics.Registry) *Exporter {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Exporter{
		client:      client,
		dest:        cfg.Bucket,
		prefix:      cfg.Prefix,
		concurrency: concurrency,
		logger:      logging.OrNop(logger).With(logging.Component("backup")),
		metrics:     reg,
	}
}

// Backup snapshots b and exports it. Compaction of b waits until the
// upload finishes.
func (e *Exporter) Backup(ctx context.Context, b *cask.Bucket) (Manifest, error) {
	var m Manifest
	err := b.WithSnapshot(func(snap cask.Snapshot) error {
		var err error
		m, err = e.Export(ctx, snap.Name, snap)
		return err
	})
	return m, err
}

// Export uploads the hint and every segment of snap, each segment cut at
// its size in the snapshot, then the manifest. The segment files must not
// be removed while Export runs.
func (e *Exporter) Export(ctx context.Context, name string, snap cask.Snapshot) (m Manifest, err error) {
	logger := e.logger.With(logging.Bucket(name))
	timer := logging.StartTimer(logger, "backup uploaded")
	var uploaded atomic.Int64
	defer func() {
		if e.metrics != nil {
			e.metrics.RecordBackup(name, err, uploaded.Load())
		}
		if err != nil {
			timer.EndError(err)
		}
	}()

	m = Manifest{
		Bucket:      name,
		Destination: e.dest,
		Prefix:      path.Join(e.prefix, name, snap.Taken.UTC().Format(timeLayout)),
		Taken:       snap.Taken,
		Keys:        snap.Keys,
		Segments:    make([]Object, len(snap.Segments)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	m.Hint = Object{Key: path.Join(m.Prefix, record.HintFileName), Size: int64(len(snap.Hint))}
	g.Go(func() error {
		if err := e.put(gctx, m.Hint.Key, bytes.NewReader(snap.Hint), m.Hint.Size); err != nil {
			return err
		}
		uploaded.Add(m.Hint.Size)
		return nil
	})
	for i, seg := range snap.Segments {
		seg := seg
		obj := Object{
			Key:       path.Join(m.Prefix, filepath.Base(seg.Path)),
			Size:      seg.Size,
			SegmentID: seg.ID,
		}
		m.Segments[i] = obj
		g.Go(func() error {
			if err := e.putFile(gctx, obj.Key, seg.Path, obj.Size); err != nil {
				return err
			}
			uploaded.Add(obj.Size)
			logger.Debug("segment uploaded", logging.SegmentID(obj.SegmentID), logging.Bytes(obj.Size))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return m, status.Wrap(err, "backup.export")
	}

	m.Bytes = uploaded.Load()
	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return m, status.New(status.Unknown).Op("export").Msg("encode manifest").Cause(err).Err()
	}
	if err := e.put(ctx, path.Join(m.Prefix, ManifestName), bytes.NewReader(body), int64(len(body))); err != nil {
		return m, status.Wrap(err, "backup.export")
	}
	timer.End(logging.Bytes(m.Bytes), logging.Int("segments", len(m.Segments)), logging.String("prefix", m.Prefix))
	return m, nil
}

func (e *Exporter) putFile(ctx context.Context, key, file string, size int64) error {
	f, err := os.Open(file)
	if err != nil {
		return status.FromOS("upload", err)
	}
	defer f.Close()
	// bytes appended after the snapshot stay out of the upload
	return e.put(ctx, key, io.NewSectionReader(f, 0, size), size)
}

func (e *Exporter) put(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.dest),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return status.New(status.IOError).Op("upload").Msg("put %s", key).Cause(err).Err()
	}
	return nil
}
