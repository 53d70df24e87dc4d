package segment

import (
	"time"

	"github.com/dd0wney/cluso-cask/pkg/logging"
	"github.com/dd0wney/cluso-cask/pkg/record"
	"github.com/dd0wney/cluso-cask/pkg/status"
)

// MinSegmentSize is the smallest accepted MaxSegmentSize.
const MinSegmentSize int64 = 64

// Options configures a segment Store.
type Options struct {
	// MaxSegmentSize bounds every segment file, header included.
	MaxSegmentSize int64
	// Codec is applied to values in newly created segments. Existing
	// segments keep the codec recorded in their header.
	Codec record.Codec
	// MmapSealed reads sealed segments through a read-only mapping.
	MmapSealed bool
	// SyncWrites fsyncs the active segment after every append.
	SyncWrites bool
	// OpenConcurrency bounds parallel header reads in Open.
	OpenConcurrency int
	// Clock supplies record timestamps.
	Clock func() time.Time
	// OnRotate, if set, is called after a new active segment is created.
	OnRotate func(sealed, created uint32)
	Logger   logging.Logger
}

// DefaultOptions returns options with a 1 GiB segment limit.
func DefaultOptions() Options {
	return Options{
		MaxSegmentSize:  record.DefaultMaxSegmentSize,
		Codec:           record.CodecNone,
		OpenConcurrency: 4,
		Clock:           time.Now,
		Logger:          logging.NewNopLogger(),
	}
}

func (o Options) withDefaults() Options {
	if o.MaxSegmentSize == 0 {
		o.MaxSegmentSize = record.DefaultMaxSegmentSize
	}
	if o.OpenConcurrency <= 0 {
		o.OpenConcurrency = 4
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}

// Validate checks the option bounds.
func (o Options) Validate() error {
	const op = "validate_options"
	if o.MaxSegmentSize < MinSegmentSize || o.MaxSegmentSize > record.MaxSegmentSize {
		return status.Errorf(status.InvalidArgument, op, "max segment size %d outside [%d, %d]",
			o.MaxSegmentSize, MinSegmentSize, record.MaxSegmentSize)
	}
	if o.Codec != record.CodecNone && o.Codec != record.CodecSnappy {
		return status.Errorf(status.NotSupported, op, "codec %s", o.Codec)
	}
	return nil
}
