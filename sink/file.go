package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/justapithecus/sluice/frame"
	"github.com/justapithecus/sluice/iox"
	"github.com/justapithecus/sluice/types"
)

// FileConfig holds configuration for the local filesystem sink.
type FileConfig struct {
	// Root is the storage root directory (required).
	Root string
	// PipeID is the partition key for the pipe identifier (required).
	PipeID string
	// Day is the partition key derived from pipe start time
	// (YYYY-MM-DD UTC, required).
	Day string
}

// Validate checks that required file sink configuration is present.
func (c *FileConfig) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("file sink root is required")
	}
	if c.PipeID == "" {
		return fmt.Errorf("file sink pipe_id is required")
	}
	if c.Day == "" {
		return fmt.Errorf("file sink day is required")
	}
	return nil
}

// File persists record batches as length-prefixed msgpack segments under
// a partitioned directory layout:
//
//	<root>/partitions/day=<day>/pipe_id=<pipe>/segment-NNNNNN.mpk
//
// Each WriteRecords call produces one segment file, written whole and
// fsynced before the call returns, so a batch is either fully durable or
// absent.
type File struct {
	config  FileConfig
	dir     string
	segment int
}

// NewFile creates a file sink and its partition directory.
func NewFile(cfg FileConfig) (*File, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dir := filepath.Join(cfg.Root, "partitions",
		"day="+cfg.Day, "pipe_id="+cfg.PipeID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create partition dir: %w", err)
	}
	return &File{config: cfg, dir: dir}, nil
}

// Dir returns the partition directory this sink writes into.
func (f *File) Dir() string { return f.dir }

// WriteRecords writes the batch as one framed msgpack segment.
func (f *File) WriteRecords(_ context.Context, records []*types.Record) error {
	if len(records) == 0 {
		return nil
	}

	var buf []byte
	for _, rec := range records {
		payload, err := msgpack.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record seq=%d: %w", rec.Seq, err)
		}
		buf = frame.AppendFrame(buf, payload)
	}

	name := filepath.Join(f.dir, fmt.Sprintf("segment-%06d.mpk", f.segment))
	tmp := name + ".tmp"
	file, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create segment: %w", err)
	}
	if _, err := file.Write(buf); err != nil {
		iox.DiscardClose(file)
		return fmt.Errorf("write segment: %w", err)
	}
	if err := file.Sync(); err != nil {
		iox.DiscardClose(file)
		return fmt.Errorf("sync segment: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close segment: %w", err)
	}
	if err := os.Rename(tmp, name); err != nil {
		return fmt.Errorf("commit segment: %w", err)
	}

	f.segment++
	return nil
}

// Close implements Sink. The file sink holds no open handles between
// writes.
func (f *File) Close() error {
	return nil
}

// ReadSegments reads every committed segment under dir in order and
// decodes the records. Test and inspection helper; the write path never
// reads.
func ReadSegments(dir string) ([]*types.Record, error) {
	names, err := filepath.Glob(filepath.Join(dir, "segment-*.mpk"))
	if err != nil {
		return nil, err
	}

	var records []*types.Record
	for _, name := range names {
		file, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		dec := frame.NewBlockingDecoder(file)
		for {
			payload, err := dec.ReadFrame()
			if err != nil {
				iox.DiscardClose(file)
				if err == io.EOF {
					break
				}
				return nil, fmt.Errorf("read %s: %w", filepath.Base(name), err)
			}
			var rec types.Record
			if err := msgpack.Unmarshal(payload, &rec); err != nil {
				iox.DiscardClose(file)
				return nil, fmt.Errorf("decode %s: %w", filepath.Base(name), err)
			}
			records = append(records, &rec)
		}
	}
	return records, nil
}

// Verify File implements Sink.
var _ Sink = (*File)(nil)
