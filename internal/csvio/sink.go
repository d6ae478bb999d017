package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"rorsync/internal/records"
)

// ErrLocked is returned when another rorsync process is writing the same file.
var ErrLocked = errors.New("output file is locked by another process")

// SinkOptions controls how an output file is opened.
type SinkOptions struct {
	// Append keeps existing rows; otherwise the file is truncated.
	Append bool
	// Delimiter defaults to ','.
	Delimiter rune
}

// Sink writes enriched rows to a delimited file guarded by an advisory lock
// on <path>.lock.
type Sink struct {
	path   string
	file   *os.File
	writer *csv.Writer
	lock   *flock.Flock
	rows   int
}

// OpenSink opens path for writing. The header is written when the file is new
// or empty.
func OpenSink(path string, opts SinkOptions) (*Sink, error) {
	if path == "" {
		return nil, errors.New("output path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire output lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if opts.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open output: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("stat output: %w", err)
	}

	writer := csv.NewWriter(file)
	if opts.Delimiter != 0 {
		writer.Comma = opts.Delimiter
	}
	sink := &Sink{path: path, file: file, writer: writer, lock: lock}
	if info.Size() == 0 {
		if err := writer.Write(records.Header); err != nil {
			_ = sink.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		if err := sink.Flush(); err != nil {
			_ = sink.Close()
			return nil, err
		}
	}
	return sink, nil
}

// Path returns the output location.
func (s *Sink) Path() string { return s.path }

// Rows returns how many data rows this sink has written.
func (s *Sink) Rows() int { return s.rows }

// Write buffers one row.
func (s *Sink) Write(row records.EnrichedRow) error {
	if err := s.writer.Write(row.Fields()); err != nil {
		return fmt.Errorf("write row %s: %w", row.UUID, err)
	}
	s.rows++
	return nil
}

// Flush pushes buffered rows to disk.
func (s *Sink) Flush() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

// Close flushes, closes the file, and releases the lock.
func (s *Sink) Close() error {
	if s == nil || s.file == nil {
		return nil
	}
	flushErr := s.Flush()
	closeErr := s.file.Close()
	unlockErr := s.lock.Unlock()
	s.file = nil
	return errors.Join(flushErr, closeErr, unlockErr)
}
