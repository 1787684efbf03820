package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/resinker/internal/scheduler"
)

// rotationThreshold is the number of records a "count"-rotated file sink
// writes before rolling to a new file.
const rotationThreshold = 1000

// FileSink appends one JSON record per line to file_path, creating parent
// directories as needed. Each record is followed by a newline: with
// "json" that is NDJSON, one record per line; with "json_pretty" each
// record's own JSON is indented across several lines, so the file is a
// stream of concatenated objects rather than line-delimited JSON.
type FileSink struct {
	basePath string
	rotation string
	pretty   bool

	file    *os.File
	writer  *bufio.Writer
	written int
	gen     int
}

// NewFileSink opens (creating parent directories as needed) the first
// output file for path.
func NewFileSink(path, format, rotation string) (*FileSink, error) {
	s := &FileSink{basePath: path, rotation: rotation, pretty: format == "json_pretty"}
	if err := s.openNext(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) openNext() error {
	if s.file != nil {
		if err := s.writer.Flush(); err != nil {
			return err
		}
		if err := s.file.Close(); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.basePath), 0o755); err != nil {
		return fmt.Errorf("file sink: create parent directories: %w", err)
	}
	path := s.basePath
	if s.rotation != "" {
		ext := filepath.Ext(s.basePath)
		stem := s.basePath[:len(s.basePath)-len(ext)]
		path = fmt.Sprintf("%s.%d%s", stem, s.gen, ext)
		s.gen++
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("file sink: open %q: %w", path, err)
	}
	s.file = f
	s.writer = bufio.NewWriter(f)
	s.written = 0
	return nil
}

func (s *FileSink) Name() string { return "file:" + s.basePath }

func (s *FileSink) Write(rec scheduler.Record) error {
	if s.rotation == "count" && s.written >= rotationThreshold {
		if err := s.openNext(); err != nil {
			return err
		}
	}
	b, err := marshalRecord(rec, s.pretty)
	if err != nil {
		return err
	}
	if _, err := s.writer.Write(b); err != nil {
		return err
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return err
	}
	s.written++
	return nil
}

func (s *FileSink) Flush() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Flush()
}

func (s *FileSink) Close() error {
	if s.file == nil {
		return nil
	}
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}
