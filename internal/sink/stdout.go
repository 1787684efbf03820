package sink

import (
	"fmt"
	"io"
	"os"

	"github.com/roach88/resinker/internal/scheduler"
)

// StdoutSink writes each JSON record followed by a newline to an
// io.Writer: one line per record for "json", several for "json_pretty".
type StdoutSink struct {
	out    io.Writer
	pretty bool
}

// NewStdoutSink returns a sink writing to os.Stdout. format is "json" or
// "json_pretty".
func NewStdoutSink(format string) *StdoutSink {
	return &StdoutSink{out: os.Stdout, pretty: format == "json_pretty"}
}

func (s *StdoutSink) Name() string { return "stdout" }

func (s *StdoutSink) Write(rec scheduler.Record) error {
	b, err := marshalRecord(rec, s.pretty)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(s.out, string(b))
	return err
}

func (s *StdoutSink) Flush() error { return nil }
func (s *StdoutSink) Close() error { return nil }
