package sink

import (
	"fmt"

	"github.com/roach88/resinker/internal/specmodel"
)

// Build constructs one Sink per enabled entry of outputs, in declared
// order. Disabled sinks are skipped entirely.
func Build(outputs []specmodel.OutputConfig) ([]Sink, error) {
	var sinks []Sink
	for _, cfg := range outputs {
		if !cfg.Enabled {
			continue
		}
		s, err := build(cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func build(cfg specmodel.OutputConfig) (Sink, error) {
	switch cfg.Type {
	case "stdout":
		return NewStdoutSink(cfg.Format), nil
	case "file":
		return NewFileSink(cfg.FilePath, cfg.Format, cfg.FileRotation)
	case "kafka":
		return NewKafkaSink(cfg)
	default:
		return nil, fmt.Errorf("sink: unknown output type %q", cfg.Type)
	}
}
