// Package output renders sweep result lines as they are produced.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"sweep-bench/internal/sweep"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// Sink is a sweep.Sink that owns an underlying file or stream.
type Sink interface {
	sweep.Sink
	Close() error
}

// Open creates the sink for a format. An empty path means stdout, which the
// xlsx format does not support.
func Open(format, path string, labels bool, stdout io.Writer, names []string, repetitions int) (Sink, error) {
	format = strings.ToLower(format)
	if format == FormatXLSX {
		if path == "" {
			return nil, fmt.Errorf("xlsx output needs an output path")
		}
		return NewXLSX(path, names, repetitions)
	}

	w := stdout
	if w == nil {
		w = os.Stdout
	}
	var closer io.Closer
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		w, closer = f, f
	}

	switch format {
	case "", FormatText:
		text := NewText(w)
		text.Labels = labels
		return &closingSink{Sink: text, closer: closer}, nil
	case FormatJSON:
		return &closingSink{Sink: NewJSON(w), closer: closer}, nil
	default:
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

type closingSink struct {
	Sink
	closer io.Closer
}

func (c *closingSink) Close() error {
	err := c.Sink.Close()
	if c.closer != nil {
		if cerr := c.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
