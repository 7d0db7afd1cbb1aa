package logsource

import (
	"context"
	"fmt"
	"os"
)

// NewFileSource opens path and streams its lines. Stop closes the file.
func NewFileSource(ctx context.Context, path string, conf ...Config) (*ReaderSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("logsource: open %s: %w", path, err)
	}
	return newReaderSource(ctx, "file", f, f, conf), nil
}

// Open returns a stdin source for "" or "-" and a file source otherwise.
func Open(ctx context.Context, path string, conf ...Config) (LogSource, error) {
	if path == "" || path == "-" {
		return NewStdinSource(ctx, conf...), nil
	}
	return NewFileSource(ctx, path, conf...)
}
