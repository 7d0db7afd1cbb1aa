package logsource

import (
	"context"
	"io"
	"os"
)

// NewStdinSource creates a source that reads records from stdin.
func NewStdinSource(ctx context.Context, conf ...Config) *ReaderSource {
	return newStdinSourceWithReader(ctx, os.Stdin, conf...)
}

func newStdinSourceWithReader(ctx context.Context, r io.Reader, conf ...Config) *ReaderSource {
	return newReaderSource(ctx, "stdin", r, nil, conf)
}
