package logsource

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tinytelemetry/accesslens/internal/model"
)

const (
	// DefaultBuffer is the default channel buffer size for lines.
	DefaultBuffer = 50_000

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB
)

// Config holds tunable parameters for reader-backed sources.
type Config struct {
	BufferSize  int
	MaxLineSize int
	Logger      *zerolog.Logger
}

// ReaderSource streams lines from an io.Reader.
type ReaderSource struct {
	name   string
	ch     chan model.IngestEnvelope
	cancel context.CancelFunc
	once   sync.Once
	closer io.Closer
	log    zerolog.Logger

	errMu sync.Mutex
	err   error
}

func newReaderSource(ctx context.Context, name string, r io.Reader, closer io.Closer, conf []Config) *ReaderSource {
	bufferSize := DefaultBuffer
	maxLineSize := DefaultMaxLineSize
	logger := zerolog.Nop()
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
		if conf[0].Logger != nil {
			logger = *conf[0].Logger
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &ReaderSource{
		name:   name,
		ch:     make(chan model.IngestEnvelope, bufferSize),
		cancel: cancel,
		closer: closer,
		log:    logger,
	}
	go s.read(ctx, r, maxLineSize)
	return s
}

// NewReaderSource creates a source that reads r in a background goroutine.
func NewReaderSource(ctx context.Context, name string, r io.Reader, conf ...Config) *ReaderSource {
	return newReaderSource(ctx, name, r, nil, conf)
}

func (s *ReaderSource) read(ctx context.Context, r io.Reader, maxLineSize int) {
	defer close(s.ch)

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, min(64*1024, maxLineSize))
	scanner.Buffer(buf, maxLineSize)

	// Use a single goroutine for blocking scan with a done channel to
	// detect context cancellation without spawning a goroutine per line.
	results := make(chan string)
	go func() {
		defer close(results)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			select {
			case results <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			s.setErr(err)
			if errors.Is(err, bufio.ErrTooLong) {
				s.log.Warn().Str("source", s.name).Int("max_line_size", maxLineSize).Msg("logsource: line exceeded max size, stopping source")
				return
			}
			s.log.Warn().Err(err).Str("source", s.name).Msg("logsource: scanner error")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-results:
			if !ok {
				return
			}
			select {
			case s.ch <- model.IngestEnvelope{Source: s.name, Line: line}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *ReaderSource) setErr(err error) {
	s.errMu.Lock()
	s.err = err
	s.errMu.Unlock()
}

// Err returns the error that ended reading early, or nil.
func (s *ReaderSource) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *ReaderSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *ReaderSource) Name() string                       { return s.name }

// Stop cancels reading and closes the underlying file, if any. It is safe
// to call more than once.
func (s *ReaderSource) Stop() {
	s.once.Do(func() {
		s.cancel()
		if s.closer != nil {
			if err := s.closer.Close(); err != nil {
				s.log.Debug().Err(err).Str("source", s.name).Msg("logsource: close")
			}
		}
	})
}
