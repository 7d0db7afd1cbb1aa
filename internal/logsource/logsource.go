// Package logsource streams record lines from files and stdin.
package logsource

import "github.com/tinytelemetry/accesslens/internal/model"

// LogSource delivers record lines until its input is exhausted or it is
// stopped. Lines is closed when reading ends; Err then reports why reading
// ended early (an oversized line or a read failure) and is nil at EOF.
type LogSource interface {
	Lines() <-chan model.IngestEnvelope
	Stop()
	Name() string
	Err() error
}
