package model

// IngestEnvelope carries one encoded record line with source metadata.
// It is the transport contract between line sources and record decoding.
type IngestEnvelope struct {
	Source string
	Line   string
}
