package nlargest

import (
	"context"
	"iter"
)

// Fetcher returns the content of a remote file as a sequence of chunks.
type Fetcher interface {
	Chunks(ctx context.Context, url string, chunkSize int64) iter.Seq2[[]byte, error]
}
