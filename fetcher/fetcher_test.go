package fetcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShoshinNikita/nlargest/nlargest"
	"github.com/stretchr/testify/require"
)

type rangeServer struct {
	*httptest.Server

	requests atomic.Int64

	mu           sync.Mutex
	rangeHeaders []string
}

// newRangeServer serves content with full support of range requests.
func newRangeServer(t *testing.T, content []byte) *rangeServer {
	s := &rangeServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.requests.Add(1)

		s.mu.Lock()
		s.rangeHeaders = append(s.rangeHeaders, req.Header.Get("Range"))
		s.mu.Unlock()

		http.ServeContent(w, req, "data.txt", time.Time{}, bytes.NewReader(content))
	}))
	t.Cleanup(s.Close)

	return s
}

func collectChunks(t *testing.T, f *Fetcher, url string, chunkSize int64) ([][]byte, error) {
	var chunks [][]byte
	for chunk, err := range f.Chunks(t.Context(), url, chunkSize) {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func TestFetcher_Chunks(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	content := []byte(strings.Repeat("id 123456789\n", 300)) // 3900 bytes
	server := newRangeServer(t, content)

	chunks, err := collectChunks(t, NewFetcher(Options{}), server.URL, 1024)
	r.NoError(err)
	r.Len(chunks, 4)
	for _, chunk := range chunks[:3] {
		r.Len(chunk, 1025)
	}
	r.Equal(content, bytes.Join(chunks, nil))

	r.EqualValues(5, server.requests.Load())
	r.Equal(
		[]string{
			"bytes=0-1024",
			"bytes=1025-2049",
			"bytes=2050-3074",
			"bytes=3075-4099",
			"bytes=4100-5124",
		},
		server.rangeHeaders,
	)
}

func TestFetcher_EmptyFile(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	server := newRangeServer(t, nil)

	chunks, err := collectChunks(t, NewFetcher(Options{}), server.URL, 1024)
	r.NoError(err)
	r.Empty(chunks)
	r.EqualValues(1, server.requests.Load())
}

func TestFetcher_Errors(t *testing.T) {
	t.Parallel()

	newServer := func(t *testing.T, status int, body string) string {
		s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(body))
		}))
		t.Cleanup(s.Close)
		return s.URL
	}

	t.Run("range is ignored", func(t *testing.T) {
		r := require.New(t)

		url := newServer(t, http.StatusOK, "a 1\nb 2\n")

		chunks, err := collectChunks(t, NewFetcher(Options{}), url, 1024)
		r.Empty(chunks)
		r.ErrorIs(err, nlargest.ErrUnsupportedRange)

		var rangeErr *nlargest.UnsupportedRangeError
		r.ErrorAs(err, &rangeErr)
		r.Equal(url, rangeErr.URL)
	})

	t.Run("server error", func(t *testing.T) {
		r := require.New(t)

		url := newServer(t, http.StatusInternalServerError, strings.Repeat("x", 100))

		_, err := collectChunks(t, NewFetcher(Options{}), url, 1024)

		var httpErr *nlargest.HTTPError
		r.ErrorAs(err, &httpErr)
		r.Equal(http.StatusInternalServerError, httpErr.StatusCode)
		r.Equal(strings.Repeat("x", 50), httpErr.BodyPrefix)
	})

	t.Run("not found", func(t *testing.T) {
		r := require.New(t)

		url := newServer(t, http.StatusNotFound, "")

		_, err := collectChunks(t, NewFetcher(Options{}), url, 1024)

		var httpErr *nlargest.HTTPError
		r.ErrorAs(err, &httpErr)
		r.Equal(http.StatusNotFound, httpErr.StatusCode)
	})

	t.Run("too many bytes", func(t *testing.T) {
		r := require.New(t)

		url := newServer(t, http.StatusPartialContent, strings.Repeat("x", 2000))

		_, err := collectChunks(t, NewFetcher(Options{}), url, 1024)
		r.ErrorContains(err, "server returned more than 1025 bytes")
	})

	t.Run("invalid chunk size", func(t *testing.T) {
		r := require.New(t)

		_, err := collectChunks(t, NewFetcher(Options{}), "http://localhost", 1023)
		r.ErrorIs(err, nlargest.ErrInvalidChunkSize)
	})
}

func TestFetcher_StopEarly(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	server := newRangeServer(t, bytes.Repeat([]byte("x"), 10_000))

	var count int
	for _, err := range NewFetcher(Options{}).Chunks(t.Context(), server.URL, 1024) {
		r.NoError(err)
		count++
		if count == 2 {
			break
		}
	}
	r.Equal(2, count)
	r.EqualValues(2, server.requests.Load())
}

func TestFetcher_CanceledContext(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	server := newRangeServer(t, []byte("a 1\n"))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var gotErr error
	for _, err := range NewFetcher(Options{}).Chunks(ctx, server.URL, 1024) {
		gotErr = err
	}
	r.True(errors.Is(gotErr, context.Canceled))
	r.Zero(server.requests.Load())
}

func TestParseURL(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		in      string
		wantErr bool
	}{
		{in: "https://example.com/file.txt"},
		{in: "http://localhost:8080/a/b"},
		{in: "ftp://example.com/file.txt", wantErr: true},
		{in: "example.com/file.txt", wantErr: true},
		{in: "https:///file.txt", wantErr: true},
		{in: "://", wantErr: true},
	} {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseURL(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, nlargest.ErrInvalidURL)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
