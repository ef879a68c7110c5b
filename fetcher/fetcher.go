package fetcher

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ShoshinNikita/nlargest/nlargest"
	"github.com/ShoshinNikita/nlargest/pkg/metrics"
	"github.com/ShoshinNikita/nlargest/pkg/rlog"
)

type Options struct {
	// Timeout limits a single range request, not the whole download.
	Timeout   time.Duration
	UserAgent string
}

// Fetcher downloads remote files with sequential range requests.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}

	return &Fetcher{
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost:   2,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: opts.Timeout,
				ForceAttemptHTTP2:     true,
			},
			Timeout: opts.Timeout,
		},
		userAgent: opts.UserAgent,
	}
}

// ParseURL checks that rawURL is an absolute http(s) url with a host.
func ParseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", nlargest.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https, got %q", nlargest.ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: host is empty", nlargest.ErrInvalidURL)
	}
	return u, nil
}

// Chunks returns a sequence of chunks of the remote file. Each chunk is requested only after
// the previous one has been consumed. The sequence ends when the server responds with
// "416 Range Not Satisfiable". Any other error ends the sequence after it has been yielded.
func (f *Fetcher) Chunks(ctx context.Context, rawURL string, chunkSize int64) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		window, err := nlargest.NewRangeWindow(chunkSize)
		if err != nil {
			yield(nil, err)
			return
		}

		for {
			chunk, done, err := f.fetchChunk(ctx, rawURL, window)
			if err != nil {
				yield(nil, fmt.Errorf("couldn't fetch range %q: %w", window.Header(), err))
				return
			}
			if done {
				rlog.Debugf("reached the end of %q at offset %d", rawURL, window.Offset)
				return
			}
			if !yield(chunk, nil) {
				return
			}
			window = window.Next()
		}
	}
}

func (f *Fetcher) fetchChunk(ctx context.Context, rawURL string, window nlargest.RangeWindow) (chunk []byte, done bool, err error) {
	now := time.Now()
	defer func() {
		dur := time.Since(now)

		metrics.FetchResponseTime.Observe(dur.Seconds())
		rlog.Debugf("range %q of %q was loaded in %s", window.Header(), rawURL, dur)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("couldn't prepare request: %w", err)
	}
	req.Header.Set("Range", window.Header())
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.FetchResponseStatuses.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		// Read one extra byte to detect servers that send more than requested.
		maxSize := window.Size + 1
		chunk, err = io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
		if err != nil {
			return nil, false, fmt.Errorf("couldn't read response body: %w", err)
		}
		if int64(len(chunk)) > maxSize {
			return nil, false, fmt.Errorf("server returned more than %d bytes", maxSize)
		}
		metrics.FetchReceivedBytes.Add(float64(len(chunk)))
		return chunk, false, nil

	case http.StatusRequestedRangeNotSatisfiable:
		return nil, true, nil

	case http.StatusOK:
		return nil, false, &nlargest.UnsupportedRangeError{URL: rawURL}

	default:
		bodyPrefix := make([]byte, 50)
		n, _ := io.ReadFull(resp.Body, bodyPrefix)
		bodyPrefix = bodyPrefix[:n]

		return nil, false, &nlargest.HTTPError{
			StatusCode: resp.StatusCode,
			BodyPrefix: string(bodyPrefix),
		}
	}
}
