package nlargest

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	// MinChunkSize is the smallest allowed size of a range request.
	MinChunkSize = 1024
	// DefaultChunkSize is used when no chunk size is passed (256kb).
	DefaultChunkSize = 256000
)

// Record is a single "<id> <number>" line of a remote file.
type Record struct {
	ID    string
	Value int64
}

func (r Record) String() string {
	return r.ID + " " + strconv.FormatInt(r.Value, 10)
}

// RangeWindow describes one range request. End is inclusive, so a window
// covers Size+1 bytes.
type RangeWindow struct {
	Offset int64
	Size   int64
}

// NewRangeWindow returns the first window of a resource.
func NewRangeWindow(size int64) (RangeWindow, error) {
	if size < MinChunkSize {
		return RangeWindow{}, fmt.Errorf("%w: %d < %d", ErrInvalidChunkSize, size, MinChunkSize)
	}
	return RangeWindow{Offset: 0, Size: size}, nil
}

// Header returns the value of the "Range" header.
func (w RangeWindow) Header() string {
	return "bytes=" + strconv.FormatInt(w.Offset, 10) + "-" + strconv.FormatInt(w.Offset+w.Size, 10)
}

// Next returns the window that directly follows w.
func (w RangeWindow) Next() RangeWindow {
	return RangeWindow{
		Offset: w.Offset + w.Size + 1,
		Size:   w.Size,
	}
}

var (
	ErrCacheMiss        = errors.New("cache miss")
	ErrNotADirectory    = errors.New("not a directory")
	ErrUnsupportedRange = errors.New("remote host doesn't support range requests")
	ErrInvalidChunkSize = errors.New("invalid chunk size")
	ErrInvalidN         = errors.New("n must be >= 1")
	ErrInvalidURL       = errors.New("invalid url")
)

// UnsupportedRangeError is returned when a server answers a range request with
// the whole resource (200 OK).
type UnsupportedRangeError struct {
	URL string
}

func (e *UnsupportedRangeError) Error() string {
	return fmt.Sprintf("host of %q ignored the Range header: use a host that supports range requests (for example, AWS S3)", e.URL)
}

func (e *UnsupportedRangeError) Unwrap() error {
	return ErrUnsupportedRange
}

// HTTPError is returned for every unexpected response status.
type HTTPError struct {
	StatusCode int
	BodyPrefix string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code %d, body prefix: %q", e.StatusCode, e.BodyPrefix)
}

// ParseError is returned for lines that can't be parsed as a [Record].
type ParseError struct {
	Line   int // 1-based
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	text := e.Text
	if len(text) > 50 {
		text = text[:50] + "..."
	}
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, text)
}

// ConfigError is returned when the settings file is missing required values or
// can't be decoded.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %q: %s; run 'nlargest set-cache-dir ABSOLUTE_PATH' to re-initialize it", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
