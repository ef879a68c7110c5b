package nlargest

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRangeWindow(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	_, err := NewRangeWindow(MinChunkSize - 1)
	r.ErrorIs(err, ErrInvalidChunkSize)

	w, err := NewRangeWindow(1024)
	r.NoError(err)

	var headers []string
	for range 3 {
		headers = append(headers, w.Header())
		w = w.Next()
	}
	r.Equal([]string{"bytes=0-1024", "bytes=1025-2049", "bytes=2050-3074"}, headers)
}

func TestErrors(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	err := fmt.Errorf("couldn't fetch: %w", &UnsupportedRangeError{URL: "http://example.com/file"})
	r.ErrorIs(err, ErrUnsupportedRange)

	var rangeErr *UnsupportedRangeError
	r.ErrorAs(err, &rangeErr)
	r.Equal("http://example.com/file", rangeErr.URL)

	var httpErr *HTTPError
	r.ErrorAs(fmt.Errorf("wrap: %w", &HTTPError{StatusCode: 500, BodyPrefix: "oops"}), &httpErr)
	r.Equal(`unexpected status code 500, body prefix: "oops"`, httpErr.Error())

	parseErr := &ParseError{Line: 3, Text: strings.Repeat("x", 60), Reason: "expected at least 2 fields, got 1"}
	r.Equal(`line 3: expected at least 2 fields, got 1: "`+strings.Repeat("x", 50)+`..."`, parseErr.Error())

	inner := errors.New("config is empty")
	r.ErrorIs(&ConfigError{Path: "/config.yaml", Err: inner}, inner)
}

func TestRecord_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "id-1 -42", Record{ID: "id-1", Value: -42}.String())
}
