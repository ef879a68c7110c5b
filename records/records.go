// Package records decodes "<id> <number>" lines.
package records

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/ShoshinNikita/nlargest/nlargest"
	"github.com/ShoshinNikita/nlargest/pkg/metrics"
)

// Stream is a single-pass sequence of records. Use it like [bufio.Scanner]:
//
//	for s.Next() {
//		rec := s.Record()
//	}
//	if err := s.Err(); err != nil {
//		...
//	}
type Stream struct {
	r       *bufio.Reader
	closers []io.Closer

	line   int
	record nlargest.Record
	err    error
	done   bool
}

// Open opens a gzip-compressed file.
func Open(path string) (*Stream, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	gr, err := gzip.NewReader(bufio.NewReaderSize(file, 64<<10))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("couldn't open gzip stream: %w", err)
	}

	s := NewStream(gr)
	s.closers = []io.Closer{gr, file}
	return s, nil
}

// NewStream returns a stream that reads uncompressed lines from r.
func NewStream(r io.Reader) *Stream {
	return &Stream{
		r: bufio.NewReaderSize(r, 64<<10),
	}
}

// Next advances the stream to the next record. It returns false at the end of
// the stream or after an error.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	line, err := s.r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		s.finish(fmt.Errorf("couldn't read line %d: %w", s.line+1, err))
		return false
	}
	if errors.Is(err, io.EOF) && line == "" {
		s.finish(nil)
		return false
	}

	s.line++
	s.record, err = ParseLine(line)
	if err != nil {
		var parseErr *nlargest.ParseError
		if errors.As(err, &parseErr) {
			parseErr.Line = s.line
		}
		s.finish(err)
		return false
	}
	return true
}

func (s *Stream) finish(err error) {
	s.err = err
	s.done = true

	metrics.RecordsParsed.Add(float64(s.line))
}

// Record returns the record read by the last successful call of [Stream.Next].
func (s *Stream) Record() nlargest.Record {
	return s.record
}

// Err returns the first error encountered by the stream.
func (s *Stream) Err() error {
	return s.err
}

// Count returns the number of read lines.
func (s *Stream) Count() int {
	return s.line
}

// All returns the remaining records as a sequence. A read or parse error is
// yielded as the last element.
func (s *Stream) All() iter.Seq2[nlargest.Record, error] {
	return func(yield func(nlargest.Record, error) bool) {
		for s.Next() {
			if !yield(s.Record(), nil) {
				return
			}
		}
		if err := s.Err(); err != nil {
			yield(nlargest.Record{}, err)
		}
	}
}

func (s *Stream) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// ParseLine parses a line of whitespace-separated fields. The first field is an id, the second
// one is an integer value. Other fields are ignored.
func ParseLine(line string) (nlargest.Record, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nlargest.Record{}, &nlargest.ParseError{
			Text:   strings.TrimSpace(line),
			Reason: fmt.Sprintf("expected at least 2 fields, got %d", len(fields)),
		}
	}

	value, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nlargest.Record{}, &nlargest.ParseError{
			Text:   strings.TrimSpace(line),
			Reason: "second field is not an integer",
		}
	}

	return nlargest.Record{
		ID:    fields[0],
		Value: value,
	}, nil
}
