// Package topn selects records with the largest values using memory proportional
// to the number of selected records.
package topn

import (
	"cmp"
	"container/heap"
	"fmt"
	"iter"
	"slices"

	"github.com/ShoshinNikita/nlargest/nlargest"
)

// Selector keeps the n records with the largest values seen so far.
//
// Records with equal values are ordered by arrival: an earlier record ranks higher,
// and a new record never displaces an earlier one with the same value.
type Selector struct {
	n    int
	seq  int64
	heap minHeap
}

func NewSelector(n int) (*Selector, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: got %d", nlargest.ErrInvalidN, n)
	}
	return &Selector{
		n:    n,
		heap: make(minHeap, 0, min(n, 1024)),
	}, nil
}

func (s *Selector) Push(rec nlargest.Record) {
	it := item{rec: rec, seq: s.seq}
	s.seq++

	if len(s.heap) < s.n {
		heap.Push(&s.heap, it)
		return
	}
	if rec.Value > s.heap[0].rec.Value {
		s.heap[0] = it
		heap.Fix(&s.heap, 0)
	}
}

// Result returns the selected records sorted by value in descending order.
// It doesn't modify the selector.
func (s *Selector) Result() []nlargest.Record {
	items := slices.Clone(s.heap)
	slices.SortFunc(items, func(a, b item) int {
		if c := cmp.Compare(b.rec.Value, a.rec.Value); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	res := make([]nlargest.Record, 0, len(items))
	for _, it := range items {
		res = append(res, it.rec)
	}
	return res
}

// Select returns min(n, number of records) records with the largest values, sorted
// in descending order. The first error of records is returned as is.
func Select(records iter.Seq2[nlargest.Record, error], n int) ([]nlargest.Record, error) {
	s, err := NewSelector(n)
	if err != nil {
		return nil, err
	}
	for rec, err := range records {
		if err != nil {
			return nil, err
		}
		s.Push(rec)
	}
	return s.Result(), nil
}

type item struct {
	rec nlargest.Record
	seq int64
}

// minHeap is ordered by value. For equal values, a later record is considered smaller.
type minHeap []item

func (h minHeap) Len() int { return len(h) }

func (h minHeap) Less(i, j int) bool {
	if h[i].rec.Value != h[j].rec.Value {
		return h[i].rec.Value < h[j].rec.Value
	}
	return h[i].seq > h[j].seq
}

func (h minHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *minHeap) Push(x any) { *h = append(*h, x.(item)) }

func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
