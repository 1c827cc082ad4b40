package cache

import "sort"

// Span is a cached byte range [Start, End) of a content
type Span struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Length returns the number of bytes in the span
func (span Span) Length() int64 {
	return span.End - span.Start
}

// Contains checks if the offset is inside the span
func (span Span) Contains(offset int64) bool {
	return span.Start <= offset && offset < span.End
}

// spanSet is a sorted list of non-overlapping, non-adjacent spans
type spanSet []Span

// add merges [start, end) into the set and returns the number of newly covered bytes
func (spans spanSet) add(start int64, end int64) (spanSet, int64) {
	if end <= start {
		return spans, 0
	}

	added := (end - start) - spans.covered(start, end)

	merged := spanSet{}
	newSpan := Span{Start: start, End: end}
	inserted := false
	for _, span := range spans {
		switch {
		case span.End < newSpan.Start:
			merged = append(merged, span)
		case newSpan.End < span.Start:
			if !inserted {
				merged = append(merged, newSpan)
				inserted = true
			}
			merged = append(merged, span)
		default:
			// overlapping or adjacent
			if span.Start < newSpan.Start {
				newSpan.Start = span.Start
			}
			if span.End > newSpan.End {
				newSpan.End = span.End
			}
		}
	}

	if !inserted {
		merged = append(merged, newSpan)
	}

	return merged, added
}

// covered returns the number of bytes in [start, end) that are already cached
func (spans spanSet) covered(start int64, end int64) int64 {
	var total int64
	for _, span := range spans {
		s := span.Start
		if s < start {
			s = start
		}
		e := span.End
		if e > end {
			e = end
		}
		if e > s {
			total += e - s
		}
	}
	return total
}

// find returns the span containing offset
func (spans spanSet) find(offset int64) (Span, bool) {
	idx := sort.Search(len(spans), func(i int) bool {
		return spans[i].End > offset
	})

	if idx < len(spans) && spans[idx].Contains(offset) {
		return spans[idx], true
	}
	return Span{}, false
}

// gap returns the uncached range around offset as [previous span end, next span start).
// next is -1 when no span follows offset.
func (spans spanSet) gap(offset int64) (int64, int64) {
	prev := int64(0)
	next := int64(-1)
	for _, span := range spans {
		if span.End <= offset {
			prev = span.End
			continue
		}
		if span.Start > offset {
			next = span.Start
			break
		}
	}
	return prev, next
}

// truncate returns the largest length n <= length such that [offset, offset+n) has at most
// allowed uncached bytes
func (spans spanSet) truncate(offset int64, length int64, allowed int64) int64 {
	if allowed < 0 {
		allowed = 0
	}

	pos := offset
	end := offset + length
	remaining := allowed
	for _, span := range spans {
		if span.End <= pos {
			continue
		}
		if span.Start >= end {
			break
		}

		if span.Start > pos {
			gapLen := span.Start - pos
			if gapLen > remaining {
				return pos + remaining - offset
			}
			remaining -= gapLen
		}

		pos = span.End
		if pos >= end {
			return length
		}
	}

	tail := end - pos
	if tail > remaining {
		return pos + remaining - offset
	}
	return length
}

func (spans spanSet) clone() spanSet {
	cloned := make(spanSet, len(spans))
	copy(cloned, spans)
	return cloned
}
