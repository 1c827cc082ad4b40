package player

import (
	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	"github.com/samber/lo"
)

// ClipRanges clips buffered ranges to the forced end time. endMs <= 0 means no forced end.
func ClipRanges(ranges []event.Range, endMs int64) []event.Range {
	if endMs <= 0 {
		return lo.Map(ranges, func(r event.Range, _ int) event.Range {
			return r
		})
	}

	return lo.FilterMap(ranges, func(r event.Range, _ int) (event.Range, bool) {
		if r.StartMs >= endMs {
			return event.Range{}, false
		}

		if r.EndMs > endMs {
			r.EndMs = endMs
		}
		return r, true
	})
}

// BufferedAheadMs returns how far the buffer reaches past the position.
// The range containing the position is used, or the first range if none does.
func BufferedAheadMs(ranges []event.Range, positionMs int64) int64 {
	if len(ranges) == 0 {
		return 0
	}

	current, ok := lo.Find(ranges, func(r event.Range) bool {
		return r.StartMs <= positionMs && positionMs < r.EndMs
	})
	if !ok {
		current = ranges[0]
	}

	return current.EndMs - positionMs
}
