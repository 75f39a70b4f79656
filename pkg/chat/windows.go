package chat

import (
	"github.com/kbforge/kbforge/pkg/models"
)

const millisPerDay = int64(24 * 60 * 60 * 1000)

// WindowSeq lazily yields contiguous, non-overlapping half-open time
// windows tiling [start, end]. A window is emitted while its start is
// <= end, so the final window may overhang the end of the range.
type WindowSeq struct {
	next int64
	end  int64
	size int64
}

// Windows partitions [start, end] into windows of chunkDays days.
func Windows(start, end int64, chunkDays int) *WindowSeq {
	return Partition(start, end, int64(chunkDays)*millisPerDay)
}

// Partition is Windows with an explicit window size in milliseconds.
func Partition(start, end, sizeMillis int64) *WindowSeq {
	return &WindowSeq{next: start, end: end, size: sizeMillis}
}

// Next returns the next window, or ok=false when the range is tiled.
func (s *WindowSeq) Next() (models.Window, bool) {
	if s.next > s.end {
		return models.Window{}, false
	}
	w := models.Window{Start: s.next, End: s.next + s.size}
	s.next = w.End
	return w, true
}
