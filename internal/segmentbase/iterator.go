package segmentbase

import (
	"dashsidx/internal/byterange"
	"dashsidx/internal/models"
)

// Iterator is a position in a Sequence, from 0 to Len (the End sentinel).
// It does not own the sequence and stays meaningful only while the caller keeps
// using that sequence. Next and Previous do not clamp; positions outside
// [0, Len) resolve to nil and invalid sentinels.
type Iterator struct {
	seq   *Sequence
	index int
}

// Next moves to the following segment.
func (it *Iterator) Next() {
	it.index++
}

// Previous moves to the preceding segment.
func (it *Iterator) Previous() {
	it.index--
}

// Index returns the position in the sequence.
func (it Iterator) Index() int {
	return it.index
}

// Clone returns an independent iterator at the same position.
func (it Iterator) Clone() Iterator {
	return it
}

// Equals reports whether both iterators point at the same position of the same sequence.
func (it Iterator) Equals(other Iterator) bool {
	return it.seq == other.seq && it.index == other.index
}

// Get resolves the current segment into a descriptor of its byte range within the
// media resource, or nil when the position is out of range.
func (it Iterator) Get() *models.Segment {
	if it.seq == nil || it.index < 0 || it.index >= len(it.seq.entries) {
		return nil
	}

	entry := it.seq.entries[it.index]
	if entry.Size == 0 {
		return nil
	}
	segment := it.seq.baseSegment()
	if segment == nil {
		return nil
	}
	segment.SetRange(byterange.FromSize(entry.Offset, entry.Size))
	return segment
}

// SegmentDuration returns the current segment duration if the iterator belongs to seq.
func (it Iterator) SegmentDuration(seq *Sequence) float64 {
	if it.seq == nil || it.seq != seq {
		return InvalidSegmentDuration
	}
	return seq.Duration(it.index)
}

// SegmentTimestamp returns the current segment start time if the iterator belongs to seq.
func (it Iterator) SegmentTimestamp(seq *Sequence) float64 {
	if it.seq == nil || it.seq != seq {
		return InvalidSegmentTimestamp
	}
	return seq.Timestamp(it.index)
}
