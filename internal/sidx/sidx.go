package sidx

import "fmt"

const (
	// MinBoxSize is a version 0 box with no references.
	MinBoxSize = 32
	// MaxBoxSize is a version 1 box in largesize form with the most references
	// a 16-bit count allows.
	MaxBoxSize = MinBoxSize + 16 + 8 + 12*0xFFFF

	referenceTypeMask  = 0x80000000
	referencedSizeMask = 0x7FFFFFFF
)

// Entry describes one media subsegment listed by a sidx box.
type Entry struct {
	// Timestamp is the presentation time of the subsegment start, in seconds.
	Timestamp float64
	// Duration is in seconds.
	Duration float64
	// Offset is the absolute byte offset of the subsegment in the media resource.
	Offset uint64
	// Size is the subsegment length in bytes.
	Size uint64
}

// End returns the presentation time right after the subsegment.
func (e Entry) End() float64 {
	return e.Timestamp + e.Duration
}

// Index is the decoded content of a sidx box.
type Index struct {
	Version   uint8
	Timescale uint32
	Entries   []Entry
	// AverageDuration is the running mean of the entry durations, in seconds.
	AverageDuration float64
}

// Parse decodes the sidx box at the start of buf. begin and end are the inclusive
// offsets buf was fetched from; the first subsegment starts at end+1+first_offset.
func Parse(buf []byte, begin, end uint64) (*Index, error) {
	if end < begin {
		return nil, fmt.Errorf("%w: index range %d-%d is inverted", ErrMalformedIndex, begin, end)
	}

	hdr := NewReader(buf)
	size32, err := hdr.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("reading sidx size: %w", err)
	}
	if err := hdr.Skip(4); err != nil { // FourCC, located by the caller
		return nil, fmt.Errorf("reading sidx type: %w", err)
	}
	size := uint64(size32)
	if size32 == 1 {
		if size, err = hdr.ReadU64(); err != nil {
			return nil, fmt.Errorf("reading sidx largesize: %w", err)
		}
	}
	if size < MinBoxSize || size > MaxBoxSize {
		return nil, fmt.Errorf("%w: declared sidx size %d is outside %d-%d", ErrMalformedIndex, size, MinBoxSize, MaxBoxSize)
	}
	if size > uint64(len(buf)) {
		return nil, fmt.Errorf("%w: declared sidx size %d exceeds the %d bytes fetched for %d-%d", ErrMalformedIndex, size, len(buf), begin, end)
	}

	r := NewReader(buf[hdr.Pos():size])
	idx := &Index{}
	if idx.Version, err = r.ReadU8(); err != nil {
		return nil, err
	}
	if err := r.Skip(3 + 4); err != nil { // flags, reference_ID
		return nil, err
	}
	if idx.Timescale, err = r.ReadU32(); err != nil {
		return nil, err
	}
	if idx.Timescale == 0 {
		return nil, fmt.Errorf("%w: timescale is zero", ErrMalformedIndex)
	}

	var pts, firstOffset uint64
	if idx.Version == 0 {
		ept, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		fo, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		pts, firstOffset = uint64(ept), uint64(fo)
	} else {
		if pts, err = r.ReadU64(); err != nil {
			return nil, err
		}
		if firstOffset, err = r.ReadU64(); err != nil {
			return nil, err
		}
	}

	if err := r.Skip(2); err != nil { // reserved
		return nil, err
	}
	count, err := r.ReadU16()
	if err != nil {
		return nil, err
	}

	timescale := float64(idx.Timescale)
	offset := end + 1 + firstOffset
	idx.Entries = make([]Entry, 0, count)
	for i := 0; i < int(count); i++ {
		ref, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("reference %d: %w", i, err)
		}
		if ref&referenceTypeMask != 0 {
			return nil, fmt.Errorf("reference %d: %w", i, ErrUnsupportedReference)
		}
		subDuration, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("reference %d: %w", i, err)
		}
		if err := r.Skip(4); err != nil { // SAP
			return nil, fmt.Errorf("reference %d: %w", i, err)
		}

		refSize := uint64(ref & referencedSizeMask)
		if refSize == 0 {
			return nil, fmt.Errorf("%w: reference %d has zero size", ErrMalformedIndex, i)
		}
		duration := float64(subDuration) / timescale
		idx.AverageDuration += (duration - idx.AverageDuration) / float64(i+1)
		idx.Entries = append(idx.Entries, Entry{
			Timestamp: float64(pts) / timescale,
			Duration:  duration,
			Offset:    offset,
			Size:      refSize,
		})

		pts += uint64(subDuration)
		offset += refSize
	}

	return idx, nil
}
