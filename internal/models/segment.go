package models

// Segment is a fetchable resource handle: a URL, optionally narrowed to a byte range.
// This struct is used across different packages to describe what to download.
type Segment struct {
	// URL is the fully-qualified URL to fetch the segment from.
	URL string
	// Range is an inclusive HTTP byte range of the form "<start>-<end>".
	// It is only meaningful when HasByteRange is set.
	Range string
	// HasByteRange indicates the segment covers Range rather than the whole resource.
	HasByteRange bool
}

// SetRange narrows the segment to the given byte range.
func (s *Segment) SetRange(r string) {
	s.Range = r
	s.HasByteRange = true
}

// Key identifies the bytes the segment refers to, suitable as a cache key.
func (s *Segment) Key() string {
	if !s.HasByteRange {
		return s.URL
	}
	return s.URL + "#" + s.Range
}
