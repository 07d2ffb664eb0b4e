package segmentbase

import (
	"context"
	"dashsidx/internal/byterange"
	"dashsidx/internal/dash"
	"dashsidx/internal/logger"
	"dashsidx/internal/models"
	"dashsidx/internal/sidx"
	"errors"
	"fmt"
)

const (
	// InvalidSegmentDuration is returned by Duration for positions outside the table.
	InvalidSegmentDuration = -1.0
	// InvalidSegmentTimestamp is returned by Timestamp for positions outside the table.
	InvalidSegmentTimestamp = -1.0

	// timeEpsilon absorbs rounding at segment boundaries in SegmentForTime.
	timeEpsilon = 1e-6

	defaultMaxProbes = 64
)

var (
	// ErrNoIndexAvailable means none of the location strategies produced a usable index.
	ErrNoIndexAvailable = errors.New("no segment index available")
	// ErrFetchFailed means the network returned an error or no bytes.
	ErrFetchFailed = fmt.Errorf("%w: fetch failed", ErrNoIndexAvailable)
)

// Fetcher performs a blocking fetch of the bytes a segment refers to.
type Fetcher interface {
	Fetch(ctx context.Context, segment *models.Segment) ([]byte, error)
}

// Option customizes a Sequence at construction.
type Option func(*Sequence)

// WithMaxProbes bounds the number of box headers read while scanning the container
// for a sidx box.
func WithMaxProbes(n int) Option {
	return func(s *Sequence) {
		if n > 0 {
			s.maxProbes = n
		}
	}
}

// Sequence is the segment table of a representation using SegmentBase addressing.
// The table is loaded once by New and is read-only afterwards, so a Sequence and its
// iterators are safe for concurrent use.
type Sequence struct {
	baseURLs    []string
	segmentBase *dash.SegmentBase
	fetcher     Fetcher
	logger      logger.Logger
	maxProbes   int

	entries         []sidx.Entry
	averageDuration float64
	err             error
}

// New builds the sequence for desc, synchronously locating, fetching and parsing its
// segment index. Failures are not returned: the sequence is left empty and Err
// reports the cause.
func New(ctx context.Context, desc *dash.RepresentationDescription, fetcher Fetcher, log logger.Logger, opts ...Option) *Sequence {
	s := &Sequence{
		fetcher:   fetcher,
		logger:    log,
		maxProbes: defaultMaxProbes,
	}
	for _, opt := range opts {
		opt(s)
	}

	if desc == nil {
		s.err = fmt.Errorf("%w: missing representation description", ErrNoIndexAvailable)
		s.logger.Warnf("SegmentBase sequence unusable: %v", s.err)
		return s
	}
	s.baseURLs = desc.BaseURLs
	s.segmentBase = desc.SegmentBase

	if err := s.loadIndexSegment(ctx); err != nil {
		s.err = err
		s.entries = nil
		s.averageDuration = 0
		s.logger.Warnf("SegmentBase sequence for representation '%s' is empty: %v", desc.ID, err)
		return s
	}

	s.logger.Infof("Loaded segment index for representation '%s': %d segments, average duration %.3fs",
		desc.ID, len(s.entries), s.averageDuration)
	return s
}

func (s *Sequence) loadIndexSegment(ctx context.Context) error {
	segment, err := s.locateIndexSegment(ctx)
	if err != nil {
		return err
	}

	var begin, end uint64
	if segment.HasByteRange {
		if begin, end, err = byterange.Parse(segment.Range); err != nil {
			return fmt.Errorf("%w: index segment: %w", ErrNoIndexAvailable, err)
		}
	}

	data, err := s.fetcher.Fetch(ctx, segment)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFetchFailed, segment.Key(), err)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: %s returned no data", ErrFetchFailed, segment.Key())
	}
	if !segment.HasByteRange {
		end = uint64(len(data) - 1)
	}

	index, err := sidx.Parse(data, begin, end)
	if err != nil {
		return fmt.Errorf("parsing sidx from %s: %w", segment.Key(), err)
	}

	s.entries = index.Entries
	s.averageDuration = index.AverageDuration
	return nil
}

// Err returns why the index could not be loaded, or nil.
func (s *Sequence) Err() error {
	return s.err
}

// Len returns the number of segments.
func (s *Sequence) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the segment table.
func (s *Sequence) Entries() []sidx.Entry {
	return append([]sidx.Entry(nil), s.entries...)
}

// Begin returns an iterator at the first segment.
func (s *Sequence) Begin() Iterator {
	return Iterator{seq: s, index: 0}
}

// End returns the one-past-the-end iterator, also used as the "not found" result.
func (s *Sequence) End() Iterator {
	return Iterator{seq: s, index: len(s.entries)}
}

// SegmentForTime returns the iterator at the segment containing t seconds, or End.
func (s *Sequence) SegmentForTime(t float64) Iterator {
	for i, e := range s.entries {
		if e.Timestamp-timeEpsilon <= t && t < e.End() {
			return Iterator{seq: s, index: i}
		}
	}
	return s.End()
}

// Duration returns the duration of segment i in seconds, or InvalidSegmentDuration.
func (s *Sequence) Duration(i int) float64 {
	if i < 0 || i >= len(s.entries) {
		return InvalidSegmentDuration
	}
	return s.entries[i].Duration
}

// Timestamp returns the start time of segment i in seconds, or InvalidSegmentTimestamp.
func (s *Sequence) Timestamp(i int) float64 {
	if i < 0 || i >= len(s.entries) {
		return InvalidSegmentTimestamp
	}
	return s.entries[i].Timestamp
}

// AverageSegmentDuration returns the mean segment duration in seconds.
func (s *Sequence) AverageSegmentDuration() float64 {
	return s.averageDuration
}

// GetInitSegment returns the initialization segment. Without an Initialization
// element it is derived from indexRange as the bytes preceding the index. Nil means
// the representation is self-initializing, which is not supported.
func (s *Sequence) GetInitSegment() *models.Segment {
	if u := s.segmentBase.GetInitialization(); u != nil {
		return s.resolve(u)
	}

	indexRange := s.segmentBase.GetIndexRange()
	if indexRange == "" {
		return nil
	}
	start, _, err := byterange.Parse(indexRange)
	if err != nil {
		s.logger.Debugf("Cannot derive init segment: %v", err)
		return nil
	}
	if start == 0 {
		return nil
	}

	segment := s.baseSegment()
	if segment == nil {
		return nil
	}
	segment.SetRange(byterange.Format(0, start-1))
	return segment
}

// GetIndexSegment returns the base resource narrowed to the manifest's indexRange.
func (s *Sequence) GetIndexSegment() *models.Segment {
	indexRange := s.segmentBase.GetIndexRange()
	if indexRange == "" {
		return nil
	}

	segment := s.baseSegment()
	if segment == nil {
		return nil
	}
	segment.SetRange(indexRange)
	return segment
}

// GetRepresentationIndexSegment returns the separate index resource, if the manifest names one.
func (s *Sequence) GetRepresentationIndexSegment() *models.Segment {
	u := s.segmentBase.GetRepresentationIndex()
	if u == nil {
		return nil
	}
	return s.resolve(u)
}

// GetBitstreamSwitchingSegment always returns nil: SegmentBase has no bitstream
// switching segment.
func (s *Sequence) GetBitstreamSwitchingSegment() *models.Segment {
	return nil
}

// baseSegment returns a fresh descriptor of the resource media segments are cut from.
func (s *Sequence) baseSegment() *models.Segment {
	if u := s.segmentBase.GetInitialization(); u != nil {
		return s.resolve(u)
	}

	segment, err := dash.ResolveMedia(s.baseURLs)
	if err != nil {
		s.logger.Debugf("Cannot resolve media resource: %v", err)
		return nil
	}
	return segment
}

func (s *Sequence) resolve(u *dash.URLType) *models.Segment {
	segment, err := u.ToSegment(s.baseURLs)
	if err != nil {
		s.logger.Debugf("Cannot resolve %+v: %v", *u, err)
		return nil
	}
	return segment
}
