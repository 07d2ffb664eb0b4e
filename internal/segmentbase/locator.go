package segmentbase

import (
	"context"
	"dashsidx/internal/byterange"
	"dashsidx/internal/models"
	"dashsidx/internal/sidx"
	"fmt"
)

// locateIndexSegment picks the resource holding the sidx box: a separate
// representation index, the manifest's indexRange, or a scan of the container.
func (s *Sequence) locateIndexSegment(ctx context.Context) (*models.Segment, error) {
	if segment := s.GetRepresentationIndexSegment(); segment != nil {
		s.logger.Debugf("Using representation index %s", segment.Key())
		return segment, nil
	}
	if segment := s.GetIndexSegment(); segment != nil {
		s.logger.Debugf("Using manifest index range %s", segment.Key())
		return segment, nil
	}
	return s.findIndexSegmentInContainer(ctx)
}

// findIndexSegmentInContainer walks the top-level boxes of the media resource one
// header at a time until it reaches the sidx box. The resource must start with ftyp.
func (s *Sequence) findIndexSegmentInContainer(ctx context.Context) (*models.Segment, error) {
	base := s.baseSegment()
	if base == nil {
		return nil, fmt.Errorf("%w: no media resource to scan", ErrNoIndexAvailable)
	}

	var boxStart uint64
	for probes := 0; probes < s.maxProbes; probes++ {
		header, err := s.probe(ctx, base, boxStart)
		if err != nil {
			return nil, fmt.Errorf("%w: no sidx box found in %s: %w", ErrNoIndexAvailable, base.URL, err)
		}
		s.logger.Debugf("Found '%s' box at offset %d with size %d", header.Type, boxStart, header.Size)

		if boxStart == 0 && header.Type != sidx.TypeFTYP {
			return nil, fmt.Errorf("%w: %s starts with '%s' instead of 'ftyp'", ErrNoIndexAvailable, base.URL, header.Type)
		}

		size := uint64(header.Size)
		switch {
		case header.Size == 0:
			return nil, fmt.Errorf("%w: %w: '%s' box at offset %d runs to end of file",
				ErrNoIndexAvailable, sidx.ErrMalformedIndex, header.Type, boxStart)
		case header.Size == 1:
			probes++
			if size, err = s.probeLargeSize(ctx, base, boxStart); err != nil {
				return nil, fmt.Errorf("%w: '%s' box at offset %d: %w", ErrNoIndexAvailable, header.Type, boxStart, err)
			}
		}
		if size < sidx.BoxHeaderSize {
			return nil, fmt.Errorf("%w: %w: '%s' box at offset %d declares size %d",
				ErrNoIndexAvailable, sidx.ErrMalformedIndex, header.Type, boxStart, size)
		}

		if header.Type == sidx.TypeSIDX {
			if size < sidx.MinBoxSize || size > sidx.MaxBoxSize {
				return nil, fmt.Errorf("%w: %w: sidx box at offset %d declares size %d, outside %d-%d",
					ErrNoIndexAvailable, sidx.ErrMalformedIndex, boxStart, size, sidx.MinBoxSize, sidx.MaxBoxSize)
			}
			segment := *base
			segment.SetRange(byterange.FromSize(boxStart, size))
			return &segment, nil
		}

		if boxStart+size < boxStart {
			return nil, fmt.Errorf("%w: %w: box offset overflow at %d", ErrNoIndexAvailable, sidx.ErrMalformedIndex, boxStart)
		}
		boxStart += size
	}

	return nil, fmt.Errorf("%w: no sidx box within the first %d boxes of %s", ErrNoIndexAvailable, s.maxProbes, base.URL)
}

// probe fetches and decodes the compact box header at offset.
func (s *Sequence) probe(ctx context.Context, base *models.Segment, offset uint64) (sidx.BoxHeader, error) {
	data, err := s.fetchRange(ctx, base, offset, sidx.BoxHeaderSize)
	if err != nil {
		return sidx.BoxHeader{}, err
	}
	return sidx.ReadBoxHeader(data)
}

// probeLargeSize reads the 64-bit size following a header whose size field is 1.
func (s *Sequence) probeLargeSize(ctx context.Context, base *models.Segment, offset uint64) (uint64, error) {
	data, err := s.fetchRange(ctx, base, offset+sidx.BoxHeaderSize, 8)
	if err != nil {
		return 0, err
	}
	return sidx.NewReader(data).ReadU64()
}

func (s *Sequence) fetchRange(ctx context.Context, base *models.Segment, offset, size uint64) ([]byte, error) {
	segment := *base
	segment.SetRange(byterange.FromSize(offset, size))

	data, err := s.fetcher.Fetch(ctx, &segment)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, segment.Key(), err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s returned no data", ErrFetchFailed, segment.Key())
	}
	return data, nil
}
