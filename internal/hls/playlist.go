package hls

import (
	"dashsidx/internal/byterange"
	"dashsidx/internal/segmentbase"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrEmptySequence is returned when a playlist is requested for a sequence without segments.
var ErrEmptySequence = errors.New("sequence has no segments")

// Variant is one entry of a master playlist.
type Variant struct {
	Bandwidth int
	Codecs    string
	Width     int
	Height    int
	URI       string
}

// GenerateMasterPlaylist creates the HLS master playlist listing every variant.
func GenerateMasterPlaylist(variants []Variant) (string, error) {
	if len(variants) == 0 {
		return "", errors.New("no variants to list")
	}

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:7\n")

	for _, v := range variants {
		sb.WriteString(fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d", v.Bandwidth))
		if v.Codecs != "" {
			sb.WriteString(fmt.Sprintf(",CODECS=\"%s\"", v.Codecs))
		}
		if v.Width > 0 && v.Height > 0 {
			sb.WriteString(fmt.Sprintf(",RESOLUTION=%dx%d", v.Width, v.Height))
		}
		sb.WriteString("\n")
		sb.WriteString(v.URI + "\n")
	}

	return sb.String(), nil
}

// GenerateMediaPlaylist creates a VOD media playlist addressing every subsegment of
// seq as a byte range of the origin resource.
func GenerateMediaPlaylist(seq *segmentbase.Sequence) (string, error) {
	if seq.Len() == 0 {
		if err := seq.Err(); err != nil {
			return "", fmt.Errorf("%w: %w", ErrEmptySequence, err)
		}
		return "", ErrEmptySequence
	}

	var targetDuration float64
	for it := seq.Begin(); !it.Equals(seq.End()); it.Next() {
		targetDuration = max(targetDuration, it.SegmentDuration(seq))
	}

	var sb strings.Builder
	sb.WriteString("#EXTM3U\n")
	sb.WriteString("#EXT-X-VERSION:7\n")
	sb.WriteString(fmt.Sprintf("#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(targetDuration))))
	sb.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	sb.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")

	if init := seq.GetInitSegment(); init != nil {
		sb.WriteString(fmt.Sprintf("#EXT-X-MAP:URI=\"%s\"", init.URL))
		if init.HasByteRange {
			r, err := toHLSByteRange(init.Range)
			if err != nil {
				return "", fmt.Errorf("init segment: %w", err)
			}
			sb.WriteString(fmt.Sprintf(",BYTERANGE=\"%s\"", r))
		}
		sb.WriteString("\n")
	}

	for it := seq.Begin(); !it.Equals(seq.End()); it.Next() {
		segment := it.Get()
		if segment == nil {
			return "", fmt.Errorf("segment %d has no byte range", it.Index())
		}
		r, err := toHLSByteRange(segment.Range)
		if err != nil {
			return "", fmt.Errorf("segment %d: %w", it.Index(), err)
		}
		sb.WriteString(fmt.Sprintf("#EXTINF:%.3f,\n", it.SegmentDuration(seq)))
		sb.WriteString(fmt.Sprintf("#EXT-X-BYTERANGE:%s\n", r))
		sb.WriteString(segment.URL + "\n")
	}

	sb.WriteString("#EXT-X-ENDLIST\n")
	return sb.String(), nil
}

// toHLSByteRange converts "start-end" into the HLS "length@offset" form.
func toHLSByteRange(r string) (string, error) {
	start, _, err := byterange.Parse(r)
	if err != nil {
		return "", err
	}
	size, err := byterange.Size(r)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d@%d", size, start), nil
}
