package segmentbase

import (
	"bytes"
	"context"
	"dashsidx/internal/byterange"
	"dashsidx/internal/dash"
	"dashsidx/internal/models"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/require"
)

const (
	manifestURL = "http://cdn.example.com/vod/manifest.mpd"
	mediaURL    = "http://cdn.example.com/vod/media.mp4"
)

// mockLogger is a no-op logger for testing purposes.
type mockLogger struct{}

func (m *mockLogger) Debugf(format string, v ...interface{}) {}
func (m *mockLogger) Infof(format string, v ...interface{})  {}
func (m *mockLogger) Warnf(format string, v ...interface{})  {}
func (m *mockLogger) Errorf(format string, v ...interface{}) {}

// memFetcher serves in-memory resources, honouring byte ranges, and records requests.
type memFetcher struct {
	mu       sync.Mutex
	files    map[string][]byte
	requests []models.Segment
}

func newMemFetcher(files map[string][]byte) *memFetcher {
	return &memFetcher{files: files}
}

func (f *memFetcher) Fetch(ctx context.Context, segment *models.Segment) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, *segment)
	f.mu.Unlock()

	data, ok := f.files[segment.URL]
	if !ok {
		return nil, fmt.Errorf("404 %s", segment.URL)
	}
	if !segment.HasByteRange {
		return data, nil
	}

	start, end, err := byterange.Parse(segment.Range)
	if err != nil {
		return nil, err
	}
	if start >= uint64(len(data)) {
		return nil, nil
	}
	end = min(end, uint64(len(data)-1))
	return data[start : end+1], nil
}

func (f *memFetcher) ranges() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Range)
	}
	return out
}

func encodeBox(t *testing.T, box mp4.Box) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, box.Encode(&buf))
	return buf.Bytes()
}

func ftypBox(t *testing.T) []byte {
	return encodeBox(t, mp4.NewFtyp("iso6", 0, []string{"iso6", "dash"}))
}

// sidxBox encodes a version 0 index of two 2-second subsegments of 1000 bytes each.
func sidxBox(t *testing.T, ept uint64) []byte {
	return encodeBox(t, &mp4.SidxBox{
		Version:                  0,
		ReferenceID:              1,
		Timescale:                1000,
		EarliestPresentationTime: ept,
		SidxRefs: []mp4.SidxRef{
			{ReferencedSize: 1000, SubSegmentDuration: 2000},
			{ReferencedSize: 1000, SubSegmentDuration: 2000},
		},
	})
}

// rawBox builds an opaque box with a zeroed payload.
func rawBox(typ string, payload int) []byte {
	b := make([]byte, 8+payload)
	binary.BigEndian.PutUint32(b, uint32(8+payload))
	copy(b[4:], typ)
	return b
}

// largeBox builds an opaque box using the 64-bit size form.
func largeBox(typ string, payload int) []byte {
	b := make([]byte, 16+payload)
	binary.BigEndian.PutUint32(b, 1)
	copy(b[4:], typ)
	binary.BigEndian.PutUint64(b[8:], uint64(16+payload))
	return b
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func describe(segmentBase *dash.SegmentBase) *dash.RepresentationDescription {
	return &dash.RepresentationDescription{
		ID:          "v1",
		BaseURLs:    []string{manifestURL, "media.mp4"},
		SegmentBase: segmentBase,
	}
}
