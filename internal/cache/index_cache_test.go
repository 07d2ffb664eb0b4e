package cache

import (
	"context"
	"dashsidx/internal/models"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger is a no-op logger for testing purposes.
type mockLogger struct{}

func (m *mockLogger) Debugf(format string, v ...interface{}) {}
func (m *mockLogger) Infof(format string, v ...interface{})  {}
func (m *mockLogger) Warnf(format string, v ...interface{})  {}
func (m *mockLogger) Errorf(format string, v ...interface{}) {}

type countingFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	fail  bool
}

func (f *countingFetcher) Fetch(ctx context.Context, segment *models.Segment) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[segment.Key()]++
	if f.fail {
		return nil, errors.New("origin down")
	}
	return []byte("bytes of " + segment.Key()), nil
}

func (f *countingFetcher) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func ranged(url, r string) *models.Segment {
	s := &models.Segment{URL: url}
	s.SetRange(r)
	return s
}

func TestIndexCache_HitAndMiss(t *testing.T) {
	origin := &countingFetcher{}
	c, err := New(origin, 8, time.Minute, &mockLogger{})
	require.NoError(t, err)

	seg := ranged("http://cdn/media.mp4", "0-7")
	first, err := c.Fetch(context.Background(), seg)
	require.NoError(t, err)
	second, err := c.Fetch(context.Background(), seg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, origin.count(seg.Key()))

	// A different range of the same resource is a different entry.
	_, err = c.Fetch(context.Background(), ranged("http://cdn/media.mp4", "8-15"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestIndexCache_FailuresAreNotCached(t *testing.T) {
	origin := &countingFetcher{fail: true}
	c, err := New(origin, 8, time.Minute, &mockLogger{})
	require.NoError(t, err)

	seg := ranged("http://cdn/media.mp4", "0-7")
	_, err = c.Fetch(context.Background(), seg)
	assert.Error(t, err)
	_, err = c.Fetch(context.Background(), seg)
	assert.Error(t, err)
	assert.Equal(t, 2, origin.count(seg.Key()))
	assert.Zero(t, c.Len())
}

func TestIndexCache_Expiry(t *testing.T) {
	origin := &countingFetcher{}
	c, err := New(origin, 8, time.Minute, &mockLogger{})
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	seg := ranged("http://cdn/media.mp4", "0-7")
	_, err = c.Fetch(context.Background(), seg)
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), ranged("http://cdn/other.mp4", "0-7"))
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	c.runEviction()
	assert.Zero(t, c.Len())

	_, err = c.Fetch(context.Background(), seg)
	require.NoError(t, err)
	assert.Equal(t, 2, origin.count(seg.Key()))
}

func TestIndexCache_Bounded(t *testing.T) {
	origin := &countingFetcher{}
	c, err := New(origin, 4, time.Minute, &mockLogger{})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := c.Fetch(context.Background(), ranged("http://cdn/media.mp4", strconv.Itoa(i*8)+"-"+strconv.Itoa(i*8+7)))
		require.NoError(t, err)
	}
	assert.Equal(t, 4, c.Len())

	_, err = New(origin, 0, time.Minute, &mockLogger{})
	assert.Error(t, err)
}

func TestIndexCache_StartStop(t *testing.T) {
	c, err := New(&countingFetcher{}, 4, time.Minute, &mockLogger{})
	require.NoError(t, err)

	c.Start()
	c.Stop()
}

func TestIndexCache_ConcurrentAccess(t *testing.T) {
	origin := &countingFetcher{}
	c, err := New(origin, 16, time.Minute, &mockLogger{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seg := ranged("http://cdn/media.mp4", strconv.Itoa(i%8)+"-100")
			data, err := c.Fetch(context.Background(), seg)
			assert.NoError(t, err)
			assert.Equal(t, "bytes of "+seg.Key(), string(data))
		}(i)
	}
	wg.Wait()
}
