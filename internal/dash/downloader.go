package dash

import (
	"context"
	"dashsidx/internal/byterange"
	"dashsidx/internal/logger"
	"dashsidx/internal/models"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

const (
	defaultMaxRetries     = 3
	defaultRequestTimeout = 5 * time.Second
	retryDelay            = 100 * time.Millisecond
)

// errNonRetryable marks failures that another attempt cannot fix.
var errNonRetryable = errors.New("non-retryable")

// RangeFetcher downloads whole resources or byte ranges of them with per-request
// timeouts and retries.
type RangeFetcher struct {
	httpClient *http.Client
	logger     logger.Logger
	userAgent  string

	// RequestTimeout bounds each attempt.
	RequestTimeout time.Duration
	MaxRetries     int
}

// NewRangeFetcher creates a new fetcher.
func NewRangeFetcher(client *http.Client, log logger.Logger, userAgent string) *RangeFetcher {
	return &RangeFetcher{
		httpClient:     client,
		logger:         log,
		userAgent:      userAgent,
		RequestTimeout: defaultRequestTimeout,
		MaxRetries:     defaultMaxRetries,
	}
}

// Fetch downloads the bytes the segment refers to.
func (f *RangeFetcher) Fetch(ctx context.Context, segment *models.Segment) ([]byte, error) {
	maxRetries := max(f.MaxRetries, 1)
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		f.logger.Debugf("Fetching %s range=%q (Attempt %d/%d)", segment.URL, segment.Range, attempt, maxRetries)

		data, err := f.fetchOnce(ctx, segment)
		if err == nil {
			return data, nil
		}
		if errors.Is(err, errNonRetryable) || ctx.Err() != nil {
			return nil, err
		}

		lastErr = fmt.Errorf("fetch attempt %d failed for %s: %w", attempt, segment.Key(), err)
		f.logger.Warnf("%v", lastErr)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return nil, fmt.Errorf("failed to fetch %s after %d attempts: %w", segment.Key(), maxRetries, lastErr)
}

func (f *RangeFetcher) fetchOnce(ctx context.Context, segment *models.Segment) ([]byte, error) {
	var start, end uint64
	if segment.HasByteRange {
		var err error
		if start, end, err = byterange.Parse(segment.Range); err != nil {
			return nil, fmt.Errorf("%w: %w", errNonRetryable, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, segment.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request for %s: %w", errNonRetryable, segment.URL, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if segment.HasByteRange {
		req.Header.Set("Range", "bytes="+segment.Range)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return nil, fmt.Errorf("%w: range %s not satisfiable for %s", errNonRetryable, segment.Range, segment.URL)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s not found", errNonRetryable, segment.URL)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent:
		return nil, fmt.Errorf("received non-2xx status: %d", resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if segment.HasByteRange {
		// Never buffer past the requested range, even when the origin sends the whole resource.
		limit := end - start + 1
		if resp.StatusCode == http.StatusOK {
			limit = end + 1
		}
		body = io.LimitReader(resp.Body, int64(min(limit, math.MaxInt64)))
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed while reading body: %w", err)
	}

	// An origin ignoring the Range header answers 200 with the full resource.
	if segment.HasByteRange && resp.StatusCode == http.StatusOK {
		if start >= uint64(len(data)) {
			return nil, fmt.Errorf("%w: range %s beyond the %d byte resource %s", errNonRetryable, segment.Range, len(data), segment.URL)
		}
		data = data[start:min(end+1, uint64(len(data)))]
	}

	f.logger.Debugf("Fetched %d bytes from %s", len(data), segment.Key())
	return data, nil
}
