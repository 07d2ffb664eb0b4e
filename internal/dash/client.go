package dash

import (
	"context"
	"dashsidx/internal/logger"
	"dashsidx/internal/models"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client is the DASH client responsible for fetching manifests from the origin server.
type Client struct {
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates a new DASH client.
func NewClient(log logger.Logger) *Client {
	transport := &http.Transport{
		ResponseHeaderTimeout: 3 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: log,
	}
}

// FetchAndParseMPD fetches the MPD from a given URL and parses it into the MPD struct.
// It also returns the final URL after a redirect, which heads the base URL chain.
func (c *Client) FetchAndParseMPD(ctx context.Context, initialUrl, userAgent string) (*MPD, string, error) {
	c.logger.Debugf("Fetching MPD from URL: %s", initialUrl)

	resp, err := c.get(ctx, initialUrl, userAgent)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch MPD from %s: %w", initialUrl, err)
	}
	defer resp.Body.Close()

	finalUrl := initialUrl
	if resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusMovedPermanently {
		location, err := resp.Location()
		if err != nil {
			return nil, "", fmt.Errorf("redirect location error: %w", err)
		}
		finalUrl = location.String()
		c.logger.Debugf("Redirected to: %s", finalUrl)

		resp, err = c.get(ctx, finalUrl, userAgent)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch redirected MPD from %s: %w", finalUrl, err)
		}
		defer resp.Body.Close()
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to fetch MPD: received status code %d from %s", resp.StatusCode, finalUrl)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read MPD response body: %w", err)
	}

	var mpd MPD
	if err := xml.Unmarshal(data, &mpd); err != nil {
		c.logger.Errorf("Failed to unmarshal MPD XML from %s: %v", finalUrl, err)
		return nil, "", fmt.Errorf("failed to unmarshal MPD XML: %w", err)
	}

	c.logger.Debugf("Successfully fetched and parsed MPD for profile %s from %s", mpd.Profiles, finalUrl)
	return &mpd, finalUrl, nil
}

func (c *Client) get(ctx context.Context, u, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return c.httpClient.Do(req)
}

// HttpClient returns the underlying http.Client instance.
func (c *Client) HttpClient() *http.Client {
	return c.httpClient
}

// resolveURL resolves a path against a base URL, handling potential errors.
func resolveURL(base *url.URL, path string) (*url.URL, error) {
	resolvedPath, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse path '%s': %w", path, err)
	}
	if base == nil {
		return resolvedPath, nil
	}
	return base.ResolveReference(resolvedPath), nil
}

// ResolveChain folds a base URL chain, each element resolved against the ones before it.
func ResolveChain(chain []string) (*url.URL, error) {
	if len(chain) == 0 {
		return nil, errors.New("empty base URL chain")
	}

	var current *url.URL
	for _, u := range chain {
		next, err := resolveURL(current, u)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve base URL chain: %w", err)
		}
		current = next
	}
	return current, nil
}

// ResolveMedia returns the media resource addressed by the base URL chain, unranged.
func ResolveMedia(chain []string) (*models.Segment, error) {
	u, err := ResolveChain(chain)
	if err != nil {
		return nil, err
	}
	return &models.Segment{URL: u.String()}, nil
}

// ToSegment resolves the URLType against the base URL chain. An empty sourceURL
// addresses the media resource itself; a range attribute narrows the segment.
func (u *URLType) ToSegment(chain []string) (*models.Segment, error) {
	var base *url.URL
	if len(chain) > 0 {
		var err error
		if base, err = ResolveChain(chain); err != nil {
			return nil, err
		}
	}
	if base == nil && u.SourceURL == "" {
		return nil, errors.New("URL has neither a sourceURL nor a base URL")
	}

	target := base
	if u.SourceURL != "" {
		var err error
		if target, err = resolveURL(base, u.SourceURL); err != nil {
			return nil, err
		}
	}

	segment := &models.Segment{URL: target.String()}
	if u.Range != "" {
		segment.SetRange(u.Range)
	}
	return segment, nil
}
