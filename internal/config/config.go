package config

import (
	"dashsidx/internal/dash"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultMaxRetries     = 3
	defaultMaxProbes      = 64
	defaultCacheSize      = 128
	defaultCacheTTL       = 10 * time.Minute
)

// Channel defines the final, processed structure for a single channel: one
// SegmentBase representation of one manifest.
type Channel struct {
	Name           string
	Id             string
	ManifestURL    string
	Representation string
}

// Config holds the fully processed application configuration.
type Config struct {
	Name           string
	UserAgent      string
	RequestTimeout time.Duration
	MaxRetries     int
	MaxProbes      int
	CacheSize      int
	CacheTTL       time.Duration
	Channels       []Channel
}

// FindChannel returns the channel with the given id, or nil.
func (c *Config) FindChannel(id string) *Channel {
	for i := range c.Channels {
		if c.Channels[i].Id == id {
			return &c.Channels[i]
		}
	}
	return nil
}

// rawChannel is used for intermediate unmarshaling from the JSON file.
type rawChannel struct {
	Name           string `json:"Name"`
	Id             string `json:"Id"`
	ManifestURL    string `json:"Manifest"`
	Representation string `json:"Representation"`
}

// rawConfig is the intermediate structure that maps directly to the JSON file.
// Durations are strings accepted in both ISO-8601 ("PT5S") and Go ("5s") form.
type rawConfig struct {
	Name           string       `json:"Name"`
	UserAgent      string       `json:"UserAgent"`
	RequestTimeout string       `json:"RequestTimeout"`
	MaxRetries     int          `json:"MaxRetries"`
	MaxProbes      int          `json:"MaxProbes"`
	CacheSize      int          `json:"CacheSize"`
	CacheTTL       string       `json:"CacheTTL"`
	Channels       []rawChannel `json:"Channels"`
}

// LoadConfig reads and parses the configuration file from the given path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates raw JSON configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var rawCfg rawConfig
	if err := json.Unmarshal(data, &rawCfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config JSON: %w", err)
	}

	requestTimeout, err := parseDuration("RequestTimeout", rawCfg.RequestTimeout, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("CacheTTL", rawCfg.CacheTTL, defaultCacheTTL)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(rawCfg.Channels))
	processedChannels := make([]Channel, 0, len(rawCfg.Channels))
	for i, rc := range rawCfg.Channels {
		id := strings.TrimSpace(rc.Id)
		if id == "" {
			return nil, fmt.Errorf("channel #%d has no Id", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate channel Id '%s'", id)
		}
		seen[id] = struct{}{}

		manifest := strings.TrimSpace(rc.ManifestURL)
		if manifest == "" {
			return nil, fmt.Errorf("channel '%s' has no Manifest URL", id)
		}
		if strings.TrimSpace(rc.Representation) == "" {
			return nil, fmt.Errorf("channel '%s' has no Representation", id)
		}

		processedChannels = append(processedChannels, Channel{
			Name:           rc.Name,
			Id:             id,
			ManifestURL:    manifest,
			Representation: strings.TrimSpace(rc.Representation),
		})
	}

	return &Config{
		Name:           rawCfg.Name,
		UserAgent:      rawCfg.UserAgent,
		RequestTimeout: requestTimeout,
		MaxRetries:     orDefault(rawCfg.MaxRetries, defaultMaxRetries),
		MaxProbes:      orDefault(rawCfg.MaxProbes, defaultMaxProbes),
		CacheSize:      orDefault(rawCfg.CacheSize, defaultCacheSize),
		CacheTTL:       cacheTTL,
		Channels:       processedChannels,
	}, nil
}

func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := dash.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s': %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s '%s': must be positive", field, value)
	}
	return d, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
