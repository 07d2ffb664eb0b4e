package session

import (
	"context"
	"dashsidx/internal/cache"
	"dashsidx/internal/config"
	"dashsidx/internal/dash"
	"dashsidx/internal/hls"
	"dashsidx/internal/logger"
	"dashsidx/internal/segmentbase"
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownChannel is returned for channel ids missing from the configuration.
var ErrUnknownChannel = errors.New("unknown channel")

// Channel holds the loaded segment table of one configured channel.
type Channel struct {
	ID             string
	Name           string
	ManifestURL    string // The final URL after any redirects
	Representation dash.Representation
	Sequence       *segmentbase.Sequence
}

// Manager lazily builds and retains one Sequence per configured channel.
type Manager struct {
	mutex      sync.RWMutex
	channels   map[string]*Channel
	logger     logger.Logger
	cfg        *config.Config
	dashClient *dash.Client
	indexCache *cache.IndexCache
}

// NewManager creates a new session manager. Index bytes fetched for any channel go
// through a shared cache.
func NewManager(log logger.Logger, cfg *config.Config, dashClient *dash.Client) (*Manager, error) {
	fetcher := dash.NewRangeFetcher(dashClient.HttpClient(), log, cfg.UserAgent)
	fetcher.RequestTimeout = cfg.RequestTimeout
	fetcher.MaxRetries = cfg.MaxRetries

	indexCache, err := cache.New(fetcher, cfg.CacheSize, cfg.CacheTTL, log)
	if err != nil {
		return nil, err
	}

	return &Manager{
		channels:   make(map[string]*Channel),
		logger:     log,
		cfg:        cfg,
		dashClient: dashClient,
		indexCache: indexCache,
	}, nil
}

// Start begins the background workers for the manager's components.
func (m *Manager) Start() {
	m.indexCache.Start()
}

// Stop drops every loaded channel and shuts down background workers.
func (m *Manager) Stop() {
	m.logger.Infof("Stopping session manager...")
	m.mutex.Lock()
	m.channels = make(map[string]*Channel)
	m.mutex.Unlock()

	m.indexCache.Stop()
	m.logger.Infof("Session manager stopped.")
}

// GetOrCreate retrieves a loaded channel or loads it: the manifest is fetched, the
// configured representation described and its segment index loaded. Channels whose
// index cannot be loaded are not retained, so the next call tries again.
func (m *Manager) GetOrCreate(ctx context.Context, channelId string) (*Channel, error) {
	m.mutex.RLock()
	ch, found := m.channels[channelId]
	m.mutex.RUnlock()

	if found {
		return ch, nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	if ch, found = m.channels[channelId]; found {
		return ch, nil
	}

	channelCfg := m.cfg.FindChannel(channelId)
	if channelCfg == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownChannel, channelId)
	}
	m.logger.Infof("No session found for channel ID: %s. Loading representation '%s'.", channelId, channelCfg.Representation)

	mpd, finalUrl, err := m.dashClient.FetchAndParseMPD(ctx, channelCfg.ManifestURL, m.cfg.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest for channel '%s': %w", channelId, err)
	}

	desc, err := mpd.Describe(finalUrl, channelCfg.Representation)
	if err != nil {
		return nil, fmt.Errorf("channel '%s': %w", channelId, err)
	}

	seq := segmentbase.New(ctx, desc, m.indexCache, m.logger, segmentbase.WithMaxProbes(m.cfg.MaxProbes))
	if err := seq.Err(); err != nil {
		return nil, fmt.Errorf("channel '%s': %w", channelId, err)
	}

	ch = &Channel{
		ID:          channelId,
		Name:        channelCfg.Name,
		ManifestURL: finalUrl,
		Sequence:    seq,
	}
	if rep := mpd.FindRepresentation(channelCfg.Representation); rep != nil {
		ch.Representation = *rep
	}

	m.channels[channelId] = ch
	m.logger.Infof("Loaded channel: %s (%s) with %d segments", channelCfg.Name, channelId, seq.Len())
	return ch, nil
}

// MasterPlaylist lists every channel that can be loaded as a variant; playlistURI
// maps a channel id to its media playlist URI. Channels that fail to load are skipped.
func (m *Manager) MasterPlaylist(ctx context.Context, playlistURI func(channelId string) string) (string, error) {
	var variants []hls.Variant
	for _, c := range m.cfg.Channels {
		ch, err := m.GetOrCreate(ctx, c.Id)
		if err != nil {
			m.logger.Warnf("Skipping channel %s in master playlist: %v", c.Id, err)
			continue
		}
		variants = append(variants, hls.Variant{
			Bandwidth: ch.Representation.Bandwidth,
			Codecs:    ch.Representation.Codecs,
			Width:     ch.Representation.Width,
			Height:    ch.Representation.Height,
			URI:       playlistURI(ch.ID),
		})
	}
	return hls.GenerateMasterPlaylist(variants)
}

// MediaPlaylist returns the byte-range media playlist of a channel.
func (m *Manager) MediaPlaylist(ctx context.Context, channelId string) (string, error) {
	ch, err := m.GetOrCreate(ctx, channelId)
	if err != nil {
		return "", err
	}
	return hls.GenerateMediaPlaylist(ch.Sequence)
}
