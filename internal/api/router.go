package api

import (
	"dashsidx/internal/logger"
	"dashsidx/internal/segmentbase"
	"dashsidx/internal/session"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// API serves the segment index of configured channels over HTTP.
type API struct {
	sessionMgr *session.Manager
	logger     logger.Logger
}

// IndexResponse is the JSON view of a channel's segment table.
type IndexResponse struct {
	Channel         string         `json:"channel"`
	Manifest        string         `json:"manifest"`
	Representation  string         `json:"representation"`
	AverageDuration float64        `json:"averageDuration"`
	Init            *SegmentRef    `json:"init,omitempty"`
	Segments        []SegmentEntry `json:"segments"`
}

// SegmentRef is a fetchable URL narrowed to an optional byte range.
type SegmentRef struct {
	URL   string `json:"url"`
	Range string `json:"range,omitempty"`
}

// SegmentEntry is one row of the segment table.
type SegmentEntry struct {
	Index     int     `json:"index"`
	Timestamp float64 `json:"timestamp"`
	Duration  float64 `json:"duration"`
	URL       string  `json:"url"`
	Range     string  `json:"range"`
}

// New returns the router for all API routes.
func New(sessionMgr *session.Manager, log logger.Logger) http.Handler {
	api := &API{
		sessionMgr: sessionMgr,
		logger:     log,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /master.m3u8", api.handleMasterPlaylist)
	mux.HandleFunc("GET /channels/{channelId}/playlist.m3u8", api.handleMediaPlaylist)
	mux.HandleFunc("GET /channels/{channelId}/index", api.handleIndex)
	mux.HandleFunc("GET /channels/{channelId}/segment", api.handleSegment)

	return mux
}

func (a *API) handleMasterPlaylist(w http.ResponseWriter, r *http.Request) {
	playlist, err := a.sessionMgr.MasterPlaylist(r.Context(), func(channelId string) string {
		return fmt.Sprintf("channels/%s/playlist.m3u8", channelId)
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to generate master playlist: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Write([]byte(playlist))
}

func (a *API) handleMediaPlaylist(w http.ResponseWriter, r *http.Request) {
	channelId := r.PathValue("channelId")

	playlist, err := a.sessionMgr.MediaPlaylist(r.Context(), channelId)
	if err != nil {
		a.sessionError(w, channelId, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Write([]byte(playlist))
}

func (a *API) handleIndex(w http.ResponseWriter, r *http.Request) {
	channelId := r.PathValue("channelId")
	ch, err := a.sessionMgr.GetOrCreate(r.Context(), channelId)
	if err != nil {
		a.sessionError(w, channelId, err)
		return
	}

	seq := ch.Sequence
	resp := IndexResponse{
		Channel:         ch.ID,
		Manifest:        ch.ManifestURL,
		Representation:  ch.Representation.ID,
		AverageDuration: seq.AverageSegmentDuration(),
		Segments:        make([]SegmentEntry, 0, seq.Len()),
	}
	if init := seq.GetInitSegment(); init != nil {
		resp.Init = &SegmentRef{URL: init.URL, Range: init.Range}
	}
	for it := seq.Begin(); !it.Equals(seq.End()); it.Next() {
		entry := SegmentEntry{
			Index:     it.Index(),
			Timestamp: it.SegmentTimestamp(seq),
			Duration:  it.SegmentDuration(seq),
		}
		if segment := it.Get(); segment != nil {
			entry.URL = segment.URL
			entry.Range = segment.Range
		}
		resp.Segments = append(resp.Segments, entry)
	}

	a.writeJSON(w, resp)
}

func (a *API) handleSegment(w http.ResponseWriter, r *http.Request) {
	channelId := r.PathValue("channelId")
	t, err := strconv.ParseFloat(r.URL.Query().Get("t"), 64)
	if err != nil || t < 0 {
		http.Error(w, "Query parameter 't' must be a non-negative number of seconds", http.StatusBadRequest)
		return
	}

	ch, err := a.sessionMgr.GetOrCreate(r.Context(), channelId)
	if err != nil {
		a.sessionError(w, channelId, err)
		return
	}

	seq := ch.Sequence
	it := seq.SegmentForTime(t)
	segment := it.Get()
	if segment == nil {
		http.Error(w, fmt.Sprintf("No segment at %.3fs", t), http.StatusNotFound)
		return
	}

	a.writeJSON(w, SegmentEntry{
		Index:     it.Index(),
		Timestamp: it.SegmentTimestamp(seq),
		Duration:  it.SegmentDuration(seq),
		URL:       segment.URL,
		Range:     segment.Range,
	})
}

func (a *API) sessionError(w http.ResponseWriter, channelId string, err error) {
	switch {
	case errors.Is(err, session.ErrUnknownChannel):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, segmentbase.ErrNoIndexAvailable):
		a.logger.Warnf("No segment index for channel %s: %v", channelId, err)
		http.Error(w, fmt.Sprintf("Segment index unavailable: %v", err), http.StatusBadGateway)
	default:
		a.logger.Warnf("Failed to load channel %s: %v", channelId, err)
		http.Error(w, fmt.Sprintf("Failed to load channel: %v", err), http.StatusBadGateway)
	}
}

func (a *API) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Errorf("Failed to write response: %v", err)
	}
}
