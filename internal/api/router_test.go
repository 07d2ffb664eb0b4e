package api

import (
	"bytes"
	"dashsidx/internal/config"
	"dashsidx/internal/dash"
	"dashsidx/internal/session"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger is a no-op logger for testing purposes.
type mockLogger struct{}

func (m *mockLogger) Debugf(format string, v ...interface{}) {}
func (m *mockLogger) Infof(format string, v ...interface{})  {}
func (m *mockLogger) Warnf(format string, v ...interface{})  {}
func (m *mockLogger) Errorf(format string, v ...interface{}) {}

const manifestTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static">
  <BaseURL>content/</BaseURL>
  <Period>
    <AdaptationSet contentType="video" mimeType="video/mp4">
      <SegmentBase indexRange="%s">
        <Initialization range="%s"/>
      </SegmentBase>
      <Representation id="v1" bandwidth="2500000" codecs="avc1.64001F" width="1280" height="720">
        <BaseURL>media.mp4</BaseURL>
      </Representation>
      <Representation id="gone" bandwidth="800000">
        <BaseURL>gone.mp4</BaseURL>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

// setup serves an on-demand file of two 5s subsegments (600 and 400 bytes) behind a
// manifest and returns the API under test with the offset of the first subsegment.
func setup(t *testing.T) (*httptest.Server, string, uint64) {
	t.Helper()
	var ftyp, index bytes.Buffer
	require.NoError(t, mp4.NewFtyp("iso6", 0, []string{"iso6", "dash"}).Encode(&ftyp))
	require.NoError(t, (&mp4.SidxBox{
		Timescale: 48000,
		SidxRefs: []mp4.SidxRef{
			{ReferencedSize: 600, SubSegmentDuration: 240000},
			{ReferencedSize: 400, SubSegmentDuration: 240000},
		},
	}).Encode(&index))
	media := append(append(ftyp.Bytes(), index.Bytes()...), make([]byte, 1000)...)
	indexEnd := ftyp.Len() + index.Len() - 1
	manifest := fmt.Sprintf(manifestTemplate,
		fmt.Sprintf("%d-%d", ftyp.Len(), indexEnd), fmt.Sprintf("0-%d", ftyp.Len()-1))

	mux := http.NewServeMux()
	mux.HandleFunc("/vod/manifest.mpd", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(manifest))
	})
	mux.HandleFunc("/vod/content/media.mp4", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "media.mp4", time.Time{}, bytes.NewReader(media))
	})
	origin := httptest.NewServer(mux)
	t.Cleanup(origin.Close)

	manifestURL := origin.URL + "/vod/manifest.mpd"
	cfg := &config.Config{
		RequestTimeout: time.Second,
		MaxRetries:     1,
		MaxProbes:      8,
		CacheSize:      16,
		CacheTTL:       time.Minute,
		Channels: []config.Channel{
			{Name: "Feature", Id: "feature", ManifestURL: manifestURL, Representation: "v1"},
			{Name: "Gone", Id: "gone", ManifestURL: manifestURL, Representation: "gone"},
		},
	}
	mgr, err := session.NewManager(&mockLogger{}, cfg, dash.NewClient(&mockLogger{}))
	require.NoError(t, err)

	server := httptest.NewServer(New(mgr, &mockLogger{}))
	t.Cleanup(server.Close)
	return server, origin.URL + "/vod/content/media.mp4", uint64(indexEnd + 1)
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestAPI_Index(t *testing.T) {
	server, mediaURL, first := setup(t)

	resp, body := get(t, server.URL+"/channels/feature/index")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var index IndexResponse
	require.NoError(t, json.Unmarshal(body, &index))
	assert.Equal(t, "feature", index.Channel)
	assert.Equal(t, "v1", index.Representation)
	assert.InDelta(t, 5.0, index.AverageDuration, 1e-9)
	require.NotNil(t, index.Init)
	assert.Equal(t, mediaURL, index.Init.URL)

	assert.Equal(t, []SegmentEntry{
		{Index: 0, Timestamp: 0, Duration: 5, URL: mediaURL, Range: fmt.Sprintf("%d-%d", first, first+599)},
		{Index: 1, Timestamp: 5, Duration: 5, URL: mediaURL, Range: fmt.Sprintf("%d-%d", first+600, first+999)},
	}, index.Segments)
}

func TestAPI_SegmentForTime(t *testing.T) {
	server, mediaURL, first := setup(t)

	t.Run("inside second segment", func(t *testing.T) {
		resp, body := get(t, server.URL+"/channels/feature/segment?t=7.25")
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var entry SegmentEntry
		require.NoError(t, json.Unmarshal(body, &entry))
		assert.Equal(t, 1, entry.Index)
		assert.Equal(t, mediaURL, entry.URL)
		assert.Equal(t, fmt.Sprintf("%d-%d", first+600, first+999), entry.Range)
	})

	t.Run("past the end", func(t *testing.T) {
		resp, _ := get(t, server.URL+"/channels/feature/segment?t=10")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad time", func(t *testing.T) {
		resp, _ := get(t, server.URL+"/channels/feature/segment?t=abc")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp, _ = get(t, server.URL+"/channels/feature/segment")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPI_Playlists(t *testing.T) {
	server, mediaURL, first := setup(t)

	resp, body := get(t, server.URL+"/channels/feature/playlist.m3u8")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "application/vnd.apple.mpegurl", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), fmt.Sprintf("#EXT-X-BYTERANGE:600@%d\n%s\n", first, mediaURL))

	resp, body = get(t, server.URL+"/master.m3u8")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "channels/feature/playlist.m3u8")
	assert.False(t, strings.Contains(string(body), "channels/gone/"))
}

func TestAPI_Errors(t *testing.T) {
	server, _, _ := setup(t)

	resp, _ := get(t, server.URL+"/channels/unknown/index")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := get(t, server.URL+"/channels/gone/index")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "Segment index unavailable")
}
