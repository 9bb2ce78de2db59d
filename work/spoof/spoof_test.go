package spoof

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"gamedvr/work/client"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const origin = "https://www.streameast.gg"

func TestRewriteNestedPlaylists(t *testing.T) {
	body := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-STREAM-INF:BANDWIDTH=2000000",
		"720p.m3u8",
	}, "\n")

	out := Rewrite(body, "https://cdn.example.com/live/master.m3u8", origin)

	assert.Contains(t, out, "/spoof/playlist?url=https://cdn.example.com/live/720p.m3u8&origin="+origin)
	assert.Contains(t, out, "#EXT-X-STREAM-INF:BANDWIDTH=2000000")
}

func TestRewriteDisguisedPlaylistExtension(t *testing.T) {
	body := "#EXTM3U\nchunks.css?token=abc"

	out := Rewrite(body, "https://cdn.example.com/live/master.css", origin)

	assert.Contains(t, out, "/spoof/playlist?url=https://cdn.example.com/live/chunks.css?token=abc&origin="+origin)
}

func TestRewriteAbsoluteSegments(t *testing.T) {
	body := strings.Join([]string{
		"#EXTM3U",
		"#EXTINF:6.0,",
		"https://cdn.example.com/seg/0001.ts",
		"#EXTINF:6.0,",
		"https://cdn.example.com/seg/0002.ts",
	}, "\n")

	out := Rewrite(body, "https://cdn.example.com/live/media.m3u8", origin)

	assert.Contains(t, out, "/spoof/ts?url=https://cdn.example.com/seg/0001.ts&origin="+origin)
	assert.Contains(t, out, "/spoof/ts?url=https://cdn.example.com/seg/0002.ts&origin="+origin)
	// comment lines stay untouched
	assert.Contains(t, out, "#EXTINF:6.0,")
}

func TestRewriteRelativeSegments(t *testing.T) {
	body := strings.Join([]string{
		"#EXTM3U",
		"#EXTINF:6.0,",
		"0001.ts",
	}, "\n")

	out := Rewrite(body, "https://cdn.example.com/live/media.m3u8", origin)

	assert.Contains(t, out, "/spoof/ts?url=https://cdn.example.com/live/0001.ts&origin="+origin)
	assert.NotContains(t, out, "/spoof/ts?url=https://cdn.example.com/live/#EXTINF")
}

func TestRewriteKeyURI(t *testing.T) {
	body := strings.Join([]string{
		"#EXTM3U",
		`#EXT-X-KEY:METHOD=AES-128,URI="/keys/77.key"`,
		"#EXTINF:6.0,",
		"0001.ts",
	}, "\n")

	out := Rewrite(body, "https://cdn.example.com/live/media.m3u8", origin)

	assert.Contains(t, out, `URI="/spoof/key?url=https://cdn.example.com/keys/77.key&origin=`+origin)
}

func newTestHandler(timeout time.Duration) *Handler {
	return NewHandler(client.NewSpoofClient("test-agent", timeout))
}

func TestPlaylistSpoofsOriginHeaders(t *testing.T) {
	var gotReferer, gotOrigin string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotOrigin = r.Header.Get("Origin")
		w.Write([]byte("#EXTM3U\n0001.ts"))
	}))
	defer upstream.Close()

	h := newTestHandler(5 * time.Second)
	req := httptest.NewRequest(http.MethodGet, "/spoof/playlist?url="+url.QueryEscape(upstream.URL+"/live/media.m3u8")+"&origin="+url.QueryEscape(origin), nil)
	rec := httptest.NewRecorder()
	h.Playlist(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, origin+"/", gotReferer)
	assert.Equal(t, origin, gotOrigin)
	assert.Equal(t, "application/vnd.apple.mpegurl", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "/spoof/ts?url="+upstream.URL+"/live/0001.ts&origin="+origin)
}

func TestPlaylistFollowsRedirectForBase(t *testing.T) {
	mux := http.NewServeMux()
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	mux.HandleFunc("/live/media.m3u8", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, upstream.URL+"/moved/media.m3u8", http.StatusFound)
	})
	mux.HandleFunc("/moved/media.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n0001.ts"))
	})

	h := newTestHandler(5 * time.Second)
	req := httptest.NewRequest(http.MethodGet, "/spoof/playlist?url="+url.QueryEscape(upstream.URL+"/live/media.m3u8")+"&origin="+url.QueryEscape(origin), nil)
	rec := httptest.NewRecorder()
	h.Playlist(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	// segments resolve against the redirect target, not the original URL
	assert.Contains(t, rec.Body.String(), "/spoof/ts?url="+upstream.URL+"/moved/0001.ts&origin="+origin)
}

func TestPlaylistPassesThroughUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	h := newTestHandler(5 * time.Second)
	req := httptest.NewRequest(http.MethodGet, "/spoof/playlist?url="+url.QueryEscape(upstream.URL+"/x.m3u8")+"&origin=o", nil)
	rec := httptest.NewRecorder()
	h.Playlist(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPlaylistRequiresParams(t *testing.T) {
	h := newTestHandler(5 * time.Second)
	req := httptest.NewRequest(http.MethodGet, "/spoof/playlist?url=x", nil)
	rec := httptest.NewRecorder()
	h.Playlist(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaylistTimeoutMapsTo408(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer upstream.Close()

	h := newTestHandler(30 * time.Millisecond)
	req := httptest.NewRequest(http.MethodGet, "/spoof/playlist?url="+url.QueryEscape(upstream.URL+"/x.m3u8")+"&origin=o", nil)
	rec := httptest.NewRecorder()
	h.Playlist(rec, req)

	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
}

func TestTsStreamsSegment(t *testing.T) {
	payload := strings.Repeat("x", 4096)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer upstream.Close()

	h := newTestHandler(5 * time.Second)
	req := httptest.NewRequest(http.MethodGet, "/spoof/ts?url="+url.QueryEscape(upstream.URL+"/seg.ts")+"&origin=o", nil)
	rec := httptest.NewRecorder()
	h.Ts(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/MP2T", rec.Header().Get("Content-Type"))
	assert.Equal(t, payload, rec.Body.String())
}

func TestKeyFetchesWithSpoofedOrigin(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Origin") != origin {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("sixteenbytekey!!"))
	}))
	defer upstream.Close()

	h := newTestHandler(5 * time.Second)
	req := httptest.NewRequest(http.MethodGet, "/spoof/key?url="+url.QueryEscape(upstream.URL+"/key")+"&origin="+url.QueryEscape(origin), nil)
	rec := httptest.NewRecorder()
	h.Key(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sixteenbytekey!!", rec.Body.String())
}
