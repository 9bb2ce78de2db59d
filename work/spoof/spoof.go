// Package spoof is the rewrite proxy at the heart of playback: it fetches
// upstream HLS resources while claiming the origin the source site expects,
// and rewrites playlist bodies so every nested URL routes back through the
// proxy itself.
package spoof

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gamedvr/work/client"
	"gamedvr/work/logger"
	"gamedvr/work/metrics"

	"github.com/grafana/regexp"
)

var (
	// basePattern strips the playlist filename (and query) off a URL,
	// leaving the directory the playlist's relative entries resolve
	// against.
	basePattern = regexp.MustCompile(`\/[^/]*\.(m3u8|css)(\?.*)?$`)

	// nestedPattern matches lines referencing a nested playlist. Some
	// sources disguise playlists with a .css extension to dodge blockers.
	nestedPattern = regexp.MustCompile(`(?m)(^.+(m3u8|css)(\?.*)?$)`)

	// absoluteSegmentPattern and relativeSegmentPattern match media
	// segment lines; everything except comments is a segment URL.
	absoluteSegmentPattern = regexp.MustCompile(`(?m)^https://.*`)
	relativeSegmentPattern = regexp.MustCompile(`(?m)^[^#].*`)

	keyURIPattern = regexp.MustCompile(`URI="([^"]+)`)
)

// Handler serves the three proxy endpoints: playlist (rewritten), ts
// (streamed segments), and key (decryption keys).
type Handler struct {
	client *client.SpoofClient
}

func NewHandler(c *client.SpoofClient) *Handler {
	return &Handler{client: c}
}

// Playlist fetches an upstream playlist with the spoofed origin and
// rewrites its body line by line: nested playlists route back through
// /spoof/playlist, segment lines through /spoof/ts, and encryption key
// URIs through /spoof/key.
func (h *Handler) Playlist(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	origin := r.URL.Query().Get("origin")
	if rawURL == "" || origin == "" {
		metrics.ProxyRequests.WithLabelValues("playlist", "4xx").Inc()
		http.Error(w, "url and origin are required", http.StatusBadRequest)
		return
	}

	resp, err := h.client.GetWithOrigin(r.Context(), rawURL, origin)
	if err != nil {
		h.upstreamError(w, "playlist", origin, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.ProxyRequests.WithLabelValues("playlist", statusClass(resp.StatusCode)).Inc()
		http.Error(w, http.StatusText(resp.StatusCode), resp.StatusCode)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.upstreamError(w, "playlist", origin, err)
		return
	}

	// Redirects move the playlist's directory; relative entries must
	// resolve against where the content actually came from.
	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL.String() != rawURL {
		finalURL = resp.Request.URL.String()
	}

	rewritten := Rewrite(string(body), finalURL, origin)

	metrics.ProxyRequests.WithLabelValues("playlist", "2xx").Inc()
	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Write([]byte(rewritten))
}

// Rewrite transforms a playlist body so every URL in it points back at the
// proxy. The base directory is derived from sourceURL, which must be the
// URL the body was actually fetched from after any redirects.
func Rewrite(contents, sourceURL, origin string) string {
	baseURL := basePattern.ReplaceAllString(sourceURL, "")
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	switch {
	case strings.Contains(contents, ".m3u8") || strings.Contains(contents, ".css"):
		contents = nestedPattern.ReplaceAllString(contents,
			fmt.Sprintf("/spoof/playlist?url=%s$1&origin=%s", baseURL, origin))
	case strings.Contains(contents, "https://"):
		contents = absoluteSegmentPattern.ReplaceAllString(contents,
			fmt.Sprintf("/spoof/ts?url=$0&origin=%s", origin))
	default:
		contents = relativeSegmentPattern.ReplaceAllString(contents,
			fmt.Sprintf("/spoof/ts?url=%s$0&origin=%s", baseURL, origin))
	}

	if strings.Contains(contents, "EXT-X-KEY") {
		host := ""
		if u, err := url.Parse(sourceURL); err == nil {
			host = u.Host
		}
		contents = keyURIPattern.ReplaceAllString(contents,
			fmt.Sprintf(`URI="/spoof/key?url=https://%s$1&origin=%s`, host, origin))
	}

	return contents
}

// Ts streams one media segment through the proxy.
func (h *Handler) Ts(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	origin := r.URL.Query().Get("origin")

	resp, err := h.client.GetWithOrigin(r.Context(), rawURL, origin)
	if err != nil {
		h.upstreamError(w, "ts", origin, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.ProxyRequests.WithLabelValues("ts", statusClass(resp.StatusCode)).Inc()
		http.Error(w, http.StatusText(resp.StatusCode), resp.StatusCode)
		return
	}

	metrics.ProxyRequests.WithLabelValues("ts", "2xx").Inc()
	w.Header().Set("Content-Type", "video/MP2T")
	if n, err := io.Copy(w, resp.Body); err == nil {
		metrics.ProxyBytes.Add(float64(n))
	}
}

// Key fetches a decryption key with the spoofed origin.
func (h *Handler) Key(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	origin := r.URL.Query().Get("origin")

	resp, err := h.client.GetWithOrigin(r.Context(), rawURL, origin)
	if err != nil {
		h.upstreamError(w, "key", origin, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.ProxyRequests.WithLabelValues("key", statusClass(resp.StatusCode)).Inc()
		http.Error(w, http.StatusText(resp.StatusCode), resp.StatusCode)
		return
	}

	metrics.ProxyRequests.WithLabelValues("key", "2xx").Inc()
	io.Copy(w, resp.Body)
}

// upstreamError maps a transport failure to a response: timeouts get 408,
// everything else gets 500 with the origin logged for debugging blocked
// sources.
func (h *Handler) upstreamError(w http.ResponseWriter, kind, origin string, err error) {
	if isTimeout(err) {
		metrics.ProxyRequests.WithLabelValues(kind, "timeout").Inc()
		http.Error(w, "Request timed out", http.StatusRequestTimeout)
		return
	}
	logger.Error("Upstream fetch failed, origin %s: %v", origin, err)
	metrics.ProxyRequests.WithLabelValues(kind, "error").Inc()
	http.Error(w, "Error occurred", http.StatusInternalServerError)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var uerr *url.Error
	return errors.As(err, &uerr) && uerr.Timeout()
}

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
