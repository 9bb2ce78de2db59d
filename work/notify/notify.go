// Package notify covers the outbound side channels: push notifications
// about recordings and media library refresh webhooks. Everything here is
// fire-and-forget; a dead notification target must never affect a capture.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"gamedvr/work/client"
	"gamedvr/work/config"
	"gamedvr/work/logger"
)

const pushbulletURL = "https://api.pushbullet.com/v2/pushes"

type Notifier struct {
	cfg    *config.Config
	client *client.SpoofClient
}

func New(cfg *config.Config, c *client.SpoofClient) *Notifier {
	return &Notifier{cfg: cfg, client: c}
}

// Push sends a Pushbullet note. No-op without a token.
func (n *Notifier) Push(ctx context.Context, title, message string) {
	if n.cfg.PushbulletToken == "" {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"type":  "note",
		"title": title,
		"body":  message,
	})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pushbulletURL, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Access-Token", n.cfg.PushbulletToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		logger.Error("Pushbullet push failed: %v", err)
		return
	}
	resp.Body.Close()
}

// RefreshLibraries pokes Jellyfin and Plex so fresh recordings show up
// without waiting for a scheduled scan. Each target fails independently.
func (n *Notifier) RefreshLibraries(ctx context.Context) {
	if n.cfg.JellyfinURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.JellyfinURL+"/Library/Refresh", nil)
		if err == nil {
			req.Header.Set("X-Emby-Token", n.cfg.JellyfinToken)
			if resp, err := n.client.Do(req); err != nil {
				logger.Error("Jellyfin refresh failed: %v", err)
			} else {
				resp.Body.Close()
			}
		}
	}

	if n.cfg.PlexURL != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.cfg.PlexURL+"/library/sections/all/refresh", nil)
		if err == nil {
			req.Header.Set("X-Plex-Token", n.cfg.PlexToken)
			if resp, err := n.client.Do(req); err != nil {
				logger.Error("Plex refresh failed: %v", err)
			} else {
				resp.Body.Close()
			}
		}
	}
}
