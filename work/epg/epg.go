// Package epg packs upcoming games into a stable set of virtual channels
// so guide-driven players can tune a league channel instead of hunting for
// a game.
package epg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gamedvr/work/config"
	"gamedvr/work/games"
	"gamedvr/work/logger"
)

// Allocator assigns channel ids to games and keeps the assignments
// persisted on a refresh cadence.
type Allocator struct {
	store *games.Store
	cfg   *config.Config
	stop  chan bool
}

func NewAllocator(store *games.Store, cfg *config.Config) *Allocator {
	return &Allocator{
		store: store,
		cfg:   cfg,
		stop:  make(chan bool, 1),
	}
}

// Allocate assigns each game the lowest-numbered league channel that is
// free at its start time. Games must already be sorted by start time; a
// channel slot is considered busy for the occupancy window after the game
// it last took. Slot lists only ever grow, so channel ids stay stable
// within one allocation pass.
func Allocate(list []games.Game, window time.Duration) []games.Game {
	slots := make(map[string][]time.Time)

	for i := range list {
		g := &list[i]
		free := slots[g.League]

		allocated := false
		for s := range free {
			if !free[s].After(g.GameTime) {
				free[s] = g.GameTime.Add(window)
				g.Channel = fmt.Sprintf("%s-%02d", g.League, s+1)
				allocated = true
				break
			}
		}
		if !allocated {
			slots[g.League] = append(free, g.GameTime.Add(window))
			g.Channel = fmt.Sprintf("%s-%02d", g.League, len(slots[g.League]))
		}
	}
	return list
}

// Update reallocates channels for every game from eight hours back (still
// possibly in progress) through a week out, and persists the assignments.
func (a *Allocator) Update(ctx context.Context) error {
	now := time.Now().UTC()
	list, err := a.store.GamesInWindow(now.Add(-8*time.Hour), now.Add(7*24*time.Hour))
	if err != nil {
		return err
	}

	list = Allocate(list, a.cfg.ChannelWindow)

	for _, g := range list {
		if err := a.store.SetChannel(g.ID, g.Channel); err != nil {
			return fmt.Errorf("persist channel for game %d: %w", g.ID, err)
		}
	}

	logger.Debug("{work/epg - Update} allocated channels for %d games", len(list))
	return nil
}

// RefreshLoop re-runs allocation on the configured interval until the
// context is done or StopRefresh is called.
func (a *Allocator) RefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.EpgRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.Update(ctx); err != nil {
				logger.Error("EPG update failed: %v", err)
			}
		case <-a.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// StopRefresh signals the refresh loop to terminate. Non-blocking.
func (a *Allocator) StopRefresh() {
	select {
	case a.stop <- true:
	default:
	}
}

// Lineup renders the allocated channels as an M3U playlist of tune-in
// URLs. Channels appear once each, ordered by first appearance in the
// allocation window.
func (a *Allocator) Lineup(baseURL string) (string, error) {
	now := time.Now().UTC()
	list, err := a.store.GamesInWindow(now.Add(-8*time.Hour), now.Add(7*24*time.Hour))
	if err != nil {
		return "", err
	}

	var (
		seen     = make(map[string]bool)
		playlist strings.Builder
	)
	playlist.Grow(len(list) * 80)
	playlist.WriteString("#EXTM3U\n")

	for _, g := range list {
		if g.Channel == "" || seen[g.Channel] {
			continue
		}
		seen[g.Channel] = true
		playlist.WriteString(fmt.Sprintf("#EXTINF:-1 tvg-id=%q tvg-name=%q group-title=%q,%s\n",
			g.Channel, g.Channel, g.League, g.Channel))
		playlist.WriteString(fmt.Sprintf("%s/channel/%s\n", baseURL, g.Channel))
	}

	return playlist.String(), nil
}
