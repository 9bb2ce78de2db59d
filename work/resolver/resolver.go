package resolver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"gamedvr/work/client"
	"gamedvr/work/config"
	"gamedvr/work/logger"
	"gamedvr/work/metrics"
	"gamedvr/work/provider"

	"github.com/grafov/m3u8"
)

// ErrNoStream is returned when every enabled provider timed out, errored,
// or failed validation.
var ErrNoStream = errors.New("no stream found")

// Stream is a validated resolution result: a proxy-relative playlist URL
// and the provider that produced it.
type Stream struct {
	URL      string
	Provider string
}

// Resolver fans a stream request out to every enabled provider, validates
// the candidates, and picks one by weighted random selection.
type Resolver struct {
	cfg      *config.Config
	registry *provider.Registry
	client   *client.SpoofClient
}

func New(cfg *config.Config, registry *provider.Registry, c *client.SpoofClient) *Resolver {
	return &Resolver{
		cfg:      cfg,
		registry: registry,
		client:   c,
	}
}

// Resolve finds a playable stream for a league and team. With a forced
// provider there is no race: that provider is called directly and its
// failure surfaces to the caller. Otherwise every enabled provider gets an
// independent attempt capped by the provider timeout, all attempts are
// joined, and one validated candidate is chosen by weight. When
// onlyHighQuality is set, baseline-weight providers sit the race out.
func (r *Resolver) Resolve(ctx context.Context, league, team, forced string, onlyHighQuality bool) (Stream, error) {
	if forced != "" {
		p, ok := r.registry.Lookup(forced)
		if !ok {
			return Stream{}, fmt.Errorf("unknown provider %q", forced)
		}
		url, err := p.GetStream(ctx, league, team)
		if err != nil {
			return Stream{}, fmt.Errorf("%s: %w", forced, err)
		}
		if err := r.sanityCheck(ctx, url); err != nil {
			return Stream{}, fmt.Errorf("%s: %w", forced, err)
		}
		return Stream{URL: url, Provider: p.Name()}, nil
	}

	providers := r.registry.Enabled(onlyHighQuality)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []Stream
	)
	for _, p := range providers {
		wg.Add(1)
		go func(p provider.Provider) {
			defer wg.Done()
			res := r.attempt(ctx, p, league, team)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	var valid []Stream
	for _, res := range results {
		if res.URL != "" {
			valid = append(valid, res)
		}
	}
	if len(valid) == 0 {
		return Stream{}, fmt.Errorf("%w for %s %s", ErrNoStream, league, team)
	}

	logger.Info("Found %d valid streams for %s %s", len(valid), league, team)

	return r.selectWeighted(valid), nil
}

// attempt races one provider against the resolution timeout. Every failure
// mode collapses to an empty URL; errors never escape an attempt. A timed
// out provider call keeps running in the background and its eventual result
// is dropped, which is accepted waste since providers hold no shared state.
func (r *Resolver) attempt(ctx context.Context, p provider.Provider, league, team string) Stream {
	logger.Debug("{work/resolver - attempt} asking %s for %s %s", p.Name(), league, team)

	type outcome struct {
		url string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		url, err := p.GetStream(ctx, league, team)
		done <- outcome{url, err}
	}()

	select {
	case <-time.After(r.cfg.ProviderTimeout):
		logger.Info("Timed out getting stream from %s for %s %s", p.Name(), league, team)
		metrics.Resolutions.WithLabelValues(p.Name(), "timeout").Inc()
		return Stream{Provider: p.Name()}
	case out := <-done:
		if out.err != nil {
			logger.Error("Error getting stream from %s for %s %s: %v", p.Name(), league, team, out.err)
			metrics.Resolutions.WithLabelValues(p.Name(), "error").Inc()
			return Stream{Provider: p.Name()}
		}
		if err := r.sanityCheck(ctx, out.url); err != nil {
			logger.Warn("Rejected stream from %s for %s %s: %v", p.Name(), league, team, err)
			metrics.Resolutions.WithLabelValues(p.Name(), "rejected").Inc()
			return Stream{Provider: p.Name()}
		}
		metrics.Resolutions.WithLabelValues(p.Name(), "ok").Inc()
		return Stream{URL: out.url, Provider: p.Name()}
	}
}

// sanityCheck fetches the candidate through our own rewrite proxy and
// requires a success status plus a parseable playlist, proving the whole
// chain works before the candidate enters selection.
func (r *Resolver) sanityCheck(ctx context.Context, spoofURL string) error {
	resp, err := r.client.Get(ctx, r.cfg.BaseURL+spoofURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("sanity fetch: status %d", resp.StatusCode)
	}
	if _, _, err := m3u8.DecodeFrom(resp.Body, false); err != nil {
		return fmt.Errorf("sanity fetch: not a playlist: %w", err)
	}
	return nil
}

// selectWeighted draws a uniform point in [0, totalWeight) and walks the
// candidates subtracting each provider's weight until the point goes
// negative. Heavier providers own proportionally more of the range.
func (r *Resolver) selectWeighted(valid []Stream) Stream {
	total := 0
	for _, s := range valid {
		total += r.weightOf(s.Provider)
	}

	point := rand.IntN(total)
	for _, s := range valid {
		point -= r.weightOf(s.Provider)
		if point < 0 {
			logger.Info("Selected %s stream", s.Provider)
			return s
		}
	}
	// Unreachable while weights stay positive.
	return valid[len(valid)-1]
}

func (r *Resolver) weightOf(name string) int {
	if p, ok := r.registry.Lookup(name); ok {
		return p.Weight()
	}
	return 1
}
