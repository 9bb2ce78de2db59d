package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"gamedvr/work/client"
	"gamedvr/work/config"

	"go.uber.org/ratelimit"
)

// ErrNoMatch is returned when a provider's pages do not contain a stream
// for the requested team. It is a soft failure: the resolver logs it and
// moves on to the other providers.
var ErrNoMatch = errors.New("no stream match")

// ErrLeagueUnsupported is returned when a provider does not carry a league.
var ErrLeagueUnsupported = errors.New("league not supported")

// Provider is the capability contract every stream source implements:
// resolve a raw playable URL for a league and team. Implementations are
// opaque, independently failing scrapers; the descriptor fields are fixed
// for the process lifetime.
type Provider interface {
	// Name is the unique provider key.
	Name() string
	// Weight is the relative selection probability; always positive.
	Weight() int
	// Enabled reports whether the provider participates in resolution.
	Enabled() bool
	// GetStream returns a proxy-relative playlist URL for the given team,
	// or an error when the source has no stream for it.
	GetStream(ctx context.Context, league, team string) (string, error)
}

// Registry holds the provider set built at startup, with config overrides
// for weight and enablement applied, plus a per-provider request limiter so
// scraping stays polite toward the source sites.
type Registry struct {
	providers []Provider
	limiters  map[string]ratelimit.Limiter
}

// NewRegistry wraps the given providers, applying any per-name overrides
// from configuration. Overridden weights below 1 disable the provider
// rather than corrupting weighted selection.
func NewRegistry(cfg *config.Config, providers ...Provider) *Registry {
	reg := &Registry{
		limiters: make(map[string]ratelimit.Limiter, len(providers)),
	}
	for _, p := range providers {
		if o := cfg.ProviderOverride(p.Name()); o != nil {
			p = &overriddenProvider{Provider: p, override: o}
		}
		limiter := ratelimit.New(2) // scrape bursts per second, per source site
		reg.limiters[p.Name()] = limiter
		reg.providers = append(reg.providers, &pacedProvider{Provider: p, limiter: limiter})
	}
	return reg
}

// pacedProvider rate-limits resolution attempts so concurrent fan-outs
// cannot hammer a single source site.
type pacedProvider struct {
	Provider
	limiter ratelimit.Limiter
}

func (p *pacedProvider) GetStream(ctx context.Context, league, team string) (string, error) {
	p.limiter.Take()
	return p.Provider.GetStream(ctx, league, team)
}

// All returns every registered provider, enabled or not.
func (r *Registry) All() []Provider {
	return r.providers
}

// Enabled returns the providers participating in resolution. When onlyHighQuality
// is set, providers at the baseline weight of 1 are excluded.
func (r *Registry) Enabled(onlyHighQuality bool) []Provider {
	var out []Provider
	for _, p := range r.providers {
		if !p.Enabled() {
			continue
		}
		if onlyHighQuality && p.Weight() <= 1 {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Lookup finds a provider by name.
func (r *Registry) Lookup(name string) (Provider, bool) {
	for _, p := range r.providers {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

// Limiter returns the request limiter for a provider name.
func (r *Registry) Limiter(name string) ratelimit.Limiter {
	return r.limiters[name]
}

// overriddenProvider layers config overrides over a provider's built-in
// descriptor without touching its resolution logic.
type overriddenProvider struct {
	Provider
	override *config.ProviderConfig
}

func (o *overriddenProvider) Weight() int {
	if o.override.Weight > 0 {
		return o.override.Weight
	}
	return o.Provider.Weight()
}

func (o *overriddenProvider) Enabled() bool {
	if o.override.Enabled != nil {
		return *o.override.Enabled
	}
	return o.Provider.Enabled()
}

// scraper bundles what every concrete provider needs: the spoofing HTTP
// client and the origin its requests must claim to come from.
type scraper struct {
	client *client.SpoofClient
	origin string
}

// fetchPage GETs a page with the provider's spoofed origin and returns the
// body as a string. Non-200 responses are errors; scrape targets never
// legitimately redirect scraping requests to error pages.
func (s *scraper) fetchPage(ctx context.Context, pageURL string) (string, error) {
	resp, err := s.client.GetWithOrigin(ctx, pageURL, s.origin)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// SpoofPlaylistURL builds the proxy-relative playlist URL candidates carry:
// the raw upstream URL routed through the rewrite proxy together with the
// origin the proxy must spoof to fetch it.
func SpoofPlaylistURL(streamURL, origin string) string {
	return fmt.Sprintf("/spoof/playlist?url=%s&origin=%s",
		url.QueryEscape(streamURL), url.QueryEscape(origin))
}
