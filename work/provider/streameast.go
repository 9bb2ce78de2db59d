package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"gamedvr/work/client"
	"gamedvr/work/games"

	"github.com/grafana/regexp"
)

// atobPattern pulls the base64-encoded stream URL out of the event page's
// inline player script.
var atobPattern = regexp.MustCompile(`(?i)window\.atob\(['"]([^'"]*)['"]\)`)

// StreamEast scrapes streameast.gg: a per-league schedule page links to an
// event page whose player script carries the playlist URL base64-encoded
// inside a window.atob call.
type StreamEast struct {
	scraper
	homeURL string
}

func NewStreamEast(c *client.SpoofClient) *StreamEast {
	home := "https://www.streameast.gg"
	return &StreamEast{
		scraper: scraper{client: c, origin: home},
		homeURL: home,
	}
}

func (p *StreamEast) Name() string  { return "StreamEast" }
func (p *StreamEast) Weight() int   { return 1 }
func (p *StreamEast) Enabled() bool { return true }

var streamEastPaths = map[string]string{
	games.LeagueMlb:  "mlbstreams",
	games.LeagueNba:  "nbastreams",
	games.LeagueWnba: "wnbastreams",
	games.LeagueNfl:  "nflstreams",
	games.LeagueNhl:  "nhlstreams",
	games.LeagueCfb:  "ncaastreams",
}

func (p *StreamEast) GetStream(ctx context.Context, league, team string) (string, error) {
	path, ok := streamEastPaths[league]
	if !ok {
		return "", ErrLeagueUnsupported
	}

	page, err := p.fetchPage(ctx, p.homeURL+"/"+path)
	if err != nil {
		return "", err
	}

	slug := dashSlug(team)
	eventPattern, err := regexp.Compile(fmt.Sprintf(`(?i)href="(%s/event/[^"]*%s[^"]*)"`,
		regexp.QuoteMeta(p.homeURL), regexp.QuoteMeta(slug)))
	if err != nil {
		return "", err
	}
	m := eventPattern.FindStringSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("%w: no event link for %q", ErrNoMatch, slug)
	}

	page, err = p.fetchPage(ctx, m[1])
	if err != nil {
		return "", err
	}
	m = atobPattern.FindStringSubmatch(page)
	if m == nil || m[1] == "" {
		return "", fmt.Errorf("%w: no encoded stream on event page", ErrNoMatch)
	}

	raw, err := base64.StdEncoding.DecodeString(m[1])
	if err != nil {
		return "", fmt.Errorf("decode stream url: %w", err)
	}

	return SpoofPlaylistURL(string(raw), p.origin), nil
}

// dashSlug converts a team name to the slug form schedule pages embed in
// event links: lowercase, spaces to dashes, dots stripped.
func dashSlug(team string) string {
	team = strings.ToLower(team)
	team = strings.ReplaceAll(team, " ", "-")
	return strings.ReplaceAll(team, ".", "")
}
