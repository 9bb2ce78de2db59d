package provider

import (
	"context"
	"fmt"

	"gamedvr/work/client"
	"gamedvr/work/games"

	"github.com/grafana/regexp"
)

var (
	// The match page embeds an iframe hosted on the player domain; the
	// player page carries the playlist URL as a plain quoted string.
	methEmbedPattern    = regexp.MustCompile(`(?i)src="(https://v1\.bestsolaris\.com[^"]+)"`)
	methPlaylistPattern = regexp.MustCompile(`(?i)"(http.+\.m3u8)"`)
)

// MethStreams scrapes pre.methstreams.me through its bestsolaris player
// domain. Two hops deep, so it is slow and off by default.
type MethStreams struct {
	scraper
	homeURL string
}

func NewMethStreams(c *client.SpoofClient) *MethStreams {
	return &MethStreams{
		scraper: scraper{client: c, origin: "https://v1.bestsolaris.com"},
		homeURL: "https://pre.methstreams.me",
	}
}

func (p *MethStreams) Name() string  { return "MethStreams" }
func (p *MethStreams) Weight() int   { return 1 }
func (p *MethStreams) Enabled() bool { return false }

var methPaths = map[string]string{
	games.LeagueMlb:  "mlb-streams",
	games.LeagueNba:  "nba-streams",
	games.LeagueWnba: "wnba-streams",
	games.LeagueNfl:  "nfl-streams",
	games.LeagueNhl:  "nhl-streams",
	games.LeagueCfb:  "ncaa-streams",
}

func (p *MethStreams) GetStream(ctx context.Context, league, team string) (string, error) {
	path, ok := methPaths[league]
	if !ok {
		return "", ErrLeagueUnsupported
	}

	page, err := p.fetchPage(ctx, p.homeURL+"/"+path)
	if err != nil {
		return "", err
	}

	slug := dashSlug(team)
	matchPattern, err := regexp.Compile(fmt.Sprintf(`(?i)href="(%s/match/[^"]*%s[^"]*)"`,
		regexp.QuoteMeta(p.homeURL), regexp.QuoteMeta(slug)))
	if err != nil {
		return "", err
	}
	m := matchPattern.FindStringSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("%w: no match link for %q", ErrNoMatch, slug)
	}

	page, err = p.fetchPage(ctx, m[1])
	if err != nil {
		return "", err
	}
	m = methEmbedPattern.FindStringSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("%w: no embedded player on match page", ErrNoMatch)
	}

	page, err = p.fetchPage(ctx, m[1])
	if err != nil {
		return "", err
	}
	m = methPlaylistPattern.FindStringSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("%w: no playlist in player page", ErrNoMatch)
	}

	return SpoofPlaylistURL(m[1], p.origin), nil
}
