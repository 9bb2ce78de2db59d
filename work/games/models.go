package games

import (
	"strings"
	"time"
)

// League codes as stored on games and used in download paths and channel ids.
const (
	LeagueMlb  = "MLB"
	LeagueNba  = "NBA"
	LeagueWnba = "WNBA"
	LeagueNfl  = "NFL"
	LeagueNhl  = "NHL"
	LeagueCfb  = "CFB"
)

// Game lifecycle states. Transitions are advisory: they are driven by the
// upstream schedule feeds during ingestion, never by the DVR itself.
const (
	StateScheduled  = "Scheduled"
	StateInProgress = "In Progress"
	StateFinal      = "Final"
)

// Recording lifecycle states. Unlike game states these transitions are owned
// by this process and enforced in the store: scheduled -> started -> completed.
const (
	RecordingScheduled = "scheduled"
	RecordingStarted   = "started"
	RecordingCompleted = "completed"
)

// Game is one scheduled or live matchup from a league schedule feed.
type Game struct {
	ID       int64     `json:"id"`
	League   string    `json:"league"`
	HomeTeam string    `json:"homeTeam"`
	AwayTeam string    `json:"awayTeam"`
	GameTime time.Time `json:"gameTime"` // always UTC
	State    string    `json:"state"`
	Channel  string    `json:"channel"` // EPG channel id, empty until allocated
}

// Recording is the DVR entry for a game. At most one exists per game;
// cancelling a recording deletes the row.
type Recording struct {
	ID          int64      `json:"id"`
	GameID      int64      `json:"gameId"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ShortHomeTeam returns the filename-friendly short form of the home team.
// College teams keep their full name with dashes since the nickname alone
// is ambiguous; pro teams collapse to their last word.
func (g Game) ShortHomeTeam() string {
	return shortTeam(g.League, g.HomeTeam)
}

// ShortAwayTeam returns the filename-friendly short form of the away team.
func (g Game) ShortAwayTeam() string {
	return shortTeam(g.League, g.AwayTeam)
}

func shortTeam(league, team string) string {
	if team == "" {
		return ""
	}
	if league == LeagueCfb {
		return strings.ToLower(strings.ReplaceAll(team, " ", "-"))
	}
	parts := strings.Fields(team)
	return strings.ToLower(parts[len(parts)-1])
}

// IsFinal reports whether the game has reached its terminal state.
func (g Game) IsFinal() bool {
	return g.State == StateFinal
}
