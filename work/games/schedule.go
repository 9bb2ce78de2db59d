package games

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gamedvr/work/client"
	"gamedvr/work/config"
	"gamedvr/work/logger"
)

// Ingestor pulls league schedules from their public feeds and upserts games
// into the store. Game state transitions are advisory and come straight from
// the feeds; the DVR never flips a game's state itself.
type Ingestor struct {
	store  *Store
	client *client.SpoofClient
	cfg    *config.Config
	stop   chan bool
}

// NewIngestor builds a schedule ingestor over the given store.
func NewIngestor(store *Store, httpClient *client.SpoofClient, cfg *config.Config) *Ingestor {
	return &Ingestor{
		store:  store,
		client: httpClient,
		cfg:    cfg,
		stop:   make(chan bool, 1),
	}
}

func scheduleURLs() map[string]string {
	year := time.Now().Year()
	return map[string]string{
		LeagueMlb: fmt.Sprintf("https://statsapi.mlb.com/api/v1/schedule?sportId=1&season=%d", year),
		LeagueNba: "https://cdn.nba.com/static/json/staticData/scheduleLeagueV2.json",
		LeagueNfl: fmt.Sprintf("https://site.api.espn.com/apis/site/v2/sports/football/nfl/scoreboard?limit=1000&dates=%d", year),
		LeagueNhl: "https://duckduckgo.com/sports.js?q=nhl&league=nhl&type=games&o=json",
		LeagueCfb: fmt.Sprintf("https://api.collegefootballdata.com/games?year=%d&division=fbs", year),
	}
}

// UpdateAll refreshes every league feed. Each league fails independently;
// one broken feed never blocks the others.
func (in *Ingestor) UpdateAll(ctx context.Context) {
	updates := []struct {
		league string
		fn     func(context.Context) error
	}{
		{LeagueCfb, in.UpdateCfb},
		{LeagueMlb, in.UpdateMlb},
		{LeagueNba, in.UpdateNba},
		{LeagueNfl, in.UpdateNfl},
		{LeagueNhl, in.UpdateNhl},
	}
	for _, u := range updates {
		if err := u.fn(ctx); err != nil {
			logger.Error("{games/schedule - UpdateAll} %s schedule update failed: %v", u.league, err)
		}
	}
}

// RefreshLoop runs UpdateAll on the configured interval until stopped.
// Launch in its own goroutine.
func (in *Ingestor) RefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(in.cfg.ScheduleRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-in.stop:
			logger.Debug("{games/schedule - RefreshLoop} schedule refresh loop stopped")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.UpdateAll(ctx)
		}
	}
}

// StopRefresh signals the refresh loop to terminate. Non-blocking.
func (in *Ingestor) StopRefresh() {
	select {
	case in.stop <- true:
	default:
	}
}

func (in *Ingestor) fetchJSON(ctx context.Context, url string, headers map[string]string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("schedule feed returned %d for %s", resp.StatusCode, in.cfg.LogURL(url))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// cutoff is how far back a feed entry may start and still be ingested.
func cutoff() time.Time {
	return time.Now().UTC().Add(-24 * time.Hour)
}

type mlbSchedule struct {
	Dates []struct {
		Games []struct {
			GameDate string `json:"gameDate"`
			GameType string `json:"gameType"`
			Status   struct {
				StartTimeTBD  bool   `json:"startTimeTBD"`
				DetailedState string `json:"detailedState"`
			} `json:"status"`
			Teams struct {
				Home struct {
					Team struct {
						Name string `json:"name"`
					} `json:"team"`
				} `json:"home"`
				Away struct {
					Team struct {
						Name string `json:"name"`
					} `json:"team"`
				} `json:"away"`
			} `json:"teams"`
		} `json:"games"`
	} `json:"dates"`
}

// UpdateMlb ingests the MLB stats API schedule. Spring training games
// (type "PR") and TBD starts are skipped.
func (in *Ingestor) UpdateMlb(ctx context.Context) error {
	var feed mlbSchedule
	if err := in.fetchJSON(ctx, scheduleURLs()[LeagueMlb], nil, &feed); err != nil {
		return err
	}

	count := 0
	for _, date := range feed.Dates {
		for _, g := range date.Games {
			gameTime, err := time.Parse(time.RFC3339, g.GameDate)
			if err != nil {
				continue
			}
			if gameTime.Before(cutoff()) || g.Status.StartTimeTBD || g.GameType == "PR" {
				continue
			}
			err = in.store.UpsertGame(Game{
				League:   LeagueMlb,
				HomeTeam: g.Teams.Home.Team.Name,
				AwayTeam: g.Teams.Away.Team.Name,
				GameTime: gameTime.UTC(),
				State:    g.Status.DetailedState,
			})
			if err != nil {
				return err
			}
			count++
		}
	}
	logger.Debug("{games/schedule - UpdateMlb} upserted %d games", count)
	return nil
}

type nbaSchedule struct {
	LeagueSchedule struct {
		GameDates []struct {
			Games []struct {
				GameDateTimeUTC string `json:"gameDateTimeUTC"`
				GameStatus      int    `json:"gameStatus"`
				HomeTeam        struct {
					TeamCity string `json:"teamCity"`
					TeamName string `json:"teamName"`
				} `json:"homeTeam"`
				AwayTeam struct {
					TeamCity string `json:"teamCity"`
					TeamName string `json:"teamName"`
				} `json:"awayTeam"`
			} `json:"games"`
		} `json:"gameDates"`
	} `json:"leagueSchedule"`
}

// UpdateNba ingests the NBA static schedule feed. Numeric status codes map
// onto our three advisory states.
func (in *Ingestor) UpdateNba(ctx context.Context) error {
	var feed nbaSchedule
	if err := in.fetchJSON(ctx, scheduleURLs()[LeagueNba], nil, &feed); err != nil {
		return err
	}

	count := 0
	for _, date := range feed.LeagueSchedule.GameDates {
		for _, g := range date.Games {
			gameTime, err := time.Parse(time.RFC3339, g.GameDateTimeUTC)
			if err != nil {
				continue
			}
			if gameTime.Before(cutoff()) {
				continue
			}

			state := StateScheduled
			switch g.GameStatus {
			case 2:
				state = StateInProgress
			case 3:
				state = StateFinal
			}

			err = in.store.UpsertGame(Game{
				League:   LeagueNba,
				HomeTeam: g.HomeTeam.TeamCity + " " + g.HomeTeam.TeamName,
				AwayTeam: g.AwayTeam.TeamCity + " " + g.AwayTeam.TeamName,
				GameTime: gameTime.UTC(),
				State:    state,
			})
			if err != nil {
				return err
			}
			count++
		}
	}
	logger.Debug("{games/schedule - UpdateNba} upserted %d games", count)
	return nil
}

type nflScoreboard struct {
	Events []struct {
		Name   string `json:"name"`
		Date   string `json:"date"`
		Status struct {
			Type struct {
				Description string `json:"description"`
			} `json:"type"`
		} `json:"status"`
	} `json:"events"`
}

// UpdateNfl ingests the ESPN NFL scoreboard. The feed names games
// "Away Team at Home Team" rather than carrying separate fields.
func (in *Ingestor) UpdateNfl(ctx context.Context) error {
	var feed nflScoreboard
	if err := in.fetchJSON(ctx, scheduleURLs()[LeagueNfl], nil, &feed); err != nil {
		return err
	}

	count := 0
	for _, ev := range feed.Events {
		teams := strings.Split(ev.Name, " at ")
		if len(teams) != 2 {
			continue
		}
		gameTime, err := time.Parse(time.RFC3339, ev.Date)
		if err != nil {
			// ESPN drops seconds from some event dates
			gameTime, err = time.Parse("2006-01-02T15:04Z", ev.Date)
			if err != nil {
				continue
			}
		}
		if gameTime.Before(cutoff()) {
			continue
		}
		err = in.store.UpsertGame(Game{
			League:   LeagueNfl,
			HomeTeam: teams[1],
			AwayTeam: teams[0],
			GameTime: gameTime.UTC(),
			State:    ev.Status.Type.Description,
		})
		if err != nil {
			return err
		}
		count++
	}
	logger.Debug("{games/schedule - UpdateNfl} upserted %d games", count)
	return nil
}

const nhlTimeFormat = "2006-01-02 15:04:05 UTC"

type nhlSchedule struct {
	Data struct {
		Games []struct {
			HomeTeam struct {
				Location string `json:"location"`
				Name     string `json:"name"`
			} `json:"home_team"`
			AwayTeam struct {
				Location string `json:"location"`
				Name     string `json:"name"`
			} `json:"away_team"`
			StartTime string `json:"start_time"`
			Status    string `json:"status"`
		} `json:"games"`
	} `json:"data"`
}

// UpdateNhl ingests the NHL games feed.
func (in *Ingestor) UpdateNhl(ctx context.Context) error {
	var feed nhlSchedule
	if err := in.fetchJSON(ctx, scheduleURLs()[LeagueNhl], nil, &feed); err != nil {
		return err
	}

	count := 0
	for _, g := range feed.Data.Games {
		gameTime, err := time.Parse(nhlTimeFormat, g.StartTime)
		if err != nil {
			continue
		}
		if gameTime.Before(cutoff()) {
			continue
		}

		state := StateScheduled
		switch g.Status {
		case "closed", "complete":
			state = StateFinal
		case "in progress":
			state = StateInProgress
		}

		err = in.store.UpsertGame(Game{
			League:   LeagueNhl,
			HomeTeam: g.HomeTeam.Location + " " + g.HomeTeam.Name,
			AwayTeam: g.AwayTeam.Location + " " + g.AwayTeam.Name,
			GameTime: gameTime.UTC(),
			State:    state,
		})
		if err != nil {
			return err
		}
		count++
	}
	logger.Debug("{games/schedule - UpdateNhl} upserted %d games", count)
	return nil
}

type cfbGame struct {
	HomeTeam     string `json:"home_team"`
	AwayTeam     string `json:"away_team"`
	StartDate    string `json:"start_date"`
	StartTimeTBD bool   `json:"start_time_tbd"`
	Completed    bool   `json:"completed"`
}

// UpdateCfb ingests the collegefootballdata.com FBS schedule. The feed has
// no live state field, so anything past its start time that isn't completed
// counts as in progress.
func (in *Ingestor) UpdateCfb(ctx context.Context) error {
	headers := map[string]string{
		"Authorization": "Bearer " + in.cfg.CfbDataToken,
		"Accept":        "application/json",
	}

	var feed []cfbGame
	if err := in.fetchJSON(ctx, scheduleURLs()[LeagueCfb], headers, &feed); err != nil {
		return err
	}

	count := 0
	now := time.Now().UTC()
	for _, g := range feed {
		gameTime, err := time.Parse(time.RFC3339, g.StartDate)
		if err != nil {
			continue
		}
		if gameTime.Before(cutoff()) || g.StartTimeTBD {
			continue
		}

		state := StateScheduled
		if g.Completed {
			state = StateFinal
		} else if gameTime.Before(now) {
			state = StateInProgress
		}

		err = in.store.UpsertGame(Game{
			League:   LeagueCfb,
			HomeTeam: g.HomeTeam,
			AwayTeam: g.AwayTeam,
			GameTime: gameTime.UTC(),
			State:    state,
		})
		if err != nil {
			return err
		}
		count++
	}
	logger.Debug("{games/schedule - UpdateCfb} upserted %d games", count)
	return nil
}
