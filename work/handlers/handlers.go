// Package handlers wires the HTTP surface: game listings, DVR management,
// stream resolution, simple per-league playlists, channel tune-in, the
// lineup, and posters.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gamedvr/work/cache"
	"gamedvr/work/config"
	"gamedvr/work/epg"
	"gamedvr/work/games"
	"gamedvr/work/logger"
	"gamedvr/work/poster"
	"gamedvr/work/resolver"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const maxGames = 200

// Server bundles the dependencies the HTTP handlers need.
type Server struct {
	Cfg       *config.Config
	Store     *games.Store
	Resolver  *resolver.Resolver
	Allocator *epg.Allocator
	Posters   *poster.Service
	Sticky    *cache.Cache
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Encoding response: %v", err)
	}
}

// HandleAllGames lists upcoming and in-progress games, optionally filtered
// by a search term matching league or team names.
func HandleAllGames(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.Store.SearchGames(r.URL.Query().Get("search"), maxGames)
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, list)
	}
}

// HandleLeagueGames lists one league's games in a date window, defaulting
// to today.
func HandleLeagueGames(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		league := strings.ToUpper(mux.Vars(r)["league"])

		start := time.Now().UTC().Truncate(24 * time.Hour)
		end := start.Add(24*time.Hour - time.Second)
		if v := r.URL.Query().Get("startDate"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				start = t
			}
		}
		if v := r.URL.Query().Get("endDate"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				end = t
			}
		}

		list, err := s.Store.ListGames(league, start, end)
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, list)
	}
}

// HandleScheduleRecording creates the DVR entry for a game.
func HandleScheduleRecording(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			http.Error(w, "bad game id", http.StatusBadRequest)
			return
		}
		if _, err := s.Store.GetGame(id); errors.Is(err, games.ErrNotFound) {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}

		rec, err := s.Store.ScheduleRecording(id)
		if errors.Is(err, games.ErrAlreadyScheduled) {
			http.Error(w, "game already scheduled for recording", http.StatusBadRequest)
			return
		} else if err != nil {
			http.Error(w, "scheduling failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, rec)
	}
}

// HandleCancelRecording removes a game's DVR entry. A running supervisor
// notices the deletion between capture attempts and stops.
func HandleCancelRecording(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			http.Error(w, "bad game id", http.StatusBadRequest)
			return
		}
		if err := s.Store.CancelRecording(id); errors.Is(err, games.ErrNotFound) {
			http.Error(w, "recording not found", http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, "cancel failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// HandleListRecordings lists every game with a DVR entry.
func HandleListRecordings(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.Store.ListRecordings()
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, list)
	}
}

// HandleResolve runs a full resolution for a league and team and returns
// the chosen candidate. An optional provider query parameter forces one
// provider.
func HandleResolve(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		league := strings.ToUpper(vars["league"])
		team := vars["team"]
		forced := r.URL.Query().Get("provider")

		stream, err := s.Resolver.Resolve(r.Context(), league, team, forced, false)
		if err != nil {
			if errors.Is(err, resolver.ErrNoStream) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, stream)
	}
}

// HandleSimplePlaylist serves a tiny master playlist whose single variant
// points at the redirect endpoint. Resolution is deferred to the moment
// the player follows the variant, so the playlist itself always loads
// instantly.
func HandleSimplePlaylist(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		league := strings.ToLower(vars["league"])
		team := url.PathEscape(vars["team"])
		id := uuid.NewString()

		playlist := strings.Join([]string{
			"#EXTM3U",
			"#EXT-X-VERSION:3",
			"#EXT-X-STREAM-INF:RESOLUTION=1280x720",
			fmt.Sprintf("%s/simple/redirect/%s/%s/%s", s.Cfg.BaseURL, league, team, id),
		}, "\n")

		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Write([]byte(playlist))
	}
}

// HandleSimpleRedirect resolves on demand and redirects the player to the
// proxied playlist. The session id pins the provider for four hours so a
// player refreshing the variant does not hop between sources mid-game.
func HandleSimpleRedirect(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		league := strings.ToUpper(vars["league"])
		team := vars["team"]
		id := vars["id"]

		forced, _ := s.Sticky.Get(id)

		stream, err := s.Resolver.Resolve(r.Context(), league, team, forced, false)
		if err != nil && forced != "" {
			// The pinned provider dried up; fall back to the full race.
			s.Sticky.Delete(id)
			stream, err = s.Resolver.Resolve(r.Context(), league, team, "", false)
		}
		if err != nil {
			http.Error(w, "no stream found", http.StatusNotFound)
			return
		}

		s.Sticky.SetWithTTL(id, stream.Provider, 4*time.Hour)
		http.Redirect(w, r, stream.URL, http.StatusFound)
	}
}

// HandleChannel tunes a virtual EPG channel: find the in-progress game
// allocated to it and redirect to a resolved stream.
func HandleChannel(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channel := mux.Vars(r)["channel"]

		g, err := s.Store.CurrentGameByChannel(channel)
		if errors.Is(err, games.ErrNotFound) {
			http.Error(w, "nothing on this channel", http.StatusNotFound)
			return
		} else if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}

		stream, err := s.Resolver.Resolve(r.Context(), g.League, g.HomeTeam, "", false)
		if err != nil {
			http.Error(w, "no stream found", http.StatusNotFound)
			return
		}
		http.Redirect(w, r, s.Cfg.BaseURL+stream.URL, http.StatusFound)
	}
}

// HandleLineup serves the M3U lineup of allocated EPG channels.
func HandleLineup(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineup, err := s.Allocator.Lineup(s.Cfg.BaseURL)
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-mpegURL")
		w.Write([]byte(lineup))
	}
}

// HandlePoster serves composed matchup artwork.
func HandlePoster(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		league := vars["league"]
		home := vars["homeTeam"]
		away := strings.TrimSuffix(vars["awayTeam"], ".png")

		img, err := s.Posters.Combine(league, home, away)
		if err != nil {
			http.Error(w, "poster not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	}
}
