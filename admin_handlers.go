package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"gamedvr/work/epg"
	"gamedvr/work/games"
	"gamedvr/work/handlers"
	"gamedvr/work/logger"

	"github.com/gorilla/mux"
)

// reloadChan signals the main loop to reload configuration and restart the
// background refresh loops.
var reloadChan = make(chan bool, 1)

var startTime = time.Now()

// StatsResponse is the operational snapshot served by the admin stats
// endpoint.
type StatsResponse struct {
	Uptime           string `json:"uptime"`
	MemoryUsage      string `json:"memoryUsage"`
	Goroutines       int    `json:"goroutines"`
	TrackedGames     int    `json:"trackedGames"`
	ScheduledGames   int    `json:"scheduledGames"`
	InProgressGames  int    `json:"inProgressGames"`
	TotalRecordings  int    `json:"totalRecordings"`
	WorkerThreads    int    `json:"workerThreads"`
	ProviderTimeout  string `json:"providerTimeout"`
	ScheduleRefresh  string `json:"scheduleRefresh"`
	DownloadPath     string `json:"downloadPath"`
	ObfuscatingUrls  bool   `json:"obfuscatingUrls"`
	HighQualityFirst int    `json:"highQualityFirst"`
}

func setupAdminRoutes(router *mux.Router, srv *handlers.Server, ingestor *games.Ingestor, allocator *epg.Allocator) {
	router.HandleFunc("/admin/stats", handleAdminStats(srv)).Methods("GET")
	router.HandleFunc("/admin/reload", handleAdminReload).Methods("POST")
	router.HandleFunc("/admin/refresh/schedule", handleAdminScheduleRefresh(ingestor)).Methods("POST")
	router.HandleFunc("/admin/refresh/epg", handleAdminEpgRefresh(allocator)).Methods("POST")
}

func handleAdminStats(srv *handlers.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()

		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		tracked, _ := srv.Store.GamesInWindow(now.Add(-8*time.Hour), now.Add(7*24*time.Hour))
		recordings, _ := srv.Store.ListRecordings()

		scheduled, inProgress := 0, 0
		for _, g := range tracked {
			switch g.State {
			case games.StateScheduled:
				scheduled++
			case games.StateInProgress:
				inProgress++
			}
		}

		stats := StatsResponse{
			Uptime:           time.Since(startTime).Round(time.Second).String(),
			MemoryUsage:      fmt.Sprintf("%.1f MB", float64(memStats.Alloc)/(1024*1024)),
			Goroutines:       runtime.NumGoroutine(),
			TrackedGames:     len(tracked),
			ScheduledGames:   scheduled,
			InProgressGames:  inProgress,
			TotalRecordings:  len(recordings),
			WorkerThreads:    srv.Cfg.WorkerThreads,
			ProviderTimeout:  srv.Cfg.ProviderTimeout.String(),
			ScheduleRefresh:  srv.Cfg.ScheduleRefreshInterval.String(),
			DownloadPath:     srv.Cfg.DownloadPath,
			ObfuscatingUrls:  srv.Cfg.ObfuscateUrls,
			HighQualityFirst: srv.Cfg.HighQualityAttempts,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

func handleAdminReload(w http.ResponseWriter, r *http.Request) {
	select {
	case reloadChan <- true:
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, "reload requested")
	default:
		http.Error(w, "reload already pending", http.StatusConflict)
	}
}

func handleAdminScheduleRefresh(ingestor *games.Ingestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The refresh outlives the request on purpose.
		go ingestor.UpdateAll(context.Background())
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintln(w, "schedule refresh started")
	}
}

func handleAdminEpgRefresh(allocator *epg.Allocator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := allocator.Update(r.Context()); err != nil {
			logger.Error("Manual EPG refresh failed: %v", err)
			http.Error(w, "epg refresh failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "epg refreshed")
	}
}
