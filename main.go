package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gamedvr/work/cache"
	"gamedvr/work/client"
	"gamedvr/work/config"
	"gamedvr/work/dvr"
	"gamedvr/work/epg"
	"gamedvr/work/games"
	"gamedvr/work/handlers"
	"gamedvr/work/logger"
	"gamedvr/work/middleware"
	"gamedvr/work/notify"
	"gamedvr/work/poster"
	"gamedvr/work/provider"
	"gamedvr/work/resolver"
	"gamedvr/work/scheduler"
	"gamedvr/work/spoof"
)

var (
	Version = "v0.1.0" // default version
)

const logoDir = "assets/logos"

func main() {

	// load our config
	cfg := config.LoadConfig()
	logger.SetLogLevel(cfg.LogLevel)

	ctx := context.Background()

	// one spoofing HTTP client shared by the rewrite proxy, the scrapers,
	// the schedule feeds and notifications
	spoofClient := client.NewSpoofClient(cfg.UserAgent, cfg.ProxyTimeout)

	// worker pool for recording supervisors
	workerPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}
	defer workerPool.Release()

	// game + recording store
	store, err := games.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	// stream sources, resolution, rewrite proxy
	registry := provider.NewRegistry(cfg,
		provider.NewStreamEast(spoofClient),
		provider.NewMethStreams(spoofClient),
		provider.NewSportsNest(spoofClient),
	)
	streamResolver := resolver.New(cfg, registry, spoofClient)
	spoofHandler := spoof.NewHandler(spoofClient)

	// recording pipeline
	notifier := notify.New(cfg, spoofClient)
	posters := poster.NewService(logoDir)
	supervisor := dvr.NewSupervisor(cfg, store, streamResolver, dvr.ToolRunner{}, notifier, posters)
	recScheduler := scheduler.New(cfg, store, supervisor, workerPool)

	// schedule ingestion + channel allocation
	ingestor := games.NewIngestor(store, spoofClient, cfg)
	allocator := epg.NewAllocator(store, cfg)

	// sticky provider sessions for the simple playlist endpoints
	sticky := cache.New(4 * time.Hour)
	go func() {
		for range time.Tick(10 * time.Minute) {
			sticky.Sweep()
		}
	}()

	srv := &handlers.Server{
		Cfg:       cfg,
		Store:     store,
		Resolver:  streamResolver,
		Allocator: allocator,
		Posters:   posters,
		Sticky:    sticky,
	}

	// background loops
	ingestor.UpdateAll(ctx)
	if err := allocator.Update(ctx); err != nil {
		logger.Error("Initial EPG allocation failed: %v", err)
	}
	go ingestor.RefreshLoop(ctx)
	go allocator.RefreshLoop(ctx)
	go recScheduler.Run(ctx)

	// HTTP routes
	router := mux.NewRouter()

	// rewrite proxy; raw throughput path, no compression middleware
	router.HandleFunc("/spoof/playlist", spoofHandler.Playlist).Methods("GET")
	router.HandleFunc("/spoof/ts", spoofHandler.Ts).Methods("GET")
	router.HandleFunc("/spoof/key", spoofHandler.Key).Methods("GET")

	// game listings
	router.HandleFunc("/game/all", middleware.Gzip(handlers.HandleAllGames(srv))).Methods("GET")
	router.HandleFunc("/game/{league}", middleware.Gzip(handlers.HandleLeagueGames(srv))).Methods("GET")

	// DVR management
	router.HandleFunc("/dvr", middleware.Gzip(handlers.HandleListRecordings(srv))).Methods("GET")
	router.HandleFunc("/dvr/schedule/{id}", handlers.HandleScheduleRecording(srv)).Methods("POST")
	router.HandleFunc("/dvr/cancel/{id}", handlers.HandleCancelRecording(srv)).Methods("DELETE")

	// resolution API
	router.HandleFunc("/stream/{league}/{team}", middleware.Gzip(handlers.HandleResolve(srv))).Methods("GET")

	// simple playlists + pinned redirect
	router.HandleFunc("/simple/{league}/{team}", handlers.HandleSimplePlaylist(srv)).Methods("GET")
	router.HandleFunc("/simple/redirect/{league}/{team}/{id}", handlers.HandleSimpleRedirect(srv)).Methods("GET")

	// EPG channels
	router.HandleFunc("/channel/{channel}", handlers.HandleChannel(srv)).Methods("GET")
	router.HandleFunc("/lineup.m3u", middleware.Gzip(handlers.HandleLineup(srv))).Methods("GET")

	// posters
	router.HandleFunc("/poster/{league}/{homeTeam}/{awayTeam}", handlers.HandlePoster(srv)).Methods("GET")

	// metrics handler
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// add the admin routes
	setupAdminRoutes(router, srv, ingestor, allocator)

	// show info
	logger.Info("Starting GameDVR %s", Version)
	logger.Info("Server configuration:")
	logger.Info("  - Base URL: %s", cfg.BaseURL)
	logger.Info("  - Recording URL: %s", cfg.RecordingURL())
	logger.Info("  - Download Path: %s", cfg.DownloadPath)
	logger.Info("  - Database Path: %s", cfg.DatabasePath)
	logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("  - Providers: %d", len(registry.All()))
	logger.Info("  - Provider Timeout: %s", cfg.ProviderTimeout)
	logger.Info("  - Proxy Timeout: %s", cfg.ProxyTimeout)
	logger.Info("  - Schedule Refresh Rate: %s", cfg.ScheduleRefreshInterval)
	logger.Info("  - EPG Refresh Rate: %s", cfg.EpgRefreshInterval)
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	// gracefully reload if it's requested to do
	go func() {
		for {
			<-reloadChan

			logger.Info("Graceful reload requested...")

			ingestor.StopRefresh()
			allocator.StopRefresh()

			config.ClearConfigCache()
			newConfig := config.LoadConfig()
			logger.SetLogLevel(newConfig.LogLevel)
			*cfg = *newConfig

			ingestor.UpdateAll(ctx)
			if err := allocator.Update(ctx); err != nil {
				logger.Error("EPG allocation after reload failed: %v", err)
			}
			go ingestor.RefreshLoop(ctx)
			go allocator.RefreshLoop(ctx)

			logger.Info("Graceful reload completed")
		}
	}()

	// fire us up
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
