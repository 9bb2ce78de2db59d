// Package dvr contains the recording supervisor: a self-healing loop that
// keeps re-resolving and re-capturing a game's stream until the game goes
// final, surviving dead sources, mid-game stream swaps, and corrupt output.
package dvr

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gamedvr/work/config"
	"gamedvr/work/games"
	"gamedvr/work/logger"
	"gamedvr/work/metrics"
	"gamedvr/work/notify"
	"gamedvr/work/poster"
	"gamedvr/work/resolver"
)

// StreamResolver is the slice of the resolver the supervisor needs; the
// capture loop only ever runs unforced resolutions.
type StreamResolver interface {
	Resolve(ctx context.Context, league, team, forced string, onlyHighQuality bool) (resolver.Stream, error)
}

type Supervisor struct {
	cfg      *config.Config
	store    *games.Store
	resolver StreamResolver
	runner   Runner
	notifier *notify.Notifier
	posters  *poster.Service
}

func NewSupervisor(cfg *config.Config, store *games.Store, res StreamResolver, runner Runner, notifier *notify.Notifier, posters *poster.Service) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		store:    store,
		resolver: res,
		runner:   runner,
		notifier: notifier,
		posters:  posters,
	}
}

// Supervise runs the capture loop for one recording until the game is
// final, the attempt bound is hit, or the recording is cancelled. The
// caller must have already promoted the recording to started.
func (s *Supervisor) Supervise(ctx context.Context, g games.Game) {
	metrics.ActiveRecordings.Inc()
	defer metrics.ActiveRecordings.Dec()

	logger.Info("Recording %s at %s", g.AwayTeam, g.HomeTeam)
	started := time.Now()

	title := fmt.Sprintf("%s at %s", g.ShortAwayTeam(), g.ShortHomeTeam())
	s.notifier.Push(ctx, title, "Recording started")

	outputDir := filepath.Join(s.cfg.DownloadPath, g.League)
	logDir := filepath.Join(outputDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		logger.Error("Creating %s: %v", logDir, err)
		return
	}

	filename := s.baseFilename(g, outputDir)

	for attempt := 1; s.cfg.MaxCaptureAttempts == 0 || attempt <= s.cfg.MaxCaptureAttempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		outputPath := filepath.Join(outputDir, fmt.Sprintf("%s-%02d.ts", filename, attempt))
		logPath := filepath.Join(logDir, fmt.Sprintf("%s-%02d.log", filename, attempt))

		if err := s.captureAttempt(ctx, g, attempt, outputPath, logPath); err != nil {
			logger.Error("Capture attempt %d for %s at %s: %v", attempt, g.AwayTeam, g.HomeTeam, err)
			metrics.CaptureAttempts.WithLabelValues(g.League, "error").Inc()
		}

		// Re-read state so mid-game schedule updates and cancellations
		// take effect between attempts.
		if fresh, err := s.store.GetGame(g.ID); err == nil {
			g = fresh
		}
		if _, err := s.store.GetRecording(g.ID); errors.Is(err, games.ErrNotFound) {
			logger.Info("Recording for %s at %s was cancelled", g.AwayTeam, g.HomeTeam)
			return
		}

		logger.Info("Game is %s, attempt %d", g.State, attempt)
		if g.IsFinal() {
			break
		}
	}

	if time.Since(started) < s.cfg.MinGameDuration {
		s.notifier.Push(ctx, title, "Recording ended early :(")
	}

	logger.Info("Game over, recording complete")
	if err := s.store.CompleteRecording(g.ID); err != nil {
		logger.Error("Completing recording for game %d: %v", g.ID, err)
	}
}

// baseFilename builds the MMdd-away-home recording name in local time,
// with a game2 suffix when an earlier game of the same matchup already
// recorded today (doubleheaders).
func (s *Supervisor) baseFilename(g games.Game, outputDir string) string {
	local := g.GameTime.Local()
	filename := fmt.Sprintf("%s-%s-%s", local.Format("0102"), g.ShortAwayTeam(), g.ShortHomeTeam())
	filename = strings.ReplaceAll(filename, " ", "-")

	if matches, _ := filepath.Glob(filepath.Join(outputDir, filename+"*")); len(matches) > 0 {
		filename += "-game2"
	}
	return filename
}

func (s *Supervisor) captureAttempt(ctx context.Context, g games.Game, attempt int, outputPath, logPath string) error {
	onlyHighQuality := attempt <= s.cfg.HighQualityAttempts
	stream, err := s.resolver.Resolve(ctx, g.League, g.HomeTeam, "", onlyHighQuality)
	if err != nil {
		return err
	}

	// The hls:// prefix forces streamlink's HLS handler; the proxied
	// playlist URL alone does not look like one.
	captureURL := "hls://" + s.cfg.RecordingURL() + stream.URL

	logger.Info("Capturing %s stream to %s, attempt %d", stream.Provider, outputPath, attempt)

	capStart := time.Now()
	res, err := s.runner.Capture(ctx, captureURL, outputPath)
	if err != nil {
		return err
	}
	elapsedMin := math.Round(time.Since(capStart).Minutes())

	logger.Info("%s stream exited with code %d after %.0f minutes, attempt %d",
		stream.Provider, res.ExitCode, elapsedMin, attempt)

	s.writeAttemptLog(logPath, stream, res, elapsedMin)

	if _, err := os.Stat(outputPath); err != nil {
		metrics.CaptureAttempts.WithLabelValues(g.League, "no_output").Inc()
		select {
		case <-time.After(s.cfg.CaptureRetryDelay):
		case <-ctx.Done():
		}
		return nil
	}

	if err := s.repairDuration(ctx, outputPath); err != nil {
		logger.Error("Repairing %s: %v", outputPath, err)
	}

	sidecarBase := strings.TrimSuffix(outputPath, ".ts")
	if err := WriteNfo(sidecarBase+".nfo", g, attempt); err != nil {
		logger.Error("Writing nfo for %s: %v", outputPath, err)
	}
	s.posters.WriteSidecar(sidecarBase+"-poster.png", g.League, g.HomeTeam, g.AwayTeam)

	s.notifier.RefreshLibraries(ctx)

	metrics.CaptureAttempts.WithLabelValues(g.League, "ok").Inc()
	return nil
}

// repairDuration remuxes files whose container reports an absurd duration.
// Broken TS timestamps can make a three hour game claim to run for a day,
// which breaks seeking in every player.
func (s *Supervisor) repairDuration(ctx context.Context, outputPath string) error {
	duration, err := s.runner.Probe(ctx, outputPath)
	if err != nil {
		return err
	}
	if duration <= 86400 {
		return nil
	}

	logger.Info("File %s has an abnormal duration of %.0f seconds, remuxing", outputPath, duration)

	tempPath := outputPath + ".remux.ts"
	if err := s.runner.Remux(ctx, outputPath, tempPath); err != nil {
		os.Remove(tempPath)
		return err
	}
	if err := os.Rename(tempPath, outputPath); err != nil {
		return err
	}

	metrics.Remuxes.Inc()
	return nil
}

func (s *Supervisor) writeAttemptLog(logPath string, stream resolver.Stream, res CaptureResult, elapsedMin float64) {
	var log strings.Builder
	fmt.Fprintf(&log, "Exit Code: %d\n", res.ExitCode)
	fmt.Fprintf(&log, "Stream Provider: %s\n", stream.Provider)
	fmt.Fprintf(&log, "Stream URL: %s\n", s.cfg.LogURL(stream.URL))
	fmt.Fprintf(&log, "Duration (min): %.0f\n", elapsedMin)
	fmt.Fprintf(&log, "Std Out: %s\n", res.Stdout)
	fmt.Fprintf(&log, "Std Err: %s\n", res.Stderr)

	if err := os.WriteFile(logPath, []byte(log.String()), 0o644); err != nil {
		logger.Error("Writing attempt log %s: %v", logPath, err)
	}
}
