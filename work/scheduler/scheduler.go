// Package scheduler promotes due recordings into running supervisor loops.
// It owns the only writer path from scheduled to started, so a recording
// can never be captured twice even across overlapping ticks.
package scheduler

import (
	"context"
	"time"

	"gamedvr/work/config"
	"gamedvr/work/games"
	"gamedvr/work/logger"

	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// GameSupervisor runs the capture loop for one promoted recording. It is
// satisfied by the dvr supervisor.
type GameSupervisor interface {
	Supervise(ctx context.Context, g games.Game)
}

type Scheduler struct {
	cfg        *config.Config
	store      *games.Store
	supervisor GameSupervisor
	pool       *ants.Pool
	inFlight   *xsync.MapOf[int64, struct{}]
	stop       chan bool
}

func New(cfg *config.Config, store *games.Store, supervisor GameSupervisor, pool *ants.Pool) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		store:      store,
		supervisor: supervisor,
		pool:       pool,
		inFlight:   xsync.NewMapOf[int64, struct{}](),
		stop:       make(chan bool, 1),
	}
}

// Run ticks on the promote interval until the context is done or Stop is
// called. Each tick promotes every due recording.
func (s *Scheduler) Run(ctx context.Context) {
	// Catch up immediately: recordings already due from before a restart
	// should not wait for the first tick.
	s.promoteDue(ctx)

	ticker := time.NewTicker(s.cfg.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.promoteDue(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop signals the promote loop to terminate. Non-blocking.
func (s *Scheduler) Stop() {
	select {
	case s.stop <- true:
	default:
	}
}

// promoteDue finds scheduled recordings whose games have started and hands
// each to a supervisor worker. The database transition from scheduled to
// started is atomic, so a recording promoted here can never be picked up
// by a second scheduler pass.
func (s *Scheduler) promoteDue(ctx context.Context) {
	due, err := s.store.DueRecordings(time.Now().UTC())
	if err != nil {
		logger.Error("Scanning due recordings: %v", err)
		return
	}

	for _, g := range due {
		if _, running := s.inFlight.Load(g.ID); running {
			continue
		}

		promoted, err := s.store.StartRecording(g.ID)
		if err != nil {
			logger.Error("Promoting recording for game %d: %v", g.ID, err)
			continue
		}
		if !promoted {
			continue
		}

		logger.Info("Starting recording for %s at %s", g.AwayTeam, g.HomeTeam)

		game := g
		s.inFlight.Store(game.ID, struct{}{})
		err = s.pool.Submit(func() {
			defer s.inFlight.Delete(game.ID)
			s.supervisor.Supervise(ctx, game)
		})
		if err != nil {
			s.inFlight.Delete(game.ID)
			logger.Error("Submitting recording for game %d: %v", game.ID, err)
		}
	}
}
