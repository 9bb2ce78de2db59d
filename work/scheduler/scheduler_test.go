package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gamedvr/work/config"
	"gamedvr/work/games"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSupervisor struct {
	mu    sync.Mutex
	seen  []int64
	block chan struct{}
}

func (f *fakeSupervisor) Supervise(ctx context.Context, g games.Game) {
	f.mu.Lock()
	f.seen = append(f.seen, g.ID)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeSupervisor) supervised() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.seen...)
}

func newTestScheduler(t *testing.T, sup GameSupervisor) (*Scheduler, *games.Store) {
	t.Helper()

	store, err := games.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	t.Cleanup(pool.Release)

	cfg := &config.Config{PromoteInterval: time.Hour}
	return New(cfg, store, sup, pool), store
}

func insertDueGame(t *testing.T, store *games.Store, home string) games.Game {
	t.Helper()
	g := games.Game{
		League:   games.LeagueMlb,
		HomeTeam: home,
		AwayTeam: "Visitors",
		GameTime: time.Now().UTC().Add(-30 * time.Minute),
		State:    games.StateInProgress,
	}
	require.NoError(t, store.UpsertGame(g))
	list, err := store.GamesInWindow(g.GameTime.Add(-time.Minute), g.GameTime.Add(time.Minute))
	require.NoError(t, err)
	for _, got := range list {
		if got.HomeTeam == home {
			return got
		}
	}
	t.Fatalf("game not found after insert")
	return games.Game{}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestPromoteDueStartsSupervision(t *testing.T) {
	sup := &fakeSupervisor{}
	sched, store := newTestScheduler(t, sup)

	g := insertDueGame(t, store, "Detroit Tigers")
	_, err := store.ScheduleRecording(g.ID)
	require.NoError(t, err)

	sched.promoteDue(context.Background())

	waitFor(t, func() bool { return len(sup.supervised()) == 1 })
	assert.Equal(t, []int64{g.ID}, sup.supervised())

	rec, err := store.GetRecording(g.ID)
	require.NoError(t, err)
	assert.Equal(t, games.RecordingStarted, rec.State)
}

func TestPromoteDueIsIdempotent(t *testing.T) {
	sup := &fakeSupervisor{block: make(chan struct{})}
	defer close(sup.block)

	sched, store := newTestScheduler(t, sup)

	g := insertDueGame(t, store, "Detroit Tigers")
	_, err := store.ScheduleRecording(g.ID)
	require.NoError(t, err)

	sched.promoteDue(context.Background())
	sched.promoteDue(context.Background())
	sched.promoteDue(context.Background())

	waitFor(t, func() bool { return len(sup.supervised()) == 1 })
	assert.Len(t, sup.supervised(), 1, "a recording is supervised exactly once")
}

func TestPromoteDueIgnoresFutureGames(t *testing.T) {
	sup := &fakeSupervisor{}
	sched, store := newTestScheduler(t, sup)

	g := games.Game{
		League:   games.LeagueMlb,
		HomeTeam: "Detroit Tigers",
		AwayTeam: "Visitors",
		GameTime: time.Now().UTC().Add(2 * time.Hour),
		State:    games.StateScheduled,
	}
	require.NoError(t, store.UpsertGame(g))
	list, err := store.GamesInWindow(g.GameTime.Add(-time.Minute), g.GameTime.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = store.ScheduleRecording(list[0].ID)
	require.NoError(t, err)

	sched.promoteDue(context.Background())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sup.supervised())

	rec, err := store.GetRecording(list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, games.RecordingScheduled, rec.State)
}

func TestPromoteDueMultipleGames(t *testing.T) {
	sup := &fakeSupervisor{}
	sched, store := newTestScheduler(t, sup)

	a := insertDueGame(t, store, "Detroit Tigers")
	b := insertDueGame(t, store, "Chicago Cubs")
	_, err := store.ScheduleRecording(a.ID)
	require.NoError(t, err)
	_, err = store.ScheduleRecording(b.ID)
	require.NoError(t, err)

	sched.promoteDue(context.Background())

	waitFor(t, func() bool { return len(sup.supervised()) == 2 })
}
