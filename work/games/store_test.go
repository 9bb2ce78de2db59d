package games

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertGame(t *testing.T, s *Store, g Game) Game {
	t.Helper()
	require.NoError(t, s.UpsertGame(g))

	list, err := s.GamesInWindow(g.GameTime.Add(-time.Minute), g.GameTime.Add(time.Minute))
	require.NoError(t, err)
	for _, got := range list {
		if got.League == g.League && got.HomeTeam == g.HomeTeam && got.AwayTeam == g.AwayTeam && got.GameTime.Equal(g.GameTime.UTC()) {
			return got
		}
	}
	t.Fatalf("inserted game not found: %+v", g)
	return Game{}
}

func testGame(state string) Game {
	return Game{
		League:   LeagueMlb,
		HomeTeam: "Detroit Tigers",
		AwayTeam: "Cleveland Guardians",
		GameTime: time.Date(2026, 7, 4, 17, 10, 0, 0, time.UTC),
		State:    state,
	}
}

func TestUpsertGameRefreshesState(t *testing.T) {
	s := openTestStore(t)
	g := insertGame(t, s, testGame(StateScheduled))

	updated := testGame(StateInProgress)
	require.NoError(t, s.UpsertGame(updated))

	got, err := s.GetGame(g.ID)
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, got.State)
	assert.Equal(t, g.ID, got.ID, "upsert must not duplicate the matchup")
}

func TestGetGameNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetGame(12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScheduleRecordingOncePerGame(t *testing.T) {
	s := openTestStore(t)
	g := insertGame(t, s, testGame(StateScheduled))

	rec, err := s.ScheduleRecording(g.ID)
	require.NoError(t, err)
	assert.Equal(t, RecordingScheduled, rec.State)
	assert.Nil(t, rec.StartedAt)

	_, err = s.ScheduleRecording(g.ID)
	assert.ErrorIs(t, err, ErrAlreadyScheduled)
}

func TestCancelRecording(t *testing.T) {
	s := openTestStore(t)
	g := insertGame(t, s, testGame(StateScheduled))

	_, err := s.ScheduleRecording(g.ID)
	require.NoError(t, err)

	require.NoError(t, s.CancelRecording(g.ID))
	_, err = s.GetRecording(g.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.CancelRecording(g.ID), ErrNotFound)
}

func TestDueRecordingsOnlyPastScheduled(t *testing.T) {
	s := openTestStore(t)

	past := testGame(StateInProgress)
	future := testGame(StateScheduled)
	future.HomeTeam = "Chicago Cubs"
	future.GameTime = past.GameTime.Add(6 * time.Hour)

	pastGame := insertGame(t, s, past)
	futureGame := insertGame(t, s, future)

	_, err := s.ScheduleRecording(pastGame.ID)
	require.NoError(t, err)
	_, err = s.ScheduleRecording(futureGame.ID)
	require.NoError(t, err)

	due, err := s.DueRecordings(past.GameTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, pastGame.ID, due[0].ID)

	// a promoted recording is no longer due
	promoted, err := s.StartRecording(pastGame.ID)
	require.NoError(t, err)
	require.True(t, promoted)

	due, err = s.DueRecordings(past.GameTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestStartRecordingIsAtomic(t *testing.T) {
	s := openTestStore(t)
	g := insertGame(t, s, testGame(StateInProgress))

	_, err := s.ScheduleRecording(g.ID)
	require.NoError(t, err)

	first, err := s.StartRecording(g.ID)
	require.NoError(t, err)
	second, err := s.StartRecording(g.ID)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second, "only one promoter may win")

	rec, err := s.GetRecording(g.ID)
	require.NoError(t, err)
	assert.Equal(t, RecordingStarted, rec.State)
	assert.NotNil(t, rec.StartedAt)
}

func TestCompleteRecordingRequiresStarted(t *testing.T) {
	s := openTestStore(t)
	g := insertGame(t, s, testGame(StateInProgress))

	_, err := s.ScheduleRecording(g.ID)
	require.NoError(t, err)

	// completing before starting is a no-op
	require.NoError(t, s.CompleteRecording(g.ID))
	rec, err := s.GetRecording(g.ID)
	require.NoError(t, err)
	assert.Equal(t, RecordingScheduled, rec.State)

	_, err = s.StartRecording(g.ID)
	require.NoError(t, err)
	require.NoError(t, s.CompleteRecording(g.ID))

	rec, err = s.GetRecording(g.ID)
	require.NoError(t, err)
	assert.Equal(t, RecordingCompleted, rec.State)
	assert.NotNil(t, rec.CompletedAt)
}

func TestChannelLookupRequiresInProgress(t *testing.T) {
	s := openTestStore(t)
	g := insertGame(t, s, testGame(StateScheduled))

	require.NoError(t, s.SetChannel(g.ID, "MLB-01"))

	_, err := s.CurrentGameByChannel("MLB-01")
	assert.ErrorIs(t, err, ErrNotFound, "scheduled games are not tunable")

	live := testGame(StateInProgress)
	require.NoError(t, s.UpsertGame(live))

	got, err := s.CurrentGameByChannel("MLB-01")
	require.NoError(t, err)
	assert.Equal(t, g.ID, got.ID)
}

func TestSearchGamesMatchesTeamAndLeague(t *testing.T) {
	s := openTestStore(t)

	mlb := testGame(StateScheduled)
	mlb.GameTime = time.Now().UTC().Add(2 * time.Hour)
	insertGame(t, s, mlb)

	nhl := Game{
		League:   LeagueNhl,
		HomeTeam: "Detroit Red Wings",
		AwayTeam: "Chicago Blackhawks",
		GameTime: time.Now().UTC().Add(3 * time.Hour),
		State:    StateScheduled,
	}
	insertGame(t, s, nhl)

	byTeam, err := s.SearchGames("red wings", 200)
	require.NoError(t, err)
	require.Len(t, byTeam, 1)
	assert.Equal(t, LeagueNhl, byTeam[0].League)

	byLeague, err := s.SearchGames("nhl", 200)
	require.NoError(t, err)
	require.Len(t, byLeague, 1)

	all, err := s.SearchGames("", 200)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListGamesWindow(t *testing.T) {
	s := openTestStore(t)

	today := testGame(StateScheduled)
	today.GameTime = time.Now().UTC().Add(time.Hour)
	insertGame(t, s, today)

	nextWeek := testGame(StateScheduled)
	nextWeek.HomeTeam = "Minnesota Twins"
	nextWeek.GameTime = time.Now().UTC().Add(7 * 24 * time.Hour)
	insertGame(t, s, nextWeek)

	list, err := s.ListGames(LeagueMlb, today.GameTime.Add(-2*time.Hour), today.GameTime.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Detroit Tigers", list[0].HomeTeam)
}
