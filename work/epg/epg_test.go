package epg

import (
	"testing"
	"time"

	"gamedvr/work/games"

	"github.com/stretchr/testify/assert"
)

func gameAt(league string, hour int) games.Game {
	return games.Game{
		League:   league,
		GameTime: time.Date(2026, 4, 12, hour, 0, 0, 0, time.UTC),
	}
}

func channels(list []games.Game) []string {
	out := make([]string, len(list))
	for i, g := range list {
		out[i] = g.Channel
	}
	return out
}

func TestAllocateReusesFreedSlots(t *testing.T) {
	list := []games.Game{
		gameAt("MLB", 0),
		gameAt("MLB", 1),
		gameAt("MLB", 5),
	}

	list = Allocate(list, 4*time.Hour)

	// the midnight game frees channel 1 at 04:00, so the 05:00 game
	// reuses it instead of opening a third channel
	assert.Equal(t, []string{"MLB-01", "MLB-02", "MLB-01"}, channels(list))
}

func TestAllocateOverlappingGamesGetDistinctChannels(t *testing.T) {
	list := []games.Game{
		gameAt("NBA", 19),
		gameAt("NBA", 19),
		gameAt("NBA", 20),
	}

	list = Allocate(list, 4*time.Hour)

	assert.Equal(t, []string{"NBA-01", "NBA-02", "NBA-03"}, channels(list))
}

func TestAllocateSlotFreesExactlyAtWindowEnd(t *testing.T) {
	list := []games.Game{
		gameAt("NHL", 0),
		gameAt("NHL", 4),
	}

	list = Allocate(list, 4*time.Hour)

	// a slot busy until 04:00 is free for a game starting at 04:00
	assert.Equal(t, []string{"NHL-01", "NHL-01"}, channels(list))
}

func TestAllocateLeaguesAreIndependent(t *testing.T) {
	list := []games.Game{
		gameAt("MLB", 13),
		gameAt("NHL", 13),
		gameAt("MLB", 14),
	}

	list = Allocate(list, 4*time.Hour)

	assert.Equal(t, []string{"MLB-01", "NHL-01", "MLB-02"}, channels(list))
}

func TestAllocateChannelNumbersArePadded(t *testing.T) {
	list := make([]games.Game, 11)
	for i := range list {
		list[i] = gameAt("CFB", 12)
	}

	list = Allocate(list, 4*time.Hour)

	assert.Equal(t, "CFB-01", list[0].Channel)
	assert.Equal(t, "CFB-11", list[10].Channel)
}
