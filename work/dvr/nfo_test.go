package dvr

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gamedvr/work/games"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteNfo(t *testing.T) {
	g := games.Game{
		League:   games.LeagueNhl,
		HomeTeam: "Detroit Red Wings",
		AwayTeam: "Chicago Blackhawks",
		GameTime: time.Date(2026, 1, 31, 19, 0, 0, 0, time.UTC),
	}

	path := filepath.Join(t.TempDir(), "game.nfo")
	require.NoError(t, WriteNfo(path, g, 3))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var details episodeDetails
	require.NoError(t, xml.Unmarshal(data, &details))

	assert.Equal(t, "01-31-blackhawks-wings-03", details.Title)
	assert.Equal(t, games.LeagueNhl, details.ShowTitle)
	assert.Equal(t, "Chicago Blackhawks at Detroit Red Wings on 2026-01-31 (03)", details.Plot)
	assert.Equal(t, "Sport", details.Genre)
	assert.Equal(t, "2026-01-31", details.Aired)
	assert.Equal(t, "2026-01-31", details.Season)
	assert.Equal(t, "03", details.Episode)
}
