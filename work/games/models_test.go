package games

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortTeamProLeaguesUseNickname(t *testing.T) {
	g := Game{League: LeagueMlb, HomeTeam: "Detroit Tigers", AwayTeam: "Boston Red Sox"}
	assert.Equal(t, "tigers", g.ShortHomeTeam())
	assert.Equal(t, "sox", g.ShortAwayTeam())
}

func TestShortTeamCollegeKeepsFullName(t *testing.T) {
	g := Game{League: LeagueCfb, HomeTeam: "Michigan State", AwayTeam: "Ohio State"}
	assert.Equal(t, "michigan-state", g.ShortHomeTeam())
	assert.Equal(t, "ohio-state", g.ShortAwayTeam())
}

func TestIsFinal(t *testing.T) {
	assert.True(t, Game{State: StateFinal}.IsFinal())
	assert.False(t, Game{State: StateInProgress}.IsFinal())
	assert.False(t, Game{State: StateScheduled}.IsFinal())
}
