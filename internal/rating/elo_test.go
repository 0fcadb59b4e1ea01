package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqualTeamsSplitKFactor(t *testing.T) {
	d := Update(Team{1500, 1500}, Team{1500, 1500}, TeamOneWins)
	assert.InDelta(t, 16.0, d.TeamOne, 0.001)
	assert.InDelta(t, -16.0, d.TeamTwo, 0.001)
}

func TestUpdateIsZeroSum(t *testing.T) {
	d := Update(Team{1700, 1300}, Team{1450, 1650}, TeamTwoWins)
	assert.InDelta(t, 0, d.TeamOne+d.TeamTwo, 0.001)
}

func TestUpsetMovesMorePoints(t *testing.T) {
	expected := Update(Team{1800, 1800}, Team{1400, 1400}, TeamOneWins)
	upset := Update(Team{1800, 1800}, Team{1400, 1400}, TeamTwoWins)
	assert.Less(t, expected.TeamOne, 16.0, "favorites gain less than the even-odds half of K")
	assert.Greater(t, upset.TeamTwo, expected.TeamOne, "an upset moves more points than an expected win")
}

func TestDrawRewardsUnderdog(t *testing.T) {
	d := Update(Team{1600, 1600}, Team{1400, 1400}, Drawn)
	assert.Less(t, d.TeamOne, 0.0)
	assert.Greater(t, d.TeamTwo, 0.0)
}

func TestApplyAddsDeltaToBothSeats(t *testing.T) {
	after := Apply(Team{1500, 1520}, 16)
	assert.Equal(t, Team{1516, 1536}, after)
}
