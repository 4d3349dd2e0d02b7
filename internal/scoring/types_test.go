package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllTerminal(t *testing.T) {
	assert.False(t, AllTerminal(nil), "no data is not the same as done")
	assert.True(t, AllTerminal([]Fixture{
		{Status: StatusFinished}, {Status: StatusFinished},
	}))
	assert.False(t, AllTerminal([]Fixture{
		{Status: StatusFinished}, {Status: StatusInProgress},
	}))
	assert.False(t, AllTerminal([]Fixture{
		{Status: StatusFinished}, {Status: StatusPostponed},
	}), "a postponed fixture gets replayed, so its period is not done")
}

func TestEarliestKickoff(t *testing.T) {
	early := time.Date(2026, 5, 9, 12, 30, 0, 0, time.UTC)
	fixtures := []Fixture{
		{Kickoff: early.Add(5 * time.Hour)},
		{Kickoff: early},
		{Kickoff: early.Add(2 * time.Hour)},
	}

	got, ok := EarliestKickoff(fixtures)
	assert.True(t, ok)
	assert.Equal(t, early, got)

	_, ok = EarliestKickoff(nil)
	assert.False(t, ok)
}
