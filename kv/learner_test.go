package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLearnerDecidesOnMajority(t *testing.T) {
	l := NewLearner(5) // quorum = 5/2 = 2
	l.OnLearn(1, 10, 10, "v")
	assert.Nil(t, l.ChosenValue)

	l.OnLearn(2, 10, 10, "v")
	require.NotNil(t, l.ChosenValue)
	assert.Equal(t, "v", *l.ChosenValue)
	assert.Equal(t, Round(10), l.ChosenRound)
}

func TestLearnerChosenRoundIsTheWitnessNotTheBallot(t *testing.T) {
	l := NewLearner(5)
	// ballot round 20 carries forward a value originally decided at round 7.
	l.OnLearn(1, 20, 7, "adopted")
	l.OnLearn(2, 20, 7, "adopted")
	require.NotNil(t, l.ChosenValue)
	assert.Equal(t, Round(7), l.ChosenRound, "chosen round must be the witness round, not the ballot round")
}

func TestLearnerIsStickyOnceDecided(t *testing.T) {
	l := NewLearner(3) // quorum = 3/2 = 1
	l.OnLearn(1, 5, 5, "first")
	require.NotNil(t, l.ChosenValue)
	assert.Equal(t, "first", *l.ChosenValue)

	l.OnLearn(2, 6, 6, "second")
	assert.Equal(t, "first", *l.ChosenValue, "a decided key must never change its chosen value")
}

func TestLearnerTracksVotesPerRoundSeparately(t *testing.T) {
	l := NewLearner(5)
	l.OnLearn(1, 10, 10, "a")
	l.OnLearn(1, 11, 11, "b") // same acceptor voting under a different round
	assert.Nil(t, l.ChosenValue, "votes from different rounds must not be pooled together")
}
