package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptorPromisesAndReportsPriorVote(t *testing.T) {
	a := NewAcceptor(4)

	prepared, ok := a.OnPrepare(1, 5)
	require.True(t, ok)
	assert.Equal(t, Round(5), prepared.Round)
	assert.Equal(t, NoRound, prepared.VotedRound)

	learns := a.OnAccept(5, 5, "v1")
	require.Len(t, learns, 3) // processCount=4 -> learner ids 1,2,3

	prepared2, ok := a.OnPrepare(2, 6)
	require.True(t, ok)
	assert.Equal(t, Round(5), prepared2.VotedRound)
	assert.Equal(t, "v1", prepared2.VotedValue)
}

func TestAcceptorRejectsStalePrepare(t *testing.T) {
	a := NewAcceptor(4)
	_, ok := a.OnPrepare(1, 5)
	require.True(t, ok)

	_, ok = a.OnPrepare(2, 3)
	assert.False(t, ok, "a prepare for an earlier round than already promised must be rejected")
}

func TestAcceptorAcceptsSameRoundPrepareAgain(t *testing.T) {
	a := NewAcceptor(4)
	_, ok := a.OnPrepare(1, 5)
	require.True(t, ok)

	_, ok = a.OnPrepare(1, 5)
	assert.True(t, ok, "a retransmitted prepare for the already-promised round must still be answered")
}

func TestAcceptorRejectsStaleAccept(t *testing.T) {
	a := NewAcceptor(4)
	_, _ = a.OnPrepare(1, 5)

	learns := a.OnAccept(3, 3, "stale")
	assert.Nil(t, learns, "an accept for an earlier round than promised must be rejected")
}

func TestAcceptorLearnTargetsExcludeTheClient(t *testing.T) {
	a := NewAcceptor(4)
	learns := a.OnAccept(1, 1, "v")
	var ids []int
	for _, l := range learns {
		ids = append(ids, int(l.LearnerID))
	}
	assert.ElementsMatch(t, []int{1, 2, 3}, ids)
}
