package kv

import "github.com/yurriy/paxossim/sim"

// Acceptor is the acceptor role for a single key, run by every replica for
// every key it has seen a message about.
type Acceptor struct {
	processCount  int
	promisedRound Round
	votedRound    Round
	votedValue    string
}

// NewAcceptor creates an acceptor that has promised and voted for nothing
// yet, sized to a cluster of processCount total processes (replicas plus
// the client).
func NewAcceptor(processCount int) *Acceptor {
	return &Acceptor{processCount: processCount, promisedRound: NoRound, votedRound: NoRound}
}

// OnPrepare handles a Prepare for round from proposer. It promises not to
// accept any earlier round and returns the Prepared reply to send back, or
// ok=false if round is stale and nothing should be sent.
//
// The comparison is >= rather than >: the same Prepare retransmitted for a
// round this acceptor already promised must still be answered, or a
// proposer that only ever sees silence after a dropped Prepared can never
// retry past it.
func (a *Acceptor) OnPrepare(proposer sim.Pid, round Round) (Prepared, bool) {
	if round < a.promisedRound {
		return Prepared{}, false
	}
	a.promisedRound = round
	return Prepared{
		ProposerID: proposer,
		Round:      round,
		VotedRound: a.votedRound,
		VotedValue: a.votedValue,
	}, true
}

// OnAccept handles an Accept for round, proposedRound and value. It votes
// unless round is stale, and on a vote returns one Learn per learner in
// the cluster. Votes can be re-cast for the same round (the round check is
// also >=, matching Prepare) so a retransmitted Accept is harmless.
func (a *Acceptor) OnAccept(round, proposedRound Round, value string) []Learn {
	if round < a.promisedRound {
		return nil
	}
	a.votedRound = round
	a.votedValue = value

	learns := make([]Learn, 0, a.processCount-1)
	for learner := sim.Pid(1); int(learner) < a.processCount; learner++ {
		learns = append(learns, Learn{
			LearnerID:     learner,
			Round:         round,
			ProposedRound: proposedRound,
			Value:         value,
		})
	}
	return learns
}
