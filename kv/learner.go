package kv

import "github.com/yurriy/paxossim/sim"

// Learner is the learner role for a single key. It watches acceptor votes
// go by and declares a value chosen the moment a majority agree on it.
type Learner struct {
	processCount int
	accepted     map[Round]map[sim.Pid]string

	// ChosenValue is nil until a majority of acceptors have voted for the
	// same value under some round, at which point it is set once and
	// never changed again. ChosenRound is that value's witness round
	// (Learn.ProposedRound, not the ballot round votes arrived under),
	// used to tell a client whether its own request was the one that won.
	ChosenValue *string
	ChosenRound Round
}

// NewLearner creates a learner that has seen nothing yet, sized to a
// cluster of processCount total processes.
func NewLearner(processCount int) *Learner {
	return &Learner{processCount: processCount, accepted: map[Round]map[sim.Pid]string{}, ChosenRound: NoRound}
}

// OnLearn records that from voted for value under round, with proposedRound
// naming the round whose value this is. Once a majority of acceptors have
// voted for the same value under the same round, the key is considered
// decided; further Learns are recorded but never overturn that decision.
func (l *Learner) OnLearn(from sim.Pid, round, proposedRound Round, value string) {
	votes, ok := l.accepted[round]
	if !ok {
		votes = map[sim.Pid]string{}
		l.accepted[round] = votes
	}
	votes[from] = value

	if l.ChosenValue != nil {
		return
	}
	// processCount/2 with Go's truncating integer division, where
	// processCount counts the client too: a strict majority of acceptors
	// when processCount is even (an odd replica count), only a tie when
	// processCount is odd (an even replica count). Carried over
	// unresolved from the reference this threshold is modeled on.
	if len(votes) < l.processCount/2 {
		return
	}
	v := value
	l.ChosenValue = &v
	l.ChosenRound = proposedRound
}
