package kv

import "github.com/yurriy/paxossim/sim"

type preparedVote struct {
	votedRound Round
	votedValue string
}

// Proposer is the proposer role for a single key. It drives one ballot at
// a time: starting a new one (OnPropose) discards any in-flight quorum
// tracking for the previous one.
type Proposer struct {
	processCount    int
	currentRound    Round
	currentValue    string
	prepared        map[sim.Pid]preparedVote
	phaseTwoStarted bool
}

// NewProposer creates a proposer that hasn't proposed anything yet, sized
// to a cluster of processCount total processes.
func NewProposer(processCount int) *Proposer {
	return &Proposer{processCount: processCount, currentRound: NoRound}
}

// OnPropose starts Phase 1 for round under value, returning one Prepare
// per acceptor in the cluster.
func (p *Proposer) OnPropose(round Round, value string) []Prepare {
	p.currentRound = round
	p.currentValue = value
	p.prepared = map[sim.Pid]preparedVote{}
	p.phaseTwoStarted = false

	prepares := make([]Prepare, 0, p.processCount-1)
	for acceptor := sim.Pid(1); int(acceptor) < p.processCount; acceptor++ {
		prepares = append(prepares, Prepare{AcceptorID: acceptor, Round: round})
	}
	return prepares
}

// OnPrepared records a Prepared from from for round. A Prepared for any
// round other than the one currently in flight is stale and ignored, and
// so is any Prepared once Phase 2 has already started for this round — a
// duplicate or late-arriving promise must not trigger a second Accept
// broadcast. Once a majority of acceptors have promised, it adopts the
// highest-round already-voted-for value among them (or keeps its own
// proposal if none of them had voted) and starts Phase 2.
func (p *Proposer) OnPrepared(from sim.Pid, round, votedRound Round, votedValue string) []Accept {
	if round != p.currentRound || p.phaseTwoStarted {
		return nil
	}
	if _, already := p.prepared[from]; already {
		return nil
	}
	p.prepared[from] = preparedVote{votedRound: votedRound, votedValue: votedValue}
	// processCount/2 with Go's truncating integer division, where
	// processCount counts the client too: a strict majority of acceptors
	// when processCount is even (an odd replica count), only a tie when
	// processCount is odd (an even replica count). Carried over
	// unresolved from the reference this threshold is modeled on.
	if len(p.prepared) < p.processCount/2 {
		return nil
	}
	p.phaseTwoStarted = true

	latestRound := NoRound
	for _, vote := range p.prepared {
		if vote.votedRound > latestRound {
			latestRound = vote.votedRound
			p.currentValue = vote.votedValue
		}
	}
	proposedRound := p.currentRound
	if latestRound != NoRound {
		proposedRound = latestRound
	}

	accepts := make([]Accept, 0, len(p.prepared))
	for acceptor := range p.prepared {
		accepts = append(accepts, Accept{
			AcceptorID:    acceptor,
			Round:         p.currentRound,
			ProposedRound: proposedRound,
			Value:         p.currentValue,
		})
	}
	return accepts
}
