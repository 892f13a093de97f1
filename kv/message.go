package kv

import (
	"encoding/json"
	"fmt"

	"github.com/yurriy/paxossim/sim"
)

// Round numbers a proposer's ballot. Round and request id are the same
// number: a client's request id doubles as the ballot its replica proposes
// under, so there is no separate round allocator.
type Round int

// NoRound marks "no round seen yet" for acceptors, proposers and learners
// that haven't been touched for a key.
const NoRound Round = -1

// ClientRequest is the wire shape of a "get" or "set" call from a Client to
// a Replica.
type ClientRequest struct {
	RequestID int    `json:"request_id"`
	Method    string `json:"method"`
	Key       string `json:"key"`
	Value     string `json:"value,omitempty"`
}

// ClientReply is the wire shape of a Replica's answer to a ClientRequest.
// Flag is only meaningful for "set": true iff this request's round was the
// one that decided the key's value.
type ClientReply struct {
	RequestID int    `json:"request_id"`
	Value     string `json:"value"`
	Flag      *bool  `json:"flag,omitempty"`
}

// internalMessage is the tagged union of messages exchanged between the
// proposer/acceptor/learner roles of a key's Paxos instance. Every variant
// carries a cls tag on the wire so a receiving Replica can dispatch without
// runtime type inspection of the decoded payload.
type internalMessage interface {
	cls() string
}

// Prepare asks an acceptor to promise not to accept any round before
// Round.
type Prepare struct {
	AcceptorID sim.Pid
	Round      Round
}

func (Prepare) cls() string { return "prepare" }

// Prepared is an acceptor's promise, carrying back whatever it had already
// voted for so the proposer can adopt it instead of clobbering it.
type Prepared struct {
	ProposerID sim.Pid
	Round      Round
	VotedRound Round
	VotedValue string
}

func (Prepared) cls() string { return "prepared" }

// Accept asks an acceptor to vote for Value under Round. ProposedRound
// names the round whose value is being (re-)proposed, which may be earlier
// than Round if the proposer adopted an already-voted-for value.
type Accept struct {
	AcceptorID    sim.Pid
	Round         Round
	ProposedRound Round
	Value         string
}

func (Accept) cls() string { return "accept" }

// Learn tells a learner that an acceptor voted for Value.
type Learn struct {
	LearnerID     sim.Pid
	Round         Round
	ProposedRound Round
	Value         string
}

func (Learn) cls() string { return "learn" }

// Propose starts a proposer's Phase 1 for a key. It never crosses the
// wire: a Replica constructs it locally the moment a "set" request arrives
// and dispatches it to its own proposer in the same tick.
type Propose struct {
	Round Round
	Value string
}

// wireEnvelope is the single JSON shape every message between replicas is
// serialized as, and the shape a Replica decodes every incoming payload
// with (client requests included), mirroring the plain key-value mappings
// the message classes serialize to in the reference this protocol is
// modeled on. Replies to clients are encoded as ClientReply instead. Not
// every field is populated for every message kind; the method/cls fields
// say which ones are.
type wireEnvelope struct {
	Method        string `json:"method"`
	RequestID     int    `json:"request_id"`
	Key           string `json:"key,omitempty"`
	Value         string `json:"value,omitempty"`
	Cls           string `json:"cls,omitempty"`
	Round         Round  `json:"round"`
	VotedRound    Round  `json:"voted_round"`
	VotedValue    string `json:"voted_value,omitempty"`
	ProposedRound Round  `json:"proposed_round"`
}

const internalMethod = "internal"

func encodeInternal(key string, msg internalMessage) ([]byte, error) {
	env := wireEnvelope{Method: internalMethod, Key: key, Cls: msg.cls()}
	switch m := msg.(type) {
	case Prepare:
		env.Round = m.Round
	case Prepared:
		env.Round = m.Round
		env.VotedRound = m.VotedRound
		env.VotedValue = m.VotedValue
	case Accept:
		env.Round = m.Round
		env.ProposedRound = m.ProposedRound
		env.Value = m.Value
	case Learn:
		env.Round = m.Round
		env.ProposedRound = m.ProposedRound
		env.Value = m.Value
	default:
		return nil, fmt.Errorf("paxos: unknown internal message type %T", msg)
	}
	return json.Marshal(env)
}

func decodeInternal(env wireEnvelope) (internalMessage, error) {
	switch env.Cls {
	case "prepare":
		return Prepare{Round: env.Round}, nil
	case "prepared":
		return Prepared{Round: env.Round, VotedRound: env.VotedRound, VotedValue: env.VotedValue}, nil
	case "accept":
		return Accept{Round: env.Round, ProposedRound: env.ProposedRound, Value: env.Value}, nil
	case "learn":
		return Learn{Round: env.Round, ProposedRound: env.ProposedRound, Value: env.Value}, nil
	default:
		return nil, fmt.Errorf("paxos: unknown internal message cls %q", env.Cls)
	}
}
