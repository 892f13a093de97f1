package kv

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yurriy/paxossim/sim"
)

// keyState is the proposer/acceptor/learner role triple a Replica keeps
// for one key, materialized lazily the first time any message names that
// key.
type keyState struct {
	proposer *Proposer
	acceptor *Acceptor
	learner  *Learner
}

type pendingClientRequest struct {
	sender sim.Pid
	req    ClientRequest
}

type pendingInternalMessage struct {
	sender sim.Pid
	key    string
	msg    internalMessage
}

// Replica is a sim.Process that answers client get/set calls for any
// number of keys by running an independent single-decree Paxos instance
// per key. Every replica plays proposer, acceptor and learner for every
// key; there are no dedicated role processes.
//
// OnReceive never dispatches: it only classifies an incoming payload and
// appends it to internalRequests or clientRequests. All role dispatch and
// all client replies happen inside OnTick, which drains internalRequests
// first and clientRequests second, exactly the two-phase order the
// reference process this replica is modeled on uses.
type Replica struct {
	pid              sim.Pid
	processCount     int
	keys             map[string]*keyState
	internalRequests []pendingInternalMessage
	clientRequests   []pendingClientRequest
	log              *logrus.Entry
}

// NewReplica returns a Replica bound to pid. Use it as a sim.Spawn factory:
// env.Spawn(func(pid sim.Pid) sim.Process { return kv.NewReplica(pid) }).
func NewReplica(pid sim.Pid) *Replica {
	return &Replica{pid: pid, keys: map[string]*keyState{}}
}

func (r *Replica) OnSetup(processCount int) {
	r.processCount = processCount
	r.log = logrus.WithField("pid", r.pid)
}

func (r *Replica) key(k string) *keyState {
	ks, ok := r.keys[k]
	if !ok {
		ks = &keyState{
			proposer: NewProposer(r.processCount),
			acceptor: NewAcceptor(r.processCount),
			learner:  NewLearner(r.processCount),
		}
		r.keys[k] = ks
	}
	return ks
}

// OnTick drains internalRequests against the proposer/acceptor/learner role
// state, then drains clientRequests against whatever that drain decided.
// A client request whose key still isn't decided is put right back, to be
// retried on a later tick.
func (r *Replica) OnTick(ctx sim.Context) {
	internal := r.internalRequests
	r.internalRequests = nil
	for _, p := range internal {
		r.dispatch(ctx, p.sender, p.key, p.msg)
	}

	client := r.clientRequests
	r.clientRequests = nil
	for _, p := range client {
		if !r.tryReply(ctx, p) {
			r.clientRequests = append(r.clientRequests, p)
		}
	}
}

// OnReceive classifies an incoming payload as a client request or an
// internal Paxos message and queues it for the next OnTick. A "set" also
// queues the Propose that starts its key's ballot, so the ballot and the
// request that triggered it drain in the same tick.
func (r *Replica) OnReceive(ctx sim.Context, sender sim.Pid, payload []byte) {
	var env wireEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		panic(fmt.Errorf("paxos: decoding message at replica %d: %w", r.pid, err))
	}

	switch env.Method {
	case "get", "set":
		req := ClientRequest{RequestID: env.RequestID, Method: env.Method, Key: env.Key, Value: env.Value}
		r.clientRequests = append(r.clientRequests, pendingClientRequest{sender: sender, req: req})
		if req.Method == "set" {
			r.internalRequests = append(r.internalRequests, pendingInternalMessage{
				sender: sender,
				key:    req.Key,
				msg:    Propose{Round: Round(req.RequestID), Value: req.Value},
			})
		}
	case internalMethod:
		msg, err := decodeInternal(env)
		if err != nil {
			panic(fmt.Errorf("paxos: replica %d: %w", r.pid, err))
		}
		r.internalRequests = append(r.internalRequests, pendingInternalMessage{sender: sender, key: env.Key, msg: msg})
	default:
		panic(fmt.Errorf("paxos: replica %d: unknown message method %q", r.pid, env.Method))
	}
}

// tryReply answers p if its key has been decided, returning whether it
// did.
func (r *Replica) tryReply(ctx sim.Context, p pendingClientRequest) bool {
	ks := r.key(p.req.Key)
	if ks.learner.ChosenValue == nil {
		return false
	}
	reply := ClientReply{RequestID: p.req.RequestID, Value: *ks.learner.ChosenValue}
	if p.req.Method == "set" {
		decided := ks.learner.ChosenRound == Round(p.req.RequestID)
		reply.Flag = &decided
	}
	r.log.WithFields(logrus.Fields{"key": p.req.Key, "request_id": p.req.RequestID}).Debug("replying to client")
	r.replyTo(ctx, p.sender, reply)
	return true
}

// dispatch runs one internal message against the role state for key,
// forwarding whatever outgoing messages the role produces. Forwarded
// messages go out on ctx immediately (including to r.pid itself, which the
// environment delivers inline into OnReceive) rather than being queued
// here; they land in internalRequests via that OnReceive call and drain on
// a later tick like any other message.
func (r *Replica) dispatch(ctx sim.Context, sender sim.Pid, key string, msg internalMessage) {
	ks := r.key(key)
	switch m := msg.(type) {
	case Propose:
		r.log.WithFields(logrus.Fields{"key": key, "round": m.Round}).Debug("starting ballot")
		for _, prepare := range ks.proposer.OnPropose(m.Round, m.Value) {
			r.sendInternal(ctx, prepare.AcceptorID, key, prepare)
		}
	case Prepare:
		if prepared, ok := ks.acceptor.OnPrepare(sender, m.Round); ok {
			r.sendInternal(ctx, sender, key, prepared)
		}
	case Prepared:
		for _, accept := range ks.proposer.OnPrepared(sender, m.Round, m.VotedRound, m.VotedValue) {
			r.sendInternal(ctx, accept.AcceptorID, key, accept)
		}
	case Accept:
		for _, learn := range ks.acceptor.OnAccept(m.Round, m.ProposedRound, m.Value) {
			r.sendInternal(ctx, learn.LearnerID, key, learn)
		}
	case Learn:
		ks.learner.OnLearn(sender, m.Round, m.ProposedRound, m.Value)
	default:
		panic(fmt.Errorf("paxos: replica %d: unknown internal message %T", r.pid, msg))
	}
}

func (r *Replica) sendInternal(ctx sim.Context, recipient sim.Pid, key string, msg internalMessage) {
	payload, err := encodeInternal(key, msg)
	if err != nil {
		panic(fmt.Errorf("paxos: replica %d: %w", r.pid, err))
	}
	ctx.Send(recipient, payload)
}

func (r *Replica) replyTo(ctx sim.Context, recipient sim.Pid, reply ClientReply) {
	payload, err := json.Marshal(reply)
	if err != nil {
		panic(fmt.Errorf("paxos: replica %d: encoding reply: %w", r.pid, err))
	}
	ctx.Send(recipient, payload)
}
