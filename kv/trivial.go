package kv

import (
	"encoding/json"
	"fmt"

	"github.com/yurriy/paxossim/sim"
)

// TrivialStore is a non-Paxos, first-writer-wins key-value store that
// answers every get/set request the instant it arrives, with no ballots
// and no quorum of any kind. It satisfies the exact same client wire
// protocol as Replica and exists purely to sanity-check the simulation
// harness — environment, client, futures — independently of whether the
// consensus engine itself is correct. It is never reachable from the CLI.
type TrivialStore struct {
	store map[string]string
}

// NewTrivialStore returns a TrivialStore. The pid parameter is unused but
// present so the type fits the same env.Spawn factory shape as Replica.
func NewTrivialStore(sim.Pid) *TrivialStore {
	return &TrivialStore{store: map[string]string{}}
}

func (t *TrivialStore) OnSetup(int)        {}
func (t *TrivialStore) OnTick(sim.Context) {}

func (t *TrivialStore) OnReceive(ctx sim.Context, sender sim.Pid, payload []byte) {
	var req ClientRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		panic(fmt.Errorf("trivialstore: decoding request: %w", err))
	}

	var reply ClientReply
	switch req.Method {
	case "get":
		reply = ClientReply{RequestID: req.RequestID, Value: t.store[req.Key]}
	case "set":
		existing, known := t.store[req.Key]
		wasFirst := !known
		if wasFirst {
			t.store[req.Key] = req.Value
			existing = req.Value
		}
		reply = ClientReply{RequestID: req.RequestID, Value: existing, Flag: &wasFirst}
	default:
		panic(fmt.Errorf("trivialstore: unknown method %q", req.Method))
	}

	out, err := json.Marshal(reply)
	if err != nil {
		panic(fmt.Errorf("trivialstore: encoding reply: %w", err))
	}
	ctx.Send(sender, out)
}
