package kv

import (
	"encoding/json"
	"fmt"

	"github.com/yurriy/paxossim/sim"
)

type pendingCall struct {
	dest    sim.Pid
	request ClientRequest
	future  *sim.Future[ClientReply]
}

// Client issues get/set calls against a replica and resolves a future per
// call once the matching reply arrives, using the request id to pair them
// up. Calls made between ticks queue up and are all sent out on the next
// OnTick, so a test driving several concurrent calls can issue them before
// stepping the environment at all.
type Client struct {
	pid           sim.Pid
	nextRequestID int
	pending       []pendingCall
	active        map[int]*sim.Future[ClientReply]
}

// NewClient returns a Client bound to pid. Use it as a sim.Spawn factory:
// env.Spawn(func(pid sim.Pid) sim.Process { return kv.NewClient(pid) }).
func NewClient(pid sim.Pid) *Client {
	return &Client{pid: pid, active: map[int]*sim.Future[ClientReply]{}}
}

func (c *Client) OnSetup(int) {}

func (c *Client) OnTick(ctx sim.Context) {
	pending := c.pending
	c.pending = nil
	for _, call := range pending {
		payload, err := json.Marshal(call.request)
		if err != nil {
			panic(fmt.Errorf("paxos: client %d: encoding request: %w", c.pid, err))
		}
		c.active[call.request.RequestID] = call.future
		ctx.Send(call.dest, payload)
	}
}

func (c *Client) OnReceive(_ sim.Context, _ sim.Pid, payload []byte) {
	var reply ClientReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		panic(fmt.Errorf("paxos: client %d: decoding reply: %w", c.pid, err))
	}
	future, ok := c.active[reply.RequestID]
	if !ok {
		panic(fmt.Errorf("paxos: client %d: reply for unknown request id %d", c.pid, reply.RequestID))
	}
	delete(c.active, reply.RequestID)
	future.SetValue(reply)
}

// Get queues a "get" call to dest for key and returns a future for its
// reply. The call isn't sent until the environment next ticks this
// client.
func (c *Client) Get(dest sim.Pid, key string) *sim.Future[ClientReply] {
	return c.call(dest, "get", key, "")
}

// Set queues a "set" call to dest proposing value for key and returns a
// future for its reply.
func (c *Client) Set(dest sim.Pid, key, value string) *sim.Future[ClientReply] {
	return c.call(dest, "set", key, value)
}

func (c *Client) call(dest sim.Pid, method, key, value string) *sim.Future[ClientReply] {
	req := ClientRequest{RequestID: c.nextRequestID, Method: method, Key: key, Value: value}
	c.nextRequestID++
	future := sim.NewFuture[ClientReply]()
	c.pending = append(c.pending, pendingCall{dest: dest, request: req, future: future})
	return future
}
