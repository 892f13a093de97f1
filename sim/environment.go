package sim

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"
)

// Direction selects which side of a process's channels StepByDeliveringMessages
// drains.
type Direction int

const (
	Incoming Direction = iota
	Outgoing
	Both
)

type channelKey struct {
	from, to Pid
}

// Environment is a deterministic discrete-event simulator: a fixed set of
// processes exchange messages over per-ordered-pair FIFO channels, driven
// entirely by explicit stepping primitives. Nothing in here spawns a
// goroutine; every callback runs to completion on the calling goroutine
// before the next step is taken, which is what makes runs reproducible
// given the same sequence of steps and the same random seed.
type Environment struct {
	log       *logrus.Logger
	processes []Process
	dead      map[Pid]bool
	channels  map[channelKey][][]byte
	clock     int
	rng       *rand.Rand
}

// NewEnvironment creates an empty environment. seed drives StepRandomly and
// nothing else, so two runs with the same seed and the same explicit
// stepping calls replay identically.
func NewEnvironment(seed int64) *Environment {
	return &Environment{
		log:      logrus.New(),
		dead:     map[Pid]bool{},
		channels: map[channelKey][][]byte{},
		clock:    0,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Logger returns the environment's own structured logger, which it uses
// for spawn, setup and kill events. It is not handed to spawned processes.
func (e *Environment) Logger() *logrus.Logger {
	return e.log
}

// Time returns the current virtual clock reading.
func (e *Environment) Time() int {
	return e.clock
}

// Spawn constructs a process via factory, handing it the pid it will be
// addressed by, and adds it to the environment. Spawn must not be called
// after Setup.
func (e *Environment) Spawn(factory func(pid Pid) Process) Pid {
	pid := Pid(len(e.processes))
	p := factory(pid)
	e.processes = append(e.processes, p)
	e.log.WithField("pid", pid).Debug("process spawned")
	return pid
}

// Setup opens a FIFO channel between every ordered pair of distinct
// processes and calls OnSetup on each, passing the total process count. It
// must be called exactly once, after every Spawn and before any stepping
// primitive.
func (e *Environment) Setup() {
	n := len(e.processes)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			e.channels[channelKey{Pid(i), Pid(j)}] = nil
		}
	}
	e.log.WithField("processes", n).Debug("environment set up")
	for _, p := range e.processes {
		p.OnSetup(n)
	}
}

// Kill marks a process as dead. Dead processes are skipped by every
// stepping primitive; messages already queued for or from them are left in
// place undelivered.
func (e *Environment) Kill(pid Pid) {
	e.dead[pid] = true
	e.log.WithField("pid", pid).Debug("process killed")
}

func (e *Environment) isDead(pid Pid) bool {
	return e.dead[pid]
}

// boundContext is the Context handed to a single OnTick/OnReceive call. It
// is invalidated the instant that call returns.
type boundContext struct {
	env  *Environment
	pid  Pid
	live bool
}

func (c *boundContext) Time() int {
	if !c.live {
		panic("sim: Context used after its callback returned")
	}
	return c.env.clock
}

// Send enqueues payload for delivery. A send to another process joins the
// FIFO channel between the two and is delivered by a later stepping
// primitive; a send to oneself is delivered immediately, inline, in the
// same callback that issued it — there is no channel a process holds with
// itself to queue onto. Either way the clock advances by exactly one.
func (c *boundContext) Send(recipient Pid, payload []byte) {
	if !c.live {
		panic("sim: Context used after its callback returned")
	}
	c.env.clock++
	if recipient == c.pid {
		nested := &boundContext{env: c.env, pid: c.pid, live: true}
		c.env.processes[c.pid].OnReceive(nested, c.pid, payload)
		nested.live = false
		return
	}
	key := channelKey{c.pid, recipient}
	if _, ok := c.env.channels[key]; !ok {
		panic(fmt.Sprintf("sim: no channel from %d to %d (unknown recipient or pid)", c.pid, recipient))
	}
	c.env.channels[key] = append(c.env.channels[key], payload)
}

func (e *Environment) runTick(pid Pid) {
	e.clock++
	ctx := &boundContext{env: e, pid: pid, live: true}
	e.processes[pid].OnTick(ctx)
	ctx.live = false
}

func (e *Environment) runDeliver(from, to Pid) {
	key := channelKey{from, to}
	queue := e.channels[key]
	payload := queue[0]
	e.channels[key] = queue[1:]
	e.clock++
	ctx := &boundContext{env: e, pid: to, live: true}
	e.processes[to].OnReceive(ctx, from, payload)
	ctx.live = false
}

// StepByTickingProcess ticks a single process, advancing the clock by one.
// A no-op if the process is dead.
func (e *Environment) StepByTickingProcess(pid Pid) {
	if e.isDead(pid) {
		return
	}
	e.runTick(pid)
}

// StepByDeliveringMessages drains every message currently queued on the
// channels matching dir relative to pid (Incoming: channels addressed to
// pid; Outgoing: channels originating from pid; Both: either), one message
// at a time, each delivery advancing the clock by one. A no-op if pid is
// dead; channels whose other endpoint is dead are skipped. Messages that a
// delivery triggered here enqueues on a matching channel (e.g. a reply
// sent back to pid) are also drained before this call returns.
func (e *Environment) StepByDeliveringMessages(pid Pid, dir Direction) {
	if e.isDead(pid) {
		return
	}
	keys := make([]channelKey, 0, len(e.channels))
	for key := range e.channels {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})
	progress := true
	for progress {
		progress = false
		for _, key := range keys {
			if len(e.channels[key]) == 0 {
				continue
			}
			if e.isDead(key.from) || e.isDead(key.to) {
				continue
			}
			matches := (dir == Incoming || dir == Both) && key.to == pid
			matches = matches || ((dir == Outgoing || dir == Both) && key.from == pid)
			if !matches {
				continue
			}
			e.runDeliver(key.from, key.to)
			progress = true
		}
	}
}

// StepRandomly performs exactly one primitive action chosen at random: with
// equal probability it either delivers one message picked uniformly at
// random among all non-empty channels between live processes, or ticks one
// live process picked uniformly at random. If no channel currently holds a
// message, it always ticks. It is the primitive Await uses to drive a run
// forward without hand-scripting the interleaving.
func (e *Environment) StepRandomly() {
	type candidate struct{ from, to Pid }
	var active []candidate
	for key, queue := range e.channels {
		if len(queue) == 0 {
			continue
		}
		if e.isDead(key.from) || e.isDead(key.to) {
			continue
		}
		active = append(active, candidate{key.from, key.to})
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].from != active[j].from {
			return active[i].from < active[j].from
		}
		return active[i].to < active[j].to
	})

	deliver := len(active) > 0 && e.rng.Intn(2) == 1
	if deliver {
		c := active[e.rng.Intn(len(active))]
		e.runDeliver(c.from, c.to)
		return
	}

	for {
		pid := Pid(e.rng.Intn(len(e.processes)))
		if !e.isDead(pid) {
			e.runTick(pid)
			return
		}
	}
}

// DefaultAwaitBudget is the step budget Await uses when the caller doesn't
// need a different one.
const DefaultAwaitBudget = 100

// Await drives env with StepRandomly until every future in futures has a
// value or budget steps have elapsed without that happening. It returns an
// error only if none of the futures ever got a value — a run where some
// futures settle and others don't is still reported as success, since the
// simulation offers no liveness guarantee for an individual caller.
func Await[T any](env *Environment, budget int, futures ...*Future[T]) error {
	start := env.Time()
	for {
		allSet := true
		for _, f := range futures {
			if !f.HasValue() {
				allSet = false
				break
			}
		}
		if allSet {
			return nil
		}
		if env.Time()-start >= budget {
			break
		}
		env.StepRandomly()
	}
	for _, f := range futures {
		if f.HasValue() {
			return nil
		}
	}
	return fmt.Errorf("sim: none of %d awaited futures were fulfilled within %d steps", len(futures), budget)
}
