package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a minimal Process that remembers every message it receives
// and, when told to, echoes a reply to whoever sent it.
type recorder struct {
	pid      Pid
	received [][]byte
	from     []Pid
	leaked   Context
	onTick   func(ctx Context)
}

func (r *recorder) OnSetup(int) {}

func (r *recorder) OnTick(ctx Context) {
	r.leaked = ctx
	if r.onTick != nil {
		r.onTick(ctx)
	}
}

func (r *recorder) OnReceive(ctx Context, sender Pid, payload []byte) {
	r.leaked = ctx
	r.received = append(r.received, payload)
	r.from = append(r.from, sender)
}

func TestChannelsAreFIFOPerOrderedPair(t *testing.T) {
	env := NewEnvironment(1)
	var sender *recorder
	senderPid := env.Spawn(func(pid Pid) Process {
		sender = &recorder{pid: pid}
		return sender
	})
	var receiver *recorder
	env.Spawn(func(pid Pid) Process {
		receiver = &recorder{pid: pid}
		return receiver
	})
	env.Setup()

	sender.onTick = func(ctx Context) {
		ctx.Send(Pid(1), []byte("first"))
		ctx.Send(Pid(1), []byte("second"))
		ctx.Send(Pid(1), []byte("third"))
	}
	env.StepByTickingProcess(senderPid)
	env.StepByDeliveringMessages(Pid(1), Incoming)

	require.Len(t, receiver.received, 3)
	assert.Equal(t, "first", string(receiver.received[0]))
	assert.Equal(t, "second", string(receiver.received[1]))
	assert.Equal(t, "third", string(receiver.received[2]))
}

func TestClockAdvancesByOnePerStep(t *testing.T) {
	env := NewEnvironment(1)
	var a *recorder
	env.Spawn(func(pid Pid) Process {
		a = &recorder{pid: pid}
		return a
	})
	env.Spawn(func(pid Pid) Process { return &recorder{pid: pid} })
	env.Setup()

	start := env.Time()
	a.onTick = func(ctx Context) { ctx.Send(Pid(1), []byte("x")) }
	env.StepByTickingProcess(Pid(0))
	assert.Equal(t, start+2, env.Time(), "tick + one send inside it should cost two ticks")

	env.StepByDeliveringMessages(Pid(1), Incoming)
	assert.Equal(t, start+3, env.Time(), "one delivery should cost one more tick")
}

func TestContextPanicsAfterCallbackReturns(t *testing.T) {
	env := NewEnvironment(1)
	var r *recorder
	env.Spawn(func(pid Pid) Process {
		r = &recorder{pid: pid}
		return r
	})
	env.Spawn(func(pid Pid) Process { return &recorder{pid: pid} })
	env.Setup()

	env.StepByTickingProcess(Pid(0))
	require.NotNil(t, r.leaked)
	assert.Panics(t, func() { r.leaked.Send(Pid(1), []byte("too late")) })
	assert.Panics(t, func() { r.leaked.Time() })
}

func TestKilledProcessIsSkipped(t *testing.T) {
	env := NewEnvironment(1)
	var a *recorder
	env.Spawn(func(pid Pid) Process {
		a = &recorder{pid: pid}
		return a
	})
	env.Setup()

	env.Kill(Pid(0))
	ticked := false
	a.onTick = func(Context) { ticked = true }
	env.StepByTickingProcess(Pid(0))
	assert.False(t, ticked)
}

func TestStepRandomlyTicksWhenNoChannelHasAMessage(t *testing.T) {
	env := NewEnvironment(42)
	ticks := 0
	env.Spawn(func(pid Pid) Process {
		return &recorder{pid: pid, onTick: func(Context) { ticks++ }}
	})
	env.Spawn(func(pid Pid) Process { return &recorder{pid: pid} })
	env.Setup()

	for i := 0; i < 10; i++ {
		env.StepRandomly()
	}
	assert.Greater(t, ticks, 0)
}

func TestSendToUnknownRecipientPanics(t *testing.T) {
	env := NewEnvironment(1)
	var a *recorder
	env.Spawn(func(pid Pid) Process {
		a = &recorder{pid: pid}
		return a
	})
	env.Setup()

	a.onTick = func(ctx Context) { ctx.Send(Pid(99), []byte("nowhere")) }
	assert.Panics(t, func() { env.StepByTickingProcess(Pid(0)) })
}

func TestAwaitFailsWhenNoFutureIsEverSet(t *testing.T) {
	env := NewEnvironment(1)
	env.Spawn(func(pid Pid) Process { return &recorder{pid: pid} })
	env.Setup()

	f := NewFuture[int]()
	err := Await(env, 5, f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of")
}

func TestAwaitSucceedsAsSoonAsAllFuturesAreSet(t *testing.T) {
	env := NewEnvironment(1)
	env.Spawn(func(pid Pid) Process { return &recorder{pid: pid} })
	env.Setup()

	f := NewFuture[int]()
	f.SetValue(1)
	require.NoError(t, Await(env, 0, f))
}

func TestAwaitPartialSuccessDoesNotError(t *testing.T) {
	env := NewEnvironment(7)
	env.Spawn(func(pid Pid) Process { return &recorder{pid: pid} })
	env.Setup()

	set := NewFuture[int]()
	set.SetValue(1)
	unset := NewFuture[int]()
	require.NoError(t, Await(env, 3, set, unset))
	assert.False(t, unset.HasValue())
}

func ExampleEnvironment_StepByDeliveringMessages() {
	env := NewEnvironment(1)
	var a *recorder
	env.Spawn(func(pid Pid) Process {
		a = &recorder{pid: pid}
		return a
	})
	var b *recorder
	env.Spawn(func(pid Pid) Process {
		b = &recorder{pid: pid}
		return b
	})
	env.Setup()

	a.onTick = func(ctx Context) { ctx.Send(Pid(1), []byte("hi")) }
	env.StepByTickingProcess(Pid(0))
	env.StepByDeliveringMessages(Pid(1), Incoming)
	fmt.Println(string(b.received[0]))
	// Output: hi
}
