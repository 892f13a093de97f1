package sim

// Pid identifies a spawned process within an Environment. Pids are handed
// out in spawn order starting at 0; the client process of a scenario is
// conventionally spawned first and so holds pid 0.
type Pid int

// Process is anything an Environment can drive. Implementations receive
// ticks and messages through a bound Context and must not retain it past
// the call that handed it to them.
type Process interface {
	// OnSetup is called once, after every process in the run has been
	// spawned, with the total process count.
	OnSetup(processCount int)

	// OnTick is invoked when the environment chooses to tick this
	// process. Implementations use it to start new work: outgoing sends
	// belong here or in OnReceive, never outside a callback.
	OnTick(ctx Context)

	// OnReceive is invoked when a message sent by sender is delivered to
	// this process.
	OnReceive(ctx Context, sender Pid, payload []byte)
}

// Context is the handle a Process uses to act during a single callback. It
// is only valid for the duration of the OnTick/OnReceive call that received
// it; using it afterwards panics.
type Context interface {
	// Time returns the environment's current virtual clock reading.
	Time() int

	// Send enqueues payload on the FIFO channel from the calling process
	// to recipient; a send to the calling process itself is delivered
	// inline instead. Each call advances the virtual clock by one tick.
	Send(recipient Pid, payload []byte)
}
