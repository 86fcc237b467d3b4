package upstream

import (
	"context"
	"sync"
)

// FakeConnector hands out FakeChannels and remembers them in dial order.
// It exists so the orchestrator can be exercised without a vendor account.
type FakeConnector struct {
	mu       sync.Mutex
	channels []*FakeChannel
	DialErr  error
	// DialErrs, when non-empty, is consumed one entry per Connect call
	// before DialErr is consulted. A nil entry means that dial succeeds.
	DialErrs []error
}

func NewFakeConnector() *FakeConnector {
	return &FakeConnector{}
}

func (f *FakeConnector) Connect(_ context.Context, params ConnectParams) (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.DialErrs) > 0 {
		err := f.DialErrs[0]
		f.DialErrs = f.DialErrs[1:]
		if err != nil {
			return nil, err
		}
	} else if f.DialErr != nil {
		return nil, f.DialErr
	}
	ch := NewFakeChannel()
	ch.Params = params
	f.channels = append(f.channels, ch)
	return ch, nil
}

// Dials returns how many times Connect succeeded or failed.
func (f *FakeConnector) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

// Channel returns the i-th channel handed out, or nil.
func (f *FakeConnector) Channel(i int) *FakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.channels) {
		return nil
	}
	return f.channels[i]
}

// Op is one recorded send operation on a FakeChannel.
type Op struct {
	Kind string // "append", "commit", "response", "cancel", "user_text", "system_text"
	Text string
}

// FakeChannel records every operation and lets tests feed events back.
type FakeChannel struct {
	mu        sync.Mutex
	ops       []Op
	closed    bool
	events    chan Event
	closeOnce sync.Once

	Params  ConnectParams
	SendErr error
}

func NewFakeChannel() *FakeChannel {
	return &FakeChannel{events: make(chan Event, 256)}
}

func (ch *FakeChannel) record(kind, text string) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.ops = append(ch.ops, Op{Kind: kind, Text: text})
	return ch.SendErr
}

func (ch *FakeChannel) AppendAudio(_ context.Context, audioBase64 string) error {
	return ch.record("append", audioBase64)
}

func (ch *FakeChannel) CommitAudio(_ context.Context) error {
	return ch.record("commit", "")
}

func (ch *FakeChannel) CreateResponse(_ context.Context) error {
	return ch.record("response", "")
}

func (ch *FakeChannel) CancelResponse(_ context.Context) error {
	return ch.record("cancel", "")
}

func (ch *FakeChannel) SendUserText(_ context.Context, text string) error {
	return ch.record("user_text", text)
}

func (ch *FakeChannel) SendSystemText(_ context.Context, text string) error {
	return ch.record("system_text", text)
}

func (ch *FakeChannel) Events() <-chan Event { return ch.events }

func (ch *FakeChannel) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.closed = true
	ch.closeOnce.Do(func() { close(ch.events) })
	return nil
}

// Emit feeds an event to the consumer as if the vendor had sent it.
// The mutex orders Emit against Close so we never send on a closed channel.
func (ch *FakeChannel) Emit(ev Event) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		return
	}
	ch.events <- ev
}

// EmitClosed delivers the terminal close event and closes the stream.
func (ch *FakeChannel) EmitClosed(code int, retryable bool) {
	ch.Emit(Event{Type: EventClosed, CloseCode: code, Retryable: retryable})
	ch.Close()
}

// Ops returns a copy of the recorded operations.
func (ch *FakeChannel) Ops() []Op {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]Op, len(ch.ops))
	copy(out, ch.ops)
	return out
}

// OpsOfKind filters recorded operations by kind.
func (ch *FakeChannel) OpsOfKind(kind string) []Op {
	var out []Op
	for _, op := range ch.Ops() {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (ch *FakeChannel) Closed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}
