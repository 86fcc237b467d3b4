package upstream

import (
	"context"
	"errors"
	"testing"
)

func TestFakeConnectorScriptedDialFailures(t *testing.T) {
	dialErr := errors.New("connection refused")
	f := NewFakeConnector()
	f.DialErrs = []error{dialErr, nil}

	if _, err := f.Connect(context.Background(), ConnectParams{}); !errors.Is(err, dialErr) {
		t.Fatalf("first dial err = %v, want scripted failure", err)
	}
	ch, err := f.Connect(context.Background(), ConnectParams{Voice: "alloy"})
	if err != nil {
		t.Fatalf("second dial: %v", err)
	}
	if f.Dials() != 1 {
		t.Errorf("Dials() = %d, want 1 successful dial", f.Dials())
	}
	fc := f.Channel(0)
	if fc == nil || fc != ch {
		t.Fatal("Channel(0) should return the handed-out channel")
	}
	if fc.Params.Voice != "alloy" {
		t.Errorf("recorded voice = %q", fc.Params.Voice)
	}
}

func TestFakeChannelRecordsOps(t *testing.T) {
	ch := NewFakeChannel()
	ctx := context.Background()
	if err := ch.AppendAudio(ctx, "Zm9v"); err != nil {
		t.Fatal(err)
	}
	if err := ch.CommitAudio(ctx); err != nil {
		t.Fatal(err)
	}
	if err := ch.SendSystemText(ctx, "greet the trainee"); err != nil {
		t.Fatal(err)
	}

	ops := ch.Ops()
	if len(ops) != 3 {
		t.Fatalf("recorded %d ops, want 3", len(ops))
	}
	if ops[0].Kind != "append" || ops[0].Text != "Zm9v" {
		t.Errorf("op 0 = %+v", ops[0])
	}
	sys := ch.OpsOfKind("system_text")
	if len(sys) != 1 || sys[0].Text != "greet the trainee" {
		t.Errorf("system_text ops = %+v", sys)
	}
}

func TestFakeChannelEmitAfterCloseIsSafe(t *testing.T) {
	ch := NewFakeChannel()
	ch.Emit(Event{Type: EventConfigured})
	ch.EmitClosed(1000, false)
	// Must not panic and must not deliver anything past the close.
	ch.Emit(Event{Type: EventAudioDelta, AudioBase64: "x"})

	var got []Event
	for ev := range ch.Events() {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want configured + closed", len(got))
	}
	if got[1].Type != EventClosed {
		t.Errorf("last event = %+v", got[1])
	}
	if !ch.Closed() {
		t.Error("channel should report closed")
	}
}
