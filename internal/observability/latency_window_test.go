package observability

import "testing"

func TestLatencyWindowSnapshot(t *testing.T) {
	w := NewLatencyWindow(8)
	w.Observe(StageCommitToFirstAudio, 500)
	w.Observe(StageCommitToFirstAudio, 700)
	w.Observe(StageCommitToFirstAudio, 900)
	w.ObserveIndicator(IndicatorBargeIn)
	w.ObserveIndicator(IndicatorBargeIn)

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Stage != StageCommitToFirstAudio {
		t.Fatalf("Stage = %q, want %q", s.Stage, StageCommitToFirstAudio)
	}
	if s.Samples != 3 {
		t.Fatalf("Samples = %d, want 3", s.Samples)
	}
	if s.LastMS != 900 {
		t.Fatalf("LastMS = %.2f, want 900", s.LastMS)
	}
	if s.MinMS != 500 || s.MaxMS != 900 {
		t.Fatalf("Min/Max = %.2f/%.2f, want 500/900", s.MinMS, s.MaxMS)
	}
	// Nearest rank: p50 of 3 samples is the 2nd, p95 the 3rd.
	if s.P50MS != 700 {
		t.Fatalf("P50MS = %.2f, want 700", s.P50MS)
	}
	if s.P95MS != 900 {
		t.Fatalf("P95MS = %.2f, want 900", s.P95MS)
	}
	if s.TargetP95MS != 1400 {
		t.Fatalf("TargetP95MS = %.2f, want 1400", s.TargetP95MS)
	}
	if !s.WithinTarget {
		t.Fatal("p95 of 900 is within the 1400ms target")
	}
	if len(snap.Indicators) != 1 {
		t.Fatalf("len(Indicators) = %d, want 1", len(snap.Indicators))
	}
	if snap.Indicators[0].Name != IndicatorBargeIn {
		t.Fatalf("Indicators[0].Name = %q", snap.Indicators[0].Name)
	}
	if snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators[0].Count = %d, want 2", snap.Indicators[0].Count)
	}
}

func TestLatencyWindowRingOverwrite(t *testing.T) {
	w := NewLatencyWindow(4)
	for i := 1; i <= 6; i++ {
		w.Observe(StageFirstGreeting, float64(i*100))
	}
	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 4 {
		t.Fatalf("Samples = %d, want 4 after wraparound", s.Samples)
	}
	if s.LastMS != 600 {
		t.Fatalf("LastMS = %.2f, want 600", s.LastMS)
	}
	// Oldest two samples (100, 200) fell out of the window.
	if s.MinMS != 300 {
		t.Fatalf("MinMS = %.2f, want 300", s.MinMS)
	}
	if s.AvgMS != 450 {
		t.Fatalf("AvgMS = %.2f, want 450", s.AvgMS)
	}
}

func TestLatencyWindowTargetBreach(t *testing.T) {
	w := NewLatencyWindow(8)
	w.Observe(StageCommitToFirstAudio, 2600)
	s := w.Snapshot().Stages[0]
	if s.WithinTarget {
		t.Fatalf("p95 of %.0f must breach the %.0fms target", s.P95MS, s.TargetP95MS)
	}
}

func TestLatencyWindowNilSafe(t *testing.T) {
	var w *LatencyWindow
	w.Observe(StageFirstGreeting, 100)
	w.ObserveIndicator(IndicatorBargeIn)
}
