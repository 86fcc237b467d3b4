package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// StageStats summarizes the recent sample window for one pipeline stage.
// Percentiles are nearest-rank over the window, not interpolated.
type StageStats struct {
	Stage        string  `json:"stage"`
	Samples      int     `json:"samples"`
	LastMS       float64 `json:"last_ms"`
	MinMS        float64 `json:"min_ms"`
	MaxMS        float64 `json:"max_ms"`
	AvgMS        float64 `json:"avg_ms"`
	P50MS        float64 `json:"p50_ms"`
	P95MS        float64 `json:"p95_ms"`
	TargetP95MS  float64 `json:"target_p95_ms,omitempty"`
	WithinTarget bool    `json:"within_target"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// LatencyWindow keeps the most recent latency samples per stage, plus simple
// event counters. It backs the operator status endpoint; the Prometheus
// histograms in Metrics remain the long-term record.
type LatencyWindow struct {
	mu         sync.RWMutex
	capacity   int
	stages     map[string]*stageRing
	indicators map[string]int
}

// stageRing grows to the window capacity, then overwrites oldest-first.
type stageRing struct {
	samples []float64
	cursor  int
	lastMS  float64
}

func (r *stageRing) add(capacity int, ms float64) {
	r.lastMS = ms
	if len(r.samples) < capacity {
		r.samples = append(r.samples, ms)
		return
	}
	r.samples[r.cursor] = ms
	r.cursor = (r.cursor + 1) % capacity
}

func NewLatencyWindow(capacity int) *LatencyWindow {
	if capacity <= 0 {
		capacity = 256
	}
	return &LatencyWindow{
		capacity:   capacity,
		stages:     make(map[string]*stageRing),
		indicators: make(map[string]int),
	}
}

func (w *LatencyWindow) Observe(stage string, ms float64) {
	if w == nil || stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	ring, ok := w.stages[stage]
	if !ok {
		ring = &stageRing{samples: make([]float64, 0, w.capacity)}
		w.stages[stage] = ring
	}
	ring.add(w.capacity, ms)
}

func (w *LatencyWindow) ObserveIndicator(name string) {
	if w == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *LatencyWindow) Snapshot() LatencySnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.capacity,
		Stages:      make([]StageStats, 0, len(w.stages)),
		Indicators:  make([]Indicator, 0, len(w.indicators)),
	}

	for _, stage := range sortedKeys(w.stages) {
		ring := w.stages[stage]
		if ring == nil || len(ring.samples) == 0 {
			continue
		}
		sorted := make([]float64, len(ring.samples))
		copy(sorted, ring.samples)
		sort.Float64s(sorted)

		sum := 0.0
		for _, v := range sorted {
			sum += v
		}
		p95 := percentile(sorted, 0.95)
		target := stageTargetP95MS(stage)

		snap.Stages = append(snap.Stages, StageStats{
			Stage:        stage,
			Samples:      len(sorted),
			LastMS:       round2(ring.lastMS),
			MinMS:        round2(sorted[0]),
			MaxMS:        round2(sorted[len(sorted)-1]),
			AvgMS:        round2(sum / float64(len(sorted))),
			P50MS:        round2(percentile(sorted, 0.50)),
			P95MS:        round2(p95),
			TargetP95MS:  target,
			WithinTarget: target == 0 || p95 <= target,
		})
	}

	for _, name := range sortedKeys(w.indicators) {
		if w.indicators[name] <= 0 {
			continue
		}
		snap.Indicators = append(snap.Indicators, Indicator{
			Name:  name,
			Count: w.indicators[name],
		})
	}
	return snap
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// percentile returns the nearest-rank percentile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Targets come from the product latency review of 2026-05; stages without a
// target report zero and the status page hides the column.
func stageTargetP95MS(stage string) float64 {
	switch stage {
	case StageFirstGreeting:
		return 4000
	case StageCommitToFirstAudio:
		return 1400
	case StageEmotionClassify:
		return 1500
	case StageReconnectRecovery:
		return 5000
	default:
		return 0
	}
}

// Stage names recorded by the session orchestrator.
const (
	StageFirstGreeting      = "first_greeting"
	StageCommitToFirstAudio = "commit_to_first_audio"
	StageEmotionClassify    = "emotion_classify"
	StageReconnectRecovery  = "reconnect_recovery"
)

// Indicator names recorded by the session orchestrator.
const (
	IndicatorBargeIn          = "barge_in"
	IndicatorGreetingRetry    = "greeting_retry"
	IndicatorReconnectAttempt = "reconnect_attempt"
	IndicatorStaleAudioDrop   = "stale_audio_drop"
	IndicatorMetaAudioDrop    = "meta_audio_drop"
)
