// Package perf tracks transcription speed and speech-gate cost and raises a
// performance warning with hysteresis.
package perf

import (
	"context"
	"sync"
	"time"

	"github.com/rbright/quill/internal/observe"
)

// Thresholds set when the warning turns on and off. The warning turns on
// when either average crosses its Warn value and clears only once both are
// back under their Clear values.
type Thresholds struct {
	WarnRTF  float64
	ClearRTF float64
	WarnVAD  time.Duration
	ClearVAD time.Duration
}

// DefaultThresholds leave half a real-time budget of headroom before
// warning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarnRTF:  0.8,
		ClearRTF: 0.5,
		WarnVAD:  10 * time.Millisecond,
		ClearVAD: 5 * time.Millisecond,
	}
}

const (
	rtfAlpha = 0.3
	vadAlpha = 0.05
)

type ewma struct {
	value  float64
	primed bool
}

func (e *ewma) add(alpha, sample float64) {
	if !e.primed {
		e.value, e.primed = sample, true
		return
	}
	e.value += alpha * (sample - e.value)
}

// Snapshot is the monitor's current view.
type Snapshot struct {
	RTF     float64
	VAD     time.Duration
	Warning bool
}

// Monitor is safe for concurrent use.
type Monitor struct {
	th      Thresholds
	metrics *observe.Metrics

	mu      sync.Mutex
	rtf     ewma
	vad     ewma
	warning bool

	signals chan bool
}

func NewMonitor(th Thresholds, metrics *observe.Metrics) *Monitor {
	return &Monitor{th: th, metrics: metrics, signals: make(chan bool, 1)}
}

// Signals delivers warning transitions. Only the latest pending value is
// kept, so a slow reader sees the current state rather than history.
func (m *Monitor) Signals() <-chan bool { return m.signals }

// ObserveTranscription records one ASR run over audio of the given length.
func (m *Monitor) ObserveTranscription(audio, took time.Duration) {
	if audio <= 0 {
		return
	}
	m.mu.Lock()
	m.rtf.add(rtfAlpha, took.Seconds()/audio.Seconds())
	m.evaluateLocked()
	m.mu.Unlock()
}

// ObserveVADFrame records the cost of classifying one frame.
func (m *Monitor) ObserveVADFrame(took time.Duration) {
	m.metrics.RecordVADFrame(context.Background(), took)
	m.mu.Lock()
	m.vad.add(vadAlpha, float64(took))
	m.evaluateLocked()
	m.mu.Unlock()
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{RTF: m.rtf.value, VAD: time.Duration(m.vad.value), Warning: m.warning}
}

func (m *Monitor) Warning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warning
}

func (m *Monitor) evaluateLocked() {
	rtf := m.rtf.value
	vad := time.Duration(m.vad.value)

	next := m.warning
	if !m.warning {
		next = (m.rtf.primed && rtf >= m.th.WarnRTF) || (m.vad.primed && vad >= m.th.WarnVAD)
	} else if rtf <= m.th.ClearRTF && vad <= m.th.ClearVAD {
		next = false
	}
	if next == m.warning {
		return
	}
	m.warning = next
	select {
	case <-m.signals:
	default:
	}
	m.signals <- next
}
