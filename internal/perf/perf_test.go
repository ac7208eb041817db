package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlowTranscriptionRaisesWarning(t *testing.T) {
	m := NewMonitor(DefaultThresholds(), nil)

	m.ObserveTranscription(2*time.Second, 500*time.Millisecond)
	require.False(t, m.Warning())

	m.ObserveTranscription(2*time.Second, 4*time.Second)
	m.ObserveTranscription(2*time.Second, 4*time.Second)
	require.True(t, m.Warning())
	require.True(t, <-m.Signals())
}

func TestWarningClearsOnlyBelowClearThreshold(t *testing.T) {
	m := NewMonitor(DefaultThresholds(), nil)
	m.ObserveTranscription(time.Second, time.Second)
	require.True(t, m.Warning())

	// 0.7 is below the warn level but above the clear level.
	for i := 0; i < 20; i++ {
		m.ObserveTranscription(time.Second, 700*time.Millisecond)
	}
	require.True(t, m.Warning())

	for i := 0; i < 20; i++ {
		m.ObserveTranscription(time.Second, 100*time.Millisecond)
	}
	require.False(t, m.Warning())
	require.False(t, <-m.Signals(), "signals coalesce to the latest transition")
}

func TestSlowVADFramesRaiseWarning(t *testing.T) {
	m := NewMonitor(DefaultThresholds(), nil)
	m.ObserveVADFrame(time.Millisecond)
	require.False(t, m.Warning())

	for i := 0; i < 60; i++ {
		m.ObserveVADFrame(20 * time.Millisecond)
	}
	require.True(t, m.Warning())
	require.Greater(t, m.Snapshot().VAD, 10*time.Millisecond)
}

func TestZeroLengthAudioIgnored(t *testing.T) {
	m := NewMonitor(DefaultThresholds(), nil)
	m.ObserveTranscription(0, time.Second)
	require.Equal(t, Snapshot{}, m.Snapshot())
}
