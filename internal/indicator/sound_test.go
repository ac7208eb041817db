package indicator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCuesPresent(t *testing.T) {
	for _, kind := range []cueKind{cueStart, cueStop, cueComplete, cueCancel} {
		require.NotEmpty(t, cues[kind], kind)
	}
}

func TestSynthesizeIncludesGaps(t *testing.T) {
	one := tone{440, 50 * time.Millisecond}
	pcm := synthesize(one, one)
	require.Len(t, pcm, 2*samplesFor(50*time.Millisecond)+samplesFor(cueGap))
}

func TestRenderToneRampsFromSilence(t *testing.T) {
	pcm := renderTone(tone{440, 100 * time.Millisecond})
	require.Len(t, pcm, samplesFor(100*time.Millisecond))
	require.Zero(t, pcm[0])
	require.Zero(t, pcm[len(pcm)-1])

	peak := int16(0)
	for _, s := range pcm {
		peak = max(peak, s)
	}
	require.InDelta(t, cueVolume*32767, float64(peak), 200)
}

func TestRenderToneInvalidSpecReturnsEmpty(t *testing.T) {
	require.Empty(t, renderTone(tone{0, 100 * time.Millisecond}))
	require.Empty(t, renderTone(tone{440, 0}))
}

func TestEmitCueRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, emitCue(ctx, cueStart), context.Canceled)
}
