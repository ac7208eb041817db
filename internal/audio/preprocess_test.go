package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFilter(t *testing.T) {
	f, err := NewFilter("none")
	require.NoError(t, err)
	require.Nil(t, f)

	f, err = NewFilter("highpass")
	require.NoError(t, err)
	require.IsType(t, &HighPass{}, f)

	_, err = NewFilter("rnnoise")
	require.Error(t, err)
}

func TestHighPassRemovesDCOffset(t *testing.T) {
	hp := NewHighPass(0.995)
	pcm := make([]byte, 2*4000)
	for i := 0; i < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(2000)))
	}
	hp.Apply(pcm)

	last := int16(binary.LittleEndian.Uint16(pcm[len(pcm)-2:]))
	require.InDelta(t, 0, float64(last), 5)

	hp.Reset()
	require.Zero(t, hp.prevX)
	require.Zero(t, hp.prevY)
}

func TestClampInt16(t *testing.T) {
	require.Equal(t, int16(32767), clampInt16(40000))
	require.Equal(t, int16(-32768), clampInt16(-40000))
	require.Equal(t, int16(12), clampInt16(11.6))
}

func TestPCMConversions(t *testing.T) {
	pcm := []byte{0x00, 0x80, 0xFF, 0x7F, 0x00, 0x00}
	require.Equal(t, []int{-32768, 32767, 0}, PCMToInt(pcm))
	f := PCMToFloat32(pcm)
	require.InDelta(t, -1.0, f[0], 1e-6)
	require.InDelta(t, 0.99997, f[1], 1e-4)
	require.Equal(t, FrameDuration, DurationOf(make([]byte, FrameBytes)))
}
