// Package audio handles device discovery, selection, and the supervised PCM
// frame stream consumed by the speech gate.
package audio

import (
	"encoding/binary"
	"time"
)

const (
	SampleRate     = 16000
	FrameBytes     = 640 // 20ms @ 16kHz mono s16le
	FrameSamples   = FrameBytes / 2
	FrameDuration  = 20 * time.Millisecond
	FrameQueueSize = 64
)

// Frame is one fixed-size block of captured PCM. Frames are never mutated
// after they are handed off.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	PCM        []byte
}

// PCMToFloat32 converts s16le PCM into [-1, 1] samples.
func PCMToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
	}
	return out
}

// PCMToInt converts s16le PCM into int samples.
func PCMToInt(pcm []byte) []int {
	out := make([]int, len(pcm)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return out
}

// DurationOf returns the playback duration of pcm at SampleRate.
func DurationOf(pcm []byte) time.Duration {
	samples := len(pcm) / 2
	return time.Duration(samples) * time.Second / SampleRate
}
