package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Filter transforms frames in place before handoff. Implementations keep
// state across frames of one stream; Reset starts a new stream.
type Filter interface {
	Apply(pcm []byte)
	Reset()
}

// NewFilter returns the filter for an audio.preprocess mode; "none" yields nil.
func NewFilter(mode string) (Filter, error) {
	switch mode {
	case "", "none":
		return nil, nil
	case "highpass":
		return NewHighPass(0.995), nil
	default:
		return nil, fmt.Errorf("unknown preprocess mode %q", mode)
	}
}

// HighPass is a one-pole DC blocker: y[n] = x[n] - x[n-1] + r*y[n-1].
type HighPass struct {
	r     float64
	prevX float64
	prevY float64
}

func NewHighPass(r float64) *HighPass {
	return &HighPass{r: r}
}

func (h *HighPass) Apply(pcm []byte) {
	for i := 0; i+1 < len(pcm); i += 2 {
		x := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		y := x - h.prevX + h.r*h.prevY
		h.prevX, h.prevY = x, y
		binary.LittleEndian.PutUint16(pcm[i:], uint16(clampInt16(y)))
	}
}

func (h *HighPass) Reset() {
	h.prevX, h.prevY = 0, 0
}

func clampInt16(v float64) int16 {
	v = math.Round(v)
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
