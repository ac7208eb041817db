package indicator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jfreymuth/pulse"

	"github.com/rbright/quill/internal/audio"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueCancel
)

type tone struct {
	hz       float64
	duration time.Duration
}

const (
	cueVolume = 0.18
	cueGap    = 22 * time.Millisecond
	cueRamp   = 5 * time.Millisecond
)

var cues = map[cueKind][]int16{
	cueStart:    synthesize(tone{880, 70 * time.Millisecond}, tone{1175, 70 * time.Millisecond}),
	cueStop:     synthesize(tone{620, 120 * time.Millisecond}),
	cueComplete: synthesize(tone{740, 65 * time.Millisecond}, tone{988, 90 * time.Millisecond}),
	cueCancel:   synthesize(tone{480, 75 * time.Millisecond}, tone{360, 90 * time.Millisecond}),
}

// emitCue plays a cue on the default Pulse sink and waits for it to drain.
// ctx is only checked before playback starts; cues are a few hundred ms.
func emitCue(ctx context.Context, kind cueKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	samples := cues[kind]
	if len(samples) == 0 {
		return nil
	}

	client, err := pulse.NewClient(
		pulse.ClientApplicationName("quill"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(audio.SampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("quill cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

// synthesize renders tones separated by short gaps, each with a linear
// attack and release ramp.
func synthesize(tones ...tone) []int16 {
	gap := samplesFor(cueGap)
	var pcm []int16
	for i, t := range tones {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, renderTone(t)...)
	}
	return pcm
}

func renderTone(t tone) []int16 {
	n := samplesFor(t.duration)
	if n <= 0 || t.hz <= 0 {
		return nil
	}
	ramp := max(1, min(n/10, samplesFor(cueRamp)))

	pcm := make([]int16, n)
	for i := range pcm {
		env := min(1, float64(i)/float64(ramp), float64(n-i-1)/float64(ramp))
		phase := 2 * math.Pi * t.hz * float64(i) / audio.SampleRate
		pcm[i] = int16(math.Round(math.Sin(phase) * cueVolume * env * math.MaxInt16))
	}
	return pcm
}

func samplesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * audio.SampleRate))
}
