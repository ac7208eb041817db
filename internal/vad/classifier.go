// Package vad gates captured audio down to speech: a frame classifier plus a
// stateful gate that applies pre-roll, onset, hangover and strict trim.
package vad

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decision is one frame classification.
type Decision struct {
	Score     float64
	Threshold float64
	Active    bool
}

// Classifier scores single frames. Implementations may keep state across
// frames of one session; Reset clears it.
type Classifier interface {
	Classify(pcm []byte) Decision
	Reset()
}

// NewClassifier builds the classifier for a vad.backend name. sensitivity
// is in [0, 1]; higher values accept quieter speech.
func NewClassifier(backend string, sensitivity float64) (Classifier, error) {
	sensitivity = math.Max(0, math.Min(1, sensitivity))
	switch backend {
	case "energy":
		return NewEnergy(sensitivity), nil
	case "", "adaptive":
		return NewAdaptive(sensitivity), nil
	default:
		return nil, fmt.Errorf("unknown vad backend %q", backend)
	}
}

const silenceDBFS = -96.0

// dbfs returns frame level relative to full-scale s16.
func dbfs(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return silenceDBFS
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(n))
	if rms < 1 {
		return silenceDBFS
	}
	return 20 * math.Log10(rms/32768)
}

// Energy compares frame level against a fixed dBFS threshold.
type Energy struct {
	threshold float64
}

func NewEnergy(sensitivity float64) *Energy {
	return &Energy{threshold: -30 - 25*sensitivity}
}

func (e *Energy) Classify(pcm []byte) Decision {
	level := dbfs(pcm)
	return Decision{Score: level, Threshold: e.threshold, Active: level >= e.threshold}
}

func (e *Energy) Reset() {}

// Adaptive tracks the background noise floor and scores frames by their
// margin above it. Score is a probability in [0, 1]; Threshold is 0.5.
type Adaptive struct {
	margin float64
	floor  float64
	primed bool
}

const (
	adaptiveMinLevel   = -70.0
	adaptiveFloorLimit = -45.0
	adaptiveRise       = 0.02
	adaptiveFall       = 0.5
)

func NewAdaptive(sensitivity float64) *Adaptive {
	return &Adaptive{margin: 18 - 12*sensitivity}
}

func (a *Adaptive) Classify(pcm []byte) Decision {
	level := dbfs(pcm)
	if !a.primed {
		a.floor = math.Min(level, adaptiveFloorLimit)
		a.primed = true
	}

	score := 1 / (1 + math.Exp(-(level-a.floor-a.margin)/3))
	active := score >= 0.5 && level > adaptiveMinLevel
	if !active {
		if level < a.floor {
			a.floor += adaptiveFall * (level - a.floor)
		} else {
			a.floor += adaptiveRise * (level - a.floor)
		}
	}
	return Decision{Score: score, Threshold: 0.5, Active: active}
}

func (a *Adaptive) Reset() {
	a.primed = false
	a.floor = 0
}
