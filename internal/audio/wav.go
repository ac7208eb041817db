package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV wraps s16le mono PCM in a WAV container.
func EncodeWAV(pcm []byte) ([]byte, error) {
	var buf memFile
	if err := writeWAV(&buf, pcm); err != nil {
		return nil, err
	}
	return buf.data, nil
}

// EncodeWAVSamples encodes [-1, 1] float samples as 16-bit mono WAV.
func EncodeWAVSamples(samples []float32) ([]byte, error) {
	pcm := make([]byte, 2*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint16(pcm[2*i:], uint16(clampInt16(float64(v)*32768)))
	}
	return EncodeWAV(pcm)
}

// DumpWAV writes pcm to dir/<prefix>-<timestamp>.wav and returns the path.
func DumpWAV(dir, prefix string, pcm []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create dump dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.wav", prefix, time.Now().UTC().Format("20060102T150405.000")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create dump file: %w", err)
	}
	if err := writeWAV(f, pcm); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

func writeWAV(w io.WriteSeeker, pcm []byte) error {
	enc := wav.NewEncoder(w, SampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: SampleRate},
		Data:           PCMToInt(pcm),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// memFile is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type memFile struct {
	data []byte
	pos  int
}

func (m *memFile) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.data) {
		m.data = append(m.data, make([]byte, end-len(m.data))...)
	}
	copy(m.data[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.data)) + offset
	default:
		return 0, errors.New("invalid whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = int(next)
	return next, nil
}
