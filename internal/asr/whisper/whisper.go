// Package whisper runs whisper.cpp in-process through its cgo bindings. The
// static library and headers must be reachable through LIBRARY_PATH and
// C_INCLUDE_PATH at build time.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/rbright/quill/internal/asr"
)

var _ asr.Backend = Backend{}

// Backend loads ggml model files.
type Backend struct {
	Threads uint
	Logger  *slog.Logger
}

func (b Backend) Load(ctx context.Context, model asr.Model, path string) (asr.Recognizer, error) {
	if path == "" {
		return nil, errors.New("whisper: model path must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := whisperlib.New(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", path, err)
	}
	language := model.Language
	if language == "" {
		language = "auto"
	}
	return &recognizer{model: m, language: language, threads: b.Threads, logger: b.Logger}, nil
}

type recognizer struct {
	model    whisperlib.Model
	language string
	threads  uint
	logger   *slog.Logger
}

// Transcribe uses a fresh whisper context per call; contexts are not safe
// for concurrent use but the model is.
func (r *recognizer) Transcribe(ctx context.Context, samples []float32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	wctx, err := r.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil && r.logger != nil {
		r.logger.Warn("whisper: set language failed, using model default", "language", r.language, "error", err.Error())
	}
	if r.threads > 0 {
		wctx.SetThreads(r.threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

func (r *recognizer) Close() error {
	if r.model == nil {
		return nil
	}
	return r.model.Close()
}
