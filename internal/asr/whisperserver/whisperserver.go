// Package whisperserver talks to a whisper.cpp server process on the local
// machine. Audio never leaves the host: only loopback URLs are accepted.
package whisperserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rbright/quill/internal/asr"
	"github.com/rbright/quill/internal/audio"
)

var _ asr.Backend = (*Backend)(nil)

// Backend swaps models on the server with /load and transcribes through
// /inference. The server holds one model at a time, so requests are
// serialized.
type Backend struct {
	baseURL string
	client  *http.Client

	mu sync.Mutex
}

// New validates serverURL and returns a backend for it. A nil client gets
// a 60s timeout.
func New(serverURL string, client *http.Client) (*Backend, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return nil, fmt.Errorf("whisper-server: invalid url %q: %w", serverURL, err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("whisper-server: url %q must use http", serverURL)
	}
	if !isLoopback(u.Hostname()) {
		return nil, fmt.Errorf("whisper-server: url %q must point at a loopback host", serverURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Backend{baseURL: strings.TrimRight(u.String(), "/"), client: client}, nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (b *Backend) Load(ctx context.Context, model asr.Model, path string) (asr.Recognizer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.post(ctx, "/load", map[string]string{"model": path}, nil); err != nil {
		return nil, fmt.Errorf("whisper-server: load %s: %w", model.ID, err)
	}
	return &recognizer{backend: b, model: model}, nil
}

type recognizer struct {
	backend *Backend
	model   asr.Model
}

func (r *recognizer) Transcribe(ctx context.Context, samples []float32) (string, error) {
	wav, err := audio.EncodeWAVSamples(samples)
	if err != nil {
		return "", fmt.Errorf("whisper-server: %w", err)
	}
	fields := map[string]string{
		"response_format": "json",
		"temperature":     "0.0",
	}
	if r.model.Language != "" {
		fields["language"] = r.model.Language
	}

	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()

	body, err := r.backend.post(ctx, "/inference", fields, wav)
	if err != nil {
		return "", fmt.Errorf("whisper-server: inference: %w", err)
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("whisper-server: parse response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("whisper-server: %s", result.Error)
	}
	return strings.TrimSpace(result.Text), nil
}

// Close is a no-op; the server owns the weights.
func (r *recognizer) Close() error { return nil }

func (b *Backend) post(ctx context.Context, path string, fields map[string]string, wav []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if wav != nil {
		fw, err := mw.CreateFormFile("file", "audio.wav")
		if err != nil {
			return nil, fmt.Errorf("create form file: %w", err)
		}
		if _, err := fw.Write(wav); err != nil {
			return nil, fmt.Errorf("write wav data: %w", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, snippet(data))
	}
	return data, nil
}

func snippet(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
