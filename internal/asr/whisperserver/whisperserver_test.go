package whisperserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/quill/internal/asr"
)

type fakeServer struct {
	mu        sync.Mutex
	loaded    string
	language  string
	wavHeader string
	failLoad  bool
	inferBody string
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /load", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failLoad {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "'model': model not found!"})
			return
		}
		f.loaded = r.FormValue("model")
		_, _ = io.WriteString(w, "Load was successful!")
	})
	mux.HandleFunc("POST /inference", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		head := make([]byte, 4)
		_, _ = io.ReadFull(file, head)
		f.wavHeader = string(head)
		f.language = r.FormValue("language")
		body := f.inferBody
		if body == "" {
			body = `{"text": " hello world \n"}`
		}
		_, _ = io.WriteString(w, body)
	})
	return mux
}

func TestNewRejectsNonLoopbackURLs(t *testing.T) {
	_, err := New("http://192.168.1.10:8178", nil)
	require.ErrorContains(t, err, "loopback")
	_, err = New("https://127.0.0.1:8178", nil)
	require.ErrorContains(t, err, "must use http")

	for _, ok := range []string{"http://127.0.0.1:8178", "http://localhost:8178/", "http://[::1]:8178"} {
		_, err := New(ok, nil)
		require.NoError(t, err, ok)
	}
}

func TestLoadAndTranscribe(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	backend, err := New(srv.URL, srv.Client())
	require.NoError(t, err)

	rec, err := backend.Load(context.Background(), asr.Model{ID: "base.en", Language: "en"}, "/models/ggml-base.en.bin")
	require.NoError(t, err)
	require.Equal(t, "/models/ggml-base.en.bin", fake.loaded)

	text, err := rec.Transcribe(context.Background(), make([]float32, 1600))
	require.NoError(t, err)
	require.Equal(t, "hello world", text)
	require.Equal(t, "RIFF", fake.wavHeader)
	require.Equal(t, "en", fake.language)
	require.NoError(t, rec.Close())
}

func TestLoadFailureSurfacesServerMessage(t *testing.T) {
	fake := &fakeServer{failLoad: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	backend, err := New(srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = backend.Load(context.Background(), asr.Model{ID: "base.en"}, "/missing.bin")
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP 400")
	require.Contains(t, err.Error(), "model not found")
}

func TestInferenceErrorPayload(t *testing.T) {
	fake := &fakeServer{inferBody: `{"error": "failed to process audio"}`}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	backend, err := New(srv.URL, srv.Client())
	require.NoError(t, err)
	rec, err := backend.Load(context.Background(), asr.Model{ID: "base.en"}, "/m.bin")
	require.NoError(t, err)

	_, err = rec.Transcribe(context.Background(), make([]float32, 160))
	require.ErrorContains(t, err, "failed to process audio")
}
