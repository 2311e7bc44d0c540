package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"audioscribe-go/internal/provider"
)

func audioFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk.m4a")
	if err := os.WriteFile(path, []byte("fake audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribeSuccess(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")

		json.NewEncoder(w).Encode(map[string]interface{}{
			"text":     "hello world",
			"language": "en",
			"segments": []map[string]interface{}{
				{"start": 0.0, "end": 2.5, "text": "hello world", "speaker": "speaker_0"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", "voxtral-mini-latest", 5*time.Second)

	res, err := client.Transcribe(context.Background(), audioFixture(t), "meeting.m4a", 120, "audio/mp4")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.Text != "hello world" || res.Language != "en" {
		t.Errorf("result = %+v", res)
	}
	if len(res.Segments) != 1 || res.Segments[0].Speaker != "speaker_0" {
		t.Errorf("segments = %+v", res.Segments)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotModel != "voxtral-mini-latest" {
		t.Errorf("model = %q", gotModel)
	}
}

func TestTranscribeClientRejectionNotRetried(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": "invalid_file", "message": "unsupported codec"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k", "m", 5*time.Second, WithRetryBudget(2*time.Second))

	_, err := client.Transcribe(context.Background(), audioFixture(t), "x.m4a", 0, "")
	if err == nil {
		t.Fatal("expected error")
	}

	var perr *provider.Error
	if !errors.As(err, &perr) {
		t.Fatalf("err = %T, want *provider.Error", err)
	}
	if perr.StatusCode != 400 || perr.Code != "invalid_file" || perr.Message != "unsupported codec" {
		t.Errorf("error = %+v", perr)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls = %d, 4xx must not be retried", n)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text": "eventually fine", "segments": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k", "m", 5*time.Second, WithRetryBudget(10*time.Second))

	res, err := client.Transcribe(context.Background(), audioFixture(t), "x.m4a", 0, "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "eventually fine" {
		t.Errorf("text = %q", res.Text)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestTranscribeMissingBaseURL(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	client := NewClient("", "k", "m", time.Second)
	if _, err := client.Transcribe(context.Background(), audioFixture(t), "x.m4a", 0, ""); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestParseErrorFallbacks(t *testing.T) {
	perr := parseError(429, []byte(`{"message": "rate limit hit"}`))
	if perr.Message != "rate limit hit" || perr.StatusCode != 429 {
		t.Errorf("perr = %+v", perr)
	}

	perr = parseError(502, []byte("not json at all"))
	if perr.Message != http.StatusText(502) {
		t.Errorf("fallback message = %q", perr.Message)
	}
}
