package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/chat_voice", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("audio_file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "query.wav", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte("fake-wav"), data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"user_query_text": "what is the leave policy",
			"response_text": "Employees get 20 days.",
			"response_audio_url": "/api/v1/audio/resp_123.mp3"
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.ChatVoice(context.Background(), []byte("fake-wav"))
	require.NoError(t, err)
	assert.Equal(t, "what is the leave policy", resp.UserQueryText)
	assert.Equal(t, "Employees get 20 days.", resp.ResponseText)
	assert.Equal(t, "/api/v1/audio/resp_123.mp3", resp.ResponseAudioURL)
}

func TestChatVoice_EmptyAudio(t *testing.T) {
	c := New("http://unused")
	_, err := c.ChatVoice(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyAudio)
}

func TestChatVoice_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail": "models are still loading"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.ChatVoice(context.Background(), []byte("x"))
	require.Error(t, err)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
	assert.Equal(t, "models are still loading", perr.Detail)
	assert.True(t, perr.Retryable())
}

func TestChatText(t *testing.T) {
	// The backend validates the request body; a missing query_text field is
	// rejected, so decode it the way the server does.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/chat_text", r.URL.Path)
		var req struct {
			QueryText *string `json:"query_text"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.QueryText == nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"detail": "field required: query_text"}`))
			return
		}
		assert.Equal(t, "hello", *req.QueryText)
		_, _ = w.Write([]byte(`{"response_text": "hi there", "context_used": ["chunk one"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.ChatText(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.ResponseText)
	assert.Equal(t, []string{"chunk one"}, resp.ContextUsed)
}

func TestUploadDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/upload_pdf", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(t, err)
		assert.Equal(t, "handbook.pdf", header.Filename)
		_, _ = w.Write([]byte(`{"message": "indexed", "filename": "handbook.pdf"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.UploadDocument(context.Background(), "handbook.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "handbook.pdf", resp.Filename)
}

func TestGetStatusAndClearState(t *testing.T) {
	var cleared bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/status":
			_, _ = w.Write([]byte(`{"status": "ok", "models_loaded": {"stt": true, "llm": true, "tts": false}, "indexed_document_name": "handbook.pdf", "version": "1.4.0"}`))
		case "/api/v1/clear_state":
			require.Equal(t, http.MethodPost, r.Method)
			cleared = true
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Ready(), "tts still loading")
	assert.Equal(t, "handbook.pdf", status.IndexedDocument)
	assert.Equal(t, "1.4.0", status.Version)

	require.NoError(t, c.ClearState(context.Background()))
	assert.True(t, cleared)
}

func TestStatusReady(t *testing.T) {
	assert.False(t, (&Status{}).Ready())
	assert.False(t, (&Status{ModelsLoaded: map[string]bool{"stt": true, "llm": false}}).Ready())
	assert.True(t, (&Status{ModelsLoaded: map[string]bool{"stt": true, "llm": true}}).Ready())
}

func TestCheckCompatibility(t *testing.T) {
	version := "1.4.0"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "ok", "models_loaded": {"llm": true}, "version": "` + version + `"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)

	_, err := c.CheckCompatibility(context.Background(), ">= 1.2")
	assert.NoError(t, err)

	version = "0.9.0"
	_, err = c.CheckCompatibility(context.Background(), ">= 1.2")
	assert.ErrorContains(t, err, "does not satisfy")

	// Older backends report no version at all; accept them.
	version = ""
	_, err = c.CheckCompatibility(context.Background(), ">= 1.2")
	assert.NoError(t, err)
}

func TestFetchAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/audio/resp_123.mp3", r.URL.Path)
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	data, err := c.FetchAudio(context.Background(), "/api/v1/audio/resp_123.mp3")
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), data)
}

func TestFetchAudio_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail": "audio expired"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.FetchAudio(context.Background(), "/api/v1/audio/gone.mp3")
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusNotFound, perr.StatusCode)
	assert.Equal(t, "audio expired", perr.Detail)
	assert.False(t, perr.Retryable())
}
