// Package pipeline is the HTTP client for the voice-RAG backend: voice and
// text queries, document ingestion, backend status, and synthesized audio
// retrieval.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vignanchoutpally/voice-rag/logger"
)

const (
	apiPrefix = "/api/v1"

	// defaultTimeout bounds one pipeline request end to end. Voice queries
	// run the full STT, retrieval, LLM, and TTS chain server-side.
	defaultTimeout = 120 * time.Second
)

// VoiceResponse is the backend's answer to a voice query.
type VoiceResponse struct {
	UserQueryText    string `json:"user_query_text"`
	ResponseText     string `json:"response_text"`
	ResponseAudioURL string `json:"response_audio_url"`
}

// TextResponse is the backend's answer to a typed query.
type TextResponse struct {
	ResponseText string   `json:"response_text"`
	ContextUsed  []string `json:"context_used"`
}

// UploadResponse acknowledges a document ingestion.
type UploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

// Status is the backend's readiness report. ModelsLoaded is keyed by model
// name (stt, llm, tts). Version is empty on backends that predate it.
type Status struct {
	Status          string          `json:"status"`
	ModelsLoaded    map[string]bool `json:"models_loaded"`
	IndexedDocument string          `json:"indexed_document_name"`
	Version         string          `json:"version"`
}

// Ready reports whether every backend model has finished loading.
func (s *Status) Ready() bool {
	if len(s.ModelsLoaded) == 0 {
		return false
	}
	for _, loaded := range s.ModelsLoaded {
		if !loaded {
			return false
		}
	}
	return true
}

// Client talks to the voice pipeline backend.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures the pipeline client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

// New creates a pipeline client for the given backend base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatVoice submits a recorded voice query. The backend transcribes it, runs
// retrieval-augmented generation, and synthesizes the answer.
func (c *Client) ChatVoice(ctx context.Context, audio []byte) (*VoiceResponse, error) {
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio_file", "query.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var out VoiceResponse
	if err := c.do(ctx, "chat_voice", http.MethodPost, "/chat_voice",
		&buf, writer.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatText submits a typed query, bypassing speech entirely.
func (c *Client) ChatText(ctx context.Context, query string) (*TextResponse, error) {
	body, err := json.Marshal(map[string]string{"query_text": query})
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	var out TextResponse
	if err := c.do(ctx, "chat_text", http.MethodPost, "/chat_text",
		bytes.NewReader(body), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadDocument sends a PDF to the backend for indexing.
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader) (*UploadResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to copy document: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var out UploadResponse
	if err := c.do(ctx, "upload_pdf", http.MethodPost, "/upload_pdf",
		&buf, writer.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStatus fetches the backend's readiness report.
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	var out Status
	if err := c.do(ctx, "status", http.MethodGet, "/status", nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearState drops the backend's conversation memory.
func (c *Client) ClearState(ctx context.Context) error {
	return c.do(ctx, "clear_state", http.MethodPost, "/clear_state", nil, "", nil)
}

// FetchAudio downloads synthesized response audio. audioURL may be the
// relative URL returned in a VoiceResponse or an absolute one.
func (c *Client) FetchAudio(ctx context.Context, audioURL string) ([]byte, error) {
	target, err := c.resolveURL(audioURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Operation: "fetch_audio", Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError("fetch_audio", resp.StatusCode, body)
	}
	return body, nil
}

// CheckCompatibility verifies the backend version against a semver
// constraint like ">= 1.2". An empty backend version is accepted to keep
// older deployments working.
func (c *Client) CheckCompatibility(ctx context.Context, constraint string) (*Status, error) {
	status, err := c.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	if status.Version == "" || constraint == "" {
		return status, nil
	}

	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("invalid version constraint %q: %w", constraint, err)
	}
	ver, err := semver.NewVersion(status.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid backend version %q: %w", status.Version, err)
	}
	if !cons.Check(ver) {
		return nil, fmt.Errorf("backend version %s does not satisfy %s", status.Version, constraint)
	}
	return status, nil
}

// do runs one API request and decodes a JSON response into out (when out is
// non-nil).
func (c *Client) do(
	ctx context.Context, op, method, path string,
	body io.Reader, contentType string, out any,
) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return &Error{Operation: op, Detail: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	logger.Debug("pipeline request finished",
		"operation", op,
		"status", resp.StatusCode,
		"duration", time.Since(start).String())

	if resp.StatusCode != http.StatusOK {
		return newStatusError(op, resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", op, err)
	}
	return nil
}

// resolveURL makes a relative audio URL absolute against the backend base.
func (c *Client) resolveURL(audioURL string) (string, error) {
	u, err := url.Parse(audioURL)
	if err != nil {
		return "", fmt.Errorf("invalid audio URL %q: %w", audioURL, err)
	}
	if u.IsAbs() {
		return audioURL, nil
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	return base.ResolveReference(u).String(), nil
}

// newStatusError decodes the backend's {"detail": ...} error shape, falling
// back to the raw body.
func newStatusError(op string, statusCode int, body []byte) *Error {
	var errResp struct {
		Detail string `json:"detail"`
	}
	detail := string(body)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Detail != "" {
		detail = errResp.Detail
	}
	return &Error{Operation: op, StatusCode: statusCode, Detail: detail}
}
