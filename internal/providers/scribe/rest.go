package scribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/domain"
	"github.com/wbaguley/Boise-Prosthodontics-AI-Scribe-2-sub001/internal/ports"
)

// APIClient talks to the scribe backend's REST endpoints. These calls
// are independent of the streaming session: they submit the current
// transcript/note plus an instruction and return reworked text.
type APIClient struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// NewAPIClient creates a REST client for the backend at baseURL.
func NewAPIClient(baseURL string, timeout time.Duration, log *slog.Logger) *APIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// ListProviders fetches the clinicians configured on the backend.
func (c *APIClient) ListProviders(ctx context.Context) ([]domain.Provider, error) {
	var out struct {
		Providers []domain.Provider `json:"providers"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/providers", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return out.Providers, nil
}

// ListTemplates fetches the available note templates.
func (c *APIClient) ListTemplates(ctx context.Context) ([]domain.Template, error) {
	var out struct {
		Templates []domain.Template `json:"templates"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/templates", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return out.Templates, nil
}

// RequestCorrection submits a free-text correction instruction and
// returns the corrected note.
func (c *APIClient) RequestCorrection(ctx context.Context, req ports.CorrectionRequest) (string, error) {
	body := map[string]string{
		"recording_id":           req.RecordingID,
		"original_note":          req.Note,
		"correction_instruction": req.Instruction,
		"transcript":             req.Transcript,
	}
	var out struct {
		CorrectedNote string `json:"corrected_note"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/correct-note", body, &out); err != nil {
		return "", fmt.Errorf("failed to request correction: %w", err)
	}
	return out.CorrectedNote, nil
}

// SendChatEdit submits one conversational editing turn.
func (c *APIClient) SendChatEdit(ctx context.Context, req ports.ChatRequest) (ports.ChatResponse, error) {
	body := map[string]any{
		"recording_id":   req.RecordingID,
		"original_note":  req.Note,
		"transcript":     req.Transcript,
		"user_message":   req.Message,
		"recent_history": req.History,
	}
	var out struct {
		Reply       string `json:"reply"`
		UpdatedNote string `json:"updated_note"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/chat-edit", body, &out); err != nil {
		return ports.ChatResponse{}, fmt.Errorf("failed to send chat edit: %w", err)
	}
	return ports.ChatResponse{Reply: out.Reply, UpdatedNote: out.UpdatedNote}, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
