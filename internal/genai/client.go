// Package genai is a thin HTTP client for the Generative Language API.
// It covers exactly what the pipeline needs: text generation with an
// ordered model fallback chain, and binary file upload with state polling.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prepgrid/question-etl/internal/common"
)

// Config for the Generative Language client.
type Config struct {
	APIKey  string   // if empty, falls back to env GEMINI_API_KEY
	BaseURL string   // default https://generativelanguage.googleapis.com
	Models  []string // ordered fallback chain, preferred first
	Timeout time.Duration

	FilePollDelay time.Duration // fixed wait between file-state polls
	FilePollMax   int           // bounded poll attempts before giving up
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if len(cfg.Models) == 0 {
		cfg.Models = []string{"gemini-flash-latest"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.FilePollDelay <= 0 {
		cfg.FilePollDelay = 2 * time.Second
	}
	if cfg.FilePollMax <= 0 {
		cfg.FilePollMax = 60
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}
}

// FileRef is an opaque handle to a previously uploaded binary file.
type FileRef struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType"`
	State    string `json:"state"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MIMEType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends the prompt (plus an optional file reference) to the first
// model in the fallback chain that will take it. A model answering 404/400
// or signalling quota exhaustion is skipped; if every model is skipped the
// call fails with ErrModelUnavailable, or ErrRateLimited when at least one
// model refused for rate reasons so a later retry may succeed.
func (c *Client) Generate(ctx context.Context, prompt string, file *FileRef) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	parts := []part{}
	if file != nil {
		parts = append(parts, part{FileData: &fileData{MIMEType: file.MIMEType, FileURI: file.URI}})
	}
	parts = append(parts, part{Text: prompt})
	body := generateRequest{Contents: []content{{Parts: parts}}}

	rateLimited := false
	var lastErr error

	for _, model := range c.cfg.Models {
		c.log.Info("genai.generate.start",
			"req_id", rid,
			"model", model,
			"prompt_len", len(prompt),
			"has_file", file != nil,
		)

		url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), model)
		raw, status, err := c.postJSON(ctx, url, body)
		if err != nil {
			lastErr = err
			switch {
			case status == http.StatusTooManyRequests:
				rateLimited = true
				c.log.Warn("genai.generate.rate_limited", "req_id", rid, "model", model)
				continue
			case status == http.StatusNotFound, status == http.StatusBadRequest:
				c.log.Warn("genai.generate.model_unavailable", "req_id", rid, "model", model, "status", status)
				continue
			default:
				c.log.Error("genai.generate.http_error",
					"req_id", rid, "model", model, "error", err,
					"elapsed_ms", time.Since(start).Milliseconds(),
				)
				return "", err
			}
		}

		var gr generateResponse
		if err := json.Unmarshal(raw, &gr); err != nil {
			c.log.Error("genai.generate.decode_error", "req_id", rid, "model", model, "error", err, "raw_bytes", len(raw))
			return "", fmt.Errorf("decode generate response: %w", err)
		}
		if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
			lastErr = errors.New("no candidates in response")
			c.log.Warn("genai.generate.empty_response", "req_id", rid, "model", model)
			continue
		}

		var sb strings.Builder
		for _, p := range gr.Candidates[0].Content.Parts {
			sb.WriteString(p.Text)
		}
		c.log.Info("genai.generate.ok",
			"req_id", rid,
			"model", model,
			"response_len", sb.Len(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return sb.String(), nil
	}

	if rateLimited {
		return "", fmt.Errorf("all models refused: %w", common.ErrRateLimited)
	}
	return "", fmt.Errorf("all models failed (last: %v): %w", lastErr, common.ErrModelUnavailable)
}

// postJSON posts body as JSON and returns the raw response, surfacing the
// HTTP status so callers can classify failures.
func (c *Client) postJSON(ctx context.Context, url string, body any) ([]byte, int, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("genai http error: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.log.Warn("genai response body close error", "error", err)
		}
	}(resp.Body)

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("genai status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}
	return raw, resp.StatusCode, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
