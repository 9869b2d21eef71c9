package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// File processing states reported by the upload API.
const (
	FileStateProcessing = "PROCESSING"
	FileStateActive     = "ACTIVE"
	FileStateFailed     = "FAILED"
)

// UploadFile uploads a local file via the resumable upload protocol and
// blocks until the API reports it ACTIVE. A file that never becomes active
// within the polling budget is an error; callers treat that as fatal to the
// owning job only.
func (c *Client) UploadFile(ctx context.Context, path, mimeType string) (*FileRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	c.log.Info("genai.file.upload_start", "path", path, "bytes", len(data), "mime_type", mimeType)

	uploadURL, err := c.startUpload(ctx, filepath.Base(path), mimeType, len(data))
	if err != nil {
		return nil, fmt.Errorf("start upload: %w", err)
	}

	ref, err := c.finishUpload(ctx, uploadURL, data)
	if err != nil {
		return nil, fmt.Errorf("finish upload: %w", err)
	}
	c.log.Info("genai.file.uploaded", "name", ref.Name, "uri", ref.URI, "state", ref.State)

	// Poll with a fixed delay until the file leaves PROCESSING.
	for i := 0; ref.State == FileStateProcessing; i++ {
		if i >= c.cfg.FilePollMax {
			return nil, fmt.Errorf("file %s still processing after %d polls", ref.Name, c.cfg.FilePollMax)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.FilePollDelay):
		}
		if ref, err = c.GetFile(ctx, ref.Name); err != nil {
			return nil, fmt.Errorf("poll file: %w", err)
		}
	}
	if ref.State != FileStateActive {
		return nil, fmt.Errorf("file %s failed to process: state=%s", ref.Name, ref.State)
	}

	c.log.Info("genai.file.active", "name", ref.Name)
	return ref, nil
}

// GetFile fetches the current metadata (including state) for an uploaded file.
func (c *Client) GetFile(ctx context.Context, name string) (*FileRef, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/v1beta/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genai http error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("genai status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}
	var ref FileRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("decode file metadata: %w", err)
	}
	return &ref, nil
}

func (c *Client) startUpload(ctx context.Context, displayName, mimeType string, size int) (string, error) {
	meta, err := json.Marshal(map[string]any{
		"file": map[string]any{"display_name": displayName},
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/upload/v1beta/files"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(meta))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Upload-Protocol", "resumable")
	req.Header.Set("X-Goog-Upload-Command", "start")
	req.Header.Set("X-Goog-Upload-Header-Content-Length", strconv.Itoa(size))
	req.Header.Set("X-Goog-Upload-Header-Content-Type", mimeType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("genai http error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("genai status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}
	uploadURL := resp.Header.Get("X-Goog-Upload-URL")
	if uploadURL == "" {
		return "", fmt.Errorf("missing upload url in response")
	}
	return uploadURL, nil
}

func (c *Client) finishUpload(ctx context.Context, uploadURL string, data []byte) (*FileRef, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Goog-Upload-Offset", "0")
	req.Header.Set("X-Goog-Upload-Command", "upload, finalize")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genai http error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("genai status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var out struct {
		File FileRef `json:"file"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &out.File, nil
}
