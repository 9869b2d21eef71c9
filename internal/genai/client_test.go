package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prepgrid/question-etl/internal/common"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generateBody(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, text)
}

func newTestClient(baseURL string, models ...string) *Client {
	return NewClient(Config{
		APIKey:        "test-key",
		BaseURL:       baseURL,
		Models:        models,
		Timeout:       5 * time.Second,
		FilePollDelay: time.Millisecond,
		FilePollMax:   5,
	}, discard())
}

func TestGenerateFirstModelSucceeds(t *testing.T) {
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		gotPath = r.URL.Path
		fmt.Fprint(w, generateBody("hello"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "model-a", "model-b")
	out, err := c.Generate(context.Background(), "prompt", nil)
	require.NoError(t, err)
	require.Equal(t, "hello", out)
	require.Equal(t, "test-key", gotKey)
	require.Equal(t, "/v1beta/models/model-a:generateContent", gotPath)
}

func TestGenerateFallsThroughUnavailableModels(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.Contains(r.URL.Path, "model-a") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if strings.Contains(r.URL.Path, "model-b") {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, generateBody("from c"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "model-a", "model-b", "model-c")
	out, err := c.Generate(context.Background(), "prompt", nil)
	require.NoError(t, err)
	require.Equal(t, "from c", out)
	require.Len(t, paths, 3)
}

func TestGenerateAllRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "model-a", "model-b")
	_, err := c.Generate(context.Background(), "prompt", nil)
	require.ErrorIs(t, err, common.ErrRateLimited)
}

func TestGenerateAllUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "model-a", "model-b")
	_, err := c.Generate(context.Background(), "prompt", nil)
	require.ErrorIs(t, err, common.ErrModelUnavailable)
}

func TestGenerateMixedRateLimitWins(t *testing.T) {
	// One 429 among 404s means a retry later may succeed, so the chain
	// reports rate limiting rather than a dead chain.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "model-a") {
			http.Error(w, "quota", http.StatusTooManyRequests)
			return
		}
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "model-a", "model-b")
	_, err := c.Generate(context.Background(), "prompt", nil)
	require.ErrorIs(t, err, common.ErrRateLimited)
}

func TestGenerateServerErrorIsTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "model-a", "model-b")
	_, err := c.Generate(context.Background(), "prompt", nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, common.ErrRateLimited)
	require.NotErrorIs(t, err, common.ErrModelUnavailable)
	// No fallthrough on unexpected server errors.
	require.Equal(t, 1, calls)
}

func TestGenerateEmptyCandidatesFallsThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "model-a") {
			fmt.Fprint(w, `{"candidates":[]}`)
			return
		}
		fmt.Fprint(w, generateBody("filled"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "model-a", "model-b")
	out, err := c.Generate(context.Background(), "prompt", nil)
	require.NoError(t, err)
	require.Equal(t, "filled", out)
}

func TestGenerateIncludesFileData(t *testing.T) {
	var body generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprint(w, generateBody("ok"))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "model-a")
	file := &FileRef{Name: "files/abc", URI: "uri://abc", MIMEType: "application/pdf"}
	_, err := c.Generate(context.Background(), "prompt", file)
	require.NoError(t, err)

	require.Len(t, body.Contents, 1)
	require.Len(t, body.Contents[0].Parts, 2)
	require.NotNil(t, body.Contents[0].Parts[0].FileData)
	require.Equal(t, "uri://abc", body.Contents[0].Parts[0].FileData.FileURI)
	require.Equal(t, "prompt", body.Contents[0].Parts[1].Text)
}

func TestUploadFilePollsUntilActive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))

	polls := 0
	var srvURL, startProto, startCmd, finishCmd string
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		startProto = r.Header.Get("X-Goog-Upload-Protocol")
		startCmd = r.Header.Get("X-Goog-Upload-Command")
		w.Header().Set("X-Goog-Upload-URL", srvURL+"/resumable/session-1")
	})
	mux.HandleFunc("/resumable/session-1", func(w http.ResponseWriter, r *http.Request) {
		finishCmd = r.Header.Get("X-Goog-Upload-Command")
		fmt.Fprint(w, `{"file":{"name":"files/abc","uri":"uri://abc","state":"PROCESSING"}}`)
	})
	mux.HandleFunc("/v1beta/files/abc", func(w http.ResponseWriter, _ *http.Request) {
		polls++
		state := "PROCESSING"
		if polls >= 2 {
			state = "ACTIVE"
		}
		fmt.Fprintf(w, `{"name":"files/abc","uri":"uri://abc","state":%q}`, state)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	c := newTestClient(srv.URL, "model-a")
	ref, err := c.UploadFile(context.Background(), path, "application/pdf")
	require.NoError(t, err)
	require.Equal(t, "files/abc", ref.Name)
	require.Equal(t, FileStateActive, ref.State)
	require.Equal(t, 2, polls)
	require.Equal(t, "resumable", startProto)
	require.Equal(t, "start", startCmd)
	require.Equal(t, "upload, finalize", finishCmd)
}

func TestUploadFileFailedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Goog-Upload-URL", srvURL+"/resumable/session-1")
	})
	mux.HandleFunc("/resumable/session-1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"file":{"name":"files/abc","uri":"uri://abc","state":"FAILED"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	c := newTestClient(srv.URL, "model-a")
	_, err := c.UploadFile(context.Background(), path, "application/pdf")
	require.ErrorContains(t, err, "failed to process")
}

func TestUploadFileMissingLocalFile(t *testing.T) {
	c := newTestClient("http://unused", "model-a")
	_, err := c.UploadFile(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"), "application/pdf")
	require.Error(t, err)
}
