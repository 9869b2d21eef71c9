package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/prepgrid/question-etl/internal/config"
)

// maxSectionPages caps how many pagination sections one URL job follows.
const maxSectionPages = 5

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

type urlReader struct {
	job    config.Job
	client *http.Client
	log    *slog.Logger
}

func newURLReader(job config.Job, logger *slog.Logger) *urlReader {
	return &urlReader{
		job:    job,
		client: &http.Client{Timeout: 20 * time.Second},
		log:    logger,
	}
}

// Read fetches the configured page and, for question-bank layouts we
// recognize, every linked "Section" page up to maxSectionPages. One chunk
// is produced per fetched page; a site we do not recognize yields a single
// whole-page text chunk.
func (r *urlReader) Read(ctx context.Context) ([]RawChunk, error) {
	doc, err := r.fetch(ctx, r.job.Location)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", r.job.Location, err)
	}

	chunks := []RawChunk{r.pageChunk(r.job.Location, doc)}

	for _, sectionURL := range r.sectionLinks(doc) {
		sdoc, err := r.fetch(ctx, sectionURL)
		if err != nil {
			// One broken section page does not sink the job.
			r.log.Warn("section fetch failed", "url", sectionURL, "error", err)
			continue
		}
		chunks = append(chunks, r.pageChunk(sectionURL, sdoc))
	}

	r.log.Info("url source read", "url", r.job.Location, "pages", len(chunks))
	return chunks, nil
}

func (r *urlReader) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgents[int(time.Now().UnixNano())%len(userAgents)])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// pageChunk extracts the question text blocks for the page. Pages with
// recognizable question markup produce one newline-joined block per
// question; anything else falls back to the whole page text.
func (r *urlReader) pageChunk(pageURL string, doc *goquery.Document) RawChunk {
	blocks := extractQuestionBlocks(doc)
	if len(blocks) == 0 {
		return RawChunk{Origin: pageURL, Text: pageText(doc)}
	}
	return RawChunk{Origin: pageURL, Text: strings.Join(blocks, "\n\n")}
}

// extractQuestionBlocks walks h2-delimited question sections: each block is
// the question heading plus the sibling content (choices, answer) up to the
// next heading. Returns nil when the layout does not match.
func extractQuestionBlocks(doc *goquery.Document) []string {
	var blocks []string
	doc.Find("h2").Each(func(_ int, h2 *goquery.Selection) {
		main := h2.Find("div.question-main")
		if main.Length() == 0 {
			return
		}
		parts := []string{strings.TrimSpace(main.Text())}
		for sib := h2.Next(); sib.Length() > 0 && !sib.Is("h2"); sib = sib.Next() {
			text := strings.TrimSpace(sib.Text())
			if text == "" || strings.Contains(text, "Answer & Solution") || strings.Contains(text, "Discuss in Board") {
				continue
			}
			parts = append(parts, text)
		}
		blocks = append(blocks, strings.Join(parts, "\n"))
	})
	return blocks
}

// sectionLinks collects unique pagination links ("Section 2", ...) found on
// the page, resolved against the page URL and capped at maxSectionPages.
func (r *urlReader) sectionLinks(doc *goquery.Document) []string {
	base, err := url.Parse(r.job.Location)
	if err != nil {
		return nil
	}

	seen := map[string]struct{}{r.job.Location: {}}
	var links []string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(a.Text(), "Section") {
			return true
		}
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref).String()
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
		return len(links) < maxSectionPages
	})
	return links
}

func pageText(doc *goquery.Document) string {
	var sb strings.Builder
	doc.Find("body").Find("script,style,noscript").Remove()
	for _, line := range strings.Split(doc.Find("body").Text(), "\n") {
		if t := strings.TrimSpace(line); t != "" {
			sb.WriteString(t)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
