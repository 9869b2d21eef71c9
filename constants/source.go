package constants

import "strings"

// SourceKind is the canonical kind for a configured extraction job.
type SourceKind string

// Stable values (these exact strings appear in jobs.yaml).
const (
	SourceURL SourceKind = "url"
	SourcePDF SourceKind = "pdf"
)

// PDFMode selects how a PDF job is handed to the transformation API.
type PDFMode string

const (
	// PDFModeBinary uploads the file and lets the API read it directly.
	PDFModeBinary PDFMode = "binary"
	// PDFModeText extracts text locally and sends fixed-size windows.
	PDFModeText PDFMode = "text"
)

// ChoiceLabels are the positional labels assigned to unlabeled alternatives.
// Choice sets are capped at len(ChoiceLabels).
var ChoiceLabels = []string{"A", "B", "C", "D", "E"}

// NormalizeKind lowercases and trims a configured source kind.
func NormalizeKind(kind string) SourceKind {
	return SourceKind(strings.ToLower(strings.TrimSpace(kind)))
}
