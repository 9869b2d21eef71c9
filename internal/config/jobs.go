package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/prepgrid/question-etl/constants"
)

// ItemRange bounds how many logical items one extraction pass requests.
// Start and End are 1-based and inclusive.
type ItemRange struct {
	Start int `yaml:"start"`
	End   int `yaml:"end"`
}

// Job is one unit of work configuration. Jobs are immutable once loaded and
// consumed exactly once per run.
type Job struct {
	Kind      string     `yaml:"kind"`     // "url" or "pdf"
	Location  string     `yaml:"location"` // URL or file path
	ItemRange *ItemRange `yaml:"item_range,omitempty"`
	PDFMode   string     `yaml:"pdf_mode,omitempty"` // "binary" (default) or "text"

	Topic      string `yaml:"topic"`
	Subtopic   string `yaml:"subtopic"`
	Difficulty string `yaml:"difficulty,omitempty"` // overrides the model's guess when set
}

// JobsFile is the static control plane: the full list of jobs for a run.
type JobsFile struct {
	Jobs []Job `yaml:"jobs"`
}

// LoadJobs reads and validates the YAML job list at path.
func LoadJobs(path string) ([]Job, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jobs file: %w", err)
	}
	var f JobsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse jobs file: %w", err)
	}
	for i := range f.Jobs {
		if err := validateJob(&f.Jobs[i]); err != nil {
			return nil, fmt.Errorf("job %d: %w", i, err)
		}
	}
	return f.Jobs, nil
}

func validateJob(j *Job) error {
	switch constants.NormalizeKind(j.Kind) {
	case constants.SourceURL, constants.SourcePDF:
	default:
		return fmt.Errorf("unknown kind %q", j.Kind)
	}
	if j.Location == "" {
		return fmt.Errorf("location is required")
	}
	if j.Topic == "" || j.Subtopic == "" {
		return fmt.Errorf("topic and subtopic are required")
	}
	if j.ItemRange != nil {
		if j.ItemRange.Start < 1 || j.ItemRange.End < j.ItemRange.Start {
			return fmt.Errorf("invalid item_range %d..%d", j.ItemRange.Start, j.ItemRange.End)
		}
	}
	if j.PDFMode != "" {
		switch constants.PDFMode(j.PDFMode) {
		case constants.PDFModeBinary, constants.PDFModeText:
		default:
			return fmt.Errorf("unknown pdf_mode %q", j.PDFMode)
		}
	}
	return nil
}

// Mode returns the effective PDF handling mode for the job.
func (j *Job) Mode() constants.PDFMode {
	if j.PDFMode == "" {
		return constants.PDFModeBinary
	}
	return constants.PDFMode(j.PDFMode)
}
