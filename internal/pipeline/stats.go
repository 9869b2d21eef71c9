package pipeline

import "log/slog"

// Stats counts what happened during one run. The pipeline is sequential,
// so plain ints are safe.
type Stats struct {
	Jobs       int
	JobsFailed int
	Extracted  int
	Rejected   int
	Deduped    int
	Created    int
	Updated    int
	Failed     int
}

// LogValue implements slog.LogValuer for structured logging.
func (s *Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("jobs", s.Jobs),
		slog.Int("jobs_failed", s.JobsFailed),
		slog.Int("extracted", s.Extracted),
		slog.Int("rejected", s.Rejected),
		slog.Int("deduped", s.Deduped),
		slog.Int("created", s.Created),
		slog.Int("updated", s.Updated),
		slog.Int("failed", s.Failed),
	)
}
