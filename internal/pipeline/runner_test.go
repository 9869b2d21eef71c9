package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/prepgrid/question-etl/constants"
	"github.com/prepgrid/question-etl/internal/common"
	"github.com/prepgrid/question-etl/internal/config"
	"github.com/prepgrid/question-etl/internal/entity"
	"github.com/prepgrid/question-etl/internal/repository"
	"github.com/prepgrid/question-etl/internal/source"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeReader struct {
	chunks []source.RawChunk
	err    error
}

func (f *fakeReader) Read(context.Context) ([]source.RawChunk, error) {
	return f.chunks, f.err
}

type fakeExtractor struct {
	// candidates per origin
	byOrigin map[string][]entity.Candidate
	err      error
	calls    int
}

func (f *fakeExtractor) ExtractChunk(_ context.Context, chunk source.RawChunk, _ config.Job) ([]entity.Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byOrigin[chunk.Origin], nil
}

type fakeQuestionRepo struct {
	uploads   [][]*entity.Question
	uploadErr error
}

func (f *fakeQuestionRepo) Upload(_ context.Context, qs []*entity.Question, _ int) (repository.UploadResult, error) {
	if f.uploadErr != nil {
		return repository.UploadResult{}, f.uploadErr
	}
	cp := make([]*entity.Question, len(qs))
	copy(cp, qs)
	f.uploads = append(f.uploads, cp)
	return repository.UploadResult{Created: len(qs)}, nil
}

func (f *fakeQuestionRepo) List(context.Context, string, string) ([]*entity.Question, error) {
	return nil, nil
}
func (f *fakeQuestionRepo) Count(context.Context, string) (int, error) { return 0, nil }
func (f *fakeQuestionRepo) DeleteByIDs(context.Context, []uuid.UUID, int) (int, error) {
	return 0, nil
}
func (f *fakeQuestionRepo) DeleteByTopic(context.Context, string, int) (int, error) { return 0, nil }
func (f *fakeQuestionRepo) RenameDifficulty(context.Context, string, constants.Difficulty) (int64, error) {
	return 0, nil
}

func candidate(text string) entity.Candidate {
	return entity.Candidate{
		QuestionText:  text,
		Choices:       json.RawMessage(`[{"id":"A","text":"x"},{"id":"B","text":"y"}]`),
		CorrectAnswer: "A",
		Difficulty:    "Medium",
	}
}

func newTestRunner(extractor ChunkExtractor, repo repository.QuestionRepository, readers map[string]*fakeReader, sleeps *[]time.Duration) *Runner {
	cfg := common.PipelineConfig{
		UploadBatchSize: 100,
		JobCooldown:     time.Minute,
		PDFTextWindow:   1000,
	}
	r := NewRunner(cfg, extractor, repo, discard())
	r.newReader = func(job config.Job, _ int, _ *slog.Logger) (source.Reader, error) {
		fr, ok := readers[job.Location]
		if !ok {
			return nil, errors.New("no reader for " + job.Location)
		}
		return fr, nil
	}
	r.sleep = func(d time.Duration) {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
	}
	return r
}

func TestRunExtractsNormalizesAndUploads(t *testing.T) {
	readers := map[string]*fakeReader{
		"src": {chunks: []source.RawChunk{{Origin: "src", Text: "content"}}},
	}
	extractor := &fakeExtractor{byOrigin: map[string][]entity.Candidate{
		"src": {candidate("q1"), candidate("q2")},
	}}
	repo := &fakeQuestionRepo{}

	runner := newTestRunner(extractor, repo, readers, nil)
	jobs := []config.Job{{Kind: "url", Location: "src", Topic: "t", Subtopic: "s"}}

	stats, err := runner.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Jobs)
	require.Zero(t, stats.JobsFailed)
	require.Equal(t, 2, stats.Extracted)
	require.Zero(t, stats.Rejected)
	require.Equal(t, 2, stats.Created)

	require.Len(t, repo.uploads, 1)
	require.Len(t, repo.uploads[0], 2)
	require.Equal(t, "t", repo.uploads[0][0].Topic)
	require.Equal(t, "s", repo.uploads[0][0].Subtopic)
}

func TestRunRejectsInvalidCandidates(t *testing.T) {
	bad := entity.Candidate{QuestionText: "no choices", CorrectAnswer: "A"}
	readers := map[string]*fakeReader{
		"src": {chunks: []source.RawChunk{{Origin: "src"}}},
	}
	extractor := &fakeExtractor{byOrigin: map[string][]entity.Candidate{
		"src": {candidate("ok"), bad},
	}}
	repo := &fakeQuestionRepo{}

	runner := newTestRunner(extractor, repo, readers, nil)
	stats, err := runner.Run(context.Background(), []config.Job{{Kind: "url", Location: "src", Topic: "t", Subtopic: "s"}})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Extracted)
	require.Equal(t, 1, stats.Rejected)
	require.Equal(t, 1, stats.Created)
}

func TestRunDeduplicatesAcrossJobs(t *testing.T) {
	readers := map[string]*fakeReader{
		"a": {chunks: []source.RawChunk{{Origin: "a"}}},
		"b": {chunks: []source.RawChunk{{Origin: "b"}}},
	}
	extractor := &fakeExtractor{byOrigin: map[string][]entity.Candidate{
		"a": {candidate("shared"), candidate("only-a")},
		"b": {candidate("shared"), candidate("only-b")},
	}}
	repo := &fakeQuestionRepo{}

	runner := newTestRunner(extractor, repo, readers, nil)
	jobs := []config.Job{
		{Kind: "url", Location: "a", Topic: "t", Subtopic: "s"},
		{Kind: "url", Location: "b", Topic: "t", Subtopic: "s"},
	}
	stats, err := runner.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Equal(t, 4, stats.Extracted)
	require.Equal(t, 1, stats.Deduped)
	require.Equal(t, 3, stats.Created)

	// The duplicate is never re-uploaded: job b contributes only its new row.
	require.Len(t, repo.uploads, 2)
	require.Len(t, repo.uploads[0], 2)
	require.Len(t, repo.uploads[1], 1)
	require.Equal(t, "only-b", repo.uploads[1][0].Text)
}

func looseCandidate(text string) entity.Candidate {
	return entity.Candidate{
		QuestionText:  text,
		Choices:       json.RawMessage(`["x","y"]`),
		CorrectAnswer: "x",
		Difficulty:    "Medium",
	}
}

func TestRunReuploadsCanonicalReplacementFromLaterChunk(t *testing.T) {
	// The bare-string variant of "shared" is confirmed from chunk one; the
	// cleaner {id,text} variant arriving in chunk two displaces it in the
	// deduper and must still reach the store.
	readers := map[string]*fakeReader{
		"src": {chunks: []source.RawChunk{{Origin: "c1"}, {Origin: "c2"}}},
	}
	extractor := &fakeExtractor{byOrigin: map[string][]entity.Candidate{
		"c1": {looseCandidate("shared")},
		"c2": {candidate("shared")},
	}}
	repo := &fakeQuestionRepo{}

	runner := newTestRunner(extractor, repo, readers, nil)
	stats, err := runner.Run(context.Background(), []config.Job{{Kind: "url", Location: "src", Topic: "t", Subtopic: "s"}})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Extracted)
	require.Equal(t, 1, stats.Deduped)

	require.Len(t, repo.uploads, 2)
	require.Len(t, repo.uploads[0], 1)
	require.False(t, repo.uploads[0][0].CanonicalChoices)

	require.Len(t, repo.uploads[1], 1)
	require.Equal(t, "shared", repo.uploads[1][0].Text)
	require.True(t, repo.uploads[1][0].CanonicalChoices)
}

func TestRunReplacementWithinChunkUploadedOnce(t *testing.T) {
	// When the weaker twin has not been flushed yet, the in-place
	// replacement rides out with the chunk's pending slice; no re-send.
	readers := map[string]*fakeReader{
		"src": {chunks: []source.RawChunk{{Origin: "c1"}}},
	}
	extractor := &fakeExtractor{byOrigin: map[string][]entity.Candidate{
		"c1": {looseCandidate("shared"), candidate("shared")},
	}}
	repo := &fakeQuestionRepo{}

	runner := newTestRunner(extractor, repo, readers, nil)
	stats, err := runner.Run(context.Background(), []config.Job{{Kind: "url", Location: "src", Topic: "t", Subtopic: "s"}})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Deduped)

	require.Len(t, repo.uploads, 1)
	require.Len(t, repo.uploads[0], 1)
	require.True(t, repo.uploads[0][0].CanonicalChoices)
}

func TestRunJobFailureIsContained(t *testing.T) {
	readers := map[string]*fakeReader{
		"bad":  {err: errors.New("fetch failed")},
		"good": {chunks: []source.RawChunk{{Origin: "good"}}},
	}
	extractor := &fakeExtractor{byOrigin: map[string][]entity.Candidate{
		"good": {candidate("q1")},
	}}
	repo := &fakeQuestionRepo{}

	runner := newTestRunner(extractor, repo, readers, nil)
	jobs := []config.Job{
		{Kind: "url", Location: "bad", Topic: "t", Subtopic: "s"},
		{Kind: "url", Location: "good", Topic: "t", Subtopic: "s"},
	}
	stats, err := runner.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Jobs)
	require.Equal(t, 1, stats.JobsFailed)
	require.Equal(t, 1, stats.Created)
}

func TestRunCoolsDownBetweenJobsButNotAfterLast(t *testing.T) {
	readers := map[string]*fakeReader{
		"a": {chunks: nil},
		"b": {chunks: nil},
		"c": {chunks: nil},
	}
	extractor := &fakeExtractor{}
	repo := &fakeQuestionRepo{}

	var sleeps []time.Duration
	runner := newTestRunner(extractor, repo, readers, &sleeps)
	jobs := []config.Job{
		{Kind: "url", Location: "a", Topic: "t", Subtopic: "s"},
		{Kind: "url", Location: "b", Topic: "t", Subtopic: "s"},
		{Kind: "url", Location: "c", Topic: "t", Subtopic: "s"},
	}
	_, err := runner.Run(context.Background(), jobs)
	require.NoError(t, err)
	require.Equal(t, []time.Duration{time.Minute, time.Minute}, sleeps)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := newTestRunner(&fakeExtractor{}, &fakeQuestionRepo{}, nil, nil)
	stats, err := runner.Run(ctx, []config.Job{{Kind: "url", Location: "a", Topic: "t", Subtopic: "s"}})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, stats.Jobs)
}

func TestRunUploadFailureFailsJob(t *testing.T) {
	readers := map[string]*fakeReader{
		"src": {chunks: []source.RawChunk{{Origin: "src"}}},
	}
	extractor := &fakeExtractor{byOrigin: map[string][]entity.Candidate{
		"src": {candidate("q1")},
	}}
	repo := &fakeQuestionRepo{uploadErr: errors.New("store down")}

	runner := newTestRunner(extractor, repo, readers, nil)
	stats, err := runner.Run(context.Background(), []config.Job{{Kind: "url", Location: "src", Topic: "t", Subtopic: "s"}})
	require.NoError(t, err)
	require.Equal(t, 1, stats.JobsFailed)
}
