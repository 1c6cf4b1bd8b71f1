// Package pipeline drives a review job from claim to terminal state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"prreview/internal/analyzer"
	"prreview/internal/codec"
	"prreview/internal/github"
	"prreview/internal/metrics"
	"prreview/internal/model"
	"prreview/internal/store"
)

// ChangeSetFetcher loads a pull request and its changed files.
type ChangeSetFetcher interface {
	FetchChangeSet(ctx context.Context, repo string, number int, credential string) (github.ChangeSet, error)
	FetchFiles(ctx context.Context, cs github.ChangeSet, credential string) ([]github.FileDiff, error)
}

// FileAnalyzer reviews a single file's patch.
type FileAnalyzer interface {
	Analyze(ctx context.Context, fileName, patch string) ([]model.FileFinding, error)
}

// Orchestrator is the only writer of job statuses and results after
// submission. Its dependencies are created once per process and shared by
// every job it runs.
type Orchestrator struct {
	store       store.JobStore
	fetcher     ChangeSetFetcher
	analyzer    FileAnalyzer
	logger      *slog.Logger
	fileWorkers int
}

func New(st store.JobStore, fetcher ChangeSetFetcher, an FileAnalyzer, logger *slog.Logger, fileWorkers int) *Orchestrator {
	if fileWorkers <= 0 {
		fileWorkers = 1
	}
	return &Orchestrator{
		store:       st,
		fetcher:     fetcher,
		analyzer:    an,
		logger:      logger,
		fileWorkers: fileWorkers,
	}
}

func (o *Orchestrator) logInfo(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) logWarn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}

// Run executes job to a terminal state. The returned error is for the
// caller's logs; the outcome pollers see is always what was written to
// the store.
func (o *Orchestrator) Run(ctx context.Context, job model.Job) (err error) {
	// Claim: must precede any external call.
	if err := o.store.SetStatus(ctx, job.ID, model.Processing()); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			o.logWarn("review_skipped", "job_id", job.ID, "reason", "already terminal")
		}
		return fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	o.logInfo("review_started", "job_id", job.ID, "repo", job.Repo, "pr", job.Number)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("review panicked: %v", r)
			o.fail(ctx, job, err.Error())
		}
	}()

	cs, err := o.fetcher.FetchChangeSet(ctx, job.Repo, job.Number, job.Credential)
	if err != nil {
		o.fail(ctx, job, err.Error())
		return err
	}
	diffs, err := o.fetcher.FetchFiles(ctx, cs, job.Credential)
	if err != nil {
		o.fail(ctx, job, err.Error())
		return err
	}

	files := o.analyzeAll(ctx, job, diffs)

	result := model.Result{
		JobID:   job.ID,
		Status:  model.StateCompleted,
		Files:   files,
		Summary: model.Summarize(files),
	}

	// The result must be readable before anyone can observe completed.
	if err := o.store.SetResult(ctx, job.ID, result); err != nil {
		o.fail(ctx, job, "store result: "+err.Error())
		return err
	}
	if err := o.store.SetStatus(ctx, job.ID, model.Completed()); err != nil {
		o.fail(ctx, job, "store status: "+err.Error())
		return err
	}

	metrics.RecordJob(string(model.StateCompleted))
	o.logInfo("review_completed",
		"job_id", job.ID,
		"files", result.Summary.TotalFiles,
		"issues", result.Summary.TotalIssues,
		"critical", result.Summary.CriticalIssues,
		"failed_files", result.Summary.FailedFiles,
	)
	return nil
}

// analyzeAll reviews every file that has a patch, at most fileWorkers at a
// time, and returns the analyses in change-set order. Per-file failures
// are recorded on the file and never stop its siblings.
func (o *Orchestrator) analyzeAll(ctx context.Context, job model.Job, diffs []github.FileDiff) []model.FileAnalysis {
	var todo []github.FileDiff
	for _, d := range diffs {
		if d.HasPatch() {
			todo = append(todo, d)
		}
	}

	files := make([]model.FileAnalysis, len(todo))
	var g errgroup.Group
	g.SetLimit(o.fileWorkers)
	for i, d := range todo {
		g.Go(func() error {
			files[i] = o.analyzeFile(ctx, job, d)
			return nil
		})
	}
	_ = g.Wait()

	return files
}

func (o *Orchestrator) analyzeFile(ctx context.Context, job model.Job, d github.FileDiff) (fa model.FileAnalysis) {
	fa = model.FileAnalysis{FileName: d.Filename, Findings: []model.FileFinding{}}

	defer func() {
		if r := recover(); r != nil {
			fa = o.fileFailed(job, d.Filename, "panic", fmt.Sprintf("analysis of %s panicked: %v", d.Filename, r))
		}
	}()

	findings, err := o.analyzer.Analyze(ctx, d.Filename, *d.Patch)
	if err != nil {
		outcome := "error"
		var upstream *analyzer.UpstreamAnalysisError
		var malformedErr *codec.MalformedAnalysisError
		switch {
		case errors.As(err, &upstream):
			outcome = "upstream_error"
		case errors.As(err, &malformedErr):
			outcome = "malformed"
		}
		return o.fileFailed(job, d.Filename, outcome, err.Error())
	}

	metrics.RecordFileAnalyzed("ok")
	for _, f := range findings {
		metrics.RecordFindings(f.Type, 1)
	}
	fa.Findings = append(fa.Findings, findings...)
	return fa
}

func (o *Orchestrator) fileFailed(job model.Job, fileName, outcome, reason string) model.FileAnalysis {
	metrics.RecordFileAnalyzed(outcome)
	o.logWarn("review_file_failed", "job_id", job.ID, "file", fileName, "outcome", outcome, "error", reason)
	return model.FileAnalysis{FileName: fileName, Findings: []model.FileFinding{}, Error: reason}
}

func (o *Orchestrator) fail(ctx context.Context, job model.Job, reason string) {
	metrics.RecordJob(string(model.StateFailed))
	o.logWarn("review_failed", "job_id", job.ID, "error", reason)
	if err := o.store.SetStatus(ctx, job.ID, model.Failed(reason)); err != nil {
		o.logWarn("review_status_write_failed", "job_id", job.ID, "error", err)
	}
}
