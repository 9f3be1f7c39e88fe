package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"rulegen-service/internal/cache"
	"rulegen-service/internal/entity"
	"rulegen-service/internal/repository/postgresql"
	"rulegen-service/internal/rulexml"
)

const (
	// DefaultTimeout bounds a job's total processing time across all
	// retries, measured from the first transition to processing.
	DefaultTimeout = 5 * time.Minute

	// DefaultMaxRetries is the number of whole-pipeline retries after the
	// first attempt.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the wait between pipeline attempts.
	DefaultRetryDelay = 5 * time.Second
)

type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, retryCount int, startedAt time.Time) error
	MarkCompleted(ctx context.Context, id uuid.UUID, completedAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errText string) error
}

type RuleCreator interface {
	Create(ctx context.Context, jobID uuid.UUID, ruleXML string) (uuid.UUID, error)
}

type LogFileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.LogFile, error)
}

type SampleReader interface {
	ReadLines(path string, maxLines int) ([]string, error)
}

type Generator interface {
	Generate(ctx context.Context, lines []string, requestedRuleID *int) (string, error)
}

type timeoutError struct {
	budget time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("job timeout after %.0f seconds", e.budget.Seconds())
}

// Processor drives one job through read-sample -> generate -> validate ->
// persist with a bounded retry loop and a cumulative wall-clock timeout.
type Processor struct {
	jobs     JobStore
	rules    RuleCreator
	logFiles LogFileStore
	samples  SampleReader
	gen      Generator
	cache    cache.Cache

	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewProcessor(jobs JobStore, rules RuleCreator, logFiles LogFileStore, samples SampleReader, gen Generator, c cache.Cache) *Processor {
	return &Processor{
		jobs:       jobs,
		rules:      rules,
		logFiles:   logFiles,
		samples:    samples,
		gen:        gen,
		cache:      c,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

// Process runs the full pipeline for one job id. The retry budget is an
// explicit loop: timeouts are terminal immediately, anything else consumes
// an attempt until the budget is gone.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	start := p.now()

	id, err := uuid.Parse(jobID)
	if err != nil {
		log.Printf("[worker] job_id=%s parse_error=%v", jobID, err)
		return err
	}

	job, err := p.jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgresql.ErrNotFound) {
			log.Printf("[worker] job_id=%s not found, skipping", id)
			return nil
		}
		return err
	}

	// A job that already sat in processing past its budget (crashed worker,
	// stale requeue) is failed terminally right away.
	startedAt := p.now()
	if job.StartedAt != nil {
		startedAt = *job.StartedAt
		if p.now().Sub(startedAt) > p.timeout {
			return p.failTimeout(ctx, id)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := p.jobs.MarkProcessing(ctx, id, attempt, startedAt); err != nil {
			return err
		}
		p.invalidateJobCount(ctx)
		log.Printf("[worker] job_id=%s status=processing attempt=%d", id, attempt)

		attemptErr := p.runPipeline(ctx, job, startedAt)
		if attemptErr == nil {
			log.Printf("[worker] job_id=%s status=completed duration_ms=%d attempts=%d",
				id, time.Since(start).Milliseconds(), attempt+1)
			return nil
		}
		lastErr = attemptErr

		var tErr *timeoutError
		if errors.As(attemptErr, &tErr) {
			return p.failTimeout(ctx, id)
		}

		if attempt < p.maxRetries {
			log.Printf("[worker] job_id=%s attempt=%d error=%v retrying_in=%s",
				id, attempt, attemptErr, p.retryDelay)
			if err := p.sleep(ctx, p.retryDelay); err != nil {
				return err
			}
			continue
		}
	}

	msg := fmt.Sprintf("Failed after %d retries: %s",
		p.maxRetries, rulexml.SanitizeErrorMessage(lastErr.Error()))
	if err := p.jobs.MarkFailed(ctx, id, msg); err != nil {
		return err
	}
	p.invalidateJobCount(ctx)
	log.Printf("[worker] job_id=%s status=failed duration_ms=%d error=%v",
		id, time.Since(start).Milliseconds(), lastErr)
	return lastErr
}

// runPipeline executes one attempt. The timeout is re-checked before every
// major step so a slow generation cannot push the job far past its budget.
func (p *Processor) runPipeline(ctx context.Context, job *entity.Job, startedAt time.Time) error {
	if err := p.checkTimeout(startedAt); err != nil {
		return err
	}

	logFile, err := p.logFiles.GetByID(ctx, job.LogFileID)
	if err != nil {
		return fmt.Errorf("load log file: %w", err)
	}

	if err := p.checkTimeout(startedAt); err != nil {
		return err
	}

	lines, err := p.samples.ReadLines(logFile.FilePath, 0)
	if err != nil {
		return fmt.Errorf("read sample: %w", err)
	}
	log.Printf("[worker] job_id=%s sample_lines=%d", job.ID, len(lines))

	if err := p.checkTimeout(startedAt); err != nil {
		return err
	}

	ruleXML, err := p.gen.Generate(ctx, lines, job.RequestedRuleID)
	if err != nil {
		return fmt.Errorf("generate rule: %w", err)
	}

	if err := p.checkTimeout(startedAt); err != nil {
		return err
	}

	sanitized, err := rulexml.Validate(ruleXML)
	if err != nil {
		return err
	}

	if _, err := p.rules.Create(ctx, job.ID, sanitized); err != nil {
		return fmt.Errorf("persist rule: %w", err)
	}
	if err := p.jobs.MarkCompleted(ctx, job.ID, p.now().UTC()); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	p.invalidateJobCount(ctx)
	return nil
}

func (p *Processor) checkTimeout(startedAt time.Time) error {
	if p.now().Sub(startedAt) > p.timeout {
		return &timeoutError{budget: p.timeout}
	}
	return nil
}

func (p *Processor) failTimeout(ctx context.Context, id uuid.UUID) error {
	tErr := &timeoutError{budget: p.timeout}
	if err := p.jobs.MarkFailed(ctx, id, tErr.Error()); err != nil {
		return err
	}
	p.invalidateJobCount(ctx)
	log.Printf("[worker] job_id=%s status=failed reason=timeout budget=%s", id, p.timeout)
	return tErr
}

func (p *Processor) invalidateJobCount(ctx context.Context) {
	if err := p.cache.Delete(ctx, cache.KeyJobCount); err != nil {
		log.Printf("[worker] cache invalidation error=%v", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
