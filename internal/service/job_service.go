package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"rulegen-service/internal/entity"
)

// Repository port (implementation: postgresql.JobRepository).
type JobRepository interface {
	Create(ctx context.Context, logFileID uuid.UUID, requestedRuleID *int) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	List(ctx context.Context) ([]entity.Job, error)
}

type LogFileReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.LogFile, error)
}

// Enqueue-only port of the queue, so the service does not see claim/ack.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
}

type JobService struct {
	repo     JobRepository
	logFiles LogFileReader
	queue    JobQueue
}

func NewJobService(repo JobRepository, logFiles LogFileReader, queue JobQueue) *JobService {
	return &JobService{repo: repo, logFiles: logFiles, queue: queue}
}

type CreateJobRequest struct {
	LogFileID       uuid.UUID
	RequestedRuleID *int
}

// CreateJob records a pending job and enqueues it for the worker. The sample
// must already be uploaded; a dangling reference is rejected up front.
func (s *JobService) CreateJob(ctx context.Context, req CreateJobRequest) (uuid.UUID, error) {
	if req.LogFileID == uuid.Nil {
		return uuid.Nil, errors.New("log_file_id is required")
	}
	if req.RequestedRuleID != nil {
		id := *req.RequestedRuleID
		if id < entity.CustomIDStart || id >= entity.CustomIDEnd {
			return uuid.Nil, fmt.Errorf("requested rule id %d outside custom range [%d, %d)",
				id, entity.CustomIDStart, entity.CustomIDEnd)
		}
	}
	if _, err := s.logFiles.GetByID(ctx, req.LogFileID); err != nil {
		return uuid.Nil, err
	}

	id, err := s.repo.Create(ctx, req.LogFileID, req.RequestedRuleID)
	if err != nil {
		return uuid.Nil, err
	}

	if err := s.queue.Enqueue(ctx, id.String()); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *JobService) ListJobs(ctx context.Context) ([]entity.Job, error) {
	return s.repo.List(ctx)
}
