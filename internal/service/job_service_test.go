package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"rulegen-service/internal/entity"
	"rulegen-service/internal/repository/postgresql"
	"rulegen-service/internal/service"
)

type fakeJobRepo struct {
	createCalled int
	lastLogFile  uuid.UUID
	lastRuleID   *int

	createID  uuid.UUID
	createErr error
}

func (r *fakeJobRepo) Create(ctx context.Context, logFileID uuid.UUID, requestedRuleID *int) (uuid.UUID, error) {
	r.createCalled++
	r.lastLogFile = logFileID
	r.lastRuleID = requestedRuleID
	if r.createErr != nil {
		return uuid.Nil, r.createErr
	}
	return r.createID, nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	return nil, postgresql.ErrNotFound
}
func (r *fakeJobRepo) List(ctx context.Context) ([]entity.Job, error) { return nil, nil }

type fakeLogFiles struct {
	known map[uuid.UUID]bool
}

func (f *fakeLogFiles) GetByID(ctx context.Context, id uuid.UUID) (*entity.LogFile, error) {
	if !f.known[id] {
		return nil, postgresql.ErrNotFound
	}
	return &entity.LogFile{ID: id, Filename: "sample.log", UploadedAt: time.Now()}, nil
}

type fakeEnqueuer struct {
	enqueuedIDs []string
	enqueueErr  error
}

func (q *fakeEnqueuer) Enqueue(ctx context.Context, jobID string) error {
	q.enqueuedIDs = append(q.enqueuedIDs, jobID)
	return q.enqueueErr
}

func TestJobService_CreateJob_Enqueues(t *testing.T) {
	ctx := context.Background()
	jobID := uuid.MustParse("66666666-6666-6666-6666-666666666666")
	logFileID := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	repo := &fakeJobRepo{createID: jobID}
	queue := &fakeEnqueuer{}
	logs := &fakeLogFiles{known: map[uuid.UUID]bool{logFileID: true}}
	svc := service.NewJobService(repo, logs, queue)

	got, err := svc.CreateJob(ctx, service.CreateJobRequest{LogFileID: logFileID})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got != jobID {
		t.Fatalf("expected job id %s, got %s", jobID, got)
	}
	if repo.createCalled != 1 || repo.lastLogFile != logFileID {
		t.Fatalf("repo create call mismatch: calls=%d logfile=%s", repo.createCalled, repo.lastLogFile)
	}
	if len(queue.enqueuedIDs) != 1 || queue.enqueuedIDs[0] != jobID.String() {
		t.Fatalf("expected one enqueued id %s, got %#v", jobID, queue.enqueuedIDs)
	}
}

func TestJobService_CreateJob_UnknownLogFile(t *testing.T) {
	ctx := context.Background()
	repo := &fakeJobRepo{createID: uuid.New()}
	queue := &fakeEnqueuer{}
	logs := &fakeLogFiles{known: map[uuid.UUID]bool{}}
	svc := service.NewJobService(repo, logs, queue)

	_, err := svc.CreateJob(ctx, service.CreateJobRequest{LogFileID: uuid.New()})
	if err == nil {
		t.Fatal("expected error for unknown log file")
	}
	if repo.createCalled != 0 {
		t.Fatalf("expected no repo create, got %d calls", repo.createCalled)
	}
	if len(queue.enqueuedIDs) != 0 {
		t.Fatalf("expected nothing enqueued, got %#v", queue.enqueuedIDs)
	}
}

func TestJobService_CreateJob_RequestedRuleIDRange(t *testing.T) {
	ctx := context.Background()
	logFileID := uuid.New()
	logs := &fakeLogFiles{known: map[uuid.UUID]bool{logFileID: true}}

	cases := []struct {
		name   string
		ruleID int
		wantOK bool
	}{
		{"below range", 99999, false},
		{"range start", 100000, true},
		{"inside range", 110500, true},
		{"range end", 120000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeJobRepo{createID: uuid.New()}
			svc := service.NewJobService(repo, logs, &fakeEnqueuer{})

			ruleID := tc.ruleID
			_, err := svc.CreateJob(ctx, service.CreateJobRequest{
				LogFileID:       logFileID,
				RequestedRuleID: &ruleID,
			})
			if tc.wantOK && err != nil {
				t.Fatalf("expected nil error for rule id %d, got %v", tc.ruleID, err)
			}
			if !tc.wantOK && err == nil {
				t.Fatalf("expected error for rule id %d", tc.ruleID)
			}
			if !tc.wantOK && repo.createCalled != 0 {
				t.Fatalf("expected no repo create for rejected rule id %d", tc.ruleID)
			}
		})
	}
}

func TestJobService_CreateJob_NilLogFileID(t *testing.T) {
	svc := service.NewJobService(&fakeJobRepo{}, &fakeLogFiles{}, &fakeEnqueuer{})
	if _, err := svc.CreateJob(context.Background(), service.CreateJobRequest{}); err == nil {
		t.Fatal("expected error for nil log file id")
	}
}
