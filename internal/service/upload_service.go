package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"rulegen-service/internal/entity"
)

var allowedExtensions = map[string]bool{
	".log":  true,
	".txt":  true,
	".json": true,
	".csv":  true,
}

type LogFileRepository interface {
	Create(ctx context.Context, f *entity.LogFile) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.LogFile, error)
	List(ctx context.Context) ([]entity.LogFile, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type JobCleaner interface {
	ListIDsByLogFile(ctx context.Context, logFileID uuid.UUID) ([]uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type RuleCleaner interface {
	DeleteByJobID(ctx context.Context, jobID uuid.UUID) error
}

type UploadService struct {
	repo      LogFileRepository
	jobs      JobCleaner
	rules     RuleCleaner
	uploadDir string
	maxSize   int64
}

func NewUploadService(repo LogFileRepository, jobs JobCleaner, rules RuleCleaner, uploadDir string, maxSizeMB int) *UploadService {
	return &UploadService{
		repo:      repo,
		jobs:      jobs,
		rules:     rules,
		uploadDir: uploadDir,
		maxSize:   int64(maxSizeMB) * 1024 * 1024,
	}
}

// MaxSize is the upload size bound in bytes.
func (s *UploadService) MaxSize() int64 {
	return s.maxSize
}

// Save validates the upload, writes it under a random filename and records
// the row. The stored name never derives from user input, so path traversal
// through filenames is not possible.
func (s *UploadService) Save(ctx context.Context, originalFilename string, content []byte) (*entity.LogFile, error) {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("file extension %q is not allowed", ext)
	}
	if int64(len(content)) > s.maxSize {
		return nil, fmt.Errorf("file size exceeds maximum of %d bytes", s.maxSize)
	}
	if len(content) == 0 {
		return nil, errors.New("file is empty")
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	storedName := uuid.NewString() + ext
	path := filepath.Join(s.uploadDir, storedName)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}

	f := &entity.LogFile{
		Filename:         storedName,
		OriginalFilename: originalFilename,
		FilePath:         path,
		FileSize:         int64(len(content)),
	}
	id, err := s.repo.Create(ctx, f)
	if err != nil {
		// Best effort: don't leave an orphan on disk if the row failed.
		if rmErr := os.Remove(path); rmErr != nil {
			log.Printf("[upload] orphan cleanup failed path=%s error=%v", path, rmErr)
		}
		return nil, err
	}

	stored, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	log.Printf("[upload] stored id=%s name=%s size=%d", id, storedName, len(content))
	return stored, nil
}

func (s *UploadService) Get(ctx context.Context, id uuid.UUID) (*entity.LogFile, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UploadService) List(ctx context.Context) ([]entity.LogFile, error) {
	return s.repo.List(ctx)
}

// Delete removes the file row, its jobs and their rules, then the file on
// disk. A missing disk file is logged, not an error.
func (s *UploadService) Delete(ctx context.Context, id uuid.UUID) error {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	jobIDs, err := s.jobs.ListIDsByLogFile(ctx, id)
	if err != nil {
		return err
	}
	for _, jobID := range jobIDs {
		if err := s.rules.DeleteByJobID(ctx, jobID); err != nil {
			return err
		}
		if err := s.jobs.Delete(ctx, jobID); err != nil {
			return err
		}
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if err := os.Remove(f.FilePath); err != nil && !os.IsNotExist(err) {
		log.Printf("[upload] delete file path=%s error=%v", f.FilePath, err)
	}
	return nil
}
