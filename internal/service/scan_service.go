package service

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"rulegen-service/internal/cache"
	"rulegen-service/internal/corpus"
	"rulegen-service/internal/entity"
)

// ErrScanInProgress is returned when a rescan is requested while another one
// is still replacing the snapshot.
var ErrScanInProgress = errors.New("corpus scan already in progress")

type CorpusWriter interface {
	ReplaceAll(ctx context.Context, rules []entity.CorpusRule) error
}

type RuleScanner interface {
	Scan(rulesetDir, customDir string) ([]entity.CorpusRule, corpus.Stats)
}

// ScanService triggers a corpus rescan: parse both directories, replace the
// whole record set, invalidate derived caches. At most one scan runs at a
// time; the flag below is the single-writer guard.
type ScanService struct {
	scanner    RuleScanner
	repo       CorpusWriter
	cache      cache.Cache
	rulesetDir string
	customDir  string

	scanning atomic.Bool
}

func NewScanService(scanner RuleScanner, repo CorpusWriter, c cache.Cache, rulesetDir, customDir string) *ScanService {
	return &ScanService{
		scanner:    scanner,
		repo:       repo,
		cache:      c,
		rulesetDir: rulesetDir,
		customDir:  customDir,
	}
}

func (s *ScanService) Rescan(ctx context.Context) (corpus.Stats, error) {
	if !s.scanning.CompareAndSwap(false, true) {
		return corpus.Stats{}, ErrScanInProgress
	}
	defer s.scanning.Store(false)

	rules, stats := s.scanner.Scan(s.rulesetDir, s.customDir)
	if err := s.repo.ReplaceAll(ctx, rules); err != nil {
		return corpus.Stats{}, err
	}

	if err := s.cache.Delete(ctx, cache.KeyCorpusStats, cache.KeyCorpusConflicts); err != nil {
		log.Printf("[scan] cache invalidation error=%v", err)
	}
	for _, prefix := range []string{cache.KeyCorpusCount, cache.KeyCorpusHeatmap} {
		if err := s.cache.DeletePrefix(ctx, prefix); err != nil {
			log.Printf("[scan] cache invalidation prefix=%s error=%v", prefix, err)
		}
	}

	log.Printf("[scan] snapshot replaced rules=%d", stats.Total)
	return stats, nil
}
