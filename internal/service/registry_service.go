package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"rulegen-service/internal/cache"
	"rulegen-service/internal/corpus"
	"rulegen-service/internal/entity"
	"rulegen-service/internal/repository/postgresql"
)

// MaxRuleID bounds the heatmap's identifier space: [0, MaxRuleID).
const MaxRuleID = entity.CustomIDEnd

const (
	minBucketWidth = 100
	maxBucketWidth = 10000

	overwrittenSampleLimit = 10

	statsTTL   = 60 * time.Second
	countTTL   = 30 * time.Second
	heatmapTTL = 300 * time.Second
)

// CorpusReader is the read side of the corpus store.
type CorpusReader interface {
	CountBySource(ctx context.Context) (postgresql.SourceCounts, error)
	ListDuplicateRuleIDs(ctx context.Context) ([]postgresql.DuplicateID, error)
	ListOverwritten(ctx context.Context, limit int) ([]entity.CorpusRule, error)
	ListRuleIDs(ctx context.Context) ([]int, error)
	ListCustomRangeRuleIDs(ctx context.Context) ([]int, error)
	Count(ctx context.Context, f postgresql.CorpusFilter) (int, error)
	List(ctx context.Context, f postgresql.CorpusFilter, offset, limit int) ([]entity.CorpusRule, error)
	GetByRuleID(ctx context.Context, ruleID int) (*entity.CorpusRule, error)
}

// RegistryService answers read-only analytical queries over the last
// committed corpus snapshot.
type RegistryService struct {
	repo  CorpusReader
	cache cache.Cache
}

func NewRegistryService(repo CorpusReader, c cache.Cache) *RegistryService {
	return &RegistryService{repo: repo, cache: c}
}

func (s *RegistryService) Statistics(ctx context.Context) (corpus.Stats, error) {
	var stats corpus.Stats
	if ok := s.cachedGet(ctx, cache.KeyCorpusStats, &stats); ok {
		return stats, nil
	}
	counts, err := s.repo.CountBySource(ctx)
	if err != nil {
		return corpus.Stats{}, err
	}
	stats = corpus.Stats{
		Total:       counts.Total,
		Custom:      counts.Custom,
		Default:     counts.Default,
		Overwritten: counts.Overwritten,
	}
	s.cachedSet(ctx, cache.KeyCorpusStats, stats, statsTTL)
	return stats, nil
}

type Conflicts struct {
	DuplicateIDs     []int               `json:"duplicate_ids"`
	OverwrittenCount int                 `json:"overwritten_count"`
	OverwrittenRules []entity.CorpusRule `json:"overwritten_rules"`
}

// ConflictReport surfaces identifiers held by more than one record, plus a
// bounded sample of overwritten rules.
func (s *RegistryService) ConflictReport(ctx context.Context) (*Conflicts, error) {
	dups, err := s.repo.ListDuplicateRuleIDs(ctx)
	if err != nil {
		return nil, err
	}
	overwritten, err := s.repo.ListOverwritten(ctx, overwrittenSampleLimit)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountBySource(ctx)
	if err != nil {
		return nil, err
	}

	report := &Conflicts{
		DuplicateIDs:     make([]int, 0, len(dups)),
		OverwrittenCount: counts.Overwritten,
		OverwrittenRules: overwritten,
	}
	for _, d := range dups {
		report.DuplicateIDs = append(report.DuplicateIDs, d.RuleID)
	}
	return report, nil
}

type HeatmapBucket struct {
	Start         int     `json:"start"`
	End           int     `json:"end"` // inclusive
	Count         int     `json:"count"`
	Density       float64 `json:"density"`
	IsCustomRange bool    `json:"is_custom_range"`
}

type Heatmap struct {
	Buckets     []HeatmapBucket `json:"buckets"`
	BucketWidth int             `json:"bucket_width"`
	TotalRules  int             `json:"total_rules"`
}

// IDHeatmap partitions [0, MaxRuleID) into equal buckets and reports count
// and density per bucket. Width is clamped to [100, 10000].
func (s *RegistryService) IDHeatmap(ctx context.Context, bucketWidth int) (*Heatmap, error) {
	if bucketWidth < minBucketWidth {
		bucketWidth = minBucketWidth
	}
	if bucketWidth > maxBucketWidth {
		bucketWidth = maxBucketWidth
	}

	key := fmt.Sprintf("%s:%d", cache.KeyCorpusHeatmap, bucketWidth)
	var cached Heatmap
	if ok := s.cachedGet(ctx, key, &cached); ok {
		return &cached, nil
	}

	ids, err := s.repo.ListRuleIDs(ctx)
	if err != nil {
		return nil, err
	}

	hm := &Heatmap{BucketWidth: bucketWidth}
	for start := 0; start < MaxRuleID; start += bucketWidth {
		end := start + bucketWidth
		if end > MaxRuleID {
			end = MaxRuleID
		}
		hm.Buckets = append(hm.Buckets, HeatmapBucket{
			Start:         start,
			End:           end - 1,
			IsCustomRange: start >= entity.CustomIDStart,
		})
	}
	for _, id := range ids {
		if id < 0 || id >= MaxRuleID {
			continue
		}
		b := &hm.Buckets[id/bucketWidth]
		b.Count++
	}
	for i := range hm.Buckets {
		hm.Buckets[i].Density = float64(hm.Buckets[i].Count) / float64(bucketWidth)
	}
	hm.TotalRules = len(ids)

	s.cachedSet(ctx, key, hm, heatmapTTL)
	return hm, nil
}

type IDSuggestion struct {
	SuggestedIDs   []int `json:"suggested_ids"`
	AvailableCount int   `json:"available_count"`
	RangeStart     int   `json:"range_start"`
	RangeEnd       int   `json:"range_end"` // inclusive
}

// SuggestIDs returns the first count identifiers in the reserved custom
// range not present among existing custom-range records.
func (s *RegistryService) SuggestIDs(ctx context.Context, count int) (*IDSuggestion, error) {
	if count < 1 {
		count = 1
	}
	existing, err := s.repo.ListCustomRangeRuleIDs(ctx)
	if err != nil {
		return nil, err
	}
	taken := make(map[int]struct{}, len(existing))
	for _, id := range existing {
		taken[id] = struct{}{}
	}

	suggestion := &IDSuggestion{
		AvailableCount: (entity.CustomIDEnd - entity.CustomIDStart) - len(taken),
		RangeStart:     entity.CustomIDStart,
		RangeEnd:       entity.CustomIDEnd - 1,
	}
	for candidate := entity.CustomIDStart; candidate < entity.CustomIDEnd; candidate++ {
		if _, used := taken[candidate]; used {
			continue
		}
		suggestion.SuggestedIDs = append(suggestion.SuggestedIDs, candidate)
		if len(suggestion.SuggestedIDs) >= count {
			break
		}
	}
	return suggestion, nil
}

type CorpusPage struct {
	Items      []entity.CorpusRule `json:"items"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
	TotalPages int                 `json:"total_pages"`
}

// ListRules pages through the snapshot with optional filters. The filtered
// total is cached briefly since counting dominates the query cost.
func (s *RegistryService) ListRules(ctx context.Context, f postgresql.CorpusFilter, page, limit int) (*CorpusPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	levelKey := ""
	if f.Level != nil {
		levelKey = strconv.Itoa(*f.Level)
	}
	countKey := fmt.Sprintf("%s:%s:%s:%s", cache.KeyCorpusCount, f.Source, levelKey, f.Search)
	var total int
	if ok := s.cachedGet(ctx, countKey, &total); !ok {
		var err error
		total, err = s.repo.Count(ctx, f)
		if err != nil {
			return nil, err
		}
		s.cachedSet(ctx, countKey, total, countTTL)
	}

	items, err := s.repo.List(ctx, f, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return &CorpusPage{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}

func (s *RegistryService) GetRule(ctx context.Context, ruleID int) (*entity.CorpusRule, error) {
	return s.repo.GetByRuleID(ctx, ruleID)
}

// Cache faults are logged and treated as misses; the registry still answers
// from the store.
func (s *RegistryService) cachedGet(ctx context.Context, key string, out any) bool {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		log.Printf("[registry] cache get key=%s error=%v", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		log.Printf("[registry] cache decode key=%s error=%v", key, err)
		return false
	}
	return true
}

func (s *RegistryService) cachedSet(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), ttl); err != nil {
		log.Printf("[registry] cache set key=%s error=%v", key, err)
	}
}
