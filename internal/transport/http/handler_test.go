package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"rulegen-service/internal/corpus"
	"rulegen-service/internal/entity"
	"rulegen-service/internal/repository/postgresql"
	"rulegen-service/internal/service"
	httptransport "rulegen-service/internal/transport/http"
)

// ---- fakes ----

type jobStore struct {
	createID uuid.UUID
	jobs     map[uuid.UUID]*entity.Job
}

func (r *jobStore) Create(ctx context.Context, logFileID uuid.UUID, requestedRuleID *int) (uuid.UUID, error) {
	j := &entity.Job{
		ID:              r.createID,
		LogFileID:       logFileID,
		Status:          entity.StatusPending,
		RequestedRuleID: requestedRuleID,
		CreatedAt:       time.Now().UTC(),
	}
	if r.jobs == nil {
		r.jobs = map[uuid.UUID]*entity.Job{}
	}
	r.jobs[r.createID] = j
	return r.createID, nil
}

func (r *jobStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	j, ok := r.jobs[id]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	return j, nil
}

func (r *jobStore) List(ctx context.Context) ([]entity.Job, error) {
	var out []entity.Job
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (r *jobStore) ListIDsByLogFile(ctx context.Context, logFileID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}
func (r *jobStore) Delete(ctx context.Context, id uuid.UUID) error { return nil }

type logFileStore struct {
	files map[uuid.UUID]*entity.LogFile
}

func (r *logFileStore) Create(ctx context.Context, f *entity.LogFile) (uuid.UUID, error) {
	id := uuid.New()
	f.ID = id
	r.files[id] = f
	return id, nil
}

func (r *logFileStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.LogFile, error) {
	f, ok := r.files[id]
	if !ok {
		return nil, postgresql.ErrNotFound
	}
	return f, nil
}

func (r *logFileStore) List(ctx context.Context) ([]entity.LogFile, error) { return nil, nil }
func (r *logFileStore) Delete(ctx context.Context, id uuid.UUID) error     { return nil }

type ruleStore struct{}

func (r *ruleStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.Rule, error) {
	return nil, postgresql.ErrNotFound
}
func (r *ruleStore) GetByJobID(ctx context.Context, jobID uuid.UUID) (*entity.Rule, error) {
	return nil, postgresql.ErrNotFound
}
func (r *ruleStore) List(ctx context.Context) ([]entity.Rule, error) { return nil, nil }
func (r *ruleStore) UpdateXML(ctx context.Context, id uuid.UUID, ruleXML string, updatedAt time.Time) error {
	return nil
}
func (r *ruleStore) Delete(ctx context.Context, id uuid.UUID) error           { return nil }
func (r *ruleStore) DeleteByJobID(ctx context.Context, jobID uuid.UUID) error { return nil }

type queueStub struct {
	enqueuedIDs []string
}

func (q *queueStub) Enqueue(ctx context.Context, jobID string) error {
	q.enqueuedIDs = append(q.enqueuedIDs, jobID)
	return nil
}

type corpusStore struct {
	rules []entity.CorpusRule
}

func (s *corpusStore) ReplaceAll(ctx context.Context, rules []entity.CorpusRule) error {
	s.rules = rules
	return nil
}

func (s *corpusStore) CountBySource(ctx context.Context) (postgresql.SourceCounts, error) {
	var c postgresql.SourceCounts
	for _, r := range s.rules {
		c.Total++
		if r.Source == entity.SourceCustom {
			c.Custom++
		} else {
			c.Default++
		}
		if r.IsOverwritten {
			c.Overwritten++
		}
	}
	return c, nil
}

func (s *corpusStore) ListDuplicateRuleIDs(ctx context.Context) ([]postgresql.DuplicateID, error) {
	return nil, nil
}

func (s *corpusStore) ListOverwritten(ctx context.Context, limit int) ([]entity.CorpusRule, error) {
	return nil, nil
}

func (s *corpusStore) ListRuleIDs(ctx context.Context) ([]int, error) {
	ids := make([]int, 0, len(s.rules))
	for _, r := range s.rules {
		ids = append(ids, r.RuleID)
	}
	return ids, nil
}

func (s *corpusStore) ListCustomRangeRuleIDs(ctx context.Context) ([]int, error) {
	var ids []int
	for _, r := range s.rules {
		if r.RuleID >= entity.CustomIDStart && r.RuleID < entity.CustomIDEnd {
			ids = append(ids, r.RuleID)
		}
	}
	return ids, nil
}

func (s *corpusStore) Count(ctx context.Context, f postgresql.CorpusFilter) (int, error) {
	return len(s.rules), nil
}

func (s *corpusStore) List(ctx context.Context, f postgresql.CorpusFilter, offset, limit int) ([]entity.CorpusRule, error) {
	return s.rules, nil
}

func (s *corpusStore) GetByRuleID(ctx context.Context, ruleID int) (*entity.CorpusRule, error) {
	for i := range s.rules {
		if s.rules[i].RuleID == ruleID {
			return &s.rules[i], nil
		}
	}
	return nil, postgresql.ErrNotFound
}

type memCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemCache() *memCache { return &memCache{data: map[string]string{}} }

func (c *memCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func (c *memCache) DeletePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	return nil
}

// scannerStub blocks inside Scan until released, to exercise the
// one-scan-at-a-time guard.
type scannerStub struct {
	started chan struct{}
	release chan struct{}
}

func (s *scannerStub) Scan(rulesetDir, customDir string) ([]entity.CorpusRule, corpus.Stats) {
	if s.started != nil {
		close(s.started)
		<-s.release
	}
	return nil, corpus.Stats{}
}

// ---- helpers ----

type testEnv struct {
	jobs    *jobStore
	logs    *logFileStore
	queue   *queueStub
	corpus  *corpusStore
	scanner *scannerStub
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithUploadLimit(t, 10)
}

func newTestEnvWithUploadLimit(t *testing.T, maxUploadMB int) *testEnv {
	t.Helper()

	env := &testEnv{
		jobs:    &jobStore{createID: uuid.New(), jobs: map[uuid.UUID]*entity.Job{}},
		logs:    &logFileStore{files: map[uuid.UUID]*entity.LogFile{}},
		queue:   &queueStub{},
		corpus:  &corpusStore{},
		scanner: &scannerStub{},
	}
	c := newMemCache()

	jobSvc := service.NewJobService(env.jobs, env.logs, env.queue)
	uploadSvc := service.NewUploadService(env.logs, env.jobs, &ruleStore{}, t.TempDir(), maxUploadMB)
	ruleSvc := service.NewRuleService(&ruleStore{})
	registrySvc := service.NewRegistryService(env.corpus, c)
	scanSvc := service.NewScanService(env.scanner, env.corpus, c, t.TempDir(), t.TempDir())

	h := httptransport.NewHandler(jobSvc, uploadSvc, ruleSvc, registrySvc, scanSvc)
	env.router = httptransport.Routes(h)
	return env
}

func (e *testEnv) addLogFile() uuid.UUID {
	id := uuid.New()
	e.logs.files[id] = &entity.LogFile{ID: id, Filename: "x.log", UploadedAt: time.Now()}
	return id
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Buffer
	if body == "" {
		rd = bytes.NewBufferString("")
	} else {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// ---- tests ----

func TestHTTP_CreateJob_201_AndEnqueued(t *testing.T) {
	env := newTestEnv(t)
	logFileID := env.addLogFile()

	rr := doJSON(t, env.router, http.MethodPost, "/api/jobs/generate",
		`{"log_file_id":"`+logFileID.String()+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json response: %v, body=%s", err, rr.Body.String())
	}
	if resp.ID != env.jobs.createID.String() {
		t.Fatalf("expected id=%s, got %s", env.jobs.createID, resp.ID)
	}
	if len(env.queue.enqueuedIDs) != 1 || env.queue.enqueuedIDs[0] != resp.ID {
		t.Fatalf("expected enqueue id=%s, got %#v", resp.ID, env.queue.enqueuedIDs)
	}
}

func TestHTTP_CreateJob_400_RuleIDOutsideRange(t *testing.T) {
	env := newTestEnv(t)
	logFileID := env.addLogFile()

	for _, ruleID := range []string{"99999", "120000"} {
		rr := doJSON(t, env.router, http.MethodPost, "/api/jobs/generate",
			`{"log_file_id":"`+logFileID.String()+`","requested_rule_id":`+ruleID+`}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("rule id %s: expected 400, got %d, body=%s", ruleID, rr.Code, rr.Body.String())
		}
	}
	if len(env.queue.enqueuedIDs) != 0 {
		t.Fatalf("expected nothing enqueued, got %#v", env.queue.enqueuedIDs)
	}
}

func TestHTTP_CreateJob_404_UnknownLogFile(t *testing.T) {
	env := newTestEnv(t)

	rr := doJSON(t, env.router, http.MethodPost, "/api/jobs/generate",
		`{"log_file_id":"`+uuid.NewString()+`"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d, body=%s", rr.Code, rr.Body.String())
	}
}

func TestHTTP_GetJob(t *testing.T) {
	env := newTestEnv(t)
	logFileID := env.addLogFile()

	rr := doJSON(t, env.router, http.MethodPost, "/api/jobs/generate",
		`{"log_file_id":"`+logFileID.String()+`"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", rr.Code)
	}

	rr2 := doJSON(t, env.router, http.MethodGet, "/api/jobs/"+env.jobs.createID.String(), "")
	if rr2.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr2.Code, rr2.Body.String())
	}

	var got map[string]any
	if err := json.Unmarshal(rr2.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if got["status"] != string(entity.StatusPending) {
		t.Fatalf("expected status=pending, got %v", got["status"])
	}
	if got["log_file_id"] != logFileID.String() {
		t.Fatalf("expected log_file_id=%s, got %v", logFileID, got["log_file_id"])
	}

	rr3 := doJSON(t, env.router, http.MethodGet, "/api/jobs/"+uuid.NewString(), "")
	if rr3.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", rr3.Code)
	}
}

func TestHTTP_SuggestCorpusIDs(t *testing.T) {
	env := newTestEnv(t)
	env.corpus.rules = []entity.CorpusRule{
		{RuleID: 100000, Source: entity.SourceCustom},
		{RuleID: 100001, Source: entity.SourceCustom},
	}

	rr := doJSON(t, env.router, http.MethodGet, "/api/corpus/id-suggestion?count=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var got struct {
		SuggestedIDs []int `json:"suggested_ids"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	want := []int{100002, 100003}
	if len(got.SuggestedIDs) != 2 || got.SuggestedIDs[0] != want[0] || got.SuggestedIDs[1] != want[1] {
		t.Fatalf("expected suggestions %v, got %v", want, got.SuggestedIDs)
	}
}

func TestHTTP_CorpusHeatmap_BucketSumMatchesTotal(t *testing.T) {
	env := newTestEnv(t)
	env.corpus.rules = []entity.CorpusRule{
		{RuleID: 5500}, {RuleID: 5710}, {RuleID: 100001}, {RuleID: 119999},
	}

	rr := doJSON(t, env.router, http.MethodGet, "/api/corpus/heatmap?range_size=1000", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}

	var hm service.Heatmap
	if err := json.Unmarshal(rr.Body.Bytes(), &hm); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if hm.BucketWidth != 1000 {
		t.Fatalf("expected bucket width 1000, got %d", hm.BucketWidth)
	}
	sum := 0
	for _, b := range hm.Buckets {
		sum += b.Count
	}
	if sum != 4 || hm.TotalRules != 4 {
		t.Fatalf("expected 4 rules across buckets, got sum=%d total=%d", sum, hm.TotalRules)
	}
}

func TestHTTP_ScanCorpus_409_WhenAlreadyRunning(t *testing.T) {
	env := newTestEnv(t)
	env.scanner.started = make(chan struct{})
	env.scanner.release = make(chan struct{})

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- doJSON(t, env.router, http.MethodPost, "/api/corpus/scan", "")
	}()
	<-env.scanner.started

	rr := doJSON(t, env.router, http.MethodPost, "/api/corpus/scan", "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 while scan in progress, got %d, body=%s", rr.Code, rr.Body.String())
	}

	close(env.scanner.release)
	first := <-done
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200 for first scan, got %d, body=%s", first.Code, first.Body.String())
	}
}

func uploadRequest(t *testing.T, router http.Handler, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHTTP_UploadLogFile(t *testing.T) {
	env := newTestEnvWithUploadLimit(t, 1)

	rr := uploadRequest(t, env.router, "auth.log", []byte("Jan 1 sshd: failed password\n"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if len(env.logs.files) != 1 {
		t.Fatalf("expected one stored file, got %d", len(env.logs.files))
	}
}

func TestHTTP_UploadLogFile_OversizedBodyRejectedEarly(t *testing.T) {
	env := newTestEnvWithUploadLimit(t, 1)

	rr := uploadRequest(t, env.router, "huge.log", bytes.Repeat([]byte("a"), 1<<20+64<<10))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d, body=%s", rr.Code, rr.Body.String())
	}
	if len(env.logs.files) != 0 {
		t.Fatalf("expected nothing stored, got %d files", len(env.logs.files))
	}
}

func TestHTTP_GetCorpusRule(t *testing.T) {
	env := newTestEnv(t)
	env.corpus.rules = []entity.CorpusRule{
		{RuleID: 100500, Source: entity.SourceCustom, RuleXML: `<rule id="100500" level="5"/>`},
	}

	rr := doJSON(t, env.router, http.MethodGet, "/api/corpus/100500", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d, body=%s", rr.Code, rr.Body.String())
	}

	rr2 := doJSON(t, env.router, http.MethodGet, "/api/corpus/100501", "")
	if rr2.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr2.Code)
	}
}
