package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/cq-evaluator/internal/logger"
	"github.com/stemsi/cq-evaluator/internal/model"
	"github.com/stretchr/testify/require"
)

// ─── Archiver ───────────────────────────────────────────────────────

type fakeArchiver struct {
	mu      sync.Mutex
	stored  []string
	failFor map[string]bool // keyed by image content
	err     error
}

func (a *fakeArchiver) Store(_ context.Context, data []byte, mimeType, folder string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	if a.failFor[string(data)] {
		return "", errors.New("bucket unavailable")
	}
	url := fmt.Sprintf("https://cdn.test/%s/%d", folder, len(a.stored))
	a.stored = append(a.stored, url)
	return url, nil
}

// ─── Questions ──────────────────────────────────────────────────────

type fakeQuestions struct {
	byID map[uuid.UUID]*model.CreativeQuestion
}

func newFakeQuestions(ids ...uuid.UUID) *fakeQuestions {
	q := &fakeQuestions{byID: make(map[uuid.UUID]*model.CreativeQuestion)}
	for i, id := range ids {
		q.byID[id] = &model.CreativeQuestion{
			ID:   id,
			Stem: fmt.Sprintf("Stem %d about projectile motion", i+1),
		}
	}
	return q
}

func (q *fakeQuestions) GetByID(_ context.Context, id uuid.UUID) (*model.CreativeQuestion, error) {
	if cq, ok := q.byID[id]; ok {
		return cq, nil
	}
	return nil, ErrQuestionNotFound
}

func (q *fakeQuestions) GetByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.CreativeQuestion, error) {
	out := make(map[uuid.UUID]*model.CreativeQuestion)
	for _, id := range ids {
		if cq, ok := q.byID[id]; ok {
			out[id] = cq
		}
	}
	return out, nil
}

// ─── Oracle ─────────────────────────────────────────────────────────

type fakeOracle struct {
	mu       sync.Mutex
	cards    map[uuid.UUID]*model.Scorecard
	errs     map[uuid.UUID]error
	block    map[uuid.UUID]bool
	calls    int
	inFlight int
	maxSeen  int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		cards: make(map[uuid.UUID]*model.Scorecard),
		errs:  make(map[uuid.UUID]error),
		block: make(map[uuid.UUID]bool),
	}
}

func (o *fakeOracle) Grade(ctx context.Context, req model.GradeRequest) (*model.Scorecard, error) {
	o.mu.Lock()
	o.calls++
	o.inFlight++
	if o.inFlight > o.maxSeen {
		o.maxSeen = o.inFlight
	}
	id := req.Question.ID
	card, err, block := o.cards[id], o.errs[id], o.block[id]
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight--
		o.mu.Unlock()
	}()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	// Give concurrent calls a chance to overlap.
	time.Sleep(5 * time.Millisecond)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, errors.New("no canned scorecard")
	}
	cp := *card
	return &cp, nil
}

func (o *fakeOracle) ModelVersion() string { return "fake-oracle-1" }

func scorecard(a, b, c, d float64) *model.Scorecard {
	return &model.Scorecard{
		MarksA:               a,
		MarksB:               b,
		MarksC:               c,
		MarksD:               d,
		FeedbackA:            "A feedback",
		FeedbackB:            "B feedback",
		FeedbackC:            "C feedback",
		FeedbackD:            "D feedback",
		HandWriting:          model.HandWritingGood,
		EvaluationConfidence: 0.9,
		OverallFeedback:      "Solid attempt",
	}
}

// ─── Results ────────────────────────────────────────────────────────

type fakeResults struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*model.ExamResult
	saves      int
	saveErr    error
	statuses   []model.ResultStatus
	staleAfter time.Duration
}

func newFakeResults() *fakeResults {
	return &fakeResults{byID: make(map[uuid.UUID]*model.ExamResult)}
}

func cloneResult(r *model.ExamResult) *model.ExamResult {
	cp := *r
	cp.Answers = append([]model.AnswerEvaluation(nil), r.Answers...)
	return &cp
}

func (f *fakeResults) CreateEvaluating(_ context.Context, r *model.ExamResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, existing := range f.byID {
		if existing.ExamID == r.ExamID && existing.UserID == r.UserID {
			abandoned := f.staleAfter > 0 &&
				existing.Status == model.ResultStatusEvaluating &&
				existing.UpdatedAt.Before(time.Now().Add(-f.staleAfter))
			if existing.Status != model.ResultStatusError && !abandoned {
				return ErrDuplicateSubmission
			}
			r.ID = id
		}
	}
	r.UpdatedAt = time.Now()
	f.byID[r.ID] = cloneResult(r)
	f.statuses = append(f.statuses, r.Status)
	return nil
}

func (f *fakeResults) Save(_ context.Context, r *model.ExamResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		err := f.saveErr
		f.saveErr = nil // fail once
		return err
	}
	f.saves++
	r.UpdatedAt = time.Now()
	f.byID[r.ID] = cloneResult(r)
	f.statuses = append(f.statuses, r.Status)
	return nil
}

// age moves a stored result's last update into the past.
func (f *fakeResults) age(id uuid.UUID, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[id].UpdatedAt = time.Now().Add(-d)
}

func (f *fakeResults) GetByID(_ context.Context, id uuid.UUID) (*model.ExamResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, ErrResultNotFound
	}
	return cloneResult(r), nil
}

func (f *fakeResults) ListByUser(_ context.Context, userID uuid.UUID, _ model.ListResultsQuery) ([]model.ExamResult, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExamResult
	for _, r := range f.byID {
		if r.UserID == userID {
			out = append(out, *cloneResult(r))
		}
	}
	return out, int64(len(out)), nil
}

// ─── Ledger ─────────────────────────────────────────────────────────

type fakeBalance struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
	entries  []model.AuraLedgerEntry
	err      error
}

func newFakeBalance() *fakeBalance {
	return &fakeBalance{balances: make(map[uuid.UUID]int)}
}

func (b *fakeBalance) ApplyAuraChange(_ context.Context, e *model.AuraLedgerEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	for _, existing := range b.entries {
		if existing.SourceType == e.SourceType && existing.SourceID == e.SourceID {
			return ErrLedgerEntryExists
		}
	}
	b.balances[e.UserID] += e.Points
	b.entries = append(b.entries, *e)
	return nil
}

// ─── Recommendation collaborators ───────────────────────────────────

type fakeExtractor struct {
	phrases []string
	err     error
	got     string
}

func (e *fakeExtractor) ExtractTopics(_ context.Context, summary string) ([]string, error) {
	e.got = summary
	return e.phrases, e.err
}

type fakeCatalog struct {
	topics   []model.TopicRef
	err      error
	keywords []string
	limit    int
}

func (c *fakeCatalog) SearchByKeywords(_ context.Context, keywords []string, limit int) ([]model.TopicRef, error) {
	c.keywords = keywords
	c.limit = limit
	return c.topics, c.err
}

type fakeRecommendations struct {
	mu   sync.Mutex
	sets map[uuid.UUID]map[uuid.UUID]struct{}
	err  error
}

func newFakeRecommendations() *fakeRecommendations {
	return &fakeRecommendations{sets: make(map[uuid.UUID]map[uuid.UUID]struct{})}
}

func (r *fakeRecommendations) AddTopics(_ context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.sets[userID] == nil {
		r.sets[userID] = make(map[uuid.UUID]struct{})
	}
	for _, id := range ids {
		r.sets[userID][id] = struct{}{}
	}
	return nil
}

type fakeFeedback struct {
	report string
	err    error
	calls  int
}

func (f *fakeFeedback) WriteExamReport(_ context.Context, _, _ string) (string, error) {
	f.calls++
	return f.report, f.err
}

// ─── Activity, lock, notifier ───────────────────────────────────────

type fakeActivity struct {
	mu      sync.Mutex
	entries []model.UserActivity
}

func (a *fakeActivity) Record(_ context.Context, e *model.UserActivity) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *e)
	return nil
}

type fakeLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (l *fakeLock) Acquire(_ context.Context, examID, userID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := examID.String() + userID.String()
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLock) Release(_ context.Context, examID, userID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, examID.String()+userID.String())
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []model.ResultStatus
}

func (n *fakeNotifier) Publish(_ context.Context, r *model.ExamResult) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, r.Status)
	return nil
}

// ─── Harness ────────────────────────────────────────────────────────

type harness struct {
	svc       *EvaluationService
	archiver  *fakeArchiver
	questions *fakeQuestions
	oracle    *fakeOracle
	results   *fakeResults
	balance   *fakeBalance
	extractor *fakeExtractor
	catalog   *fakeCatalog
	recs      *fakeRecommendations
	feedback  *fakeFeedback
	activity  *fakeActivity
	lock      *fakeLock
	notifier  *fakeNotifier
	logs      *syncBuffer
}

// syncBuffer collects log output from concurrently running workers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newHarness(t *testing.T, questionIDs ...uuid.UUID) *harness {
	t.Helper()
	logs := &syncBuffer{}
	log := logger.New(logs)

	h := &harness{
		logs:      logs,
		archiver:  &fakeArchiver{failFor: make(map[string]bool)},
		questions: newFakeQuestions(questionIDs...),
		oracle:    newFakeOracle(),
		results:   newFakeResults(),
		balance:   newFakeBalance(),
		extractor: &fakeExtractor{phrases: []string{"Projectile Motion", "Newton's Laws of Motion"}},
		catalog:   &fakeCatalog{topics: []model.TopicRef{{ID: uuid.New(), Name: "Projectile Motion"}}},
		recs:      newFakeRecommendations(),
		feedback:  &fakeFeedback{report: "1. Key Issues Identified: units"},
		activity:  &fakeActivity{},
		lock:      newFakeLock(),
		notifier:  &fakeNotifier{},
	}

	worker := NewEvaluationWorker(h.archiver, h.questions, h.oracle, 200*time.Millisecond, log)
	h.svc = NewEvaluationService(EvaluationDeps{
		Results:        h.results,
		Questions:      h.questions,
		Worker:         worker,
		Aura:           NewAuraService(h.balance, log),
		Recommender:    NewRecommendationService(h.extractor, h.catalog, h.recs, 5, log),
		Feedback:       h.feedback,
		Activity:       h.activity,
		Lock:           h.lock,
		Notifier:       h.notifier,
		ModelVersion:   h.oracle.ModelVersion(),
		MaxConcurrency: 4,
	}, log)
	return h
}

// spool writes an answer photo to a temp file the way the HTTP handler does.
func spool(t *testing.T, questionID uuid.UUID, content string) model.SubmittedImage {
	t.Helper()
	path := filepath.Join(t.TempDir(), uuid.NewString()+".jpg")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return model.SubmittedImage{
		QuestionID: questionID,
		Filename:   filepath.Base(path),
		MIMEType:   "image/jpeg",
		Path:       path,
		Size:       int64(len(content)),
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
