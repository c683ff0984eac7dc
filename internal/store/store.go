package store

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"quizrelay/internal/metrics"
	"quizrelay/pkg/types"
)

const testIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Store holds every known test and its answers, keyed both by test id and by
// owner id. One test per owner: a re-submission replaces the questions in
// place under the same test id instead of accumulating duplicates. Nothing
// here survives a restart.
type Store struct {
	mu        sync.RWMutex
	tests     map[string]*types.Test
	ownerTest map[string]string
	answers   map[string]map[string]types.AnswerRecord

	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewStore creates an empty test store.
func NewStore(log *zap.Logger, m *metrics.Metrics) *Store {
	return &Store{
		tests:     make(map[string]*types.Test),
		ownerTest: make(map[string]string),
		answers:   make(map[string]map[string]types.AnswerRecord),
		log:       log,
		metrics:   m,
	}
}

// newTestID keeps the original relay's test_<millis>_<rand> shape so admin
// panels built against it keep working.
func newTestID() string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = testIDAlphabet[rand.Intn(len(testIDAlphabet))]
	}
	return fmt.Sprintf("test_%d_%s", time.Now().UnixMilli(), suffix)
}

// SaveTest creates the owner's test or replaces its questions wholesale.
// The test id is generated once and survives replacement; answers are reset
// because they belong to the replaced question set.
func (s *Store) SaveTest(ownerID, url, title string, questions []types.Question) types.TestSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	testID, exists := s.ownerTest[ownerID]
	if !exists {
		testID = newTestID()
		s.ownerTest[ownerID] = testID
	}

	test := &types.Test{
		TestID:    testID,
		OwnerID:   ownerID,
		URL:       url,
		Title:     title,
		Questions: questions,
		CreatedAt: time.Now(),
	}
	if existing, ok := s.tests[testID]; ok {
		test.CreatedAt = existing.CreatedAt
	}

	s.tests[testID] = test
	s.answers[testID] = make(map[string]types.AnswerRecord)
	s.metrics.TestsStored.Set(float64(len(s.tests)))

	s.log.Info("test saved",
		zap.String("testId", testID),
		zap.String("ownerId", ownerID),
		zap.Int("questions", len(questions)),
		zap.Bool("replaced", exists))

	return s.snapshotLocked(test)
}

// SubmitAnswer records the latest answer for one question. Last write wins.
// A miss on the test id is a no-op reported through ok.
func (s *Store) SubmitAnswer(testID, questionID, value, adminID string) (ownerID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	test, exists := s.tests[testID]
	if !exists {
		return "", false
	}

	s.answers[testID][questionID] = types.AnswerRecord{
		Value:       value,
		SubmittedBy: adminID,
		SubmittedAt: time.Now(),
	}

	return test.OwnerID, true
}

// AnswersByOwner returns the owner's test id and current answer set.
func (s *Store) AnswersByOwner(ownerID string) (string, map[string]types.AnswerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	testID, exists := s.ownerTest[ownerID]
	if !exists {
		return "", nil, false
	}

	return testID, copyAnswers(s.answers[testID]), true
}

// TestByOwner returns the owner's test with answers, if any.
func (s *Store) TestByOwner(ownerID string) (types.TestSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	testID, exists := s.ownerTest[ownerID]
	if !exists {
		return types.TestSnapshot{}, false
	}
	return s.snapshotLocked(s.tests[testID]), true
}

// Snapshots returns every stored test with its answers.
func (s *Store) Snapshots() []types.TestSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshots := make([]types.TestSnapshot, 0, len(s.tests))
	for _, test := range s.tests {
		snapshots = append(snapshots, s.snapshotLocked(test))
	}
	return snapshots
}

// SweepExpired deletes every test older than maxAge together with its
// answers and owner mapping, returning the number removed.
func (s *Store) SweepExpired(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for testID, test := range s.tests {
		if test.CreatedAt.After(cutoff) {
			continue
		}

		delete(s.tests, testID)
		delete(s.answers, testID)
		if s.ownerTest[test.OwnerID] == testID {
			delete(s.ownerTest, test.OwnerID)
		}
		removed++

		s.log.Info("expired test removed",
			zap.String("testId", testID),
			zap.String("ownerId", test.OwnerID))
	}

	if removed > 0 {
		s.metrics.TestsExpired.Add(float64(removed))
		s.metrics.TestsStored.Set(float64(len(s.tests)))
	}

	return removed
}

// Count returns the number of stored tests.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tests)
}

func (s *Store) snapshotLocked(test *types.Test) types.TestSnapshot {
	return types.TestSnapshot{
		Test:    *test,
		Answers: copyAnswers(s.answers[test.TestID]),
	}
}

func copyAnswers(answers map[string]types.AnswerRecord) map[string]types.AnswerRecord {
	out := make(map[string]types.AnswerRecord, len(answers))
	for questionID, record := range answers {
		out[questionID] = record
	}
	return out
}
