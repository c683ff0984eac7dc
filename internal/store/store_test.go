package store

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"quizrelay/internal/metrics"
	"quizrelay/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(zap.NewNop(), metrics.New(prometheus.NewRegistry()))
}

func questions(ids ...string) []types.Question {
	out := make([]types.Question, len(ids))
	for i, id := range ids {
		out[i] = types.Question{
			ID:          id,
			DisplayText: "question " + id,
			Options: []types.Option{
				{ID: "a", Text: "A"},
				{ID: "b", Text: "B"},
			},
		}
	}
	return out
}

func TestStore_SaveTestCreatesOnePerOwner(t *testing.T) {
	s := newTestStore(t)

	first := s.SaveTest("H1", "https://quiz.example/1", "", questions("q1", "q2"))
	second := s.SaveTest("H1", "https://quiz.example/2", "", questions("q3"))

	if s.Count() != 1 {
		t.Fatalf("expected exactly one test for the owner, got %d", s.Count())
	}
	if second.TestID != first.TestID {
		t.Errorf("test id changed on re-submission: %s -> %s", first.TestID, second.TestID)
	}

	snapshot, ok := s.TestByOwner("H1")
	if !ok {
		t.Fatal("owner's test not found")
	}
	if len(snapshot.Questions) != 1 || snapshot.Questions[0].ID != "q3" {
		t.Errorf("expected latest questions, got %+v", snapshot.Questions)
	}
	if snapshot.URL != "https://quiz.example/2" {
		t.Errorf("url not replaced: %s", snapshot.URL)
	}
}

func TestStore_SaveTestResetsAnswers(t *testing.T) {
	s := newTestStore(t)

	snap := s.SaveTest("H1", "https://quiz.example", "", questions("q1"))
	if _, ok := s.SubmitAnswer(snap.TestID, "q1", "b", "admin1"); !ok {
		t.Fatal("submit failed")
	}

	s.SaveTest("H1", "https://quiz.example", "", questions("q1"))

	_, answers, ok := s.AnswersByOwner("H1")
	if !ok {
		t.Fatal("answers not found")
	}
	if len(answers) != 0 {
		t.Errorf("expected answers reset on replacement, got %v", answers)
	}
}

func TestStore_SubmitAnswerLastWriteWins(t *testing.T) {
	s := newTestStore(t)
	snap := s.SaveTest("H1", "https://quiz.example", "", questions("q1", "q2"))

	ownerID, ok := s.SubmitAnswer(snap.TestID, "q1", "a", "admin1")
	if !ok || ownerID != "H1" {
		t.Fatalf("first submit: ok=%v owner=%s", ok, ownerID)
	}
	if _, ok := s.SubmitAnswer(snap.TestID, "q1", "b", "admin2"); !ok {
		t.Fatal("second submit failed")
	}

	_, answers, ok := s.AnswersByOwner("H1")
	if !ok {
		t.Fatal("answers not found")
	}

	record, exists := answers["q1"]
	if !exists {
		t.Fatal("no record for q1")
	}
	if record.Value != "b" || record.SubmittedBy != "admin2" {
		t.Errorf("expected last write to win, got %+v", record)
	}
}

func TestStore_SubmitAnswerUnknownTestIsNoop(t *testing.T) {
	s := newTestStore(t)

	if _, ok := s.SubmitAnswer("test_missing", "q1", "b", "admin1"); ok {
		t.Error("submit against unknown test should report a miss")
	}
}

func TestStore_SnapshotsRoundTripQuestionContent(t *testing.T) {
	s := newTestStore(t)
	submitted := questions("q1", "q2")
	saved := s.SaveTest("H1", "https://quiz.example", "My Quiz", submitted)

	snapshots := s.Snapshots()
	if len(snapshots) != 1 {
		t.Fatalf("expected one snapshot, got %d", len(snapshots))
	}

	for i, q := range snapshots[0].Questions {
		if q.ID != submitted[i].ID || q.DisplayText != submitted[i].DisplayText {
			t.Errorf("question %d mutated: %+v", i, q)
		}
		for j, opt := range q.Options {
			if opt != submitted[i].Options[j] {
				t.Errorf("option %d/%d mutated: %+v", i, j, opt)
			}
		}
	}
	if snapshots[0].TestID != saved.TestID {
		t.Errorf("snapshot test id mismatch")
	}
}

func TestStore_SweepExpired(t *testing.T) {
	s := newTestStore(t)
	snap := s.SaveTest("H1", "https://quiz.example", "", questions("q1"))
	s.SaveTest("H2", "https://quiz.example", "", questions("q1"))

	// Age H1's test past the threshold.
	s.mu.Lock()
	s.tests[snap.TestID].CreatedAt = time.Now().Add(-25 * time.Hour)
	s.mu.Unlock()

	removed := s.SweepExpired(24 * time.Hour)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if _, ok := s.TestByOwner("H1"); ok {
		t.Error("expired test still resolvable by owner")
	}
	if _, _, ok := s.AnswersByOwner("H1"); ok {
		t.Error("expired answers still resolvable")
	}
	if _, ok := s.TestByOwner("H2"); !ok {
		t.Error("fresh test swept by mistake")
	}
}

func TestStore_AnswersCopyIsolated(t *testing.T) {
	s := newTestStore(t)
	snap := s.SaveTest("H1", "https://quiz.example", "", questions("q1"))
	s.SubmitAnswer(snap.TestID, "q1", "b", "admin1")

	_, answers, _ := s.AnswersByOwner("H1")
	answers["q1"] = types.AnswerRecord{Value: "tampered"}

	_, fresh, _ := s.AnswersByOwner("H1")
	if fresh["q1"].Value != "b" {
		t.Error("returned answer map aliases internal state")
	}
}
