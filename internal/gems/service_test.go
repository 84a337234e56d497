package gems

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/abhisek/zapquiz/internal/quiz"
	"github.com/abhisek/zapquiz/internal/store"
)

// mockEventRepo implements store.EventRepo for gems tests.
type mockEventRepo struct {
	sessionEvents []store.SessionEventData
	err           error
}

func (m *mockEventRepo) AppendLLMRequest(_ context.Context, _ store.LLMRequestEventData) error {
	return nil
}

func (m *mockEventRepo) AppendSessionEvent(_ context.Context, data store.SessionEventData) error {
	if m.err != nil {
		return m.err
	}
	m.sessionEvents = append(m.sessionEvents, data)
	return nil
}

func newTestService() (*Service, *mockEventRepo) {
	repo := &mockEventRepo{}
	return NewService(repo, nil), repo
}

func TestAwardStreak(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	award := svc.AwardStreak(ctx, "u1", "att-4", 5, 10)

	if award.Type != GemStreak {
		t.Errorf("Type = %q, want %q", award.Type, GemStreak)
	}
	if award.Rarity != RarityRare {
		t.Errorf("Rarity = %q, want %q", award.Rarity, RarityRare)
	}
	if award.Reason != "5 correct in a row!" {
		t.Errorf("Reason = %q", award.Reason)
	}
	if len(repo.sessionEvents) != 1 {
		t.Fatalf("persisted %d events, want 1", len(repo.sessionEvents))
	}
	ev := repo.sessionEvents[0]
	if ev.Action != ActionGem || ev.AttemptID != "att-4" || ev.UserID != "u1" {
		t.Errorf("unexpected event: %+v", ev)
	}

	var detail map[string]string
	if err := json.Unmarshal([]byte(ev.Detail), &detail); err != nil {
		t.Fatalf("detail is not JSON: %v", err)
	}
	if detail["type"] != "streak" || detail["rarity"] != "rare" {
		t.Errorf("detail = %v", detail)
	}
}

func TestAwardCompletion(t *testing.T) {
	tests := []struct {
		name  string
		res   quiz.Result
		types []GemType
	}{
		{
			name:  "partial",
			res:   quiz.Result{Score: 80, CorrectAnswers: 4, TotalQuestions: 5},
			types: []GemType{GemSession},
		},
		{
			name:  "perfect",
			res:   quiz.Result{Score: 100, CorrectAnswers: 5, TotalQuestions: 5},
			types: []GemType{GemSession, GemPerfect},
		},
		{
			name:  "final with certificate",
			res:   quiz.Result{Score: 90, CorrectAnswers: 9, TotalQuestions: 10, CertificateEligible: true},
			types: []GemType{GemSession, GemCertificate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestService()
			awards := svc.AwardCompletion(context.Background(), "u1", "att-1", tt.res)
			if len(awards) != len(tt.types) {
				t.Fatalf("got %d awards, want %d", len(awards), len(tt.types))
			}
			for i, want := range tt.types {
				if awards[i].Type != want {
					t.Errorf("award %d type = %q, want %q", i, awards[i].Type, want)
				}
				if awards[i].AttemptID != "att-1" {
					t.Errorf("award %d attempt = %q", i, awards[i].AttemptID)
				}
			}
			if awards[0].Rarity != SessionRarity(tt.res.Score) {
				t.Errorf("session rarity = %q", awards[0].Rarity)
			}
			if len(repo.sessionEvents) != len(tt.types) {
				t.Errorf("persisted %d events, want %d", len(repo.sessionEvents), len(tt.types))
			}
		})
	}
}

func TestPersist_NilEventRepo(t *testing.T) {
	svc := NewService(nil, nil)

	// Should not panic with nil eventRepo.
	award := svc.AwardStreak(context.Background(), "u1", "att-1", 5, 5)
	if award == nil {
		t.Fatal("expected non-nil award even with nil eventRepo")
	}
}

func TestPersist_RepoErrorStillAwards(t *testing.T) {
	svc, repo := newTestService()
	repo.err = errors.New("disk full")

	awards := svc.AwardCompletion(context.Background(), "u1", "att-1", quiz.Result{Score: 60, TotalQuestions: 5, CorrectAnswers: 3})
	if len(awards) != 1 {
		t.Fatalf("got %d awards, want 1", len(awards))
	}
}
