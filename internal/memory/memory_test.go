package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/trellishq/trellis/pkg/models"
)

// stubEmbedding maps text onto a tiny fixed vocabulary so similarity is
// deterministic without a real embedding model.
func stubEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 3)
	lower := strings.ToLower(text)
	if strings.Contains(lower, "habit") {
		vec[0] = 1
	}
	if strings.Contains(lower, "invoice") {
		vec[1] = 1
	}
	if strings.Contains(lower, "game") {
		vec[2] = 1
	}
	if vec[0] == 0 && vec[1] == 0 && vec[2] == 0 {
		vec[0] = 0.1
		vec[1] = 0.1
		vec[2] = 0.1
	}
	return vec, nil
}

func archiveSession(t *testing.T, ix *Index, id, goal string) {
	t.Helper()
	err := ix.Archive(context.Background(), &models.ConversationSession{
		ID:    id,
		State: models.StateComplete,
		Goal:  goal,
	})
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
}

func TestIndexRecallsSimilarConversations(t *testing.T) {
	ix, err := NewIndex("", stubEmbedding)
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}

	archiveSession(t, ix, "s1", "Build a habit tracking app")
	archiveSession(t, ix, "s2", "Automate invoice processing")

	recalls, err := ix.Relevant(context.Background(), "habit tracker for runners", 1)
	if err != nil {
		t.Fatalf("Relevant failed: %v", err)
	}
	if len(recalls) != 1 {
		t.Fatalf("got %d recalls, want 1", len(recalls))
	}
	if recalls[0].SessionID != "s1" {
		t.Errorf("recalled %q, want the habit tracking session", recalls[0].SessionID)
	}
	if recalls[0].Goal != "Build a habit tracking app" {
		t.Errorf("Goal = %q", recalls[0].Goal)
	}
}

func TestIndexClampsResultCount(t *testing.T) {
	ix, err := NewIndex("", stubEmbedding)
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}

	// Asking an empty index must not error.
	recalls, err := ix.Relevant(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Relevant on empty index failed: %v", err)
	}
	if len(recalls) != 0 {
		t.Errorf("empty index returned %d recalls", len(recalls))
	}

	archiveSession(t, ix, "s1", "Build a habit tracking app")

	recalls, err = ix.Relevant(context.Background(), "habit", 5)
	if err != nil {
		t.Fatalf("Relevant failed: %v", err)
	}
	if len(recalls) != 1 {
		t.Errorf("got %d recalls, want 1", len(recalls))
	}
}

func TestIndexRearchiveOverwrites(t *testing.T) {
	ix, err := NewIndex("", stubEmbedding)
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}

	archiveSession(t, ix, "s1", "Build a habit tracking app")
	archiveSession(t, ix, "s1", "Build a habit tracking game")

	recalls, err := ix.Relevant(context.Background(), "game", 2)
	if err != nil {
		t.Fatalf("Relevant failed: %v", err)
	}
	if len(recalls) != 1 {
		t.Fatalf("re-archiving must not duplicate, got %d documents", len(recalls))
	}
	if recalls[0].Goal != "Build a habit tracking game" {
		t.Errorf("Goal = %q, want the updated goal", recalls[0].Goal)
	}
}

func TestSummarizeIncludesPlan(t *testing.T) {
	s := &models.ConversationSession{
		ID:   "s1",
		Goal: "Build a habit tracking app",
		Clarifications: []models.ClarificationExchange{
			{Question: "What platform?", Answer: "iOS"},
		},
		Plan: &models.Plan{
			Sprints: []models.Sprint{
				{Name: "Sprint 1", Tasks: []models.Task{
					{ID: "t1", Title: "Design schema", Priority: models.PriorityHigh, EstimateHours: 8},
				}},
			},
		},
	}

	text := summarize(s)
	for _, want := range []string{"habit tracking", "What platform?", "iOS", "Sprint 1", "Design schema"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
}
