// Package memory archives finished planning conversations in a local
// vector index so later sessions can recall similar past work.
package memory

import (
	"context"
	"fmt"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/trellishq/trellis/pkg/models"
)

const collectionName = "conversations"

// Recall is one past conversation returned from a similarity query.
type Recall struct {
	SessionID  string
	Goal       string
	Summary    string
	Similarity float32
}

// Index stores conversation summaries and answers similarity queries.
type Index struct {
	collection *chromem.Collection
}

// NewIndex opens a conversation index. An empty path keeps the index in
// memory only; otherwise it is persisted under path. The embedding
// function is pluggable so tests and offline setups can avoid remote
// embedding calls.
func NewIndex(path string, embed chromem.EmbeddingFunc) (*Index, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open conversation index: %w", err)
		}
	}

	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collectionName, err)
	}
	return &Index{collection: collection}, nil
}

// Archive records a finished session. Re-archiving the same session
// overwrites the earlier document.
func (ix *Index) Archive(ctx context.Context, session *models.ConversationSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session has no ID")
	}

	doc := chromem.Document{
		ID:      session.ID,
		Content: summarize(session),
		Metadata: map[string]string{
			"goal":  session.Goal,
			"state": string(session.State),
		},
	}
	if err := ix.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("archive session %s: %w", session.ID, err)
	}
	return nil
}

// Relevant returns up to n past conversations similar to the query,
// most similar first. An empty index yields no results.
func (ix *Index) Relevant(ctx context.Context, query string, n int) ([]Recall, error) {
	if count := ix.collection.Count(); count < n {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := ix.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query conversation index: %w", err)
	}

	recalls := make([]Recall, len(results))
	for i, r := range results {
		recalls[i] = Recall{
			SessionID:  r.ID,
			Goal:       r.Metadata["goal"],
			Summary:    r.Content,
			Similarity: r.Similarity,
		}
	}
	return recalls, nil
}

// summarize flattens a session into the text that gets embedded.
func summarize(session *models.ConversationSession) string {
	var b strings.Builder
	b.WriteString("Goal: ")
	b.WriteString(session.Goal)

	for _, c := range session.Clarifications {
		fmt.Fprintf(&b, "\nQ: %s\nA: %s", c.Question, c.Answer)
	}

	if session.Plan != nil {
		for _, sp := range session.Plan.Sprints {
			fmt.Fprintf(&b, "\nSprint %s:", sp.Name)
			for _, task := range sp.Tasks {
				fmt.Fprintf(&b, " %s (%s, %.1fh);", task.Title, task.Priority, task.EstimateHours)
			}
		}
	}
	return b.String()
}
