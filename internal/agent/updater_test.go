package agent

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/provider"
	"github.com/nidhogg/secgraph/internal/vectormemory"
)

func TestUpdaterMemorizesTurn(t *testing.T) {
	llm := &fakeLLM{summaryReply: "user asked about OWASP"}
	store := vectormemory.NewInMemoryStore()
	u := NewUpdater(llm, &fakeEmbedder{vec: []float32{1, 0}}, store, 50, zap.NewNop())

	u.Enqueue(Turn{Question: "What is OWASP?", Answer: "A nonprofit."})
	u.Close()

	n, _ := store.Len(context.Background())
	if n != 1 {
		t.Fatalf("store size = %d, want 1", n)
	}
	texts, _ := store.Texts(context.Background())
	if texts[0] != "user asked about OWASP" {
		t.Errorf("stored text = %q", texts[0])
	}
}

func TestUpdaterCompactsPastThreshold(t *testing.T) {
	llm := &fakeLLM{summaryReply: "condensed"}
	store := vectormemory.NewInMemoryStore()
	u := NewUpdater(llm, &fakeEmbedder{vec: []float32{1, 0}}, store, 3, zap.NewNop())

	// The first three turns fit under the threshold; the fourth pushes the
	// store past it and triggers compaction down to one entry.
	for i := 0; i < 4; i++ {
		u.Enqueue(Turn{Question: "q", Answer: "a"})
	}
	u.Close()

	n, _ := store.Len(context.Background())
	if n != 1 {
		t.Fatalf("store size after compaction = %d, want 1", n)
	}
	texts, _ := store.Texts(context.Background())
	if texts[0] != "condensed" {
		t.Errorf("consolidated text = %q", texts[0])
	}
}

func TestUpdaterStaysBelowThresholdWithoutCompaction(t *testing.T) {
	llm := &fakeLLM{summaryReply: "s"}
	store := vectormemory.NewInMemoryStore()
	u := NewUpdater(llm, &fakeEmbedder{vec: []float32{1, 0}}, store, 3, zap.NewNop())

	for i := 0; i < 3; i++ {
		u.Enqueue(Turn{Question: "q", Answer: "a"})
	}
	u.Close()

	n, _ := store.Len(context.Background())
	if n != 3 {
		t.Errorf("store size = %d, want 3 (at the threshold, no compaction)", n)
	}
}

func TestUpdaterEnqueueAfterCloseIsDropped(t *testing.T) {
	llm := &fakeLLM{summaryReply: "s"}
	store := vectormemory.NewInMemoryStore()
	u := NewUpdater(llm, &fakeEmbedder{vec: []float32{1, 0}}, store, 50, zap.NewNop())
	u.Close()

	// A turn racing shutdown must be dropped, not panic the process.
	u.Enqueue(Turn{Question: "q", Answer: "a"})
	u.Close()

	n, _ := store.Len(context.Background())
	if n != 0 {
		t.Errorf("store size = %d, want 0 after shutdown", n)
	}
}

// brokenLLM fails every completion.
type brokenLLM struct{}

func (brokenLLM) Complete(context.Context, string) (string, error) {
	return "", errors.New("provider down")
}

func (brokenLLM) Chat(context.Context, *provider.ChatRequest) (*provider.ChatResponse, error) {
	return nil, errors.New("provider down")
}

func TestUpdaterSummarizationFailureDropsTurn(t *testing.T) {
	store := vectormemory.NewInMemoryStore()
	u := NewUpdater(brokenLLM{}, &fakeEmbedder{vec: []float32{1}}, store, 50, zap.NewNop())

	u.Enqueue(Turn{Question: "q", Answer: "a"})
	u.Close()

	n, _ := store.Len(context.Background())
	if n != 0 {
		t.Errorf("store size = %d, want 0 after failed summarization", n)
	}
}

func TestUpdaterEmbeddingFailureDropsTurn(t *testing.T) {
	llm := &fakeLLM{summaryReply: "s"}
	store := vectormemory.NewInMemoryStore()
	u := NewUpdater(llm, &fakeEmbedder{err: errors.New("embedder down")}, store, 50, zap.NewNop())

	u.Enqueue(Turn{Question: "q", Answer: "a"})
	u.Close()

	n, _ := store.Len(context.Background())
	if n != 0 {
		t.Errorf("store size = %d, want 0 after failed embedding", n)
	}
}
