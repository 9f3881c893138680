package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/embedding"
	"github.com/nidhogg/secgraph/internal/vectormemory"
)

// Turn is one completed question/answer exchange queued for memorization.
type Turn struct {
	Question string
	Answer   string
}

// Updater is the background memory writer. A single worker goroutine owns
// all writes to the memory store, so concurrent turns cannot race on it;
// turns trade strict memory consistency for bounded reply latency.
type Updater struct {
	llm       LLM
	embedder  embedding.Provider
	memory    vectormemory.Store
	threshold int
	queue     chan Turn
	done      chan struct{}
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewUpdater starts the single-writer worker.
func NewUpdater(llm LLM, embedder embedding.Provider, memory vectormemory.Store, threshold int, logger *zap.Logger) *Updater {
	u := &Updater{
		llm:       llm,
		embedder:  embedder,
		memory:    memory,
		threshold: threshold,
		queue:     make(chan Turn, 64),
		done:      make(chan struct{}),
		logger:    logger,
	}
	go u.run()
	return u
}

// Enqueue schedules a turn for memorization without blocking the caller.
// A full queue or a closed updater drops the turn; memory is eventually
// consistent by design.
func (u *Updater) Enqueue(t Turn) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		u.logger.Warn("memory updater closed, dropping turn")
		return
	}
	select {
	case u.queue <- t:
	default:
		u.logger.Warn("memory update queue full, dropping turn")
	}
}

// Close stops accepting turns and waits for the queued ones to finish.
// Safe to call more than once.
func (u *Updater) Close() {
	u.mu.Lock()
	if !u.closed {
		u.closed = true
		close(u.queue)
	}
	u.mu.Unlock()
	<-u.done
}

func (u *Updater) run() {
	defer close(u.done)
	for t := range u.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		u.process(ctx, t)
		cancel()
	}
}

// process memorizes one turn: summarize it into a sentence, embed it, store
// it, then compact the store once it has grown past the threshold. Every
// failure is logged and dropped; updater errors never reach a turn.
func (u *Updater) process(ctx context.Context, t Turn) {
	summary, err := u.llm.Complete(ctx, fmt.Sprintf(
		"Summarize the key interaction in one sentence:\nQ: %s\nA: %s", t.Question, t.Answer))
	if err != nil {
		u.logger.Warn("turn summarization failed", zap.Error(err))
		return
	}

	vec, err := embedding.EmbedOne(ctx, u.embedder, summary)
	if err != nil {
		u.logger.Warn("summary embedding failed", zap.Error(err))
		return
	}

	if err := u.memory.Add(ctx, vectormemory.Item{Embedding: vec, Text: summary}); err != nil {
		u.logger.Warn("memory insert failed", zap.Error(err))
		return
	}

	u.compactIfNeeded(ctx)
}

// compactIfNeeded collapses the whole store into a single LLM-produced
// summary sentence once it exceeds the threshold, so the next turn's
// context build observes exactly one consolidated entry.
func (u *Updater) compactIfNeeded(ctx context.Context) {
	n, err := u.memory.Len(ctx)
	if err != nil || n <= u.threshold {
		return
	}

	texts, err := u.memory.Texts(ctx)
	if err != nil {
		u.logger.Warn("memory read for compaction failed", zap.Error(err))
		return
	}

	summary, err := u.llm.Complete(ctx,
		"Summarize into one sentence:\n"+strings.Join(texts, "\n"))
	if err != nil {
		u.logger.Warn("memory compaction failed", zap.Error(err))
		return
	}

	vec, err := embedding.EmbedOne(ctx, u.embedder, summary)
	if err != nil {
		u.logger.Warn("compacted summary embedding failed", zap.Error(err))
		return
	}

	if err := u.memory.ReplaceAll(ctx, vectormemory.Item{Embedding: vec, Text: summary}); err != nil {
		u.logger.Warn("memory replace failed", zap.Error(err))
		return
	}
	u.logger.Info("compacted long-term memory", zap.Int("items_before", n))
}
