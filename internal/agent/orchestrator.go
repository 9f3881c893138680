package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/embedding"
	"github.com/nidhogg/secgraph/internal/provider"
	"github.com/nidhogg/secgraph/internal/vectormemory"
)

// LLM is the slice of the provider router the orchestrator needs.
type LLM interface {
	Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// GraphQuerier executes sanitized read-only retrieval queries.
type GraphQuerier interface {
	RunReadQuery(ctx context.Context, cypher string) ([]map[string]any, error)
}

// Config tunes the orchestrator.
type Config struct {
	// RecallTopK is how many similar memories ground each turn.
	RecallTopK int `json:"recall_top_k"`
	// MemoryThreshold is the store size beyond which compaction collapses
	// all memory into a single summary.
	MemoryThreshold int `json:"memory_threshold"`
}

// Result is one answered turn: the reply plus the ordered reasoning trace.
// The trace is a required observable output, not a log side-channel.
type Result struct {
	Answer    string   `json:"answer"`
	Reasoning []string `json:"reasoning"`
}

// Orchestrator runs one state-machine pass per user turn: intent
// classification, a retrieval strategy, reply synthesis, and a deferred
// memory update that never blocks the returned reply.
type Orchestrator struct {
	llm      LLM
	graph    GraphQuerier
	embedder embedding.Provider
	memory   vectormemory.Store
	updater  *Updater
	cfg      Config
	logger   *zap.Logger
}

// New creates an orchestrator and starts its memory updater.
func New(llm LLM, graph GraphQuerier, embedder embedding.Provider, memory vectormemory.Store, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.RecallTopK <= 0 {
		cfg.RecallTopK = 5
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = 50
	}
	return &Orchestrator{
		llm:      llm,
		graph:    graph,
		embedder: embedder,
		memory:   memory,
		updater:  NewUpdater(llm, embedder, memory, cfg.MemoryThreshold, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// Close drains and stops the background memory updater.
func (o *Orchestrator) Close() {
	o.updater.Close()
}

// RunChat answers the latest user message in history. It always returns an
// answer and a reasoning trace on degraded paths (defaulted intent, empty
// query, no results); only unrecoverable transport errors fail the turn.
func (o *Orchestrator) RunChat(ctx context.Context, history []provider.Message) (*Result, error) {
	start := time.Now()

	userMessage, ok := lastUserMessage(history)
	if !ok {
		return nil, fmt.Errorf("agent execution: history contains no user message")
	}

	// Intent classification and query embedding have no data dependency,
	// so they run concurrently.
	var (
		wg       sync.WaitGroup
		cls      Classification
		clsErr   error
		queryVec []float32
		embedErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		raw, err := o.llm.Complete(ctx, classifyPrompt(userMessage))
		if err != nil {
			clsErr = err
			return
		}
		cls = ParseClassification(raw)
	}()
	go func() {
		defer wg.Done()
		queryVec, embedErr = embedding.EmbedOne(ctx, o.embedder, userMessage)
	}()
	wg.Wait()

	if clsErr != nil {
		return nil, fmt.Errorf("agent execution: classify intent: %w", clsErr)
	}
	if embedErr != nil {
		return nil, fmt.Errorf("agent execution: embed question: %w", embedErr)
	}

	reasoning := []string{
		fmt.Sprintf("Intent classified as '%s': %s", cls.Action, cls.Reason),
	}

	recalled, err := o.memory.RetrieveSimilar(ctx, queryVec, o.cfg.RecallTopK)
	if err != nil {
		o.logger.Warn("memory retrieval failed", zap.Error(err))
		recalled = nil
	}
	reasoning = append(reasoning, fmt.Sprintf("Retrieved %d similar memories.", len(recalled)))

	memoryContext := o.memoryContext(ctx)

	var answer string
	switch cls.Action {
	case IntentChatOnly:
		answer, err = o.synthesize(ctx, chatOnlyMessages(userMessage, memoryContext, recalled, history))
		if err != nil {
			return nil, fmt.Errorf("agent execution: %w", err)
		}

	default:
		rows, queryReasoning, qerr := o.graphSearch(ctx, cls.Action, userMessage)
		if qerr != nil {
			return nil, fmt.Errorf("agent execution: %w", qerr)
		}
		reasoning = append(reasoning, queryReasoning...)

		answer, err = o.synthesize(ctx, analyzeMessages(userMessage, rows, memoryContext, recalled, history))
		if err != nil {
			return nil, fmt.Errorf("agent execution: %w", err)
		}
		reasoning = append(reasoning, "Analyzed the graph data.")
	}

	reasoning = append(reasoning,
		fmt.Sprintf("Turn completed in %s.", time.Since(start).Round(time.Millisecond)))

	// Deferred: callers must not assume memory reflects this turn yet.
	o.updater.Enqueue(Turn{Question: userMessage, Answer: answer})

	return &Result{Answer: answer, Reasoning: reasoning}, nil
}

// graphSearch translates the user message into a retrieval query and runs
// it. Translation parse failures and execution failures degrade to zero
// rows; only a transport failure on the translation call is terminal.
func (o *Orchestrator) graphSearch(ctx context.Context, intent Intent, userMessage string) ([]map[string]any, []string, error) {
	raw, err := o.llm.Complete(ctx, translatePrompt(intent, userMessage))
	if err != nil {
		return nil, nil, fmt.Errorf("translate query: %w", err)
	}

	cypher := ParseCypher(raw)
	if cypher == "" {
		o.logger.Warn("query translation produced no query", zap.String("reply", raw))
		return nil, []string{"Query translation produced no query; continuing with no results."}, nil
	}

	reasoning := []string{"Generated Cypher query: " + cypher}
	rows, err := o.graph.RunReadQuery(ctx, cypher)
	if err != nil {
		o.logger.Warn("graph query failed", zap.String("cypher", cypher), zap.Error(err))
		reasoning = append(reasoning, "Query execution failed; continuing with no results.")
		return nil, reasoning, nil
	}
	return rows, reasoning, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, messages []provider.Message) (string, error) {
	resp, err := o.llm.Chat(ctx, &provider.ChatRequest{Messages: messages})
	if err != nil {
		return "", fmt.Errorf("synthesize reply: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// memoryContext joins the whole long-term memory into one grounding string.
func (o *Orchestrator) memoryContext(ctx context.Context) string {
	texts, err := o.memory.Texts(ctx)
	if err != nil {
		o.logger.Warn("memory context build failed", zap.Error(err))
		return ""
	}
	return strings.Join(texts, "; ")
}

// lastUserMessage returns the content of the most recent user message.
func lastUserMessage(history []provider.Message) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			return history[i].Content, true
		}
	}
	return "", false
}
