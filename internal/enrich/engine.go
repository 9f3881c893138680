package enrich

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/finding"
)

// GraphStore is the slice of the graph client the engine needs.
type GraphStore interface {
	FetchFindings(ctx context.Context) ([]*finding.Finding, error)
	MergeRelationship(ctx context.Context, rel finding.InferredRelationship) error
	Write(ctx context.Context, cypher string, params map[string]any) error
}

// Completer issues a single-prompt LLM request and returns the raw text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config tunes an enrichment run.
type Config struct {
	// PairConcurrency bounds how many finding pairs are in flight at once.
	// The default of 1 processes pairs sequentially, so concurrent LLM
	// calls are bounded by the tool count.
	PairConcurrency int `json:"pair_concurrency"`
	// Tools selects the pairwise tools to run; empty means all.
	Tools []PairTool `json:"-"`
}

// Engine orchestrates global and pairwise enrichment over the whole graph.
// Runs are idempotent at the edge level but re-issue every pairwise LLM
// call; enrichment is a batch job, not a request-scoped operation.
type Engine struct {
	graph  GraphStore
	llm    Completer
	cfg    Config
	logger *zap.Logger
}

// NewEngine creates an enrichment engine.
func NewEngine(graph GraphStore, llm Completer, cfg Config, logger *zap.Logger) *Engine {
	if cfg.PairConcurrency <= 0 {
		cfg.PairConcurrency = 1
	}
	if len(cfg.Tools) == 0 {
		cfg.Tools = AllPairTools
	}
	return &Engine{graph: graph, llm: llm, cfg: cfg, logger: logger}
}

// Run executes all global tools, then all pairwise tools over every
// unordered finding pair. Individual tool failures are logged and counted,
// never propagated; only the initial finding fetch can fail the run.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	start := time.Now()

	findings, err := e.graph.FetchFindings(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.Info("enrichment started",
		zap.Int("findings", len(findings)),
		zap.Int("pair_concurrency", e.cfg.PairConcurrency))

	report := &Report{Findings: len(findings)}

	for _, tool := range globalTools {
		if err := e.runGlobalTool(ctx, tool); err != nil {
			e.logger.Warn("global tool failed",
				zap.String("tool", tool.name), zap.Error(err))
			report.GlobalFailures = append(report.GlobalFailures, tool.name)
			continue
		}
		report.GlobalToolsRun++
	}

	e.runPairs(ctx, findings, report)

	report.Elapsed = time.Since(start)
	e.logger.Info("enrichment finished",
		zap.Int("pairs", report.PairsProcessed),
		zap.Int("edges_merged", report.EdgesMerged),
		zap.Int("tool_failures", report.ToolFailures),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

// runPairs walks every unordered pair, fanning the tool set out per pair
// and awaiting it before the semaphore admits the next pair.
func (e *Engine) runPairs(ctx context.Context, findings []*finding.Finding, report *Report) {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, e.cfg.PairConcurrency)
	)

	for i := 0; i < len(findings); i++ {
		for j := i + 1; j < len(findings); j++ {
			if ctx.Err() != nil {
				wg.Wait()
				return
			}

			a, b := findings[i], findings[j]
			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()

				merged, invoked, failed := e.judgePair(ctx, a, b)

				mu.Lock()
				report.PairsProcessed++
				report.ToolInvocations += invoked
				report.EdgesMerged += merged
				report.ToolFailures += failed
				mu.Unlock()
			}()
		}
	}
	wg.Wait()
}

// judgePair runs every configured tool against one pair concurrently and
// waits for all of them. Each tool is independently recoverable: a failed
// call or malformed reply skips that tool only.
func (e *Engine) judgePair(ctx context.Context, a, b *finding.Finding) (merged, invoked, failed int) {
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, tool := range e.cfg.Tools {
		wg.Add(1)
		go func(t PairTool) {
			defer wg.Done()

			ok, err := e.runPairTool(ctx, t, a, b)

			mu.Lock()
			defer mu.Unlock()
			invoked++
			if err != nil {
				failed++
				return
			}
			if ok {
				merged++
			}
		}(tool)
	}
	wg.Wait()
	return merged, invoked, failed
}

// runPairTool asks the model one yes/no question about the pair and merges
// the tool's edge on an affirmative judgment. Returns whether an edge was
// merged.
func (e *Engine) runPairTool(ctx context.Context, tool PairTool, a, b *finding.Finding) (bool, error) {
	raw, err := e.llm.Complete(ctx, tool.Prompt(a, b))
	if err != nil {
		e.logger.Warn("pairwise tool call failed",
			zap.String("tool", tool.Name()),
			zap.String("from", a.FindingID),
			zap.String("to", b.FindingID),
			zap.Error(err))
		return false, err
	}

	judgment, err := ParseJudgment(raw)
	if err != nil {
		e.logger.Warn("skipping malformed judgment",
			zap.String("tool", tool.Name()),
			zap.String("from", a.FindingID),
			zap.String("to", b.FindingID),
			zap.String("reply", raw))
		return false, err
	}

	if !judgment.Affirmative() {
		return false, nil
	}

	rel := tool.edge(a, b, judgment)
	if err := e.graph.MergeRelationship(ctx, rel); err != nil {
		e.logger.Warn("edge merge failed",
			zap.String("type", string(rel.Type)), zap.Error(err))
		return false, err
	}
	return true, nil
}
