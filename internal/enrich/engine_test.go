package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/finding"
)

func testFinding(id string) *finding.Finding {
	return &finding.Finding{
		FindingID:    id,
		VulnTitle:    "title " + id,
		VulnSeverity: "high",
		Scanner:      "zap",
	}
}

type fakeGraph struct {
	mu       sync.Mutex
	findings []*finding.Finding
	fetchErr error
	writeErr error
	writes   []string
	merged   []finding.InferredRelationship
	mergeErr error
}

func (g *fakeGraph) FetchFindings(context.Context) ([]*finding.Finding, error) {
	return g.findings, g.fetchErr
}

func (g *fakeGraph) MergeRelationship(_ context.Context, rel finding.InferredRelationship) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mergeErr != nil {
		return g.mergeErr
	}
	g.merged = append(g.merged, rel)
	return nil
}

func (g *fakeGraph) Write(_ context.Context, cypher string, _ map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.writeErr != nil {
		return g.writeErr
	}
	g.writes = append(g.writes, cypher)
	return nil
}

// fakeCompleter answers with a canned reply per matching prompt substring,
// falling back to a default reply.
type fakeCompleter struct {
	mu       sync.Mutex
	byMatch  map[string]string
	errMatch map[string]error
	fallback string
	calls    int
}

func (c *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	for substr, err := range c.errMatch {
		if strings.Contains(prompt, substr) {
			return "", err
		}
	}
	for substr, reply := range c.byMatch {
		if strings.Contains(prompt, substr) {
			return reply, nil
		}
	}
	return c.fallback, nil
}

const noReply = `{"result": "no", "explanation": "unrelated"}`

func TestRunFetchFailure(t *testing.T) {
	graph := &fakeGraph{fetchErr: errors.New("neo4j down")}
	engine := NewEngine(graph, &fakeCompleter{fallback: noReply}, Config{}, zap.NewNop())

	if _, err := engine.Run(context.Background()); err == nil {
		t.Fatal("expected error when the finding fetch fails")
	}
}

func TestRunGlobalTools(t *testing.T) {
	graph := &fakeGraph{findings: []*finding.Finding{testFinding("f-1")}}
	engine := NewEngine(graph, &fakeCompleter{fallback: noReply}, Config{}, zap.NewNop())

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.GlobalToolsRun != len(globalTools) {
		t.Errorf("global tools run = %d, want %d", report.GlobalToolsRun, len(globalTools))
	}
	if len(graph.writes) != len(globalTools) {
		t.Errorf("global writes = %d, want %d", len(graph.writes), len(globalTools))
	}
	// One finding means no pairs.
	if report.PairsProcessed != 0 {
		t.Errorf("pairs processed = %d, want 0", report.PairsProcessed)
	}
}

func TestRunGlobalToolFaultIsolation(t *testing.T) {
	graph := &fakeGraph{
		findings: []*finding.Finding{testFinding("f-1")},
		writeErr: errors.New("cypher error"),
	}
	engine := NewEngine(graph, &fakeCompleter{fallback: noReply}, Config{}, zap.NewNop())

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run should survive global tool failures: %v", err)
	}
	if report.GlobalToolsRun != 0 {
		t.Errorf("global tools run = %d, want 0", report.GlobalToolsRun)
	}
	if len(report.GlobalFailures) != len(globalTools) {
		t.Errorf("global failures = %d, want %d", len(report.GlobalFailures), len(globalTools))
	}
}

func TestRunPairwiseAllPairs(t *testing.T) {
	graph := &fakeGraph{findings: []*finding.Finding{
		testFinding("f-1"), testFinding("f-2"), testFinding("f-3"),
	}}
	llm := &fakeCompleter{fallback: noReply}
	engine := NewEngine(graph, llm, Config{}, zap.NewNop())

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.PairsProcessed != 3 {
		t.Errorf("pairs processed = %d, want 3", report.PairsProcessed)
	}
	wantCalls := 3 * len(AllPairTools)
	if report.ToolInvocations != wantCalls {
		t.Errorf("tool invocations = %d, want %d", report.ToolInvocations, wantCalls)
	}
	// Every judgment was "no", so no edges merged.
	if report.EdgesMerged != 0 {
		t.Errorf("edges merged = %d, want 0", report.EdgesMerged)
	}
	if len(graph.merged) != 0 {
		t.Errorf("merged relationships = %d, want 0", len(graph.merged))
	}
}

func TestRunPairwiseYesMergesEdge(t *testing.T) {
	graph := &fakeGraph{findings: []*finding.Finding{
		testFinding("f-1"), testFinding("f-2"),
	}}
	// Only the root-cause question gets a yes.
	llm := &fakeCompleter{
		byMatch: map[string]string{
			"same underlying root cause": `{"result": "yes", "explanation": "same misconfigured gateway"}`,
		},
		fallback: noReply,
	}
	engine := NewEngine(graph, llm, Config{}, zap.NewNop())

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.EdgesMerged != 1 {
		t.Fatalf("edges merged = %d, want 1", report.EdgesMerged)
	}

	rel := graph.merged[0]
	if rel.Type != finding.RelCommonRootCause {
		t.Errorf("edge type = %s, want COMMON_ROOT_CAUSE", rel.Type)
	}
	if rel.From != "f-1" || rel.To != "f-2" {
		t.Errorf("edge endpoints = %s -> %s", rel.From, rel.To)
	}
	if rel.Explanation != "same misconfigured gateway" {
		t.Errorf("edge explanation = %q", rel.Explanation)
	}
}

func TestRunPairwiseToolFaultIsolation(t *testing.T) {
	graph := &fakeGraph{findings: []*finding.Finding{
		testFinding("f-1"), testFinding("f-2"),
	}}
	// One tool call fails outright, one returns garbage; the rest answer yes.
	llm := &fakeCompleter{
		errMatch: map[string]error{
			"same underlying root cause": errors.New("model timeout"),
		},
		byMatch: map[string]string{
			"same technique": "they seem related to me",
		},
		fallback: `{"result": "yes", "explanation": "linked"}`,
	}
	engine := NewEngine(graph, llm, Config{}, zap.NewNop())

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run should survive per-tool failures: %v", err)
	}
	if report.PairsProcessed != 1 {
		t.Errorf("pairs processed = %d, want 1", report.PairsProcessed)
	}
	if report.ToolInvocations != len(AllPairTools) {
		t.Errorf("tool invocations = %d, want %d", report.ToolInvocations, len(AllPairTools))
	}
	if report.ToolFailures != 2 {
		t.Errorf("tool failures = %d, want 2", report.ToolFailures)
	}
	if report.EdgesMerged != len(AllPairTools)-2 {
		t.Errorf("edges merged = %d, want %d", report.EdgesMerged, len(AllPairTools)-2)
	}
}

func TestRunPairConcurrencyBounded(t *testing.T) {
	var findings []*finding.Finding
	for i := 0; i < 5; i++ {
		findings = append(findings, testFinding(fmt.Sprintf("f-%d", i)))
	}
	graph := &fakeGraph{findings: findings}
	llm := &fakeCompleter{fallback: noReply}
	engine := NewEngine(graph, llm, Config{PairConcurrency: 3, Tools: []PairTool{ToolRootCause}}, zap.NewNop())

	report, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 5 findings -> C(5,2) pairs, one tool each.
	if report.PairsProcessed != 10 {
		t.Errorf("pairs processed = %d, want 10", report.PairsProcessed)
	}
	if report.ToolInvocations != 10 {
		t.Errorf("tool invocations = %d, want 10", report.ToolInvocations)
	}
}

func TestRunCancelledContextStopsPairs(t *testing.T) {
	graph := &fakeGraph{findings: []*finding.Finding{
		testFinding("f-1"), testFinding("f-2"), testFinding("f-3"),
	}}
	llm := &fakeCompleter{fallback: noReply}
	engine := NewEngine(graph, llm, Config{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := engine.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.PairsProcessed != 0 {
		t.Errorf("pairs processed = %d, want 0 after cancellation", report.PairsProcessed)
	}
}
