package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/provider"
	"github.com/nidhogg/secgraph/internal/vectormemory"
)

// fakeLLM routes prompts by recognizable fragments of each prompt template.
type fakeLLM struct {
	mu             sync.Mutex
	classifyReply  string
	classifyErr    error
	translateReply string
	translateErr   error
	summaryReply   string
	chatReply      string
	chatErr        error
	chatRequests   []*provider.ChatRequest
	completions    []string
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.completions = append(f.completions, prompt)
	f.mu.Unlock()

	switch {
	case strings.Contains(prompt, "intent classification assistant"):
		return f.classifyReply, f.classifyErr
	case strings.Contains(prompt, "expert Cypher assistant"):
		return f.translateReply, f.translateErr
	default:
		if f.summaryReply == "" {
			return "summary", nil
		}
		return f.summaryReply, nil
	}
}

func (f *fakeLLM) Chat(_ context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	f.mu.Lock()
	f.chatRequests = append(f.chatRequests, req)
	f.mu.Unlock()
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &provider.ChatResponse{Content: f.chatReply}, nil
}

type fakeQuerier struct {
	mu      sync.Mutex
	rows    []map[string]any
	err     error
	queries []string
}

func (f *fakeQuerier) RunReadQuery(_ context.Context, cypher string) ([]map[string]any, error) {
	f.mu.Lock()
	f.queries = append(f.queries, cypher)
	f.mu.Unlock()
	return f.rows, f.err
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.vec) }

func userTurn(content string) []provider.Message {
	return []provider.Message{{Role: "user", Content: content}}
}

func newTestOrchestrator(llm *fakeLLM, querier *fakeQuerier) *Orchestrator {
	return New(llm, querier, &fakeEmbedder{vec: []float32{1, 0}},
		vectormemory.NewInMemoryStore(), Config{}, zap.NewNop())
}

func TestRunChatChatOnly(t *testing.T) {
	llm := &fakeLLM{
		classifyReply: `{"action": "chat_only", "reason": "General discussion"}`,
		chatReply:     "OWASP is a nonprofit focused on software security.",
	}
	querier := &fakeQuerier{}
	o := newTestOrchestrator(llm, querier)
	defer o.Close()

	result, err := o.RunChat(context.Background(), userTurn("What is OWASP?"))
	if err != nil {
		t.Fatalf("RunChat: %v", err)
	}
	if result.Answer != llm.chatReply {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(querier.queries) != 0 {
		t.Errorf("chat_only must not query the graph, got %d queries", len(querier.queries))
	}
	if len(result.Reasoning) == 0 || !strings.Contains(result.Reasoning[0], "chat_only") {
		t.Errorf("first reasoning entry should name the intent: %v", result.Reasoning)
	}
	last := result.Reasoning[len(result.Reasoning)-1]
	if !strings.Contains(last, "Turn completed in") {
		t.Errorf("last reasoning entry should report elapsed time: %q", last)
	}
}

func TestRunChatGraphSearch(t *testing.T) {
	llm := &fakeLLM{
		classifyReply:  `{"action": "specific_graph_search", "reason": "Recognized CVE ID"}`,
		translateReply: `{"cypher": "MATCH (f:Finding {vuln_cve_id: 'CVE-2023-1'}) RETURN f"}`,
		chatReply:      "CVE-2023-1 affects the payment service.",
	}
	querier := &fakeQuerier{rows: []map[string]any{{"finding_id": "f-1"}}}
	o := newTestOrchestrator(llm, querier)
	defer o.Close()

	result, err := o.RunChat(context.Background(), userTurn("What is CVE-2023-1?"))
	if err != nil {
		t.Fatalf("RunChat: %v", err)
	}
	if result.Answer != llm.chatReply {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(querier.queries) != 1 {
		t.Fatalf("expected 1 graph query, got %d", len(querier.queries))
	}

	var sawCypher, sawAnalysis bool
	for _, step := range result.Reasoning {
		if strings.Contains(step, "Generated Cypher query:") {
			sawCypher = true
		}
		if step == "Analyzed the graph data." {
			sawAnalysis = true
		}
	}
	if !sawCypher || !sawAnalysis {
		t.Errorf("reasoning missing query or analysis steps: %v", result.Reasoning)
	}

	// The rows must be handed to synthesis.
	if len(llm.chatRequests) != 1 {
		t.Fatalf("expected 1 chat request, got %d", len(llm.chatRequests))
	}
	system := llm.chatRequests[0].Messages[0].Content
	if !strings.Contains(system, "f-1") {
		t.Errorf("graph rows not passed to synthesis:\n%s", system)
	}
}

func TestRunChatClassificationGarbageFallsBackToChat(t *testing.T) {
	llm := &fakeLLM{
		classifyReply: "I cannot decide.",
		chatReply:     "Happy to help.",
	}
	querier := &fakeQuerier{}
	o := newTestOrchestrator(llm, querier)
	defer o.Close()

	result, err := o.RunChat(context.Background(), userTurn("hello"))
	if err != nil {
		t.Fatalf("RunChat: %v", err)
	}
	if len(querier.queries) != 0 {
		t.Errorf("fallback turn must not query the graph")
	}
	if !strings.Contains(result.Reasoning[0], defaultReason) {
		t.Errorf("reasoning should carry the default reason: %v", result.Reasoning)
	}
}

func TestRunChatEmptyCypherDegrades(t *testing.T) {
	llm := &fakeLLM{
		classifyReply:  `{"action": "general_graph_search", "reason": "graph question"}`,
		translateReply: "no query comes to mind",
		chatReply:      "I found no matching findings.",
	}
	querier := &fakeQuerier{}
	o := newTestOrchestrator(llm, querier)
	defer o.Close()

	result, err := o.RunChat(context.Background(), userTurn("what links the findings?"))
	if err != nil {
		t.Fatalf("RunChat should degrade, not fail: %v", err)
	}
	if len(querier.queries) != 0 {
		t.Errorf("empty query must not reach the graph")
	}

	var sawNote bool
	for _, step := range result.Reasoning {
		if strings.Contains(step, "no query") {
			sawNote = true
		}
	}
	if !sawNote {
		t.Errorf("reasoning should note the empty translation: %v", result.Reasoning)
	}
	if result.Answer == "" {
		t.Error("degraded turn must still answer")
	}
}

func TestRunChatQueryExecutionFailureDegrades(t *testing.T) {
	llm := &fakeLLM{
		classifyReply:  `{"action": "general_graph_search", "reason": "graph question"}`,
		translateReply: `{"cypher": "MATCH (f:Finding) RETURN f"}`,
		chatReply:      "The graph is unavailable right now.",
	}
	querier := &fakeQuerier{err: errors.New("neo4j down")}
	o := newTestOrchestrator(llm, querier)
	defer o.Close()

	result, err := o.RunChat(context.Background(), userTurn("show findings"))
	if err != nil {
		t.Fatalf("RunChat should degrade, not fail: %v", err)
	}
	var sawNote bool
	for _, step := range result.Reasoning {
		if strings.Contains(step, "Query execution failed") {
			sawNote = true
		}
	}
	if !sawNote {
		t.Errorf("reasoning should note the failed execution: %v", result.Reasoning)
	}
	if result.Answer == "" {
		t.Error("degraded turn must still answer")
	}
}

func TestRunChatClassifyTransportErrorIsTerminal(t *testing.T) {
	llm := &fakeLLM{classifyErr: errors.New("provider unreachable")}
	o := newTestOrchestrator(llm, &fakeQuerier{})
	defer o.Close()

	_, err := o.RunChat(context.Background(), userTurn("hello"))
	if err == nil {
		t.Fatal("expected error for classification transport failure")
	}
	if !strings.Contains(err.Error(), "agent execution") {
		t.Errorf("error should be wrapped: %v", err)
	}
}

func TestRunChatTranslateTransportErrorIsTerminal(t *testing.T) {
	llm := &fakeLLM{
		classifyReply: `{"action": "general_graph_search", "reason": "graph question"}`,
		translateErr:  errors.New("provider unreachable"),
	}
	o := newTestOrchestrator(llm, &fakeQuerier{})
	defer o.Close()

	if _, err := o.RunChat(context.Background(), userTurn("show findings")); err == nil {
		t.Fatal("expected error for translation transport failure")
	}
}

func TestRunChatNoUserMessage(t *testing.T) {
	o := newTestOrchestrator(&fakeLLM{}, &fakeQuerier{})
	defer o.Close()

	history := []provider.Message{{Role: "assistant", Content: "hello"}}
	if _, err := o.RunChat(context.Background(), history); err == nil {
		t.Fatal("expected error when history has no user message")
	}
}

func TestLastUserMessage(t *testing.T) {
	history := []provider.Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "second"},
		{Role: "assistant", Content: "reply two"},
	}
	got, ok := lastUserMessage(history)
	if !ok || got != "second" {
		t.Errorf("lastUserMessage = %q, %v", got, ok)
	}

	if _, ok := lastUserMessage(nil); ok {
		t.Error("empty history should report no user message")
	}
}

func TestWithSystemBoundsHistory(t *testing.T) {
	var history []provider.Message
	for i := 0; i < 30; i++ {
		history = append(history, provider.Message{Role: "user", Content: "m"})
	}
	msgs := withSystem("sys", history)
	if len(msgs) != historyWindow+1 {
		t.Errorf("got %d messages, want %d", len(msgs), historyWindow+1)
	}
	if msgs[0].Role != "system" {
		t.Errorf("first message role = %s", msgs[0].Role)
	}
}
