//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/finding"
	"github.com/nidhogg/secgraph/internal/graph"
	"github.com/nidhogg/secgraph/internal/provider"
	pgstore "github.com/nidhogg/secgraph/internal/store"
)

// Package-level shared state, set by TestMain and used by all subtests.
var (
	testLogger     *zap.Logger
	testGraphStore *graph.Store
	testPGStore    *pgstore.Store
	testRedisURL   string
	testLLMConfig  *llmTestConfig
)

type llmTestConfig struct {
	Endpoint string
	APIKey   string
	Model    string
}

// startNeo4j starts a Neo4j testcontainer, returns URI + cleanup func.
func startNeo4j(ctx context.Context) (string, func(), error) {
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start neo4j: %w", err)
	}
	uri, err := container.BoltUrl(ctx)
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("neo4j bolt url: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return uri, cleanup, nil
}

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("secgraph_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// skipIfNoLLM skips the test if LLM env vars are not configured.
func skipIfNoLLM(t *testing.T) {
	t.Helper()
	if testLLMConfig == nil {
		t.Skip("LLM provider not configured (set SECGRAPH_TEST_PROVIDER_ENDPOINT, SECGRAPH_TEST_PROVIDER_API_KEY, SECGRAPH_TEST_PROVIDER_MODEL)")
	}
}

// newTestRouter builds a provider router with the configured real LLM, when
// one is available.
func newTestRouter() *provider.Router {
	provRouter := provider.NewRouter(testLogger)
	if testLLMConfig != nil {
		p := provider.NewOpenAIProvider(provider.ProviderConfig{
			ID:       "test-llm",
			Type:     "openai",
			Name:     "Test LLM",
			Endpoint: testLLMConfig.Endpoint,
			APIKey:   testLLMConfig.APIKey,
			Model:    testLLMConfig.Model,
		}, testLogger)
		provRouter.Register(p)
		provRouter.SetDefault("test-llm")
	}
	return provRouter
}

// wipeGraph removes every node so tests start from a clean graph.
func wipeGraph(ctx context.Context, t *testing.T) {
	t.Helper()
	if err := testGraphStore.Write(ctx, "MATCH (n) DETACH DELETE n", nil); err != nil {
		t.Fatalf("wipe graph: %v", err)
	}
}

// seedRecords returns a deterministic batch of scanner findings. The first
// two share a CWE, scanner, and asset; the third is unrelated.
func seedRecords() []finding.Record {
	return []finding.Record{
		{
			FindingID: "f-sqli-1",
			Scanner:   "zap",
			ScanID:    "scan-1",
			Timestamp: "2025-03-01T10:00:00Z",
			Vulnerability: finding.Vulnerability{
				CWEID:       "CWE-89",
				Title:       "SQL injection in login form",
				Description: "User input reaches a SQL statement unsanitized.",
				Severity:    "critical",
				Vector:      "network",
			},
			Asset: finding.Asset{Type: "api_endpoint", URL: "https://api.example.com/login"},
		},
		{
			FindingID: "f-sqli-2",
			Scanner:   "zap",
			ScanID:    "scan-1",
			Timestamp: "2025-03-01T10:05:00Z",
			Vulnerability: finding.Vulnerability{
				CWEID:       "CWE-89",
				Title:       "SQL injection in search endpoint",
				Description: "Query parameter concatenated into SQL.",
				Severity:    "high",
				Vector:      "network",
			},
			Asset: finding.Asset{Type: "api_endpoint", URL: "https://api.example.com/login"},
		},
		{
			FindingID: "f-xss-1",
			Scanner:   "semgrep",
			ScanID:    "scan-2",
			Timestamp: "2025-03-10T09:00:00Z",
			Vulnerability: finding.Vulnerability{
				CWEID:       "CWE-79",
				Title:       "Reflected XSS in profile page",
				Description: "Unescaped output of a request parameter.",
				Severity:    "medium",
				Vector:      "network",
			},
			Asset: finding.Asset{Type: "source_file", Repo: "org/web", Path: "profile.tmpl"},
			Package: &finding.Package{
				Name: "html-renderer", Version: "2.1.0", Ecosystem: "npm",
			},
		},
	}
}

// stubCompleter is a deterministic LLM stand-in for tests that must not
// depend on a live model.
type stubCompleter struct {
	mu      sync.Mutex
	byMatch map[string]string
	calls   int
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	for substr, reply := range s.byMatch {
		if strings.Contains(prompt, substr) {
			return reply, nil
		}
	}
	return `{"result": "no", "explanation": "unrelated"}`, nil
}

// stubEmbedder returns a deterministic vector derived from the text length,
// and counts calls so cache behavior is observable.
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls += len(texts)
	s.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := float32(len(text)%7 + 1)
		out[i] = []float32{v, 1, 0}
	}
	return out, nil
}

func (s *stubEmbedder) Dimension() int { return 3 }

func (s *stubEmbedder) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func osEnvLLMConfig() *llmTestConfig {
	endpoint := os.Getenv("SECGRAPH_TEST_PROVIDER_ENDPOINT")
	apiKey := os.Getenv("SECGRAPH_TEST_PROVIDER_API_KEY")
	model := os.Getenv("SECGRAPH_TEST_PROVIDER_MODEL")
	if endpoint == "" || apiKey == "" || model == "" {
		return nil
	}
	return &llmTestConfig{Endpoint: endpoint, APIKey: apiKey, Model: model}
}
