package graph

import (
	"strings"
	"testing"
)

func TestSanitizeReadQuery(t *testing.T) {
	got, err := SanitizeReadQuery("MATCH (f:Finding) RETURN f LIMIT 10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "MATCH (f:Finding) RETURN f LIMIT 10" {
		t.Errorf("query altered: %q", got)
	}
}

func TestSanitizeReadQueryStripsFences(t *testing.T) {
	raw := "```cypher\nMATCH (f:Finding) RETURN f.finding_id\n```"
	got, err := SanitizeReadQuery(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "```") {
		t.Errorf("fences not stripped: %q", got)
	}
	if got != "MATCH (f:Finding) RETURN f.finding_id" {
		t.Errorf("unexpected query: %q", got)
	}
}

func TestSanitizeReadQueryEmpty(t *testing.T) {
	for _, raw := range []string{"", "   ", "```cypher\n```"} {
		if _, err := SanitizeReadQuery(raw); err != ErrEmptyQuery {
			t.Errorf("SanitizeReadQuery(%q) err = %v, want ErrEmptyQuery", raw, err)
		}
	}
}

func TestSanitizeReadQueryRejectsWrites(t *testing.T) {
	queries := []string{
		"CREATE (f:Finding {finding_id: 'x'})",
		"MATCH (f:Finding) DELETE f",
		"MATCH (f) DETACH DELETE f",
		"MERGE (f:Finding {finding_id: 'x'})",
		"MATCH (f:Finding) SET f.vuln_severity = 'low' RETURN f",
		"MATCH (f) REMOVE f.embedding RETURN f",
		"DROP INDEX finding_idx",
		"CALL db.labels()",
		"match (f) detach delete f",
	}
	for _, q := range queries {
		if _, err := SanitizeReadQuery(q); err == nil {
			t.Errorf("expected rejection for %q", q)
		}
	}
}

func TestSanitizeReadQueryAllowsWriteKeywordSubstrings(t *testing.T) {
	// Identifiers and aliases in this schema contain write keywords as
	// substrings; the guard must match whole words only.
	queries := []string{
		"MATCH (f:Finding) RETURN f.finding_id AS id, f.asset_url AS asset ORDER BY asset",
		"MATCH (f:Finding)-[:AFFECTS]->(a:Asset) RETURN a.id",
		"MATCH (f:Finding) WHERE f.asset_type = 'api_endpoint' RETURN f.asset_service",
		"MATCH (f:Finding) RETURN count(f) AS dropped_count",
	}
	for _, q := range queries {
		if _, err := SanitizeReadQuery(q); err != nil {
			t.Errorf("valid read query rejected: %q: %v", q, err)
		}
	}
}

func TestRelTypePatternGuard(t *testing.T) {
	valid := []string{"SHARED_CWE", "TEMPORAL_CLUSTER", "DEPENDS_ON", "RELATED_ASSET"}
	for _, rt := range valid {
		if !relTypePattern.MatchString(rt) {
			t.Errorf("expected %q to be accepted", rt)
		}
	}

	invalid := []string{"", "shared_cwe", "SHARED-CWE", "X]->(a) DELETE", "1BAD"}
	for _, rt := range invalid {
		if relTypePattern.MatchString(rt) {
			t.Errorf("expected %q to be rejected", rt)
		}
	}
}
