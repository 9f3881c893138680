package enrich

import "testing"

func TestParseJudgment(t *testing.T) {
	j, err := ParseJudgment(`{"result": "yes", "explanation": "same root cause"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !j.Affirmative() {
		t.Error("expected affirmative judgment")
	}
	if j.Explanation != "same root cause" {
		t.Errorf("explanation = %q", j.Explanation)
	}
}

func TestParseJudgmentStripsFences(t *testing.T) {
	raw := "```json\n{\"result\": \"no\", \"explanation\": \"unrelated\"}\n```"
	j, err := ParseJudgment(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.Affirmative() {
		t.Error("expected negative judgment")
	}
}

func TestParseJudgmentRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"I think they are related.",
		`{"explanation": "no result field"}`,
		`{"result": ""}`,
		"[1, 2, 3]",
	}
	for _, raw := range cases {
		if _, err := ParseJudgment(raw); err == nil {
			t.Errorf("expected parse failure for %q", raw)
		}
	}
}

func TestAffirmativeToleratesDecoration(t *testing.T) {
	cases := []struct {
		result string
		want   bool
	}{
		{"yes", true},
		{"Yes", true},
		{"YES.", true},
		{"  yes, they are related", true},
		{"no", false},
		{"No.", false},
		{"maybe", false},
		{"affirmative", false},
	}
	for _, tc := range cases {
		j := Judgment{Result: tc.result}
		if got := j.Affirmative(); got != tc.want {
			t.Errorf("Affirmative(%q) = %v, want %v", tc.result, got, tc.want)
		}
	}
}

func TestPairToolNamesAndEdges(t *testing.T) {
	for _, tool := range AllPairTools {
		if tool.Name() == "" {
			t.Errorf("tool %d has no name", int(tool))
		}
		if tool.RelType() == "" {
			t.Errorf("tool %s has no relationship type", tool.Name())
		}
	}
}

func TestSharedRemediationEdgeUsesRemediation(t *testing.T) {
	a := testFinding("f-1")
	b := testFinding("f-2")

	rel := ToolSharedRemediation.edge(a, b, Judgment{
		Result:      "yes",
		Remediation: "upgrade the shared library",
	})
	if rel.Remediation != "upgrade the shared library" {
		t.Errorf("remediation = %q", rel.Remediation)
	}
	if rel.Explanation != "" {
		t.Errorf("explanation should be empty, got %q", rel.Explanation)
	}

	// Explanation is the fallback annotation when remediation is absent.
	rel = ToolSharedRemediation.edge(a, b, Judgment{
		Result:      "yes",
		Explanation: "both stem from the same dependency",
	})
	if rel.Remediation != "both stem from the same dependency" {
		t.Errorf("fallback remediation = %q", rel.Remediation)
	}
}
