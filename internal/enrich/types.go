package enrich

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Judgment is the schema every pairwise tool expects back from the LLM.
// Exactly one of Explanation/Remediation is meaningful per tool.
type Judgment struct {
	Result      string `json:"result"`
	Explanation string `json:"explanation"`
	Remediation string `json:"remediation"`
}

// Affirmative reports whether the judgment is a yes. Models occasionally
// decorate the value ("Yes."), so a case-insensitive prefix match is used.
func (j Judgment) Affirmative() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(j.Result)), "yes")
}

var jsonFencePattern = regexp.MustCompile("```(?:json)?")

// ParseJudgment validates raw model output against the judgment schema.
// Anything that is not a JSON object with a result field is a parse
// failure; callers treat that as "no signal", never as a batch error.
func ParseJudgment(raw string) (Judgment, error) {
	clean := strings.TrimSpace(jsonFencePattern.ReplaceAllString(raw, ""))

	var j Judgment
	if err := json.Unmarshal([]byte(clean), &j); err != nil {
		return Judgment{}, fmt.Errorf("parse judgment: %w", err)
	}
	if j.Result == "" {
		return Judgment{}, fmt.Errorf("parse judgment: missing result field")
	}
	return j, nil
}

// Report summarizes one enrichment run.
type Report struct {
	Findings        int           `json:"findings"`
	GlobalToolsRun  int           `json:"global_tools_run"`
	GlobalFailures  []string      `json:"global_failures,omitempty"`
	PairsProcessed  int           `json:"pairs_processed"`
	ToolInvocations int           `json:"tool_invocations"`
	EdgesMerged     int           `json:"edges_merged"`
	ToolFailures    int           `json:"tool_failures"`
	Elapsed         time.Duration `json:"elapsed"`
}
