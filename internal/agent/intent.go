package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/nidhogg/secgraph/internal/finding"
)

// Intent is the classified retrieval strategy for a user turn.
type Intent string

const (
	IntentChatOnly            Intent = "chat_only"
	IntentGeneralGraphSearch  Intent = "general_graph_search"
	IntentSpecificGraphSearch Intent = "specific_graph_search"
	IntentSemanticGraphSearch Intent = "semantic_graph_search"
)

// defaultReason is the deterministic rationale attached when classification
// output cannot be used and the turn falls back to plain chat.
const defaultReason = "Defaulted to chat"

// Classification is the parsed intent decision.
type Classification struct {
	Action Intent `json:"action"`
	Reason string `json:"reason"`
}

var intentFencePattern = regexp.MustCompile("```(?:json)?")

// ParseClassification validates raw classification output. Malformed JSON,
// a missing action, or an unknown action all resolve to chat_only with the
// deterministic default reason; the fallback is a safety net, not an error.
func ParseClassification(raw string) Classification {
	fallback := Classification{Action: IntentChatOnly, Reason: defaultReason}

	clean := strings.TrimSpace(intentFencePattern.ReplaceAllString(raw, ""))
	var c Classification
	if err := json.Unmarshal([]byte(clean), &c); err != nil {
		return fallback
	}

	switch c.Action {
	case IntentChatOnly, IntentGeneralGraphSearch, IntentSpecificGraphSearch, IntentSemanticGraphSearch:
		if c.Reason == "" {
			c.Reason = defaultReason
		}
		return c
	default:
		return fallback
	}
}

// classifyPrompt builds the intent classification prompt from the latest
// user message and the graph schema description.
func classifyPrompt(message string) string {
	return fmt.Sprintf(`You are an intent classification assistant for a graph of vulnerability findings.

%s

Your task is to classify the user's intent into **one of the following tools**:

TOOLS:
1. 'chat_only' - General discussion or vague questions (e.g., "what is a CVE?")
2. 'general_graph_search' - The user asks general questions about the graph or relationships
3. 'specific_graph_search' - The user refers to **known fields** like CVE ID, CWE ID, severity, package name, or asset URL
4. 'semantic_graph_search' - The user asks about general vulnerability types (e.g., "SQL injection", "race condition") that are not matched by structured fields

### Examples:

User message: "What is CVE-2023-12345?"
-> { "action": "specific_graph_search", "reason": "Recognized CVE ID" }

User message: "What is the most common vulnerability?"
-> { "action": "general_graph_search", "reason": "General question about the graph" }

User message: "Show me all SQL injection findings"
-> { "action": "semantic_graph_search", "reason": "SQL injection likely in description or vector embedding" }

User message: "What is OWASP?"
-> { "action": "chat_only", "reason": "General discussion, no query needed" }

Now classify this message:
"%s"

Respond **strictly in JSON**: { "action": "tool_name", "reason": "brief explanation" }`,
		finding.GraphSchema, message)
}
