package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nidhogg/secgraph/internal/finding"
)

// cypherReply is the JSON wrapper every query-translation prompt requests.
type cypherReply struct {
	Cypher string `json:"cypher"`
}

// ParseCypher extracts the generated query from raw model output. Any parse
// failure or missing key yields an empty query, which callers must treat as
// "no results" rather than an error.
func ParseCypher(raw string) string {
	clean := strings.TrimSpace(intentFencePattern.ReplaceAllString(raw, ""))
	var reply cypherReply
	if err := json.Unmarshal([]byte(clean), &reply); err != nil {
		return ""
	}
	return strings.TrimSpace(reply.Cypher)
}

// translatePrompt builds the query-translation prompt for the given intent.
// All three graph-search strategies share the schema context; the semantic
// variant additionally pins the query to simple retrieval clauses.
func translatePrompt(intent Intent, message string) string {
	switch intent {
	case IntentSemanticGraphSearch:
		return fmt.Sprintf(`You are an expert Cypher assistant for a Neo4j database of vulnerability findings.

%s

Your task is:
1. Convert the user message into a **simple, executable Cypher query**.
2. Only use **MATCH**, **WHERE**, **RETURN** clauses. Avoid procedures, APOC, or custom tools.
3. Do **not invent node types, relationships, or indexes**.
4. Always use the label `+"`:Finding`"+`.
5. Only return a **JSON object** in this format:
{ "cypher": "MATCH ... RETURN ..." }

User message: "%s"`, finding.GraphSchema, message)

	case IntentSpecificGraphSearch:
		return fmt.Sprintf(`You are an expert Cypher assistant for a Neo4j database of vulnerability findings.

%s

Based on the user's message, generate a simple read-only Cypher query that retrieves the whole Findings and/or relationships that can then be analyzed.

User message: "%s"

Respond in strict JSON without fences: { "cypher": "MATCH ... RETURN ..." }`, finding.GraphSchema, message)

	default: // general_graph_search
		return fmt.Sprintf(`You are an expert Cypher assistant for a Neo4j database of vulnerability findings.

%s

Based on the user's message, generate a simple read-only Cypher query that retrieves the Findings and/or relationships and all the data that can then be analyzed.

User message: "%s"

Respond in strict JSON without fences: { "cypher": "MATCH ... RETURN ..." }`, finding.GraphSchema, message)
	}
}
