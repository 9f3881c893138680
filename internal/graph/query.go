package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyQuery is returned when a caller submits an empty retrieval query.
// The agent treats this as "no results", not as a failure.
var ErrEmptyQuery = fmt.Errorf("empty query")

var fencePattern = regexp.MustCompile("```(?:cypher)?")

// writeClausePattern matches Cypher keywords that mutate the graph. The
// word boundaries matter: in this schema SET occurs inside identifiers
// like asset_url, and an alias such as "AS asset" must stay a valid read.
var writeClausePattern = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP|CALL)\b`)

// SanitizeReadQuery strips Markdown fences from an LLM-generated query and
// rejects anything that is not a pure retrieval statement.
func SanitizeReadQuery(cypher string) (string, error) {
	clean := strings.TrimSpace(fencePattern.ReplaceAllString(cypher, ""))
	if clean == "" {
		return "", ErrEmptyQuery
	}

	if kw := writeClausePattern.FindString(clean); kw != "" {
		return "", fmt.Errorf("query contains write clause %q", strings.ToUpper(kw))
	}
	return clean, nil
}

// RunReadQuery sanitizes and executes an LLM-generated retrieval query.
// An empty query yields no rows and no error.
func (s *Store) RunReadQuery(ctx context.Context, cypher string) ([]map[string]any, error) {
	clean, err := SanitizeReadQuery(cypher)
	if err != nil {
		if err == ErrEmptyQuery {
			return nil, nil
		}
		return nil, err
	}
	return s.Read(ctx, clean, nil)
}

// GraphNode is an exported node for visualization clients.
type GraphNode struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// GraphRel is an exported relationship for visualization clients.
type GraphRel struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Start      string         `json:"start"`
	End        string         `json:"end"`
	Properties map[string]any `json:"properties"`
}

// GraphExport bundles the whole graph for the visualization endpoint.
type GraphExport struct {
	Nodes []GraphNode `json:"nodes"`
	Rels  []GraphRel  `json:"rels"`
}

// Export returns every node and relationship in the graph. Embeddings are
// stripped from node properties to keep the payload reasonable.
func (s *Store) Export(ctx context.Context) (*GraphExport, error) {
	rows, err := s.Read(ctx, `
		MATCH (n)-[r]->(m)
		RETURN
			elementId(n) AS nid, labels(n) AS nlabels, properties(n) AS nprops,
			elementId(m) AS mid, labels(m) AS mlabels, properties(m) AS mprops,
			elementId(r) AS rid, type(r) AS rtype, properties(r) AS rprops`, nil)
	if err != nil {
		return nil, fmt.Errorf("export graph: %w", err)
	}

	nodes := make(map[string]GraphNode)
	export := &GraphExport{}

	addNode := func(idKey, labelKey, propKey string, row map[string]any) {
		id := asString(row[idKey])
		if _, seen := nodes[id]; seen {
			return
		}
		props, _ := row[propKey].(map[string]any)
		delete(props, "embedding")
		var labels []string
		if raw, ok := row[labelKey].([]any); ok {
			for _, l := range raw {
				labels = append(labels, asString(l))
			}
		}
		node := GraphNode{ID: id, Labels: labels, Properties: props}
		nodes[id] = node
		export.Nodes = append(export.Nodes, node)
	}

	for _, row := range rows {
		addNode("nid", "nlabels", "nprops", row)
		addNode("mid", "mlabels", "mprops", row)
		props, _ := row["rprops"].(map[string]any)
		export.Rels = append(export.Rels, GraphRel{
			ID:         asString(row["rid"]),
			Type:       asString(row["rtype"]),
			Start:      asString(row["nid"]),
			End:        asString(row["mid"]),
			Properties: props,
		})
	}
	return export, nil
}
