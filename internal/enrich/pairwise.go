package enrich

import (
	"fmt"

	"github.com/nidhogg/secgraph/internal/finding"
)

// PairTool enumerates the LLM-judged enrichment rules. The set is closed:
// dispatch goes through a switch, not a string-keyed registry, so a new
// tool cannot be added without a typed handler.
type PairTool int

const (
	ToolRootCause PairTool = iota
	ToolExploitTechnique
	ToolRelatedAsset
	ToolSemanticRelated
	ToolSharedRemediation
)

// AllPairTools is the default tool set for an enrichment run.
var AllPairTools = []PairTool{
	ToolRootCause,
	ToolExploitTechnique,
	ToolRelatedAsset,
	ToolSemanticRelated,
	ToolSharedRemediation,
}

// Name returns the tool's configuration name.
func (t PairTool) Name() string {
	switch t {
	case ToolRootCause:
		return "root_cause"
	case ToolExploitTechnique:
		return "exploit_technique"
	case ToolRelatedAsset:
		return "related_asset"
	case ToolSemanticRelated:
		return "semantic_related"
	case ToolSharedRemediation:
		return "shared_remediation"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// RelType returns the edge type this tool merges on a yes judgment.
func (t PairTool) RelType() finding.RelType {
	switch t {
	case ToolRootCause:
		return finding.RelCommonRootCause
	case ToolExploitTechnique:
		return finding.RelSharedExploitTechnique
	case ToolRelatedAsset:
		return finding.RelRelatedAsset
	case ToolSemanticRelated:
		return finding.RelSemanticallyRelated
	case ToolSharedRemediation:
		return finding.RelOverlappingRemediation
	default:
		return ""
	}
}

// question returns the yes/no question posed to the model, and the name of
// the annotation field it must fill in.
func (t PairTool) question() (question, annotation string) {
	switch t {
	case ToolRootCause:
		return "Do these two findings arise from the same underlying root cause, such as a shared misconfiguration or code pattern?", "explanation"
	case ToolExploitTechnique:
		return "Could these two findings be exploited using the same technique or attack method?", "explanation"
	case ToolRelatedAsset:
		return "Do these two findings affect the same asset or closely related assets, such as the same service, repository, or deployment?", "explanation"
	case ToolSemanticRelated:
		return "Are these two findings semantically related vulnerabilities, describing the same class of weakness?", "explanation"
	case ToolSharedRemediation:
		return "Could a single remediation or fix address both of these findings?", "remediation"
	default:
		return "", "explanation"
	}
}

// Prompt builds the natural-language comparison prompt for a finding pair.
// Null or empty fields are omitted from both summaries.
func (t PairTool) Prompt(a, b *finding.Finding) string {
	question, annotation := t.question()
	return fmt.Sprintf(`You are a security analyst comparing two vulnerability findings.

%s

Finding A:
%s

Finding B:
%s

Respond with strict JSON only, no markdown fences:
{"result": "yes" or "no", "%s": "one sentence"}`,
		question, a.PromptSummary(), b.PromptSummary(), annotation)
}

// edge converts an affirmative judgment into the relationship to merge.
func (t PairTool) edge(a, b *finding.Finding, j Judgment) finding.InferredRelationship {
	rel := finding.InferredRelationship{
		From: a.FindingID,
		To:   b.FindingID,
		Type: t.RelType(),
	}
	if t == ToolSharedRemediation {
		rel.Remediation = j.Remediation
		if rel.Remediation == "" {
			rel.Remediation = j.Explanation
		}
	} else {
		rel.Explanation = j.Explanation
	}
	return rel
}
