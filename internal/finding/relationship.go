package finding

// RelType names a typed edge between two findings. The set is open:
// enrichment variants have shipped with slightly different vocabularies,
// so consumers treat unknown values as data rather than errors.
type RelType string

const (
	// Global (deterministic) relationship types.
	RelSharedCWE       RelType = "SHARED_CWE"
	RelSharedVector    RelType = "SHARED_VECTOR"
	RelSharedScanner   RelType = "SHARED_SCANNER"
	RelSharedPackage   RelType = "SHARED_PACKAGE"
	RelSharedAsset     RelType = "SHARED_ASSET"
	RelTemporalCluster RelType = "TEMPORAL_CLUSTER"

	// Pairwise (LLM-judged) relationship types.
	RelCommonRootCause        RelType = "COMMON_ROOT_CAUSE"
	RelSharedExploitTechnique RelType = "SHARED_EXPLOIT_TECHNIQUE"
	RelRelatedAsset           RelType = "RELATED_ASSET"
	RelSemanticallyRelated    RelType = "SEMANTICALLY_RELATED_VULN"
	RelOverlappingRemediation RelType = "OVERLAPPING_REMEDIATION"
	RelDependsOn              RelType = "DEPENDS_ON"
)

// InferredRelationship is a directed, typed edge between two findings.
// Explanation carries the judgment rationale; Remediation is set instead
// for OVERLAPPING_REMEDIATION edges.
type InferredRelationship struct {
	From        string  `json:"from"`
	To          string  `json:"to"`
	Type        RelType `json:"type"`
	Explanation string  `json:"explanation,omitempty"`
	Remediation string  `json:"remediation,omitempty"`
}

// GraphSchema describes the graph to the LLM for intent classification and
// Cypher generation. Kept in one place so both prompts stay in sync with
// the ingestion schema.
const GraphSchema = `The graph contains **Finding** nodes. Each Finding node includes these fields:
- finding_id
- vuln_cve_id, vuln_cwe_id, vuln_owasp_id, vuln_title, vuln_severity, vuln_description, vuln_vector
- asset_type, asset_url, asset_service, asset_cluster, asset_path, asset_repo, asset_image, asset_registry
- pkg_ecosystem, pkg_name, pkg_version
- scanner, scan_id, timestamp

Valid relationships between findings:
- SHARED_CWE
- SHARED_VECTOR
- SHARED_SCANNER
- SHARED_PACKAGE
- SHARED_ASSET
- TEMPORAL_CLUSTER
- COMMON_ROOT_CAUSE
- SHARED_EXPLOIT_TECHNIQUE
- RELATED_ASSET
- SEMANTICALLY_RELATED_VULN
- OVERLAPPING_REMEDIATION
- DEPENDS_ON`
