package graph

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/finding"
)

// findingReturnClause projects every Finding property into a flat row.
const findingReturnClause = `
	f.finding_id         AS finding_id,
	f.vuln_title         AS vuln_title,
	f.vuln_description   AS vuln_description,
	f.vuln_severity      AS vuln_severity,
	f.vuln_vector        AS vuln_vector,
	f.vuln_owasp_id      AS vuln_owasp_id,
	f.vuln_cwe_id        AS vuln_cwe_id,
	f.vuln_cve_id        AS vuln_cve_id,
	f.asset_type         AS asset_type,
	f.asset_url          AS asset_url,
	f.asset_path         AS asset_path,
	f.asset_service      AS asset_service,
	f.asset_cluster      AS asset_cluster,
	f.asset_repo         AS asset_repo,
	f.asset_registry     AS asset_registry,
	f.asset_image        AS asset_image,
	f.pkg_name           AS pkg_name,
	f.pkg_version        AS pkg_version,
	f.pkg_ecosystem      AS pkg_ecosystem,
	f.scanner            AS scanner,
	f.scan_id            AS scan_id,
	toString(f.timestamp) AS timestamp`

// FetchFindings returns every Finding node as a flat struct, ordered by id
// so pairwise iteration is deterministic.
func (s *Store) FetchFindings(ctx context.Context) ([]*finding.Finding, error) {
	rows, err := s.Read(ctx,
		`MATCH (f:Finding) RETURN`+findingReturnClause+` ORDER BY f.finding_id`, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch findings: %w", err)
	}

	findings := make([]*finding.Finding, 0, len(rows))
	for _, row := range rows {
		findings = append(findings, rowToFinding(row))
	}
	return findings, nil
}

// FetchFindingsWithEmbeddings returns findings carrying an embedding vector.
// Findings without one are excluded.
func (s *Store) FetchFindingsWithEmbeddings(ctx context.Context) ([]*finding.Finding, error) {
	rows, err := s.Read(ctx,
		`MATCH (f:Finding) WHERE f.embedding IS NOT NULL
		 RETURN f.embedding AS embedding,`+findingReturnClause+` ORDER BY f.finding_id`, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch findings with embeddings: %w", err)
	}

	findings := make([]*finding.Finding, 0, len(rows))
	for _, row := range rows {
		f := rowToFinding(row)
		f.Embedding = asFloat32s(row["embedding"])
		findings = append(findings, f)
	}
	return findings, nil
}

// FindingIDsWithoutEmbedding returns ids of findings that still need an
// embedding populated.
func (s *Store) FindingIDsWithoutEmbedding(ctx context.Context) ([]*finding.Finding, error) {
	rows, err := s.Read(ctx,
		`MATCH (f:Finding) WHERE f.embedding IS NULL RETURN`+findingReturnClause, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch unembedded findings: %w", err)
	}
	findings := make([]*finding.Finding, 0, len(rows))
	for _, row := range rows {
		findings = append(findings, rowToFinding(row))
	}
	return findings, nil
}

// SetEmbedding stores an embedding vector on a Finding node.
func (s *Store) SetEmbedding(ctx context.Context, findingID string, vector []float32) error {
	vec := make([]float64, len(vector))
	for i, v := range vector {
		vec[i] = float64(v)
	}
	return s.Write(ctx,
		`MATCH (f:Finding {finding_id: $id}) SET f.embedding = $embedding`,
		map[string]any{"id": findingID, "embedding": vec})
}

// relTypePattern guards the relationship type before it is interpolated
// into the MERGE statement; Cypher cannot parameterize relationship types.
var relTypePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// MergeRelationship merges a typed edge between two findings. Merge-on-match
// keeps reruns idempotent at the edge level; annotations are updated in place.
func (s *Store) MergeRelationship(ctx context.Context, rel finding.InferredRelationship) error {
	if !relTypePattern.MatchString(string(rel.Type)) {
		return fmt.Errorf("invalid relationship type %q", rel.Type)
	}

	cypher := fmt.Sprintf(
		`MATCH (a:Finding {finding_id: $from}), (b:Finding {finding_id: $to})
		 MERGE (a)-[r:%s]->(b)`, rel.Type)
	params := map[string]any{"from": rel.From, "to": rel.To}

	if rel.Explanation != "" {
		cypher += ` SET r.explanation = $explanation`
		params["explanation"] = rel.Explanation
	}
	if rel.Remediation != "" {
		cypher += ` SET r.remediation = $remediation`
		params["remediation"] = rel.Remediation
	}

	if err := s.Write(ctx, cypher, params); err != nil {
		return fmt.Errorf("merge %s %s->%s: %w", rel.Type, rel.From, rel.To, err)
	}
	s.logger.Debug("merged relationship",
		zap.String("type", string(rel.Type)),
		zap.String("from", rel.From),
		zap.String("to", rel.To))
	return nil
}

// CountRelationships returns the number of edges of the given type.
func (s *Store) CountRelationships(ctx context.Context, relType finding.RelType) (int64, error) {
	if !relTypePattern.MatchString(string(relType)) {
		return 0, fmt.Errorf("invalid relationship type %q", relType)
	}
	rows, err := s.Read(ctx,
		fmt.Sprintf(`MATCH (:Finding)-[r:%s]->(:Finding) RETURN count(r) AS n`, relType), nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, _ := rows[0]["n"].(int64)
	return n, nil
}

// rowToFinding maps a projected row onto the flat Finding struct. Null
// properties come back as nil and map to empty strings.
func rowToFinding(row map[string]any) *finding.Finding {
	return &finding.Finding{
		FindingID:       asString(row["finding_id"]),
		VulnTitle:       asString(row["vuln_title"]),
		VulnDescription: asString(row["vuln_description"]),
		VulnSeverity:    asString(row["vuln_severity"]),
		VulnVector:      asString(row["vuln_vector"]),
		VulnOWASPID:     asString(row["vuln_owasp_id"]),
		VulnCWEID:       asString(row["vuln_cwe_id"]),
		VulnCVEID:       asString(row["vuln_cve_id"]),
		AssetType:       asString(row["asset_type"]),
		AssetURL:        asString(row["asset_url"]),
		AssetPath:       asString(row["asset_path"]),
		AssetService:    asString(row["asset_service"]),
		AssetCluster:    asString(row["asset_cluster"]),
		AssetRepo:       asString(row["asset_repo"]),
		AssetRegistry:   asString(row["asset_registry"]),
		AssetImage:      asString(row["asset_image"]),
		PkgName:         asString(row["pkg_name"]),
		PkgVersion:      asString(row["pkg_version"]),
		PkgEcosystem:    asString(row["pkg_ecosystem"]),
		Scanner:         asString(row["scanner"]),
		ScanID:          asString(row["scan_id"]),
		Timestamp:       asString(row["timestamp"]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asFloat32s converts a Neo4j list property into a float32 vector.
func asFloat32s(v any) []float32 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(list))
	for _, e := range list {
		if f, ok := e.(float64); ok {
			out = append(out, float32(f))
		}
	}
	return out
}
