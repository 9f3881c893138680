package enrich

import (
	"context"

	"github.com/nidhogg/secgraph/internal/finding"
)

// globalTool is a deterministic, graph-wide enrichment rule. Each rule is a
// single MERGE statement over all finding pairs where a shared-field
// predicate holds. The f1 < f2 ordering on finding_id prevents symmetric
// duplicates, and MERGE keeps reruns idempotent.
type globalTool struct {
	name    string
	relType finding.RelType
	cypher  string
}

var globalTools = []globalTool{
	{
		name:    "shared_cwe",
		relType: finding.RelSharedCWE,
		cypher: `
			MATCH (f1:Finding), (f2:Finding)
			WHERE f1.finding_id < f2.finding_id
			  AND f1.vuln_cwe_id IS NOT NULL AND f1.vuln_cwe_id <> ''
			  AND f1.vuln_cwe_id = f2.vuln_cwe_id
			MERGE (f1)-[r:SHARED_CWE]->(f2)
			SET r.explanation = 'Both findings share ' + f1.vuln_cwe_id`,
	},
	{
		name:    "shared_vector",
		relType: finding.RelSharedVector,
		cypher: `
			MATCH (f1:Finding), (f2:Finding)
			WHERE f1.finding_id < f2.finding_id
			  AND f1.vuln_vector IS NOT NULL AND f1.vuln_vector <> ''
			  AND f1.vuln_vector = f2.vuln_vector
			MERGE (f1)-[r:SHARED_VECTOR]->(f2)
			SET r.explanation = 'Both findings share attack vector ' + f1.vuln_vector`,
	},
	{
		name:    "shared_scanner",
		relType: finding.RelSharedScanner,
		cypher: `
			MATCH (f1:Finding), (f2:Finding)
			WHERE f1.finding_id < f2.finding_id
			  AND f1.scanner IS NOT NULL AND f1.scanner <> ''
			  AND f1.scanner = f2.scanner
			MERGE (f1)-[r:SHARED_SCANNER]->(f2)
			SET r.explanation = 'Both findings were discovered by ' + f1.scanner`,
	},
	{
		name:    "shared_package",
		relType: finding.RelSharedPackage,
		cypher: `
			MATCH (f1:Finding), (f2:Finding)
			WHERE f1.finding_id < f2.finding_id
			  AND f1.pkg_name IS NOT NULL AND f1.pkg_name <> ''
			  AND f1.pkg_name = f2.pkg_name
			MERGE (f1)-[r:SHARED_PACKAGE]->(f2)
			SET r.explanation = 'Both findings affect package ' + f1.pkg_name`,
	},
	{
		name:    "shared_asset",
		relType: finding.RelSharedAsset,
		cypher: `
			MATCH (f1:Finding)-[:AFFECTS]->(a:Asset)<-[:AFFECTS]-(f2:Finding)
			WHERE f1.finding_id < f2.finding_id
			MERGE (f1)-[r:SHARED_ASSET]->(f2)
			SET r.explanation = 'Both findings affect asset ' + a.id`,
	},
	{
		name:    "temporal_cluster",
		relType: finding.RelTemporalCluster,
		cypher: `
			MATCH (f1:Finding), (f2:Finding)
			WHERE f1.finding_id < f2.finding_id
			  AND f1.timestamp IS NOT NULL AND f2.timestamp IS NOT NULL
			  AND abs(duration.inSeconds(f1.timestamp, f2.timestamp).seconds) <= 86400
			MERGE (f1)-[r:TEMPORAL_CLUSTER]->(f2)
			SET r.explanation = 'Both findings were discovered within 24 hours of each other'`,
	},
}

// runGlobalTool executes one rule in its own transaction.
func (e *Engine) runGlobalTool(ctx context.Context, tool globalTool) error {
	return e.graph.Write(ctx, tool.cypher, nil)
}
