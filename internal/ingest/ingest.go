package ingest

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/nidhogg/secgraph/internal/finding"
	"github.com/nidhogg/secgraph/internal/graph"
)

// Ingester merges raw scanner records into the findings graph. Each record
// becomes a Finding node plus Vulnerability, Asset, and optional Package
// neighbors; MERGE keeps re-ingestion idempotent.
type Ingester struct {
	store  *graph.Store
	logger *zap.Logger
}

// New creates an ingester.
func New(store *graph.Store, logger *zap.Logger) *Ingester {
	return &Ingester{store: store, logger: logger}
}

// Report summarizes one ingestion run.
type Report struct {
	Ingested int      `json:"ingested"`
	Failed   []string `json:"failed,omitempty"`
}

// Run ingests every record, one transaction per record. A failed record is
// logged and skipped; the batch continues with the remaining ones.
func (i *Ingester) Run(ctx context.Context, records []finding.Record) *Report {
	report := &Report{}
	for _, rec := range records {
		if err := i.ingestOne(ctx, rec); err != nil {
			i.logger.Warn("record ingestion failed",
				zap.String("finding_id", rec.FindingID), zap.Error(err))
			report.Failed = append(report.Failed, rec.FindingID)
			continue
		}
		report.Ingested++
	}
	i.logger.Info("ingestion finished",
		zap.Int("ingested", report.Ingested), zap.Int("failed", len(report.Failed)))
	return report
}

func (i *Ingester) ingestOne(ctx context.Context, rec finding.Record) error {
	return i.store.WriteTx(ctx, func(tx neo4j.ManagedTransaction) error {
		v := rec.Vulnerability

		// Finding node carries the full flat property bag so retrieval
		// queries never need to join.
		_, err := tx.Run(ctx, `
			MERGE (f:Finding {finding_id: $finding_id})
			SET f.scanner          = $scanner,
			    f.scan_id          = $scan_id,
			    f.timestamp        = datetime($timestamp),
			    f.vuln_title       = $title,
			    f.vuln_description = $description,
			    f.vuln_severity    = $severity,
			    f.vuln_vector      = $vector,
			    f.vuln_cwe_id      = $cwe_id,
			    f.vuln_owasp_id    = $owasp_id,
			    f.vuln_cve_id      = $cve_id,
			    f.asset_type       = $asset_type,
			    f.asset_url        = $asset_url,
			    f.asset_path       = $asset_path,
			    f.asset_service    = $asset_service,
			    f.asset_cluster    = $asset_cluster,
			    f.asset_repo       = $asset_repo,
			    f.asset_registry   = $asset_registry,
			    f.asset_image      = $asset_image,
			    f.pkg_name         = $pkg_name,
			    f.pkg_version      = $pkg_version,
			    f.pkg_ecosystem    = $pkg_ecosystem`,
			map[string]any{
				"finding_id":     rec.FindingID,
				"scanner":        rec.Scanner,
				"scan_id":        rec.ScanID,
				"timestamp":      rec.Timestamp,
				"title":          v.Title,
				"description":    v.Description,
				"severity":       v.Severity,
				"vector":         v.Vector,
				"cwe_id":         v.CWEID,
				"owasp_id":       v.OWASPID,
				"cve_id":         v.CVEID,
				"asset_type":     rec.Asset.Type,
				"asset_url":      rec.Asset.URL,
				"asset_path":     rec.Asset.Path,
				"asset_service":  rec.Asset.Service,
				"asset_cluster":  rec.Asset.Cluster,
				"asset_repo":     rec.Asset.Repo,
				"asset_registry": rec.Asset.Registry,
				"asset_image":    rec.Asset.Image,
				"pkg_name":       pkgField(rec.Package, func(p *finding.Package) string { return p.Name }),
				"pkg_version":    pkgField(rec.Package, func(p *finding.Package) string { return p.Version }),
				"pkg_ecosystem":  pkgField(rec.Package, func(p *finding.Package) string { return p.Ecosystem }),
			})
		if err != nil {
			return err
		}

		_, err = tx.Run(ctx, `
			MATCH (f:Finding {finding_id: $finding_id})
			MERGE (v:Vulnerability {cwe_id: $cwe_id, title: $title})
			ON CREATE SET
				v.owasp_id    = $owasp_id,
				v.cve_id      = $cve_id,
				v.severity    = $severity,
				v.description = $description,
				v.vector      = $vector
			MERGE (f)-[:HAS_VULNERABILITY]->(v)`,
			map[string]any{
				"finding_id":  rec.FindingID,
				"cwe_id":      v.CWEID,
				"title":       v.Title,
				"owasp_id":    v.OWASPID,
				"cve_id":      v.CVEID,
				"severity":    v.Severity,
				"description": v.Description,
				"vector":      v.Vector,
			})
		if err != nil {
			return err
		}

		_, err = tx.Run(ctx, `
			MATCH (f:Finding {finding_id: $finding_id})
			MERGE (a:Asset {id: $asset_id})
			ON CREATE SET
				a.type     = $type,
				a.url      = $url,
				a.path     = $path,
				a.service  = $service,
				a.cluster  = $cluster,
				a.repo     = $repo,
				a.registry = $registry,
				a.image    = $image
			MERGE (f)-[:AFFECTS]->(a)`,
			map[string]any{
				"finding_id": rec.FindingID,
				"asset_id":   finding.AssetID(rec.Asset, rec.FindingID),
				"type":       rec.Asset.Type,
				"url":        rec.Asset.URL,
				"path":       rec.Asset.Path,
				"service":    rec.Asset.Service,
				"cluster":    rec.Asset.Cluster,
				"repo":       rec.Asset.Repo,
				"registry":   rec.Asset.Registry,
				"image":      rec.Asset.Image,
			})
		if err != nil {
			return err
		}

		if rec.Package != nil && rec.Package.Name != "" {
			_, err = tx.Run(ctx, `
				MATCH (f:Finding {finding_id: $finding_id})
				MERGE (p:Package {name: $name, version: $version})
				ON CREATE SET p.ecosystem = $ecosystem
				MERGE (f)-[:CONTAINS]->(p)`,
				map[string]any{
					"finding_id": rec.FindingID,
					"name":       rec.Package.Name,
					"version":    rec.Package.Version,
					"ecosystem":  rec.Package.Ecosystem,
				})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func pkgField(p *finding.Package, get func(*finding.Package) string) string {
	if p == nil {
		return ""
	}
	return get(p)
}
