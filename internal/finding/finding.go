package finding

import (
	"fmt"
	"strings"
)

// Finding is a normalized security-scanner result, mirroring the flat
// property bag stored on a :Finding node in Neo4j.
type Finding struct {
	FindingID string `json:"finding_id"`

	VulnTitle       string `json:"vuln_title"`
	VulnDescription string `json:"vuln_description"`
	VulnSeverity    string `json:"vuln_severity"`
	VulnVector      string `json:"vuln_vector"`
	VulnCWEID       string `json:"vuln_cwe_id,omitempty"`
	VulnOWASPID     string `json:"vuln_owasp_id,omitempty"`
	VulnCVEID       string `json:"vuln_cve_id,omitempty"`

	AssetType     string `json:"asset_type,omitempty"`
	AssetURL      string `json:"asset_url,omitempty"`
	AssetPath     string `json:"asset_path,omitempty"`
	AssetService  string `json:"asset_service,omitempty"`
	AssetCluster  string `json:"asset_cluster,omitempty"`
	AssetRepo     string `json:"asset_repo,omitempty"`
	AssetRegistry string `json:"asset_registry,omitempty"`
	AssetImage    string `json:"asset_image,omitempty"`

	PkgName      string `json:"pkg_name,omitempty"`
	PkgVersion   string `json:"pkg_version,omitempty"`
	PkgEcosystem string `json:"pkg_ecosystem,omitempty"`

	Scanner   string `json:"scanner"`
	ScanID    string `json:"scan_id"`
	Timestamp string `json:"timestamp"`

	Embedding []float32 `json:"embedding,omitempty"`
}

// Asset describes the affected resource inside a raw scanner record.
type Asset struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	Path     string `json:"path,omitempty"`
	Service  string `json:"service,omitempty"`
	Cluster  string `json:"cluster,omitempty"`
	Repo     string `json:"repo,omitempty"`
	Registry string `json:"registry,omitempty"`
	Image    string `json:"image,omitempty"`
}

// Vulnerability describes the weakness inside a raw scanner record.
type Vulnerability struct {
	CWEID       string `json:"cwe_id,omitempty"`
	OWASPID     string `json:"owasp_id,omitempty"`
	CVEID       string `json:"cve_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Vector      string `json:"vector"`
}

// Package describes the affected software package inside a raw scanner record.
type Package struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Ecosystem string `json:"ecosystem,omitempty"`
}

// Record is a raw scanner result as delivered by ingestion.
type Record struct {
	FindingID     string        `json:"finding_id"`
	Scanner       string        `json:"scanner"`
	ScanID        string        `json:"scan_id"`
	Timestamp     string        `json:"timestamp"`
	Vulnerability Vulnerability `json:"vulnerability"`
	Asset         Asset         `json:"asset"`
	Package       *Package      `json:"package,omitempty"`
}

// AssetID derives a deterministic asset identity from the asset type and
// its type-specific fields. Unrecognized types fall back to an identity
// scoped to the finding so distinct unknowns never collide.
func AssetID(a Asset, findingID string) string {
	switch a.Type {
	case "api_endpoint", "web_route":
		url := a.URL
		if url == "" {
			url = "unknown-url"
		}
		return fmt.Sprintf("%s::%s", a.Type, url)
	case "source_file":
		repo := a.Repo
		if repo == "" {
			repo = "unknown-repo"
		}
		path := a.Path
		if path == "" {
			path = "unknown-path"
		}
		return fmt.Sprintf("%s::%s::%s", a.Type, repo, path)
	case "container_image":
		image := a.Image
		if image == "" {
			image = "unknown-image"
		}
		if a.Registry != "" {
			return fmt.Sprintf("%s::%s::%s", a.Type, a.Registry, image)
		}
		return fmt.Sprintf("%s::%s", a.Type, image)
	default:
		return "unknown_asset::" + findingID
	}
}

// PromptSummary renders the finding's non-empty attributes as labeled lines
// for inclusion in an LLM comparison prompt. Empty fields are treated as
// absent and omitted entirely.
func (f *Finding) PromptSummary() string {
	var b strings.Builder
	write := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s = %s\n", label, value)
		}
	}
	write("ID", f.FindingID)
	write("Title", f.VulnTitle)
	write("Description", f.VulnDescription)
	write("Severity", f.VulnSeverity)
	write("Vector", f.VulnVector)
	write("CWE", f.VulnCWEID)
	write("OWASP", f.VulnOWASPID)
	write("CVE", f.VulnCVEID)
	write("Asset Type", f.AssetType)
	write("Asset URL", f.AssetURL)
	write("Asset Path", f.AssetPath)
	write("Asset Service", f.AssetService)
	write("Asset Cluster", f.AssetCluster)
	write("Asset Repo", f.AssetRepo)
	write("Asset Registry", f.AssetRegistry)
	write("Asset Image", f.AssetImage)
	write("Package", f.PkgName)
	write("Package Version", f.PkgVersion)
	write("Package Ecosystem", f.PkgEcosystem)
	write("Scanner", f.Scanner)
	write("Scan ID", f.ScanID)
	write("Timestamp", f.Timestamp)
	return strings.TrimRight(b.String(), "\n")
}

// EmbeddingText builds the text that is embedded for semantic search over
// findings. It mirrors the fields a human would read first.
func (f *Finding) EmbeddingText() string {
	lines := []string{
		"Finding ID: " + f.FindingID,
		"Title: " + f.VulnTitle,
		"Description: " + f.VulnDescription,
		"CWE: " + f.VulnCWEID,
		"Severity: " + f.VulnSeverity,
		"Vector: " + f.VulnVector,
		"Asset Type: " + f.AssetType,
		"Asset URL: " + f.AssetURL,
		"Service: " + f.AssetService,
		"Timestamp: " + f.Timestamp,
	}
	return strings.Join(lines, "\n")
}
