package finding

import (
	"strings"
	"testing"
)

func TestAssetID(t *testing.T) {
	cases := []struct {
		name      string
		asset     Asset
		findingID string
		want      string
	}{
		{
			name:  "api endpoint",
			asset: Asset{Type: "api_endpoint", URL: "https://api.example.com/v1/users"},
			want:  "api_endpoint::https://api.example.com/v1/users",
		},
		{
			name:  "web route",
			asset: Asset{Type: "web_route", URL: "https://example.com/login"},
			want:  "web_route::https://example.com/login",
		},
		{
			name:  "api endpoint without url",
			asset: Asset{Type: "api_endpoint"},
			want:  "api_endpoint::unknown-url",
		},
		{
			name:  "source file",
			asset: Asset{Type: "source_file", Repo: "org/payments", Path: "src/db.go"},
			want:  "source_file::org/payments::src/db.go",
		},
		{
			name:  "container image with registry",
			asset: Asset{Type: "container_image", Registry: "ghcr.io", Image: "payments:1.2"},
			want:  "container_image::ghcr.io::payments:1.2",
		},
		{
			name:  "container image without registry",
			asset: Asset{Type: "container_image", Image: "payments:1.2"},
			want:  "container_image::payments:1.2",
		},
		{
			name:      "unknown type falls back to finding scope",
			asset:     Asset{Type: "satellite"},
			findingID: "f-42",
			want:      "unknown_asset::f-42",
		},
		{
			name:      "empty type falls back to finding scope",
			asset:     Asset{},
			findingID: "f-7",
			want:      "unknown_asset::f-7",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AssetID(tc.asset, tc.findingID)
			if got != tc.want {
				t.Errorf("AssetID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAssetIDUnknownsNeverCollide(t *testing.T) {
	a := AssetID(Asset{Type: "weird"}, "f-1")
	b := AssetID(Asset{Type: "weird"}, "f-2")
	if a == b {
		t.Errorf("distinct findings with unknown assets collided: %q", a)
	}
}

func TestPromptSummaryOmitsEmptyFields(t *testing.T) {
	f := &Finding{
		FindingID:    "f-1",
		VulnTitle:    "SQL Injection",
		VulnSeverity: "critical",
		Scanner:      "zap",
	}

	summary := f.PromptSummary()
	if !strings.Contains(summary, "ID = f-1") {
		t.Errorf("summary missing finding id:\n%s", summary)
	}
	if !strings.Contains(summary, "Title = SQL Injection") {
		t.Errorf("summary missing title:\n%s", summary)
	}
	if strings.Contains(summary, "CWE") {
		t.Errorf("summary should omit empty CWE:\n%s", summary)
	}
	if strings.Contains(summary, "Package") {
		t.Errorf("summary should omit empty package fields:\n%s", summary)
	}
	if strings.HasSuffix(summary, "\n") {
		t.Error("summary has trailing newline")
	}
}

func TestEmbeddingTextIncludesCoreFields(t *testing.T) {
	f := &Finding{
		FindingID: "f-9",
		VulnTitle: "XSS in search box",
		VulnCWEID: "CWE-79",
		AssetURL:  "https://example.com/search",
		AssetType: "web_route",
		Timestamp: "2025-03-01T10:00:00Z",
	}

	text := f.EmbeddingText()
	for _, want := range []string{"f-9", "XSS in search box", "CWE-79", "https://example.com/search"} {
		if !strings.Contains(text, want) {
			t.Errorf("embedding text missing %q:\n%s", want, text)
		}
	}
}
