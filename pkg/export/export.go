// Package export builds downloadable bundles of a request's surviving test
// cases (spec §6 `GET /tests/export`). "Surviving" means validation_status !=
// failed and is_duplicate == false (spec §3: "failed tests are persisted
// only for audit and excluded from export bundles" — duplicates are
// superseded by their canonical test and excluded for the same reason).
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/models"
)

// Format is a requested bundle encoding (spec §6: `format ∈ {zip,json,yaml}`).
type Format string

// Recognized export formats.
const (
	FormatZip  Format = "zip"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// testCaseLister is the subset of TestCaseRepository the Bundler needs.
type testCaseLister interface {
	ListByRequest(ctx context.Context, requestID string) ([]*models.TestCase, error)
}

// Bundler builds an export bundle for one request's test cases.
type Bundler struct {
	tests testCaseLister
}

// NewBundler constructs a Bundler.
func NewBundler(tests testCaseLister) *Bundler {
	return &Bundler{tests: tests}
}

// Bundle is a built export artifact ready to write to an HTTP response.
type Bundle struct {
	ContentType string
	Filename    string
	Data        []byte
}

// Build loads requestID's test cases, filters to the exportable subset, and
// encodes them in the requested format.
func (b *Bundler) Build(ctx context.Context, requestID string, format Format) (*Bundle, error) {
	all, err := b.tests.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("export: list test cases: %w", err)
	}

	survivors := exportable(all)
	if len(survivors) == 0 {
		return nil, fmt.Errorf("export: %w: no exportable tests for request %s", apperrors.ErrNotFound, requestID)
	}

	switch format {
	case FormatJSON:
		return buildJSON(requestID, survivors)
	case FormatYAML:
		return buildYAML(requestID, survivors)
	case FormatZip, "":
		return buildZip(requestID, survivors)
	default:
		return nil, fmt.Errorf("%w: unrecognized export format %q", apperrors.ErrInvalidInput, format)
	}
}

// exportable filters tests down to the non-duplicate, non-failed subset (spec §3).
func exportable(tests []*models.TestCase) []*models.TestCase {
	out := make([]*models.TestCase, 0, len(tests))
	for _, tc := range tests {
		if tc.IsDuplicate || tc.ValidationStatus == models.ValidationFailed {
			continue
		}
		out = append(out, tc)
	}
	return out
}

func buildJSON(requestID string, tests []*models.TestCase) (*Bundle, error) {
	data, err := json.MarshalIndent(tests, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal json: %w", err)
	}
	return &Bundle{
		ContentType: "application/json",
		Filename:    requestID + ".json",
		Data:        data,
	}, nil
}

func buildYAML(requestID string, tests []*models.TestCase) (*Bundle, error) {
	data, err := yaml.Marshal(tests)
	if err != nil {
		return nil, fmt.Errorf("export: marshal yaml: %w", err)
	}
	return &Bundle{
		ContentType: "application/x-yaml",
		Filename:    requestID + ".yaml",
		Data:        data,
	}, nil
}

// buildZip writes one source file per test case plus a manifest.json
// recording each file's metadata, name collisions disambiguated by index.
func buildZip(requestID string, tests []*models.TestCase) (*Bundle, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	manifest := make([]map[string]any, 0, len(tests))
	for i, tc := range tests {
		filename := fmt.Sprintf("%03d_%s%s", i+1, sanitizeName(tc.Name), extensionFor(tc))
		w, err := zw.Create(filename)
		if err != nil {
			return nil, fmt.Errorf("export: create zip entry %s: %w", filename, err)
		}
		if _, err := w.Write([]byte(tc.Code)); err != nil {
			return nil, fmt.Errorf("export: write zip entry %s: %w", filename, err)
		}
		manifest = append(manifest, map[string]any{
			"file":              filename,
			"id":                tc.ID,
			"name":              tc.Name,
			"test_type":         tc.TestType,
			"priority":          tc.Priority,
			"validation_status": tc.ValidationStatus,
			"covered_requirements": tc.CoveredRequirements,
		})
	}

	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal manifest: %w", err)
	}
	mw, err := zw.Create("manifest.json")
	if err != nil {
		return nil, fmt.Errorf("export: create manifest entry: %w", err)
	}
	if _, err := mw.Write(manifestJSON); err != nil {
		return nil, fmt.Errorf("export: write manifest entry: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("export: close zip writer: %w", err)
	}

	return &Bundle{
		ContentType: "application/zip",
		Filename:    requestID + ".zip",
		Data:        buf.Bytes(),
	}, nil
}

func extensionFor(tc *models.TestCase) string {
	if tc.TestType == models.TestCaseTypeManual {
		return ".md"
	}
	return ".txt"
}

func sanitizeName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "test"
	}
	return string(out)
}
