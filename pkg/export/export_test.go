package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/models"
)

type fakeTestCaseLister struct {
	tests []*models.TestCase
	err   error
}

func (f *fakeTestCaseLister) ListByRequest(_ context.Context, _ string) ([]*models.TestCase, error) {
	return f.tests, f.err
}

func sampleTests() []*models.TestCase {
	return []*models.TestCase{
		{ID: "t1", Name: "login works", Code: "assert login()", ValidationStatus: models.ValidationPassed},
		{ID: "t2", Name: "dup of t1", Code: "assert login()", ValidationStatus: models.ValidationPassed, IsDuplicate: true, DuplicateOf: strPtr("t1")},
		{ID: "t3", Name: "blocked", Code: "eval(danger)", ValidationStatus: models.ValidationFailed},
	}
}

func strPtr(s string) *string { return &s }

func TestBundler_Build_JSON_ExcludesDuplicatesAndFailed(t *testing.T) {
	b := NewBundler(&fakeTestCaseLister{tests: sampleTests()})
	bundle, err := b.Build(context.Background(), "r1", FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", bundle.ContentType)

	var out []*models.TestCase
	require.NoError(t, json.Unmarshal(bundle.Data, &out))
	require.Len(t, out, 1)
	assert.Equal(t, "t1", out[0].ID)
}

func TestBundler_Build_YAML(t *testing.T) {
	b := NewBundler(&fakeTestCaseLister{tests: sampleTests()})
	bundle, err := b.Build(context.Background(), "r1", FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "application/x-yaml", bundle.ContentType)
	assert.Contains(t, string(bundle.Data), "login works")
}

func TestBundler_Build_Zip_OneEntryPerSurvivorPlusManifest(t *testing.T) {
	b := NewBundler(&fakeTestCaseLister{tests: sampleTests()})
	bundle, err := b.Build(context.Background(), "r1", FormatZip)
	require.NoError(t, err)
	assert.Equal(t, "application/zip", bundle.ContentType)

	zr, err := zip.NewReader(bytes.NewReader(bundle.Data), int64(len(bundle.Data)))
	require.NoError(t, err)
	assert.Len(t, zr.File, 2) // one survivor + manifest.json
}

func TestBundler_Build_NoSurvivorsReturnsNotFound(t *testing.T) {
	b := NewBundler(&fakeTestCaseLister{tests: []*models.TestCase{
		{ID: "t1", ValidationStatus: models.ValidationFailed},
	}})
	_, err := b.Build(context.Background(), "r1", FormatJSON)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestBundler_Build_UnknownFormat(t *testing.T) {
	b := NewBundler(&fakeTestCaseLister{tests: sampleTests()})
	_, err := b.Build(context.Background(), "r1", Format("xml"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
