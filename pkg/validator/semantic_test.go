package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckSemantic_CompleteMetadataAndAssertionPasses(t *testing.T) {
	source := `
# feature: login
# story: user logs in
# title: valid credentials succeed
# severity: high
def test_login():
    assert login("a", "b") == True
`
	issues, hasMetadata := checkSemantic(source)
	assert.Empty(t, issues)
	assert.True(t, hasMetadata)
}

func TestCheckSemantic_MissingMetadataIsWarningNotError(t *testing.T) {
	issues, hasMetadata := checkSemantic("def test_x():\n    assert True\n")
	assert.False(t, hasMetadata)
	require.NotEmpty(t, issues)
	assert.Contains(t, issues, "missing feature metadata")
}

func TestCheckSemantic_MissingAssertionIsFlagged(t *testing.T) {
	source := "# feature: f\n# story: s\n# title: t\n# severity: low\ndef test_x():\n    pass\n"
	issues, _ := checkSemantic(source)
	assert.Contains(t, issues, "no assertion-like construct found")
}
