package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTestFunctions_Pytest(t *testing.T) {
	text := "import pytest\n\ndef test_login():\n    assert True\n\ndef test_logout():\n    assert True\n"
	tests := SplitTestFunctions(text)
	require.Len(t, tests, 2)
	assert.Contains(t, tests[0], "def test_login")
	assert.Contains(t, tests[1], "def test_logout")
	assert.NotContains(t, tests[0], "test_logout")
}

func TestSplitTestFunctions_Playwright(t *testing.T) {
	text := `test('loads homepage', async ({ page }) => {
  await page.goto('/');
});

test('submits form', async ({ page }) => {
  await page.click('#submit');
});`
	tests := SplitTestFunctions(text)
	require.Len(t, tests, 2)
	assert.Contains(t, tests[0], "loads homepage")
	assert.Contains(t, tests[1], "submits form")
}

func TestSplitTestFunctions_NoBoundaryReturnsNil(t *testing.T) {
	tests := SplitTestFunctions("just some prose, no test functions here")
	assert.Nil(t, tests)
}

func TestSplitTestFunctions_DiscardsLeadingCommentary(t *testing.T) {
	text := "Here are your tests:\n\ndef test_one():\n    assert 1 == 1\n"
	tests := SplitTestFunctions(text)
	require.Len(t, tests, 1)
	assert.NotContains(t, tests[0], "Here are your tests")
}
