package generator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testgenai/testgen/pkg/apperrors"
	"github.com/testgenai/testgen/pkg/llm"
	"github.com/testgenai/testgen/pkg/models"
	"github.com/testgenai/testgen/pkg/recon"
)

type fakeClient struct {
	text   string
	err    error
	called bool
}

func (f *fakeClient) Call(context.Context, llm.Request) (*llm.Response, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text}, nil
}

func (f *fakeClient) GetEmbedding(context.Context, string) ([]float32, error) {
	return []float32{0, 0, 0}, nil
}

func TestLLMGenerator_Generate_SplitsTestsFromLLMOutput(t *testing.T) {
	client := &fakeClient{text: "def test_a():\n    assert True\n\ndef test_b():\n    assert True\n"}
	gen := NewLLMGenerator(client)

	tests, err := gen.Generate(context.Background(), Input{
		Requirements: []string{"user can log in"},
		TestType:     models.TestTypeAutomated,
		Recon:        &recon.Result{Endpoints: []recon.Endpoint{{Method: "GET", Path: "/health"}}},
	})
	require.NoError(t, err)
	require.Len(t, tests, 2)
	assert.True(t, client.called)
}

func TestLLMGenerator_Generate_EmptyOutputSignalsErrorCode(t *testing.T) {
	client := &fakeClient{text: "no recognizable tests here"}
	gen := NewLLMGenerator(client)

	_, err := gen.Generate(context.Background(), Input{Requirements: []string{"r1"}})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorCodeEmptyOutput, apperrors.CodeOf(err))
}

func TestLLMGenerator_Generate_PropagatesUpstreamError(t *testing.T) {
	client := &fakeClient{err: assert.AnError}
	gen := NewLLMGenerator(client)

	_, err := gen.Generate(context.Background(), Input{Requirements: []string{"r1"}})
	require.Error(t, err)
}
