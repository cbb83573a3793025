package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testgenai/testgen/pkg/optimizer"
)

func TestOptimizeTestsHandler(t *testing.T) {
	s := &Server{optimizer: optimizer.NewOptimizer(fakeEmbedder{}, 0.9)}

	t.Run("empty tests returns 400", func(t *testing.T) {
		rec := postJSON(s.optimizeTestsHandler, "/optimize/tests", `{"tests":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("runs dedup and coverage over supplied tests", func(t *testing.T) {
		body := `{"tests":["func TestA(t *testing.T){}","func TestA(t *testing.T){}"],"requirements":["login works"]}`
		rec := postJSON(s.optimizeTestsHandler, "/optimize/tests", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp OptimizeTestsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.UniqueCount)
		assert.Len(t, resp.DuplicateOf, 1)
	})
}
