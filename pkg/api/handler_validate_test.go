package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(handler echo.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	e := echo.New()
	e.POST(path, handler)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestValidateTestsHandler(t *testing.T) {
	s := &Server{}

	t.Run("missing test_code returns 400", func(t *testing.T) {
		rec := postJSON(s.validateTestsHandler, "/validate/tests", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("valid code runs the validator", func(t *testing.T) {
		body := `{"test_code":"func TestFoo(t *testing.T) { assert.True(t, true) }"}`
		rec := postJSON(s.validateTestsHandler, "/validate/tests", body)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ValidateTestsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Status)
		assert.NotEmpty(t, resp.RiskLevel)
	})
}
