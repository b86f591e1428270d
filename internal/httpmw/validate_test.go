package httpmw

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetsDoc = `
openapi: 3.0.3
info:
  title: widgets
  version: "1"
paths:
  /v1/widgets:
    post:
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
              required: [name]
              properties:
                name:
                  type: string
      responses:
        "201":
          description: created
  /v1/widgets/{id}:
    get:
      parameters:
        - name: id
          in: path
          required: true
          schema:
            type: integer
      responses:
        "200":
          description: ok
`

func newTestValidator(t *testing.T) *RequestValidator {
	t.Helper()
	doc, err := openapi3.NewLoader().LoadFromData([]byte(widgetsDoc))
	require.NoError(t, err)
	v, err := NewRequestValidator(doc)
	require.NoError(t, err)
	return v
}

func TestRequestValidator_ValidRequestReachesHandler(t *testing.T) {
	var seen string
	h := newTestValidator(t).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/widgets", strings.NewReader(`{"name":"sprocket"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"name":"sprocket"}`, seen, "body is readable after validation")
}

func TestRequestValidator_InvalidBody(t *testing.T) {
	called := false
	h := newTestValidator(t).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/v1/widgets", strings.NewReader(`{"colour":"red"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "invalid_request", env["code"])
	assert.NotEmpty(t, env["message"])
	assert.Len(t, env, 2)
}

func TestRequestValidator_InvalidPathParam(t *testing.T) {
	h := newTestValidator(t).Middleware(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/widgets/abc", http.NoBody))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"invalid_request"`)
}

func TestRequestValidator_UnknownRoutePassesThrough(t *testing.T) {
	h := newTestValidator(t).Middleware(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/gadgets", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoadOpenAPI(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "openapi.yaml")
	require.NoError(t, os.WriteFile(good, []byte(widgetsDoc), 0o600))

	doc, err := LoadOpenAPI(context.Background(), good)
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/v1/widgets"))

	_, err = LoadOpenAPI(context.Background(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
