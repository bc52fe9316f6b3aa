package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/defcheck/catalog"
	"github.com/c360studio/defcheck/contract"
	"github.com/c360studio/defcheck/orchestrator"
	"github.com/c360studio/defcheck/rules"
	"github.com/c360studio/defcheck/rules/builtin"
	"github.com/c360studio/defcheck/validation"
)

const verificatieText = "Proces waarbij identiteitsgegevens systematisch worden gecontroleerd tegen authentieke bronregistraties"

func setupRouter(t *testing.T, store Catalog) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if store == nil {
		snap, err := catalog.Default()
		require.NoError(t, err)
		store = catalog.NewStaticStore(snap)
	}
	reg := rules.NewRegistry()
	require.NoError(t, builtin.Register(reg))
	svc := validation.NewService(store, reg, nil, nil, validation.Options{}, nil)
	orch := orchestrator.New(svc, nil, orchestrator.Options{}, nil, nil)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
	return NewServer(orch, store, metrics, nil).Router()
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestValidate(t *testing.T) {
	r := setupRouter(t, nil)
	body := `{"begrip":"verificatie","text":"` + verificatieText + `","ontological_category":"proces","context":{"correlation_id":"http-1"}}`

	w := do(t, r, http.MethodPost, "/v1/validate", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, contract.ValidateJSON(contract.CurrentVersion, w.Body.Bytes()))
	var res contract.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.IsAcceptable)
	assert.Equal(t, "http-1", res.System.CorrelationID)
}

func TestValidate_Errors(t *testing.T) {
	r := setupRouter(t, nil)

	tests := []struct {
		name      string
		path      string
		body      string
		wantCode  int
		wantField string
	}{
		{"empty begrip", "/v1/validate", `{"begrip":"","text":"x"}`, http.StatusBadRequest, "begrip"},
		{"unknown profile", "/v1/validate", `{"begrip":"a","text":"b","context":{"profile":"nope"}}`, http.StatusBadRequest, "context.profile"},
		{"malformed json", "/v1/validate", `{"begrip":`, http.StatusBadRequest, ""},
		{"definition without text", "/v1/validate/definition", `{"definition":{"begrip":"a"}}`, http.StatusBadRequest, "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.wantField, resp.Field)
		})
	}
}

func TestValidateDefinition(t *testing.T) {
	r := setupRouter(t, nil)
	body := `{"definition":{"begrip":"verificatie","definitie":"` + verificatieText + `","ontologische_categorie":"proces"},"context":{"profile":"basis"}}`

	w := do(t, r, http.MethodPost, "/v1/validate/definition", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res contract.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.PassedRules, 6)
}

func TestBatch(t *testing.T) {
	r := setupRouter(t, nil)
	body := `{"max_concurrency":2,"items":[
		{"begrip":"a","text":"` + verificatieText + `"},
		{"begrip":"","text":"leeg"},
		{"begrip":"c","text":"` + verificatieText + `"}]}`

	w := do(t, r, http.MethodPost, "/v1/batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.False(t, resp.Results[0].Degraded())
	assert.True(t, resp.Results[1].Degraded())
	assert.Equal(t, contract.CodeBatchItem, resp.Results[1].System.Error.Code)
	assert.False(t, resp.Results[2].Degraded())
}

func TestCatalog(t *testing.T) {
	r := setupRouter(t, nil)

	w := do(t, r, http.MethodGet, "/v1/catalog", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp CatalogResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "1.0.0", resp.Version)
	assert.Equal(t, 17, resp.Count)
	assert.Equal(t, []string{"basis", "strikt", "structuur"}, resp.Profiles)

	w = do(t, r, http.MethodGet, "/v1/catalog?profile=structuur", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.Count)

	w = do(t, r, http.MethodGet, "/v1/catalog?profile=nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: 1.0.0
rules:
  - {code: ESS-01, category: essence, severity: mandatory, weight: 1.5}
`), 0o644))

	store := catalog.NewStore(catalog.FileSource{Path: path}, nil)
	_, err := store.Reload(context.Background())
	require.NoError(t, err)
	r := setupRouter(t, store)

	require.NoError(t, os.WriteFile(path, []byte(`version: 1.1.0
rules:
  - {code: ESS-01, category: essence, severity: mandatory, weight: 1.5}
  - {code: STR-01, category: structure, severity: mandatory, weight: 1.5}
`), 0o644))

	w := do(t, r, http.MethodPost, "/v1/catalog/reload", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp ReloadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "1.1.0", resp.Version)
	assert.Equal(t, 2, resp.RuleCount)

	require.NoError(t, os.WriteFile(path, []byte("version: nope\n"), 0o644))
	w = do(t, r, http.MethodPost, "/v1/catalog/reload", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// The previous snapshot stays active.
	w = do(t, r, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "1.1.0", health.CatalogVersion)
}

func TestSchema(t *testing.T) {
	r := setupRouter(t, nil)

	w := do(t, r, http.MethodGet, "/v1/schema/"+contract.CurrentVersion, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/schema+json", w.Header().Get("Content-Type"))
	assert.True(t, json.Valid(w.Body.Bytes()))

	w = do(t, r, http.MethodGet, "/v1/schema/9.9.9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r := setupRouter(t, nil)

	w := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# metrics")
}

func TestHealth_NoCatalog(t *testing.T) {
	store := catalog.NewStore(catalog.EmbeddedSource{}, nil)
	r := setupRouter(t, store)

	w := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type cancelledValidator struct{ Validator }

func (cancelledValidator) Validate(context.Context, contract.Request) (*contract.Result, error) {
	return nil, context.Canceled
}

func TestValidate_CancelledIs503(t *testing.T) {
	gin.SetMode(gin.TestMode)
	snap, err := catalog.Default()
	require.NoError(t, err)
	r := NewServer(cancelledValidator{}, catalog.NewStaticStore(snap), nil, nil).Router()

	w := do(t, r, http.MethodPost, "/v1/validate", `{"begrip":"a","text":"b"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
