package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	. "github.com/trezcool/bursar/apps/api/echo"
	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/finance"
	exportsvc "github.com/trezcool/bursar/services/export"
	testutil "github.com/trezcool/bursar/tests"
)

var (
	conf = &core.Config{
		AppName:   "Bursar",
		Env:       "TEST",
		TestMode:  true,
		SecretKey: "test-secret",
		Server: core.ServerConfig{
			DisableReqLogs:     true,
			JWTExpirationDelta: time.Hour,
		},
	}

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

func setup(t *testing.T) (*Server, *testutil.Env) {
	translator := core.NewTranslator()
	env := testutil.NewEnv(
		t,
		finance.Deps{Validate: finance.NewValidate(translator)},
		finance.Options{OpeningBalance: testutil.Dec("1000")},
	)
	srv := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     core.NopLogger{},
		FinanceSvc: env.Svc,
		Exporter:   exportsvc.XLSXExporter{},
		Translator: translator,
	})
	return srv, env
}

type httpErr struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
	wantErr  *httpErr
}

func getToken(t *testing.T, caller finance.Caller) string {
	token, err := GenerateToken(conf, NewClaims(conf, caller))
	require.NoError(t, err, "getToken()")
	return token
}

func newAuthRequest(t *testing.T, method, path, token string, body interface{}) (*http.Request, *httptest.ResponseRecorder) {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b), "encoding body")
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func do(t *testing.T, srv *Server, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(t, method, tt.path, tt.token, tt.body)
	srv.ServeHTTP(rec, req)
	return rec
}

// run executes tt and checks the status code, and the error body when one is expected.
func run(t *testing.T, srv *Server, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	rec := do(t, srv, tt)
	require.Equalf(t, tt.wantCode, rec.Code, "body: %s", rec.Body.String())
	if tt.wantErr != nil {
		var got httpErr
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		if tt.wantErr.Error != "" {
			require.Equal(t, tt.wantErr.Error, got.Error)
		}
		require.Equal(t, tt.wantErr.Kind, got.Kind)
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), "body: %s", rec.Body.String())
}
