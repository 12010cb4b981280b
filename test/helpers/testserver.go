package helpers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"commission_backend/internal/app"
	"commission_backend/internal/auth"
	"commission_backend/internal/models"
)

// TestServer is the whole application behind an httptest server.
type TestServer struct {
	Server *httptest.Server
	App    *app.App
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	cfg := TestConfig(t)

	a, err := app.New(cfg)
	require.NoError(t, err)
	ClearTables(t, a.DB)

	ts := &TestServer{Server: httptest.NewServer(a.Router), App: a}
	t.Cleanup(ts.Close)
	return ts
}

func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.App.Close()
}

// Token signs a token for userID with the server's secret.
func (ts *TestServer) Token(t *testing.T, userID string, role models.UserRole) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, role, ts.App.Config.JWT.Secret, time.Hour)
	require.NoError(t, err)
	return token
}

// SendRequest sends body as JSON and returns the response with its body read.
func (ts *TestServer) SendRequest(t *testing.T, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := ts.Server.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, raw
}

// DecodeJSON unmarshals a response body into v.
func DecodeJSON(t *testing.T, raw []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v), string(raw))
}
