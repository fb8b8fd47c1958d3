// ABOUTME: Tests for the admin token gate
// ABOUTME: Covers token precedence, misconfiguration and body preservation

package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "jobs-admin-token"

func TestAssertAdmin(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		body       string
		wantOK     bool
		wantStatus int
	}{
		{name: "bearer header", headers: map[string]string{"Authorization": "Bearer " + testAdminToken}, wantOK: true, wantStatus: 200},
		{name: "lowercase bearer", headers: map[string]string{"Authorization": "bearer " + testAdminToken}, wantOK: true, wantStatus: 200},
		{name: "custom header", headers: map[string]string{AdminTokenHeader: testAdminToken}, wantOK: true, wantStatus: 200},
		{name: "body token", body: `{"token":"` + testAdminToken + `","slug":"cfo"}`, wantOK: true, wantStatus: 200},
		{name: "no token", wantStatus: 401},
		{name: "wrong bearer", headers: map[string]string{"Authorization": "Bearer nope"}, wantStatus: 401},
		{name: "basic auth scheme", headers: map[string]string{"Authorization": "Basic " + testAdminToken}, wantStatus: 401},
		{name: "wrong body token", body: `{"token":"nope"}`, wantStatus: 401},
		{name: "body that is not json", body: testAdminToken, wantStatus: 401},
		{name: "prefix of secret", headers: map[string]string{AdminTokenHeader: testAdminToken[:5]}, wantStatus: 401},
		{
			name:       "bearer wins over custom header",
			headers:    map[string]string{"Authorization": "Bearer nope", AdminTokenHeader: testAdminToken},
			wantStatus: 401,
		},
		{
			name:       "body ignored when a header carries a token",
			headers:    map[string]string{AdminTokenHeader: "nope"},
			body:       `{"token":"` + testAdminToken + `"}`,
			wantStatus: 401,
		},
	}

	gate := NewAdminTokenGate(testAdminToken)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(http.MethodPost, "/api/jobs/reindex", body)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			d := gate.AssertAdmin(req)
			assert.Equal(t, tt.wantOK, d.OK)
			assert.Equal(t, tt.wantStatus, d.Status)
			if !tt.wantOK {
				assert.Equal(t, "unauthorized", d.Message)
				assert.ErrorIs(t, d.Err(), ErrUnauthenticated)
			}
		})
	}
}

func TestAssertAdmin_Unconfigured(t *testing.T) {
	gate := NewAdminTokenGate("")

	for _, header := range []string{"", "Bearer " + testAdminToken, "Bearer anything"} {
		req := httptest.NewRequest(http.MethodPost, "/api/jobs/reindex", strings.NewReader(`{"token":""}`))
		if header != "" {
			req.Header.Set("Authorization", header)
		}

		d := gate.AssertAdmin(req)
		assert.False(t, d.OK)
		assert.Equal(t, http.StatusInternalServerError, d.Status)
		assert.Equal(t, "server auth not configured", d.Message)
		assert.ErrorIs(t, d.Err(), ErrServerMisconfigured)
	}
}

func TestAssertAdmin_BodyPreservedAfterRejection(t *testing.T) {
	gate := NewAdminTokenGate(testAdminToken)
	original := `{"token":"wrong","slug":"cfo-paris","active":true}`

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/activate", strings.NewReader(original))
	req.Header.Set("Authorization", "Bearer wrong")

	// Rejected by header; body never inspected
	require.False(t, gate.AssertAdmin(req).OK)

	// Rejected by body token; body read and restored
	req.Header.Del("Authorization")
	require.False(t, gate.AssertAdmin(req).OK)

	got, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, original, string(got))
}

func TestAssertAdmin_BodyPreservedAfterAcceptance(t *testing.T) {
	gate := NewAdminTokenGate(testAdminToken)
	original := `{"token":"` + testAdminToken + `","title":"CFO"}`

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/create", strings.NewReader(original))
	require.True(t, gate.AssertAdmin(req).OK)

	got, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, original, string(got))

	require.NotNil(t, req.GetBody)
	replay, err := req.GetBody()
	require.NoError(t, err)
	again, err := io.ReadAll(replay)
	require.NoError(t, err)
	assert.Equal(t, original, string(again))
}

func TestAdminTokenMiddleware(t *testing.T) {
	var gotBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("accepted request reaches handler with body", func(t *testing.T) {
		gotBody = ""
		body := `{"token":"` + testAdminToken + `","slug":"a"}`
		req := httptest.NewRequest(http.MethodPost, "/api/jobs/create", strings.NewReader(body))
		rec := httptest.NewRecorder()

		NewAdminTokenGate(testAdminToken).Middleware(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, body, gotBody)
	})

	t.Run("rejected request gets json 401", func(t *testing.T) {
		gotBody = ""
		req := httptest.NewRequest(http.MethodPost, "/api/jobs/create", nil)
		rec := httptest.NewRecorder()

		NewAdminTokenGate(testAdminToken).Middleware(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"ok":false,"error":"unauthorized"}`, rec.Body.String())
		assert.Empty(t, gotBody)
	})

	t.Run("unconfigured gets json 500", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/jobs/create", nil)
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
		rec := httptest.NewRecorder()

		NewAdminTokenGate("").Middleware(next).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"ok":false,"error":"server auth not configured"}`, rec.Body.String())
	})
}

func TestAdminTokenMiddleware_LogsDecisionError(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	logs := captureLogs(t)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/reindex", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	NewAdminTokenGate(testAdminToken).Middleware(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), ErrUnauthenticated.Error())

	logs.Reset()
	NewAdminTokenGate("").Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/jobs/reindex", nil))

	assert.Contains(t, logs.String(), "level=ERROR")
	assert.Contains(t, logs.String(), ErrServerMisconfigured.Error())
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header    string
		wantToken string
		wantErr   bool
	}{
		{header: "", wantErr: true},
		{header: "Bearer", wantErr: true},
		{header: "Bearer ", wantErr: true},
		{header: "Bearer    ", wantErr: true},
		{header: "Token abc", wantErr: true},
		{header: "Bearer abc", wantToken: "abc"},
		{header: "BEARER abc ", wantToken: "abc"},
	}

	for _, tt := range tests {
		token, errMsg := extractBearerToken(tt.header)
		if tt.wantErr {
			assert.NotEmpty(t, errMsg, "header %q", tt.header)
			continue
		}
		assert.Empty(t, errMsg, "header %q", tt.header)
		assert.Equal(t, tt.wantToken, token)
	}
}
