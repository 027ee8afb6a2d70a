package judge0

import (
	"code_arena_backend/internal/config"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&config.Judge0Config{
		URL:       srv.URL,
		AuthToken: "secret-token",
		Timeout:   5 * time.Second,
	})
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestSubmitBatchEncodesAndReturnsTokens(t *testing.T) {
	var gotAuth string
	var gotBody struct {
		Submissions []map[string]interface{} `json:"submissions"`
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("X-Auth-Token")
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/submissions/batch", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("base64_encoded"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"token":"tok-a"},{"token":"tok-b"}]`))
	})

	tokens, err := client.SubmitBatch(context.Background(), []SubmissionRequest{
		{SourceCode: "print(1)", Stdin: "1 2", ExpectedOutput: "3", LanguageID: 71, CPUTimeLimit: 2, MemoryLimit: 128000},
		{SourceCode: "print(1)", Stdin: "4 5", ExpectedOutput: "9", LanguageID: 71, CPUTimeLimit: 2, MemoryLimit: 128000},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a", "tok-b"}, tokens)

	assert.Equal(t, "secret-token", gotAuth)
	require.Len(t, gotBody.Submissions, 2)
	assert.Equal(t, b64("print(1)"), gotBody.Submissions[0]["source_code"])
	assert.Equal(t, b64("1 2"), gotBody.Submissions[0]["stdin"])
	assert.Equal(t, b64("3"), gotBody.Submissions[0]["expected_output"])
	assert.Equal(t, float64(71), gotBody.Submissions[0]["language_id"])
	assert.Equal(t, b64("4 5"), gotBody.Submissions[1]["stdin"])
}

func TestSubmitBatchTokenCountMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"token":"tok-a"}]`))
	})

	_, err := client.SubmitBatch(context.Background(), make([]SubmissionRequest, 2))
	require.Error(t, err)
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Contains(t, err.Error(), "submit batch")
}

func TestSubmitBatchNon2xx(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.SubmitBatch(context.Background(), make([]SubmissionRequest, 1))
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, http.StatusServiceUnavailable, transport.StatusCode)
}

func TestFetchBatchDecodesFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "tok-a,tok-b", r.URL.Query().Get("tokens"))
		assert.Equal(t, "true", r.URL.Query().Get("base64_encoded"))

		resp := map[string]interface{}{
			"submissions": []map[string]interface{}{
				{
					"token":  "tok-a",
					"status": map[string]int{"id": 3},
					// 引擎会在 base64 输出里插入换行
					"stdout": b64("hello")[:4] + "\n" + b64("hello")[4:],
					"time":   "0.01",
					"memory": 1024,
				},
				{
					"token":          "tok-b",
					"status":         map[string]int{"id": 6},
					"compile_output": b64("syntax error"),
					"message":        b64("exit code 1"),
					"time":           "",
					"memory":         nil,
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})

	subs, err := client.FetchBatch(context.Background(), []string{"tok-a", "tok-b"})
	require.NoError(t, err)
	require.Len(t, subs, 2)

	assert.Equal(t, "tok-a", subs[0].Token)
	assert.Equal(t, StatusAccepted, subs[0].Status)
	require.NotNil(t, subs[0].Stdout)
	assert.Equal(t, "hello", *subs[0].Stdout)
	assert.Nil(t, subs[0].Stderr)
	assert.Nil(t, subs[0].CompileOutput)
	assert.Equal(t, "0.01", subs[0].Time)
	assert.Equal(t, float64(1024), subs[0].Memory)

	assert.Equal(t, StatusCompilationError, subs[1].Status)
	assert.Nil(t, subs[1].Stdout)
	require.NotNil(t, subs[1].CompileOutput)
	assert.Equal(t, "syntax error", *subs[1].CompileOutput)
	require.NotNil(t, subs[1].Message)
	assert.Equal(t, "exit code 1", *subs[1].Message)
	assert.Equal(t, float64(0), subs[1].Memory)
}

func TestFetchBatchNon2xx(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.FetchBatch(context.Background(), []string{"tok-a"})
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, http.StatusUnauthorized, transport.StatusCode)
}
