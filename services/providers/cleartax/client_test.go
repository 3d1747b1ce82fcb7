package cleartax

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/hsn-classifier/models"
)

func newTestClient(url string, schema ReplySchema) *Client {
	return NewClient(Config{
		APIKey:  "test-key",
		URL:     url,
		Timeout: 2 * time.Second,
		Schema:  schema,
	}, zap.NewNop())
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{}, zap.NewNop())

	assert.Equal(t, "cleartax", c.Name())
	assert.Equal(t, DefaultServiceName, c.config.ServiceName)
	assert.Equal(t, DefaultReplySchema(), c.config.Schema)
	assert.False(t, c.Configured())
}

func TestClient_NotConfigured(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{name: "no key", config: Config{URL: "http://localhost"}},
		{name: "no url", config: Config{APIKey: "k"}},
		{name: "nothing", config: Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(tt.config, zap.NewNop())

			reply, err := c.Classify(context.Background(), models.NewClassificationRequest("Mouse", "optical mouse", ""))
			require.NoError(t, err)
			require.NotNil(t, reply.Record)

			assert.Equal(t, models.NotAvailable, reply.Record.HSNCode)
			assert.False(t, reply.Record.ConfidenceScore.Known)
			assert.Equal(t, "ClearTax API not configured.", reply.Record.Explanation)
			assert.NotNil(t, reply.Record.SimilarProducts)
			assert.Empty(t, reply.Record.SimilarProducts)
		})
	}
}

func TestClient_Lookup_Request(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "2.4GHz optical mouse", r.URL.Query().Get("query"))
		assert.Equal(t, "v1", r.URL.Query().Get("api"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"hsn_code":"847160","description":"Input units"},{"hsn_code":"847330"}]}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL+"?api=v1", DefaultReplySchema())

	rec := c.Lookup(context.Background(), "2.4GHz optical mouse")

	assert.Equal(t, "847160", rec.HSNCode)
	assert.False(t, rec.ConfidenceScore.Known)
	assert.Equal(t, "Provided by fallback: Input units", rec.Explanation)
	assert.Empty(t, rec.SimilarProducts)
}

func TestClient_Lookup_Replies(t *testing.T) {
	tests := []struct {
		name            string
		status          int
		body            string
		wantCode        string
		wantExplanation string
	}{
		{
			name:            "empty results",
			status:          http.StatusOK,
			body:            `{"results":[]}`,
			wantCode:        models.HSNNotFound,
			wantExplanation: "No HSN code found for the given description.",
		},
		{
			name:            "absent results",
			status:          http.StatusOK,
			body:            `{}`,
			wantCode:        models.HSNNotFound,
			wantExplanation: "No HSN code found for the given description.",
		},
		{
			name:            "null results",
			status:          http.StatusOK,
			body:            `{"results":null}`,
			wantCode:        models.HSNNotFound,
			wantExplanation: "No HSN code found for the given description.",
		},
		{
			name:            "server error",
			status:          http.StatusInternalServerError,
			body:            `boom`,
			wantCode:        models.HSNError,
			wantExplanation: "ClearTax API request failed: status 500",
		},
		{
			name:            "undecodable body",
			status:          http.StatusOK,
			body:            `<html>`,
			wantCode:        models.HSNError,
			wantExplanation: "ClearTax API request failed:",
		},
		{
			name:            "body is an array",
			status:          http.StatusOK,
			body:            `[{"hsn_code":"1"}]`,
			wantCode:        models.HSNError,
			wantExplanation: "ClearTax API returned an unexpected response: reply is an array",
		},
		{
			name:            "results is not an array",
			status:          http.StatusOK,
			body:            `{"results":"847160"}`,
			wantCode:        models.HSNError,
			wantExplanation: "ClearTax API returned an unexpected response:",
		},
		{
			name:            "first result without code",
			status:          http.StatusOK,
			body:            `{"results":[{"description":"Input units"}]}`,
			wantCode:        models.HSNError,
			wantExplanation: `ClearTax API returned an unexpected response: first result has no "hsn_code"`,
		},
		{
			name:            "first result not an object",
			status:          http.StatusOK,
			body:            `{"results":["847160"]}`,
			wantCode:        models.HSNError,
			wantExplanation: "ClearTax API returned an unexpected response:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			rec := newTestClient(server.URL, DefaultReplySchema()).Lookup(context.Background(), "mouse")

			assert.Equal(t, tt.wantCode, rec.HSNCode)
			assert.False(t, rec.ConfidenceScore.Known)
			assert.True(t, strings.HasPrefix(rec.Explanation, tt.wantExplanation), "explanation %q", rec.Explanation)
			assert.NotNil(t, rec.SimilarProducts)
		})
	}
}

func TestClient_Lookup_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(Config{APIKey: "k", URL: url, ServiceName: "HSN Lookup"}, zap.NewNop())

	rec := c.Lookup(context.Background(), "mouse")

	assert.Equal(t, models.HSNError, rec.HSNCode)
	assert.True(t, strings.HasPrefix(rec.Explanation, "HSN Lookup request failed: "))
}

func TestClient_Lookup_SingleCall(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	newTestClient(server.URL, DefaultReplySchema()).Lookup(context.Background(), "mouse")

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_Lookup_CustomSchema(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"code":"61091000","label":"Cotton T-shirts"}]}`))
	}))
	defer server.Close()

	schema := ReplySchema{ResultsField: "items", CodeField: "code", DescriptionField: "label"}
	rec := newTestClient(server.URL, schema).Lookup(context.Background(), "t-shirt")

	assert.Equal(t, "61091000", rec.HSNCode)
	assert.Equal(t, "Provided by fallback: Cotton T-shirts", rec.Explanation)
}

func TestLoadReplySchema(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		schema, err := LoadReplySchema("")
		require.NoError(t, err)
		assert.Equal(t, DefaultReplySchema(), schema)
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "schema.toml")
		require.NoError(t, os.WriteFile(path, []byte("results_field = \"items\"\ncode_field = \"code\"\n"), 0600))

		schema, err := LoadReplySchema(path)
		require.NoError(t, err)
		assert.Equal(t, "items", schema.ResultsField)
		assert.Equal(t, "code", schema.CodeField)
		assert.Equal(t, "description", schema.DescriptionField)
	})

	t.Run("round trip", func(t *testing.T) {
		data, err := ReplySchema{ResultsField: "r", CodeField: "c", DescriptionField: "d"}.Marshal()
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "schema.toml")
		require.NoError(t, os.WriteFile(path, data, 0600))

		schema, err := LoadReplySchema(path)
		require.NoError(t, err)
		assert.Equal(t, "r", schema.ResultsField)
	})

	t.Run("blank field rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "schema.toml")
		require.NoError(t, os.WriteFile(path, []byte("code_field = \"\"\n"), 0600))

		_, err := LoadReplySchema(path)
		assert.Error(t, err)
	})

	t.Run("invalid toml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "schema.toml")
		require.NoError(t, os.WriteFile(path, []byte("results_field = [\n"), 0600))

		_, err := LoadReplySchema(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadReplySchema(filepath.Join(t.TempDir(), "nope.toml"))
		assert.Error(t, err)
	})
}
