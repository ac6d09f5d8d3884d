package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/healthmetrics-cli/internal/model"
	"github.com/sells-group/healthmetrics-cli/internal/resilience"
)

func TestDeepSeek_Extract(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantFields map[string]any
		wantErr    string
		retryable  bool
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"id": "ds-1",
				"model": "deepseek-chat",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"systolic\": 120, \"pulse\": \"72\"}"}}],
				"usage": {"prompt_tokens": 210, "completion_tokens": 12}
			}`,
			wantFields: map[string]any{"systolic": 120.0, "pulse": "72"},
		},
		{
			name:      "rate_limit",
			status:    http.StatusTooManyRequests,
			body:      `{"error": {"message": "rate limit exceeded"}}`,
			wantErr:   "unexpected status 429",
			retryable: true,
		},
		{
			name:      "server_error",
			status:    http.StatusServiceUnavailable,
			body:      `{"error": "busy"}`,
			wantErr:   "unexpected status 503",
			retryable: true,
		},
		{
			name:    "auth",
			status:  http.StatusUnauthorized,
			body:    `{"error": {"message": "Authentication Fails"}}`,
			wantErr: "unexpected status 401",
		},
		{
			name:    "insufficient_balance",
			status:  http.StatusPaymentRequired,
			body:    `{"error": {"message": "Insufficient Balance"}}`,
			wantErr: "unexpected status 402",
			// unknown statuses default to retryable
			retryable: true,
		},
		{
			name:      "malformed_response",
			status:    http.StatusOK,
			body:      `{invalid json`,
			wantErr:   "invalid character",
			retryable: true,
		},
		{
			name:    "non_json_content",
			status:  http.StatusOK,
			body:    `{"choices": [{"message": {"role": "assistant", "content": "sorry"}}]}`,
			wantErr: "no JSON object",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				var req chatRequest
				body, _ := io.ReadAll(r.Body)
				assert.NoError(t, json.Unmarshal(body, &req))
				assert.Equal(t, "test-model", req.Model)
				if !assert.Len(t, req.Messages, 2) {
					return
				}
				assert.Equal(t, "system", req.Messages[0].Role)
				assert.Contains(t, req.Messages[0].Content, "fasting_glucose")
				assert.Equal(t, "json_object", req.ResponseFormat.Type)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body) //nolint:errcheck
			}))
			defer srv.Close()

			res, err := NewDeepSeek().Extract(context.Background(), model.NewExtractionRequest("vitals"), testConfig("deepseek", srv.URL))
			if tt.wantErr != "" {
				var pe *resilience.ProviderError
				require.ErrorAs(t, err, &pe)
				assert.Contains(t, pe.Error(), tt.wantErr)
				assert.Equal(t, tt.retryable, pe.Retryable())
				assert.Equal(t, "deepseek", pe.Provider)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "deepseek", res.Provider)
			assert.Equal(t, "deepseek-chat", res.Model)
			assert.Equal(t, tt.wantFields, res.Fields)
			assert.Equal(t, int64(210), res.Usage.InputTokens)
		})
	}
}

func TestDeepSeek_TimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewDeepSeek().Extract(ctx, model.NewExtractionRequest("x"), testConfig("deepseek", srv.URL))
	var pe *resilience.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable())
	assert.Equal(t, "request timed out", pe.Message)
}

func TestDeepSeek_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewDeepSeek(WithHTTPClient(&http.Client{Timeout: time.Second})).
		Extract(context.Background(), model.NewExtractionRequest("x"), testConfig("deepseek", url))
	var pe *resilience.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable())
}

func TestDeepSeek_OversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ds-1","pad":"` + strings.Repeat("x", 4096) + `"}`))
	}))
	defer srv.Close()

	_, err := NewDeepSeek(WithMaxResponseBytes(1024)).
		Extract(context.Background(), model.NewExtractionRequest("x"), testConfig("deepseek", srv.URL))
	var pe *resilience.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Retryable())
	assert.Equal(t, "response exceeds 1024 bytes", pe.Message)
}

func TestDeepSeek_DefaultResponseCap(t *testing.T) {
	assert.Equal(t, int64(defaultMaxResponseBytes), NewDeepSeek().maxBody)
	assert.Equal(t, int64(defaultMaxResponseBytes), NewDeepSeek(WithMaxResponseBytes(0)).maxBody)
}
