package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperr "github.com/yungbote/podreach-backend/internal/pkg/errors"
	"github.com/yungbote/podreach-backend/internal/platform/logger"
)

func responseBody(text string) map[string]any {
	return map[string]any{
		"output": []any{
			map[string]any{
				"type": "message",
				"role": "assistant",
				"content": []any{
					map[string]any{"type": "output_text", "text": text},
				},
			},
		},
	}
}

func newTestClient(t *testing.T, url string, temp *float64) Client {
	t.Helper()
	c, err := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: url, Model: "m", Timeout: 5 * time.Second, MaxRetries: 2, Temperature: temp})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	cc := c.(*client)
	cc.policy.Initial = time.Millisecond
	cc.policy.Max = 2 * time.Millisecond
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(logger.Nop(), Config{})
	if !errors.Is(err, apperr.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestGenerateJSONSendsSchemaAndParses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing auth header")
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		text, _ := body["text"].(map[string]any)
		format, _ := text["format"].(map[string]any)
		if format["type"] != "json_schema" || format["name"] != "extract" {
			t.Errorf("unexpected format: %v", format)
		}
		_ = json.NewEncoder(w).Encode(responseBody(`{"host_names":["Jane Doe"]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	out, err := c.GenerateJSON(context.Background(), "sys", "user", "extract", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	hosts, _ := out["host_names"].([]any)
	if len(hosts) != 1 || hosts[0] != "Jane Doe" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestGenerateTextRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(responseBody("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	got, err := c.GenerateText(context.Background(), "sys", "user")
	if err != nil || got != "ok" {
		t.Fatalf("GenerateText: %q %v", got, err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestGenerateTextDropsRejectedTemperature(t *testing.T) {
	var withTemp, withoutTemp int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["temperature"]; ok {
			atomic.AddInt32(&withTemp, 1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature'"}}`))
			return
		}
		atomic.AddInt32(&withoutTemp, 1)
		_ = json.NewEncoder(w).Encode(responseBody("fine"))
	}))
	defer srv.Close()

	temp := 0.2
	c := newTestClient(t, srv.URL, &temp)
	for i := 0; i < 2; i++ {
		if _, err := c.GenerateText(context.Background(), "s", "u"); err != nil {
			t.Fatalf("GenerateText #%d: %v", i, err)
		}
	}
	if withTemp != 1 || withoutTemp != 2 {
		t.Fatalf("withTemp=%d withoutTemp=%d", withTemp, withoutTemp)
	}
}

func TestGenerateTextNotRetriedOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, nil)
	if _, err := c.GenerateText(context.Background(), "s", "u"); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("401 retried: calls=%d", calls)
	}
}
