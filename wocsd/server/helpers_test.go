package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/Oudwins/wocs/internals/conf"
	"github.com/Oudwins/wocs/internals/env"
	"github.com/Oudwins/wocs/wocsd/core"
)

const testVerifyToken = "s3cret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dataDir := t.TempDir()
	config, err := conf.Load(dataDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	base, err := core.Build(core.Options{
		Env:    &env.EnvStruct{VERIFY_TOKEN: testVerifyToken, PORT: 8787},
		Config: config,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("build base server: %v", err)
	}
	t.Cleanup(func() { _ = base.Close() })
	return New(base)
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Actor", "tester")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func webhookBody(from string, texts ...string) map[string]any {
	messages := make([]any, 0, len(texts))
	for i, text := range texts {
		messages = append(messages, map[string]any{
			"id":   fmt.Sprintf("wamid.%d", i+1),
			"from": from,
			"type": "text",
			"text": map[string]any{"body": text},
		})
	}
	return map[string]any{
		"object": "whatsapp_business_account",
		"entry": []any{map[string]any{
			"id": "1",
			"changes": []any{map[string]any{
				"field": "messages",
				"value": map[string]any{
					"messages": messages,
				},
			}},
		}},
	}
}

