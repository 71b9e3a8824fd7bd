package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func visionHandler(t *testing.T, content string, check func(body map[string]interface{})) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected Bearer test-key, got %s", auth)
		}

		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if check != nil {
			check(body)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "test-id",
			"model": "grok-2-vision-1212",
			"choices": []map[string]interface{}{{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}
}

func TestClientVision(t *testing.T) {
	server := httptest.NewServer(visionHandler(t, `{"is_clear": true}`, func(body map[string]interface{}) {
		msgs := body["messages"].([]interface{})
		if len(msgs) != 2 {
			t.Errorf("Expected system + user messages, got %d", len(msgs))
			return
		}
		user := msgs[1].(map[string]interface{})
		content := user["content"].([]interface{})
		if len(content) != 3 {
			t.Errorf("Expected text + 2 images, got %d parts", len(content))
		}
		img := content[1].(map[string]interface{})["image_url"].(map[string]interface{})
		if !strings.HasPrefix(img["url"].(string), "data:image/jpeg;base64,") {
			t.Errorf("Unexpected image url: %v", img["url"])
		}
		if _, ok := body["response_format"]; !ok {
			t.Error("Expected response_format for JSON request")
		}
	}))
	defer server.Close()

	client, err := NewClient(
		WithBaseURL(server.URL),
		WithAPIKey("test-key"),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	resp, err := client.Vision(context.Background(), &VisionRequest{
		System: "You are a drone safety officer.",
		Prompt: "Is it clear?",
		Images: [][]byte{{0xff, 0xd8}, {0xff, 0xd8}},
		JSON:   true,
	})
	if err != nil {
		t.Fatalf("Vision failed: %v", err)
	}
	if resp.Content != `{"is_clear": true}` {
		t.Errorf("Unexpected content: %s", resp.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestClientVisionNoImages(t *testing.T) {
	client, _ := NewClient(WithAPIKey("k"))
	_, err := client.Vision(context.Background(), &VisionRequest{Prompt: "x"})
	if !errors.Is(err, ErrNoImages) {
		t.Errorf("Expected ErrNoImages, got %v", err)
	}
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key", "code": "invalid_api_key"}}`))
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL), WithAPIKey("test-key"))
	_, err := client.Vision(context.Background(), &VisionRequest{Images: [][]byte{{1}}})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *APIError, got %T: %v", err, err)
	}
	if !apiErr.IsUnauthorized() {
		t.Errorf("Expected unauthorized, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "bad key" || apiErr.Code != "invalid_api_key" {
		t.Errorf("Unexpected error fields: %+v", apiErr)
	}
	if apiErr.IsRetryable() {
		t.Error("401 should not be retryable")
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	ok := visionHandler(t, "fine", nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		ok(w, r)
	}))
	defer server.Close()

	client, _ := NewClient(
		WithBaseURL(server.URL),
		WithAPIKey("test-key"),
		WithRetry(2, time.Millisecond),
	)
	resp, err := client.Vision(context.Background(), &VisionRequest{Images: [][]byte{{1}}})
	if err != nil {
		t.Fatalf("Vision failed after retry: %v", err)
	}
	if resp.Content != "fine" {
		t.Errorf("Unexpected content: %s", resp.Content)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("Expected /models, got %s", r.URL.Path)
		}
		w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL), WithAPIKey("k"))
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health failed: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if !errors.Is(cfg.Validate(), ErrNoAPIKey) {
		t.Error("Expected ErrNoAPIKey")
	}
	cfg.Apply(WithAPIKey("k"), WithVisionModel(""))
	if !errors.Is(cfg.Validate(), ErrNoModel) {
		t.Error("Expected ErrNoModel")
	}
}
