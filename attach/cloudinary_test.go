package attach

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCloudinary_Upload(t *testing.T) {
	var got uploadRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1_1/test-cloud/upload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			t.Errorf("basic auth mismatch: %s %s", user, pass)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"secure_url": "https://res.example.com/evidence.png"})
	}))
	defer server.Close()

	uploader := NewCloudinary(Config{
		BaseURL: server.URL,
		Cloud:   "test-cloud",
		APIKey:  "key",
		Secret:  "secret",
		Preset:  "ml_default",
		Timeout: time.Second,
	}).WithIDGenerator(func() string { return "fixed-public-id" })

	content := []byte("fake png bytes")
	url, err := uploader.Upload(context.Background(), "evidence.png", content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://res.example.com/evidence.png" {
		t.Fatalf("got url %q", url)
	}

	if got.UploadPreset != "ml_default" {
		t.Fatalf("preset %q", got.UploadPreset)
	}
	if got.ResourceType != "image" {
		t.Fatalf("png should upload as image, got %q", got.ResourceType)
	}
	if got.PublicID != "fixed-public-id" {
		t.Fatalf("public id %q", got.PublicID)
	}
	decoded, err := base64.StdEncoding.DecodeString(got.File)
	if err != nil || string(decoded) != string(content) {
		t.Fatalf("file payload mismatch: %v", err)
	}
}

func TestCloudinary_UploadErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "Invalid preset"}})
	}))
	defer server.Close()

	uploader := NewCloudinary(Config{BaseURL: server.URL, Cloud: "c", Timeout: time.Second})

	_, err := uploader.Upload(context.Background(), "evidence.pdf", []byte("pdf"))
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "Invalid preset") {
		t.Fatalf("error should carry the provider message, got %v", err)
	}

	if _, err := uploader.Upload(context.Background(), "empty.txt", nil); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestResourceType(t *testing.T) {
	if resourceType("photo.JPG") != "image" {
		t.Fatal("jpg should be image")
	}
	if resourceType("statement.pdf") != "raw" {
		t.Fatal("pdf should be raw")
	}
	if resourceType("noext") != "raw" {
		t.Fatal("extensionless should be raw")
	}
}
