// Package attach persists binary attachments on a CDN and hands back
// durable URLs.
package attach

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cloudinary uploads files through the unsigned-preset upload API and
// returns the secure URL of the stored asset.
type Cloudinary struct {
	client  *http.Client
	baseURL string
	cloud   string
	apiKey  string
	secret  string
	preset  string

	idGen func() string
}

// Config carries the Cloudinary account settings.
type Config struct {
	BaseURL string
	Cloud   string
	APIKey  string
	Secret  string
	Preset  string
	Timeout time.Duration
}

func NewCloudinary(cfg Config) *Cloudinary {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Cloudinary{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		cloud:   cfg.Cloud,
		apiKey:  cfg.APIKey,
		secret:  cfg.Secret,
		preset:  cfg.Preset,
		idGen:   uuid.NewString,
	}
}

// WithIDGenerator overrides public id generation. Test hook.
func (c *Cloudinary) WithIDGenerator(gen func() string) *Cloudinary {
	c.idGen = gen
	return c
}

type uploadRequest struct {
	File         string `json:"file"`
	UploadPreset string `json:"upload_preset"`
	ResourceType string `json:"resource_type"`
	PublicID     string `json:"public_id"`
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload stores the file and returns its secure URL. Images upload as the
// image resource type, everything else as raw. Each upload gets a generated
// public id so identically named files never overwrite each other.
func (c *Cloudinary) Upload(ctx context.Context, filename string, content []byte) (string, error) {
	if len(content) == 0 {
		return "", fmt.Errorf("attach: empty file %q", filename)
	}

	payload, err := json.Marshal(uploadRequest{
		File:         base64.StdEncoding.EncodeToString(content),
		UploadPreset: c.preset,
		ResourceType: resourceType(filename),
		PublicID:     c.idGen(),
	})
	if err != nil {
		return "", fmt.Errorf("attach: marshal upload: %w", err)
	}

	url := fmt.Sprintf("%s/v1_1/%s/upload", c.baseURL, c.cloud)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("attach: build request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("attach: upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("attach: read response: %w", err)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("attach: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.Error.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("attach: upload status %d: %s", resp.StatusCode, msg)
	}
	if parsed.SecureURL == "" {
		return "", fmt.Errorf("attach: upload response missing secure_url")
	}

	return parsed.SecureURL, nil
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tiff": true,
}

func resourceType(filename string) string {
	if imageExtensions[strings.ToLower(filepath.Ext(filename))] {
		return "image"
	}
	return "raw"
}
