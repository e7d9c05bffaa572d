package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ObjectStore is what the grievance handlers need from attachment storage.
type ObjectStore interface {
	MakeObjectKey(grievanceID, filename string) string
	Upload(ctx context.Context, key string, r io.Reader, contentType string, size int64) error
	SignedURL(ctx context.Context, key string, expiresInSeconds int) (string, error)
	BulkDelete(ctx context.Context, keys []string) error
}

/*
Supabase wraps the few Supabase Storage REST calls the portal uses.

With a legacy service_role JWT both `apikey` and `Authorization: Bearer` are
sent. A non-JWT secret key works with `apikey` alone.
*/
type Supabase struct {
	baseURL string // e.g. https://<project>.supabase.co
	apiKey  string
	bucket  string
	client  *http.Client
}

func NewSupabase(baseURL, apiKey, bucket string) *Supabase {
	return &Supabase{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		bucket:  bucket,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// MakeObjectKey builds grievance/<grievanceID>/<random>-<filename>. The random
// prefix keeps re-uploads of the same name from overwriting each other.
func (s *Supabase) MakeObjectKey(grievanceID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	return path.Join("grievance", grievanceID, uuid.NewString()[:8]+"-"+name)
}

func (s *Supabase) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	return req, nil
}

// Upload sends a new object: POST /storage/v1/object/{bucket}/{objectName}
func (s *Supabase) Upload(ctx context.Context, key string, r io.Reader, contentType string, size int64) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, key)

	req, err := s.newRequest(ctx, http.MethodPost, url, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = size

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("supabase upload error: %s | %s", res.Status, string(body))
	}
	return nil
}

// SignedURL creates a short-lived signed URL:
// POST /storage/v1/object/sign/{bucket}/{objectName}  body: {"expiresIn": <seconds>}
func (s *Supabase) SignedURL(ctx context.Context, key string, expiresInSeconds int) (string, error) {
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.baseURL, s.bucket, key)

	body, _ := json.Marshal(map[string]int{"expiresIn": expiresInSeconds})
	req, err := s.newRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("supabase sign error: %s | %s", res.Status, string(b))
	}

	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("empty signedURL in response")
	}

	// API returns a relative path
	return s.baseURL + "/storage/v1" + out.SignedURL, nil
}

// BulkDelete removes objects in one call:
// POST /storage/v1/object/{bucket}/remove  body: {"prefixes": [...]}
func (s *Supabase) BulkDelete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/remove", s.baseURL, s.bucket)

	body, _ := json.Marshal(map[string][]string{"prefixes": keys})
	req, err := s.newRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("supabase bulk delete error: %s | %s", res.Status, string(b))
	}
	return nil
}
