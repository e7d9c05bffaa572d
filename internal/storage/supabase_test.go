package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeObjectKey_StripsDirectories(t *testing.T) {
	s := NewSupabase("https://x.supabase.co/", "k", "attachments")

	key := s.MakeObjectKey("g1", `..\..\etc/passwd.png`)
	assert.True(t, strings.HasPrefix(key, "grievance/g1/"), key)
	assert.True(t, strings.HasSuffix(key, "-passwd.png"), key)
	assert.NotContains(t, key, "..")

	assert.NotEqual(t, s.MakeObjectKey("g1", "a.png"), s.MakeObjectKey("g1", "a.png"))
}

func TestSupabase_UploadSignDelete(t *testing.T) {
	var gotDelete []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/storage/v1/object/attachments/grievance/g1/photo.png":
			assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
			b, _ := io.ReadAll(r.Body)
			assert.Equal(t, "png-bytes", string(b))
			w.WriteHeader(http.StatusOK)
		case "/storage/v1/object/sign/attachments/grievance/g1/photo.png":
			var in map[string]int
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			assert.Equal(t, 60, in["expiresIn"])
			_, _ = w.Write([]byte(`{"signedURL":"/object/sign/attachments/grievance/g1/photo.png?token=t"}`))
		case "/storage/v1/object/attachments/remove":
			var in map[string][]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			gotDelete = in["prefixes"]
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewSupabase(srv.URL, "secret", "attachments")
	ctx := context.Background()

	require.NoError(t, s.Upload(ctx, "grievance/g1/photo.png", strings.NewReader("png-bytes"), "image/png", 9))

	url, err := s.SignedURL(ctx, "grievance/g1/photo.png", 60)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/storage/v1/object/sign/attachments/grievance/g1/photo.png?token=t", url)

	require.NoError(t, s.BulkDelete(ctx, []string{"grievance/g1/photo.png"}))
	assert.Equal(t, []string{"grievance/g1/photo.png"}, gotDelete)
}

func TestSupabase_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/sign/") {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		http.Error(w, "bucket not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewSupabase(srv.URL, "secret", "attachments")
	ctx := context.Background()

	err := s.Upload(ctx, "k", strings.NewReader("x"), "image/png", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket not found")

	_, err = s.SignedURL(ctx, "k", 60)
	assert.ErrorContains(t, err, "empty signedURL")

	assert.Error(t, s.BulkDelete(ctx, []string{"k"}))
	// Nothing to delete means no request at all.
	assert.NoError(t, s.BulkDelete(ctx, nil))
}

var _ ObjectStore = (*Supabase)(nil)
