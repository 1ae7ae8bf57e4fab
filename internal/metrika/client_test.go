package metrika

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{
		BaseURL:   srv.URL,
		Token:     "test-token",
		CounterID: "104854671",
	})
	require.NoError(t, err)
	return client
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(Config{CounterID: "1"}); err == nil {
		t.Fatal("expected error without token")
	}
	if _, err := New(Config{Token: "t"}); err == nil {
		t.Fatal("expected error without counter id")
	}
	if _, err := New(Config{Token: "t", CounterID: "1", ProxyURL: "://bad"}); err == nil {
		t.Fatal("expected error for malformed proxy url")
	}
}

func TestUploadConversion(t *testing.T) {
	var gotPath, gotAuth, gotComment, gotCSV string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotComment = r.URL.Query().Get("comment")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		require.Equal(t, "conversions.csv", header.Filename)
		raw, err := io.ReadAll(file)
		require.NoError(t, err)
		gotCSV = string(raw)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"uploading":{"id":99001,"status":"uploaded","linked_quantity":1}}`))
	})

	at := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	upload, err := client.UploadConversion(context.Background(), Conversion{
		ClientID: "123456",
		Goal:     "enrolled",
		At:       at,
		Comment:  "Target client conversion - math",
	})
	require.NoError(t, err)
	require.Equal(t, int64(99001), upload.ID)
	require.Equal(t, "uploaded", upload.Status)

	require.Equal(t, "/management/v1/counter/104854671/offline_conversions/upload", gotPath)
	require.Equal(t, "OAuth test-token", gotAuth)
	require.Equal(t, "Target client conversion - math", gotComment)

	lines := strings.Split(strings.TrimSpace(gotCSV), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "ClientId,Target,DateTime,Price,Currency", strings.TrimSpace(lines[0]))
	require.Equal(t, "123456,enrolled,1787824800,1,RUB", strings.TrimSpace(lines[1]))
}

func TestUploadConversionTelegramUserID(t *testing.T) {
	var gotCSV string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer func() { _ = file.Close() }()
		raw, _ := io.ReadAll(file)
		gotCSV = string(raw)
		_, _ = w.Write([]byte(`{"uploading":{"id":1,"status":"uploaded"}}`))
	})

	_, err := client.UploadConversion(context.Background(), Conversion{ClientID: "telegram_42"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(gotCSV, "UserId,Target,DateTime,Price,Currency"),
		"telegram ids must go through the UserId column: %q", gotCSV)
	require.Contains(t, gotCSV, "telegram_42,TARGET_CLIENT,")
}

func TestUploadConversionAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Access denied"}`))
	})

	_, err := client.UploadConversion(context.Background(), Conversion{ClientID: "123"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	require.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	require.Contains(t, apiErr.Body, "Access denied")
}

func TestUploadConversionRequiresClientID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := client.UploadConversion(context.Background(), Conversion{})
	require.Error(t, err)
}

func TestUploadConversionTruncatesComment(t *testing.T) {
	var gotComment string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotComment = r.URL.Query().Get("comment")
		_, _ = w.Write([]byte(`{"uploading":{"id":1,"status":"uploaded"}}`))
	})

	_, err := client.UploadConversion(context.Background(), Conversion{
		ClientID: "123",
		Comment:  strings.Repeat("x", 300),
	})
	require.NoError(t, err)
	require.Len(t, gotComment, 255)
}
