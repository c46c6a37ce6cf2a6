package storageclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUploadSendsObjectWithServiceKey(t *testing.T) {
	var (
		gotPath   string
		gotAuth   string
		gotAPIKey string
		gotType   string
		gotBody   []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("apikey")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Key":"documents/kyc/u1/id.png"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "service-key", "documents")
	if client.Bucket() != "documents" {
		t.Fatalf("unexpected bucket %q", client.Bucket())
	}
	err := client.Upload(context.Background(), "kyc/u1/id card.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/storage/v1/object/documents/kyc/u1/id%20card.png" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer service-key" || gotAPIKey != "service-key" {
		t.Fatalf("unexpected auth headers %q %q", gotAuth, gotAPIKey)
	}
	if gotType != "image/png" {
		t.Fatalf("unexpected content type %q", gotType)
	}
	if string(gotBody) != "png-bytes" {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestUploadReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"statusCode":"409","error":"Duplicate","message":"The resource already exists"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "service-key", "documents")
	err := client.Upload(context.Background(), "kyc/u1/id.png", "", []byte("x"))

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "Duplicate" {
		t.Fatalf("unexpected api error %#v", apiErr)
	}
}

func TestRemoveSendsPrefixes(t *testing.T) {
	var body struct {
		Prefixes []string `json:"prefixes"`
	}
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "service-key", "documents")
	if err := client.Remove(context.Background(), "kyc/u1/id.png"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != http.MethodDelete || path != "/storage/v1/object/documents" {
		t.Fatalf("unexpected request %s %s", method, path)
	}
	if len(body.Prefixes) != 1 || body.Prefixes[0] != "kyc/u1/id.png" {
		t.Fatalf("unexpected prefixes %v", body.Prefixes)
	}
}
