/**
 * @description
 * This package provides a client for the Supabase Storage REST API. It uploads
 * and removes private objects (KYC documents) using the service role key.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2: HTTP client with retries and JSON helpers.
 */
package storageclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client is a client for a single Supabase Storage bucket.
type Client struct {
	bucket string
	http   *resty.Client
}

// APIError is returned for any non-2xx response from the storage API.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storage api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// NewClient creates a storage client for bucket at baseURL (the project URL).
func NewClient(baseURL, serviceKey, bucket string) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+"/storage/v1").
		SetTimeout(30*time.Second).
		SetAuthToken(serviceKey).
		SetHeader("apikey", serviceKey)
	return &Client{bucket: bucket, http: httpClient}
}

// Bucket returns the bucket name objects are written to.
func (c *Client) Bucket() string {
	return c.bucket
}

func escapeObjectPath(objectPath string) string {
	parts := strings.Split(strings.Trim(objectPath, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// Upload stores data at objectPath inside the bucket. Existing objects are not
// overwritten.
func (c *Client) Upload(ctx context.Context, objectPath, contentType string, data []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	apiErr := &APIError{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "false").
		SetBody(data).
		SetError(apiErr).
		Post("/object/" + url.PathEscape(c.bucket) + "/" + escapeObjectPath(objectPath))
	if err != nil {
		return fmt.Errorf("failed to execute upload request: %w", err)
	}
	if resp.IsError() {
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}

// Remove deletes the objects at the given paths. Missing objects are not an error.
func (c *Client) Remove(ctx context.Context, objectPaths ...string) error {
	if len(objectPaths) == 0 {
		return nil
	}
	apiErr := &APIError{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string][]string{"prefixes": objectPaths}).
		SetError(apiErr).
		Delete("/object/" + url.PathEscape(c.bucket))
	if err != nil {
		return fmt.Errorf("failed to execute remove request: %w", err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		apiErr.StatusCode = resp.StatusCode()
		return apiErr
	}
	return nil
}
