/**
 * @description
 * This package provides a client for the Supabase Auth (GoTrue) REST API. The
 * backend uses it for the admin password login; end users authenticate directly
 * against the identity provider and only present the resulting JWT.
 *
 * @dependencies
 * - github.com/go-resty/resty/v2: HTTP client.
 */
package authclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrInvalidCredentials is returned when the identity provider rejects the login.
var ErrInvalidCredentials = errors.New("invalid login credentials")

// Client is a client for the Supabase Auth API.
type Client struct {
	http *resty.Client
}

// Session is the token grant returned by a successful login.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// User is the subset of the identity provider's user object the backend reads.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             int    `json:"code"`
	Msg              string `json:"msg"`
}

func (e *errorResponse) message() string {
	for _, m := range []string{e.ErrorDescription, e.Msg, e.Error} {
		if m != "" {
			return m
		}
	}
	return "unknown error"
}

// NewClient creates a new auth client. anonKey is sent as the apikey header.
func NewClient(baseURL, anonKey string) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")+"/auth/v1").
		SetTimeout(15*time.Second).
		SetHeader("apikey", anonKey).
		SetHeader("Content-Type", "application/json")
	return &Client{http: httpClient}
}

// SignInWithPassword exchanges an email and password for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var (
		session Session
		errResp errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "password").
		SetBody(map[string]string{"email": email, "password": password}).
		SetResult(&session).
		SetError(&errResp).
		Post("/token")
	if err != nil {
		return nil, fmt.Errorf("failed to execute token request: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, errResp.message())
	case resp.IsError():
		return nil, fmt.Errorf("auth api error: status=%d message=%s", resp.StatusCode(), errResp.message())
	}
	if session.AccessToken == "" || session.User.ID == "" {
		return nil, errors.New("auth api returned an incomplete session")
	}
	return &session, nil
}
