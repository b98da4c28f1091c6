package odk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/civicbridge/platform/pkg/common/httpclient"
	"github.com/civicbridge/platform/pkg/common/logger"
)

const defaultTimeout = 10 * time.Second

// Client talks to one form on one ODK Central project. The session token is
// explicit client state: Login populates it, Logout discards it, and every
// authenticated call reuses it until then. The client is not safe for
// concurrent use; the import pipeline is single-threaded by design.
type Client struct {
	baseURL   string
	email     string
	password  string
	projectID string
	formID    string

	http  *http.Client
	token string
}

type Options struct {
	BaseURL   string
	Email     string
	Password  string
	ProjectID string
	FormID    string
	Timeout   time.Duration
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		email:     opts.Email,
		password:  opts.Password,
		projectID: opts.ProjectID,
		formID:    opts.FormID,
		http:      httpclient.New(timeout),
	}
}

// User is the identity returned by the session-verification endpoint.
type User struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Login establishes a session and stores the bearer token on the client.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return AuthError{reason: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions", bytes.NewReader(body))
	if err != nil {
		return AuthError{reason: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Log.WithError(err).Error("ODK login failed")
		return AuthError{reason: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return AuthError{reason: fmt.Errorf("sessions endpoint returned %s", resp.Status)}
	}

	var session struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		logger.Log.WithError(err).Error("ODK login response malformed")
		return AuthError{reason: err}
	}

	c.token = session.Token
	return nil
}

// CurrentUser verifies the stored session against /v1/users/current.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	if c.token == "" {
		return User{}, AuthError{reason: fmt.Errorf("session not created")}
	}

	var user User
	if err := c.getJSON(ctx, c.baseURL+"/v1/users/current", nil, &user); err != nil {
		logger.Log.WithError(err).Error("ODK connection test failed")
		return User{}, AuthError{reason: err}
	}

	logger.Log.WithField("display_name", user.DisplayName).Info("Connected to ODK Central")
	return user, nil
}

// LoggedIn reports whether a session token is held.
func (c *Client) LoggedIn() bool {
	return c.token != ""
}

// Logout discards the session token.
func (c *Client) Logout() {
	c.token = ""
}

func (c *Client) svcURL() string {
	return fmt.Sprintf("%s/v1/projects/%s/forms/%s.svc/Submissions", c.baseURL, c.projectID, c.formID)
}

func (c *Client) formURL() string {
	return fmt.Sprintf("%s/v1/projects/%s/forms/%s", c.baseURL, c.projectID, c.formID)
}

// getJSON performs an authenticated GET and decodes the JSON response body.
func (c *Client) getJSON(ctx context.Context, url string, params map[string]string, out interface{}) error {
	raw, err := c.getRaw(ctx, url, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, url string, params map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	if len(params) > 0 {
		q := req.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s returned %s", req.URL.Path, resp.Status)
	}

	return io.ReadAll(resp.Body)
}
