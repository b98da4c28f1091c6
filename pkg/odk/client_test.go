package odk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/civicbridge/platform/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func newTestClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:   baseURL + "/",
		Email:     "importer@example.org",
		Password:  "secret",
		ProjectID: "5",
		FormID:    "registrants",
	})
}

func TestLoginStoresToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding login body: %v", err)
		}
		if body["email"] != "importer@example.org" || body["password"] != "secret" {
			t.Fatalf("unexpected credentials: %v", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if client.LoggedIn() {
		t.Fatal("client should start without a session")
	}
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("unexpected login error: %v", err)
	}
	if !client.LoggedIn() {
		t.Fatal("expected session token after login")
	}

	client.Logout()
	if client.LoggedIn() {
		t.Fatal("expected no session after logout")
	}
}

func TestLoginFailureIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.Login(context.Background())
	if err == nil {
		t.Fatal("expected login to fail")
	}
	if !IsAuthError(err) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
}

func TestCurrentUserRequiresSession(t *testing.T) {
	client := newTestClient("http://localhost:0")
	if _, err := client.CurrentUser(context.Background()); !IsAuthError(err) {
		t.Fatalf("expected AuthError without session, got %v", err)
	}
}

func TestCurrentUserVerifiesSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/sessions":
			json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"})
		case "/v1/users/current":
			if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
				t.Fatalf("unexpected auth header: %q", got)
			}
			json.NewEncoder(w).Encode(map[string]string{"displayName": "Field Importer"})
		default:
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("login: %v", err)
	}
	user, err := client.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("current user: %v", err)
	}
	if user.DisplayName != "Field Importer" {
		t.Fatalf("unexpected display name: %q", user.DisplayName)
	}
}
