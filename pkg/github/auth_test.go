package github

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return key, pemBytes
}

func TestValidateAppID(t *testing.T) {
	tests := []struct {
		appID   string
		wantErr bool
	}{
		{"1", false},
		{"123456", false},
		{"999999999", false},
		{"", true},
		{"abc", true},
		{"-1", true},
		{"0", true},
		{"9999999999", true},
		{"123 456", true},
	}

	for _, tt := range tests {
		t.Run(tt.appID, func(t *testing.T) {
			err := validateAppID(tt.appID)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateAppID(%q) error = %v, wantErr %v", tt.appID, err, tt.wantErr)
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"personal", "ghp_" + strings.Repeat("a", 36), false},
		{"fine grained", "github_pat_" + strings.Repeat("A", 70), false},
		{"classic hex", strings.Repeat("0a", 20), false},
		{"empty", "", true},
		{"too short", "abc", true},
		{"unknown prefix", "xyz_" + strings.Repeat("a", 36), true},
		{"classic non-hex", strings.Repeat("z", 40), true},
		{"too long", "ghp_" + strings.Repeat("a", 300), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateToken(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateToken error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateJWT(t *testing.T) {
	key, pemBytes := testKey(t)
	now := time.Now()

	signed, err := generateJWT("12345", pemBytes, now)
	if err != nil {
		t.Fatalf("generateJWT: %v", err)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if iss, _ := claims.GetIssuer(); iss != "12345" {
		t.Errorf("iss = %q, want 12345", iss)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp.Time.After(now.Add(jwtLifetime+time.Second)) {
		t.Errorf("exp = %v, want at most %v", exp, now.Add(jwtLifetime))
	}
}

func TestGenerateJWT_BadKey(t *testing.T) {
	if _, err := generateJWT("1", []byte("not a key"), time.Now()); err == nil {
		t.Error("expected error for non-PEM key")
	}
}

func TestLoadPrivateKey(t *testing.T) {
	_, pemBytes := testKey(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.pem")
	if err := os.WriteFile(good, pemBytes, filePermOwnerRW); err != nil {
		t.Fatal(err)
	}
	loose := filepath.Join(dir, "loose.pem")
	if err := os.WriteFile(loose, pemBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		content []byte
		path    string
		wantErr bool
	}{
		{"content", pemBytes, "", false},
		{"file", nil, good, false},
		{"content wins over path", pemBytes, "/does/not/exist", false},
		{"nothing", nil, "", true},
		{"not pem", []byte("hello"), "", true},
		{"relative path", nil, "key.pem", true},
		{"insecure permissions", nil, loose, true},
		{"directory", nil, dir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadPrivateKey(tt.content, tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("loadPrivateKey error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_TokenAuth(t *testing.T) {
	token := "ghp_" + strings.Repeat("a", 36)
	c, err := New(context.Background(), Config{Token: token})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.isAppAuth {
		t.Error("expected token auth")
	}
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
	}

	header, err := c.authorization(context.Background(), "acme")
	if err != nil || header != "token "+token {
		t.Errorf("authorization = %q, %v", header, err)
	}
}

func TestNew_InvalidToken(t *testing.T) {
	if _, err := New(context.Background(), Config{Token: "nope"}); err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestNew_AppAuthRequiresID(t *testing.T) {
	_, pemBytes := testKey(t)
	if _, err := New(context.Background(), Config{UseAppAuth: true, AppKey: pemBytes}); err == nil {
		t.Error("expected error without app id")
	}
}

func TestInstallationToken(t *testing.T) {
	_, pemBytes := testKey(t)
	var minted atomic.Int32

	srv := newTestServer(t, map[string]http.HandlerFunc{
		"GET /orgs/acme/installation": func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				t.Errorf("installation lookup must use the app JWT, got %q", r.Header.Get("Authorization"))
			}
			writeJSON(w, http.StatusOK, `{"id": 77}`)
		},
		"POST /app/installations/77/access_tokens": func(w http.ResponseWriter, _ *http.Request) {
			minted.Add(1)
			writeJSON(w, http.StatusCreated, `{"token":"ghs_installation","expires_at":"`+
				time.Now().Add(time.Hour).UTC().Format(time.RFC3339)+`"}`)
		},
		"GET /repos/acme/widgets/pulls/1": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "token ghs_installation" {
				t.Errorf("Authorization = %q, want installation token", got)
			}
			writeJSON(w, http.StatusOK, `{"number":1}`)
		},
	})

	c, err := New(context.Background(), Config{
		UseAppAuth: true,
		AppID:      "42",
		AppKey:     pemBytes,
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for range 2 {
		if _, err := c.PullRequest(context.Background(), "acme", "widgets", 1); err != nil {
			t.Fatalf("PullRequest: %v", err)
		}
	}
	if n := minted.Load(); n != 1 {
		t.Errorf("minted %d installation tokens, want 1 (cached)", n)
	}
}

func TestInstallationToken_FallsBackToUsersThenJWT(t *testing.T) {
	_, pemBytes := testKey(t)
	var sawJWT atomic.Bool

	srv := newTestServer(t, map[string]http.HandlerFunc{
		"GET /repos/someone/tool/pulls/3": func(w http.ResponseWriter, r *http.Request) {
			sawJWT.Store(strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
			writeJSON(w, http.StatusOK, `{"number":3}`)
		},
	})

	c, err := New(context.Background(), Config{
		UseAppAuth: true, AppID: "42", AppKey: pemBytes, BaseURL: srv.URL, HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.PullRequest(context.Background(), "someone", "tool", 3); err != nil {
		t.Fatalf("PullRequest: %v", err)
	}
	if !sawJWT.Load() {
		t.Error("expected request to fall back to the app JWT")
	}
}

func TestCurrentJWT_Refresh(t *testing.T) {
	_, pemBytes := testKey(t)
	c := newClient(Config{})
	if err := c.configureAppAuth(Config{AppID: "7", AppKey: pemBytes}); err != nil {
		t.Fatal(err)
	}
	first, err := c.currentJWT()
	if err != nil {
		t.Fatal(err)
	}

	c.now = func() time.Time { return time.Now().Add(jwtRefreshAfter + time.Minute) }
	second, err := c.currentJWT()
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("expected JWT to be re-signed after expiry")
	}
}
