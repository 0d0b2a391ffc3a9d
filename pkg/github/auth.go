package github

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication constants.
const (
	maxTokenLength     = 255 // fine-grained tokens are longer than classic ones
	minTokenLength     = 40
	classicTokenLength = 40
	maxAppID           = 999999999
	filePermReadOnly   = 0o400
	filePermOwnerRW    = 0o600

	jwtLifetime       = 10 * time.Minute // GitHub rejects App JWTs valid for longer
	jwtRefreshAfter   = 9 * time.Minute
	installationSlack = 5 * time.Minute
)

type installationToken struct {
	expires time.Time
	token   string
}

// generateJWT generates a JWT token for GitHub App authentication.
func generateJWT(appID string, privateKey []byte, now time.Time) (string, error) {
	block, _ := pem.Decode(privateKey)
	if block == nil {
		return "", errors.New("failed to parse PEM block containing the private key")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		parsedKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("failed to parse private key: %w", err)
		}
		var ok bool
		key, ok = parsedKey.(*rsa.PrivateKey)
		if !ok {
			return "", errors.New("private key is not RSA")
		}
	}

	claims := jwt.MapClaims{
		"iat": now.Add(-time.Minute).Unix(), // clock drift allowance
		"exp": now.Add(jwtLifetime).Unix(),
		"iss": appID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

// configureAppAuth validates App credentials and signs the first JWT.
func (c *Client) configureAppAuth(cfg Config) error {
	if cfg.AppID == "" {
		return errors.New("GitHub App ID is required (github.app_id)")
	}
	if err := validateAppID(cfg.AppID); err != nil {
		return err
	}
	privateKey, err := loadPrivateKey(cfg.AppKey, cfg.AppKeyPath)
	if err != nil {
		return err
	}

	now := c.now()
	token, err := generateJWT(cfg.AppID, privateKey, now)
	if err != nil {
		return fmt.Errorf("failed to generate JWT: %w", err)
	}

	c.isAppAuth = true
	c.appID = cfg.AppID
	c.privateKeyPath = cfg.AppKeyPath
	c.privateKeyContent = privateKey
	c.token = token
	c.tokenExpiry = now.Add(jwtRefreshAfter)
	slog.Info("Using GitHub App authentication", "component", "auth", "app_id", cfg.AppID)
	return nil
}

// configureTokenAuth uses the given token, falling back to the gh CLI.
func (c *Client) configureTokenAuth(ctx context.Context, token string) error {
	if token == "" {
		out, err := exec.CommandContext(ctx, "gh", "auth", "token").Output()
		if err != nil {
			return fmt.Errorf("no GitHub token configured and `gh auth token` failed: %w", err)
		}
		token = strings.TrimSpace(string(out))
	}
	if err := validateToken(token); err != nil {
		return err
	}
	c.token = token
	slog.Debug("Using personal access token authentication", "component", "auth")
	return nil
}

// validateAppID validates the GitHub App ID.
func validateAppID(appID string) error {
	n, err := strconv.Atoi(appID)
	if err != nil {
		return fmt.Errorf("GitHub App ID must be numeric: %w", err)
	}
	if n <= 0 || n > maxAppID {
		return errors.New("GitHub App ID out of valid range")
	}
	return nil
}

// loadPrivateKey returns content if set, otherwise reads keyPath.
func loadPrivateKey(content []byte, keyPath string) ([]byte, error) {
	var key []byte
	switch {
	case len(content) > 0:
		key = content
	case keyPath != "":
		var err error
		key, err = readPrivateKeyFile(keyPath)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("GitHub App private key is required (github.app_key_path)")
	}

	if !bytes.Contains(key, []byte("BEGIN RSA PRIVATE KEY")) &&
		!bytes.Contains(key, []byte("BEGIN PRIVATE KEY")) {
		return nil, errors.New("private key does not appear to be a valid PEM private key")
	}
	return key, nil
}

// readPrivateKeyFile reads a key file that must be absolute and owner-only.
func readPrivateKeyFile(keyPath string) ([]byte, error) {
	cleanPath := filepath.Clean(keyPath)
	if !filepath.IsAbs(cleanPath) {
		return nil, errors.New("private key path must be an absolute path")
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("cannot access private key file: %w", err)
	}
	if info.IsDir() {
		return nil, errors.New("private key path must be a file, not a directory")
	}
	if perm := info.Mode().Perm(); perm != filePermOwnerRW && perm != filePermReadOnly {
		return nil, fmt.Errorf("private key file has insecure permissions %04o (must be 0600 or 0400)", perm)
	}
	return os.ReadFile(cleanPath)
}

// validateToken rejects values that cannot be GitHub tokens.
func validateToken(token string) error {
	if token == "" {
		return errors.New("no GitHub token found")
	}
	if len(token) > maxTokenLength || len(token) < minTokenLength {
		return errors.New("invalid token length")
	}

	for _, prefix := range []string{"ghp_", "gho_", "ghu_", "ghs_", "ghr_", "github_pat_"} {
		if strings.HasPrefix(token, prefix) {
			return nil
		}
	}

	// Classic tokens are 40 lowercase hex characters.
	if len(token) != classicTokenLength {
		return errors.New("invalid token format")
	}
	for _, r := range token {
		if (r < 'a' || r > 'f') && (r < '0' || r > '9') {
			return errors.New("invalid classic token format")
		}
	}
	return nil
}

// authorization returns the Authorization header for requests against owner's repositories.
func (c *Client) authorization(ctx context.Context, owner string) (string, error) {
	if !c.isAppAuth {
		return "token " + c.token, nil
	}
	token, err := c.installationToken(ctx, owner)
	if err != nil {
		// Public repositories are still readable with the bare JWT.
		slog.Warn("Failed to get installation token, continuing with app JWT", "component", "auth", "owner", owner, "error", err)
		jwtToken, jerr := c.currentJWT()
		if jerr != nil {
			return "", jerr
		}
		return "Bearer " + jwtToken, nil
	}
	return "token " + token, nil
}

// currentJWT returns the App JWT, re-signing it when close to expiry.
func (c *Client) currentJWT() (string, error) {
	c.tokenMutex.RLock()
	if c.now().Before(c.tokenExpiry) {
		token := c.token
		c.tokenMutex.RUnlock()
		return token, nil
	}
	c.tokenMutex.RUnlock()

	c.tokenMutex.Lock()
	defer c.tokenMutex.Unlock()
	now := c.now()
	if now.Before(c.tokenExpiry) {
		return c.token, nil
	}

	key := c.privateKeyContent
	if len(key) == 0 {
		var err error
		key, err = os.ReadFile(c.privateKeyPath)
		if err != nil {
			return "", fmt.Errorf("failed to read private key for refresh: %w", err)
		}
	}
	token, err := generateJWT(c.appID, key, now)
	if err != nil {
		return "", fmt.Errorf("failed to generate JWT for refresh: %w", err)
	}
	c.token = token
	c.tokenExpiry = now.Add(jwtRefreshAfter)
	slog.Debug("Refreshed GitHub App JWT", "component", "auth")
	return token, nil
}

// installationToken returns a cached or freshly minted installation token for owner.
func (c *Client) installationToken(ctx context.Context, owner string) (string, error) {
	if owner == "" {
		return "", errors.New("owner cannot be empty")
	}

	c.tokenMutex.RLock()
	cached, ok := c.installationTokens[owner]
	c.tokenMutex.RUnlock()
	if ok && c.now().Before(cached.expires) {
		return cached.token, nil
	}

	jwtToken, err := c.currentJWT()
	if err != nil {
		return "", err
	}

	id, err := c.installationID(ctx, jwtToken, owner)
	if err != nil {
		return "", err
	}

	var tokenResp struct {
		ExpiresAt time.Time `json:"expires_at"`
		Token     string    `json:"token"`
	}
	apiURL := fmt.Sprintf("%s/app/installations/%d/access_tokens", c.baseURL, id)
	if err := c.appRequest(ctx, http.MethodPost, apiURL, jwtToken, http.StatusCreated, &tokenResp); err != nil {
		return "", fmt.Errorf("create installation token for %s: %w", owner, err)
	}
	if tokenResp.Token == "" {
		return "", errors.New("received empty installation token")
	}

	c.tokenMutex.Lock()
	c.installationTokens[owner] = installationToken{
		token:   tokenResp.Token,
		expires: tokenResp.ExpiresAt.Add(-installationSlack),
	}
	c.tokenMutex.Unlock()

	slog.Info("Created installation access token", "component", "auth", "owner", owner,
		"expires_at", tokenResp.ExpiresAt.Format(time.RFC3339))
	return tokenResp.Token, nil
}

// installationID finds the App installation for an organization or user account.
func (c *Client) installationID(ctx context.Context, jwtToken, owner string) (int64, error) {
	var inst struct {
		ID int64 `json:"id"`
	}
	var lastErr error
	for _, kind := range []string{"orgs", "users"} {
		apiURL := fmt.Sprintf("%s/%s/%s/installation", c.baseURL, kind, url.PathEscape(owner))
		err := c.appRequest(ctx, http.MethodGet, apiURL, jwtToken, http.StatusOK, &inst)
		if err == nil {
			return inst.ID, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("no installation found for %s (is the app installed?): %w", owner, lastErr)
}

// appRequest performs a JWT-authenticated App API call and decodes the response.
func (c *Client) appRequest(ctx context.Context, method, apiURL, jwtToken string, wantStatus int, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, apiURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer drainAndCloseBody(resp.Body)

	if resp.StatusCode != wantStatus {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if err != nil {
			return fmt.Errorf("status %d (could not read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
