// Package destination implements the authenticated REST client against the
// destination catalog, plus OIDC client-credentials login.
package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Result is the uniform envelope every destination operation returns.
type Result struct {
	Success bool
	Value   map[string]interface{}
	Reason  []string // nil: no reason extracted (e.g. a timeout)
}

// Config holds the destination base URL and OIDC client-credentials settings.
type Config struct {
	BaseURL string

	OIDCIssuerURL   string
	OIDCClientID    string
	OIDCClientSecret string
}

// Client talks to the destination catalog's asset/platform/service endpoints.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	token       string
	tokenExpiry time.Time
}

// New builds a Client for cfg.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) assetURL(assetType string, identifier string) string {
	u := fmt.Sprintf("%s/%s/v1/%s", c.cfg.BaseURL, assetType, identifier)
	return strings.TrimRight(u, "/")
}

func (c *Client) platformAssetURL(platformName, assetType, platformResourceIdentifier string) string {
	return fmt.Sprintf("%s/platforms/%s/%s/v1/%s", c.cfg.BaseURL, platformName, assetType, platformResourceIdentifier)
}

// ClearToken forgets any cached bearer token, forcing the next Login to
// re-acquire one.
func (c *Client) ClearToken() {
	c.token = ""
	c.tokenExpiry = time.Time{}
}

// Login sets the bearer token used for every subsequent request. If
// accessToken is non-empty it is used verbatim (bypassing OIDC discovery,
// useful for local testing against a fixed token); otherwise a token is
// acquired via client-credentials against the configured OIDC issuer.
func (c *Client) Login(ctx context.Context, accessToken string) (bool, error) {
	if accessToken != "" {
		c.token = accessToken
		c.tokenExpiry = tokenExpiry(accessToken)
		return true, nil
	}

	if c.token != "" && !c.tokenExpired() {
		return true, nil
	}

	tok, err := c.acquireToken(ctx)
	if err != nil {
		return false, err
	}
	c.token = tok
	c.tokenExpiry = tokenExpiry(tok)
	return c.token != "", nil
}

// tokenExpired reports whether the cached token's exp claim, if any, has
// already passed. Unparseable or claim-less tokens are never considered
// expired by this check alone; the authoritative signal is still
// LoggedUser/IsLoggedIn.
func (c *Client) tokenExpired() bool {
	return !c.tokenExpiry.IsZero() && time.Now().After(c.tokenExpiry)
}

func (c *Client) doRequest(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.httpClient.Do(req)
}

// extractReasons mirrors _format_details: a string "detail" becomes one
// reason, a list of {loc, msg} objects becomes "a/b/c - msg" strings.
func extractReasons(content map[string]interface{}) []string {
	if content == nil {
		return nil
	}
	detail, ok := content["detail"]
	if !ok {
		return nil
	}

	switch d := detail.(type) {
	case string:
		return []string{d}
	case []interface{}:
		var out []string
		for _, item := range d {
			m, ok := item.(map[string]interface{})
			if !ok {
				out = append(out, fmt.Sprintf("%v", item))
				continue
			}
			loc, hasLoc := m["loc"]
			if !hasLoc {
				out = append(out, fmt.Sprintf("%v", m))
				continue
			}
			locParts, _ := loc.([]interface{})
			strParts := make([]string, len(locParts))
			for i, p := range locParts {
				strParts[i] = fmt.Sprintf("%v", p)
			}
			out = append(out, fmt.Sprintf("%s - %v", strings.Join(strParts, "/"), m["msg"]))
		}
		return out
	default:
		return nil
	}
}

// handleResponse turns an *http.Response into the uniform Result envelope.
func handleResponse(resp *http.Response, err error) (Result, error) {
	if err != nil {
		if isTimeout(err) {
			return Result{Success: false, Value: nil, Reason: nil}, nil
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return Result{}, readErr
	}

	var content map[string]interface{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &content)
	}

	if resp.StatusCode >= 400 {
		reasons := extractReasons(content)
		if reasons == nil {
			reasons = []string{resp.Status}
		}
		return Result{Success: false, Value: nil, Reason: reasons}, nil
	}

	return Result{
		Success: resp.StatusCode == http.StatusOK || (resp.StatusCode >= 200 && resp.StatusCode < 300),
		Value:   content,
		Reason:  extractReasons(content),
	}, nil
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return false
}

// LoggedUser probes /authorization_test; an empty map means not logged in.
func (c *Client) LoggedUser(ctx context.Context) (map[string]interface{}, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.cfg.BaseURL+"/authorization_test", nil)
	result, err := handleResponse(resp, err)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return map[string]interface{}{}, nil
	}
	return result.Value, nil
}

// IsLoggedIn reports whether LoggedUser returns a non-empty user.
func (c *Client) IsLoggedIn(ctx context.Context) (bool, error) {
	user, err := c.LoggedUser(ctx)
	if err != nil {
		return false, err
	}
	return len(user) > 0, nil
}

// GetAsset fetches a single entity by type and identifier.
func (c *Client) GetAsset(ctx context.Context, assetType string, identifier string) (Result, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.assetURL(assetType, identifier), nil)
	return handleResponse(resp, err)
}

// AddAsset creates a new entity of assetType.
func (c *Client) AddAsset(ctx context.Context, assetType string, asset map[string]interface{}) (Result, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, c.assetURL(assetType, ""), asset)
	return handleResponse(resp, err)
}

// UpdateAsset overwrites an existing entity, keyed by asset["identifier"].
func (c *Client) UpdateAsset(ctx context.Context, assetType string, asset map[string]interface{}) (Result, error) {
	id := fmt.Sprintf("%v", asset["identifier"])
	resp, err := c.doRequest(ctx, http.MethodPut, c.assetURL(assetType, id), asset)
	return handleResponse(resp, err)
}

// DeleteAsset removes an entity by type and identifier.
func (c *Client) DeleteAsset(ctx context.Context, assetType string, identifier string) (Result, error) {
	resp, err := c.doRequest(ctx, http.MethodDelete, c.assetURL(assetType, identifier), nil)
	return handleResponse(resp, err)
}

// GetAssetFromPlatform fetches an entity by its platform-native identifier.
func (c *Client) GetAssetFromPlatform(ctx context.Context, platformName, assetType, platformResourceIdentifier string) (Result, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.platformAssetURL(platformName, assetType, platformResourceIdentifier), nil)
	return handleResponse(resp, err)
}

// Count returns the destination's asset-count summary.
func (c *Client) Count(ctx context.Context) (Result, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, c.assetURL("counts", ""), nil)
	return handleResponse(resp, err)
}

// GetPlatform fetches a platform entity by identifier, or nil if not found.
func (c *Client) GetPlatform(ctx context.Context, id string) (map[string]interface{}, error) {
	result, err := c.GetAsset(ctx, "platforms", id)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, nil
	}
	return result.Value, nil
}

// AddPlatform creates a platform and returns its new identifier.
func (c *Client) AddPlatform(ctx context.Context, platform map[string]interface{}) (string, error) {
	result, err := c.AddAsset(ctx, "platforms", platform)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", nil
	}
	return identifierOf(result.Value), nil
}

// UpdatePlatform overwrites an existing platform entity.
func (c *Client) UpdatePlatform(ctx context.Context, platform map[string]interface{}) (map[string]interface{}, error) {
	result, err := c.UpdateAsset(ctx, "platforms", platform)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, nil
	}
	return result.Value, nil
}

func identifierOf(v map[string]interface{}) string {
	if v == nil {
		return ""
	}
	switch id := v["identifier"].(type) {
	case string:
		return id
	case float64:
		return strconv.FormatInt(int64(id), 10)
	default:
		return fmt.Sprintf("%v", id)
	}
}
