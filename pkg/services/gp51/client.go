package gp51

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/envio-tools/fleet-atlas/pkg/services/validation"
	"github.com/rs/zerolog"
)

// ConnectionHealth summarizes the current state of the GP51 session.
type ConnectionHealth struct {
	IsConnected  bool
	ResponseTime time.Duration
	TokenValid   bool
	SessionValid bool
	Error        string
}

// Client is the GP51 webapi surface the rest of the system depends on. The
// reconciliation metadata rule only needs QueryMonitorList; the poller uses
// GetPositions.
type Client interface {
	Authenticate(ctx context.Context, username, password string) (*validation.AuthResponse, error)
	QueryMonitorList(ctx context.Context) (*validation.DeviceListResponse, error)
	GetPositions(ctx context.Context, deviceIDs []string) ([]validation.Position, error)
	ConnectionHealth(ctx context.Context) (ConnectionHealth, error)
}

type Settings struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	TokenTTL time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Timeout:  30 * time.Second,
		TokenTTL: 23 * time.Hour,
	}
}

type httpClient struct {
	settings Settings
	http     *http.Client

	mu        sync.Mutex
	token     string
	tokenFrom time.Time
}

func NewClient(settings Settings) Client {
	if settings.Timeout == 0 {
		settings.Timeout = DefaultSettings().Timeout
	}
	if settings.TokenTTL == 0 {
		settings.TokenTTL = DefaultSettings().TokenTTL
	}
	return &httpClient{
		settings: settings,
		http:     &http.Client{Timeout: settings.Timeout},
	}
}

// call posts a JSON body to the single-endpoint action protocol and decodes
// the response into an untyped payload for schema validation.
func (c *httpClient) call(ctx context.Context, action, token string, body any) (any, error) {
	u, err := url.Parse(c.settings.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("gp51 base url: %w", err)
	}
	q := u.Query()
	q.Set("action", action)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gp51 %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gp51 %s: unexpected status %d", action, resp.StatusCode)
	}

	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", action, err)
	}
	return out, nil
}

func hashPassword(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

func (c *httpClient) Authenticate(ctx context.Context, username, password string) (*validation.AuthResponse, error) {
	raw, err := c.call(ctx, "login", "", map[string]string{
		"username": username,
		"password": hashPassword(password),
		"from":     "WEB",
		"type":     "USER",
	})
	if err != nil {
		return nil, err
	}

	res := validation.ValidateAuthResponse(raw)
	if !res.Success {
		return nil, fmt.Errorf("gp51 login: invalid response: %s", res.Errors[0].Message)
	}

	if res.Data.Status == 0 {
		c.mu.Lock()
		c.token = res.Data.Token
		c.tokenFrom = time.Now()
		c.mu.Unlock()
	}
	return res.Data, nil
}

// ensureToken logs in with the configured account when no fresh token is cached.
func (c *httpClient) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	fresh := token != "" && time.Since(c.tokenFrom) < c.settings.TokenTTL
	c.mu.Unlock()
	if fresh {
		return token, nil
	}

	auth, err := c.Authenticate(ctx, c.settings.Username, c.settings.Password)
	if err != nil {
		return "", err
	}
	if auth.Status != 0 {
		return "", fmt.Errorf("gp51 login rejected: %s", auth.Cause)
	}
	return auth.Token, nil
}

func (c *httpClient) QueryMonitorList(ctx context.Context) (*validation.DeviceListResponse, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := c.call(ctx, "querymonitorlist", token, map[string]string{
		"username": c.settings.Username,
	})
	if err != nil {
		return nil, err
	}

	res := validation.ValidateDeviceListResponse(raw)
	if !res.Success {
		return nil, fmt.Errorf("gp51 querymonitorlist: invalid response: %s", res.Errors[0].Message)
	}
	if res.Data.Status != 0 {
		return nil, fmt.Errorf("gp51 querymonitorlist rejected: %s", res.Data.Cause)
	}
	return res.Data, nil
}

func (c *httpClient) GetPositions(ctx context.Context, deviceIDs []string) ([]validation.Position, error) {
	logger := zerolog.Ctx(ctx)

	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := c.call(ctx, "lastposition", token, map[string]any{
		"deviceids":             deviceIDs,
		"lastquerypositiontime": 0,
	})
	if err != nil {
		return nil, err
	}

	envelope, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("gp51 lastposition: unexpected payload shape")
	}
	records, _ := envelope["records"].([]any)

	positions := make([]validation.Position, 0, len(records))
	for _, rec := range records {
		res := validation.ValidatePositionWithRules(rec)
		if !res.Success {
			logger.Warn().
				Str("code", res.Errors[0].Code).
				Str("field", res.Errors[0].Field).
				Msg("dropping invalid position record")
			continue
		}
		positions = append(positions, *res.Data)
	}
	return positions, nil
}

func (c *httpClient) ConnectionHealth(ctx context.Context) (ConnectionHealth, error) {
	c.mu.Lock()
	tokenValid := c.token != "" && time.Since(c.tokenFrom) < c.settings.TokenTTL
	c.mu.Unlock()

	start := time.Now()
	_, err := c.QueryMonitorList(ctx)
	elapsed := time.Since(start)

	health := ConnectionHealth{
		IsConnected:  err == nil,
		ResponseTime: elapsed,
		TokenValid:   tokenValid,
		SessionValid: err == nil,
	}
	if err != nil {
		health.Error = err.Error()
	}
	return health, nil
}
