package esi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/d3vfreak/fleet-overview/internal/setup/config"
	"github.com/jaxron/axonet/pkg/client"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Scopes requested from the SSO.
var Scopes = []string{"esi-fleets.read_fleet.v1", "esi-location.read_location.v1"}

// loginState is echoed back by the SSO on the callback.
const loginState = "fleet-checker"

// Client talks to the ESI API and the EVE SSO.
type Client struct {
	http      *client.Client
	oauth     *oauth2.Config
	tokenHTTP *http.Client
	baseURL   string
	userAgent string
	logger    *zap.Logger
}

// New creates an ESI client on top of the given HTTP client.
func New(httpClient *client.Client, cfg *config.Config, logger *zap.Logger) *Client {
	loginURL := strings.TrimRight(cfg.ESI.LoginURL, "/")

	return &Client{
		http: httpClient,
		oauth: &oauth2.Config{
			ClientID:     cfg.ESI.ClientID,
			ClientSecret: cfg.ESI.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   loginURL + "/v2/oauth/authorize/",
				TokenURL:  loginURL + "/v2/oauth/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
			RedirectURL: strings.TrimRight(cfg.Server.Domain, "/") + "/callback/",
			Scopes:      Scopes,
		},
		tokenHTTP: &http.Client{Timeout: cfg.RequestTimeout()},
		baseURL:   strings.TrimRight(cfg.ESI.BaseURL, "/"),
		userAgent: cfg.ESI.UserAgent,
		logger:    logger.Named("esi"),
	}
}

// LoginURL returns the SSO authorization URL the browser is sent to.
func (c *Client) LoginURL() string {
	return c.oauth.AuthCodeURL(loginState)
}

// ValidState reports whether a callback carries the state sent with LoginURL.
func (c *Client) ValidState(state string) bool {
	return state == loginState
}

// CharacterName returns the current name of a character. Names can change,
// so callers must not cache the result.
func (c *Client) CharacterName(ctx context.Context, characterID int64) (string, error) {
	info, err := c.PublicInfo(ctx, characterID)
	if err != nil {
		return "", err
	}

	return info.Name, nil
}

// PublicInfo returns the public profile of a character.
func (c *Client) PublicInfo(ctx context.Context, characterID int64) (*PublicInfo, error) {
	var info PublicInfo
	if _, err := c.get(ctx, fmt.Sprintf("/latest/characters/%d/", characterID), "", &info); err != nil {
		return nil, err
	}

	return &info, nil
}

// TypeName returns the display name of an inventory type.
func (c *Client) TypeName(ctx context.Context, typeID int64) (string, error) {
	var info TypeInfo
	if _, err := c.get(ctx, fmt.Sprintf("/latest/universe/types/%d/", typeID), "", &info); err != nil {
		return "", err
	}

	return info.Name, nil
}

// get performs a GET request and decodes the JSON body into out.
// The returned status code is 0 when no response was received.
func (c *Client) get(ctx context.Context, path, accessToken string, out any) (int, error) {
	req := c.http.NewRequest().
		Method(http.MethodGet).
		URL(c.baseURL+path).
		Header("Accept", "application/json")

	if c.userAgent != "" {
		req = req.Header("User-Agent", c.userAgent)
	}

	if accessToken != "" {
		req = req.Header("Authorization", "Bearer "+accessToken)
	}

	resp, err := req.Do(ctx)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			resp.Body.Close()
		}

		return status, fmt.Errorf("%w: GET %s: %w", ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, fmt.Errorf("%w: GET %s returned status %d", ErrUpstream, path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: failed to read %s: %w", ErrUpstream, path, err)
	}

	if err := sonic.Unmarshal(body, out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: failed to decode %s: %w", ErrUpstream, path, err)
	}

	return resp.StatusCode, nil
}
