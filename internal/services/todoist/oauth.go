package todoist

import (
	"context"

	"golang.org/x/oauth2"
)

// Endpoint is Todoist's OAuth 2.0 endpoint
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://todoist.com/oauth/authorize",
	TokenURL: "https://todoist.com/oauth/access_token",
}

// OAuthClient wraps the OAuth2 flow for connecting a Todoist account
type OAuthClient struct {
	config *oauth2.Config
}

// NewOAuthClient creates a new OAuth2 client for Todoist
func NewOAuthClient(clientID, clientSecret, redirectURL string) *OAuthClient {
	return &OAuthClient{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"data:read_write"},
			Endpoint:     Endpoint,
		},
	}
}

// SetEndpoint overrides the OAuth endpoint, primarily for testing
func (c *OAuthClient) SetEndpoint(endpoint oauth2.Endpoint) {
	c.config.Endpoint = endpoint
}

// AuthCodeURL returns the authorization URL for the consent screen
func (c *OAuthClient) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for an access token
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return c.config.Exchange(ctx, code)
}

// Configured reports whether OAuth credentials are set
func (c *OAuthClient) Configured() bool {
	return c.config.ClientID != "" && c.config.ClientSecret != ""
}
