package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// OAuthExchanger performs the refresh-token grant against an OAuth2 token
// endpoint.
type OAuthExchanger struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuthExchanger creates an exchanger for the given application
// credentials. httpClient may be nil to use http.DefaultClient.
func NewOAuthExchanger(clientID, clientSecret, tokenURL string, httpClient *http.Client) *OAuthExchanger {
	return &OAuthExchanger{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// Exchange implements Exchanger.
func (e *OAuthExchanger) Exchange(ctx context.Context, refreshToken string) (*Grant, error) {
	if e.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	}

	tok, err := e.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl <= 0 && !tok.Expiry.IsZero() {
		ttl = time.Until(tok.Expiry)
	}

	return &Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TTL:          ttl,
	}, nil
}
