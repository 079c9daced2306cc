package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/encore/internal/client"
)

// Exchanger issues and refreshes tokens against the catalog's OAuth2 token
// endpoint using HTTP Basic client-credential auth, routed through the
// resilient client so transient token-endpoint failures are retried.
type Exchanger struct {
	client       *client.Client
	tokenURL     string
	clientID     string
	clientSecret string
	now          func() time.Time
}

// NewExchanger creates an Exchanger for the given token endpoint.
func NewExchanger(c *client.Client, tokenURL, clientID, clientSecret string) *Exchanger {
	return &Exchanger{
		client:       c,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Refresh exchanges a refresh token for a new token pair via the
// refresh_token grant. Some providers omit the rotated refresh token from
// the response; the prior one remains valid in that case.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*TokenRecord, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	record, err := e.grant(ctx, form)
	if err != nil {
		return nil, err
	}

	if record.RefreshToken == "" {
		record.RefreshToken = refreshToken
	}

	return record, nil
}

// ClientCredentials obtains an application-level token via the
// client_credentials grant. Used for catalog reads that need no user
// context.
func (e *Exchanger) ClientCredentials(ctx context.Context) (*TokenRecord, error) {
	return e.grant(ctx, url.Values{"grant_type": {"client_credentials"}})
}

func (e *Exchanger) grant(ctx context.Context, form url.Values) (*TokenRecord, error) {
	resp, err := e.client.Execute(ctx, client.Request{
		Method:    http.MethodPost,
		Path:      e.tokenURL,
		Form:      form,
		BasicUser: e.clientID,
		BasicPass: e.clientSecret,
	})
	if err != nil {
		return nil, err
	}

	var body tokenResponse
	if err := resp.JSON(&body); err != nil {
		return nil, err
	}

	if body.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}

	record := &TokenRecord{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
	}

	if body.ExpiresIn > 0 {
		record.ExpiresAt = e.now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}

	return record, nil
}
