package lastfm

import (
	"context"
	"fmt"
	"net/url"
)

// AuthService provides authentication operations for the Last.fm API.
type AuthService struct {
	client *Client
}

// AuthURL is where users authorize a request token.
const AuthURL = "https://www.last.fm/api/auth/"

type sessionXML struct {
	Session struct {
		Name       string `xml:"name"`
		Key        string `xml:"key"`
		Subscriber int    `xml:"subscriber"`
	} `xml:"session"`
}

// GetToken requests an unauthorized token. The user authorizes it at
// GetAuthURL, after which GetSession exchanges it for a session key.
func (a *AuthService) GetToken(ctx context.Context) (*Token, error) {
	inner, err := a.client.call(ctx, "auth.getToken", nil, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Token string `xml:"token"`
	}
	if err := decodeInner(inner, &resp); err != nil {
		return nil, fmt.Errorf("lastfm: failed to parse token response: %w", err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("lastfm: empty token in response")
	}

	return &Token{Token: resp.Token}, nil
}

// GetAuthURL returns the URL where the user authorizes token.
func (a *AuthService) GetAuthURL(token string) string {
	q := url.Values{}
	q.Set("api_key", a.client.apiKey)
	q.Set("token", token)
	return AuthURL + "?" + q.Encode()
}

// GetSession exchanges an authorized token for a session key.
func (a *AuthService) GetSession(ctx context.Context, token string) (*Session, error) {
	inner, err := a.client.call(ctx, "auth.getSession", map[string]string{"token": token}, false)
	if err != nil {
		return nil, err
	}
	return parseSession(inner)
}

// GetMobileSession creates a session directly from a username and password.
func (a *AuthService) GetMobileSession(ctx context.Context, username, password string) (*Session, error) {
	params := map[string]string{
		"username": username,
		"password": password,
	}
	inner, err := a.client.call(ctx, "auth.getMobileSession", params, false)
	if err != nil {
		return nil, err
	}
	return parseSession(inner)
}

func parseSession(inner []byte) (*Session, error) {
	var resp sessionXML
	if err := decodeInner(inner, &resp); err != nil {
		return nil, fmt.Errorf("lastfm: failed to parse session response: %w", err)
	}
	if resp.Session.Key == "" {
		return nil, fmt.Errorf("lastfm: empty session key in response")
	}
	return &Session{
		Key:        resp.Session.Key,
		Username:   resp.Session.Name,
		Subscriber: resp.Session.Subscriber == 1,
	}, nil
}
