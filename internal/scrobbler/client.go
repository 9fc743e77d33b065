package scrobbler

import (
	"context"
	"fmt"

	"github.com/Techno-coder/pmu/pkg/lastfm"
)

// Client wraps the Last.fm API client
type Client struct {
	client *lastfm.Client
}

// New creates a new Last.fm client. The session key may be empty until
// GetSession or Login succeeds.
func New(cfg lastfm.Config) (*Client, error) {
	client, err := lastfm.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create lastfm client: %w", err)
	}
	return &Client{client: client}, nil
}

// AuthenticateWithToken initiates the web authentication flow.
// Returns the auth URL that the user should visit
func (c *Client) AuthenticateWithToken(ctx context.Context) (token string, authURL string, err error) {
	tokenResp, err := c.client.Auth().GetToken(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to get auth token: %w", err)
	}

	authURL = c.client.Auth().GetAuthURL(tokenResp.Token)
	return tokenResp.Token, authURL, nil
}

// GetSession completes the web authentication flow after user authorization.
// Returns the session key that should be stored for future use
func (c *Client) GetSession(ctx context.Context, token string) (sessionKey string, err error) {
	session, err := c.client.Auth().GetSession(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to login with token: %w", err)
	}
	return c.adopt(session)
}

// Login creates a session from a username and password.
func (c *Client) Login(ctx context.Context, username, password string) (sessionKey string, err error) {
	session, err := c.client.Auth().GetMobileSession(ctx, username, password)
	if err != nil {
		return "", fmt.Errorf("failed to login as %s: %w", username, err)
	}
	return c.adopt(session)
}

func (c *Client) adopt(session *lastfm.Session) (string, error) {
	if session.Key == "" {
		return "", fmt.Errorf("received empty session key")
	}
	c.client.SetSessionKey(session.Key)
	return session.Key, nil
}

// UpdateNowPlaying reports s as the track currently playing.
func (c *Client) UpdateNowPlaying(ctx context.Context, s Scrobble) error {
	resp, err := c.client.Scrobble().UpdateNowPlaying(ctx, s.track())
	if err != nil {
		return fmt.Errorf("failed to update now playing: %w", err)
	}
	if resp.Ignored.Code != 0 {
		return fmt.Errorf("now playing was ignored: %s", resp.Ignored.Text)
	}
	return nil
}

// Submit sends up to lastfm.MaxBatchSize plays in one request. The returned
// slice is aligned with scrobbles and holds the reason Last.fm gave for each
// play it ignored, or "" for accepted plays.
func (c *Client) Submit(ctx context.Context, scrobbles []Scrobble) ([]string, error) {
	if len(scrobbles) == 0 {
		return nil, nil
	}
	if len(scrobbles) > lastfm.MaxBatchSize {
		return nil, fmt.Errorf("cannot scrobble more than %d tracks at once (got %d)", lastfm.MaxBatchSize, len(scrobbles))
	}

	batch := make([]lastfm.Scrobble, len(scrobbles))
	for i, s := range scrobbles {
		batch[i] = lastfm.Scrobble{
			Track:     s.track(),
			Timestamp: s.StartedAt,
		}
	}

	resp, err := c.client.Scrobble().ScrobbleBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to scrobble batch: %w", err)
	}

	ignored := make([]string, len(scrobbles))
	for i, result := range resp.Results {
		if i >= len(ignored) || result.Ignored.Code == 0 {
			continue
		}
		ignored[i] = result.Ignored.Text
		if ignored[i] == "" {
			ignored[i] = fmt.Sprintf("ignored (code %d)", result.Ignored.Code)
		}
	}
	return ignored, nil
}

// IsAuthenticated checks if the client has a valid session
func (c *Client) IsAuthenticated() bool {
	return c.client.SessionKey() != ""
}

// SessionKey returns the current session key
func (c *Client) SessionKey() string {
	return c.client.SessionKey()
}
