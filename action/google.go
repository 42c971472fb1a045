package action

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GoogleTokenURL is Google's OAuth 2.0 token endpoint.
const GoogleTokenURL = "https://oauth2.googleapis.com/token"

// GoogleScopes are the scopes the Gmail and Calendar handlers need.
var GoogleScopes = []string{
	gmail.GmailSendScope,
	calendar.CalendarEventsScope,
}

// GoogleCredentials identify the OAuth client and the user whose mailbox and
// calendar are used. The refresh token is exchanged for access tokens as
// needed.
type GoogleCredentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	// TokenURL defaults to GoogleTokenURL.
	TokenURL string
}

// TokenSource returns an auto-refreshing token source for the credentials.
func (c GoogleCredentials) TokenSource(ctx context.Context) oauth2.TokenSource {
	tokenURL := c.TokenURL
	if tokenURL == "" {
		tokenURL = GoogleTokenURL
	}
	cfg := &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		Scopes:       GoogleScopes,
	}
	return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: c.RefreshToken})
}

// Validate reports whether all required credentials are present.
func (c GoogleCredentials) Validate() error {
	switch {
	case c.ClientID == "":
		return fmt.Errorf("google credentials: client_id is required")
	case c.ClientSecret == "":
		return fmt.Errorf("google credentials: client_secret is required")
	case c.RefreshToken == "":
		return fmt.Errorf("google credentials: refresh_token is required")
	}
	return nil
}

// NewGoogleServices builds Gmail and Calendar clients for creds. Extra
// options are appended, which lets tests point both clients at a local
// server.
func NewGoogleServices(ctx context.Context, creds GoogleCredentials, opts ...option.ClientOption) (*gmail.Service, *calendar.Service, error) {
	if err := creds.Validate(); err != nil {
		return nil, nil, err
	}
	clientOpts := append([]option.ClientOption{option.WithTokenSource(creds.TokenSource(ctx))}, opts...)

	gsvc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create gmail client: %w", err)
	}
	csvc, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create calendar client: %w", err)
	}
	return gsvc, csvc, nil
}
