// Package upstox holds the provider constants for the Upstox v2 API.
package upstox

import (
	"golang.org/x/oauth2"
)

const (
	// AuthURL is the user-facing authorization dialog.
	AuthURL = "https://api.upstox.com/v2/login/authorization/dialog"

	// TokenURL is the server-to-server code exchange endpoint.
	TokenURL = "https://api.upstox.com/v2/login/authorization/token"

	// ProfileURL returns the profile of the authenticated user.
	ProfileURL = "https://api.upstox.com/v2/user/profile"
)

// Endpoint defines the OAuth2 endpoints for Upstox.
// Upstox expects client credentials in the form body, not basic auth.
var Endpoint = oauth2.Endpoint{
	AuthURL:   AuthURL,
	TokenURL:  TokenURL,
	AuthStyle: oauth2.AuthStyleInParams,
}
