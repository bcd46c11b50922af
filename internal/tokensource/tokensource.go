// Package tokensource builds the HTTP transport that authenticates requests
// to the Anthropic API.
//
// Two modes exist. In API-key mode the SDK sets the x-api-key header itself
// and the base transport is used unchanged. In bearer mode an OAuth access
// token obtained out-of-band is injected via oauth2.Transport. Token
// acquisition and refresh flows are out of scope here; this package only
// decides which headers ride on the underlying transport.
package tokensource

import (
	"net/http"

	"golang.org/x/oauth2"
)

// Bearer wraps base in an oauth2 transport that sends the given access token
// as an Authorization: Bearer header on every request. A nil base falls back
// to http.DefaultTransport.
func Bearer(accessToken string, base http.RoundTripper) http.RoundTripper {
	return &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}),
		Base:   base,
	}
}
