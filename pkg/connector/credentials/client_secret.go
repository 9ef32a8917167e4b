package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultAuthorityHost is the public cloud login endpoint.
	DefaultAuthorityHost = "https://login.microsoftonline.com"

	// DefaultTenant is the tenant channel bots authenticate against.
	DefaultTenant = "botframework.com"

	// refreshWindow is how long before expiry a cached token is replaced.
	refreshWindow = 5 * time.Minute
)

// ClientSecretCredential obtains app tokens with the OAuth2 client
// credentials grant. Each scope gets its own reusing token source, so tokens
// are cached per scope and refreshed shortly before they expire.
//
// Grants run on a context owned by the credential rather than the caller's,
// so one caller giving up never fails a refresh other callers are waiting on.
type ClientSecretCredential struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

// ClientSecretOption customizes a ClientSecretCredential.
type ClientSecretOption func(*ClientSecretCredential)

// WithAuthorityHost overrides the login endpoint. The token URL becomes
// {host}/{tenant}/oauth2/v2.0/token.
func WithAuthorityHost(host, tenant string) ClientSecretOption {
	return func(c *ClientSecretCredential) {
		c.tokenURL = tokenURL(host, tenant)
	}
}

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(hc *http.Client) ClientSecretOption {
	return func(c *ClientSecretCredential) {
		c.httpClient = hc
	}
}

// NewClientSecretCredential returns a credential for the given app
// registration.
func NewClientSecretCredential(tenant, clientID, clientSecret string, opts ...ClientSecretOption) *ClientSecretCredential {
	if tenant == "" {
		tenant = DefaultTenant
	}

	c := &ClientSecretCredential{
		tokenURL:     tokenURL(DefaultAuthorityHost, tenant),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		sources:      make(map[string]oauth2.TokenSource),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func tokenURL(host, tenant string) string {
	return strings.TrimSuffix(host, "/") + "/" + url.PathEscape(tenant) + "/oauth2/v2.0/token"
}

// Token implements TokenCredential. It returns early with ctx.Err() when ctx
// ends, leaving any grant in flight to finish for the other waiters.
func (c *ClientSecretCredential) Token(ctx context.Context, scope string) (AccessToken, error) {
	src := c.source(scope)

	type result struct {
		tok *oauth2.Token
		err error
	}
	done := make(chan result, 1)
	go func() {
		tok, err := src.Token()
		done <- result{tok, err}
	}()

	select {
	case <-ctx.Done():
		return AccessToken{}, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return AccessToken{}, translateError(res.err)
		}
		if res.tok.AccessToken == "" {
			return AccessToken{}, ErrEmptyToken
		}
		return AccessToken{Token: res.tok.AccessToken, ExpiresOn: res.tok.Expiry}, nil
	}
}

func (c *ClientSecretCredential) source(scope string) oauth2.TokenSource {
	c.mu.Lock()
	defer c.mu.Unlock()

	if src, ok := c.sources[scope]; ok {
		return src
	}

	cfg := &clientcredentials.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		TokenURL:     c.tokenURL,
		Scopes:       []string{scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	grantCtx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)

	// cfg.TokenSource already caches with a 10s window, which would hide the
	// wider refresh window from the outer source. Fetch fresh every time and
	// let the outer source do the caching.
	fresh := tokenSourceFunc(func() (*oauth2.Token, error) {
		return cfg.Token(grantCtx)
	})
	src := oauth2.ReuseTokenSourceWithExpiry(nil, fresh, refreshWindow)
	c.sources[scope] = src
	return src
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

// TokenRequestError is returned when the token endpoint rejects a grant.
type TokenRequestError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *TokenRequestError) Error() string {
	return fmt.Sprintf("token request failed with status %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

func translateError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return fmt.Errorf("failed to obtain token: %w", err)
	}

	out := &TokenRequestError{Code: re.ErrorCode, Description: re.ErrorDescription}
	if re.Response != nil {
		out.StatusCode = re.Response.StatusCode
	}
	return out
}
