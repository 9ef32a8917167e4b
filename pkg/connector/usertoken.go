package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// UserTokenClient talks to the token service that brokers OAuth connections
// on behalf of channel users.
type UserTokenClient struct {
	c *client
}

// NewUserTokenClient returns a user-token surface for the token service at
// endpoint.
func NewUserTokenClient(endpoint string, opts Options) *UserTokenClient {
	return &UserTokenClient{c: newClient("UserTokenClient", endpoint, opts)}
}

// SignInURLOptions are the optional parameters of a sign-in link request.
type SignInURLOptions struct {
	CodeChallenge string
	EmulatorURL   string
	FinalRedirect string
}

func (o SignInURLOptions) query(state string) url.Values {
	return url.Values{
		"state":          {state},
		"code_challenge": {o.CodeChallenge},
		"emulatorUrl":    {o.EmulatorURL},
		"finalRedirect":  {o.FinalRedirect},
	}
}

// GetSignInURL returns the identity provider link for an encoded exchange
// state. The service answers in plain text.
func (uc *UserTokenClient) GetSignInURL(ctx context.Context, state string, opts SignInURLOptions) (_ string, err error) {
	ctx, end := uc.c.start(ctx, "GetSignInURL")
	defer func() { end(err) }()

	if err := uc.c.require("GetSignInURL", str("state", state)); err != nil {
		return "", err
	}

	return uc.c.doText(ctx, request{
		method: http.MethodGet,
		path:   "/api/botsignin/GetSignInUrl",
		query:  opts.query(state),
	})
}

// GetSignInResource returns the sign-in link together with the resource a
// channel can use for single sign-on.
func (uc *UserTokenClient) GetSignInResource(ctx context.Context, state string, opts SignInURLOptions) (_ *SignInResource, err error) {
	ctx, end := uc.c.start(ctx, "GetSignInResource")
	defer func() { end(err) }()

	if err := uc.c.require("GetSignInResource", str("state", state)); err != nil {
		return nil, err
	}

	var out SignInResource
	err = uc.c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/botsignin/GetSignInResource",
		query:  opts.query(state),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUserToken fetches the user's token for a connection. When code is set it
// is submitted as the magic code that completes a pending sign-in. A missing
// token is not an error: the result is nil, nil.
func (uc *UserTokenClient) GetUserToken(ctx context.Context, userID, connectionName, channelID, code string) (_ *TokenResponse, err error) {
	ctx, end := uc.c.start(ctx, "GetUserToken")
	defer func() { end(err) }()

	if err := uc.c.require("GetUserToken",
		str("userID", userID),
		str("connectionName", connectionName),
	); err != nil {
		return nil, err
	}

	resp, err := uc.c.send(ctx, request{
		method: http.MethodGet,
		path:   "/api/usertoken/GetToken",
		query: url.Values{
			"userId":         {userID},
			"connectionName": {connectionName},
			"channelId":      {channelID},
			"code":           {code},
		},
	})
	if err != nil {
		return nil, err
	}

	switch {
	case resp.status == http.StatusNotFound:
		return nil, nil
	case !resp.ok():
		return nil, newRequestFailedError(resp.status, resp.body)
	}

	var out TokenResponse
	if err := decodeJSON(resp.body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SignOutUser revokes the user's token. An empty connectionName signs the user
// out of every connection. Signing out a user without a token succeeds.
func (uc *UserTokenClient) SignOutUser(ctx context.Context, userID, connectionName, channelID string) (err error) {
	ctx, end := uc.c.start(ctx, "SignOutUser")
	defer func() { end(err) }()

	if err := uc.c.require("SignOutUser", str("userID", userID)); err != nil {
		return err
	}

	return uc.c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/api/usertoken/SignOut",
		query: url.Values{
			"userId":         {userID},
			"connectionName": {connectionName},
			"channelId":      {channelID},
		},
	}, nil)
}

// GetTokenStatus reports which connections hold a token for the user.
// include is an optional comma separated filter of connection names.
func (uc *UserTokenClient) GetTokenStatus(ctx context.Context, userID, channelID, include string) (_ []TokenStatus, err error) {
	ctx, end := uc.c.start(ctx, "GetTokenStatus")
	defer func() { end(err) }()

	if err := uc.c.require("GetTokenStatus", str("userID", userID), str("channelID", channelID)); err != nil {
		return nil, err
	}

	var out []TokenStatus
	err = uc.c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/usertoken/GetTokenStatus",
		query: url.Values{
			"userId":    {userID},
			"channelId": {channelID},
			"include":   {include},
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAADTokens fetches tokens for several resources in one call, keyed by
// resource URL.
func (uc *UserTokenClient) GetAADTokens(ctx context.Context, userID, connectionName, channelID string, resources *AADResourceURLs) (_ map[string]TokenResponse, err error) {
	ctx, end := uc.c.start(ctx, "GetAADTokens")
	defer func() { end(err) }()

	if err := uc.c.require("GetAADTokens",
		str("userID", userID),
		str("connectionName", connectionName),
		ptr("resources", resources),
	); err != nil {
		return nil, err
	}

	out := map[string]TokenResponse{}
	err = uc.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/usertoken/GetAadTokens",
		query: url.Values{
			"userId":         {userID},
			"connectionName": {connectionName},
			"channelId":      {channelID},
		},
		body: resources,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ============================================================================
// Token exchange
// ============================================================================

// ExchangeResult is the decoded answer of a token exchange. Exactly one field
// is set.
type ExchangeResult struct {
	Token *TokenResponse
	Err   *ExchangeError
}

// decodeExchangeResult classifies an exchange answer once, at the
// deserialization boundary. Success statuses carrying an error envelope, and
// 400/404 answers, are error-shaped results. Anything else non-2xx is a plain
// request failure.
func decodeExchangeResult(resp response) (ExchangeResult, error) {
	var envelope ErrorResponse
	_ = json.Unmarshal(resp.body, &envelope)

	switch {
	case resp.ok() && envelope.Error.Code == "":
		var tok TokenResponse
		if err := decodeJSON(resp.body, &tok); err != nil {
			return ExchangeResult{}, err
		}
		return ExchangeResult{Token: &tok}, nil

	case resp.ok(), resp.status == http.StatusBadRequest, resp.status == http.StatusNotFound:
		return ExchangeResult{Err: &ExchangeError{
			StatusCode: resp.status,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
		}}, nil

	default:
		return ExchangeResult{}, newRequestFailedError(resp.status, resp.body)
	}
}

// ExchangeToken swaps a channel single sign-on token for a user token. An
// error-shaped answer is returned as *ExchangeError, never as a nil token.
func (uc *UserTokenClient) ExchangeToken(ctx context.Context, userID, connectionName, channelID string, exchange *TokenExchangeRequest) (_ *TokenResponse, err error) {
	ctx, end := uc.c.start(ctx, "ExchangeToken")
	defer func() { end(err) }()

	if err := uc.c.require("ExchangeToken",
		str("userID", userID),
		str("connectionName", connectionName),
		str("channelID", channelID),
		ptr("exchange", exchange),
	); err != nil {
		return nil, err
	}

	resp, err := uc.c.send(ctx, request{
		method: http.MethodPost,
		path:   "/api/usertoken/exchange",
		query: url.Values{
			"userId":         {userID},
			"connectionName": {connectionName},
			"channelId":      {channelID},
		},
		body: exchange,
	})
	if err != nil {
		return nil, err
	}

	result, err := decodeExchangeResult(resp)
	if err != nil {
		return nil, err
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Token, nil
}
