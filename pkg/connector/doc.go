// Package connector is a client for the channel connector and token services
// a bot talks to.
//
// Three surfaces share one authenticated RPC core:
//
//   - ConversationsClient sends, threads, updates and deletes activities and
//     enumerates conversation members.
//   - UserTokenClient issues sign-in links, fetches and revokes user tokens and
//     performs single sign-on exchanges.
//   - AttachmentsClient reads attachments stored by a channel.
//
// Every call opens an OpenTelemetry span named "{Client}.{Operation}", checks
// its required arguments before touching the network, attaches a bearer token
// from the configured credential and maps non-2xx answers to
// *RequestFailedError. Calls are never retried.
//
// Example:
//
//	cred := credentials.NewClientSecretCredential(tenant, appID, password)
//	tokens := connector.NewUserTokenClient("https://token.botframework.com", connector.Options{
//		Credential: cred,
//		Scope:      "https://api.botframework.com/.default",
//	})
//	tok, err := tokens.GetUserToken(ctx, userID, "github", "msteams", "")
//	if err != nil {
//		return err
//	}
//	if tok == nil {
//		// not signed in yet
//	}
package connector
