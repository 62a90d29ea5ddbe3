// Package server provides HTTP routing, middleware, and OAuth handling for the CLI login flow.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] added first runs outermost.
//
// [CallbackRouter] registers "METHOD /path" patterns on an [http.ServeMux].
//
// # OAuth Callback Handler
//
// [OAuthHandler] receives the authorization code callback of a PKCE flow. It validates the state parameter
// (CSRF protection), exchanges the code through an [ExchangeFunc] and sends the result through a channel.
// It only processes one callback.
//
// [CallbackServer] binds the redirect address (127.0.0.1:3000 by default), serves the router until the
// callback arrives and is shut down by the caller.
package server
