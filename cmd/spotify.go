package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/crawlmix/internal/server"
	"github.com/desertthunder/crawlmix/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultAuthTimeout = 2 * time.Minute

// redirectURI returns the configured redirect URI or one built from the [server] section.
func (r *Runner) redirectURI() string {
	if uri := r.config.Credentials.Spotify.RedirectURI; uri != "" {
		return uri
	}
	return fmt.Sprintf("http://%s:%d/callback", r.config.Server.Host, r.config.Server.Port)
}

// callbackAddr splits the redirect URI into a listen address and a route.
func (r *Runner) callbackAddr() (addr, path string, err error) {
	u, err := url.Parse(r.redirectURI())
	if err != nil {
		return "", "", fmt.Errorf("%w: redirect uri: %v", shared.ErrInvalidConfig, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("%w: redirect uri %q has no host", shared.ErrInvalidConfig, u.String())
	}
	path = u.Path
	if path == "" {
		path = "/callback"
	}
	return u.Host, path, nil
}

// SpotifyAuth performs the OAuth2 PKCE flow for Spotify.
//
// Starts a local HTTP server, opens the browser for user authorization, and saves the issued tokens to the config file.
func (r *Runner) SpotifyAuth(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		if r.config.Credentials.Spotify.ClientID == "" {
			return fmt.Errorf("%w: set credentials.spotify.client_id in %s or SPOTIFY_CLIENT_ID", shared.ErrMissingCredentials, r.configPath)
		}
		if err := r.initSpotify(ctx); err != nil {
			return fmt.Errorf("failed to create Spotify service: %w", err)
		}
	}

	token, err := r.doOAuth(ctx, cmd.Duration("timeout"), !cmd.Bool("no-browser"))
	if err != nil {
		return err
	}

	r.spotify.SetToken(ctx, token)
	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		return fmt.Errorf("failed to update spotify configuration: %w", err)
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n", r.configPath)

	if user, err := r.spotify.CurrentUser(ctx); err == nil {
		r.writePlain("✓ Signed in as %s\n\n", displayName(user.DisplayName, user.ID))
	}
	r.writePlain("You can now use: crawlmix discover\n")
	return nil
}

// WhoAmI prints the account the saved token belongs to.
func (r *Runner) WhoAmI(ctx context.Context, cmd *cli.Command) error {
	catalog, err := r.requireCatalog()
	if err != nil {
		return err
	}

	user, err := catalog.CurrentUser(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, true)
	}
	r.writePlain("%s (%s)\n", displayName(user.DisplayName, user.ID), user.ID)
	return nil
}

// doOAuth runs the authorization code flow with a PKCE verifier against a local callback server
func (r *Runner) doOAuth(ctx context.Context, timeout time.Duration, openBrowser bool) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}
	verifier := oauth2.GenerateVerifier()

	addr, path, err := r.callbackAddr()
	if err != nil {
		return nil, err
	}

	handler := server.NewOAuthHandler(func(ctx context.Context, code string) (*oauth2.Token, error) {
		return r.spotify.Exchange(ctx, code, verifier)
	}, state, path)

	router := server.NewCallbackRouter(server.Logging(r.logger))
	router.Handler(handler)

	srv, err := server.Listen(addr, router, r.logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := srv.Shutdown(); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()
	r.logger.Info("waiting for OAuth callback", "addr", srv.Addr(), "routes", router.Patterns())

	authURL := r.spotify.AuthURL(state, verifier)
	if openBrowser {
		r.writePlain("→ Opening browser for Spotify authorization...\n")
		if err := r.openURL(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	} else {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	result, err := srv.Wait(ctx, handler, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}
	if result.Error() != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrAuthFailed, result.Error())
	}
	if result.Token == nil {
		return nil, fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}
	return result.Token, nil
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return id
}
