package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/encore/internal/auth"
	"github.com/desertthunder/encore/internal/server"
	"github.com/desertthunder/encore/internal/shared"
	"github.com/desertthunder/encore/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Link runs the OAuth2 loopback flow, persists the token pair, and records
// the linked account as the current user.
func (r *Runner) Link(ctx context.Context, cmd *cli.Command) error {
	if r.config.Catalog.ClientID == "" || r.config.Catalog.ClientSecret == "" {
		return fmt.Errorf("%w: catalog client_id and client_secret must be set in config.toml", shared.ErrMissingCredentials)
	}

	if err := r.ensureStack(ctx); err != nil {
		return err
	}

	linker := &server.Linker{
		Config: server.OAuthConfig(r.config.Catalog),
		Addr:   fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port),
		Logger: r.logger,
		OnAuthURL: func(url string) {
			r.writePlain("→ Opening browser for account authorization...\n")
			r.writePlain("%s\n", r.styles.Help("If the browser does not open, visit:\n"+url))
			r.writePlain("→ Waiting for authorization...\n")
		},
	}

	token, err := linker.Link(ctx)
	if err != nil {
		return err
	}

	profile, err := r.catalog.Profile(ctx, "", token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to resolve linked profile: %w", err)
	}

	record := auth.TokenRecord{
		UserID:       profile.ID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if err := r.tokens.Save(ctx, record); err != nil {
		return err
	}
	if err := r.saveCurrentUser(ctx, profile.ID); err != nil {
		return err
	}

	r.logger.Info("account linked", "user_id", profile.ID)
	r.writePlain("%s\n", r.styles.OK(fmt.Sprintf("Linked as %s (%s)", profile.DisplayName, profile.ID)))
	return nil
}

// LinkStatus reports the current linked account, if any.
func (r *Runner) LinkStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStack(ctx); err != nil {
		return err
	}

	userID, accessToken, err := r.session(ctx)
	if err != nil {
		r.writePlain("%s\n", r.styles.Warn("No account linked"))
		r.writePlain("%s\n", r.styles.Help("Run 'encore link' to connect your account"))
		return nil
	}

	profile, err := r.catalog.Profile(ctx, userID, accessToken)
	if err != nil {
		r.writePlain("%s\n", r.styles.Err(fmt.Sprintf("Linked as %s but the session is unusable: %v", userID, err)))
		return nil
	}

	if cmd.Bool("json") {
		return r.writeJSON(profile, cmd.Bool("pretty"))
	}

	r.writePlain("%s\n", r.styles.OK(fmt.Sprintf("Linked as %s (%s)", profile.DisplayName, profile.ID)))
	return nil
}

// Unlink revokes the current account's tokens and deletes its stored data.
func (r *Runner) Unlink(ctx context.Context, cmd *cli.Command) error {
	if err := r.ensureStack(ctx); err != nil {
		return err
	}

	userID := cmd.String("user")
	if userID == "" {
		var err error
		if userID, _, err = r.session(ctx); err != nil {
			return err
		}
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.writePlain("→ %s\n", update.Message)
		}
	}()

	result, err := r.engine.Unlink(ctx, progress, userID)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlain("%s\n", r.styles.OK(fmt.Sprintf("Unlinked %s (%d snapshots removed)", userID, result.RemovedSessions)))
	return nil
}

func linkCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "link",
		Usage: "Link a streaming account via OAuth2",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
			&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output"},
		},
		Action: r.Link,
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "Show the linked account",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Output as JSON"},
					&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output"},
				},
				Action: r.LinkStatus,
			},
			{
				Name:  "remove",
				Usage: "Unlink an account and delete its stored data",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "User ID to unlink (defaults to current)"},
				},
				Action: r.Unlink,
			},
		},
	}
}
