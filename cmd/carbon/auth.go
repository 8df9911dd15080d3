package carbon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/saadjs/carbon-cli/internal/identity"
)

var (
	loginToken string
	loginEmail string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with an identity token, or as a local user when no secret is configured",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := sessionForLogin(time.Now())
		if err != nil {
			return err
		}
		store := identity.NewSessionFile(cfg.Auth.SessionPath)
		if err := store.Save(session); err != nil {
			return err
		}
		userFlag = session.UserID
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			logger.Info("signed in", zap.String("owner", session.UserID), zap.String("method", session.Method))
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s", session.UserID)
			if session.Email != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " <%s>", session.Email)
			}
			fmt.Fprintf(cmd.OutOrStdout(), " (%d records)\n", a.repo.TotalRecords(session.UserID))
			return nil
		})
	},
}

func sessionForLogin(now time.Time) (identity.Session, error) {
	if token := strings.TrimSpace(loginToken); token != "" {
		claims, err := identity.VerifyToken(token, cfg.Auth.JWTSecret)
		if err != nil {
			return identity.Session{}, err
		}
		return identity.SessionFromClaims(claims, now), nil
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) != "" {
		return identity.Session{}, fmt.Errorf("auth.jwt_secret is set: sign in with --token")
	}
	user := strings.TrimSpace(userFlag)
	if user == "" {
		return identity.Session{}, fmt.Errorf("--token or --user is required")
	}
	return identity.Session{
		UserID:     user,
		Email:      strings.TrimSpace(loginEmail),
		Method:     "local",
		SignedInAt: now,
	}, nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the in-memory history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *appContext) error {
			a.repo.Reset()
			if err := a.session.Delete(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the active owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		if u := strings.TrimSpace(userFlag); u != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (from --user)\n", u)
			return nil
		}
		session, ok, err := identity.NewSessionFile(cfg.Auth.SessionPath).Load()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User: %s\n", session.UserID)
		if session.Email != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Email: %s\n", session.Email)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Method: %s\n", session.Method)
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in: %s\n", session.SignedInAt.Local().Format(time.RFC3339))
		if !session.ExpiresAt.IsZero() {
			fmt.Fprintf(cmd.OutOrStdout(), "Expires: %s\n", session.ExpiresAt.Local().Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
	loginCmd.Flags().StringVar(&loginToken, "token", "", "HS256 identity token (subject becomes the owner id)")
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Email for a local sign-in")
}
