package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/DoyleJ11/pokerboard-backend/internal/auth"
	"github.com/DoyleJ11/pokerboard-backend/internal/store"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		userID uint
		ttl    time.Duration
		asJWT  bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for a user",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if userID == 0 {
				return errors.New("--user is required")
			}

			st, err := store.Open(a.cfg.Store(), a.log.Named("store"))
			if err != nil {
				return err
			}
			defer func() { err = multierr.Append(err, st.Close()) }()

			if _, err := st.UserByID(cmd.Context(), userID); err != nil {
				return fmt.Errorf("user %d: %w", userID, err)
			}

			var token string
			if asJWT {
				token, err = auth.JWTResolver{Secret: []byte(a.cfg.JWTSecret), Users: st}.Issue(userID, ttl)
			} else {
				token, err = auth.StoreResolver{Store: st}.Issue(cmd.Context(), userID, ttl)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().UintVar(&userID, "user", 0, "user id")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&asJWT, "jwt", false, "issue a signed JWT instead of a stored token")
	return cmd
}
