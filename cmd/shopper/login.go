package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/redis"
)

// loginTokenCmd mints an access token with the server's JWT secret. It is a
// development aid; production tokens come from the identity provider.
func loginTokenCmd(a *app) *cobra.Command {
	var (
		user, role, email string
		noSession         bool
	)
	cmd := &cobra.Command{
		Use:   "login-token",
		Short: "Mint a development access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			jwtCfg, err := config.LoadJWT()
			if err != nil {
				return err
			}
			userID := uuid.New()
			if user != "" {
				if userID, err = parseID("user", user); err != nil {
					return err
				}
			}
			parsedRole, err := enums.ParseRole(role)
			if err != nil {
				return err
			}

			accessID := session.NewAccessID()
			token, err := auth.MintAccessToken(*jwtCfg, time.Now(), auth.AccessTokenPayload{
				UserID: userID,
				Role:   parsedRole,
				Email:  email,
				JTI:    accessID,
			})
			if err != nil {
				return err
			}

			if !noSession {
				clientCfg, err := config.LoadClient()
				if err != nil {
					return err
				}
				logg := logger.New(logger.Options{
					ServiceName: "shopper",
					Level:       logger.ParseLevel(clientCfg.LogLevel),
					Format:      clientCfg.LogFormat,
					Output:      os.Stderr,
				})
				rdb, err := redis.New(ctx, clientCfg.Redis, logg)
				if err != nil {
					return fmt.Errorf("connect session redis: %w", err)
				}
				defer func() {
					err = multierr.Append(err, rdb.Close())
				}()
				sessions, err := session.NewManager(rdb, *jwtCfg)
				if err != nil {
					return err
				}
				if err := sessions.Register(ctx, accessID, userID.String()); err != nil {
					return fmt.Errorf("register session: %w", err)
				}
			}

			if a.asJSON {
				return a.printJSON(map[string]string{"token": token, "userId": userID.String(), "role": string(parsedRole)})
			}
			_, err = fmt.Fprintln(a.out, token)
			return err
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User id (random when omitted)")
	cmd.Flags().StringVar(&role, "role", string(enums.RoleCustomer), "Role (customer, admin)")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().BoolVar(&noSession, "no-session", false, "Skip registering the session in redis")

	return cmd
}
