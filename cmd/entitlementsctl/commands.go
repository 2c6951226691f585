package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/vpn-entitlements/internal/app/scheduler"
	"github.com/magabrotheeeer/vpn-entitlements/internal/lib/jwt"
	"github.com/magabrotheeeer/vpn-entitlements/internal/storage/repository"
)

func newMigrateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			if cfg.Storage.InMemory {
				return fmt.Errorf("migrate: storage is in-memory, nothing to migrate")
			}
			log := c.logger(cmd.ErrOrStderr())

			db, err := repository.New(cmd.Context(), cfg.Storage.DSN, 1, log)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return err
			}
			version, dirty, err := db.MigrationVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func newScanCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one reconciliation pass over tracked subscriptions",
		Long: `Runs one pass of the expiration reconciliation loop and prints the report.
Do not run it while the scheduler is active.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			app, err := scheduler.New(cmd.Context(), cfg, c.logger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			rep := app.ScanOnce(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(),
				"rows=%d reactivated=%d warned=%d expired=%d revoked=%d failed=%d\n",
				rep.Rows, rep.Reactivated, rep.Warned, rep.Expired, rep.Revoked, rep.Failed)
			if rep.Failed > 0 {
				return fmt.Errorf("scan: %d rows failed", rep.Failed)
			}
			return nil
		},
	}
}

func newTokenCommand(c *cli) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "token <telegram-id>",
		Short: "Mint an API token for the bot front-end or an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			actorID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || actorID <= 0 {
				return fmt.Errorf("token: invalid telegram id %q", args[0])
			}
			if role == jwt.RoleOperator && !cfg.IsOperator(actorID) {
				return fmt.Errorf("token: %d is not in operator_ids", actorID)
			}
			token, err := jwt.NewJWTMaker(cfg.JWTToken.SecretKey, cfg.JWTToken.TokenTTL).GenerateToken(actorID, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", jwt.RoleBot, "token role: bot or operator")
	return cmd
}
