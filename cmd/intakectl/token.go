package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "carepay/internal/jwt_token"
	"carepay/internal/platform/config"
	id "carepay/pkg/domain"
)

func tokenCmd() *cobra.Command {
	var (
		subject   string
		tenantArg string
		ttl       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a tenant-bound access token for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("token issuance is disabled in production")
			}
			tenantID, err := id.ParseTenantID(tenantArg)
			if err != nil {
				return err
			}
			svc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
			token, err := svc.GenerateAccessToken(subject, tenantID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "intakectl", "token subject")
	cmd.Flags().StringVar(&tenantArg, "tenant-id", "", "tenant the token is bound to")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("tenant-id")
	return cmd
}
