package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/fundscore/internal/domain"
	"github.com/iho/fundscore/internal/infrastructure/auth"
)

func tokenCmd() *cobra.Command {
	var (
		secret  string
		service string
		subject string
		perms   []string
		ttl     time.Duration
	)

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a service token carrying the given permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("a signing secret is required (--secret or JWT_SECRET)")
			}

			granted := make([]domain.Permission, 0, len(perms))
			for _, p := range perms {
				granted = append(granted, domain.Permission(strings.ToUpper(strings.TrimSpace(p))))
			}

			if subject == "" {
				subject = service
			}
			token, expiresAt, err := auth.NewJWTManager(secret, ttl).Generate(subject, service, granted)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	issueCmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC signing secret")
	issueCmd.Flags().StringVar(&service, "service", "fundscore-cli", "Calling service name")
	issueCmd.Flags().StringVar(&subject, "subject", "", "Token subject (defaults to the service)")
	issueCmd.Flags().StringSliceVar(&perms, "perm", nil, "Permission to grant, repeatable (e.g. TRANSFER_WRITE)")
	issueCmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = issueCmd.MarkFlagRequired("perm")

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Service token tools",
	}
	cmd.AddCommand(issueCmd)
	return cmd
}
