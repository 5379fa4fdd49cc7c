package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/tenancy/internal/bootstrap"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Custom domain verification",
	}
	cmd.AddCommand(newVerifyStartCmd())
	cmd.AddCommand(newVerifyCheckCmd())
	cmd.AddCommand(newVerifyScanCmd())
	return cmd
}

func parseTenantID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid tenant id %q: %w", raw, err)
	}
	return id, nil
}

func newVerifyStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <tenant-id> <domain>",
		Short: "Attach a custom domain and print the TXT record to publish",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args[0])
			if err != nil {
				return err
			}
			return withStack(cmd.Context(), func(s *bootstrap.Stack) error {
				res, err := s.Verification.StartVerification(cmd.Context(), id, args[1])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newVerifyCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <tenant-id> <domain>",
		Short: "Run one verification check now",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTenantID(args[0])
			if err != nil {
				return err
			}
			return withStack(cmd.Context(), func(s *bootstrap.Stack) error {
				res, err := s.Verification.CheckVerificationNow(cmd.Context(), id, args[1])
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Verified {
					return fmt.Errorf("domain %s not verified: %s", args[1], res.Message)
				}
				return nil
			})
		},
	}
}

func newVerifyScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Check every pending verification once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStack(cmd.Context(), func(s *bootstrap.Stack) error {
				summary, err := s.Verification.ScanOnce(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}
