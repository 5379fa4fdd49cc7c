package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/iota-uz/tenancy/internal/bootstrap"
)

func newWarmCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Preload active tenants into the tenant cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var id uuid.UUID
			if tenantID != "" {
				var err error
				if id, err = uuid.Parse(tenantID); err != nil {
					return fmt.Errorf("invalid --tenant: %w", err)
				}
			}

			return withStack(cmd.Context(), func(s *bootstrap.Stack) error {
				if tenantID == "" {
					res := s.Cache.WarmAll(cmd.Context())
					if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
						return err
					}
					if !res.Success {
						return errors.New(res.Error)
					}
					return nil
				}

				cached, err := s.Cache.WarmOne(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !cached {
					return fmt.Errorf("tenant %s not found or not active", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tenant %s cached\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID (UUID); warm only this tenant")
	return cmd
}
