package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	patientmodels "carepay/internal/patient/models"
	id "carepay/pkg/domain"
	"carepay/pkg/requestcontext"
)

func seedCmd() *cobra.Command {
	var (
		tenantName string
		tenantArg  string
		patients   []string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a tenant and register patient references",
		Long: `Create a tenant (or reuse one with --tenant-id) and register patient
references under it. Intended for development and staging environments.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			deps, err := buildDeps(ctx, true)
			if err != nil {
				return err
			}
			defer deps.Close()

			var tenantID id.TenantID
			if tenantArg != "" {
				tenantID, err = id.ParseTenantID(tenantArg)
				if err != nil {
					return err
				}
				if _, err := deps.TenantService.Resolve(ctx, tenantID); err != nil {
					return err
				}
			} else {
				t, err := deps.TenantService.CreateTenant(ctx, tenantName)
				if err != nil {
					return err
				}
				tenantID = t.ID
				fmt.Fprintf(cmd.OutOrStdout(), "tenant %s %s\n", t.ID, t.Name)
			}

			now := requestcontext.Now(ctx)
			for _, raw := range patients {
				ref, err := id.ParsePatientRefID(raw)
				if err != nil {
					return err
				}
				p := &patientmodels.Patient{ID: id.PatientID(uuid.New()), TenantID: tenantID, RefID: ref, CreatedAt: now}
				err = deps.Scoper.RunScoped(ctx, tenantID, func(ctx context.Context) error {
					return deps.Patients.Create(ctx, p)
				})
				if err != nil {
					return fmt.Errorf("patient %s: %w", ref, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "patient %s\n", ref)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tenantName, "tenant", "Development Clinic", "name of the tenant to create")
	cmd.Flags().StringVar(&tenantArg, "tenant-id", "", "add patients to an existing tenant")
	cmd.Flags().StringSliceVar(&patients, "patient", nil, "patient reference to register (repeatable)")
	return cmd
}
