package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/user"

	"github.com/envio-tools/fleet-atlas/pkg/adapters"
	"github.com/envio-tools/fleet-atlas/pkg/models/domain"
	"github.com/envio-tools/fleet-atlas/pkg/services/config"
	"github.com/envio-tools/fleet-atlas/pkg/services/consistency"
	"github.com/envio-tools/fleet-atlas/pkg/services/gp51"
	"github.com/envio-tools/fleet-atlas/pkg/services/reconcile"
	"github.com/envio-tools/fleet-atlas/pkg/store/postgres"
	postgresfleet "github.com/envio-tools/fleet-atlas/pkg/store/postgres/fleet"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgPath     string
	gp51CfgPath string
	ruleIDs     []string
)

func main() {
	usr, _ := user.Current()
	defaultGP51Path := fmt.Sprintf("%s/.gp51cfg", usr.HomeDir)

	rootCmd := &cobra.Command{
		Use:   "fleet-atlas",
		Short: "One-shot fleet consistency tooling",
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "fleet-atlas.yaml",
		"Path to the application config file")
	rootCmd.PersistentFlags().StringVar(&gp51CfgPath, "gp51cfg", defaultGP51Path,
		"Path to the GP51 credentials file")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Run a full consistency check and print the report",
		RunE:  runVerify,
	}

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run reconciliation and print the job outcome",
		Long:  "Runs automatic reconciliation, or the named rules when --rules is given.",
		RunE:  runReconcile,
	}
	reconcileCmd.Flags().StringSliceVar(&ruleIDs, "rules", nil,
		"Explicit rule ids to execute instead of the automatic set")

	rootCmd.AddCommand(verifyCmd, reconcileCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command) (context.Context, *consistency.Verifier, *reconcile.Service, error) {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	registry, err := config.NewRegistry(gp51CfgPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create GP51 config registry: %w", err)
	}
	creds, err := registry.GetCredentials(ctx, cfg.GP51.Profile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to resolve GP51 profile: %w", err)
	}

	db, err := postgres.NewDB(postgres.Settings{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open fleet database: %w", err)
	}

	fleetStore := postgresfleet.NewStore(db)

	baseURL := cfg.GP51.BaseURL
	if creds.APIURL != "" {
		baseURL = creds.APIURL
	}
	gp51Client := gp51.NewClient(gp51.Settings{
		BaseURL:  baseURL,
		Username: creds.Username,
		Password: creds.Password,
	})

	settings := consistency.DefaultSettings()
	settings.MaxVehiclesPerOwner = cfg.Consistency.MaxVehiclesPerOwner
	settings.RecentActivityWindow = cfg.Consistency.RecentActivityWindow
	verifier := consistency.NewVerifier(fleetStore, settings)

	reconcileSettings := reconcile.DefaultSettings()
	reconcileSettings.MetadataBatchLimit = cfg.Reconcile.MetadataBatchLimit
	reconcileSettings.RecentActivityWindow = cfg.Consistency.RecentActivityWindow
	reconciler := reconcile.NewService(verifier, fleetStore, gp51Client, reconcile.NewCatalog(), reconcileSettings)

	return ctx, verifier, reconciler, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ctx, verifier, _, err := setup(cmd)
	if err != nil {
		return err
	}

	report, err := verifier.PerformFullCheck(ctx)
	if err != nil {
		return fmt.Errorf("consistency check failed: %w", err)
	}
	return printJSON(adapters.MapConsistencyReportDomainToApi(report))
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx, _, reconciler, err := setup(cmd)
	if err != nil {
		return err
	}

	var job domain.ReconciliationJob
	if len(ruleIDs) > 0 {
		job = reconciler.RunManual(ctx, ruleIDs)
	} else {
		job = reconciler.RunAutomatic(ctx)
	}
	return printJSON(adapters.MapReconciliationJobDomainToApi(job))
}
