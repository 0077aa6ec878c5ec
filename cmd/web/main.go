package main

import (
	"fmt"
	"net"
	"os"
	"os/user"

	"github.com/envio-tools/fleet-atlas/pkg/server"
	"github.com/envio-tools/fleet-atlas/pkg/services/config"
	"github.com/envio-tools/fleet-atlas/pkg/services/consistency"
	"github.com/envio-tools/fleet-atlas/pkg/services/gp51"
	"github.com/envio-tools/fleet-atlas/pkg/services/reconcile"
	"github.com/envio-tools/fleet-atlas/pkg/store/postgres"
	postgresaudit "github.com/envio-tools/fleet-atlas/pkg/store/postgres/audit"
	postgresfleet "github.com/envio-tools/fleet-atlas/pkg/store/postgres/fleet"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgPath     string
	gp51CfgPath string
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "web",
		Short: "Start the fleet consistency web server",
		RunE:  runServer,
	}

	usr, _ := user.Current()
	defaultGP51Path := fmt.Sprintf("%s/.gp51cfg", usr.HomeDir)

	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", "fleet-atlas.yaml",
		"Path to the application config file")
	rootCmd.Flags().StringVar(&gp51CfgPath, "gp51cfg", defaultGP51Path,
		"Path to the GP51 credentials file (default is $HOME/.gp51cfg)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Error loading .env file: %v\n", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(cmd.Context())

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	registry, err := config.NewRegistry(gp51CfgPath)
	if err != nil {
		return fmt.Errorf("failed to create GP51 config registry: %w", err)
	}
	creds, err := registry.GetCredentials(ctx, cfg.GP51.Profile)
	if err != nil {
		return fmt.Errorf("failed to resolve GP51 profile: %w", err)
	}

	db, err := postgres.NewDB(postgres.Settings{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("failed to open fleet database: %w", err)
	}

	fleetStore := postgresfleet.NewStore(db)
	auditStore := postgresaudit.NewStore(db)

	baseURL := cfg.GP51.BaseURL
	if creds.APIURL != "" {
		baseURL = creds.APIURL
	}
	gp51Client := gp51.NewClient(gp51.Settings{
		BaseURL:  baseURL,
		Username: creds.Username,
		Password: creds.Password,
	})

	verifierSettings := consistency.DefaultSettings()
	verifierSettings.MaxVehiclesPerOwner = cfg.Consistency.MaxVehiclesPerOwner
	verifierSettings.RecentActivityWindow = cfg.Consistency.RecentActivityWindow
	verifier := consistency.NewVerifier(fleetStore, verifierSettings)

	reconcileSettings := reconcile.DefaultSettings()
	reconcileSettings.MetadataBatchLimit = cfg.Reconcile.MetadataBatchLimit
	reconcileSettings.RecentActivityWindow = cfg.Consistency.RecentActivityWindow
	reconciler := reconcile.NewService(verifier, fleetStore, gp51Client, reconcile.NewCatalog(), reconcileSettings)

	monitor := consistency.NewMonitor(verifier, auditStore, cfg.Consistency.MonitorInterval)
	monitor.Start(ctx)
	defer monitor.Stop()

	scheduler := reconcile.NewScheduler(reconciler, cfg.Reconcile.ScheduleInterval)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logger.Info().
		Str("profile", cfg.GP51.Profile).
		Str("monitor_interval", cfg.Consistency.MonitorInterval.String()).
		Str("schedule_interval", cfg.Reconcile.ScheduleInterval.String()).
		Msg("background loops started")

	webAPI := server.NewWebAPI(logger, server.Config{
		Addr: net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Dependencies: server.Dependencies{
			Verifier:   verifier,
			Reconciler: reconciler,
			Health:     gp51Client,
		},
	})
	return webAPI.Start()
}
