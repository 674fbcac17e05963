// Package cli implements ledgerctl, the operator tool for the ledger
// database and workflow.
package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"property-ledger-backend/internal/config"
	"property-ledger-backend/internal/domain"
	"property-ledger-backend/internal/logger"
	"property-ledger-backend/internal/metrics"
	"property-ledger-backend/internal/repository"
	"property-ledger-backend/internal/repository/memory"
	"property-ledger-backend/internal/repository/postgres"
	"property-ledger-backend/internal/service"
	"property-ledger-backend/internal/utils"
)

// App is the service graph a command runs against.
type App struct {
	Ledger     service.LedgerService
	Balance    service.BalanceCalculator
	Agreements service.AgreementService
	Migrate    func(ctx context.Context) error
	Close      func() error
}

// Opener builds the App for one invocation.
type Opener func(cmd *cobra.Command) (*App, error)

// Execute loads .env and runs the root command.
func Execute() error {
	_ = godotenv.Load()
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(openApp)
}

func newRootCmd(open Opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the property payment ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			logger.InitializeWriter(cmd.ErrOrStderr(), level, "text")
		},
	}

	root.PersistentFlags().String("config", envOr("LEDGER_CONFIG", "config/config.dev.yaml"), "Path to configuration file")
	root.PersistentFlags().Bool("memory", false, "Run against an in-memory store instead of postgres")
	root.PersistentFlags().String("seed", "", "YAML file with properties and users loaded into the in-memory store")
	root.PersistentFlags().Int32("as-user", 0, "User id the command acts as")
	root.PersistentFlags().String("as-role", string(domain.RoleAdmin), "Role the command acts as (PAYER, AGENT, ADMIN)")
	root.PersistentFlags().String("log-level", "warn", "Log level for diagnostics on stderr")

	root.AddCommand(
		migrateCmd(open),
		tokenCmd(),
		entriesCmd(open),
		balanceCmd(open),
		transitionCmd(open),
		agreementCmd(open),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// actorFromFlags reads --as-user and --as-role. Mutations require a user id
// so approvals are attributable.
func actorFromFlags(cmd *cobra.Command) (domain.Actor, error) {
	id, _ := cmd.Flags().GetInt32("as-user")
	roleFlag, _ := cmd.Flags().GetString("as-role")
	role := domain.Role(strings.ToUpper(roleFlag))
	if !role.Valid() {
		return domain.Actor{}, fmt.Errorf("unknown role %q", roleFlag)
	}
	if id <= 0 {
		return domain.Actor{}, fmt.Errorf("--as-user is required")
	}
	return domain.Actor{ID: id, Role: role}, nil
}

func openApp(cmd *cobra.Command) (*App, error) {
	useMemory, _ := cmd.Flags().GetBool("memory")
	if useMemory {
		seedPath, _ := cmd.Flags().GetString("seed")
		return openMemory(seedPath)
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(cmd.Context()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	store := postgres.NewStore(db, postgres.WithRetry(cfg.Database.RetryCount, cfg.RetryBackoff()))
	emailSvc := service.NewEmailService(cfg.Email.SendGridAPIKey, cfg.Email.FromEmail, cfg.Email.FromName)
	notifier := service.NewNotifier(store.NotificationRepository, store.UserRepository, emailSvc)

	app := buildApp(store.LedgerEntryRepository, store.RentalAgreementRepository, store.PropertyRepository, notifier)
	app.Migrate = store.Migrate
	app.Close = db.Close
	return app, nil
}

// Seed is the reference data format accepted by --seed.
type Seed struct {
	Properties []struct {
		ID          int32  `yaml:"id"`
		OwnerID     int32  `yaml:"owner_id"`
		Title       string `yaml:"title"`
		Price       string `yaml:"price"`
		ListingType string `yaml:"listing_type"`
	} `yaml:"properties"`
	Users []struct {
		ID    int32  `yaml:"id"`
		Email string `yaml:"email"`
		Name  string `yaml:"name"`
		Role  string `yaml:"role"`
	} `yaml:"users"`
}

// LoadSeed fills store with the listed properties and users.
func LoadSeed(store *memory.Store, data []byte) error {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed: %w", err)
	}
	for _, p := range seed.Properties {
		price, err := utils.ParseAmount(p.Price)
		if err != nil {
			return fmt.Errorf("property %d: %w", p.ID, err)
		}
		listing := domain.ListingType(strings.ToUpper(p.ListingType))
		if listing != domain.ListingTypeSale && listing != domain.ListingTypeRent {
			return fmt.Errorf("property %d: unknown listing type %q", p.ID, p.ListingType)
		}
		store.PutProperty(domain.Property{ID: p.ID, OwnerID: p.OwnerID, Title: p.Title, Price: price, ListingType: listing})
	}
	for _, u := range seed.Users {
		store.PutUser(domain.User{ID: u.ID, Email: u.Email, Name: u.Name, Role: domain.Role(strings.ToUpper(u.Role))})
	}
	return nil
}

func openMemory(seedPath string) (*App, error) {
	store := memory.NewStore()
	if seedPath != "" {
		data, err := os.ReadFile(seedPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed file: %w", err)
		}
		if err := LoadSeed(store, data); err != nil {
			return nil, err
		}
	}
	notifier := service.NewNotifier(store.Notifications, store.Users, nil)
	app := buildApp(store.Ledger, store.Agreements, store.Properties, notifier)
	app.Migrate = func(context.Context) error { return nil }
	app.Close = func() error { return nil }
	return app, nil
}

func buildApp(
	entries repository.LedgerEntryRepository,
	agreements repository.RentalAgreementRepository,
	properties repository.PropertyRepository,
	notifier service.Notifier,
) *App {
	m := metrics.Nop()
	workflow := service.NewWorkflowService(entries, agreements, properties, notifier, m)
	return &App{
		Ledger:     service.NewLedgerService(entries, agreements, properties, workflow, notifier, m),
		Balance:    service.NewBalanceCalculator(entries, properties, agreements),
		Agreements: service.NewAgreementService(agreements, properties, workflow, notifier),
	}
}

// withApp opens the App, runs fn and closes it.
func withApp(open Opener, fn func(cmd *cobra.Command, args []string, app *App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := open(cmd)
		if err != nil {
			return err
		}
		if app.Close != nil {
			defer app.Close()
		}
		return fn(cmd, args, app)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
