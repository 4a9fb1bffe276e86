package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/startopia/startopia/internal/config"
	"github.com/startopia/startopia/internal/identity"
	"github.com/startopia/startopia/internal/ideas"
	"github.com/startopia/startopia/internal/llm"
	"github.com/startopia/startopia/internal/metrics"
	"github.com/startopia/startopia/internal/server"
	"github.com/startopia/startopia/internal/store"
	"github.com/startopia/startopia/internal/users"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "startopia",
	Short:   "Generate, store and evaluate startup ideas",
	Long:    "Startopia keeps startup ideas and the scores, plans, competitor maps, risk matrices and consumer segments generated for them.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		if err := config.LoadEnv(); err != nil {
			return err
		}
		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if strings.EqualFold(cfg.Logging.Level, "debug") {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(ideaCmd)
	rootCmd.AddCommand(generateCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("startopia", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/startopia/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose a store and LLM provider; put API keys and the JWT secret in .env.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and provider status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.Stats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Store: %s (%s)\n\n", db.Driver(), db.Path())
		fmt.Println("Documents:")
		names := make([]string, 0, len(stats))
		for name := range stats {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) == 0 {
			fmt.Println("  (empty)")
		}
		for _, name := range names {
			fmt.Printf("  %s: %d\n", name, stats[name])
		}

		fmt.Println("\nGeneration:")
		fmt.Printf("  Provider: %s\n", cfg.Generation.Provider)
		if os.Getenv(cfg.Generation.APIKeyEnv) == "" {
			fmt.Printf("  %s: not set\n", cfg.Generation.APIKeyEnv)
		} else {
			fmt.Printf("  %s: set\n", cfg.Generation.APIKeyEnv)
		}
		fmt.Println("\nAuth:")
		if cfg.AuthSecret() == "" {
			fmt.Printf("  %s: not set (API requests will be rejected)\n", cfg.Auth.SecretEnv)
		} else {
			fmt.Printf("  %s: set\n", cfg.Auth.SecretEnv)
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		validator := newValidator()
		if validator == nil {
			log.Printf("%s is not set; every API request will be rejected", cfg.Auth.SecretEnv)
		}
		m := metrics.New()
		srv, err := server.New(server.Options{
			Ideas:     newIdeaService(db).WithObserver(m),
			Users:     users.NewService(db),
			Validator: validator,
			Metrics:   m,
		})
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)
		fmt.Printf("Starting server at http://%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv, addr)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openStore(ctx context.Context) (*store.DB, error) {
	if cfg.Store.Driver == "postgres" {
		return store.OpenPostgres(ctx, cfg.Store.DSN)
	}
	return store.OpenSQLite(ctx, cfg.StorePath())
}

func newIdeaService(db store.Store) *ideas.Service {
	g := cfg.Generation
	provider := llm.CreateProvider(llm.Options{
		Provider:    g.Provider,
		Model:       g.Model,
		OllamaURL:   g.OllamaURL,
		OpenAIModel: g.OpenAIModel,
		APIKeyEnv:   g.APIKeyEnv,
		Temperature: g.Temperature,
	})
	return ideas.NewService(db, llm.NewStructured(provider, g.MaxTokens))
}

func newValidator() *identity.Validator {
	return identity.NewValidator(cfg.AuthSecret(), cfg.Auth.Issuer, cfg.Auth.Audience)
}
