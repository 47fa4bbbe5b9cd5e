package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/farmsense/farmsense/ai"
	"github.com/farmsense/farmsense/chat"
	"github.com/farmsense/farmsense/client"
	"github.com/farmsense/farmsense/conversation"
	"github.com/farmsense/farmsense/internal/metrics"
	"github.com/farmsense/farmsense/internal/profile"
	"github.com/farmsense/farmsense/internal/version"
	"github.com/farmsense/farmsense/server/stub"
	"github.com/farmsense/farmsense/store"
	"github.com/farmsense/farmsense/store/db/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "farmsense",
	Short: "A conversational assistant for farm management.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Try to load .env from the current directory; absence is fine.
		_ = godotenv.Load()
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runChat(cmd.Context())
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Authenticate against the farm backend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLogin(cmd.Context(), args[0], viper.GetString("password"))
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear stored credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLogout(cmd.Context())
	},
}

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Run a local stub backend for development",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return stub.New(stub.Config{
			Addr:      viper.GetString("stub-addr"),
			AccessTTL: viper.GetDuration("stub-access-ttl"),
		}).Start(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version.StringFull())
	},
}

func init() {
	viper.SetDefault("mode", "dev")

	rootCmd.PersistentFlags().String("mode", "dev", `mode, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("backend-url", "", "base URL of the farm backend")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("dsn", "", "SQLite database path")
	rootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address (empty disables)")

	loginCmd.Flags().String("password", "", "password (prompted for interactively if empty)")
	stubCmd.Flags().String("stub-addr", ":8094", "stub backend listen address")
	stubCmd.Flags().Duration("stub-access-ttl", 15*time.Minute, "stub access token lifetime")

	for _, flag := range []string{"mode", "backend-url", "data", "dsn", "metrics-addr"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	if err := viper.BindPFlag("password", loginCmd.Flags().Lookup("password")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("stub-addr", stubCmd.Flags().Lookup("stub-addr")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("stub-access-ttl", stubCmd.Flags().Lookup("stub-access-ttl")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("farmsense")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(chatCmd, loginCmd, logoutCmd, stubCmd, versionCmd)
}

func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:       viper.GetString("mode"),
		BackendURL: viper.GetString("backend-url"),
		Data:       viper.GetString("data"),
		DSN:        viper.GetString("dsn"),
		Version:    version.String(),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// openStore opens the local SQLite store and runs migrations.
func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	driver, err := sqlite.NewDB(p)
	if err != nil {
		return nil, err
	}
	s := store.New(driver)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func serveMetrics(addr string, exporter *metrics.Exporter) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("metrics endpoint failed", "addr", addr, "error", err)
		}
	}()
	slog.Info("metrics endpoint listening", "addr", addr)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), terminationSignals...)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runLogin(ctx context.Context, email, password string) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	s, err := openStore(ctx, p)
	if err != nil {
		return err
	}
	defer s.Close()

	if password == "" {
		fmt.Print("Password: ")
		if _, err := fmt.Scanln(&password); err != nil {
			return err
		}
	}

	c := client.New(client.Config{BaseURL: p.BackendURL, Timeout: p.RequestTimeout}, s, nil)
	session, err := c.Login(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", session.User.Name)
	return nil
}

func runLogout(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	s, err := openStore(ctx, p)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.ClearTokens(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func runChat(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	s, err := openStore(ctx, p)
	if err != nil {
		return err
	}
	defer s.Close()

	session, err := s.Session(ctx)
	if err != nil {
		return err
	}
	if !session.Authenticated {
		return fmt.Errorf("not logged in, run: farmsense login <email>")
	}

	exporter := metrics.NewExporter(metrics.DefaultConfig())
	if addr := viper.GetString("metrics-addr"); addr != "" {
		serveMetrics(addr, exporter)
	}

	c := client.New(client.Config{BaseURL: p.BackendURL, Timeout: p.RequestTimeout}, s, exporter)
	repo := conversation.NewRepository(c, s)

	provider, err := ai.NewProvider(ai.Config{
		Provider: p.AIProvider,
		Model:    p.AIModel,
		APIKey:   p.AIAPIKey,
		BaseURL:  p.AIBaseURL,
		Timeout:  p.AITimeout,
	})
	if err != nil {
		return err
	}

	pipeline := ai.NewPipeline(provider, p.AIProvider, exporter)
	namer := ai.NewNamer(provider, exporter)
	controller := chat.NewSession(pipeline, namer, repo, chat.SessionConfig{
		MessageLimit: p.MessageLimit,
	})

	return chatLoop(ctx, controller, repo, p)
}
