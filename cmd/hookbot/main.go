package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/hookbot/bot"
	"github.com/hrygo/hookbot/internal/metrics"
	"github.com/hrygo/hookbot/internal/profile"
	"github.com/hrygo/hookbot/internal/version"
	"github.com/hrygo/hookbot/runner"
	"github.com/hrygo/hookbot/scheduler"
	"github.com/hrygo/hookbot/server"
	"github.com/hrygo/hookbot/store"
	"github.com/hrygo/hookbot/store/db"
	"github.com/hrygo/hookbot/telegram"
	"github.com/hrygo/hookbot/worker"
)

// shutdownGrace bounds the drain of in-flight requests and child handlers.
const shutdownGrace = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "hookbot",
	Short: "A Telegram webhook bot gateway: authenticated ingress, command dispatch, external handlers, and a deferred-action scheduler.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Only load .env for direct binary execution; service managers
		// provide the environment themselves.
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		if err := runServer(); err != nil {
			slog.Error("hookbot failed", "error", err)
			os.Exit(1)
		}
	},
}

func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		Version: version.String(),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func runServer() error {
	p, err := loadProfile()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		return err
	}
	storeInstance := store.New(dbDriver, p)
	if err := storeInstance.Migrate(ctx); err != nil {
		return err
	}
	defer storeInstance.Close()

	m := metrics.New()

	client, err := telegram.NewClient(p, m)
	if err != nil {
		return err
	}

	pool := worker.NewPool(p.WorkerNum, p.JobsMin, p.JobsMax, m)
	supervisor := runner.NewSupervisor(p.CmdPath, childEnv(p, client.BotUsername()), runner.DefaultCapacity, m)
	dispatcher := bot.NewDispatcher(p, storeInstance, client, supervisor, client.BotUsername(), m)
	sched := scheduler.New(storeInstance, pool, client, m)
	srv := server.NewServer(p, pool, dispatcher, m)

	pool.Start(ctx)
	sched.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	printGreetings(p)

	c := make(chan os.Signal, 1)
	// SIGTERM is what process managers send; SIGINT covers CTRL-C.
	signal.Notify(c, terminationSignals...)

	select {
	case sig := <-c:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown incomplete", "error", err)
	}
	sched.Stop()
	pool.Shutdown()
	if err := supervisor.Shutdown(shutdownCtx); err != nil {
		slog.Warn("handler shutdown incomplete", "error", err)
	}
	return nil
}

// childEnv composes the curated environment handed to external handlers.
// The parent environment is inherited only when explicitly configured.
func childEnv(p *profile.Profile, botUsername string) []string {
	var env []string
	if p.CmdInheritEnv {
		env = os.Environ()
	}
	return append(env,
		"ROOT_DIR="+p.Data,
		"TG_API="+p.APIToken,
		"TG_API_SECRET_KEY="+p.APISecret,
		"CMD_PATH="+p.CmdPath,
		"OWNER_ID="+strconv.FormatInt(p.OwnerID, 10),
		"BOT_ID="+strconv.FormatInt(p.BotID, 10),
		"BOT_USERNAME="+botUsername,
		"DB_PATH="+p.DBFile,
	)
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")

	for _, name := range []string{"mode", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("hookbot")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	rootCmd.AddCommand(webhookSetCmd, webhookDelCmd, webhookInfoCmd)
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("hookbot %s started successfully!\n", p.Version)
	if p.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if p.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", p.DSN)
		}
	}
	fmt.Printf("Data directory: %s\n", p.Data)
	fmt.Printf("Database driver: %s\n", p.Driver)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Listening on %s\n", p.ListenAddr())
	fmt.Printf("Webhook: https://%s%s\n", p.HookHost, p.HookPath)
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
