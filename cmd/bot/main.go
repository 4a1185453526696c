// CoinSentinel watches crypto spot markets for volume breakouts and manages
// paper positions with a rule-based exit chain.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"CoinSentinel/internal/config"
	"CoinSentinel/internal/logger"
	"CoinSentinel/internal/notifier"
	"CoinSentinel/internal/server"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	version    = "0.1.0"
	configPath string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "coinsentinel",
		Short:         "Crypto volume breakout monitor",
		Long:          "coinsentinel scans spot markets for abnormal volume and manages paper positions with stop loss, trailing stop and time exits.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runBot,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.PathFromEnv(), "Path to the YAML config (CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level")

	rootCmd.AddCommand(runCmd(), scanCmd(), configCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("coinsentinel version %s\n", version)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler, Telegram commands and the status server",
		RunE:  runBot,
	}
}

func scanCmd() *cobra.Command {
	var risk bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a single scan cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, closeLog, err := setup()
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if risk {
				rep, err := a.sched.RunRiskCheck(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("closed %d position(s)\n", len(rep.Closed))
				return nil
			}
			rep, err := a.sched.RunScan(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("symbols=%d bars=%d rejected=%d signals=%d alerts=%d pullbacks=%d opened=%d closed=%d\n",
				rep.Symbols, rep.Bars, rep.Rejected, len(rep.Signals), len(rep.Alerts), len(rep.Pullbacks), len(rep.Opened), len(rep.Closed))
			if len(rep.Alerts) > 0 {
				fmt.Println(notifier.FormatSignals(rep.Alerts, cfg.Location()))
			}
			if len(rep.Pullbacks) > 0 {
				fmt.Println(notifier.FormatPullbacks(rep.Pullbacks, cfg.Location()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&risk, "risk", false, "Run only the position risk check")
	return cmd
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate the configuration and print the effective values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.Telegram.BotToken != "" {
				cfg.Telegram.BotToken = mask(cfg.Telegram.BotToken)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func mask(s string) string {
	if len(s) <= 6 {
		return strings.Repeat("*", len(s))
	}
	return s[:3] + strings.Repeat("*", len(s)-6) + s[len(s)-3:]
}

func setup() (*config.Config, zerolog.Logger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log, closer, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, log, func() { closer.Close() }, nil
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, log, closeLog, err := setup()
	if err != nil {
		return err
	}
	defer closeLog()
	log.Info().Str("version", version).Str("config", configPath).Msg("CoinSentinel starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.sched.Register(); err != nil {
		return fmt.Errorf("register cron tasks: %w", err)
	}
	a.sched.Start()
	defer a.sched.Stop()

	if a.telegram != nil && cfg.Telegram.Polling {
		go a.telegram.StartPolling(ctx, a.sched.HandleCommand)
		log.Info().Msg("telegram polling started")
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(server.Config{
			Addr:         cfg.Server.Addr,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}, a.sched, a.metrics.Handler(), log)
		srv.Start()
	}

	if os.Getenv("RUN_ON_START") == "true" {
		log.Info().Msg("RUN_ON_START enabled, scanning now")
		a.sched.ScanNow()
	}

	log.Info().Msg("CoinSentinel is running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping")

	if srv != nil {
		if err := srv.Stop(context.Background()); err != nil {
			log.Error().Err(err).Msg("stop http server")
		}
	}
	return nil
}
