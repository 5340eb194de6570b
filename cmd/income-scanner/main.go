package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/contactkeval/option-income-scanner/internal/config"
	"github.com/contactkeval/option-income-scanner/internal/data"
	"github.com/contactkeval/option-income-scanner/internal/logger"
	"github.com/contactkeval/option-income-scanner/internal/report"
	"github.com/contactkeval/option-income-scanner/internal/scan"
	"github.com/contactkeval/option-income-scanner/internal/server"
	"github.com/contactkeval/option-income-scanner/internal/tradelog"
	"github.com/contactkeval/option-income-scanner/internal/universe"
)

var (
	configPath string
	envFile    string
	verbosity  string
	logFormat  string

	cfg *config.Configuration
)

var rootCmd = &cobra.Command{
	Use:           "income-scanner",
	Short:         "Scan a ticker universe for covered call and cash-secured put income",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s file: %v", envFile, err)
		}

		var err error
		if cfg, err = config.LoadConfiguration(configPath); err != nil {
			return err
		}
		if cmd.Flags().Changed("verbosity") {
			cfg.Logging.Verbosity = verbosity
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Logging.Format = logFormat
		}

		level, err := logger.ParseVerbosity(cfg.Logging.Verbosity)
		if err != nil {
			return err
		}
		logger.SetVerbosity(int(level))
		return logger.SetFormat(cfg.Logging.Format)
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one scan and print or export the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		tickers, _ := cmd.Flags().GetStringSlice("tickers")
		if cmd.Flags().Changed("format") {
			cfg.Output.Format, _ = cmd.Flags().GetString("format")
		}
		if cmd.Flags().Changed("out") {
			cfg.Output.ReportDir, _ = cmd.Flags().GetString("out")
		}
		if cmd.Flags().Changed("universe") {
			cfg.Universe.File, _ = cmd.Flags().GetString("universe")
		}
		if cmd.Flags().Changed("group") {
			cfg.Universe.Group, _ = cmd.Flags().GetString("group")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		list, err := universe.Resolve(append(tickers, cfg.Universe.Tickers...), cfg.Universe.File, cfg.Universe.Group)
		if err != nil {
			return err
		}
		scanner, err := newScanner(cfg)
		if err != nil {
			return err
		}

		ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		start := time.Now()
		rep, runErr := scanner.Run(ctx, list)
		if err := writeReport(cmd, rep); err != nil {
			return err
		}
		logger.Infof("event=done elapsed=%s results=%d", time.Since(start), len(rep.Results))
		return runErr
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve scans, signals and the trade log over REST",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		list, err := universe.Resolve(cfg.Universe.Tickers, cfg.Universe.File, cfg.Universe.Group)
		if err != nil {
			return err
		}
		scanner, err := newScanner(cfg)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           server.New(scanner, tradelog.NewStore(nil), server.WithUniverse(list)).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		logger.Infof("event=server_started addr=%s tickers=%d", srv.Addr, len(list))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Infof("event=server_stopped")
		return nil
	},
}

func newScanner(cfg *config.Configuration) (*scan.Scanner, error) {
	prov, err := data.NewProvider(cfg.ProviderConfig())
	if err != nil {
		return nil, err
	}
	sc, err := cfg.ScannerConfig()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.ScannerOptions()
	if err != nil {
		return nil, err
	}
	logger.Infof("event=provider_enabled name=%s", cfg.Provider.Name)
	return scan.NewScanner(prov, sc, opts...)
}

func writeReport(cmd *cobra.Command, rep *scan.Report) error {
	out := cmd.OutOrStdout()
	switch cfg.Output.Format {
	case "json", "csv":
		if err := os.MkdirAll(cfg.Output.ReportDir, 0755); err != nil {
			return fmt.Errorf("could not create output dir %s: %w", cfg.Output.ReportDir, err)
		}
		if cfg.Output.Format == "json" {
			if err := report.WriteJSON(rep, cfg.Output.ReportDir); err != nil {
				return err
			}
		} else if err := report.WriteCSV(rep.Results, cfg.Output.ReportDir); err != nil {
			return err
		}
		fmt.Fprintln(out, report.Summarize(rep).Message)
	default:
		report.RenderTable(out, rep)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with API keys")
	rootCmd.PersistentFlags().StringVar(&verbosity, "verbosity", "info", "log level: error, info, debug, trace")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	scanCmd.Flags().StringSlice("tickers", nil, "comma separated tickers (overrides the universe)")
	scanCmd.Flags().String("universe", "", "YAML universe file")
	scanCmd.Flags().String("group", "", "group within the universe file")
	scanCmd.Flags().String("format", "table", "output: table, json or csv")
	scanCmd.Flags().String("out", "reports", "report directory for json/csv output")

	serveCmd.Flags().String("addr", ":8080", "listen address")

	rootCmd.AddCommand(scanCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Errorf("event=failed err=%v", err)
		os.Exit(1)
	}
}
