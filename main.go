package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/akozyrev/docintake/internal/config"
	"github.com/akozyrev/docintake/internal/convert"
	"github.com/akozyrev/docintake/internal/credential"
	"github.com/akozyrev/docintake/internal/mailbox"
	"github.com/akozyrev/docintake/internal/pdfmerge"
	"github.com/akozyrev/docintake/internal/review"
	"github.com/akozyrev/docintake/internal/runner"
	"github.com/akozyrev/docintake/internal/scrape"
	"github.com/akozyrev/docintake/internal/store"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docintake",
		Short: "Register incoming mail as numbered PDF documents",
		Long: "docintake polls an IMAP mailbox for unread messages, renders each " +
			"one into a single PDF (headers, body and attachments), and walks the " +
			"operator through registering it under a sequential incoming number.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to the configuration file")

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Process unread mailbox messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			p, ledger, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			_, err = p.Run(cmd.Context())
			return err
		},
	}

	scanCmd := &cobra.Command{
		Use:   "scan <directory>",
		Short: "Register already-scanned PDF files from a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			p, ledger, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer ledger.Close()

			_, err = p.RunScan(cmd.Context(), args[0])
			return err
		},
	}

	scrapeCmd := &cobra.Command{
		Use:   "scrape",
		Short: "Log in to the configured site and export article records to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := setup(configPath)
			if err != nil {
				return err
			}
			defer func() { _ = cleanup() }()

			return scrape.New(cfg.Scrape, logger).Run(cmd.Context())
		},
	}

	// Bare invocation runs the mail pipeline.
	rootCmd.RunE = processCmd.RunE

	rootCmd.AddCommand(processCmd, scanCmd, scrapeCmd, passwordCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// passwordCmd manages the mailbox password in the OS keyring.
func passwordCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Manage the mailbox password in the OS keyring",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Store the mailbox password in the keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Mail.Username == "" {
				return fmt.Errorf("set mail.username in %s first", *configPath)
			}

			var password string
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().
					Title("Пароль для " + cfg.Mail.Username).
					EchoMode(huh.EchoModePassword).
					Value(&password),
			))
			if err := form.Run(); err != nil {
				return err
			}

			if err := credential.Set(credential.MailPasswordKey(cfg.Mail.Username), password); err != nil {
				return err
			}
			fmt.Println("Пароль сохранён в системном хранилище.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the mailbox password from the keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return credential.Delete(credential.MailPasswordKey(cfg.Mail.Username))
		},
	})

	return cmd
}

// setup loads the configuration and builds the logger. Logs go to
// stderr so stdout stays free for prompts and narration.
func setup(configPath string) (*config.Config, *slog.Logger, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, cleanup, err := setupLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, cleanup, nil
}

func buildPipeline(cfg *config.Config, logger *slog.Logger) (*runner.Pipeline, store.Store, error) {
	if cfg.Mail.Server == "" || cfg.Mail.Username == "" {
		return nil, nil, fmt.Errorf("mail.server and mail.username must be configured")
	}

	password, err := credential.ResolveMailPassword(cfg.Mail.Password, cfg.Mail.Username)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, err
	}
	ledger, err := store.NewSQLiteStore(cfg.LedgerPath())
	if err != nil {
		return nil, nil, err
	}

	mail := mailbox.New(cfg.Mail.Server, cfg.Mail.Port, cfg.Mail.Username, password, cfg.Mail.Mailbox, logger)

	p := runner.New(
		cfg,
		ledger,
		mail,
		convert.Detect(logger),
		pdfmerge.New(logger),
		review.HuhPrompter{},
		review.PromptLastNumber,
		logger,
		os.Stdout,
	)
	return p, ledger, nil
}

func setupLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("docintake-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stderr, opts)
	return slog.New(handler), cleanup, nil
}
