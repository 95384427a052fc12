package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/nubohq/knowcheck/internal/archive"
	"github.com/nubohq/knowcheck/internal/evaluator"
	"github.com/nubohq/knowcheck/internal/httpapi"
	appI18n "github.com/nubohq/knowcheck/internal/i18n"
	"github.com/nubohq/knowcheck/internal/session"
	"github.com/nubohq/knowcheck/internal/summary"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "knowcheck",
		Short: "Interactive knowledge checker powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `knowcheck --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the knowledge-check HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "knowcheck.db", "SQLite database path for the transcript archive")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.Duration("llm-timeout", 0, "Timeout per evaluator call (0 = none)")
	f.StringP("lang", "l", "en", "UI language (en, nl)")
	f.Int("max-attempts", session.DefaultMaxAttempts, "Answers allowed per question before moving on")
	f.String("manager-password", "", "Manager view password (or set KNOWCHECK_MANAGER_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived transcripts as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "knowcheck.db", "SQLite database path for the transcript archive")
	f.String("topic", "", "Only export transcripts for this topic")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("KNOWCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("knowcheck")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/knowcheck")
	v.AddConfigPath("/etc/knowcheck")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open the transcript archive.
	store, err := archive.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Create the evaluator client and verify the endpoint.
	llmClient := evaluator.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		v.GetDuration("llm-timeout"),
	)
	if err := llmClient.Ping(context.Background()); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	managerPassword := v.GetString("manager-password")
	if managerPassword == "" {
		return fmt.Errorf("manager password is required: set --manager-password flag or KNOWCHECK_MANAGER_PASSWORD env var")
	}
	managerHash, err := bcrypt.GenerateFromPassword([]byte(managerPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash manager password: %w", err)
	}

	agg := summary.New(llmClient, store)
	engine := session.NewEngine(llmClient, agg, v.GetInt("max-attempts"))
	h := httpapi.New(engine, agg, managerHash)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"max_attempts", v.GetInt("max-attempts"),
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	store, err := archive.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer store.Close()

	entries, err := store.ReadAll()
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	if topic := v.GetString("topic"); topic != "" {
		var filtered []archive.Entry
		for _, e := range entries {
			if e.Topic == topic {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}
