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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/casesim/internal/export"
	"github.com/pavelanni/casesim/internal/generate"
	"github.com/pavelanni/casesim/internal/handler"
	appI18n "github.com/pavelanni/casesim/internal/i18n"
	"github.com/pavelanni/casesim/internal/llm"
	"github.com/pavelanni/casesim/internal/llm/prompts"
	"github.com/pavelanni/casesim/internal/model"
	"github.com/pavelanni/casesim/internal/review"
	"github.com/pavelanni/casesim/internal/search"
	"github.com/pavelanni/casesim/internal/store"
	"github.com/pavelanni/casesim/internal/validate"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "casesim",
		Short:   "Clinical case simulator backend",
		Version: model.AppVersion,
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), validateCmd(), mockCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db-driver", string(store.DriverSQLite), "Database driver (sqlite, postgres)")
	f.String("db", "casesim.db", "SQLite path or Postgres DSN")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("llm-provider", "none", "Language model provider (openai, gemini, none)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for the language model")
	f.String("llm-model", "llama3.2", "Language model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Grading prompt variant (strict, standard, lenient)")
	f.String("generator-url", "", "Remote case generator endpoint (overrides the language model)")
	f.String("reviewer-url", "", "Remote reviewer endpoint (overrides the language model)")
	f.String("google-cse-key", "", "Google Custom Search API key")
	f.String("google-cse-id", "", "Google Custom Search engine id")
	f.StringP("lang", "l", "en", "Language for advisory messages (en, id)")
	f.StringSlice("cors-origins", []string{"*"}, "Allowed CORS origins")
	f.Duration("remote-timeout", 20*time.Second, "Timeout for each generator, reviewer and search call")
	f.Int("max-feedback", review.DefaultMaxItems, "Maximum pros/cons/red flags kept from a review")
	addStoreFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a saved attempt as JSON or Markdown",
		Long:  "Export a saved attempt. Without --id, list the saved attempts instead.",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("id", "", "Saved attempt id")
	f.String("format", string(export.FormatJSON), "Output format (json, md)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.StringP("lang", "l", "en", "Language for messages (en, id)")
	addStoreFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a case JSON file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	f := cmd.Flags()
	f.String("profile", "client", "Action count limits (client, generator)")
	addLogFlags(cmd)
	return cmd
}

func mockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Print the built-in fallback case",
		RunE:  runMock,
	}
	f := cmd.Flags()
	f.String("specialty", "cardiology", "Specialty label")
	f.Int("difficulty", int(model.DifficultyMedium), "Difficulty (1-3)")
	addLogFlags(cmd)
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

	v.SetEnvPrefix("CASESIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("casesim")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/casesim")
	v.AddConfigPath("/etc/casesim")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func openStore(v *viper.Viper) (*store.Store, error) {
	db, err := store.New(store.Driver(v.GetString("db-driver")), v.GetString("db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// newCompleter returns nil when no language model is configured.
func newCompleter(ctx context.Context, v *viper.Viper) (llm.Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(v.GetString("llm-provider")))
	switch provider {
	case "", "none":
		return nil, nil
	case "openai":
		c := llm.New(v.GetString("llm-url"), v.GetString("llm-key"), v.GetString("llm-model"))
		if err := c.Ping(ctx); err != nil {
			slog.Warn("LLM health check failed, requests will fall back", "url", v.GetString("llm-url"), "error", err)
		} else {
			slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
		}
		return c, nil
	case "gemini":
		if v.GetString("llm-key") == "" {
			return nil, fmt.Errorf("gemini provider requires --llm-key")
		}
		return llm.NewGemini(v.GetString("llm-key"), v.GetString("llm-model")), nil
	default:
		return nil, fmt.Errorf("unknown llm-provider %q (want openai, gemini or none)", provider)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := strings.ToLower(v.GetString("lang"))
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	promptVariant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(promptVariant) {
		slog.Warn("invalid prompt-variant, using standard", "variant", promptVariant)
		promptVariant = string(prompts.PromptStandard)
	}

	cfg := model.ServerConfig{
		Lang:          lang,
		PromptVariant: promptVariant,
		RemoteTimeout: v.GetDuration("remote-timeout"),
		MaxFeedback:   v.GetInt("max-feedback"),
	}

	completer, err := newCompleter(ctx, v)
	if err != nil {
		return err
	}
	remote := &http.Client{Timeout: cfg.RemoteTimeout}

	deps := handler.Deps{Saves: db, Config: cfg}

	var source generate.Source
	var reviewer review.Reviewer
	var summarizer search.Summarizer
	if completer != nil {
		gen := llm.NewCaseGenerator(completer)
		deps.CaseGen = gen
		source = gen
		reviewer = llm.NewGrader(completer, prompts.PromptVariant(promptVariant), cfg.MaxFeedback)
		summarizer = llm.NewSummarizer(completer)
	}
	if u := v.GetString("generator-url"); u != "" {
		source = generate.NewHTTPSource(u, remote)
	}
	if u := v.GetString("reviewer-url"); u != "" {
		reviewer = review.NewHTTPReviewer(u, remote)
	}
	deps.Cases = generate.NewService(source, cfg.RemoteTimeout)
	deps.Reviews = review.NewReconciler(reviewer, cfg.RemoteTimeout, cfg.MaxFeedback)

	var searcher search.Searcher
	if key, cx := v.GetString("google-cse-key"), v.GetString("google-cse-id"); key != "" && cx != "" {
		g, err := search.NewGoogle(ctx, key, cx)
		if err != nil {
			return fmt.Errorf("create search client: %w", err)
		}
		searcher = g
	}
	deps.Search = search.NewService(searcher, summarizer, cfg.RemoteTimeout)

	h := handler.New(deps)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: v.GetStringSlice("cors-origins"),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"version", model.AppVersion,
		"db_driver", v.GetString("db-driver"),
		"llm_provider", v.GetString("llm-provider"),
		"model", v.GetString("llm-model"),
		"prompt_variant", promptVariant,
		"generator_url", v.GetString("generator-url"),
		"reviewer_url", v.GetString("reviewer-url"),
		"search", searcher != nil,
		"lang", lang,
	)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := context.Background()

	if err := appI18n.Init(strings.ToLower(v.GetString("lang"))); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	lctx := appI18n.WithLocalizer(ctx, appI18n.NewLocalizer(v.GetString("lang")))

	format, err := export.ParseFormat(v.GetString("format"))
	if err != nil {
		return err
	}

	db, err := openStore(v)
	if err != nil {
		return err
	}
	defer db.Close()

	w, closeOut, err := openOutput(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeOut()

	id := v.GetString("id")
	if id == "" {
		all, err := db.LoadAll(ctx)
		if err != nil {
			return fmt.Errorf("load saves: %w", err)
		}
		fmt.Fprintln(w, appI18n.Tp(lctx, "SavedAttempts", len(all)))
		for _, e := range all {
			created := time.UnixMilli(e.CreatedAt).UTC().Format(time.RFC3339)
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f\n", e.ID, created, e.Specialty, e.Difficulty, e.Score.Total)
		}
		return nil
	}

	entry, err := store.Find(ctx, db, id)
	if err != nil {
		return fmt.Errorf("load saves: %w", err)
	}
	if entry == nil {
		return fmt.Errorf("save %q not found", id)
	}
	data, err := export.Render(*entry, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		_, _ = fmt.Fprintln(w)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	cmd.SilenceUsage = true

	var lim validate.Limits
	switch v.GetString("profile") {
	case "client":
		lim = validate.ClientLimits
	case "generator":
		lim = validate.GeneratorLimits
	default:
		return fmt.Errorf("unknown profile %q (want client or generator)", v.GetString("profile"))
	}

	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	c, err := validate.ParseWith(data, lim)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%s, difficulty %d, %d actions)\n",
		c.ID, c.Specialty, c.Difficulty, len(c.Actions.All()))
	return nil
}

func runMock(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	c := generate.Mock(v.GetString("specialty"), model.Difficulty(v.GetInt("difficulty")), time.Now())
	data, err := json.MarshalIndent(c.Clamped(model.MaxActionsPerGroup), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal case: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
