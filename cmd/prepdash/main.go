package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prepdash/prepdash/internal/analytics"
	"github.com/prepdash/prepdash/internal/event"
	"github.com/prepdash/prepdash/internal/handler"
	appI18n "github.com/prepdash/prepdash/internal/i18n"
	"github.com/prepdash/prepdash/internal/model"
	"github.com/prepdash/prepdash/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "prepdash",
		Short: "Test preparation analytics service",
	}

	serve := serveCmd()
	root.AddCommand(serve, seedCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `prepdash --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the analytics HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "prepdash.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Response language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /api/analytics)")
	f.String("amqp-url", "", "AMQP broker URL (empty disables event publishing)")
	f.String("amqp-exchange", "prepdash.events", "AMQP topic exchange for analytics events")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Import question bank JSON files",
		RunE:  runSeed,
	}
	f := cmd.Flags()
	f.String("db", "prepdash.db", "SQLite database path")
	f.StringSliceP("questions", "q", nil, "Paths to question bank JSON files (repeatable, required)")
	f.Bool("demo", false, "Also generate demo sessions with calculated metrics")
	f.String("demo-user", "demo-user", "User ID for generated demo sessions")
	f.Int("demo-sessions", 3, "Number of demo sessions to generate")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("questions")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's analytics as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "prepdash.db", "SQLite database path")
	f.StringP("user", "u", "", "User identifier (required)")
	f.StringP("lang", "l", "en", "Language for localized insight text (en, ru)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var logHandler slog.Handler
	if strings.EqualFold(v.GetString("log-format"), "json") {
		logHandler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		logHandler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("PREPDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("prepdash")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/prepdash")
	v.AddConfigPath("/etc/prepdash")
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

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	var pub event.Publisher = event.NopPublisher{}
	if amqpURL := v.GetString("amqp-url"); amqpURL != "" {
		p, err := event.NewAMQPPublisher(amqpURL, v.GetString("amqp-exchange"))
		if err != nil {
			return fmt.Errorf("connect AMQP broker: %w", err)
		}
		defer p.Close()
		pub = p
		slog.Info("event publishing enabled", "exchange", v.GetString("amqp-exchange"))
	}

	h := handler.New(db, pub)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			h.Routes(sub)
		})
	} else {
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", lang,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadQuestions(db, v.GetStringSlice("questions")); err != nil {
		return err
	}

	if v.GetBool("demo") {
		if err := appI18n.Init("en"); err != nil {
			return fmt.Errorf("init i18n: %w", err)
		}
		return seedDemoSessions(db, v.GetString("demo-user"), v.GetInt("demo-sessions"))
	}
	return nil
}

// seedDemoSessions fabricates completed sessions with plausible answers and
// runs the metrics calculation for each, so every API endpoint returns data
// out of the box.
func seedDemoSessions(db *store.Store, userID string, count int) error {
	var bank []model.Question
	for _, subject := range model.AllSubjects() {
		questions, err := db.ListQuestionsBySubject(subject)
		if err != nil {
			return fmt.Errorf("list %s questions: %w", subject, err)
		}
		bank = append(bank, questions...)
	}
	if len(bank) == 0 {
		return fmt.Errorf("question bank is empty; import questions first")
	}

	calc := analytics.NewCalculator(db)
	for i := 0; i < count; i++ {
		subjectSet := make(map[model.Subject]bool)
		var questionIDs []string
		for _, q := range bank {
			subjectSet[q.Subject] = true
			questionIDs = append(questionIDs, q.ID)
		}
		var subjects []model.Subject
		for _, subject := range model.AllSubjects() {
			if subjectSet[subject] {
				subjects = append(subjects, subject)
			}
		}

		sessID, err := db.CreateSession(userID, subjects, questionIDs)
		if err != nil {
			return fmt.Errorf("create demo session: %w", err)
		}

		// Accuracy climbs across sessions so trends have a direction.
		correctShare := 0.55 + 0.08*float64(i)
		now := time.Now()
		for j, q := range bank {
			a := model.Answer{
				SessionID:  sessID,
				QuestionID: q.ID,
				TimeSpent:  35 + (j*17+i*11)%110,
				AnsweredAt: &now,
			}
			if float64(j%10)/10 < correctShare {
				a.SelectedOption = &q.CorrectOption
				a.IsCorrect = true
			} else if j%7 != 0 { // leave the occasional question unanswered
				wrong := "wrong"
				a.SelectedOption = &wrong
			}
			if err := db.SaveAnswer(a); err != nil {
				return fmt.Errorf("save demo answer: %w", err)
			}
		}

		if err := db.UpdateSessionStatus(sessID, model.StatusCompleted); err != nil {
			return fmt.Errorf("complete demo session: %w", err)
		}
		if _, _, err := calc.CalculateAndStore(context.Background(), sessID); err != nil {
			return fmt.Errorf("calculate demo metrics: %w", err)
		}
		slog.Info("seeded demo session", "session_id", sessID, "user_id", userID, "questions", len(questionIDs))
	}
	return nil
}

func loadQuestions(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("question file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("question file changed since last import, skipping to avoid breaking existing sessions",
				"path", path)
			continue
		}

		var questions []model.QuestionImport
		if err := json.Unmarshal(data, &questions); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for _, qi := range questions {
			_, err := db.InsertQuestion(model.Question{
				Subject:       qi.Subject,
				Difficulty:    qi.Difficulty,
				Text:          qi.Text,
				Options:       qi.Options,
				CorrectOption: qi.CorrectOption,
				Topic:         qi.Topic,
				Subtopic:      qi.Subtopic,
				Concepts:      qi.Concepts,
				EstimatedTime: qi.EstimatedTime,
			})
			if err != nil {
				return fmt.Errorf("insert question from %s: %w", path, err)
			}
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported questions", "path", path, "count", len(questions))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	userID := v.GetString("user")
	agg := analytics.NewAggregator(db)
	trendAnalyzer := analytics.NewTrendAnalyzer(agg)
	recommender := analytics.NewRecommender(agg)

	ctx := context.Background()
	metrics, err := agg.PerformanceHistory(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch metrics: %w", err)
	}
	progress, err := agg.Progress(ctx, userID)
	if err != nil {
		return fmt.Errorf("build progress: %w", err)
	}
	trends, err := trendAnalyzer.Trends(ctx, userID)
	if err != nil {
		return fmt.Errorf("build trends: %w", err)
	}
	recs, err := recommender.Recommendations(ctx, userID)
	if err != nil {
		return fmt.Errorf("build recommendations: %w", err)
	}

	export := model.UserExport{
		UserID:          userID,
		GeneratedAt:     time.Now().UTC(),
		Metrics:         metrics,
		Progress:        progress,
		Trends:          trends,
		Recommendations: recs,
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	data = append(data, '\n')

	outPath := v.GetString("output")
	if outPath == "" || outPath == "-" {
		_, err = os.Stdout.Write(data)
	} else {
		err = os.WriteFile(outPath, data, 0o644)
	}
	if err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	slog.Info("exported analytics", "user", userID, "sessions", len(metrics))
	return nil
}
