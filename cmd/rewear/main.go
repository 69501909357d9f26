package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rewear/rewear/internal/api"
	"github.com/rewear/rewear/internal/auth"
	"github.com/rewear/rewear/internal/config"
	"github.com/rewear/rewear/internal/db"
	"github.com/rewear/rewear/internal/media"
	"github.com/rewear/rewear/internal/metrics"
	"github.com/rewear/rewear/internal/model"
	"github.com/rewear/rewear/internal/store"
	"github.com/rewear/rewear/internal/swap"
)

// levelRouter is a slog.Handler that routes INFO/WARN to stdout and ERROR+ to stderr.
type levelRouter struct {
	stdout slog.Handler
	stderr slog.Handler
}

func (lr *levelRouter) Enabled(_ context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo
}

func (lr *levelRouter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelError {
		return lr.stderr.Handle(ctx, r)
	}
	return lr.stdout.Handle(ctx, r)
}

func (lr *levelRouter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithAttrs(attrs),
		stderr: lr.stderr.WithAttrs(attrs),
	}
}

func (lr *levelRouter) WithGroup(name string) slog.Handler {
	return &levelRouter{
		stdout: lr.stdout.WithGroup(name),
		stderr: lr.stderr.WithGroup(name),
	}
}

// setupLogger configures structured logging. INFO/WARN go to stdout, ERROR goes
// to stderr. If logPath is non-empty, all levels are also written to that file.
// Returns a cleanup function that closes the log file (if opened).
func setupLogger(logPath string) (func(), error) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	cleanup := func() {}
	stdoutW := io.Writer(os.Stdout)
	stderrW := io.Writer(os.Stderr)

	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		cleanup = func() { f.Close() }
		stdoutW = io.MultiWriter(os.Stdout, f)
		stderrW = io.MultiWriter(os.Stderr, f)
	}

	slog.SetDefault(slog.New(&levelRouter{
		stdout: slog.NewTextHandler(stdoutW, opts),
		stderr: slog.NewTextHandler(stderrW, opts),
	}))
	return cleanup, nil
}

const usage = `Usage: rewear [serve] [flags]
       rewear token --user <id> [flags]

Commands:
  serve                      run the HTTP server (default)
  token                      print a signed access token for a user

Flags:
  -c, --config <path>        YAML config file (env: REWEAR_CONFIG)
  -d, --db <path>            SQLite database path (default: rewear.sqlite3)
  -a, --addr <host:port>     listen address (default: :8080)
  -l, --log <path>           log file path (default: stdout/stderr only)
  -e, --admin-email <addr>   admin account created on first run
      --user <id>            user ID for the token command
  -h, --help                 show this help and exit

Environment variables prefixed with REWEAR_ override the config file;
flags override both.
`

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && (args[0] == "serve" || args[0] == "token") {
		cmd, args = args[0], args[1:]
	}

	fs := pflag.NewFlagSet("rewear", pflag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stdout, usage) }

	configPath := fs.StringP("config", "c", "", "")
	dbPath := fs.StringP("db", "d", "", "")
	addr := fs.StringP("addr", "a", "", "")
	logPath := fs.StringP("log", "l", "", "")
	adminEmail := fs.StringP("admin-email", "e", "", "")
	userID := fs.Int64("user", 0, "")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "unexpected argument: %s\n", fs.Arg(0))
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if fs.Changed("db") {
		cfg.DB = *dbPath
	}
	if fs.Changed("addr") {
		cfg.Addr = *addr
	}
	if fs.Changed("log") {
		cfg.Log = *logPath
	}
	if fs.Changed("admin-email") {
		cfg.AdminEmail = *adminEmail
	}

	closeLog, err := setupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	switch cmd {
	case "token":
		err = runToken(cfg, *userID)
	default:
		err = runServe(cfg)
	}
	if err != nil {
		slog.Error("fatal", "command", cmd, "error", err)
		closeLog()
		os.Exit(1)
	}
}

func runServe(cfg config.Config) error {
	ctx := context.Background()

	// Check if DB exists, auto-init if not.
	firstRun := false
	if _, err := os.Stat(cfg.DB); os.IsNotExist(err) {
		firstRun = true
	}

	database, err := db.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database); err != nil {
		return err
	}
	slog.Info("database ready", "path", cfg.DB)

	jwtSecret, err := store.JWTSecret(ctx, database, cfg.JWTSecret)
	if err != nil {
		return err
	}

	if firstRun {
		if err := bootstrapAdmin(ctx, database, cfg, jwtSecret); err != nil {
			database.Close()
			os.Remove(cfg.DB)
			return err
		}
	}

	m := metrics.New()
	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	opts := api.Options{
		DB:          database,
		JWTSecret:   jwtSecret,
		Swaps:       swap.New(database, m.Swaps),
		Metrics:     m,
		RateLimiter: limiter,
	}
	if cfg.MediaEnabled() {
		opts.Uploader = media.New(cfg.Media.UploadURL, cfg.Media.APIKey, cfg.Media.APISecret,
			cfg.Media.Folder, cfg.Media.Timeout)
		slog.Info("photo uploads enabled", "folder", cfg.Media.Folder)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.LoggingMiddleware(api.NewRouter(opts)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	stopCleanup := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				limiter.Cleanup(now)
			case <-stopCleanup:
				return
			}
		}
	}()
	defer close(stopCleanup)

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-quit
		slog.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server forced to shutdown", "error", err)
		}
	}()

	slog.Info("server started", "addr", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("server stopped, closing database")
	return nil
}

// bootstrapAdmin creates the first admin account and prints its credentials
// and an access token.
func bootstrapAdmin(ctx context.Context, database *sql.DB, cfg config.Config, jwtSecret string) error {
	email, err := model.NormalizeEmail(cfg.AdminEmail)
	if err != nil {
		return fmt.Errorf("admin email: %w", err)
	}

	password, err := generatePassword(16)
	if err != nil {
		return fmt.Errorf("generating password: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	admin, err := store.CreateUser(ctx, database, "Admin", email, hash, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	token, err := auth.GenerateToken(jwtSecret, admin.ID, admin.Role)
	if err != nil {
		return err
	}

	fmt.Printf("Database created: %s\n", cfg.DB)
	fmt.Println()
	fmt.Println("Admin account created:")
	fmt.Printf("  Email:    %s\n", email)
	fmt.Printf("  Password: %s\n", password)
	fmt.Printf("  Token:    %s\n", token)
	fmt.Println()
	fmt.Println("Save this password, it cannot be recovered.")
	fmt.Println()
	return nil
}

// runToken prints a token for an existing user, for operators and scripts.
func runToken(cfg config.Config, userID int64) error {
	if userID <= 0 {
		return errors.New("--user is required")
	}
	ctx := context.Background()

	if _, err := os.Stat(cfg.DB); err != nil {
		return fmt.Errorf("database %s: %w", cfg.DB, err)
	}
	database, err := db.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer database.Close()

	secret, err := store.JWTSecret(ctx, database, cfg.JWTSecret)
	if err != nil {
		return err
	}

	user, err := store.GetUser(ctx, database, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %d not found", userID)
	}
	if user.IsBanned {
		return fmt.Errorf("user %d is banned", userID)
	}

	token, err := auth.GenerateToken(secret, user.ID, user.Role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// generatePassword creates a random password of the given length.
func generatePassword(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
