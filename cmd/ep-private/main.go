// ABOUTME: Entry point for the ep-private server and its maintenance commands
// ABOUTME: Serves the gated private area and issues, revokes and lists sessions offline

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/execpartners/ep-private/internal/config"
	"github.com/execpartners/ep-private/internal/gateway"
	"github.com/execpartners/ep-private/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
              _            _            _
  ___ _ __   _ __  _ __(_)_   ____ _| |_ ___
 / _ \ '_ \ | '_ \| '__| \ \ / / _' | __/ _ \
|  __/ |_) || |_) | |  | |\ V / (_| | ||  __/
 \___| .__/ | .__/|_|  |_| \_/ \__,_|\__\___|
     |_|    |_|
`

func usage() {
	fmt.Println("Usage: ep-private <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                                  Start the server")
	fmt.Println("  init                                   Write a starter config file")
	fmt.Println("  issue-link --email E [--role R] [--next P]")
	fmt.Println("                                         Print a one-time sign-in link")
	fmt.Println("  grant --email E --role R               Set a user's role and end their sessions")
	fmt.Println("  revoke --email E                       End every session of a user")
	fmt.Println("  sessions --email E                     List a user's sessions")
	fmt.Println("  health                                 Check server health")
	fmt.Println("  version                                Print the version")
	fmt.Println()
	fmt.Printf("Config: $%s, else %s\n", config.ConfigEnvVar, config.DefaultPath())
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "issue-link":
		err = runIssueLink(ctx, args)
	case "grant":
		err = runGrant(ctx, args)
	case "revoke":
		err = runRevoke(ctx, args)
	case "sessions":
		err = runSessions(ctx, args)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	path := config.DefaultPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Base URL:  %s\n", cfg.Server.BaseURL)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	if cfg.Auth.AdminToken == "" {
		yellow.Println("    ! admin_token is empty, /api/jobs answers 500")
	}
	if !cfg.Auth.CookieSecure {
		gray.Println("    cookies are Secure only on TLS requests")
	}
	fmt.Println()

	logger.Info("starting ep-private",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runInit() error {
	path := config.DefaultPath()
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	err := config.WriteSample(path)
	if errors.Is(err, config.ErrConfigExists) {
		yellow.Printf("  Config already exists: %s\n", path)
		return nil
	}
	if err != nil {
		return err
	}
	green.Printf("  ✓ Created config: %s\n", path)

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return fmt.Errorf("generating link secret: %w", err)
	}

	fmt.Println()
	fmt.Println("  The config reads its secrets from the environment:")
	fmt.Printf("    export EP_PRIVATE_LINK_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(secret))
	fmt.Println("    export JOBS_ADMIN_TOKEN=<token for /api/jobs>")
	fmt.Println()
	yellow.Println("  Then:")
	fmt.Println("    ep-private grant --email you@example.com --role admin")
	fmt.Println("    ep-private issue-link --email you@example.com")
	fmt.Println("    ep-private serve")
	return nil
}

// openGateway builds the gateway for offline commands. Nothing listens.
func openGateway() (*gateway.Gateway, func(), error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, closeLog, err := setupLogger(config.LoggingConfig{Level: "warn", Format: cfg.Logging.Format})
	if err != nil {
		return nil, nil, err
	}
	gw, err := gateway.New(cfg, logger)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("creating gateway: %w", err)
	}
	return gw, func() {
		_ = gw.Shutdown(context.Background())
		closeLog()
	}, nil
}

func runIssueLink(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "email", "role", "next")
	if err != nil {
		return err
	}
	if flags["email"] == "" {
		return errors.New("--email flag is required")
	}
	role := flags["role"]
	if role != "" && !store.IsValidRole(role) {
		return fmt.Errorf("invalid role %q (valid: %s)", role, strings.Join(store.ValidRoles, ", "))
	}

	gw, closeGW, err := openGateway()
	if err != nil {
		return err
	}
	defer closeGW()

	if role != "" {
		if err := gw.Store().SetPrivateUserRole(ctx, flags["email"], role, time.Now()); err != nil {
			return fmt.Errorf("setting role: %w", err)
		}
	}

	link, err := gw.Site().Issuer().Issue(ctx, flags["email"], flags["next"])
	if err != nil {
		return fmt.Errorf("issuing link: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Link for %s (expires %s)\n", link.Email, link.ExpiresAt.Local().Format("Jan 02 15:04"))
	fmt.Println()
	fmt.Println(link.URL)
	return nil
}

func runGrant(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "email", "role")
	if err != nil {
		return err
	}
	if flags["email"] == "" || flags["role"] == "" {
		return errors.New("--email and --role flags are required")
	}
	if !store.IsValidRole(flags["role"]) {
		return fmt.Errorf("invalid role %q (valid: %s)", flags["role"], strings.Join(store.ValidRoles, ", "))
	}

	gw, closeGW, err := openGateway()
	if err != nil {
		return err
	}
	defer closeGW()

	now := time.Now()
	if err := gw.Store().SetPrivateUserRole(ctx, flags["email"], flags["role"], now); err != nil {
		return fmt.Errorf("setting role: %w", err)
	}
	// Sessions carry the role they were issued with.
	n, err := gw.Store().RevokePrivateSessionsForEmail(ctx, flags["email"], now)
	if err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ %s is now %s (%d session(s) ended)\n", store.NormalizeEmail(flags["email"]), flags["role"], n)
	return nil
}

func runRevoke(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "email")
	if err != nil {
		return err
	}
	if flags["email"] == "" {
		return errors.New("--email flag is required")
	}

	gw, closeGW, err := openGateway()
	if err != nil {
		return err
	}
	defer closeGW()

	n, err := gw.Store().RevokePrivateSessionsForEmail(ctx, flags["email"], time.Now())
	if err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Revoked %d session(s) for %s\n", n, store.NormalizeEmail(flags["email"]))
	return nil
}

func runSessions(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "email")
	if err != nil {
		return err
	}
	if flags["email"] == "" {
		return errors.New("--email flag is required")
	}

	gw, closeGW, err := openGateway()
	if err != nil {
		return err
	}
	defer closeGW()

	sessions, err := gw.Store().ListPrivateSessions(ctx, flags["email"])
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLE\tSTATE\tCREATED\tEXPIRES\tLAST SEEN\tVIA")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(s.ID),
			s.Role,
			sessionState(s, now),
			s.CreatedAt.Local().Format("2006-01-02 15:04"),
			s.ExpiresAt.Local().Format("2006-01-02 15:04"),
			formatOptionalTime(s.LastSeenAt),
			s.Via,
		)
	}
	return w.Flush()
}

func sessionState(s *store.PrivateSession, now time.Time) string {
	switch {
	case s.RevokedAt != nil:
		return color.RedString("revoked")
	case !s.ValidAt(now):
		return color.YellowString("expired")
	default:
		return color.GreenString("active")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// parseFlags reads "--name value" and "--name=value" pairs for the allowed
// names. Positional arguments and unknown flags are errors.
func parseFlags(args []string, allowed ...string) (map[string]string, error) {
	known := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		known[name] = true
	}

	values := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !known[name] {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		values[name] = strings.TrimSpace(value)
	}
	return values, nil
}
