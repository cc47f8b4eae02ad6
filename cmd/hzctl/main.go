// main.go - Admin control tool for the analytics server
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"hayzedd/internal"
	"hayzedd/internal/analytics"
	"hayzedd/internal/config"
	"hayzedd/internal/events"
	"hayzedd/internal/seeder"
	"hayzedd/internal/sessions"
	"hayzedd/internal/settings"
	"hayzedd/internal/timeframe"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// NeedsApp reports whether the command needs a database connection
	NeedsApp() bool
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&SeedCommand{},
	&StatsCommand{},
	&StatusCommand{},
	&ExcludedIPsCommand{},
	&HashAdminKeyCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	var app *internal.Application
	if cmd.NeedsApp() {
		var err error
		app, err = internal.NewApp()
		if err != nil {
			log.Fatalf("Failed to initialize app: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}()
	}

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations and default settings" }
func (c *MigrateCommand) NeedsApp() bool      { return true }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")
	if err := app.Prepare(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with synthetic sessions
type SeedCommand struct{}

func (c *SeedCommand) Name() string { return "seed" }
func (c *SeedCommand) Description() string {
	return "Seeds the database with sample sessions and page views"
}
func (c *SeedCommand) NeedsApp() bool { return true }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	pageViews := fs.Int("pageviews", 2000, "number of page views to generate")
	days := fs.Int("days", 30, "spread the data over the last N days")
	domain := fs.String("domain", "example.com", "host used in seeded URLs")
	geo := fs.Bool("geo", false, "geolocate seeded sessions")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := app.Prepare(); err != nil {
		return err
	}

	se := seeder.NewSeeder(app.DBManager, slog.Default(), *pageViews)
	se.Days = *days
	se.Domain = *domain
	if *geo {
		se.Locator = internal.NewLocator(config.GetConfig(), slog.Default())
	}

	stats, err := se.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d sessions, %d page views, %d events\n", stats.Sessions, stats.PageViews, stats.Events)
	return nil
}

// StatsCommand prints the overview document the /stats endpoint serves
type StatsCommand struct{}

func (c *StatsCommand) Name() string { return "stats" }
func (c *StatsCommand) Description() string {
	return "Prints aggregated stats as JSON (-period, -page)"
}
func (c *StatsCommand) NeedsApp() bool { return true }

func (c *StatsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	period := fs.String("period", "7d", "one of 1d, 7d, 30d, 90d, 1y")
	page := fs.String("page", "", "restrict page figures to one path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, r := timeframe.NewParser().PeriodRange(*period)
	stats, err := analytics.ComputeStats(ctx, app.DBManager.GetConnection(), analytics.StatsQuery{
		Period: p,
		Range:  r,
		Page:   *page,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }
func (c *StatusCommand) NeedsApp() bool      { return true }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DBManager.GetConnection().WithContext(ctx)

	var sessionCount, pageViewCount, eventCount int64
	if err := db.Model(&sessions.Session{}).Count(&sessionCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&events.PageView{}).Count(&pageViewCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.Model(&events.Event{}).Count(&eventCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	cfg := config.GetConfig()
	window := time.Duration(cfg.GetSessionTimeout()) * time.Second
	var active int64
	if err := db.Model(&sessions.Session{}).Where("last_activity >= ?", time.Now().UTC().Add(-window)).Count(&active).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Sessions: %d (%d active in the last %s)", sessionCount, active, window)
	log.Printf("- Page views: %d", pageViewCount)
	log.Printf("- Events: %d", eventCount)

	lastFinalize, err := settings.GetTime(db, settings.KeyLastFinalizerRun)
	if err == nil && !lastFinalize.IsZero() {
		log.Printf("- Last session finalization: %s", lastFinalize.Format(time.RFC3339))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	log.Printf("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)

	return nil
}

// ExcludedIPsCommand lists or edits the addresses refused at session init
type ExcludedIPsCommand struct{}

func (c *ExcludedIPsCommand) Name() string { return "excluded-ips" }
func (c *ExcludedIPsCommand) Description() string {
	return "Lists, adds or removes excluded IPs (list | add <ip>... | remove <ip>...)"
}
func (c *ExcludedIPsCommand) NeedsApp() bool { return true }

func (c *ExcludedIPsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DBManager.GetConnection()
	if err := settings.SetupDefaultSettings(db, slog.Default()); err != nil {
		return err
	}

	current, err := settings.GetSetting(db, settings.KeyExcludedIPs)
	if err != nil {
		return err
	}
	var ips []string
	for _, ip := range strings.Split(current, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			ips = append(ips, ip)
		}
	}

	action := "list"
	if len(args) > 0 {
		action, args = args[0], args[1:]
	}

	switch action {
	case "list":
		if len(ips) == 0 {
			fmt.Println("No excluded IPs")
		}
		for _, ip := range ips {
			fmt.Println(ip)
		}
		return nil
	case "add":
		for _, raw := range args {
			parsed := net.ParseIP(strings.TrimSpace(raw))
			if parsed == nil {
				return fmt.Errorf("invalid IP address: %q", raw)
			}
			if ip := parsed.String(); !slices.Contains(ips, ip) {
				ips = append(ips, ip)
			}
		}
	case "remove":
		ips = slices.DeleteFunc(ips, func(ip string) bool {
			return slices.Contains(args, ip)
		})
	default:
		return fmt.Errorf("unknown action %q: use list, add or remove", action)
	}

	if err := settings.CreateOrUpdateSetting(db, slog.Default(), settings.KeyExcludedIPs, strings.Join(ips, ",")); err != nil {
		return err
	}
	fmt.Printf("Excluded IPs: %d\n", len(ips))
	return nil
}

// HashAdminKeyCommand prints a bcrypt hash to use as HAYZEDD_ADMIN_KEY
type HashAdminKeyCommand struct{}

func (c *HashAdminKeyCommand) Name() string { return "hash-admin-key" }
func (c *HashAdminKeyCommand) Description() string {
	return "Hashes an admin key for HAYZEDD_ADMIN_KEY"
}
func (c *HashAdminKeyCommand) NeedsApp() bool { return false }

func (c *HashAdminKeyCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	var key string
	if len(args) >= 1 {
		key = args[0]
	} else {
		fmt.Fprint(os.Stderr, "Enter admin key (minimum 16 characters): ")
		keyBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
		fmt.Fprintln(os.Stderr)

		fmt.Fprint(os.Stderr, "Confirm admin key: ")
		confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
		fmt.Fprintln(os.Stderr)

		if string(keyBytes) != string(confirmBytes) {
			return fmt.Errorf("keys do not match")
		}
		key = strings.TrimSpace(string(keyBytes))
	}

	if len(key) < 16 {
		return fmt.Errorf("admin key must be at least 16 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash key: %w", err)
	}
	fmt.Println(string(hash))
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }
func (c *HelpCommand) NeedsApp() bool      { return false }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: hzctl [command] [args...]")
	fmt.Println("Available commands:")
	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
