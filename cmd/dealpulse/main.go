// DealPulse
// Tracks product prices across retailer pages and raises alerts on material drops.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/marcosevegrand/dealpulse/internal/config"
	"github.com/marcosevegrand/dealpulse/internal/formatter"
	"github.com/marcosevegrand/dealpulse/internal/refresh"
	"github.com/marcosevegrand/dealpulse/internal/retailer"
)

const (
	AppName    = "dealpulse"
	AppVersion = "1.0.0"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	app := &cli.App{
		Name:    AppName,
		Usage:   "Track retailer prices and alert on material drops",
		Version: AppVersion,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (YAML or JSON)",
				EnvVars: []string{"DEALPULSE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error), overrides config",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (console, json), overrides config",
			},
		},
		Commands: []*cli.Command{
			refreshCommand(),
			alertsCommand(),
			extractCommand(),
			serveCommand(),
			configCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if v := c.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := c.String("log-format"); v != "" {
		cfg.Logging.Format = v
	}
	return cfg, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Fetch every stale product once and record new prices",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the batch summary as JSON"},
		},
		Action: func(c *cli.Context) error {
			return runBatch(c, func(ctx context.Context, s *refresh.Scheduler) (*refresh.BatchSummary, error) {
				return s.RunRefresh(ctx)
			})
		},
	}
}

func alertsCommand() *cli.Command {
	return &cli.Command{
		Name:  "alerts",
		Usage: "Evaluate the latest price of every product and send pending alerts",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print the batch summary as JSON"},
		},
		Action: func(c *cli.Context) error {
			return runBatch(c, func(ctx context.Context, s *refresh.Scheduler) (*refresh.BatchSummary, error) {
				return s.RunAlerts(ctx)
			})
		},
	}
}

func runBatch(c *cli.Context, run func(context.Context, *refresh.Scheduler) (*refresh.BatchSummary, error)) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(c.Context)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	summary, err := run(ctx, rt.scheduler)
	if summary != nil {
		if c.Bool("json") {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(summary); encErr != nil {
				return encErr
			}
		} else {
			printSummary(summary)
		}
	}
	return err
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "Test extraction on a single URL",
		ArgsUsage: "<url>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("exactly one URL is required", 2)
			}
			target := retailer.NormalizeURL(c.Args().First())
			if !retailer.IsValidURL(target) {
				return cli.Exit(fmt.Sprintf("invalid URL: %s", target), 2)
			}

			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			requester := newRequester(cfg, logger)
			chain := newChain(cfg, logger)

			fmt.Println("\n🧪 [TEST MODE] Testing extraction on single URL")
			fmt.Printf("📍 URL: %s\n", target)
			fmt.Println(strings.Repeat("─", 40))

			page, err := requester.Fetch(c.Context, target, cfg.Fetch.Timeout())
			if err != nil {
				return fmt.Errorf("fetch failed: %w", err)
			}

			info, err := chain.Resolve(target, page.Body)
			if err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}

			fmt.Printf("\n✅ Extraction successful!\n")
			fmt.Printf("📝 Name: %s\n", info.Name)
			fmt.Printf("💰 Price: %s\n", formatter.FormatMoney(info.Price, info.Currency))
			if info.Availability != "" {
				fmt.Printf("📦 Availability: %s\n", info.Availability)
			}
			if r := retailer.FromURL(target); r != "" {
				fmt.Printf("🏬 Retailer: %s\n", r)
			}
			fmt.Printf("🔍 Strategy: %s\n", info.StrategyUsed)
			fmt.Printf("⏱️  Fetched in %s (%d bytes)\n", page.Latency.Round(time.Millisecond), len(page.Body))
			fmt.Println()
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect or create configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "validate",
				Usage: "Load the configuration, apply environment overrides and validate it",
				Action: func(c *cli.Context) error {
					cfg, err := loadConfig(c)
					if err != nil {
						return err
					}
					printConfigSummary(cfg)
					return nil
				},
			},
			{
				Name:      "init",
				Usage:     "Write the default configuration to a file",
				ArgsUsage: "<path>",
				Action: func(c *cli.Context) error {
					if c.NArg() != 1 {
						return cli.Exit("exactly one path is required", 2)
					}
					path := c.Args().First()
					if _, err := os.Stat(path); err == nil {
						return cli.Exit(fmt.Sprintf("%s already exists", path), 1)
					}
					if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
						return err
					}
					fmt.Printf("✅ Wrote default configuration to %s\n", path)
					return nil
				},
			},
		},
	}
}

func printSummary(s *refresh.BatchSummary) {
	fmt.Println()
	fmt.Println(strings.Repeat("═", 60))
	fmt.Printf("📊 %s batch %s\n", s.Kind, s.RunID)
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("  • Selected:    %d\n", s.Selected)
	fmt.Printf("  • Succeeded:   %d\n", s.Succeeded)
	fmt.Printf("  • Soft failed: %d\n", s.SoftFailed)
	fmt.Printf("  • Hard failed: %d\n", s.HardFailed)
	fmt.Printf("  • Cancelled:   %d\n", s.Cancelled)
	if s.Skipped > 0 {
		fmt.Printf("  • Skipped:     %d\n", s.Skipped)
	}
	fmt.Printf("  • Alerts sent: %d\n", s.Emitted)
	fmt.Printf("  • Took:        %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))

	for _, o := range s.Outcomes {
		switch o.Status {
		case refresh.StatusSoftFailed, refresh.StatusHardFailed:
			fmt.Printf("  ✗ %s: %s (%s)\n", o.ProductID, o.Status, o.Reason)
		}
	}
	for _, d := range s.Decisions {
		if d.Triggered {
			fmt.Printf("  🔻 %s: %s → %s (%s off)\n", d.ProductID,
				formatter.FormatMoney(d.BaselinePrice, d.Currency),
				formatter.FormatMoney(d.CurrentPrice, d.Currency),
				formatter.FormatPercent(d.DropRatio))
		}
	}
	fmt.Println(strings.Repeat("═", 60))
	fmt.Println()
}

func printConfigSummary(cfg *config.Config) {
	fmt.Println("\n🔍 Configuration Summary")
	fmt.Println(strings.Repeat("─", 40))

	fmt.Println("\n📋 Fetching:")
	fmt.Printf("  • Timeout: %s\n", cfg.Fetch.Timeout())
	fmt.Printf("  • Delay between requests: %dms\n", cfg.Fetch.DelayMS)
	fmt.Printf("  • Respect robots.txt: %v\n", cfg.Fetch.RespectRobotsTxt)

	fmt.Println("\n🔄 Refresh:")
	fmt.Printf("  • Stale after: %s\n", cfg.Refresh.StaleAfter())
	fmt.Printf("  • Concurrency: %d\n", cfg.Refresh.Concurrency)
	fmt.Printf("  • Max retries: %d\n", cfg.Refresh.MaxRetries)

	fmt.Println("\n🔔 Alerts:")
	fmt.Printf("  • Threshold: %.0f%%\n", cfg.Alerts.Threshold*100)
	fmt.Printf("  • Window: %d days\n", cfg.Alerts.WindowDays)
	fmt.Printf("  • Min samples: %d\n", cfg.Alerts.MinSamples)

	fmt.Println("\n🔬 Extraction:")
	if cfg.Extraction.DisableStructured {
		fmt.Println("  • Structured data: disabled")
	} else if len(cfg.Extraction.StructuredHosts) > 0 {
		fmt.Printf("  • Structured data hosts: %v\n", cfg.Extraction.StructuredHosts)
	} else {
		fmt.Println("  • Structured data: all hosts")
	}
	if len(cfg.Extraction.PriceSelectors) > 0 {
		fmt.Printf("  • Extra price selectors: %v\n", cfg.Extraction.PriceSelectors)
	}

	fmt.Println("\n💾 Storage / 📤 Notify:")
	fmt.Printf("  • Storage driver: %s\n", cfg.Storage.Driver)
	fmt.Printf("  • Notify driver: %s\n", cfg.Notify.Driver)

	fmt.Println("\n✅ Configuration is valid!")
	fmt.Println()
}
