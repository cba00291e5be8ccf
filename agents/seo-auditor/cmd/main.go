package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"

	seoauditor "seo-agent/agents/seo-auditor"
	"seo-agent/shared/config"
	"seo-agent/shared/dashboard"
	"seo-agent/shared/scheduler"
	"seo-agent/shared/storage"
	"seo-agent/shared/update"
)

func main() {
	parser := flags.NewParser(nil, flags.Default)
	parser.AddCommand("audit", "Inspect the channel",
		"Inspect every channel upload, evaluate its metadata and persist an audit run.", &auditCommand{})
	parser.AddCommand("optimize", "Optimize top-traffic videos",
		"Send the top-traffic offenders of an audit run through the LLM optimizer.", &optimizeCommand{})
	parser.AddCommand("update", "Apply planned metadata updates",
		"Plan and apply metadata updates for every item of an audit run.", &updateCommand{})
	parser.AddCommand("report", "Print a report for an audit run",
		"Render a summary of one audit run from the local database.", &reportCommand{})
	parser.AddCommand("serve", "Start the dashboard server",
		"Serve the HTTP dashboard and JSON API over the local database.", &serveCommand{})
	parser.AddCommand("schedule", "Run on the configured cron schedule",
		"Start the scheduler and health check server; runs the full pipeline on the configured schedule.", &scheduleCommand{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func mustConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func mustAgent(cfg *config.Config) *seoauditor.SEOAgent {
	agent := seoauditor.NewSEOAgent(cfg)
	if err := agent.Initialize(); err != nil {
		log.Fatalf("Failed to initialize agent: %v", err)
	}
	return agent
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
	fmt.Println(string(data))
}

// resolveRunID defaults to the latest audit run when no id was given.
func resolveRunID(store *storage.Store, runID int64) int64 {
	if runID > 0 {
		return runID
	}
	run, err := store.LatestAuditRun()
	if err != nil {
		log.Fatalf("Failed to load latest audit run: %v", err)
	}
	if run == nil {
		log.Fatalf("No audit runs found; run 'audit' first")
	}
	return run.ID
}

type auditCommand struct {
	Optimize bool `long:"optimize" description:"Also run the LLM optimization pass over the top-traffic offenders"`
	Update   bool `long:"update" description:"Also apply the planned metadata updates"`
	Top      int  `long:"top" description:"How many top-traffic videos to optimize (default from config)"`
}

func (c *auditCommand) Execute(_ []string) error {
	cfg := mustConfig()
	ctx, cancel := signalContext()
	defer cancel()

	agent := mustAgent(cfg)
	defer agent.Close()

	run, _, err := agent.RunAudit(ctx)
	if err != nil {
		log.Fatalf("Audit failed: %v", err)
	}

	if c.Optimize {
		if _, err := agent.RunOptimization(ctx, run.ID, c.Top); err != nil {
			log.Fatalf("Optimization failed: %v", err)
		}
	}

	if c.Update {
		mode, ok := update.ParseMode(cfg.Update.Mode)
		if !ok {
			log.Fatalf("Invalid update mode in config: %q", cfg.Update.Mode)
		}
		result, err := agent.ApplyAuditUpdates(ctx, run.ID, mode, cfg.ProtectMain())
		if err != nil {
			log.Fatalf("Update failed: %v", err)
		}
		printJSON(result)
		return nil
	}

	printJSON(run)
	return nil
}

type optimizeCommand struct {
	Run int64 `long:"run" description:"Audit run id (defaults to the latest run)"`
	Top int   `long:"top" description:"How many top-traffic videos to optimize (default from config)"`
}

func (c *optimizeCommand) Execute(_ []string) error {
	cfg := mustConfig()
	ctx, cancel := signalContext()
	defer cancel()

	agent := mustAgent(cfg)
	defer agent.Close()

	runID := resolveRunID(agent.Store(), c.Run)
	optRun, err := agent.RunOptimization(ctx, runID, c.Top)
	if err != nil {
		log.Fatalf("Optimization failed: %v", err)
	}

	printJSON(optRun)
	return nil
}

type updateCommand struct {
	Run           int64  `long:"run" description:"Audit run id (defaults to the latest run)"`
	Mode          string `long:"mode" description:"Update mode: target_only or target_and_heuristic (default from config)"`
	NoProtectMain bool   `long:"no-protect-main" description:"Allow heuristic title/description rewrites on non-Shorts videos"`
}

func (c *updateCommand) Execute(_ []string) error {
	cfg := mustConfig()
	ctx, cancel := signalContext()
	defer cancel()

	modeStr := c.Mode
	if modeStr == "" {
		modeStr = cfg.Update.Mode
	}
	mode, ok := update.ParseMode(modeStr)
	if !ok {
		log.Fatalf("Invalid update mode %q (want target_only or target_and_heuristic)", modeStr)
	}

	protect := cfg.ProtectMain()
	if c.NoProtectMain {
		protect = false
	}

	agent := mustAgent(cfg)
	defer agent.Close()

	runID := resolveRunID(agent.Store(), c.Run)
	result, err := agent.ApplyAuditUpdates(ctx, runID, mode, protect)
	if err != nil {
		log.Fatalf("Update failed: %v", err)
	}

	printJSON(result)
	return nil
}

type reportCommand struct {
	Run  int64 `long:"run" description:"Audit run id (defaults to the latest run)"`
	JSON bool  `long:"json" description:"Print the run and its items as JSON"`
}

func (c *reportCommand) Execute(_ []string) error {
	cfg := mustConfig()

	store, err := storage.Open(cfg.Storage.DatabaseFile)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	runID := resolveRunID(store, c.Run)

	if c.JSON {
		run, err := store.GetAuditRun(runID)
		if err != nil {
			log.Fatalf("Failed to load audit run %d: %v", runID, err)
		}
		items, err := store.ListAuditItems(runID)
		if err != nil {
			log.Fatalf("Failed to list audit items: %v", err)
		}
		printJSON(map[string]any{"run": run, "items": items})
		return nil
	}

	agent := seoauditor.NewSEOAgentWithStore(cfg, store)
	report, err := agent.BuildReport(runID)
	if err != nil {
		log.Fatalf("Failed to build report: %v", err)
	}
	fmt.Print(report)
	return nil
}

type serveCommand struct {
	Port string `long:"port" description:"Dashboard listen port (default from config)"`
}

func (c *serveCommand) Execute(_ []string) error {
	cfg := mustConfig()
	ctx, cancel := signalContext()
	defer cancel()

	agent := mustAgent(cfg)
	defer agent.Close()

	port := c.Port
	if port == "" {
		port = cfg.Dashboard.Port
	}

	server := dashboard.NewServer(agent.Store(), agent, port)
	log.Printf("Dashboard listening on :%s", port)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("Dashboard server failed: %v", err)
	}
	return nil
}

type scheduleCommand struct {
	Once bool `long:"once" description:"Run the full pipeline once and exit"`
}

func (c *scheduleCommand) Execute(_ []string) error {
	cfg := mustConfig()
	ctx, cancel := signalContext()
	defer cancel()

	agent := seoauditor.NewSEOAgent(cfg)
	s := scheduler.New(cfg, agent)

	if c.Once {
		if err := agent.Initialize(); err != nil {
			log.Fatalf("Failed to initialize agent: %v", err)
		}
		defer agent.Close()
		if err := s.RunOnce(ctx); err != nil {
			log.Fatalf("Failed to run: %v", err)
		}
		return nil
	}

	if err := s.Start(ctx); err != nil && err != context.Canceled {
		log.Fatalf("Scheduler failed: %v", err)
	}
	return nil
}
