package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/gmsas95/meditrack/internal/app"
	"github.com/gmsas95/meditrack/internal/cli"
	"github.com/gmsas95/meditrack/internal/config"
	"github.com/gmsas95/meditrack/internal/onboarding"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	noColor    = flag.Bool("no-color", false, "Disable colored output")
	version    = "dev"
)

func main() {
	flag.Usage = func() { cli.PrintExtendedHelp(os.Stderr) }
	flag.Parse()
	args := flag.Args()
	cli.Version = version

	command := "today"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "help", "--help", "-h":
		cli.PrintExtendedHelp(os.Stdout)
		return
	case "version", "--version", "-v":
		fmt.Printf("MediTrack version %s\n", version)
		return
	case "init", "setup", "onboard":
		dir := config.ResolveDataDir(*dataDir)
		if !onboarding.CheckFirstRun(dir) {
			fmt.Printf("Configuration already exists in %s, it will be overwritten.\n", dir)
		}
		if err := onboarding.NewWizard(os.Stdin, os.Stdout, dir, nil).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
			os.Exit(1)
		}
		return
	case "status":
		cli.HandleStatusCommand(loadConfig(), os.Stdout)
		return
	case "doctor":
		if cli.HandleDoctorCommand(context.Background(), loadConfig(), os.Stdout) > 0 {
			os.Exit(1)
		}
		return
	case "serve", "server", "gateway":
		application := initApp(true)
		fmt.Printf("Starting MediTrack server on http://localhost:%d\n", application.Config.Server.Port)
		application.RunServer()
		return
	}

	if !cli.IsTrackerCommand(command) {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		cli.PrintExtendedHelp(os.Stderr)
		os.Exit(2)
	}
	if len(args) == 0 {
		args = []string{command}
	}

	application := initApp(false)
	defer application.Close()

	color := !*noColor && term.IsTerminal(int(os.Stdout.Fd()))
	commands := cli.NewCommands(application.Tracker, os.Stdout, color)
	commands.SetDefaults(application.Config.Tracker.AdherenceWindowDays, application.Config.Tracker.HistoryDays)

	if err := commands.Run(context.Background(), args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		application.Close()
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// initApp builds the application. One-shot commands only log warnings so
// their output stays readable.
func initApp(server bool) *app.App {
	cfg := loadConfig()
	if !server && !cfg.Log.Dev {
		cfg.Log.Level = "warn"
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if server {
		logger.Info("Starting MediTrack",
			zap.String("version", version),
			zap.String("storage", cfg.Storage.Backend),
		)
	}

	application, err := app.New(context.Background(), cfg, logger, version)
	if err != nil {
		logger.Fatal("Failed to initialize tracker", zap.Error(err))
	}
	return application
}
