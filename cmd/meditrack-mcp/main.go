// Command meditrack-mcp serves the medication tracker over the Model Context
// Protocol on stdio.
//
// Usage:
//
//	./meditrack-mcp                  # Start MCP server (stdio)
//	./meditrack-mcp --config x.yaml  # Use a specific config file
//
// Add to an MCP client configuration:
//
//	{
//	  "mcpServers": {
//	    "meditrack": {
//	      "command": "/path/to/meditrack-mcp",
//	      "args": []
//	    }
//	  }
//	}
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/gmsas95/meditrack/internal/app"
	"github.com/gmsas95/meditrack/internal/config"
	"github.com/gmsas95/meditrack/internal/mcp"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the protocol.
	cfg.Log.Dev = false

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	application, err := app.New(context.Background(), cfg, logger, version)
	if err != nil {
		logger.Fatal("Failed to initialize tracker", zap.Error(err))
	}
	defer application.Close()

	s := mcp.NewServer(application.Tracker, version, logger)
	if err := s.ServeStdio(); err != nil {
		logger.Error("Server error", zap.Error(err))
		application.Close()
		os.Exit(1)
	}
}
