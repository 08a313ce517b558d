package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tracekit/blockscope/internal/duckdb"
	"github.com/tracekit/blockscope/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var dbPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/blockscope/config.yml)")
	flag.StringVar(&dbPath, "db", "", "override path to the analysis database")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("Blockscope TUI - Analysis Dashboard\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadCLIConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	if err := runTUI(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runTUI(cfg cliConfig) error {
	if _, err := os.Stat(cfg.DBPath); err != nil {
		return fmt.Errorf("no analysis database at %s: %w\nRun blockscope on a snapshot first", cfg.DBPath, err)
	}

	store, err := duckdb.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("cannot open analysis database at %s: %w", cfg.DBPath, err)
	}
	defer store.Close()

	dashboard := tui.NewDashboard(store, cfg.UpdateInterval)

	p := tea.NewProgram(dashboard, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		if strings.Contains(err.Error(), "TTY") || strings.Contains(err.Error(), "/dev/tty") {
			return fmt.Errorf("TUI requires a real terminal")
		}
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
