package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

// GetVersionInfo returns the current version and commit information.
func GetVersionInfo() (string, string) {
	return version, commit
}

func main() {
	var configPath string
	var showVersion bool
	var writeDefaultConfig bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/blockscope/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.BoolVar(&writeDefaultConfig, "write-default-config", false, "print the default configuration as YAML and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("Blockscope - Send-Blocking Trace Analysis\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	if writeDefaultConfig {
		if err := printDefaultConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing default config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := runAnalysis(cfg, flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printDefaultConfig() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("finding home directory: %w", err)
	}

	out, err := yaml.Marshal(defaultConfigYAML{
		DBPath:              filepath.Join(home, ".local", "share", "blockscope", "blockscope.duckdb"),
		APIEnabled:          false,
		APIPort:             defaultAPIPort,
		QueryTimeout:        defaultQueryTimeout.String(),
		InsertBatchSize:     defaultInsertBatchSize,
		InsertFlushInterval: defaultInsertFlushInterval.String(),
		InsertFlushQueue:    defaultInsertFlushQueue,
		RowRetention:        defaultRowRetention,
		Workers:             defaultWorkers,
	})
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	defaultDBPath := filepath.Join(home, ".local", "share", "blockscope", "blockscope.duckdb")

	v := viper.New()
	v.SetEnvPrefix("BLOCKSCOPE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("db-path", defaultDBPath)
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("insert-batch-size", defaultInsertBatchSize)
	v.SetDefault("insert-flush-interval", defaultInsertFlushInterval)
	v.SetDefault("insert-flush-queue-size", defaultInsertFlushQueue)
	v.SetDefault("row-retention", defaultRowRetention)
	v.SetDefault("workers", defaultWorkers)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		defaultConfigPath := filepath.Join(home, ".config", "blockscope", "config.yml")
		v.SetConfigFile(defaultConfigPath)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	// Expand ~ in db-path
	if strings.HasPrefix(cfg.DBPath, "~/") {
		cfg.DBPath = filepath.Join(home, cfg.DBPath[2:])
	}

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}
