package main

import "time"

const (
	defaultBindHost            = "127.0.0.1"
	defaultAPIPort             = 3000
	defaultQueryTimeout        = 30 * time.Second
	defaultInsertBatchSize     = 2000
	defaultInsertFlushInterval = 100 * time.Millisecond
	defaultInsertFlushQueue    = 64
	defaultRowRetention        = 30 // days, 0 = disabled
	defaultWorkers             = 1  // sequential transform
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	DBPath              string        `mapstructure:"db-path"`
	APIEnabled          bool          `mapstructure:"api-enabled"`
	APIPort             int           `mapstructure:"api-port"`
	APIAddr             string        `mapstructure:"api-addr"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size"`
	RowRetention        int           `mapstructure:"row-retention"`
	Workers             int           `mapstructure:"workers"`
	ConfigPath          string        `mapstructure:"-"` // not from config file
}

// defaultConfigYAML mirrors appConfig with the viper key names, for
// -write-default-config output.
type defaultConfigYAML struct {
	DBPath              string `yaml:"db-path"`
	APIEnabled          bool   `yaml:"api-enabled"`
	APIPort             int    `yaml:"api-port"`
	QueryTimeout        string `yaml:"query-timeout"`
	InsertBatchSize     int    `yaml:"insert-batch-size"`
	InsertFlushInterval string `yaml:"insert-flush-interval"`
	InsertFlushQueue    int    `yaml:"insert-flush-queue-size"`
	RowRetention        int    `yaml:"row-retention"`
	Workers             int    `yaml:"workers"`
}
