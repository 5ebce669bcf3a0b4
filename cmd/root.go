package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issuetracker/internal/logger"
	"github.com/joescharf/issuetracker/internal/output"
	"github.com/joescharf/issuetracker/internal/service"
	"github.com/joescharf/issuetracker/internal/store"
)

// Set by Execute from the build ldflags.
var (
	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "issuetracker",
	Short: "Issue tracker - per-project issues over a JSON API",
	Long: `issuetracker keeps issues grouped by project name.
It serves a JSON API for listing, creating, updating and deleting issues,
exposes the same operations as MCP tools, and offers them on the command line.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	defer closeStore()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		closeStore()
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "issuetracker %s (commit %s, built %s)\n", buildVersion, buildCommit, buildDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/issuetracker/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	// .env in the working directory is optional.
	_ = godotenv.Load()

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ISSUETRACKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	defaultConfigDir, _ := configDirFunc()
	setDefaults(defaultConfigDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "issuetracker.db"))
	viper.SetDefault("store.driver", store.DriverSQLite)
	viper.SetDefault("arangodb.url", "http://localhost:8529")
	viper.SetDefault("arangodb.username", "root")
	viper.SetDefault("arangodb.password", "")
	viper.SetDefault("arangodb.database", "issuetracker")
	viper.SetDefault("arangodb.collection", "issues")
	viper.SetDefault("port", 3000)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	// Logs go to stderr so that stdout stays clean for tables and MCP.
	logger.Setup(logger.Options{
		Level:  level,
		Format: viper.GetString("log.format"),
		Out:    os.Stderr,
	})

	// The store is opened lazily, only by commands that need it.
}

// storeConfig builds the store configuration from viper.
func storeConfig() store.Config {
	return store.Config{
		Driver: viper.GetString("store.driver"),
		DBPath: viper.GetString("db_path"),
		Arango: store.ArangoConfig{
			URL:        viper.GetString("arangodb.url"),
			Username:   viper.GetString("arangodb.username"),
			Password:   viper.GetString("arangodb.password"),
			Database:   viper.GetString("arangodb.database"),
			Collection: viper.GetString("arangodb.collection"),
		},
	}
}

// getStore returns the shared store, opening it on first call.
func getStore(ctx context.Context) (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	cfg := storeConfig()
	ui.VerboseLog("Opening %s store", cfg.Driver)
	s, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dataStore = s
	return dataStore, nil
}

// getService returns an IssueService over the shared store.
func getService(ctx context.Context) (*service.IssueService, error) {
	s, err := getStore(ctx)
	if err != nil {
		return nil, err
	}
	return service.NewIssueService(s), nil
}

func closeStore() {
	if dataStore != nil {
		_ = dataStore.Close()
		dataStore = nil
	}
}
