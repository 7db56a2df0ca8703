package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/catchlight/catchlight/internal/github"
	"github.com/catchlight/catchlight/internal/judge"
	"github.com/catchlight/catchlight/internal/output"
	"github.com/catchlight/catchlight/internal/sheets"
	"github.com/catchlight/catchlight/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "catchlight",
	Short: "Curate showcase-worthy catches from AI code reviews",
	Long: `catchlight harvests code-review comments posted by an AI reviewer
across monitored repositories, correlates them with developer activity,
and uses an LLM judge to curate the catches worth showcasing -
publishing them to a tracking spreadsheet and keeping the published set
honest as pull requests evolve.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/catchlight/config.yaml)")
}

func initConfig() {
	// Local .env is a convenience for development credentials.
	_ = godotenv.Load()

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "catchlight")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CATCHLIGHT")
	viper.AutomaticEnv()

	// Credentials come from their conventional environment variables.
	_ = viper.BindEnv("github.token", "GITHUB_TOKEN")
	_ = viper.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = viper.BindEnv("db.url", "CATCHLIGHT_DB_URL")
	_ = viper.BindEnv("sheets.credentials_file", "GOOGLE_CREDENTIALS_FILE")
	_ = viper.BindEnv("sheets.spreadsheet_id", "GOOGLE_SPREADSHEET_ID")

	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "catchlight")

	viper.SetDefault("state_dir", "state")
	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "catchlight.db"))
	viper.SetDefault("repos_csv", "oss_master.csv")
	viper.SetDefault("bot.logins", []string{"greptile", "greptile-apps", "greptile-apps[bot]", "greptileai"})
	viper.SetDefault("anthropic.model", "claude-opus-4-5-20251101")
	viper.SetDefault("anthropic.summary_model", "claude-sonnet-4-20250514")
	viper.SetDefault("sheets.credentials_file", "credentials.json")
	viper.SetDefault("sheets.worksheet", "Quality Catches")

	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	s, err := store.NewSQLiteStore(viper.GetString("db_path"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getGitHub builds the API client; credentials must be present.
func getGitHub() (*github.Client, error) {
	return github.NewClient(viper.GetString("github.token"), viper.GetStringSlice("bot.logins"))
}

// getJudge builds the judgment engine; credentials must be present.
func getJudge() (*judge.Engine, error) {
	return judge.NewEngine(
		viper.GetString("anthropic.api_key"),
		viper.GetString("anthropic.model"),
		viper.GetString("anthropic.summary_model"),
	)
}

// getSheets builds the spreadsheet sink, or returns nil when no
// spreadsheet is configured.
func getSheets(cmd *cobra.Command) (*sheets.Client, error) {
	id := viper.GetString("sheets.spreadsheet_id")
	if id == "" {
		return nil, fmt.Errorf("sheets.spreadsheet_id (GOOGLE_SPREADSHEET_ID) required to sync")
	}
	return sheets.NewClient(
		cmd.Context(),
		viper.GetString("sheets.credentials_file"),
		id,
		viper.GetString("sheets.worksheet"),
	)
}

func statePath(file string) string {
	return filepath.Join(viper.GetString("state_dir"), file)
}
