package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/datakitchen/dkcli/internal/client/config"
	"github.com/datakitchen/dkcli/internal/dksdk"
	"github.com/datakitchen/dkcli/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "DK"

// configKeys are the settings read from the config file and DK_* variables.
var configKeys = []string{
	"server_url",
	"token",
	"merge_tool",
	"diff_tool",
	"merge_dir",
	"diff_dir",
	"check_working_path",
}

// resolveConfigPath picks the config file, honoring (in order):
// 1) An explicitly set --config flag
// 2) DK_CONFIG_PATH
// 3) An existing config in ~/.config/dk
// 4) The default path
func resolveConfigPath(cmd *cobra.Command) string {
	if cfgFlag := cmd.Flag("config"); cfgFlag != nil && cfgFlag.Changed {
		return cfgFlag.Value.String()
	}

	if envPath := os.Getenv(envPrefix + "_CONFIG_PATH"); envPath != "" {
		return envPath
	}

	alt := filepath.Join(home, ".config", "dk", "config.json")
	if !utils.FileExists(config.DefaultConfigPath) && utils.FileExists(alt) {
		return alt
	}
	return config.DefaultConfigPath
}

// loadConfig merges defaults, the config file, a .env file in the working
// directory and DK_* variables, in increasing priority.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	// a missing .env is the normal case
	_ = godotenv.Load()

	v := viper.New()
	defaults := config.Default()
	v.SetDefault("server_url", defaults.ServerURL)
	v.SetDefault("merge_tool", defaults.MergeTool)
	v.SetDefault("diff_tool", defaults.DiffTool)
	v.SetDefault("merge_dir", defaults.MergeDir)
	v.SetDefault("diff_dir", defaults.DiffDir)
	v.SetDefault("check_working_path", defaults.CheckWorkingPath)

	path := resolveConfigPath(cmd)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config read '%s': %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	for _, key := range configKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := &config.Config{
		Path:             path,
		ServerURL:        v.GetString("server_url"),
		Token:            v.GetString("token"),
		MergeTool:        v.GetString("merge_tool"),
		DiffTool:         v.GetString("diff_tool"),
		MergeDir:         v.GetString("merge_dir"),
		DiffDir:          v.GetString("diff_dir"),
		CheckWorkingPath: v.GetBool("check_working_path"),
	}
	return cfg, nil
}

// readValidConfig loads and validates the config. requireToken fails early
// for commands that talk to the server.
func readValidConfig(cmd *cobra.Command, requireToken bool) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if requireToken && cfg.Token == "" {
		return nil, errors.WithHint(
			errors.New("no API token configured"),
			"run 'dk config-set --token <token>' or set DK_TOKEN",
		)
	}
	return cfg, nil
}

func newSDK(cmd *cobra.Command, cfg *config.Config) (*dksdk.DKSDK, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	return dksdk.New(&dksdk.Config{
		BaseURL: cfg.ServerURL,
		Token:   cfg.Token,
		Debug:   debug,
	})
}
