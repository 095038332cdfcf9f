package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/datakitchen/dkcli/internal/utils"
	"github.com/goccy/go-json"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".dk")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "dk.log")
	DefaultMergeDir    = filepath.Join(DefaultConfigDir, "merges")
	DefaultDiffDir     = filepath.Join(DefaultConfigDir, "diffs")
	DefaultServerURL   = "https://cloud.datakitchen.io"
	DefaultMergeTool   = "opendiff {{left}} {{right}} -ancestor {{base}} -merge {{merge}}"
	DefaultDiffTool    = "opendiff {{local}} {{remote}}"
)

var (
	ErrNoServerURL      = errors.New("config: server url missing")
	ErrInvalidServerURL = errors.New("config: server url must be http or https")
	ErrNoMergeTool      = errors.New("config: merge tool missing")
	ErrNoDiffTool       = errors.New("config: diff tool missing")
)

type Config struct {
	ServerURL string `json:"server_url"`
	Token     string `json:"token,omitempty"`
	MergeTool string `json:"merge_tool"`
	DiffTool  string `json:"diff_tool"`
	MergeDir  string `json:"merge_dir"`
	DiffDir   string `json:"diff_dir"`
	// CheckWorkingPath makes kitchen-merge-preview verify local recipes are clean first
	CheckWorkingPath bool   `json:"check_working_path"`
	Path             string `json:"-"`
}

func Default() *Config {
	return &Config{
		ServerURL:        DefaultServerURL,
		MergeTool:        DefaultMergeTool,
		DiffTool:         DefaultDiffTool,
		MergeDir:         DefaultMergeDir,
		DiffDir:          DefaultDiffDir,
		CheckWorkingPath: true,
		Path:             DefaultConfigPath,
	}
}

// Validate fills defaults for empty dirs and normalizes paths.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return ErrNoServerURL
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidServerURL, c.ServerURL)
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")

	if strings.TrimSpace(c.MergeTool) == "" {
		return ErrNoMergeTool
	}
	if strings.TrimSpace(c.DiffTool) == "" {
		return ErrNoDiffTool
	}

	if c.MergeDir == "" {
		c.MergeDir = DefaultMergeDir
	}
	if c.DiffDir == "" {
		c.DiffDir = DefaultDiffDir
	}

	for _, p := range []*string{&c.MergeDir, &c.DiffDir} {
		resolved, err := utils.ResolvePath(*p)
		if err != nil {
			return fmt.Errorf("config: resolve %q: %w", *p, err)
		}
		*p = resolved
	}

	if c.Path != "" {
		resolved, err := utils.ResolvePath(c.Path)
		if err != nil {
			return fmt.Errorf("config: resolve %q: %w", c.Path, err)
		}
		c.Path = resolved
	}

	return nil
}

func (c *Config) Save() error {
	if c.Path == "" {
		c.Path = DefaultConfigPath
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	// the token is a credential
	return utils.WriteFileAtomic(c.Path, data, 0o600)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Path = path

	return cfg, nil
}
