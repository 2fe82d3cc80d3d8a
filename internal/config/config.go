package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Paths struct {
		SharedDir string `yaml:"shared_dir"`
		WatchDir  string `yaml:"watch_dir"`
		StateDir  string `yaml:"state_dir"`
		TempDir   string `yaml:"temp_dir"`
	} `yaml:"paths"`

	Whisper struct {
		Model    string `yaml:"model"`
		Command  string `yaml:"command"`
		Language string `yaml:"language"`
		Threads  int    `yaml:"threads"`
	} `yaml:"whisper"`

	Queue struct {
		DeleteSourceAudio   bool `yaml:"delete_source_audio"`
		DownloadWaitSeconds int  `yaml:"download_wait_seconds"`
	} `yaml:"queue"`

	Watcher struct {
		PollIntervalSeconds    int `yaml:"poll_interval_seconds"`
		DebounceSeconds        int `yaml:"debounce_seconds"`
		StabilityWindowSeconds int `yaml:"stability_window_seconds"`
	} `yaml:"watcher"`

	Reconciler struct {
		IntervalSeconds       int `yaml:"interval_seconds"`
		StuckThresholdSeconds int `yaml:"stuck_threshold_seconds"`
	} `yaml:"reconciler"`

	Heartbeat struct {
		IntervalSeconds   int    `yaml:"interval_seconds"`
		StaleAfterSeconds int    `yaml:"stale_after_seconds"`
		DeviceName        string `yaml:"device_name"`
	} `yaml:"heartbeat"`

	Index struct {
		Database string `yaml:"database"`
	} `yaml:"index"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`
}

// Load reads configuration from a YAML file and fills in defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied, used when no
// config file exists yet.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8585
	}

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	if c.Paths.StateDir == "" {
		c.Paths.StateDir = filepath.Join(home, ".voicebridge")
	}
	if c.Paths.TempDir == "" {
		c.Paths.TempDir = filepath.Join(c.Paths.StateDir, "temp")
	}

	if c.Whisper.Model == "" {
		c.Whisper.Model = "small"
	}
	if c.Whisper.Command == "" {
		c.Whisper.Command = "python"
	}
	if c.Whisper.Language == "" {
		c.Whisper.Language = "auto"
	}
	if c.Whisper.Threads == 0 {
		c.Whisper.Threads = 4
	}

	if c.Queue.DownloadWaitSeconds == 0 {
		c.Queue.DownloadWaitSeconds = 90
	}

	if c.Watcher.PollIntervalSeconds == 0 {
		c.Watcher.PollIntervalSeconds = 30
	}
	if c.Watcher.DebounceSeconds == 0 {
		c.Watcher.DebounceSeconds = 2
	}
	if c.Watcher.StabilityWindowSeconds == 0 {
		c.Watcher.StabilityWindowSeconds = 2
	}

	if c.Reconciler.IntervalSeconds == 0 {
		c.Reconciler.IntervalSeconds = 10
	}
	if c.Reconciler.StuckThresholdSeconds == 0 {
		c.Reconciler.StuckThresholdSeconds = 600
	}

	if c.Heartbeat.IntervalSeconds == 0 {
		c.Heartbeat.IntervalSeconds = 60
	}
	if c.Heartbeat.StaleAfterSeconds == 0 {
		c.Heartbeat.StaleAfterSeconds = 120
	}
	if c.Heartbeat.DeviceName == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "desktop"
		}
		c.Heartbeat.DeviceName = host
	}

	if c.Index.Database == "" {
		c.Index.Database = filepath.Join(c.Paths.StateDir, "transcripts.db")
	}

	if c.Limits.MaxFileSizeMB == 0 {
		c.Limits.MaxFileSizeMB = 500
	}
}

func (c *Config) validate() error {
	if c.Paths.SharedDir == "" {
		return fmt.Errorf("config: paths.shared_dir is required")
	}
	if c.Paths.WatchDir == "" {
		return fmt.Errorf("config: paths.watch_dir is required")
	}
	return nil
}
