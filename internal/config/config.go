package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PathsConfig holds the endpoint paths relative to the server base URL.
type PathsConfig struct {
	Upload    string `yaml:"upload"`
	Search    string `yaml:"search"`
	Download  string `yaml:"download"`
	Summarize string `yaml:"summarize"`
}

// ServerConfig describes the remote document service.
type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	// TimeoutSecs of 0 disables the client timeout.
	TimeoutSecs int         `yaml:"timeout_secs"`
	Paths       PathsConfig `yaml:"paths"`
}

// UploadConfig configures the upload orchestrator and its server markers.
type UploadConfig struct {
	SuccessMarker   string `yaml:"success_marker"`
	DuplicateMarker string `yaml:"duplicate_marker"`
	CompleteDelayMS int    `yaml:"complete_delay_ms"`
	ClearDelayMS    int    `yaml:"clear_delay_ms"`
}

// SearchConfig configures searching.
type SearchConfig struct {
	TopK int `yaml:"top_k"`
}

// DownloadConfig configures where downloaded documents are written.
type DownloadConfig struct {
	Dir string `yaml:"dir"`
}

// SummarizerConfig selects and configures the summarize backend.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
	Keywords     int    `yaml:"keywords"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Upload     UploadConfig     `yaml:"upload"`
	Search     SearchConfig     `yaml:"search"`
	Download   DownloadConfig   `yaml:"download"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Log        LogConfig        `yaml:"log"`
}

const (
	SummarizerRemote = "remote"
	SummarizerLocal  = "local"
)

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := defaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./docfinder.yaml first, then ~/.config/docfinder/config.yaml.
// If neither exists, it writes defaults to ~/.config/docfinder/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "docfinder.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides selected settings from the environment.
func ApplyEnv(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv("DOCFINDER_BASE_URL")); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("DOCFINDER_DOWNLOAD_DIR")); v != "" {
		cfg.Download.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv("DOCFINDER_SUMMARIZER")); v != "" {
		cfg.Summarizer.Type = strings.ToLower(v)
	}
}

// Validate reports the first invalid setting.
func (c *AppConfig) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid server.base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server.base_url %q: must be an absolute http(s) URL", c.Server.BaseURL)
	}
	if c.Server.TimeoutSecs < 0 {
		return fmt.Errorf("invalid server.timeout_secs: %d", c.Server.TimeoutSecs)
	}
	if c.Search.TopK < 1 {
		return fmt.Errorf("invalid search.top_k: %d (must be >= 1)", c.Search.TopK)
	}
	if c.Upload.CompleteDelayMS < 0 || c.Upload.ClearDelayMS < 0 {
		return errors.New("invalid upload delays: must be >= 0")
	}
	switch c.Summarizer.Type {
	case SummarizerRemote, SummarizerLocal:
	default:
		return fmt.Errorf("unknown summarizer: %s", c.Summarizer.Type)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docfinder", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			BaseURL: "http://127.0.0.1:8000",
			Paths:   defaultPaths(),
		},
		Upload: UploadConfig{
			SuccessMarker:   "Azure Storage 업로드 성공",
			DuplicateMarker: "이미 존재",
			CompleteDelayMS: 400,
			ClearDelayMS:    1200,
		},
		Search:     SearchConfig{TopK: 5},
		Download:   DownloadConfig{Dir: "downloads"},
		Summarizer: SummarizerConfig{Type: SummarizerRemote, MaxSentences: 3, Keywords: 5},
		Log:        LogConfig{Level: "info", File: filepath.Join(os.TempDir(), "docfinder.log")},
	}
}

func defaultPaths() PathsConfig {
	return PathsConfig{
		Upload:    "/upload",
		Search:    "/search",
		Download:  "/download",
		Summarize: "/summarize",
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	cfg.Server.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Server.BaseURL), "/")
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = def.Server.BaseURL
	}
	p := &cfg.Server.Paths
	if p.Upload == "" {
		p.Upload = def.Server.Paths.Upload
	}
	if p.Search == "" {
		p.Search = def.Server.Paths.Search
	}
	if p.Download == "" {
		p.Download = def.Server.Paths.Download
	}
	if p.Summarize == "" {
		p.Summarize = def.Server.Paths.Summarize
	}
	if cfg.Upload.SuccessMarker == "" {
		cfg.Upload.SuccessMarker = def.Upload.SuccessMarker
	}
	if cfg.Upload.DuplicateMarker == "" {
		cfg.Upload.DuplicateMarker = def.Upload.DuplicateMarker
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = def.Search.TopK
	}
	if cfg.Download.Dir == "" {
		cfg.Download.Dir = def.Download.Dir
	}
	cfg.Summarizer.Type = strings.ToLower(strings.TrimSpace(cfg.Summarizer.Type))
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = SummarizerRemote
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = def.Summarizer.MaxSentences
	}
	if cfg.Summarizer.Keywords == 0 {
		cfg.Summarizer.Keywords = def.Summarizer.Keywords
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.File == "" {
		cfg.Log.File = def.Log.File
	}
}
