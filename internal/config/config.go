package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	EnvWorkdir    = "AGENTIC_EDIT_WORKDIR"
	EnvRAGBaseURL = "AGENTIC_EDIT_RAG_BASE_URL"
	EnvRAGAPIKey  = "AGENTIC_EDIT_RAG_API_KEY"
)

// Config is the persisted config file schema.
type Config struct {
	Workdir        string      `toml:"workdir,omitempty"`
	SandboxMode    string      `toml:"sandbox_mode"`
	ApprovalPolicy string      `toml:"approval_policy"`
	PolicyFile     string      `toml:"policy_file,omitempty"`
	LogLevel       string      `toml:"log_level,omitempty"`
	LogPath        string      `toml:"log_path,omitempty"`
	ToolsLogPath   string      `toml:"tools_log_path,omitempty"`
	Limits         Limits      `toml:"limits"`
	Audit          Audit       `toml:"audit"`
	RAG            RAG         `toml:"rag"`
	MCPServers     []MCPServer `toml:"mcp_servers,omitempty"`
	Source         string      `toml:"-"`
}

type Limits struct {
	CommandTimeoutSeconds int   `toml:"command_timeout_seconds"`
	MaxOutputBytes        int   `toml:"max_output_bytes"`
	MaxResults            int   `toml:"max_results"`
	MaxReadBytes          int64 `toml:"max_read_bytes"`
	MaxConcurrentCommands int   `toml:"max_concurrent_commands"`
	MaxConcurrentCalls    int   `toml:"max_concurrent_calls"`
}

type Audit struct {
	// Path of the JSON-lines audit file; empty keeps audit events in the log only.
	Path string `toml:"path,omitempty"`
}

type RAG struct {
	BaseURL         string      `toml:"base_url,omitempty"`
	APIKey          string      `toml:"api_key,omitempty"`
	Model           string      `toml:"model,omitempty"`
	TimeoutSeconds  int         `toml:"timeout_seconds"`
	CacheTTLSeconds int         `toml:"cache_ttl_seconds"`
	Servers         []RAGServer `toml:"servers,omitempty"`
}

type RAGServer struct {
	Name    string `toml:"name"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key,omitempty"`
	Model   string `toml:"model,omitempty"`
}

type MCPServer struct {
	Name      string            `toml:"name"`
	Transport string            `toml:"transport"`
	Command   string            `toml:"command,omitempty"`
	Args      []string          `toml:"args,omitempty"`
	Env       map[string]string `toml:"env,omitempty"`
	URL       string            `toml:"url,omitempty"`
	Headers   map[string]string `toml:"headers,omitempty"`
}

func Default() Config {
	return Config{
		SandboxMode:    "workspace-write",
		ApprovalPolicy: "never",
		Limits: Limits{
			CommandTimeoutSeconds: 120,
			MaxOutputBytes:        64 * 1024,
			MaxResults:            200,
			MaxReadBytes:          4 << 20,
			MaxConcurrentCommands: 4,
			MaxConcurrentCalls:    8,
		},
		RAG: RAG{
			Model:           "default",
			TimeoutSeconds:  60,
			CacheTTLSeconds: 300,
		},
	}
}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".agentic-edit", "config.toml")
}

// Load reads the config file at path (DefaultPath when empty). A missing file is not
// an error: defaults plus environment overrides are returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	if path == "" {
		return cfg, errors.New("config path is empty and $HOME is not set")
	}
	cfg.Source = path

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	cfg.fillZeroLimits()
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if env := strings.TrimSpace(os.Getenv(EnvWorkdir)); env != "" {
		cfg.Workdir = env
	}
	if env := strings.TrimSpace(os.Getenv(EnvRAGBaseURL)); env != "" {
		cfg.RAG.BaseURL = env
	}
	if env := strings.TrimSpace(os.Getenv(EnvRAGAPIKey)); env != "" {
		cfg.RAG.APIKey = env
	}
}

func (c *Config) fillZeroLimits() {
	def := Default().Limits
	if c.Limits.CommandTimeoutSeconds <= 0 {
		c.Limits.CommandTimeoutSeconds = def.CommandTimeoutSeconds
	}
	if c.Limits.MaxOutputBytes <= 0 {
		c.Limits.MaxOutputBytes = def.MaxOutputBytes
	}
	if c.Limits.MaxResults <= 0 {
		c.Limits.MaxResults = def.MaxResults
	}
	if c.Limits.MaxReadBytes <= 0 {
		c.Limits.MaxReadBytes = def.MaxReadBytes
	}
	if c.Limits.MaxConcurrentCommands <= 0 {
		c.Limits.MaxConcurrentCommands = def.MaxConcurrentCommands
	}
	if c.Limits.MaxConcurrentCalls <= 0 {
		c.Limits.MaxConcurrentCalls = def.MaxConcurrentCalls
	}
}
