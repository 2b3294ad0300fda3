package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sorcerai/storm-mcp/internal/swarm"
)

type Config struct {
	Backends  BackendsConfig   `yaml:"backends"`
	Router    RouterConfig     `yaml:"router"`
	Swarm     SwarmConfig      `yaml:"swarm"`
	Pipeline  PipelineConfig   `yaml:"pipeline"`
	Store     StoreConfig      `yaml:"store"`
	NATS      NATSConfig       `yaml:"nats"`
	Web       WebConfig        `yaml:"web"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Schedules []ScheduleConfig `yaml:"schedules"`
	Log       LogConfig        `yaml:"log"`
}

type BackendsConfig struct {
	Claude BackendConfig `yaml:"claude"`
	Gemini BackendConfig `yaml:"gemini"`
	Kimi   BackendConfig `yaml:"kimi"`
}

// ByName returns the backend sections keyed by backend id.
func (b BackendsConfig) ByName() map[string]BackendConfig {
	return map[string]BackendConfig{
		"claude": b.Claude,
		"gemini": b.Gemini,
		"kimi":   b.Kimi,
	}
}

type BackendConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// Configured reports whether the backend can be used against its API.
func (b BackendConfig) Configured() bool {
	return b.Enabled && b.APIKey != ""
}

type RouterConfig struct {
	// LargeContextThreshold is measured in characters of section content.
	LargeContextThreshold int    `yaml:"large_context_threshold"`
	DefaultBackend        string `yaml:"default_backend"`
	ArchitectureBackend   string `yaml:"architecture_backend"`
	PremiumBackend        string `yaml:"premium_backend"`
	// Classifier selects premium evaluation: "llm" or "heuristic".
	Classifier        string        `yaml:"classifier"`
	ClassifierTimeout time.Duration `yaml:"classifier_timeout"`
}

type SwarmConfig struct {
	Topology  string            `yaml:"topology"`
	MaxAgents int               `yaml:"max_agents"`
	Strategy  string            `yaml:"strategy"`
	Roster    []swarm.AgentSpec `yaml:"roster"`
}

type PipelineConfig struct {
	CallTimeout     time.Duration  `yaml:"call_timeout"`
	ResearchDepth   string         `yaml:"research_depth"`
	ArticleLength   string         `yaml:"article_length"`
	Parallelization bool           `yaml:"parallelization"`
	Lengths         map[string]int `yaml:"lengths"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ScheduleConfig is a recurring article run declared in the config file.
type ScheduleConfig struct {
	Name   string `yaml:"name"`
	Cron   string `yaml:"cron"`
	Topic  string `yaml:"topic"`
	Length string `yaml:"length"`
	Depth  string `yaml:"depth"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps the configured level name to a slog level. Unknown names
// mean info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaults() Config {
	return Config{
		Backends: BackendsConfig{
			Claude: BackendConfig{Enabled: true, Model: "claude-sonnet-4-20250514"},
			Gemini: BackendConfig{Enabled: true, Model: "gemini-2.5-pro"},
			Kimi:   BackendConfig{Enabled: true, Model: "kimi-k2-0711-preview", BaseURL: "https://api.moonshot.ai/v1"},
		},
		Router: RouterConfig{
			LargeContextThreshold: 200_000,
			DefaultBackend:        "claude",
			ArchitectureBackend:   "gemini",
			PremiumBackend:        "kimi",
			Classifier:            "llm",
			ClassifierTimeout:     30 * time.Second,
		},
		Swarm: SwarmConfig{
			Topology:  string(swarm.TopologyHierarchical),
			MaxAgents: swarm.DefaultMaxAgents,
			Strategy:  "specialized",
			Roster:    swarm.DefaultRoster(),
		},
		Pipeline: PipelineConfig{
			CallTimeout:     5 * time.Minute,
			ResearchDepth:   "deep",
			ArticleLength:   "comprehensive",
			Parallelization: true,
		},
		Store: StoreConfig{
			Path: "data/storm.db",
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load() (*Config, error) {
	path := os.Getenv("STORM_CONFIG")
	if path == "" {
		path = "config/storm.yaml"
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults. A missing file yields defaults
// plus environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Backends.Claude.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Backends.Gemini.APIKey = v
	}
	if v := os.Getenv("KIMI_API_KEY"); v != "" {
		cfg.Backends.Kimi.APIKey = v
	}
	if v := os.Getenv("STORM_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("STORM_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("STORM_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("STORM_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("STORM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

var validDepths = map[string]bool{"shallow": true, "standard": true, "deep": true}

// Validate checks values the pipeline cannot recover from at run time.
func (c *Config) Validate() error {
	if !swarm.Topology(c.Swarm.Topology).Valid() {
		return fmt.Errorf("swarm.topology: unknown topology %q", c.Swarm.Topology)
	}
	if c.Swarm.MaxAgents < len(c.Swarm.Roster) {
		return fmt.Errorf("swarm.max_agents: %d is below roster size %d", c.Swarm.MaxAgents, len(c.Swarm.Roster))
	}
	for i, spec := range c.Swarm.Roster {
		if !spec.Role.Valid() {
			return fmt.Errorf("swarm.roster[%d]: unknown role %q", i, spec.Role)
		}
		if _, ok := c.Backends.ByName()[string(spec.Backend)]; !ok {
			return fmt.Errorf("swarm.roster[%d]: unknown backend %q", i, spec.Backend)
		}
	}
	if !validDepths[c.Pipeline.ResearchDepth] {
		return fmt.Errorf("pipeline.research_depth: unknown depth %q", c.Pipeline.ResearchDepth)
	}
	for name, words := range c.Pipeline.Lengths {
		if words <= 0 {
			return fmt.Errorf("pipeline.lengths.%s: must be positive, got %d", name, words)
		}
	}
	if c.Router.LargeContextThreshold <= 0 {
		return fmt.Errorf("router.large_context_threshold: must be positive")
	}
	switch c.Router.Classifier {
	case "llm", "heuristic":
	default:
		return fmt.Errorf("router.classifier: expected llm or heuristic, got %q", c.Router.Classifier)
	}
	seen := make(map[string]bool)
	for i, s := range c.Schedules {
		if s.Name == "" || s.Topic == "" || s.Cron == "" {
			return fmt.Errorf("schedules[%d]: name, cron and topic are required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("schedules[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
