package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultChatModel is used by the agent and grounded search when nothing else is configured.
const DefaultChatModel = "gemini-2.5-flash"

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "STUDYGUIDER_CONFIG"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Agent       AgentConfig               `json:"agent"`
	Embedding   EmbeddingConfig           `json:"embedding"`
	Knowledge   KnowledgeConfig           `json:"knowledge"`
	Search      SearchConfig              `json:"search"`
	Session     SessionConfig             `json:"session"`
	Worker      WorkerConfig              `json:"worker"`
	Redis       RedisConfig               `json:"redis"`
	Archive     ArchiveConfig             `json:"archive"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	LogLevel      string `json:"log_level"`
	// AdminToken enables the /admin routes when set.
	AdminToken string `json:"admin_token"`
	// Seconds.
	ReadTimeout  int `json:"read_timeout"`
	WriteTimeout int `json:"write_timeout"`
}

type AgentConfig struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	TopK      int    `json:"top_k"`
	MaxRounds int    `json:"max_rounds"`
}

type EmbeddingConfig struct {
	Model     string `json:"model"`
	BatchSize int    `json:"batch_size"`
}

type KnowledgeConfig struct {
	Path         string `json:"path"`
	Collection   string `json:"collection"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap"`
}

type SearchConfig struct {
	// Provider is one of gemini, google or duckduckgo.
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	SearchEngineID string `json:"search_engine_id"`
	MaxResults     int    `json:"max_results"`
}

type SessionConfig struct {
	// Backend is memory or redis.
	Backend     string `json:"backend"`
	MaxSessions int    `json:"max_sessions"`
	// Idle time to live, in minutes.
	TTLMinutes        int  `json:"ttl_minutes"`
	RollbackOnFailure bool `json:"rollback_on_failure"`
}

type WorkerConfig struct {
	MinWorkers int `json:"min_workers"`
	MaxWorkers int `json:"max_workers"`
	QueueSize  int `json:"queue_size"`
	// Seconds an idle worker above MinWorkers is kept.
	IdleTimeout int `json:"idle_timeout"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ArchiveConfig struct {
	// Driver is sqlite3 or mysql; empty disables the transcript archive.
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress: ":8000",
			LogLevel:      "info",
			ReadTimeout:   30,
			WriteTimeout:  120,
		},
		Providers: map[string]ProviderConfig{},
		Agent: AgentConfig{
			Provider:  "gemini",
			TopK:      5,
			MaxRounds: 3,
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-004",
			BatchSize: 100,
		},
		Knowledge: KnowledgeConfig{
			Path:         "chroma_db",
			Collection:   "knowledge_base1",
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Search: SearchConfig{
			Provider:   "gemini",
			Model:      DefaultChatModel,
			MaxResults: 5,
		},
		Session: SessionConfig{
			Backend:     "memory",
			MaxSessions: 10000,
			TTLMinutes:  24 * 60,
		},
		Worker: WorkerConfig{
			MinWorkers:  2,
			MaxWorkers:  16,
			QueueSize:   256,
			IdleTimeout: 30,
		},
	}
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error; an explicitly named one is.
// Secrets from the environment (and a .env file next to the process) win over the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		absPath = ""
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.fillDefaults()
	if absPath != "" {
		cfg.resolvePaths(filepath.Dir(absPath))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProviderKey returns the API key configured for provider.
func (c *Config) ProviderKey(provider string) string {
	return c.Providers[provider].APIKey
}

// SessionTTL returns the idle lifetime of a session.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLMinutes) * time.Minute
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Agent.Provider {
	case "gemini", "openai", "claude":
	default:
		return fmt.Errorf("invalid agent provider: %s", c.Agent.Provider)
	}
	switch c.Search.Provider {
	case "gemini", "google", "duckduckgo":
	default:
		return fmt.Errorf("invalid search provider: %s", c.Search.Provider)
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid session backend: %s", c.Session.Backend)
	}
	switch strings.ToLower(c.Archive.Driver) {
	case "", "sqlite", "sqlite3", "mysql":
	default:
		return fmt.Errorf("invalid archive driver: %s", c.Archive.Driver)
	}
	if c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		return errors.New("knowledge chunk_overlap must be smaller than chunk_size")
	}
	return nil
}

func (c *Config) applyEnv() {
	set := func(provider, env string) {
		v := os.Getenv(env)
		if v == "" {
			return
		}
		p := c.Providers[provider]
		p.APIKey = v
		c.Providers[provider] = p
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	set("gemini", "GOOGLE_API_KEY")
	set("openai", "OPENAI_API_KEY")
	set("claude", "ANTHROPIC_API_KEY")
	if v := os.Getenv("GOOGLE_SEARCH_ENGINE_ID"); v != "" {
		c.Search.SearchEngineID = v
	}
	if v := os.Getenv("STUDYGUIDER_ADMIN_TOKEN"); v != "" {
		c.BasicConfig.AdminToken = v
	}
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = def.BasicConfig.ServerAddress
	}
	if c.Agent.Provider == "" {
		c.Agent.Provider = def.Agent.Provider
	}
	if c.Agent.Model == "" {
		c.Agent.Model = c.Providers[c.Agent.Provider].Model
	}
	if c.Agent.Model == "" {
		c.Agent.Model = DefaultChatModel
	}
	if c.Agent.TopK <= 0 {
		c.Agent.TopK = def.Agent.TopK
	}
	if c.Agent.MaxRounds <= 0 {
		c.Agent.MaxRounds = def.Agent.MaxRounds
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = def.Embedding.Model
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > def.Embedding.BatchSize {
		c.Embedding.BatchSize = def.Embedding.BatchSize
	}
	if c.Knowledge.Path == "" {
		c.Knowledge.Path = def.Knowledge.Path
	}
	if c.Knowledge.Collection == "" {
		c.Knowledge.Collection = def.Knowledge.Collection
	}
	if c.Knowledge.ChunkSize <= 0 {
		c.Knowledge.ChunkSize = def.Knowledge.ChunkSize
	}
	if c.Knowledge.ChunkOverlap < 0 {
		c.Knowledge.ChunkOverlap = 0
	}
	if c.Search.Provider == "" {
		c.Search.Provider = def.Search.Provider
	}
	if c.Search.Model == "" {
		c.Search.Model = def.Search.Model
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = def.Search.MaxResults
	}
	if c.Session.Backend == "" {
		c.Session.Backend = def.Session.Backend
	}
	if c.Session.MaxSessions <= 0 {
		c.Session.MaxSessions = def.Session.MaxSessions
	}
	if c.Session.TTLMinutes <= 0 {
		c.Session.TTLMinutes = def.Session.TTLMinutes
	}
	if c.Worker.MaxWorkers <= 0 {
		c.Worker.MaxWorkers = def.Worker.MaxWorkers
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = def.Worker.QueueSize
	}
}

func (c *Config) resolvePaths(base string) {
	if !filepath.IsAbs(c.Knowledge.Path) {
		c.Knowledge.Path = filepath.Join(base, c.Knowledge.Path)
	}
	driver := strings.ToLower(c.Archive.Driver)
	if (driver == "sqlite" || driver == "sqlite3") && c.Archive.DSN != "" &&
		c.Archive.DSN != ":memory:" && !strings.HasPrefix(c.Archive.DSN, "file:") && !filepath.IsAbs(c.Archive.DSN) {
		c.Archive.DSN = filepath.Join(base, c.Archive.DSN)
	}
}
