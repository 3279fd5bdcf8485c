package config

import (
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"CommentTrends/internal/domain"
)

const (
	defaultTimezone    = "UTC"
	configPathEnv      = "COMMENT_TRENDS_CONFIG"
	youtubeAPIKeyEnv   = "YOUTUBE_API_KEY"
	youtubeChannelEnv  = "YOUTUBE_CHANNEL_ID"
	embeddingAPIKeyEnv = "EMBEDDING_API_KEY"
	redisURLEnv        = "REDIS_URL"
	logLevelEnv        = "LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	YouTube    YouTubeConfig    `yaml:"youtube"`
	Storage    StorageConfig    `yaml:"storage"`
	Cleaning   CleaningConfig   `yaml:"cleaning"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Cache      CacheConfig      `yaml:"cache"`
	Server     ServerConfig     `yaml:"server"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// YouTubeConfig describes how comments are collected from the Data API.
type YouTubeConfig struct {
	APIKey            string        `yaml:"apiKey"`
	ChannelID         string        `yaml:"channelId"`
	BaseURL           string        `yaml:"baseUrl"`
	TitleKeyword      string        `yaml:"titleKeyword"`
	MaxVideos         int           `yaml:"maxVideos"`
	MaxComments       int           `yaml:"maxComments"`
	VideoPageSize     int           `yaml:"videoPageSize"`
	CommentPageSize   int           `yaml:"commentPageSize"`
	TextFormat        string        `yaml:"textFormat"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Timeout           time.Duration `yaml:"timeout"`
	Retry             RetryConfig   `yaml:"retry"`
}

// RetryConfig bounds retries of transient upstream failures.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"maxAttempts"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
}

// StorageConfig points at the flat snapshot files.
type StorageConfig struct {
	RawCachePath string `yaml:"rawCachePath"`
	SnapshotPath string `yaml:"snapshotPath"`
	RunsDir      string `yaml:"runsDir"`
}

const (
	defaultSeed               = 42
	defaultEmbeddingMinLength = 5
)

// CleaningConfig selects the text normalization variant.
// A nil MinLength means "strategy default": short comments are only
// dropped before embedding. An explicit 0 keeps every non-empty comment.
type CleaningConfig struct {
	Mode      string `yaml:"mode"`
	MinLength *int   `yaml:"minLength"`
}

// MinLengthFor resolves the minimum rune count a cleaned comment must exceed.
func (c CleaningConfig) MinLengthFor(strategy string) int {
	if c.MinLength != nil {
		return *c.MinLength
	}
	if strategy == "embedding" {
		return defaultEmbeddingMinLength
	}
	return 0
}

// ClusteringConfig holds vectorizer and k-means tuning.
type ClusteringConfig struct {
	Strategy                  string   `yaml:"strategy"`
	NClusters                 int      `yaml:"nClusters"`
	Seed                      *uint64  `yaml:"seed"`
	NInit                     int      `yaml:"nInit"`
	MaxIter                   int      `yaml:"maxIter"`
	MaxDocumentFrequencyRatio float64  `yaml:"maxDocumentFrequencyRatio"`
	MinDocumentFrequencyCount int      `yaml:"minDocumentFrequencyCount"`
	ExtraStopWords            []string `yaml:"extraStopWords"`
	TopTerms                  int      `yaml:"topTerms"`
	Examples                  int      `yaml:"examples"`
}

// RandomSeed returns the k-means seed; 0 is a valid explicit choice.
func (c ClusteringConfig) RandomSeed() uint64 {
	if c.Seed == nil {
		return defaultSeed
	}
	return *c.Seed
}

// EmbeddingConfig describes the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"apiKey"`
	BatchSize int           `yaml:"batchSize"`
	Timeout   time.Duration `yaml:"timeout"`
}

// CacheConfig controls the snapshot read cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"maxEntries"`
	RedisURL   string        `yaml:"redisUrl"`
}

// ServerConfig configures the read-only trends API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig defines when an automatic refresh should run. Empty means never.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

// ValidateCollector checks the settings needed before any upstream call.
func (c Config) ValidateCollector() error {
	if strings.TrimSpace(c.YouTube.APIKey) == "" {
		return &domain.ConfigurationError{Field: youtubeAPIKeyEnv, Reason: "is required"}
	}
	if strings.TrimSpace(c.YouTube.ChannelID) == "" {
		return &domain.ConfigurationError{Field: youtubeChannelEnv, Reason: "is required"}
	}
	if c.YouTube.MaxVideos <= 0 {
		return &domain.ConfigurationError{Field: "youtube.maxVideos", Reason: "must be positive"}
	}
	if c.YouTube.MaxComments <= 0 {
		return &domain.ConfigurationError{Field: "youtube.maxComments", Reason: "must be positive"}
	}
	return c.ValidateClustering()
}

// ValidateClustering checks clustering parameters.
func (c Config) ValidateClustering() error {
	cl := c.Clustering
	if cl.NClusters <= 0 {
		return &domain.ConfigurationError{Field: "clustering.nClusters", Reason: "must be positive"}
	}
	if cl.MaxDocumentFrequencyRatio <= 0 || cl.MaxDocumentFrequencyRatio > 1 {
		return &domain.ConfigurationError{Field: "clustering.maxDocumentFrequencyRatio", Reason: "must be in (0, 1]"}
	}
	if cl.MinDocumentFrequencyCount < 1 {
		return &domain.ConfigurationError{Field: "clustering.minDocumentFrequencyCount", Reason: "must be at least 1"}
	}
	if cl.Strategy == "embedding" && c.Embedding.Endpoint == "" {
		return &domain.ConfigurationError{Field: "embedding.endpoint", Reason: "is required for the embedding strategy"}
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(youtubeAPIKeyEnv); v != "" {
		c.YouTube.APIKey = v
	}
	if v := os.Getenv(youtubeChannelEnv); v != "" {
		c.YouTube.ChannelID = v
	}
	if v := os.Getenv(embeddingAPIKeyEnv); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv(redisURLEnv); v != "" {
		c.Cache.RedisURL = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	base.YouTube = mergeYouTube(base.YouTube, override.YouTube)

	if override.Storage.RawCachePath != "" {
		base.Storage.RawCachePath = override.Storage.RawCachePath
	}
	if override.Storage.SnapshotPath != "" {
		base.Storage.SnapshotPath = override.Storage.SnapshotPath
	}
	if override.Storage.RunsDir != "" {
		base.Storage.RunsDir = override.Storage.RunsDir
	}

	if override.Cleaning.Mode != "" {
		base.Cleaning.Mode = override.Cleaning.Mode
	}
	if override.Cleaning.MinLength != nil {
		base.Cleaning.MinLength = override.Cleaning.MinLength
	}

	base.Clustering = mergeClustering(base.Clustering, override.Clustering)

	if override.Embedding.Endpoint != "" {
		base.Embedding.Endpoint = override.Embedding.Endpoint
	}
	if override.Embedding.Model != "" {
		base.Embedding.Model = override.Embedding.Model
	}
	if override.Embedding.APIKey != "" {
		base.Embedding.APIKey = override.Embedding.APIKey
	}
	if override.Embedding.BatchSize > 0 {
		base.Embedding.BatchSize = override.Embedding.BatchSize
	}
	if override.Embedding.Timeout > 0 {
		base.Embedding.Timeout = override.Embedding.Timeout
	}

	if override.Cache.TTL > 0 {
		base.Cache.TTL = override.Cache.TTL
	}
	if override.Cache.MaxEntries > 0 {
		base.Cache.MaxEntries = override.Cache.MaxEntries
	}
	if override.Cache.RedisURL != "" {
		base.Cache.RedisURL = override.Cache.RedisURL
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	return base
}

func mergeYouTube(base, override YouTubeConfig) YouTubeConfig {
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	if override.ChannelID != "" {
		base.ChannelID = override.ChannelID
	}
	if override.BaseURL != "" {
		base.BaseURL = override.BaseURL
	}
	if override.TitleKeyword != "" {
		base.TitleKeyword = override.TitleKeyword
	}
	if override.MaxVideos > 0 {
		base.MaxVideos = override.MaxVideos
	}
	if override.MaxComments > 0 {
		base.MaxComments = override.MaxComments
	}
	if override.VideoPageSize > 0 {
		base.VideoPageSize = override.VideoPageSize
	}
	if override.CommentPageSize > 0 {
		base.CommentPageSize = override.CommentPageSize
	}
	if override.TextFormat != "" {
		base.TextFormat = override.TextFormat
	}
	if override.RequestsPerSecond > 0 {
		base.RequestsPerSecond = override.RequestsPerSecond
	}
	if override.Timeout > 0 {
		base.Timeout = override.Timeout
	}
	if override.Retry.MaxAttempts > 0 {
		base.Retry.MaxAttempts = override.Retry.MaxAttempts
	}
	if override.Retry.InitialInterval > 0 {
		base.Retry.InitialInterval = override.Retry.InitialInterval
	}
	if override.Retry.MaxInterval > 0 {
		base.Retry.MaxInterval = override.Retry.MaxInterval
	}
	return base
}

func mergeClustering(base, override ClusteringConfig) ClusteringConfig {
	if override.Strategy != "" {
		base.Strategy = override.Strategy
	}
	if override.NClusters > 0 {
		base.NClusters = override.NClusters
	}
	if override.Seed != nil {
		base.Seed = override.Seed
	}
	if override.NInit > 0 {
		base.NInit = override.NInit
	}
	if override.MaxIter > 0 {
		base.MaxIter = override.MaxIter
	}
	if override.MaxDocumentFrequencyRatio > 0 {
		base.MaxDocumentFrequencyRatio = override.MaxDocumentFrequencyRatio
	}
	if override.MinDocumentFrequencyCount > 0 {
		base.MinDocumentFrequencyCount = override.MinDocumentFrequencyCount
	}
	if override.ExtraStopWords != nil {
		base.ExtraStopWords = override.ExtraStopWords
	}
	if override.TopTerms > 0 {
		base.TopTerms = override.TopTerms
	}
	if override.Examples > 0 {
		base.Examples = override.Examples
	}
	return base
}

// Default returns the configuration used when no file is provided.
func Default() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info"},
		YouTube: YouTubeConfig{
			BaseURL:           "https://www.googleapis.com/youtube/v3",
			TitleKeyword:      "corrections",
			MaxVideos:         200,
			MaxComments:       500,
			VideoPageSize:     50,
			CommentPageSize:   100,
			TextFormat:        "plainText",
			RequestsPerSecond: 5,
			Timeout:           20 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 500 * time.Millisecond,
				MaxInterval:     10 * time.Second,
			},
		},
		Storage: StorageConfig{
			RawCachePath: "data/raw/comments_raw.csv",
			SnapshotPath: "data/processed/comments.csv",
			RunsDir:      "data/processed/runs",
		},
		Cleaning: CleaningConfig{Mode: "alpha"},
		Clustering: ClusteringConfig{
			Strategy:                  "tfidf",
			NClusters:                 6,
			NInit:                     10,
			MaxIter:                   300,
			MaxDocumentFrequencyRatio: 0.9,
			MinDocumentFrequencyCount: 10,
			ExtraStopWords: []string{
				"like", "just", "love", "don", "know", "did", "say", "seth",
				"corrections", "correction", "ve", "really", "best",
			},
			TopTerms: 10,
			Examples: 5,
		},
		Embedding: EmbeddingConfig{
			Model:     "all-MiniLM-L6-v2",
			BatchSize: 32,
			Timeout:   30 * time.Second,
		},
		Cache: CacheConfig{
			TTL:        24 * time.Hour,
			MaxEntries: 8,
		},
		Server:    ServerConfig{Addr: ":8080"},
		Scheduler: SchedulerConfig{Timezone: defaultTimezone, location: tz},
	}
}
