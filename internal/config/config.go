package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Graph       GraphConfig
	Redis       RedisConfig
	Broker      BrokerConfig
	Grobid      GrobidConfig
	Providers   ProvidersConfig
	ObjectStore ObjectStoreConfig
	Upload      UploadConfig
	Pipeline    PipelineConfig
	CORS        CORSConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type GraphConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// BrokerConfig covers outbound HTTP policy for the two destination classes.
type BrokerConfig struct {
	InternalTimeout time.Duration
	ExternalTimeout time.Duration
	ExternalProxy   string
	MaxRetries      int
	RetryBaseDelay  time.Duration
}

type GrobidConfig struct {
	BaseURL string
}

type ProvidersConfig struct {
	CrossrefBaseURL       string
	CrossrefMailto        string // polite pool
	SemanticScholarURL    string
	SemanticScholarAPIKey string
	ArxivBaseURL          string
	UnpaywallBaseURL      string
	UnpaywallEmail        string
}

type ObjectStoreConfig struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Hostnames recognized as object-store URLs for native-path fetch.
	Hostnames []string
}

type UploadConfig struct {
	GrantSecret string
	GrantExpiry time.Duration
	MaxPDFBytes int64
}

// PipelineConfig carries the documented tuning defaults of the ingestion
// pipeline.
type PipelineConfig struct {
	WorkerParallelism  int
	TaskHardTimeout    time.Duration
	TaskSoftTimeout    time.Duration
	ResultTTL          time.Duration
	StalenessWindow    time.Duration
	MappingThreshold   float64
	FuzzyGate          float64
	FuzzyAccept        float64
	FuzzyYearTolerance int
	GraphDepthDefault  int
	GraphDepthMax      int
	GraphSeedsMax      int
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnvMulti([]string{"PORT", "SERVER_PORT"}, "8000"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),
		},
		Graph: GraphConfig{
			URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
			Username: getEnv("NEO4J_USER", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", "literature"),
			Database: getEnv("NEO4J_DATABASE", "neo4j"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Broker: BrokerConfig{
			InternalTimeout: getDurationEnv("BROKER_INTERNAL_TIMEOUT", 10*time.Second),
			ExternalTimeout: getDurationEnv("BROKER_EXTERNAL_TIMEOUT", 30*time.Second),
			ExternalProxy:   getEnv("BROKER_EXTERNAL_PROXY", ""),
			MaxRetries:      getIntEnv("BROKER_MAX_RETRIES", 3),
			RetryBaseDelay:  getDurationEnv("BROKER_RETRY_BASE_DELAY", 1*time.Second),
		},
		Grobid: GrobidConfig{
			BaseURL: getEnv("GROBID_BASE_URL", "http://localhost:8070"),
		},
		Providers: ProvidersConfig{
			CrossrefBaseURL:       getEnv("CROSSREF_API_BASE_URL", "https://api.crossref.org"),
			CrossrefMailto:        getEnv("CROSSREF_MAILTO", ""),
			SemanticScholarURL:    getEnv("SEMANTIC_SCHOLAR_API_BASE_URL", "https://api.semanticscholar.org"),
			SemanticScholarAPIKey: getEnv("SEMANTIC_SCHOLAR_API_KEY", ""),
			ArxivBaseURL:          getEnv("ARXIV_API_BASE_URL", "http://export.arxiv.org/api/query"),
			UnpaywallBaseURL:      getEnv("UNPAYWALL_API_BASE_URL", "https://api.unpaywall.org/v2"),
			UnpaywallEmail:        getEnv("UNPAYWALL_EMAIL", ""),
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:  getEnv("OBJECT_STORE_ENDPOINT", ""),
			Region:    getEnv("OBJECT_STORE_REGION", "us-east-1"),
			Bucket:    getEnv("OBJECT_STORE_BUCKET", "literature-pdfs"),
			AccessKey: getEnv("OBJECT_STORE_ACCESS_KEY", ""),
			SecretKey: getEnv("OBJECT_STORE_SECRET_KEY", ""),
			Hostnames: getSliceEnv("OBJECT_STORE_HOSTNAMES", nil),
		},
		Upload: UploadConfig{
			GrantSecret: getEnv("UPLOAD_GRANT_SECRET", "upload-grant-secret"),
			GrantExpiry: getDurationEnv("UPLOAD_GRANT_EXPIRY", 15*time.Minute),
			MaxPDFBytes: int64(getIntEnv("MAX_PDF_BYTES", 50*1024*1024)),
		},
		Pipeline: PipelineConfig{
			WorkerParallelism:  getIntEnv("WORKER_PARALLELISM", 4),
			TaskHardTimeout:    getDurationEnv("TASK_HARD_TIMEOUT", 30*time.Minute),
			TaskSoftTimeout:    getDurationEnv("TASK_SOFT_TIMEOUT", 25*time.Minute),
			ResultTTL:          getDurationEnv("TASK_RESULT_TTL", time.Hour),
			StalenessWindow:    getDurationEnv("TASK_STALENESS_WINDOW", 30*time.Minute),
			MappingThreshold:   getFloatEnv("URL_MAPPING_THRESHOLD", 0.6),
			FuzzyGate:          getFloatEnv("CITATION_FUZZY_GATE", 0.4),
			FuzzyAccept:        getFloatEnv("CITATION_FUZZY_ACCEPT", 0.6),
			FuzzyYearTolerance: getIntEnv("CITATION_YEAR_TOLERANCE", 1),
			GraphDepthDefault:  getIntEnv("GRAPH_DEPTH_DEFAULT", 1),
			GraphDepthMax:      getIntEnv("GRAPH_DEPTH_MAX", 3),
			GraphSeedsMax:      getIntEnv("GRAPH_SEEDS_MAX", 20),
		},
		CORS: CORSConfig{
			AllowedOrigins: getSliceEnv("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		},
	}
}

func getEnvMulti(keys []string, defaultValue string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
