package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	API   RateLimitBucketConfig `yaml:"api"`
	Admin RateLimitBucketConfig `yaml:"admin"`
}

type Config struct {
	Port          int    `yaml:"port"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	FlowHuntBaseURL string `yaml:"flowHuntBaseUrl"`
	FlowHuntAPIKey  string `yaml:"flowHuntApiKey"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	Env       string `yaml:"env"`

	DefaultParallelism  int    `yaml:"defaultParallelism"`
	PollIntervalSeconds int    `yaml:"pollIntervalSeconds"`
	PollMaxIterations   int    `yaml:"pollMaxIterations"`
	PollBackoffPolicy   string `yaml:"pollBackoffPolicy"`
	PollMaxDelaySeconds int    `yaml:"pollMaxDelaySeconds"`

	OutputDir string `yaml:"outputDir"`

	// AuthProvider selects the token validator: "static", "jwks" or "" (auth
	// disabled, dev only).
	AuthProvider            string `yaml:"authProvider"`
	AuthStaticToken         string `yaml:"authStaticToken"`
	AuthJwksURL             string `yaml:"authJwksUrl"`
	AuthIssuer              string `yaml:"authIssuer"`
	AuthAudience            string `yaml:"authAudience"`
	AllowedClockSkewSeconds int    `yaml:"allowedClockSkewSeconds"`

	RateLimit RateLimitConfig `yaml:"rateLimit"`

	TracingEnabled     bool    `yaml:"tracingEnabled"`
	TracingEndpoint    string  `yaml:"tracingEndpoint"`
	TracingInsecure    bool    `yaml:"tracingInsecure"`
	TracingSampleRatio float64 `yaml:"tracingSampleRatio"`
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return loadFromYAML(data)
}

// LoadConfigOptional behaves like LoadConfig but treats an empty or missing
// file as "no file": defaults plus environment overrides.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return loadFromYAML(nil)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return loadFromYAML(nil)
		}
		return nil, err
	}
	return loadFromYAML(data)
}

func loadFromYAML(data []byte) (*Config, error) {
	var c Config
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, err
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("FLOWHUNT_BASE_URL"); v != "" {
		c.FlowHuntBaseURL = v
	}
	if v := os.Getenv("FLOWHUNT_API_KEY"); v != "" {
		c.FlowHuntAPIKey = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("DEFAULT_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultParallelism = n
		}
	}
	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PollIntervalSeconds = n
		}
	}
	if v := os.Getenv("POLL_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PollMaxIterations = n
		}
	}
	if v := os.Getenv("POLL_BACKOFF_POLICY"); v != "" {
		c.PollBackoffPolicy = v
	}
	if v := os.Getenv("POLL_MAX_DELAY_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PollMaxDelaySeconds = n
		}
	}
	if v := os.Getenv("AUTH_PROVIDER"); v != "" {
		c.AuthProvider = v
	}
	if v := os.Getenv("AUTH_STATIC_TOKEN"); v != "" {
		c.AuthStaticToken = v
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		c.AuthJwksURL = v
	}
	if v := os.Getenv("AUTH_ISSUER"); v != "" {
		c.AuthIssuer = v
	}
	if v := os.Getenv("AUTH_AUDIENCE"); v != "" {
		c.AuthAudience = v
	}
	if v := os.Getenv("ALLOWED_CLOCK_SKEW_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AllowedClockSkewSeconds = n
		}
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		c.TracingEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACING_ENDPOINT"); v != "" {
		c.TracingEndpoint = v
	}

	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.FlowHuntBaseURL == "" {
		c.FlowHuntBaseURL = "https://api.flowhunt.io"
	}
	if c.FlowHuntAPIKey == "" {
		log.Println("Warning: FlowHuntAPIKey not set (dev only)")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.DefaultParallelism <= 0 {
		c.DefaultParallelism = 5
	}
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = 2
	}
	if c.PollMaxIterations <= 0 {
		c.PollMaxIterations = 1800
	}
	if c.PollBackoffPolicy == "" {
		c.PollBackoffPolicy = "fixed"
	}
	if c.PollMaxDelaySeconds <= 0 {
		c.PollMaxDelaySeconds = c.PollIntervalSeconds
	}
	if c.OutputDir == "" {
		c.OutputDir = "/tmp/flowbatch-outputs"
	}
	if c.AllowedClockSkewSeconds <= 0 {
		c.AllowedClockSkewSeconds = 60
	}

	log.Printf("FlowBatch Config: {Port:%d Redis:%s FlowHunt:%s Parallelism:%d PollInterval:%ds}\n",
		c.Port, c.RedisAddr, c.FlowHuntBaseURL, c.DefaultParallelism, c.PollIntervalSeconds)
	return &c, nil
}

func (c *Config) Validate() error {
	var errs []string
	env := strings.ToLower(strings.TrimSpace(c.Env))
	dev := env == "dev"

	if u, err := url.Parse(c.FlowHuntBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "flowHuntBaseUrl must be a valid http(s) URL")
	}
	if c.FlowHuntAPIKey == "" && !dev {
		errs = append(errs, "flowHuntApiKey is required in non-dev")
	}

	switch strings.ToLower(strings.TrimSpace(c.AuthProvider)) {
	case "", "none":
		if !dev {
			errs = append(errs, "authProvider is required in non-dev")
		}
	case "static":
		if strings.TrimSpace(c.AuthStaticToken) == "" {
			errs = append(errs, "authStaticToken is required for the static provider")
		}
	case "jwks":
		if c.AuthJwksURL == "" {
			errs = append(errs, "authJwksUrl is required for the jwks provider")
		} else if u, err := url.Parse(c.AuthJwksURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "authJwksUrl must be a valid http(s) URL")
		}
		if c.AuthIssuer == "" {
			errs = append(errs, "authIssuer is required for the jwks provider")
		}
		if c.AuthAudience == "" {
			errs = append(errs, "authAudience is required for the jwks provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown authProvider %q", c.AuthProvider))
	}

	switch c.PollBackoffPolicy {
	case "fixed", "linear", "exponential", "exp_equal_jitter", "exp_full_jitter":
	default:
		errs = append(errs, fmt.Sprintf("unknown pollBackoffPolicy %q", c.PollBackoffPolicy))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
