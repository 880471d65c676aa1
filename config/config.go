package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port       string `env:"PORT" envDefault:"8080"`
	AppEnv     string `env:"APP_ENV" envDefault:"development"`
	DBURL      string `env:"DB_URL,required,notEmpty"`
	JWTSecret  string `env:"JWT_SECRET,required,notEmpty"`
	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"http://localhost:5173"`

	BlobRoot          string `env:"BLOB_ROOT" envDefault:"./uploads"`
	BlobPublicBaseURL string `env:"BLOB_PUBLIC_BASE_URL" envDefault:"/uploads"`

	Inference Inference
	Callback  Callback

	BuildTimeout       time.Duration `env:"BUILD_TIMEOUT" envDefault:"2h"`
	BuildSweepInterval time.Duration `env:"BUILD_SWEEP_INTERVAL" envDefault:"5m"`

	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"campaign.events"`

	// DotEnvMissing is set when no .env file was found; reported once logging is up.
	DotEnvMissing bool `env:"-"`
}

type Inference struct {
	BaseURL       string        `env:"INFERENCE_BASE_URL"`
	ProbeTimeout  time.Duration `env:"INFERENCE_PROBE_TIMEOUT" envDefault:"15s"`
	UploadTimeout time.Duration `env:"INFERENCE_UPLOAD_TIMEOUT" envDefault:"5m"`
	Cooldown      time.Duration `env:"INFERENCE_COOLDOWN" envDefault:"60s"`

	// optional OAuth2 client credentials for outbound calls
	TokenURL     string `env:"INFERENCE_TOKEN_URL"`
	ClientID     string `env:"INFERENCE_CLIENT_ID"`
	ClientSecret string `env:"INFERENCE_CLIENT_SECRET"`
}

type Callback struct {
	Secret       string `env:"CALLBACK_SECRET"`
	OIDCIssuer   string `env:"CALLBACK_OIDC_ISSUER"`
	OIDCAudience string `env:"CALLBACK_OIDC_AUDIENCE"`
}

// Production reports whether the service runs with production logging.
func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

// Load reads .env (if any) and parses the environment.
func Load() (*Config, error) {
	dotEnvErr := godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.DotEnvMissing = dotEnvErr != nil
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Callback.Secret == "" && c.Callback.OIDCIssuer == "" {
		return fmt.Errorf("one of CALLBACK_SECRET or CALLBACK_OIDC_ISSUER must be set")
	}
	if c.Callback.OIDCIssuer != "" && c.Callback.OIDCAudience == "" {
		return fmt.Errorf("CALLBACK_OIDC_AUDIENCE is required with CALLBACK_OIDC_ISSUER")
	}
	if c.Inference.TokenURL != "" && (c.Inference.ClientID == "" || c.Inference.ClientSecret == "") {
		return fmt.Errorf("INFERENCE_CLIENT_ID and INFERENCE_CLIENT_SECRET are required with INFERENCE_TOKEN_URL")
	}
	return nil
}
