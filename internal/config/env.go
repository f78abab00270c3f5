package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const namespace = "OBL"

// Env holds process settings read from OBL_* variables.
type Env struct {
	Environment   string `envconfig:"ENV"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"text"`
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:"127.0.0.1:8080"`
	WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
	OTelEndpoint  string `envconfig:"OTEL_ENDPOINT"`
}

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

// ApplyEnv overlays environment settings on the file config.
func (c *Config) ApplyEnv(env *Env) {
	if env == nil {
		return
	}
	if env.Environment != "" {
		c.Environment = env.Environment
	}
	if env.WebhookSecret != "" {
		for i := range c.Notifications.Webhooks {
			if c.Notifications.Webhooks[i].Secret == "" {
				c.Notifications.Webhooks[i].Secret = env.WebhookSecret
			}
		}
	}
}
