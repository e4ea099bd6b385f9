package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// AMQP holds broker connection settings.
type AMQP struct {
	Hostname string
	Port     int
	TLS      bool
	Username string
	Password string
	VHost    string
	Queue    string
}

// Backend holds the credential-resolver endpoint and auth.
type Backend struct {
	Hostname string
	Username string
	Password string
}

// Config is the worker SDK's full external configuration, loaded from
// environment variables (optionally layered over a config file) per the
// recognized-options table.
type Config struct {
	AMQP    AMQP
	Backend Backend

	// SourceOrders is the parsed list of local replay files; non-empty
	// activates local replay mode instead of the broker supervision loop.
	SourceOrders []string

	// Describe, when true, means the process should print the worker
	// configuration as JSON and exit zero instead of running.
	Describe bool

	// LogLevel is the RUST_LOG-equivalent threshold: debug, info, warn, error.
	LogLevel string
}

// Load reads Config from the environment, optionally layering a config file
// named .mcai-worker (yaml/json/toml) found in the working directory or the
// user's home directory, following the same viper search pattern the
// teacher's service CLIs use.
func Load() Config {
	v := viper.New()
	v.SetConfigName(".mcai-worker")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AutomaticEnv()
	_ = v.ReadInConfig() // absence of a config file is not an error

	env := NewEnvConfig("")

	cfg := Config{
		AMQP: AMQP{
			Hostname: viperOr(v, "AMQP_HOSTNAME", env.GetString("AMQP_HOSTNAME", "localhost")),
			Port:     viperIntOr(v, "AMQP_PORT", env.GetInt("AMQP_PORT", 5672)),
			TLS:      env.GetBool("AMQP_TLS", false),
			Username: viperOr(v, "AMQP_USERNAME", env.GetString("AMQP_USERNAME", "guest")),
			Password: viperOr(v, "AMQP_PASSWORD", env.GetString("AMQP_PASSWORD", "guest")),
			VHost:    viperOr(v, "AMQP_VHOST", env.GetString("AMQP_VHOST", "/")),
			Queue:    viperOr(v, "AMQP_QUEUE", env.GetString("AMQP_QUEUE", "job_undefined")),
		},
		Backend: Backend{
			Hostname: viperOr(v, "BACKEND_HOSTNAME", env.GetString("BACKEND_HOSTNAME", "")),
			Username: viperOr(v, "BACKEND_USERNAME", env.GetString("BACKEND_USERNAME", "")),
			Password: viperOr(v, "BACKEND_PASSWORD", env.GetString("BACKEND_PASSWORD", "")),
		},
		Describe: env.GetBool("DESCRIBE", false),
		LogLevel: viperOr(v, "LOG_LEVEL", env.GetString("LOG_LEVEL", "info")),
	}

	if sourceOrders := env.GetString("SOURCE_ORDERS", ""); sourceOrders != "" {
		cfg.SourceOrders = strings.Split(sourceOrders, string(os.PathListSeparator))
	}

	return cfg
}

// AMQPURL builds the amqp(s):// connection string for streadway/amqp.
func (c Config) AMQPURL() string {
	scheme := "amqp"
	if c.AMQP.TLS {
		scheme = "amqps"
	}
	vhost := strings.TrimPrefix(c.AMQP.VHost, "/")
	return scheme + "://" + c.AMQP.Username + ":" + c.AMQP.Password + "@" +
		c.AMQP.Hostname + ":" + strconv.Itoa(c.AMQP.Port) + "/" + vhost
}

func viperOr(v *viper.Viper, key, fallback string) string {
	if value := v.GetString(key); value != "" {
		return value
	}
	return fallback
}

func viperIntOr(v *viper.Viper, key string, fallback int) int {
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	return fallback
}

