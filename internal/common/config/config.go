// Package config loads ARServer configuration from environment variables,
// an optional config file, and defaults, via github.com/spf13/viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every configuration section ARServer reads at startup.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Execution  ExecutionConfig  `mapstructure:"execution"`
	Store      StoreConfig      `mapstructure:"store"`
	Scene      SceneConfig      `mapstructure:"scene"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Build      BuildConfig      `mapstructure:"build"`
	Events    EventsConfig    `mapstructure:"events"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Lock      LockConfig      `mapstructure:"lock"`
}

// ServerConfig holds the duplex-channel listener configuration.
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

// ExecutionConfig points at the execution runtime.
type ExecutionConfig struct {
	URL string `mapstructure:"url"`
}

// StoreConfig points at the persistent project/scene store. Scene
// documents normally live behind the same base URL as projects; a split
// deployment can override sceneStoreUrl in the config file.
type StoreConfig struct {
	ProjectServiceURL string `mapstructure:"projectServiceUrl"`
	SceneStoreURL     string `mapstructure:"sceneStoreUrl"`
}

// SimulationConfig points at the scene simulation service.
type SimulationConfig struct {
	URL string `mapstructure:"url"`
}

// BuildConfig points at the build service.
type BuildConfig struct {
	URL string `mapstructure:"url"`
}

// SceneConfig holds scene-runtime tunables.
type SceneConfig struct {
	DataPath        string        `mapstructure:"dataPath"`
	StreamingPeriod time.Duration `mapstructure:"streamingPeriod"`
}

// EventsConfig configures the notification bus backend.
type EventsConfig struct {
	Namespace string `mapstructure:"namespace"`
	NATSURL   string `mapstructure:"natsUrl"`
}

// DockerConfig configures the optional local execution-runtime supervisor.
type DockerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Image   string `mapstructure:"image"`
}

// LoggingConfig configures internal/common/logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlpEndpoint"`
}

// LockConfig tunes the advisory lock manager's retry behavior.
type LockConfig struct {
	Retries  int           `mapstructure:"retries"`
	RetryGap time.Duration `mapstructure:"retryGap"`
}

// Addr returns the listener address as "host:port".
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Load reads configuration from ARCOR2_* environment variables, falling back
// to an optional ./arserver.yaml file and hard-coded defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("arserver")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/arserver")

	setDefaults(v)

	v.SetEnvPrefix("ARCOR2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 6790)
	v.SetDefault("scene.dataPath", "./data")
	v.SetDefault("scene.streamingPeriod", 100*time.Millisecond)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.outputPath", "stdout")
	v.SetDefault("docker.enabled", false)
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.image", "arcor2/arserver-execution:latest")
	v.SetDefault("lock.retries", 5)
	v.SetDefault("lock.retryGap", 100*time.Millisecond)
}

// bindEnv wires the flat ARCOR2_* environment variable names onto their
// nested mapstructure keys, since the auto-derived nested names
// (ARCOR2_SERVER_PORT) don't match the deployment's flat names
// (ARCOR2_ARSERVER_PORT).
func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "ARCOR2_ARSERVER_PORT")
	_ = v.BindEnv("execution.url", "ARCOR2_EXECUTION_URL")
	_ = v.BindEnv("store.projectServiceUrl", "ARCOR2_PROJECT_SERVICE_URL")
	_ = v.BindEnv("simulation.url", "ARCOR2_SCENE_SERVICE_URL")
	_ = v.BindEnv("build.url", "ARCOR2_BUILD_URL")
	_ = v.BindEnv("scene.dataPath", "ARCOR2_DATA_PATH")
	_ = v.BindEnv("scene.streamingPeriod", "ARCOR2_STREAMING_PERIOD")
	_ = v.BindEnv("logging.level", "ARCOR2_LOG_LEVEL")
	_ = v.BindEnv("logging.format", "ARCOR2_LOG_FORMAT")
	_ = v.BindEnv("events.namespace", "ARCOR2_EVENTS_NAMESPACE")
	_ = v.BindEnv("events.natsUrl", "ARCOR2_NATS_URL")
	_ = v.BindEnv("tracing.otlpEndpoint", "ARCOR2_OTEL_ENDPOINT")
}
