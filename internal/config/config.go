package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fmueller/voxapi/internal/audio"
	"github.com/fmueller/voxapi/internal/logging"
	"github.com/fmueller/voxapi/internal/platform"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Bind            string        `yaml:"bind"`
	Port            int           `yaml:"port"`
	MaxUploadMemory int64         `yaml:"max_upload_memory"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type ModelsConfig struct {
	Dir            string `yaml:"dir"`
	AutoDownload   bool   `yaml:"auto_download"`
	VerifyChecksum bool   `yaml:"verify_checksum"`
}

type EngineConfig struct {
	Path    string `yaml:"path"`
	Threads int    `yaml:"threads"`
}

type DecoderConfig struct {
	Command    string        `yaml:"command"`
	SampleRate int           `yaml:"sample_rate"`
	Timeout    time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	DefaultModel    string        `yaml:"default_model"`
	Preload         bool          `yaml:"preload"`
	PreloadedModels []string      `yaml:"preloaded_models"`
	HTTP            HTTPConfig    `yaml:"http"`
	Models          ModelsConfig  `yaml:"models"`
	Engine          EngineConfig  `yaml:"engine"`
	Decoder         DecoderConfig `yaml:"decoder"`
	Log             LogConfig     `yaml:"log"`
	Metrics         MetricsConfig `yaml:"metrics"`
}

func Default() Config {
	return Config{
		DefaultModel:    "medium",
		Preload:         true,
		PreloadedModels: []string{"medium"},
		HTTP: HTTPConfig{
			Bind:            "0.0.0.0",
			Port:            8000,
			MaxUploadMemory: 32 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Models: ModelsConfig{
			AutoDownload:   true,
			VerifyChecksum: true,
		},
		Decoder: DecoderConfig{
			Command:    "ffmpeg",
			SampleRate: 16000,
		},
		Log:     LogConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.HTTP.Bind, strconv.Itoa(c.HTTP.Port))
}

type LoadOptions struct {
	// Path is an optional YAML file. A missing file is an error.
	Path string
	// EnvFile is an optional dotenv file. A missing file is ignored.
	EnvFile string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load layers defaults, the YAML file, the dotenv file and the environment,
// later sources winning. Values already present in the environment take
// precedence over the dotenv file. The result is not validated: callers
// apply their own overrides and then call Validate.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if opts.EnvFile != "" {
		dotenv, err := godotenv.Read(opts.EnvFile)
		if err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read env file: %w", err)
		}
		lookup = layered(lookup, dotenv)
	}

	if err := applyEnvOverrides(&cfg, lookup); err != nil {
		return cfg, err
	}

	if cfg.Models.Dir == "" {
		dir, err := platform.DefaultModelDir()
		if err != nil {
			return cfg, fmt.Errorf("resolve model directory: %w", err)
		}
		cfg.Models.Dir = dir
	}
	return cfg, nil
}

func layered(primary func(string) (string, bool), fallback map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if value, ok := primary(key); ok {
			return value, true
		}
		value, ok := fallback[key]
		return value, ok
	}
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	o := overrider{lookup: lookup}

	o.string(&cfg.DefaultModel, "DEFAULT_MODEL")
	o.bool(&cfg.Preload, "PRELOAD")
	o.list(&cfg.PreloadedModels, "PRELOADED_MODELS")

	o.string(&cfg.HTTP.Bind, "VOXAPI_HTTP_BIND")
	o.int(&cfg.HTTP.Port, "VOXAPI_HTTP_PORT")
	o.int64(&cfg.HTTP.MaxUploadMemory, "VOXAPI_HTTP_MAX_UPLOAD_MEMORY")
	o.duration(&cfg.HTTP.ShutdownTimeout, "VOXAPI_HTTP_SHUTDOWN_TIMEOUT")
	o.string(&cfg.Models.Dir, "VOXAPI_MODELS_DIR")
	o.bool(&cfg.Models.AutoDownload, "VOXAPI_MODELS_AUTO_DOWNLOAD")
	o.bool(&cfg.Models.VerifyChecksum, "VOXAPI_MODELS_VERIFY_CHECKSUM")
	o.string(&cfg.Engine.Path, "VOXAPI_ENGINE_PATH")
	o.int(&cfg.Engine.Threads, "VOXAPI_ENGINE_THREADS")
	o.string(&cfg.Decoder.Command, "VOXAPI_DECODER_COMMAND")
	o.int(&cfg.Decoder.SampleRate, "VOXAPI_DECODER_SAMPLE_RATE")
	o.duration(&cfg.Decoder.Timeout, "VOXAPI_DECODER_TIMEOUT")
	o.string(&cfg.Log.Level, "VOXAPI_LOG_LEVEL")
	o.bool(&cfg.Log.JSON, "VOXAPI_LOG_JSON")
	o.bool(&cfg.Metrics.Enabled, "VOXAPI_METRICS_ENABLED")

	return errors.Join(o.errs...)
}

type overrider struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (o *overrider) value(key string) (string, bool) {
	value, ok := o.lookup(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (o *overrider) fail(key, value string, err error) {
	o.errs = append(o.errs, fmt.Errorf("invalid %s=%q: %w", key, value, err))
}

func (o *overrider) string(target *string, key string) {
	if value, ok := o.value(key); ok {
		*target = value
	}
}

func (o *overrider) int(target *int, key string) {
	if value, ok := o.value(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			o.fail(key, value, err)
			return
		}
		*target = parsed
	}
}

func (o *overrider) int64(target *int64, key string) {
	if value, ok := o.value(key); ok {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			o.fail(key, value, err)
			return
		}
		*target = parsed
	}
}

func (o *overrider) bool(target *bool, key string) {
	if value, ok := o.value(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			o.fail(key, value, err)
			return
		}
		*target = parsed
	}
}

func (o *overrider) duration(target *time.Duration, key string) {
	if value, ok := o.value(key); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			o.fail(key, value, err)
			return
		}
		*target = parsed
	}
}

// list accepts a JSON array or a comma separated list.
func (o *overrider) list(target *[]string, key string) {
	value, ok := o.value(key)
	if !ok {
		return
	}

	var items []string
	if strings.HasPrefix(value, "[") {
		if err := json.Unmarshal([]byte(value), &items); err != nil {
			o.fail(key, value, err)
			return
		}
	} else {
		items = strings.Split(value, ",")
	}

	trimmed := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	*target = trimmed
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DefaultModel) == "" {
		return errors.New("default_model must not be empty")
	}
	if c.Preload && len(c.PreloadedModels) == 0 {
		return errors.New("preloaded_models must not be empty when preload is enabled")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if c.HTTP.MaxUploadMemory <= 0 {
		return errors.New("http.max_upload_memory must be positive")
	}
	if c.HTTP.ShutdownTimeout < 0 {
		return errors.New("http.shutdown_timeout must be >= 0")
	}
	if strings.TrimSpace(c.Models.Dir) == "" {
		return errors.New("models.dir must not be empty")
	}
	if c.Engine.Threads < 0 {
		return errors.New("engine.threads must be >= 0")
	}
	if strings.TrimSpace(c.Decoder.Command) == "" {
		return errors.New("decoder.command must not be empty")
	}
	if c.Decoder.SampleRate != audio.SampleRate {
		return fmt.Errorf("decoder.sample_rate must be %d", audio.SampleRate)
	}
	if c.Decoder.Timeout < 0 {
		return errors.New("decoder.timeout must be >= 0")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
