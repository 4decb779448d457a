// Package config - Settings for the meter reading pipeline, loaded with viper.
package config

import (
	"image"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/nvr-ai/go-meter/controller"
	"github.com/nvr-ai/go-meter/images"
	"github.com/nvr-ai/go-meter/inference"
	"github.com/nvr-ai/go-meter/inference/detectors"
	"github.com/nvr-ai/go-meter/inference/providers"
	"github.com/nvr-ai/go-meter/logging"
	"github.com/nvr-ai/go-meter/storage"
)

// EnvPrefix prefixes every environment override, e.g. METER_STORAGE_DIR.
const EnvPrefix = "METER"

// ErrInvalidSettings is returned by Validate.
var ErrInvalidSettings = errors.New("invalid settings")

// StageSettings configures one detector.
type StageSettings struct {
	Backend    string  `mapstructure:"backend" yaml:"backend"`
	Config     string  `mapstructure:"config" yaml:"config"`
	Weights    string  `mapstructure:"weights" yaml:"weights"`
	InputSize  int     `mapstructure:"input_size" yaml:"input_size"`
	Confidence float64 `mapstructure:"confidence" yaml:"confidence"`
	NMS        float64 `mapstructure:"nms" yaml:"nms"`
}

// Settings is the complete configuration.
type Settings struct {
	// Assets is the directory the model files are staged into and loaded from.
	Assets string `mapstructure:"assets" yaml:"assets"`

	Region StageSettings `mapstructure:"region" yaml:"region"`
	Digits StageSettings `mapstructure:"digits" yaml:"digits"`

	Controller struct {
		RegionClass int `mapstructure:"region_class" yaml:"region_class"`
		MarginX     int `mapstructure:"margin_x" yaml:"margin_x"`
		MarginY     int `mapstructure:"margin_y" yaml:"margin_y"`
	} `mapstructure:"controller" yaml:"controller"`

	Storage struct {
		Dir             string `mapstructure:"dir" yaml:"dir"`
		Quality         int    `mapstructure:"quality" yaml:"quality"`
		OriginalQuality int    `mapstructure:"original_quality" yaml:"original_quality"`
	} `mapstructure:"storage" yaml:"storage"`

	Runtime struct {
		Library  string           `mapstructure:"library" yaml:"library"`
		Provider providers.Config `mapstructure:"provider" yaml:"provider"`
	} `mapstructure:"runtime" yaml:"runtime"`

	Log logging.Config `mapstructure:"log" yaml:"log"`
}

// setDefaults registers the default value of every key on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("assets", "assets")

	v.SetDefault("region.backend", string(inference.EngineDarknet))
	v.SetDefault("region.config", "yolov3-tiny-2cls-320.cfg")
	v.SetDefault("region.weights", "yolov3-tiny-2cls-320.weights")
	v.SetDefault("region.input_size", 320)
	v.SetDefault("region.confidence", 0.3)
	v.SetDefault("region.nms", 0.4)

	v.SetDefault("digits.backend", string(inference.EngineDarknet))
	v.SetDefault("digits.config", "yolov3-tiny-10cls-320.cfg")
	v.SetDefault("digits.weights", "yolov3-tiny-10cls-320.4.weights")
	v.SetDefault("digits.input_size", 320)
	v.SetDefault("digits.confidence", 0.3)
	v.SetDefault("digits.nms", 0.4)

	v.SetDefault("controller.region_class", 1)
	v.SetDefault("controller.margin_x", 30)
	v.SetDefault("controller.margin_y", 10)

	v.SetDefault("storage.dir", "ElectroCounters")
	v.SetDefault("storage.quality", 50)
	v.SetDefault("storage.original_quality", 100)

	v.SetDefault("runtime.library", "")
	v.SetDefault("runtime.provider.backend", string(providers.CPUProviderBackend))
	v.SetDefault("runtime.provider.intra_op_threads", 0)
	v.SetDefault("runtime.provider.inter_op_threads", 0)

	log := logging.DefaultConfig()
	v.SetDefault("log.level", log.Level)
	v.SetDefault("log.format", log.Format)
	v.SetDefault("log.file", log.File)
	v.SetDefault("log.max_size_mb", log.MaxSizeMB)
	v.SetDefault("log.max_backups", log.MaxBackups)
	v.SetDefault("log.max_age_days", log.MaxAgeDays)
}

// New returns a viper instance with defaults and environment overrides set up.
//
// Nested keys map to environment variables with dots replaced by underscores,
// so "storage.dir" is read from METER_STORAGE_DIR.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Defaults returns the settings with no file, environment or flags applied.
func Defaults() Settings {
	v := viper.New()
	setDefaults(v)
	var s Settings
	// Defaults are static and always decode.
	_ = v.Unmarshal(&s)
	return s
}

// Load reads settings from v, after reading path into it when path is not empty.
//
// Arguments:
//   - v: A viper instance from New, possibly with flags bound.
//   - path: A YAML file; empty means defaults, environment and flags only.
//
// Returns:
//   - Settings: The decoded and validated settings.
//   - error: An error if the file cannot be read or the settings are invalid.
//
// @example
//
//	v := config.New()
//	_ = v.BindPFlags(cmd.Flags())
//	settings, err := config.Load(v, "meter.yaml")
func Load(v *viper.Viper, path string) (Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, errors.Wrapf(err, "reading config %s", path)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decoding settings")
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects out of range thresholds and sizes and missing artifact names.
func (s Settings) Validate() error {
	if err := s.Region.validate(); err != nil {
		return errors.Wrap(err, "region")
	}
	if err := s.Digits.validate(); err != nil {
		return errors.Wrap(err, "digits")
	}
	if s.Controller.MarginX < 0 || s.Controller.MarginY < 0 {
		return errors.Wrapf(ErrInvalidSettings, "margin (%d,%d) must not be negative",
			s.Controller.MarginX, s.Controller.MarginY)
	}
	if s.Controller.RegionClass < 0 {
		return errors.Wrapf(ErrInvalidSettings, "region class %d must not be negative", s.Controller.RegionClass)
	}
	if s.Storage.Dir == "" {
		return errors.Wrap(ErrInvalidSettings, "storage dir is required")
	}
	for _, q := range []int{s.Storage.Quality, s.Storage.OriginalQuality} {
		if q < 1 || q > 100 {
			return errors.Wrapf(ErrInvalidSettings, "jpeg quality %d outside [1,100]", q)
		}
	}
	return s.Runtime.Provider.Validate()
}

func (s StageSettings) validate() error {
	switch inference.EngineType(s.Backend) {
	case inference.EngineDarknet:
		if s.Config == "" {
			return errors.Wrap(ErrInvalidSettings, "darknet backend needs a config file")
		}
	case inference.EngineONNX:
	default:
		return errors.Wrapf(inference.ErrUnknownBackend, "%q", s.Backend)
	}
	if s.Weights == "" {
		return errors.Wrap(ErrInvalidSettings, "weights are required")
	}
	if s.InputSize <= 0 {
		return errors.Wrapf(ErrInvalidSettings, "input size %d must be positive", s.InputSize)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return errors.Wrapf(ErrInvalidSettings, "confidence %v outside [0,1]", s.Confidence)
	}
	if s.NMS < 0 || s.NMS > 1 {
		return errors.Wrapf(ErrInvalidSettings, "nms %v outside [0,1]", s.NMS)
	}
	return nil
}

// DetectorConfig builds a detector config for one stage. Relative artifact
// paths are resolved against the assets directory.
func (s Settings) DetectorConfig(name string, stage StageSettings) detectors.Config {
	return detectors.Config{
		Name: name,
		Engine: inference.Spec{
			Backend:  inference.EngineType(stage.Backend),
			Config:   s.assetPath(stage.Config),
			Weights:  s.assetPath(stage.Weights),
			Provider: s.Runtime.Provider,
			Library:  s.Runtime.Library,
		},
		InputShape:          image.Pt(stage.InputSize, stage.InputSize),
		ConfidenceThreshold: float32(stage.Confidence),
		NMSThreshold:        float32(stage.NMS),
	}
}

// ControllerOptions returns the stage hand-off options.
func (s Settings) ControllerOptions() controller.Options {
	return controller.Options{
		RegionClassID: s.Controller.RegionClass,
		Margin:        images.Margin{X: s.Controller.MarginX, Y: s.Controller.MarginY},
	}
}

// StoreOptions returns store options with the configured qualities. The
// remaining fields keep their storage defaults.
func (s Settings) StoreOptions() storage.Options {
	opts := storage.DefaultOptions()
	opts.Quality = s.Storage.Quality
	opts.OriginalQuality = s.Storage.OriginalQuality
	return opts
}

func (s Settings) assetPath(name string) string {
	if name == "" || filepath.IsAbs(name) || s.Assets == "" {
		return name
	}
	return filepath.Join(s.Assets, name)
}
