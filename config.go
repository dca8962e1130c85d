package main

import (
	"errors"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"deflickarr/deflick"
)

type Config struct {
	BindAddress                 string           `yaml:"bindAddress"`
	Port                        int32            `yaml:"port"`
	ProcessFolder               string           `yaml:"processFolder"`
	DatabasePath                string           `yaml:"databasePath"`
	LogPath                     string           `yaml:"logPath"`
	Workers                     int              `yaml:"workers"`
	DeleteInputFileWhenFinished *bool            `yaml:"deleteInputFileWhenFinished"`
	DeleteOutputIfAlreadyExist  *bool            `yaml:"deleteOutputIfAlreadyExist"`
	FFmpegOptions               FFmpegOptions    `yaml:"ffmpegOptions"`
	Deflicker                   DeflickerOptions `yaml:"deflicker"`
}

type FFmpegOptions struct {
	HWAccelDecodeFlag string `yaml:"HWAccelDecodeFlag"`
	HWAccelEncodeFlag string `yaml:"HWAccelEncodeFlag"`
}

type DeflickerOptions struct {
	Mode             string  `yaml:"mode"`
	WindowSize       int     `yaml:"windowSize"`
	BatchSize        int     `yaml:"batchSize"`
	NumIter          int     `yaml:"numIter"`
	MinimumPatchSize int     `yaml:"minimumPatchSize"`
	GuideWeight      float64 `yaml:"guideWeight"`
	Seed             int64   `yaml:"seed"`
	MemoryLimitMB    int     `yaml:"memoryLimitMB"`
	SearchWorkers    int     `yaml:"searchWorkers"`
}

// EngineOptions maps the configuration surface onto engine options and
// validates them, so bad settings surface at startup instead of mid-run.
func (d *DeflickerOptions) EngineOptions() (deflick.Options, error) {
	mode, err := deflick.ParseMode(d.Mode)
	if err != nil {
		return deflick.Options{}, err
	}

	opts := deflick.Options{
		Mode:             mode,
		WindowSize:       d.WindowSize,
		BatchSize:        d.BatchSize,
		Iterations:       d.NumIter,
		MinimumPatchSize: d.MinimumPatchSize,
		GuideWeight:      d.GuideWeight,
		Seed:             d.Seed,
		Workers:          d.SearchWorkers,
		MemoryLimitMB:    d.MemoryLimitMB,
	}

	if err := opts.Validate(); err != nil {
		return deflick.Options{}, err
	}

	return opts, nil
}

// Verify config and set defaults
func verifyConfig(config *Config) error {
	if config == nil {
		return errors.New("cannot verify config, config is nil")
	}

	if config.BindAddress == "" {
		config.BindAddress = "127.0.0.1"
	}

	if config.Port == 0 {
		config.Port = 80
	}

	if config.ProcessFolder == "" {
		return errors.New("missing temp process folder in config")
	}

	if config.DatabasePath == "" {
		return errors.New("missing database path in config")
	}

	if config.Workers == 0 {
		config.Workers = 1
	}

	if config.LogPath == "" {
		config.LogPath = "./logs"
	}

	if config.DeleteInputFileWhenFinished == nil {
		defaultVal := false
		config.DeleteInputFileWhenFinished = &defaultVal
	}

	if config.DeleteOutputIfAlreadyExist == nil {
		defaultVal := false
		config.DeleteOutputIfAlreadyExist = &defaultVal
	}

	if config.Deflicker.Mode == "" {
		config.Deflicker.Mode = string(deflick.ModeBalanced)
	}

	if config.Deflicker.WindowSize == 0 {
		config.Deflicker.WindowSize = 15
	}

	if config.Deflicker.BatchSize == 0 {
		config.Deflicker.BatchSize = 2
	}

	if config.Deflicker.GuideWeight == 0 {
		config.Deflicker.GuideWeight = deflick.DefaultGuideWeight
	}

	// Invalid deflicker settings are fatal before any batch starts
	if _, err := config.Deflicker.EngineOptions(); err != nil {
		return err
	}

	return nil
}

func GetConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	config := Config{}

	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, err
	}

	// Override with env variables if they are passed in
	err = envconfig.ProcessWithOptions("", &config, envconfig.Options{SplitWords: true})
	if err != nil {
		return Config{}, err
	}

	err = verifyConfig(&config)
	if err != nil {
		return Config{}, err
	}

	return config, nil
}
