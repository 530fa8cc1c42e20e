// Package config loads the stage chain and stream settings of rtlmsd from a
// configuration file and the environment.
package config

import (
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/bemasher/rtlmsd/msd"
)

// EnvPrefix is prepended to configuration keys when looking them up in the
// environment, RTLMSD_SAMPLERATE overrides samplerate.
const EnvPrefix = "RTLMSD"

const (
	DefaultSampleRate = 2400000
	DefaultBlockSize  = 16384
)

// Stage is one filter/decimate stage.
type Stage struct {
	M    int       `mapstructure:"m" json:"m" validate:"gte=1"`
	Coef []float32 `mapstructure:"coef" json:"coef" validate:"required,min=1"`
}

// Low pass tables of the default chain, Hamming windowed sinc with unity
// gain at DC and the cutoff at the decimated Nyquist frequency.
var (
	defaultCoef10 = []float32{
		-0.00020354, -0.00066898, -0.00132853, -0.00227244, -0.00348113,
		-0.00478170, -0.00583345, -0.00614999, -0.00515851, -0.00228950,
		0.00291680, 0.01070557, 0.02102369, 0.03347458, 0.04732339,
		0.06155612, 0.07498701, 0.08640007, 0.09470396, 0.09907658,
		0.09907658, 0.09470396, 0.08640007, 0.07498701, 0.06155612,
		0.04732339, 0.03347458, 0.02102369, 0.01070557, 0.00291680,
		-0.00228950, -0.00515851, -0.00614999, -0.00583345, -0.00478170,
		-0.00348113, -0.00227244, -0.00132853, -0.00066898, -0.00020354,
	}

	defaultCoef5 = []float32{
		0.00054152, 0.00172743, 0.00311306, 0.00388338, 0.00226401,
		-0.00335292, -0.01260424, -0.02181395, -0.02428940, -0.01267496,
		0.01740843, 0.06416342, 0.11868231, 0.16718149, 0.19577042,
		0.19577042, 0.16718149, 0.11868231, 0.06416342, 0.01740843,
		-0.01267496, -0.02428940, -0.02181395, -0.01260424, -0.00335292,
		0.00226401, 0.00388338, 0.00311306, 0.00172743, 0.00054152,
	}
)

type Config struct {
	// Input sample rate in Hz.
	SampleRate uint32 `mapstructure:"samplerate" json:"samplerate" validate:"gt=0"`

	// Bytes read from the source per block, two per I/Q pair.
	BlockSize int `mapstructure:"blocksize" json:"blocksize" validate:"gt=0,even"`

	Stages []Stage `mapstructure:"stages" json:"stages" validate:"required,min=1,dive"`
}

// Default decimates 2.4 MS/s to 48 kS/s in two stages.
func Default() Config {
	return Config{
		SampleRate: DefaultSampleRate,
		BlockSize:  DefaultBlockSize,
		Stages: []Stage{
			{M: 10, Coef: append([]float32(nil), defaultCoef10...)},
			{M: 5, Coef: append([]float32(nil), defaultCoef5...)},
		},
	}
}

// Load reads the named configuration file over the defaults. Keys may be
// overridden by environment variables. An empty name loads only the
// defaults and the environment. The result is validated.
func Load(name string) (cfg Config, err error) {
	cfg = Default()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	// Keys must be known to viper for the environment to override them.
	v.SetDefault("samplerate", cfg.SampleRate)
	v.SetDefault("blocksize", cfg.BlockSize)

	if name != "" {
		v.SetConfigFile(name)
		if err = v.ReadInConfig(); err != nil {
			return cfg, errors.Wrapf(err, "read config %q", name)
		}

		// Unmarshal reuses existing slice elements.
		if v.IsSet("stages") {
			cfg.Stages = nil
		}
	}

	if err = v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}

	return cfg, cfg.Validate()
}

// LoadEnv loads environment variables from the given .env files. With no
// files, .env in the working directory is loaded if it exists.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrap(err, "load .env")
		}
		return nil
	}

	return errors.Wrap(godotenv.Load(files...), "load env files")
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterValidation("even", func(fl validator.FieldLevel) bool {
			return fl.Field().Int()%2 == 0
		})
	})
	return validate
}

// Validate checks every field against its constraints.
func (c Config) Validate() error {
	return errors.Wrap(getValidator().Struct(c), "invalid config")
}

// Factor returns the total decimation factor of the chain.
func (c Config) Factor() int {
	m := 1
	for _, s := range c.Stages {
		m *= s.M
	}
	return m
}

// OutputRate returns the sample rate in Hz after decimation.
func (c Config) OutputRate() float64 {
	return float64(c.SampleRate) / float64(c.Factor())
}

// MSD converts the chain for msd.New.
func (c Config) MSD() []msd.StageConfig {
	stages := make([]msd.StageConfig, len(c.Stages))
	for idx, s := range c.Stages {
		stages[idx] = msd.StageConfig{M: s.M, Coef: s.Coef}
	}
	return stages
}
