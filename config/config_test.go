package config

import (
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/bemasher/rtlmsd/msd"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := ioutil.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("%+v\n", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("%+v\n", err)
	}

	if cfg.Factor() != 50 {
		t.Fatalf("expected factor 50, got %d\n", cfg.Factor())
	}
	if cfg.OutputRate() != 48000 {
		t.Fatalf("expected 48000 Hz, got %f\n", cfg.OutputRate())
	}

	d, err := msd.New(cfg.MSD())
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	if d.Factor() != cfg.Factor() {
		t.Fatalf("expected factor %d, got %d\n", cfg.Factor(), d.Factor())
	}
	if d.Stage(0).Taps() != 40 || d.Stage(1).Taps() != 30 {
		t.Fatalf("unexpected taps: %d, %d\n", d.Stage(0).Taps(), d.Stage(1).Taps())
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "rtlmsd.yml", `
samplerate: 1200000
blocksize: 4096
stages:
  - m: 4
    coef: [0.25, 0.25, 0.25, 0.25]
  - m: 2
    coef: [0.5, 0.5]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}

	if cfg.SampleRate != 1200000 || cfg.BlockSize != 4096 {
		t.Fatalf("unexpected settings: %+v\n", cfg)
	}
	if len(cfg.Stages) != 2 {
		t.Fatalf("expected 2 stages, got %d\n", len(cfg.Stages))
	}
	if cfg.OutputRate() != 150000 {
		t.Fatalf("expected 150000 Hz, got %f\n", cfg.OutputRate())
	}

	stages := cfg.MSD()
	if len(stages[0].Coef) != 4 || stages[0].Coef[0] != 0.25 {
		t.Fatalf("unexpected coefficients: %v\n", stages[0].Coef)
	}
	if len(stages[1].Coef) != 2 || stages[1].Coef[1] != 0.5 {
		t.Fatalf("unexpected coefficients: %v\n", stages[1].Coef)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "rtlmsd.json", `{"stages": [{"m": 8, "coef": [0.125, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125, 0.125]}]}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}

	// Unset keys keep their defaults.
	if cfg.SampleRate != DefaultSampleRate || cfg.BlockSize != DefaultBlockSize {
		t.Fatalf("expected defaults, got %+v\n", cfg)
	}
	if len(cfg.Stages) != 1 || cfg.Stages[0].M != 8 {
		t.Fatalf("unexpected stages: %+v\n", cfg.Stages)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("RTLMSD_SAMPLERATE", "2048000")
	t.Setenv("RTLMSD_BLOCKSIZE", "8192")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("%+v\n", err)
	}

	if cfg.SampleRate != 2048000 || cfg.BlockSize != 8192 {
		t.Fatalf("environment not applied: %+v\n", cfg)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		cfg  func(*Config)
	}{
		{"no stages", func(c *Config) { c.Stages = nil }},
		{"zero factor", func(c *Config) { c.Stages[0].M = 0 }},
		{"no coefficients", func(c *Config) { c.Stages[1].Coef = nil }},
		{"empty coefficients", func(c *Config) { c.Stages[1].Coef = []float32{} }},
		{"odd block size", func(c *Config) { c.BlockSize = 4095 }},
		{"zero block size", func(c *Config) { c.BlockSize = 0 }},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.cfg(&cfg)

			err := cfg.Validate()
			var verr validator.ValidationErrors
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation errors, got %+v\n", err)
			}
		})
	}

	cfg := Default()
	cfg.Stages[0] = Stage{M: 2, Coef: []float32{0.5, 0.5}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("%+v\n", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := writeFile(t, "bad.yml", "stages:\n  - m: 0\n    coef: [1]\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid stage")
	}
}

func TestLoadEnv(t *testing.T) {
	os.Unsetenv("RTLMSD_TEST_KEY")
	defer os.Unsetenv("RTLMSD_TEST_KEY")

	path := writeFile(t, ".env", "RTLMSD_TEST_KEY=value\n")
	if err := LoadEnv(path); err != nil {
		t.Fatalf("%+v\n", err)
	}
	if v := os.Getenv("RTLMSD_TEST_KEY"); v != "value" {
		t.Fatalf("expected value, got %q\n", v)
	}

	if err := LoadEnv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected error for missing env file")
	}
}

func TestDefaultCoefficients(t *testing.T) {
	for _, s := range Default().Stages {
		sum := 0.0
		for idx := range s.Coef {
			sum += float64(s.Coef[idx])

			if s.Coef[idx] != s.Coef[len(s.Coef)-1-idx] {
				t.Fatalf("m %d: not symmetric at %d\n", s.M, idx)
			}
		}
		if math.Abs(sum-1) > 1e-5 {
			t.Fatalf("m %d: expected unity DC gain, got %f\n", s.M, sum)
		}
	}

	// Tables are copied so callers can't modify the defaults.
	cfg := Default()
	cfg.Stages[0].Coef[0] = 1
	if Default().Stages[0].Coef[0] == 1 {
		t.Fatal("default coefficients modified")
	}

	// Stages must list their coefficients.
	path := writeFile(t, "taps.yml", "stages:\n  - m: 4\n    taps: 16\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for stage without coefficients")
	}
}
