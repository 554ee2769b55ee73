// Package config loads planner settings from a YAML file with PLANNER_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/eval"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/inductive"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/policy"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/rollout"
)

// #region types

// Config is the file form of every planner setting.
type Config struct {
	Model   string        `yaml:"model" validate:"required"`
	DBPath  string        `yaml:"db_path"`
	Listen  string        `yaml:"listen" validate:"omitempty,hostname_port"`
	Seed    []uint64      `yaml:"seed" validate:"omitempty,len=2"`
	Log     LogConfig     `yaml:"log"`
	Planner PlannerConfig `yaml:"planner"`
	Eval    EvalConfig    `yaml:"eval"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON    bool   `yaml:"json"`
	Service string `yaml:"service"`
}

// PlannerConfig flattens planner.Config and its nested rollout and selection settings.
type PlannerConfig struct {
	Gamma             float64         `yaml:"gamma" validate:"gte=0"`
	Alpha             float64         `yaml:"alpha" validate:"gte=0"`
	PolicyLen         int             `yaml:"policy_len" validate:"gte=1"`
	ControlFactors    []int           `yaml:"control_factors" validate:"omitempty,dive,gte=0"`
	Variant           string          `yaml:"variant" validate:"oneof=standard inductive full"`
	Mode              string          `yaml:"mode" validate:"oneof=deterministic stochastic"`
	Level             string          `yaml:"level" validate:"oneof=action policy"`
	UseUtility        bool            `yaml:"use_utility"`
	UseStatesInfoGain bool            `yaml:"use_states_info_gain"`
	UseParamInfoGain  bool            `yaml:"use_param_info_gain"`
	UseInductive      bool            `yaml:"use_inductive"`
	Inductive         InductiveConfig `yaml:"inductive"`
	Workers           int             `yaml:"workers" validate:"gte=0"`
}

// InductiveConfig mirrors inductive.Config.
type InductiveConfig struct {
	Threshold float64 `yaml:"threshold" validate:"gte=0,lte=1"`
	Depth     int     `yaml:"depth" validate:"gte=1"`
	Epsilon   float64 `yaml:"epsilon" validate:"gt=0,lte=1"`
}

// EvalConfig mirrors eval.EvalConfig.
type EvalConfig struct {
	Tolerance       float64 `yaml:"tolerance" validate:"gt=0"`
	EntropyBaseline float64 `yaml:"entropy_baseline" validate:"gte=0"`
}

// #endregion types

// #region defaults

// Default returns the component defaults in file form. Model is left empty.
func Default() Config {
	pc := planner.DefaultConfig()
	ic := pc.Rollout.Inductive
	ec := eval.DefaultEvalConfig()
	return Config{
		Listen: "localhost:50061",
		Log:    LogConfig{Level: "info", Service: "planner"},
		Planner: PlannerConfig{
			Gamma:             pc.Gamma,
			Alpha:             pc.Selection.Alpha,
			PolicyLen:         pc.PolicyLen,
			Variant:           string(pc.Rollout.Variant),
			Mode:              string(pc.Selection.Mode),
			Level:             string(pc.Selection.Level),
			UseUtility:        pc.Rollout.UseUtility,
			UseStatesInfoGain: pc.Rollout.UseStatesInfoGain,
			UseParamInfoGain:  pc.Rollout.UseParamInfoGain,
			UseInductive:      pc.Rollout.UseInductive,
			Inductive: InductiveConfig{
				Threshold: ic.Threshold,
				Depth:     ic.Depth,
				Epsilon:   ic.Epsilon,
			},
		},
		Eval: EvalConfig{
			Tolerance:       ec.Tolerance,
			EntropyBaseline: ec.EntropyBaseline,
		},
	}
}

// #endregion defaults

// #region load

// Load starts from Default, overlays the YAML file at path when path is
// not empty, applies PLANNER_* environment overrides, then overrides, and
// validates.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables:
// PLANNER_MODEL, PLANNER_DB_PATH, PLANNER_LISTEN, PLANNER_LOG_LEVEL,
// PLANNER_LOG_JSON, PLANNER_GAMMA, PLANNER_ALPHA, PLANNER_POLICY_LEN,
// PLANNER_VARIANT, PLANNER_MODE, PLANNER_LEVEL, PLANNER_USE_INDUCTIVE,
// PLANNER_USE_PARAM_INFO_GAIN, PLANNER_WORKERS.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("PLANNER_MODEL", &c.Model)
	str("PLANNER_DB_PATH", &c.DBPath)
	str("PLANNER_LISTEN", &c.Listen)
	str("PLANNER_LOG_LEVEL", &c.Log.Level)
	boolean("PLANNER_LOG_JSON", &c.Log.JSON)
	float("PLANNER_GAMMA", &c.Planner.Gamma)
	float("PLANNER_ALPHA", &c.Planner.Alpha)
	integer("PLANNER_POLICY_LEN", &c.Planner.PolicyLen)
	str("PLANNER_VARIANT", &c.Planner.Variant)
	str("PLANNER_MODE", &c.Planner.Mode)
	str("PLANNER_LEVEL", &c.Planner.Level)
	boolean("PLANNER_USE_INDUCTIVE", &c.Planner.UseInductive)
	boolean("PLANNER_USE_PARAM_INFO_GAIN", &c.Planner.UseParamInfoGain)
	integer("PLANNER_WORKERS", &c.Planner.Workers)

	if len(errs) > 0 {
		return fmt.Errorf("env overrides: %w", errors.Join(errs...))
	}
	return nil
}

var validate = validator.New()

// Validate checks the struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// #endregion load

// #region convert

// ToPlannerConfig builds the planner configuration.
func (c Config) ToPlannerConfig() planner.Config {
	p := c.Planner
	return planner.Config{
		Rollout: rollout.Config{
			UseUtility:        p.UseUtility,
			UseStatesInfoGain: p.UseStatesInfoGain,
			UseParamInfoGain:  p.UseParamInfoGain,
			UseInductive:      p.UseInductive,
			Variant:           rollout.Variant(p.Variant),
			Inductive: inductive.Config{
				Threshold: p.Inductive.Threshold,
				Depth:     p.Inductive.Depth,
				Epsilon:   p.Inductive.Epsilon,
			},
			Workers: p.Workers,
		},
		Selection: policy.SelectionConfig{
			Mode:  policy.Mode(p.Mode),
			Level: policy.Level(p.Level),
			Alpha: p.Alpha,
		},
		Gamma:          p.Gamma,
		PolicyLen:      p.PolicyLen,
		ControlFactors: p.ControlFactors,
	}
}

// ToLoggingConfig builds the logger configuration.
func (c Config) ToLoggingConfig() logging.Config {
	return logging.Config{Level: c.Log.Level, JSON: c.Log.JSON, Service: c.Log.Service}
}

// ToEvalConfig builds the eval thresholds.
func (c Config) ToEvalConfig() eval.EvalConfig {
	return eval.EvalConfig{Tolerance: c.Eval.Tolerance, EntropyBaseline: c.Eval.EntropyBaseline}
}

// SeedPair returns the configured seed, or ok=false when none is set.
func (c Config) SeedPair() (seed [2]uint64, ok bool) {
	if len(c.Seed) != 2 {
		return seed, false
	}
	return [2]uint64{c.Seed[0], c.Seed[1]}, true
}

// #endregion convert
