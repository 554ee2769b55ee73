package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/config"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
)

// #region main
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// #endregion main

// #region root
// env is the state shared by every subcommand once config is loaded.
type env struct {
	cfg       config.Config
	logger    *slog.Logger
	model     *model.Model
	modelHash string
}

func newRootCmd() *cobra.Command {
	var cfgPath, modelPath string
	e := &env{}

	root := &cobra.Command{
		Use:          "controller",
		Short:        "Active-inference policy planner",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return e.load(cfgPath, modelPath)
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (PLANNER_* env vars override it)")
	root.PersistentFlags().StringVar(&modelPath, "model", "", "path to the model file, overrides config")

	root.AddCommand(newEvaluateCmd(e), newPoliciesCmd(e), newServeCmd(e))
	return root
}

func (e *env) load(cfgPath, modelPath string) error {
	cfg, err := config.Load(cfgPath, func(c *config.Config) {
		if modelPath != "" {
			c.Model = modelPath
		}
	})
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.ToLoggingConfig())
	if err != nil {
		return err
	}
	data, err := os.ReadFile(cfg.Model)
	if err != nil {
		return fmt.Errorf("read model %s: %w", cfg.Model, err)
	}
	m, err := model.Parse(data, filepath.Ext(cfg.Model))
	if err != nil {
		return fmt.Errorf("parse model %s: %w", cfg.Model, err)
	}
	sum := sha256.Sum256(data)

	e.cfg = cfg
	e.logger = logger
	e.model = m
	e.modelHash = hex.EncodeToString(sum[:8])
	logger.Debug("model loaded", "path", cfg.Model, "hash", e.modelHash, "factors", len(m.B), "modalities", len(m.A))
	return nil
}

func (e *env) planner(opts ...planner.Option) (*planner.Planner, error) {
	opts = append([]planner.Option{planner.WithLogger(e.logger)}, opts...)
	return planner.New(e.model, e.cfg.ToPlannerConfig(), opts...)
}

// rng returns the selection generator and its seed. Without a configured
// seed a random one is drawn, so decision records can still name it.
func (e *env) rng() (*rand.Rand, [2]uint64) {
	seed, ok := e.cfg.SeedPair()
	if !ok {
		seed = [2]uint64{rand.Uint64(), rand.Uint64()}
	}
	return rand.New(rand.NewPCG(seed[0], seed[1])), seed
}

// #endregion root
