package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/codec"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/eval"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/metrics"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/state"
)

// #region evaluate
func newEvaluateCmd(e *env) *cobra.Command {
	var steps int
	var beliefsJSON string

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run planning steps from the stored or given beliefs",
		Long: "Runs infer, eval and prior prediction for --steps timesteps. With db_path set, " +
			"beliefs come from the active stored version, each passing step commits a new " +
			"version and every decision is written to the provenance log.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := e.planner()
			if err != nil {
				return err
			}
			if e.cfg.DBPath != "" {
				return runStored(cmd.Context(), e, p, steps)
			}
			qs, err := startBeliefs(e.model, beliefsJSON)
			if err != nil {
				return err
			}
			return runStateless(cmd.Context(), e, p, qs, steps)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of planning steps")
	cmd.Flags().StringVar(&beliefsJSON, "beliefs", "", "initial beliefs as JSON, e.g. [[0.5,0.5]] (stateless mode, default uniform)")
	return cmd
}

func startBeliefs(m *model.Model, beliefsJSON string) (model.Beliefs, error) {
	if beliefsJSON == "" {
		return model.Uniform(m.NumStates()), nil
	}
	var qs model.Beliefs
	if err := json.Unmarshal([]byte(beliefsJSON), &qs); err != nil {
		return nil, fmt.Errorf("parse --beliefs: %w", err)
	}
	if err := m.ValidateBeliefs(qs); err != nil {
		return nil, fmt.Errorf("--beliefs: %w", err)
	}
	return qs, nil
}

// runStateless plans in memory and prints one decision per line.
func runStateless(ctx context.Context, e *env, p *planner.Planner, qs model.Beliefs, steps int) error {
	rng, seed := e.rng()
	harness := eval.NewEvalHarness(e.cfg.ToEvalConfig())
	enc := json.NewEncoder(os.Stdout)

	for t := 0; t < steps; t++ {
		d, err := p.Infer(ctx, qs, rng)
		if err != nil {
			return err
		}
		res := harness.Run(d)
		rec := logging.NewDecisionRecord(t, qs, d, p.Config())
		rec.Settings = rec.Settings.WithSeed(seed, t)
		rec.EvalPassed = res.Passed
		if !res.Passed {
			rec.EvalReason = res.Reason
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
		if !res.Passed {
			continue
		}
		if qs, err = p.NextPrior(qs, d.Action); err != nil {
			return err
		}
	}
	return nil
}

// runStored is the agent loop over the belief version store.
func runStored(ctx context.Context, e *env, p *planner.Planner, steps int) error {
	store, err := state.NewStore(e.cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	current, err := store.GetCurrent()
	if errors.Is(err, sql.ErrNoRows) {
		e.logger.Info("no active state found, creating initial state")
		if current, err = store.CreateInitialState(e.model.NumStates()); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	if err := e.model.ValidateBeliefs(current.Beliefs); err != nil {
		return fmt.Errorf("active version %s does not fit the model: %w", current.VersionID, err)
	}

	rng, seed := e.rng()
	harness := eval.NewEvalHarness(e.cfg.ToEvalConfig())

	for i := 0; i < steps; i++ {
		d, err := p.Infer(ctx, current.Beliefs, rng)
		if err != nil {
			return err
		}
		res := harness.Run(d)

		rec := logging.NewDecisionRecord(current.Timestep, current.Beliefs, d, p.Config())
		rec.Settings = rec.Settings.WithSeed(seed, i)
		rec.EvalPassed = res.Passed
		if !res.Passed {
			rec.EvalReason = res.Reason
		}
		entry, err := rec.Entry(current.VersionID, e.modelHash, "infer")
		if err != nil {
			return err
		}

		if res.Passed {
			next, err := p.NextPrior(current.Beliefs, d.Action)
			if err != nil {
				return err
			}
			nr := state.NextRecord(current, next, entry.DecisionJSON)
			if err := store.CommitState(nr); err != nil {
				return err
			}
			entry.VersionID = nr.VersionID
			current = nr
		} else {
			e.logger.Warn("decision rejected", "version", current.VersionID, "reason", res.Reason)
		}

		entry.CreatedAt = time.Now().UTC()
		if err := logging.LogDecision(store.DB(), entry); err != nil {
			e.logger.Error("provenance log failed", "error", err)
		}
		fmt.Printf("[step %d] version=%s outcome=%s action=%v\n", rec.Timestep, shortID(entry.VersionID), entry.Outcome, d.Action)
	}
	return nil
}

// #endregion evaluate

// #region policies
func newPoliciesCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List the policies the planner scores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := e.planner()
			if err != nil {
				return err
			}
			policies := p.Policies()
			fmt.Printf("%d policies, horizon %d, controls %v\n", len(policies), p.Config().PolicyLen, p.NumControls())
			for i, pol := range policies {
				fmt.Printf("%5d  %v\n", i, [][]int(pol))
			}
			return nil
		},
	}
}

// #endregion policies

// #region serve
func newServeCmd(e *env) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the policy service over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector())
			p, err := e.planner(planner.WithMetrics(metrics.New(reg)))
			if err != nil {
				return err
			}

			lis, err := net.Listen("tcp", e.cfg.Listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", e.cfg.Listen, err)
			}
			var opts []codec.ServerOption
			opts = append(opts, codec.WithServerLogger(e.logger))
			if seed, ok := e.cfg.SeedPair(); ok {
				opts = append(opts, codec.WithSeed(seed[0], seed[1]))
			}
			srv := grpc.NewServer()
			codec.Register(srv, p, opts...)

			var metricsSrv *http.Server
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
				metricsSrv = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						e.logger.Error("metrics server failed", "error", err)
					}
				}()
			}

			go func() {
				<-ctx.Done()
				e.logger.Info("shutting down")
				srv.GracefulStop()
				if metricsSrv != nil {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
						e.logger.Error("metrics server shutdown failed", "error", err)
					}
				}
			}()

			e.logger.Info("policy service listening", "addr", lis.Addr().String(), "metrics", metricsAddr, "policies", len(p.Policies()))
			return srv.Serve(lis)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint, empty disables it")
	return cmd
}

// #endregion serve

// #region helpers
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion helpers
