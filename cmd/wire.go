package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/studybuddy/internal/config"
	"github.com/abhisek/studybuddy/internal/gateway"
	"github.com/abhisek/studybuddy/internal/llm"
	"github.com/abhisek/studybuddy/internal/monitor"
	"github.com/abhisek/studybuddy/internal/observability"
	"github.com/abhisek/studybuddy/internal/safety"
	"github.com/abhisek/studybuddy/internal/store"
)

// stack holds the components shared by the commands. Provider, Detector
// and Metrics are only built by withGateway.
type stack struct {
	cfg     config.Config
	logger  *zap.Logger
	kv      store.KV
	events  store.EventRepo
	monitor *monitor.Service

	detector *safety.Detector
	provider llm.Provider
	metrics  *observability.Metrics

	closers []func() error
}

// openStack loads configuration and opens the store and monitor.
func openStack(cmd *cobra.Command) (*stack, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cfg.Log)
	s := &stack{cfg: cfg, logger: logger}
	s.closers = append(s.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	kv, err := store.Open(cmd.Context(), cfg.Store, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	s.kv = kv
	s.closers = append(s.closers, kv.Close)
	s.events = store.NewEventRepo(kv, store.DefaultMaxLLMEvents)

	var channel monitor.AlertChannel
	if len(cfg.Monitor.Kafka.Brokers) > 0 {
		kc, err := monitor.NewKafkaChannel(cfg.Monitor.Kafka)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("alert channel: %w", err)
		}
		channel = kc
		s.closers = append(s.closers, kc.Close)
	}
	s.monitor = monitor.New(kv, channel, logger)
	return s, nil
}

// withGateway adds the detector, the model provider and metrics.
func (s *stack) withGateway(ctx context.Context) error {
	detector, err := newDetector(s.cfg.Safety.RulesFile)
	if err != nil {
		return err
	}
	s.detector = detector

	provider, err := llm.NewProvider(ctx, s.cfg.LLM, s.events, s.logger)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}
	s.provider = provider
	if s.cfg.LLM.Resolved() == llm.ProviderOffline {
		s.logger.Info("no model credential configured, using the offline responder")
	}

	s.metrics = observability.NewMetrics(s.cfg.Metrics.Namespace, prometheus.NewRegistry())
	return nil
}

func (s *stack) gatewayDeps() gateway.Deps {
	return gateway.Deps{
		Provider:  s.provider,
		Store:     s.kv,
		Detector:  s.detector,
		Escalator: s.monitor,
		Metrics:   s.metrics,
		Logger:    s.logger,
	}
}

// Close releases everything in reverse order of opening.
func (s *stack) Close() {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("shutdown", zap.Error(err))
	}
}

// newDetector uses the embedded rules unless path names an override file.
func newDetector(path string) (*safety.Detector, error) {
	if path == "" {
		return safety.Default(), nil
	}
	rules, err := safety.LoadRules(path)
	if err != nil {
		return nil, fmt.Errorf("load safety rules: %w", err)
	}
	d, err := safety.New(rules)
	if err != nil {
		return nil, fmt.Errorf("safety rules %s: %w", path, err)
	}
	return d, nil
}
