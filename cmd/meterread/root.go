package main

import (
	"log/slog"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nvr-ai/go-meter/config"
	"github.com/nvr-ai/go-meter/controller"
	"github.com/nvr-ai/go-meter/inference/detectors"
	"github.com/nvr-ai/go-meter/logging"
	"github.com/nvr-ai/go-meter/metrics"
	"github.com/nvr-ai/go-meter/storage"
)

// app carries the state shared by every subcommand.
type app struct {
	v           *viper.Viper
	configPath  string
	metricsFile string

	settings config.Settings
	logger   *slog.Logger
	closeLog func() error
	metrics  *metrics.Metrics
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:           "meterread",
		Short:         "Two-stage meter display and digit detection",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.shutdown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML settings file")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error")
	flags.String("storage-dir", "", "Directory results are saved to")
	flags.String("assets", "", "Directory model files are loaded from")

	for key, flag := range map[string]string{
		"log.level":   "log-level",
		"storage.dir": "storage-dir",
		"assets":      "assets",
	} {
		// Lookup cannot fail for flags registered above.
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newDetectCommand(a),
		newCaptureCommand(a),
		newGalleryCommand(a),
		newStageCommand(a),
	)
	return root
}

func (a *app) init() error {
	settings, err := config.Load(a.v, a.configPath)
	if err != nil {
		return err
	}
	a.settings = settings

	logger, closeLog, err := logging.New(settings.Log)
	if err != nil {
		return err
	}
	a.logger = logger
	a.closeLog = closeLog
	slog.SetDefault(logger)

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return errors.Wrap(err, "registering metrics")
	}
	a.metrics = m
	return nil
}

func (a *app) shutdown() error {
	if a.metricsFile != "" && a.metrics != nil {
		if err := a.metrics.WriteToTextfile(a.metricsFile); err != nil {
			a.logger.Error("writing metrics", "file", a.metricsFile, "error", err)
		}
	}
	if a.closeLog != nil {
		return a.closeLog()
	}
	return nil
}

func (a *app) openStore() (*storage.Store, error) {
	opts := a.settings.StoreOptions()
	opts.Logger = a.logger.With("component", "storage")

	store, err := storage.Open(a.settings.Storage.Dir, opts)
	if err != nil {
		return nil, err
	}
	a.metrics.SetGallerySize(store.Len())
	return store, nil
}

// pipeline is an opened controller together with the resources it borrows.
type pipeline struct {
	*controller.Controller
	region, digits *detectors.Detector
}

func (p *pipeline) Close() error {
	rerr := p.region.Close()
	if err := p.digits.Close(); err != nil {
		return err
	}
	return rerr
}

func (a *app) openPipeline() (*pipeline, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}

	region, err := detectors.Open(a.settings.DetectorConfig("region", a.settings.Region))
	if err != nil {
		return nil, errors.Wrap(err, "loading region network")
	}
	digits, err := detectors.Open(a.settings.DetectorConfig("digits", a.settings.Digits))
	if err != nil {
		region.Close()
		return nil, errors.Wrap(err, "loading digits network")
	}

	ctl, err := controller.New(region, digits, a.settings.ControllerOptions(),
		controller.WithStore(store),
		controller.WithLogger(a.logger),
		controller.WithMetrics(a.metrics),
	)
	if err != nil {
		region.Close()
		digits.Close()
		return nil, err
	}

	a.logger.Info("pipeline ready",
		"storage", store.Root(),
		"records", store.Len(),
		"region", a.settings.Region.Weights,
		"digits", a.settings.Digits.Weights)
	return &pipeline{Controller: ctl, region: region, digits: digits}, nil
}
