package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"renogy-dcc/config"
	"renogy-dcc/internal/api"
	"renogy-dcc/internal/bus"
	"renogy-dcc/internal/collector"
	"renogy-dcc/internal/discovery"
	"renogy-dcc/internal/logger"
	"renogy-dcc/internal/metrics"
	"renogy-dcc/internal/modbus"
	"renogy-dcc/internal/mqtt"
	"renogy-dcc/internal/renogy"
	"renogy-dcc/internal/telemetry"
)

var version = "dev"

var (
	configFile string
	verbose    bool
)

var errNoConnection = errors.New("no connection provided")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "renogy-dcc <connection>",
		Short:         "Renogy DC-DC charger bridge",
		Long:          "Polls a Renogy DCC charge controller over Modbus RTU and publishes it as a solarcharger service",
		Version:       version,
		Args:          connectionArg,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), args[0])
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(readCmd())
	return rootCmd
}

func connectionArg(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errNoConnection
	}
	return cobra.ExactArgs(1)(cmd, args)
}

func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return cfg, log, nil
}

func newSource(cfg *config.Config) *renogy.Source {
	return renogy.NewSource(renogy.SourceConfig{
		Serial: modbus.SerialConfig{
			BaudRate: cfg.Device.BaudRate,
			DataBits: cfg.Device.DataBits,
			Parity:   cfg.Device.Parity,
			StopBits: cfg.Device.StopBits,
		},
		Timeout: cfg.Device.ReadTimeout,
	})
}

func newResolver(cfg *config.Config, source *renogy.Source, log logrus.FieldLogger, observer discovery.ProbeObserver) *discovery.Resolver {
	var candidates []uint8
	if !cfg.Device.Discover() {
		candidates = []uint8{uint8(cfg.Device.Address)}
	}
	return discovery.NewResolver(source, discovery.Config{
		Candidates:   candidates,
		ProbeTimeout: cfg.Device.ReadTimeout,
	}, log, observer)
}

func serve(parent context.Context, connection string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	entry := log.WithField("connection", connection)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	source := newSource(cfg)

	entry.Info("searching for device")
	address, snap, err := newResolver(cfg, source, entry, m).Resolve(ctx, connection)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	svc := bus.NewService(bus.ServiceName(connection))

	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher, err = mqtt.NewPublisher(mqtt.PublisherConfig{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			PortalID:    cfg.MQTT.PortalID,
			Instance:    cfg.Device.Instance,
			Retain:      cfg.MQTT.Retain,
			Enabled:     true,
		}, entry)
		if err != nil {
			entry.WithError(err).Warn("MQTT connection failed, continuing without mirror")
		} else {
			defer publisher.Close()
			svc.AddListener(publisher)
		}
	}

	processName, _ := os.Executable()
	if processName == "" {
		processName = os.Args[0]
	}
	err = telemetry.Declare(svc, telemetry.Identity{
		ProcessName:    processName,
		ProcessVersion: fmt.Sprintf("%s, running on Go %s", version, runtime.Version()),
		Connection:     connection,
		DeviceInstance: cfg.Device.Instance,
	})
	if err != nil {
		return fmt.Errorf("failed to declare paths: %w", err)
	}

	if publisher != nil && cfg.MQTT.HomeAssistant {
		if err := publisher.PublishHomeAssistantDiscovery(snap.SerialNumber); err != nil {
			entry.WithError(err).Warn("failed to publish Home Assistant discovery")
		}
	}

	coll := collector.NewCollector(collector.CollectorConfig{
		Reader:      source,
		Sink:        svc,
		Observer:    m,
		Log:         entry,
		Connection:  connection,
		Address:     address,
		Interval:    cfg.Device.Interval,
		ReadTimeout: cfg.Device.ReadTimeout,
		Retries:     cfg.Device.Retries,
		Initial:     snap,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coll.Start(gctx)
	})

	if cfg.API.Enabled {
		server := api.NewServer(api.ServerConfig{
			Port:      cfg.API.Port,
			Collector: coll,
			Paths:     svc,
			Gatherer:  reg,
			Log:       entry,
		})
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Stop(shutdownCtx)
		})
	}

	entry.WithField("service", svc.Name()).Info("bridge started")

	if err := g.Wait(); err != nil {
		return err
	}
	entry.Info("shutting down")
	return nil
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <connection>",
		Short: "Read the device once",
		Long:  "Find the device, read it once and print the snapshot and the derived telemetry",
		Args:  connectionArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}

			address, snap, err := newResolver(cfg, newSource(cfg), log, nil).Resolve(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to read device: %w", err)
			}

			out, err := telemetry.Map(snap)
			if err != nil {
				log.WithError(err).Warn("telemetry incomplete")
			}

			paths := make(map[string]any)
			for _, v := range out.Values() {
				paths[v.Path] = v.Value
			}

			output, err := json.MarshalIndent(struct {
				Address   uint8            `json:"address"`
				Snapshot  *renogy.Snapshot `json:"snapshot"`
				Telemetry map[string]any   `json:"telemetry"`
			}{address, snap, paths}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(output))
			return nil
		},
	}
}
