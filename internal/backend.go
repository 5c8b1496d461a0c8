package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markusressel/heat2go/internal/api"
	"github.com/markusressel/heat2go/internal/configuration"
	"github.com/markusressel/heat2go/internal/coupling"
	"github.com/markusressel/heat2go/internal/persistence"
	"github.com/markusressel/heat2go/internal/sensors"
	"github.com/markusressel/heat2go/internal/statistics"
	"github.com/markusressel/heat2go/internal/ui"
	"github.com/markusressel/heat2go/internal/zone"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

func RunDaemon() {
	pers := persistence.NewPersistence(configuration.CurrentConfig.DbPath)
	if err := pers.Init(); err != nil {
		ui.Fatal("Unable to initialize database at %s: %v", configuration.CurrentConfig.DbPath, err)
	}

	learner := InitializeObjects(pers)

	ctx, cancel := context.WithCancel(context.Background())

	var g run.Group
	{
		if configuration.CurrentConfig.Statistics.Enabled {
			// === Prometheus Exporter
			port := configuration.CurrentConfig.Statistics.Port
			if port <= 0 || port >= 65535 {
				port = 9000
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addHttpServer(&g, "statistics", &http.Server{
				Addr:    fmt.Sprintf(":%d", port),
				Handler: mux,
			})
		}
	}
	{
		if configuration.CurrentConfig.Profiling.Enabled {
			// === pprof
			config := configuration.CurrentConfig.Profiling
			mux := http.NewServeMux()
			mux.HandleFunc("/debug/pprof/", pprof.Index)
			mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
			mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
			mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
			mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
			addHttpServer(&g, "profiling", &http.Server{
				Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
				Handler: mux,
			})
		}
	}
	{
		if configuration.CurrentConfig.Api.Enabled {
			// === REST api
			config := configuration.CurrentConfig.Api
			rest := api.CreateRestService(learner, prometheus.DefaultRegisterer)
			addHttpServer(&g, "api", &http.Server{
				Addr:    fmt.Sprintf("%s:%d", config.Host, config.Port),
				Handler: rest,
			})
		}
	}
	{
		// === sensor monitoring
		pollingRate := configuration.CurrentConfig.SensorPollingRate
		windowSize := configuration.CurrentConfig.SensorRollingWindowSize
		for _, sensor := range sensors.SensorMap.Items() {
			s := sensor
			mon := NewSensorMonitor(s, pollingRate, windowSize)

			g.Add(func() error {
				err := mon.Run(ctx)
				ui.Info("Sensor Monitor for sensor %s stopped.", s.GetId())
				return err
			}, func(err error) {
				if err != nil {
					ui.Warning("Error monitoring sensor: %v", err)
				}
			})
		}
	}
	{
		// === zone controllers
		tickRate := configuration.CurrentConfig.ControllerTickRate
		for _, z := range zone.ZoneMap.Items() {
			zoneController := z

			g.Add(func() error {
				err := zoneController.Run(ctx, tickRate)
				ui.Info("Controller for zone %s stopped.", zoneController.GetId())
				return err
			}, func(err error) {
				if err != nil {
					ui.Warning("Something went wrong: %v", err)
				}
			})
		}
	}
	{
		// === learned state
		persister := NewStatePersister(pers, learner, configuration.CurrentConfig.PersistInterval)

		g.Add(func() error {
			return persister.Run(ctx)
		}, func(err error) {
			if err != nil {
				ui.Warning("Error persisting learned state: %v", err)
			}
		})
	}
	{
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

		g.Add(func() error {
			select {
			case <-sig:
				ui.Info("Received SIGTERM signal, exiting...")
			case <-ctx.Done():
			}
			return nil
		}, func(err error) {
			signal.Stop(sig)
			cancel()
		})
	}

	if err := g.Run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	} else {
		ui.Info("Done.")
		os.Exit(0)
	}
}

// addHttpServer runs the given server as part of the run group
func addHttpServer(g *run.Group, name string, server *http.Server) {
	g.Add(func() error {
		ui.Info("Starting %s server on %s", name, server.Addr)
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%s server: %w", name, err)
	}, func(err error) {
		timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer timeoutCancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			ui.Warning("Error stopping %s server: %v", name, err)
		} else {
			ui.Info("Stopped %s server.", name)
		}
	})
}

// InitializeObjects creates all configured sensors and zones, restores their learned
// state and registers the metric collectors. Returns the coupling learner, nil if
// coupling is disabled.
func InitializeObjects(pers persistence.Persistence) *coupling.Learner {
	var sensorList []sensors.Sensor
	for _, config := range configuration.CurrentConfig.Sensors {
		sensor, err := sensors.NewSensor(config)
		if err != nil {
			ui.Fatal("Unable to process sensor configuration: %s", config.ID)
		}
		sensorList = append(sensorList, sensor)
		sensors.SensorMap.Set(config.ID, sensor)
	}

	statistics.Register(statistics.NewSensorCollector(sensorList))

	couplingConfig := configuration.CurrentConfig.Coupling
	var learner *coupling.Learner
	if couplingConfig.Enabled {
		learner = coupling.NewLearner(couplingConfig.SeedCoefficients())
		restoreCoupling(pers, learner)
		statistics.Register(statistics.NewCouplingCollector(learner))
	}

	var zoneList []*zone.Zone
	for _, config := range configuration.CurrentConfig.Zones {
		z, err := zone.NewZoneFromConfig(config, couplingConfig, learner)
		if err != nil {
			ui.Fatal("Unable to process zone configuration %s: %v", config.ID, err)
		}
		restoreZone(pers, z)
		zone.ZoneMap.Set(config.ID, z)
		zoneList = append(zoneList, z)
	}

	if len(zoneList) == 0 {
		ui.Fatal("No valid zone configurations, exiting.")
	}

	statistics.Register(statistics.NewZoneCollector(zoneList))

	return learner
}

func restoreCoupling(pers persistence.Persistence, learner *coupling.Learner) {
	state, err := pers.LoadCouplingState()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			ui.Warning("Unable to load coupling state: %v", err)
		}
		return
	}
	learner.FromMap(state)
}

func restoreZone(pers persistence.Persistence, z *zone.Zone) {
	state, err := pers.LoadZoneState(z.GetId())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			ui.Warning("Unable to load state of zone %s: %v", z.GetId(), err)
		}
		return
	}
	if err := z.FromMap(state); err != nil {
		ui.Warning("Discarding stored state of zone %s: %v", z.GetId(), err)
	}
}
