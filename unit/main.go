package main

import (
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/itohio/gotelem/pkg/calibration"
	"github.com/itohio/gotelem/pkg/client"
	"github.com/itohio/gotelem/pkg/config"
	"github.com/itohio/gotelem/pkg/diag"
	"github.com/itohio/gotelem/pkg/logging"
	"github.com/itohio/gotelem/pkg/observe/prom"
	"github.com/itohio/gotelem/pkg/sensor"
	"github.com/itohio/gotelem/pkg/transport"
	"github.com/itohio/gotelem/pkg/unit"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyGS0, \"auto\" to detect)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Serve an in-process client instead of a serial port")
		levelFlag  = flag.String("log", "", "Log level override")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *levelFlag != "" {
		cfg.Log.Level = *levelFlag
	}

	logs := logging.New(cfg.Log.Level, os.Stderr).With("boot", uuid.New().String())
	log := logs.Get("unit")

	if err := run(cfg, logs, *mockFlag); err != nil {
		log.WithError(err).Fatal("unit stopped")
	}
	log.Info("unit stopped")
}

func run(cfg *config.Config, logs *logging.Logrus, mock bool) error {
	log := logs.Get("unit")

	version, err := cfg.FirmwareVersion()
	if err != nil {
		return errors.Wrap(err, "firmware version")
	}
	mode, err := cfg.ProtocolMode()
	if err != nil {
		return err
	}
	waves, err := cfg.MockWaves()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	obs, err := prom.New(reg, logs.Get("observe"))
	if err != nil {
		return errors.Wrap(err, "metrics")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Calibration.Path), 0o755); err != nil {
		return errors.Wrap(err, "calibration directory")
	}

	// Hosts have no converters of their own, so channels follow the configured waveforms.
	u, err := unit.New(unit.Options{
		Version:     version,
		Board:       sensor.NewMock(waves),
		Slot:        calibration.NewFileSlot(cfg.Calibration.Path),
		Policy:      cfg.Policy(),
		Mode:        mode,
		MaxLine:     cfg.Protocol.MaxLine,
		ReadTimeout: cfg.Firmware.ReadTimeout,
		RetryDelay:  cfg.Calibration.RetryDelay,
		Observer:    obs,
	})
	if u == nil {
		return err
	}
	if err != nil {
		log.WithError(err).Warn("calibration slot unreadable, starting blank")
	}

	boot := u.Boot()
	log.WithFields(logrus.Fields{
		"version":     version.VersionID,
		"sensors":     version.IDs(),
		"calibration": boot.Value,
		"generation":  boot.Generation,
		"valid":       boot.Valid,
	}).Info("firmware configured")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	access := logs.Get("diag").WriterLevel(logrus.DebugLevel)
	defer access.Close()

	router := diag.NewRouter(diag.State{
		Gatherer: reg,
		Latest:   u.Latest,
		Version:  version,
		Store:    u.Store,
	})
	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           handlers.RecoveryHandler()(handlers.LoggingHandler(access, router)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.Metrics.Addr != "" {
		go func() {
			log.WithField("addr", cfg.Metrics.Addr).Info("diagnostics listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("diagnostics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	conn, err := openTransport(ctx, cfg, logs, mock)
	if err != nil {
		return err
	}
	defer conn.Close()

	return u.Run(ctx, conn)
}

// openTransport returns the command channel: a serial port, or one end of a
// pipe polled by an in-process client when mock is set.
func openTransport(ctx context.Context, cfg *config.Config, logs *logging.Logrus, mock bool) (io.ReadWriteCloser, error) {
	log := logs.Get("transport")

	if mock {
		device, host := net.Pipe()
		go poll(ctx, client.New(host, client.DefaultTimeout, logs.Get("client")), logs.Get("poll"))
		log.Info("serving in-process client")
		return device, nil
	}

	name := cfg.Serial.Port
	if name == "" || name == "auto" {
		ports, err := transport.Ports()
		if err != nil {
			return nil, err
		}
		p, ok := transport.Detect(ports)
		if !ok {
			return nil, errors.New("no serial port detected")
		}
		name = p.Name
	}

	port, err := transport.Open(name, cfg.Serial.BaudRate, cfg.Serial.ReadTimeout)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"port": name, "baud": cfg.Serial.BaudRate}).Info("serial port open")
	return port, nil
}

// poll reads the unit every two seconds and logs what it answered.
func poll(ctx context.Context, c *client.Client, log *logrus.Entry) {
	defer c.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		r, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("read failed")
			continue
		}
		fields := make(logrus.Fields, len(r.Keys))
		for _, k := range r.Keys {
			fields[k] = r.Values[k]
		}
		log.WithFields(fields).Debug("reading")
	}
}
