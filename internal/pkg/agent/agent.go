package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/agent/config"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/agent/outbox"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/agent/processing"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/agent/sensors"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/agent/uploader"
	"github.com/esDesler/smart-home-inventory-system/pkg/client"
	"github.com/esDesler/smart-home-inventory-system/pkg/types"
)

var ErrNoSensors = errors.New("no sensors could be initialized")

const minPollInterval = 50 * time.Millisecond
const uploaderJoinTimeout = 2 * time.Second

// Service runs the device side of the pipeline: a polling worker that feeds
// classified readings into the outbox, and an uploader worker that drains it.
type Service struct {
	cfg        *config.AppConfig
	queue      *outbox.Outbox
	drivers    []sensors.Driver
	processors map[string]*processing.Processor
	uploader   *uploader.Uploader
}

func New(ctx context.Context, cfg *config.AppConfig) (*Service, error) {
	log := logging.GetFromContext(ctx)

	queue, err := outbox.New(cfg.Storage.QueueDBPath, cfg.Storage.MaxQueueRows, cfg.Storage.MaxQueueAgeSeconds)
	if err != nil {
		return nil, fmt.Errorf("could not open outbox: %w", err)
	}

	svc := &Service{
		cfg:        cfg,
		queue:      queue,
		processors: map[string]*processing.Processor{},
	}

	meta := make([]types.SensorMeta, 0, len(cfg.Sensors))

	for _, sensorCfg := range cfg.Sensors {
		driver, err := sensors.New(sensorCfg.Config)
		if err != nil {
			log.Error("sensor failed to initialize, skipping", "sensor_id", sensorCfg.SensorID, "err", err.Error())
			continue
		}

		svc.drivers = append(svc.drivers, driver)
		svc.processors[sensorCfg.SensorID] = processing.New(processing.Config{
			SensorID:           sensorCfg.SensorID,
			Mode:               sensorCfg.EffectiveMode(),
			DebounceMs:         sensorCfg.DebounceMs,
			Thresholds:         sensorCfg.Thresholds,
			StateMap:           sensorCfg.StateMap,
			ReportOnChangeOnly: sensorCfg.EffectiveReportOnChange(cfg.Runtime),
			Filter:             sensorCfg.Filter,
			Alpha:              sensorCfg.Alpha,
		})

		meta = append(meta, types.SensorMeta{
			SensorID:   sensorCfg.SensorID,
			Type:       sensorCfg.Type,
			Thresholds: sensorCfg.Thresholds,
			StateMap:   sensorCfg.StateMap,
		})
	}

	if len(svc.drivers) == 0 {
		return nil, ErrNoSensors
	}

	readingsClient, err := client.New(client.Config{
		BaseURL:        cfg.Network.BaseURL,
		APIToken:       cfg.Network.APIToken,
		CACertPath:     cfg.Network.CACertPath,
		ConnectTimeout: time.Duration(cfg.Network.ConnectTimeoutSeconds) * time.Second,
		ReadTimeout:    time.Duration(cfg.Network.ReadTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create readings client: %w", err)
	}

	svc.uploader = uploader.New(queue, readingsClient, uploader.Config{
		DeviceID:      cfg.Device.ID,
		Firmware:      cfg.Device.Firmware,
		BatchSize:     cfg.Network.BatchSize,
		FlushInterval: time.Duration(cfg.Network.FlushIntervalSeconds) * time.Second,
		RetryMax:      time.Duration(cfg.Network.RetryMaxSeconds) * time.Second,
		SensorMeta:    meta,
	})

	return svc, nil
}

// Run polls sensors until the context is cancelled. Pending readings stay in
// the outbox over a shutdown; nothing is lost on a clean stop.
func (s *Service) Run(ctx context.Context) error {
	log := logging.GetFromContext(ctx)
	log.Info("inventory agent starting", "device_id", s.cfg.Device.ID, "sensors", len(s.drivers))

	uploadCtx, stopUploader := context.WithCancel(ctx)
	defer stopUploader()

	uploadDone := make(chan error, 1)
	go func() {
		uploadDone <- s.uploader.Run(uploadCtx)
	}()

	interval := time.Duration(s.cfg.Runtime.PollIntervalMs) * time.Millisecond
	if interval < minPollInterval {
		interval = minPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.shutdown(ctx, stopUploader, uploadDone)
		case err := <-uploadDone:
			// the uploader only quits early on outbox failure
			return err
		case <-ticker.C:
			err := s.pollOnce(ctx)
			if err != nil {
				return err
			}
		}
	}
}

func (s *Service) pollOnce(ctx context.Context) error {
	log := logging.GetFromContext(ctx)

	now := time.Now()
	timestamp := now.UTC().Format(time.RFC3339Nano)

	for _, driver := range s.drivers {
		sample, hasSample, err := driver.Read()
		if err != nil {
			// read failures mean no sample this tick
			log.Debug("sensor read failed", "sensor_id", driver.ID(), "err", err.Error())
			continue
		}
		if !hasSample {
			continue
		}

		processor, found := s.processors[driver.ID()]
		if !found {
			continue
		}

		reading := processor.Process(sample.Raw, sample.Normalized, now, timestamp)
		if reading == nil {
			continue
		}

		_, err = s.queue.Enqueue(*reading)
		if err != nil {
			return fmt.Errorf("outbox failure: %w", err)
		}
	}

	return nil
}

func (s *Service) shutdown(ctx context.Context, stopUploader context.CancelFunc, uploadDone <-chan error) error {
	log := logging.GetFromContext(ctx)

	stopUploader()

	select {
	case err := <-uploadDone:
		log.Info("inventory agent stopped")
		return err
	case <-time.After(uploaderJoinTimeout):
		log.Warn("uploader did not stop in time")
		return nil
	}
}

func (s *Service) Close() error {
	return s.queue.Close()
}
