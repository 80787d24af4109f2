package uploader

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/esDesler/smart-home-inventory-system/pkg/client"
	"github.com/esDesler/smart-home-inventory-system/pkg/types"
)

// Queue is the slice of the outbox the uploader needs.
type Queue interface {
	PendingCount() (int64, error)
	GetBatch(limit int) ([]types.Reading, error)
	AckUpTo(seq uint64) error
}

type Config struct {
	DeviceID      string
	Firmware      string
	BatchSize     int
	FlushInterval time.Duration
	RetryMax      time.Duration
	SensorMeta    []types.SensorMeta
}

// Uploader drains the outbox in batches. Uploads are at-least-once: rows are
// only deleted after the server acks them, and the server deduplicates
// replays. Transport failures back off exponentially from one second up to
// the configured maximum.
type Uploader struct {
	queue  Queue
	client client.ReadingsClient
	cfg    Config

	retry          *backoff.ExponentialBackOff
	lastFlush      time.Time
	nextRetryAfter time.Time

	now func() time.Time
}

func New(queue Queue, c client.ReadingsClient, cfg Config) *Uploader {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Second
	retry.RandomizationFactor = 0
	retry.Multiplier = 2
	retry.MaxInterval = cfg.RetryMax
	retry.MaxElapsedTime = 0
	retry.Reset()

	return &Uploader{
		queue:  queue,
		client: c,
		cfg:    cfg,
		retry:  retry,
		now:    time.Now,
	}
}

// Run ticks until the context is cancelled. It returns early only on queue
// failures, which are fatal to the agent.
func (u *Uploader) Run(ctx context.Context) error {
	interval := u.cfg.FlushInterval
	if interval > time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := u.Flush(ctx)
			if err != nil {
				return err
			}
		}
	}
}

// Flush performs one upload attempt if the batch and timing rules allow it.
// Transport failures are absorbed into the retry schedule; only queue
// failures propagate.
func (u *Uploader) Flush(ctx context.Context) error {
	now := u.now()

	if now.Before(u.nextRetryAfter) {
		return nil
	}

	pending, err := u.queue.PendingCount()
	if err != nil {
		return fmt.Errorf("outbox failure: %w", err)
	}
	if pending == 0 {
		return nil
	}

	// wait for either a full batch or the flush interval to elapse
	if pending < int64(u.cfg.BatchSize) && now.Sub(u.lastFlush) < u.cfg.FlushInterval {
		return nil
	}

	batch, err := u.queue.GetBatch(u.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("outbox failure: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	payload := types.ReadingsBatch{
		DeviceID:   u.cfg.DeviceID,
		Firmware:   u.cfg.Firmware,
		SentAt:     now.UTC().Format(time.RFC3339Nano),
		Readings:   batch,
		SensorMeta: u.cfg.SensorMeta,
	}

	log := logging.GetFromContext(ctx)

	resp, err := u.client.PostReadingsBatch(ctx, payload)
	if err != nil {
		delay := u.retry.NextBackOff()
		u.nextRetryAfter = now.Add(delay)
		log.Warn("upload failed", "err", err.Error(), "retry_in", delay.String(), "pending", pending)
		return nil
	}

	ack := batch[len(batch)-1].LocalSeq
	if resp != nil && resp.AckSeqID != nil {
		ack = *resp.AckSeqID
	}

	err = u.queue.AckUpTo(ack)
	if err != nil {
		return fmt.Errorf("outbox failure: %w", err)
	}

	u.lastFlush = now
	u.retry.Reset()

	log.Debug("uploaded batch", "size", len(batch), "ack_seq", ack)

	return nil
}
