package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/garywanggali/think-first/internal/app"
	"github.com/garywanggali/think-first/internal/config"
	"github.com/garywanggali/think-first/internal/dialogue"
	"github.com/garywanggali/think-first/internal/logging"
	"github.com/garywanggali/think-first/internal/store/rabbitmq"
	"github.com/garywanggali/think-first/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return fmt.Errorf("rabbit dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbit channel: %w", err)
	}
	defer ch.Close()

	retries, err := rabbitmq.NewChannelPublisher(ch, cfg.RabbitQueue)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	// strict concurrency control
	concurrency := worker.Clamp(cfg.WorkerConcurrency)
	if err := ch.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	log.Info("worker started",
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("concurrency", concurrency),
		zap.Int("max_attempts", cfg.JobMaxAttempts))

	c := &consumer{
		svc:         a.Service,
		retries:     retries,
		maxAttempts: cfg.JobMaxAttempts,
		jobTimeout:  4*cfg.GatewayTimeout + 30*time.Second,
		log:         log,
	}
	pool := worker.Start[amqp.Delivery](ctx, concurrency, c.handle)

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			pool.Close()
			return nil

		case d, ok := <-msgs:
			if !ok {
				pool.Close()
				return fmt.Errorf("delivery channel closed")
			}
			if err := pool.Submit(ctx, d); err != nil {
				_ = d.Nack(false, true)
			}
		}
	}
}

type jobRunner interface {
	RunJob(ctx context.Context, jobID string) error
}

type retryPublisher interface {
	PublishRetry(ctx context.Context, jobID string, attempt int, delay time.Duration) error
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type consumer struct {
	svc         jobRunner
	retries     retryPublisher
	maxAttempts int
	jobTimeout  time.Duration
	log         *zap.Logger
}

func (c *consumer) handle(ctx context.Context, workerID int, d amqp.Delivery) {
	c.deliver(ctx, workerID, d.Body, rabbitmq.Attempt(d), d)
}

// deliver runs one job. A failed job goes to the retry queue until it has
// used maxAttempts deliveries, then to the DLQ. Jobs already running finish
// on shutdown; ctx only stops new work.
func (c *consumer) deliver(ctx context.Context, workerID int, body []byte, attempt int, ack acknowledger) {
	log := c.log.With(zap.Int("worker", workerID))

	var m rabbitmq.JobMessage
	if err := json.Unmarshal(body, &m); err != nil || m.JobID == "" {
		log.Warn("bad message", zap.ByteString("body", body), zap.Error(err))
		_ = ack.Nack(false, false)
		return
	}
	log = log.With(zap.String("job_id", m.JobID), zap.Int("attempt", attempt))

	if ctx.Err() != nil {
		// shutting down before the job started
		_ = ack.Nack(false, true)
		return
	}

	timeout := c.jobTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	start := time.Now()
	err := c.svc.RunJob(jctx, m.JobID)
	if err == nil {
		if err := ack.Ack(false); err != nil {
			log.Error("ack failed", zap.Error(err))
		}
		return
	}

	if permanent(err) {
		log.Error("job failed permanently, dead-lettering", zap.Duration("cost", time.Since(start)), zap.Error(err))
		_ = ack.Nack(false, false)
		return
	}

	next := attempt + 1
	if next >= c.maxAttempts {
		log.Error("job failed, dead-lettering", zap.Duration("cost", time.Since(start)), zap.Error(err))
		_ = ack.Nack(false, false)
		return
	}

	delay := retryDelay(next)
	if perr := c.retries.PublishRetry(jctx, m.JobID, next, delay); perr != nil {
		// the broker still holds the delivery; hand it back
		log.Error("publish retry", zap.Error(perr))
		_ = ack.Nack(false, true)
		return
	}
	log.Warn("job failed, retrying", zap.Duration("delay", delay), zap.Duration("cost", time.Since(start)), zap.Error(err))
	_ = ack.Ack(false)
}

// permanent errors fail the same way on every delivery.
func permanent(err error) bool {
	return errors.Is(err, dialogue.ErrNotFound) || errors.Is(err, dialogue.ErrInvalidRequest)
}

// retryDelay doubles from 2s and caps at one minute.
func retryDelay(attempt int) time.Duration {
	d := 2 * time.Second
	for i := 1; i < attempt && d < time.Minute; i++ {
		d *= 2
	}
	if d > time.Minute {
		d = time.Minute
	}
	return d
}
