package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"genworker/internal/codec"
	"genworker/internal/domain"
	"genworker/internal/infra"
	"genworker/internal/provider"
)

// StreamClient is the slice of the Redis API the consumer needs. *redis.Client
// satisfies it; tests substitute a scripted fake.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Runner drives one job to a terminal state.
type Runner interface {
	Run(ctx context.Context, req domain.JobRequest, p provider.Provider) (domain.GenerationRecord, error)
}

// Dispatcher reports one terminal result downstream.
type Dispatcher interface {
	Deliver(ctx context.Context, payload domain.CallbackPayload) domain.CallbackOutcome
}

// Enhancer rewrites the prompt before submission; best-effort.
type Enhancer interface {
	Enhance(ctx context.Context, prompt string) (string, error)
}

// Options wires one consumer instance.
type Options struct {
	Client     StreamClient
	Stream     string
	DeadStream string
	Group      string
	ConsumerID string
	BatchSize  int64
	Block      time.Duration

	Providers  provider.Registry
	Runner     Runner
	Dispatcher Dispatcher
	Enhancer   Enhancer
	Logger     *infra.Logger

	// GroupRetryBackoff paces boot-time group creation retries; LoopPause
	// paces recovery after an outer read failure. Overridden in tests.
	GroupRetryBackoff time.Duration
	LoopPause         time.Duration
}

// Consumer owns one membership in the durable consumer group. It claims
// batches of records, runs the generation pipeline per record, and always
// acknowledges: a record that fails processing is captured once on the
// dead-letter stream and never redelivered. This trades strict delivery
// guarantees for bounded reprocessing; a poison message cannot block the
// group.
type Consumer struct {
	client     StreamClient
	stream     string
	deadStream string
	group      string
	consumerID string
	batchSize  int64
	block      time.Duration

	providers  provider.Registry
	runner     Runner
	dispatcher Dispatcher
	enhancer   Enhancer
	logger     *infra.Logger

	groupRetryBackoff time.Duration
	loopPause         time.Duration
}

// New constructs a consumer with the service defaults: batches of 5, 5s
// blocking reads, 3s group-create backoff, 2s pause after outer failures.
func New(opts Options) *Consumer {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 5
	}
	block := opts.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	groupRetry := opts.GroupRetryBackoff
	if groupRetry <= 0 {
		groupRetry = 3 * time.Second
	}
	loopPause := opts.LoopPause
	if loopPause <= 0 {
		loopPause = 2 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Consumer{
		client:            opts.Client,
		stream:            opts.Stream,
		deadStream:        opts.DeadStream,
		group:             opts.Group,
		consumerID:        opts.ConsumerID,
		batchSize:         batch,
		block:             block,
		providers:         opts.Providers,
		runner:            opts.Runner,
		dispatcher:        opts.Dispatcher,
		enhancer:          opts.Enhancer,
		logger:            logger,
		groupRetryBackoff: groupRetry,
		loopPause:         loopPause,
	}
}

// Run blocks until ctx is cancelled: first the group-ready loop, then the
// claim loop.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info().
		Str("stream", c.stream).
		Str("group", c.group).
		Str("consumer", c.consumerID).
		Msg("consumer: started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumerID,
			Streams:  []string{c.stream, ">"},
			Count:    c.batchSize,
			Block:    c.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// an outer claim failure never crashes the consumer
			c.logger.Error().Err(err).Msg("consumer: read failed, pausing")
			if !sleep(ctx, c.loopPause) {
				return ctx.Err()
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				fields := stringFields(msg.Values)
				if err := c.process(ctx, fields); err != nil {
					if ctx.Err() != nil {
						// shutting down mid-record: leave it pending so another
						// consumer picks it up (accepted at-least-once edge)
						return ctx.Err()
					}
					c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("consumer: record failed, dead-lettering")
					c.deadLetter(ctx, fields, err)
				}
				// acknowledge regardless of the processing outcome
				if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
					c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("consumer: ack failed")
				}
			}
		}
	}
}

// ensureGroup creates or attaches to the consumer group at the stream tail.
// An already-existing group is success; anything else retries on a fixed
// backoff, since a missing broker at boot is an availability gate, not an
// error.
func (c *Consumer) ensureGroup(ctx context.Context) error {
	for {
		err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "$").Err()
		if err == nil {
			c.logger.Info().Str("stream", c.stream).Str("group", c.group).Msg("consumer: group created")
			return nil
		}
		if isBusyGroup(err) {
			c.logger.Debug().Str("group", c.group).Msg("consumer: group already exists")
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn().Err(err).Dur("backoff", c.groupRetryBackoff).Msg("consumer: group create failed, retrying")
		if !sleep(ctx, c.groupRetryBackoff) {
			return ctx.Err()
		}
	}
}

// process runs the full pipeline for one claimed record. A returned error
// means the record is dead-letter material; generation-level failures are not
// errors and flow into a FAIL callback instead.
func (c *Consumer) process(ctx context.Context, fields map[string]string) error {
	req, err := codec.Parse(fields)
	if err != nil {
		return err
	}

	prov, ok := c.providers.For(req.Kind)
	if !ok {
		return fmt.Errorf("no provider wired for kind %s", req.Kind)
	}

	run := req
	if c.enhancer != nil {
		if enhanced, err := c.enhancer.Enhance(ctx, req.Prompt); err == nil {
			run.Prompt = enhanced
		} else {
			c.logger.Warn().Err(err).Str("job_id", req.ID).Msg("consumer: prompt enhancement failed, using raw prompt")
		}
	}

	rec, err := c.runner.Run(ctx, run, prov)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrMalformedMessage) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		// provider unavailability and submit/poll I/O failures are terminal
		// for the job, not retryable: report FAIL downstream
		rec = domain.GenerationRecord{State: domain.StateFailed, Error: err.Error()}
	}

	payload := domain.NewCallbackPayload(req, rec)
	outcome := c.dispatcher.Deliver(ctx, payload)
	c.logger.Info().
		Str("job_id", req.ID).
		Str("state", string(rec.State)).
		Str("result", string(payload.Result)).
		Str("callback_code", string(outcome.Code)).
		Int("callback_status", outcome.Status).
		Msg("consumer: record finished")
	return nil
}

// deadLetter appends the failed record to the dead-letter stream for
// out-of-band inspection. Best effort: a dead-letter write failure is logged,
// the record is still acknowledged.
func (c *Consumer) deadLetter(ctx context.Context, fields map[string]string, cause error) {
	entry := map[string]any{
		"error":  cause.Error(),
		"fields": fields,
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"error":%q}`, cause.Error()))
	}
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.deadStream,
		Values: map[string]any{"payload": string(payload)},
	}).Err(); err != nil {
		c.logger.Error().Err(err).Msg("consumer: dead-letter write failed")
	}
}

func stringFields(values map[string]any) map[string]string {
	fields := make(map[string]string, len(values))
	for k, v := range values {
		switch s := v.(type) {
		case string:
			fields[k] = s
		default:
			fields[k] = fmt.Sprint(v)
		}
	}
	return fields
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// sleep waits d or until ctx is done; reports false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
