package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chartengine/internal/model"
)

// DefaultParamsChannel carries {emaPeriod, rsiPeriod} updates.
const DefaultParamsChannel = "config:indicators"

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// DecodeParamUpdate parses a parameter-change message. Values are
// clamped to the UI input ranges; the engine validates the rest.
func DecodeParamUpdate(payload string) (model.ParamUpdate, error) {
	var u model.ParamUpdate
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		return model.ParamUpdate{}, fmt.Errorf("decode param update: %w", err)
	}
	if u == (model.ParamUpdate{}) {
		return model.ParamUpdate{}, fmt.Errorf("decode param update: no fields set in %q", payload)
	}
	return u.Clamp(), nil
}

// PublishParams publishes a parameter change for every subscribed server.
func PublishParams(ctx context.Context, client *goredis.Client, channel string, u model.ParamUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return client.Publish(ctx, channel, data).Err()
}

// ParamSubscriber feeds parameter changes from a Pub/Sub channel into a
// callback, typically Coordinator.ApplyUpdate.
type ParamSubscriber struct {
	client  *goredis.Client
	channel string
	apply   func(model.ParamUpdate)

	// OnConnect is called with true after each successful subscribe and
	// false when the subscription drops. Optional.
	OnConnect func(bool)
}

// NewParamSubscriber creates a subscriber on channel.
func NewParamSubscriber(client *goredis.Client, channel string, apply func(model.ParamUpdate)) *ParamSubscriber {
	if channel == "" {
		channel = DefaultParamsChannel
	}
	return &ParamSubscriber{client: client, channel: channel, apply: apply}
}

// Run listens until ctx is cancelled, resubscribing with exponential
// backoff whenever the subscription fails.
func (s *ParamSubscriber) Run(ctx context.Context) error {
	var delay time.Duration
	for {
		subscribed, err := s.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.connected(false)
		delay = retryDelay(delay, subscribed)
		log.Printf("[redis] params subscription on %s lost: %v (retry in %v)", s.channel, err, delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// retryDelay returns the wait before the next subscribe attempt. It
// doubles after each failed attempt and starts over once a subscription
// was established.
func retryDelay(prev time.Duration, subscribed bool) time.Duration {
	if subscribed || prev <= 0 {
		return minBackoff
	}
	next := prev * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	return next
}

// listen reports whether the subscription was confirmed before it ended.
func (s *ParamSubscriber) listen(ctx context.Context) (bool, error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// Wait for confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.connected(true)
	log.Printf("[redis] subscribed to %s for parameter updates", s.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return true, fmt.Errorf("channel %s closed", s.channel)
			}
			s.handle(msg.Payload)
		}
	}
}

// handle applies one message; malformed payloads are logged and skipped.
func (s *ParamSubscriber) handle(payload string) {
	u, err := DecodeParamUpdate(payload)
	if err != nil {
		log.Printf("[redis] ignoring param update: %v", err)
		return
	}
	log.Printf("[redis] received param update: ema=%d rsi=%d", u.EMAPeriod, u.RSIPeriod)
	s.apply(u)
}

func (s *ParamSubscriber) connected(v bool) {
	if s.OnConnect != nil {
		s.OnConnect(v)
	}
}
