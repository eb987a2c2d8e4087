package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TableSide/pkg/logging"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

func Channel(businessID string) string {
	return fmt.Sprintf("tableside:feed:%s", businessID)
}

// Redis publishes and receives events over a per-business pub/sub channel.
type Redis struct {
	client     *redis.Client
	businessID string
	origin     string
	backoff    time.Duration
}

func NewRedis(client *redis.Client, businessID, origin string) *Redis {
	return &Redis{
		client:     client,
		businessID: businessID,
		origin:     origin,
		backoff:    time.Second,
	}
}

func (r *Redis) SetBackoff(d time.Duration) {
	r.backoff = d
}

func (r *Redis) Publish(ctx context.Context, ev Event) error {
	ev.BusinessID = r.businessID
	ev.Origin = r.origin
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "failed json.Marshal(event)")
	}
	if err := r.client.Publish(ctx, Channel(r.businessID), b).Err(); err != nil {
		return errors.Wrapf(err, "failed redis PUBLISH %s", Channel(r.businessID))
	}
	return nil
}

// Subscribe delivers events to h until ctx is done. Events published by this
// terminal are skipped. A lost connection is retried silently; h.Resync is
// called once the channel is subscribed again.
func (r *Redis) Subscribe(ctx context.Context, h Handler) error {
	logger := logging.GetLogger()
	logger.Info("Start feed Subscribe")
	defer logger.Info("End feed Subscribe")

	ps := r.client.Subscribe(ctx, Channel(r.businessID))
	defer func() {
		if err := ps.Close(); err != nil {
			logger.Errorf("failed ps.Close(), error: %v", err)
		}
	}()

	subscribed := false
	lost := false
	for {
		msg, err := ps.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !lost {
				logger.Warnf("feed connection lost: %v", err)
			}
			lost = true
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.backoff):
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind != "subscribe" {
				continue
			}
			if subscribed {
				logger.Info("feed resubscribed, resync")
				h.Resync(ctx)
			}
			subscribed = true
			lost = false
		case *redis.Message:
			if lost {
				lost = false
				h.Resync(ctx)
			}
			var ev Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				logger.Errorf("failed json.Unmarshal(event), error: %v", err)
				continue
			}
			if ev.BusinessID != r.businessID || (r.origin != "" && ev.Origin == r.origin) {
				continue
			}
			logger.Debugf("feed event %s %s table=%s", ev.Entity, ev.EventType, ev.TableID)
			h.HandleEvent(ctx, ev)
		}
	}
}
