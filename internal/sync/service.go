// Package sync runs the background services of a terminal: the change feed
// subscription and the periodic menu refresh.
package sync

import (
	"context"
	"fmt"
	"time"

	"TableSide/internal/cache"
	"TableSide/internal/feed"
	"TableSide/pkg/logging"

	"github.com/pkg/errors"
)

type Subscriber interface {
	Subscribe(ctx context.Context, h feed.Handler) error
}

type Alerter interface {
	SendMessageWithLogError(text string)
}

// FeedServiceWithRecovered keeps the feed subscription running, restarting it
// after a panic or an early return up to maxRestarts times.
func FeedServiceWithRecovered(ctx context.Context, sub Subscriber, h feed.Handler, alerts Alerter, maxRestarts int) error {
	logger := logging.GetLogger()
	logger.Info("Start Service FeedServiceWithRecovered")
	defer logger.Info("End Service FeedServiceWithRecovered")

	for index := 0; ; index++ {
		err := feedService(ctx, sub, h)
		if ctx.Err() != nil {
			return nil
		}
		if index >= maxRestarts {
			alerts.SendMessageWithLogError(fmt.Sprintf("feed service stopped after %d restarts: %v", index, err))
			return errors.Wrap(err, "feed service gave up")
		}
		logger.Errorf("feed service failed, restart %d: %v", index+1, err)
		alerts.SendMessageWithLogError(fmt.Sprintf("feed service failed, restarting: %v", err))
		// events that arrived while nobody listened are lost
		h.Resync(ctx)
	}
}

func feedService(ctx context.Context, sub Subscriber, h feed.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	if err := sub.Subscribe(ctx, h); err != nil {
		return err
	}
	if ctx.Err() == nil {
		return errors.New("subscription ended")
	}
	return nil
}

// MenuRefreshService re-reads the menu every interval until ctx is done.
func MenuRefreshService(ctx context.Context, menu cache.CacheMenu, interval time.Duration) {
	logger := logging.GetLogger()
	logger.Info("Start Service MenuRefresh")
	defer logger.Info("End Service MenuRefresh")

	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := menu.RefreshMenu(ctx); err != nil {
				logger.Errorf("failed RefreshMenu(), error: %v", err)
			}
		}
	}
}
