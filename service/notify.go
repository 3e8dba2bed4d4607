package service

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/assetgate/internal/logger"
)

// notifier runs best-effort side effects (mail) off the request path.
type notifier struct {
	logger  *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func (n *notifier) notify(what string, fn func(ctx context.Context) error) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			n.logger.Warn("Notification failed", "what", what, "error", err.Error())
		}
	}()
}

// Wait blocks until pending notifications have finished.
func (n *notifier) Wait() {
	n.wg.Wait()
}
