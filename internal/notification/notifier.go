// File: internal/notification/notifier.go
package notification

import (
	"context"
	"sync"

	"github.com/smartdevs17/qrcode-generator/internal/config"
	"github.com/smartdevs17/qrcode-generator/internal/metrics"
	"github.com/smartdevs17/qrcode-generator/internal/models"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// EventSource is the part of the repository the notifier listens to
type EventSource interface {
	Subscribe(ctx context.Context, buffer int) <-chan models.HistoryEvent
}

// NotificationStats counts webhook deliveries since start
type NotificationStats struct {
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
}

// Notifier forwards history events to the configured webhooks.
// It runs on its own subscription so a slow endpoint never holds up a history write.
type Notifier struct {
	source         EventSource
	sender         *WebhookSender
	webhooks       []string
	queueSize      int
	logger         *NotificationLogger
	metricsManager *metrics.Manager

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	stats   NotificationStats
}

// NewNotifier creates a notifier for cfg
func NewNotifier(cfg *config.NotificationConfig, source EventSource, metricsManager *metrics.Manager) (*Notifier, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	logger := NewNotificationLogger()
	return &Notifier{
		source:         source,
		sender:         NewWebhookSender(cfg, logger),
		webhooks:       cfg.Webhooks,
		queueSize:      cfg.QueueSize,
		logger:         logger,
		metricsManager: metricsManager,
	}, nil
}

// ValidateConfig validates notification configuration
func ValidateConfig(cfg *config.NotificationConfig) error {
	if cfg == nil {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Notification configuration is required")
	}
	if len(cfg.Webhooks) == 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "At least one webhook URL is required")
	}
	for _, url := range cfg.Webhooks {
		if url == "" {
			return utils.NewAppError(utils.ErrCodeConfiguration, "Webhook URL is required")
		}
	}
	if cfg.RetryDelay < 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Retry delay must not be negative")
	}
	return nil
}

// Start subscribes to history events and delivers them until ctx ends or Stop is called
func (n *Notifier) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return utils.NewAppError(utils.ErrCodeInternal, "Notifier already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	events := n.source.Subscribe(runCtx, n.queueSize)

	n.cancel = cancel
	n.done = make(chan struct{})
	n.running = true

	go n.run(runCtx, events, n.done)

	n.logger.Info("Notifier started", map[string]interface{}{
		"webhooks":   len(n.webhooks),
		"queue_size": n.queueSize,
	})
	return nil
}

// Stop cancels delivery and waits for the worker to exit
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	cancel, done := n.cancel, n.done
	n.mu.Unlock()

	cancel()
	<-done
	n.logger.Info("Notifier stopped")
}

// IsRunning reports whether the notifier is delivering events
func (n *Notifier) IsRunning() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// GetStats returns delivery counters
func (n *Notifier) GetStats() NotificationStats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stats
}

func (n *Notifier) run(ctx context.Context, events <-chan models.HistoryEvent, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			n.Dispatch(ctx, event)
		}
	}
}

// Dispatch sends one event to every webhook and returns the number of failed deliveries
func (n *Notifier) Dispatch(ctx context.Context, event models.HistoryEvent) int {
	payload := BuildPayload(event)
	action := string(event.Action)

	failed := 0
	for _, url := range n.webhooks {
		err := n.sender.Send(ctx, url, payload)

		n.mu.Lock()
		if err != nil {
			n.stats.Failed++
		} else {
			n.stats.Delivered++
		}
		n.mu.Unlock()

		if err != nil {
			failed++
			n.logger.Error("Webhook delivery failed", map[string]interface{}{
				"url":    url,
				"action": action,
				"error":  err.Error(),
			})
		}
		n.recordDelivery(action, err)
	}
	return failed
}

func (n *Notifier) recordDelivery(action string, err error) {
	if n.metricsManager == nil {
		return
	}
	pm := n.metricsManager.GetPrometheusMetrics()
	if err != nil {
		pm.RecordNotificationFailure(action, utils.ErrorCode(err))
		return
	}
	pm.RecordNotificationSent(action)
}
