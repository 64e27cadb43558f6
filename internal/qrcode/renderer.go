package qrcode

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/qrcode-generator/internal/cache"
	"github.com/smartdevs17/qrcode-generator/internal/metrics"
	"github.com/smartdevs17/qrcode-generator/pkg/utils"
)

// Renderer produces PNG images for content, consulting a cache first
type Renderer struct {
	encoder        *Encoder
	cache          cache.Cache
	ttl            time.Duration
	metricsManager *metrics.Manager
	logger         *logrus.Entry
}

// NewRenderer creates a renderer. A nil cache disables caching.
func NewRenderer(encoder *Encoder, c cache.Cache, ttl time.Duration, metricsManager *metrics.Manager) *Renderer {
	if c == nil {
		c = cache.NewNoopCache()
	}
	return &Renderer{
		encoder:        encoder,
		cache:          c,
		ttl:            ttl,
		metricsManager: metricsManager,
		logger:         utils.ComponentLogger("renderer"),
	}
}

// Render returns the PNG for content at size; 0 selects the default size.
// Cache failures are logged and never fail the render.
func (r *Renderer) Render(ctx context.Context, content string, size int) ([]byte, error) {
	resolved, err := r.encoder.resolveSize(size)
	if err != nil {
		return nil, err
	}
	key := r.encoder.cacheKey(content, resolved)

	data, ok, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		r.recordLookup("error")
		r.logger.WithError(err).Warn("Render cache lookup failed")
	case ok:
		r.recordLookup("hit")
		return data, nil
	default:
		r.recordLookup("miss")
	}

	data, err = r.encoder.EncodePNG(content, resolved)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.WithError(err).Warn("Render cache store failed")
	}

	return data, nil
}

func (r *Renderer) recordLookup(result string) {
	if r.metricsManager != nil {
		r.metricsManager.GetPrometheusMetrics().RecordCacheLookup(result)
	}
}
