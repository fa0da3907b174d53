package imageprobe

import (
	"context"
	"net/http"
	"time"

	"facemanager/pkg/logger"
)

// Prober checks source image reachability with a HEAD request. A batch whose
// source image cannot be rendered is skipped entirely, so this runs before
// any grouping work.
type Prober struct {
	client *http.Client
}

func NewProber(timeout time.Duration) *Prober {
	return &Prober{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// IsReachable reports whether url answers a HEAD request with a 2xx status
// before the client timeout. An empty url is unreachable by definition.
func (p *Prober) IsReachable(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		logger.Probe("probe_bad_url", "Could not build HEAD request", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
		return false
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		logger.Probe("probe_failed", "HEAD request failed", map[string]interface{}{
			"url":         url,
			"error":       err.Error(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return false
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		logger.Probe("probe_bad_status", "HEAD request returned non-2xx", map[string]interface{}{
			"url":    url,
			"status": resp.StatusCode,
		})
	}
	return ok
}
