package tools

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/healthtwin-labs/healthtwin/config"
)

// WearableSnapshot is the sensor summary merged into the analyzer context.
type WearableSnapshot struct {
	Steps       int     `json:"steps"`
	HeartRate   int     `json:"heart_rate"`
	SleepHours  float64 `json:"sleep_hours"`
	StressLevel string  `json:"stress_level"`
	CapturedAt  time.Time
}

// Text renders the snapshot as a prompt-ready line.
func (w WearableSnapshot) Text() string {
	return fmt.Sprintf("steps today: %d, resting heart rate: %d bpm, last night's sleep: %.1fh, stress: %s",
		w.Steps, w.HeartRate, w.SleepHours, w.StressLevel)
}

type wearableCacheEntry struct {
	snap    WearableSnapshot
	fetched time.Time
}

// WearableClient is a read-through cache over the wearable snapshot API.
// Failures degrade to a missing snapshot; they never abort a turn.
type WearableClient struct {
	cfg    config.WearableConfig
	http   *httpClient
	logger *log.Logger

	mu    sync.Mutex
	cache map[string]wearableCacheEntry
}

func NewWearableClient(cfg config.WearableConfig, logger *log.Logger) *WearableClient {
	if logger == nil {
		logger = log.New(log.Writer(), "[WEARABLE] ", log.LstdFlags)
	}
	return &WearableClient{
		cfg:    cfg,
		http:   newHTTPClient(cfg.Timeout, 1, 200*time.Millisecond),
		logger: logger,
		cache:  make(map[string]wearableCacheEntry),
	}
}

// Snapshot returns the latest sensor summary for a session, served from
// cache within the configured TTL. ok is false when no data is available.
func (c *WearableClient) Snapshot(ctx context.Context, sessionID string) (WearableSnapshot, bool) {
	if c.cfg.BaseURL == "" {
		return WearableSnapshot{}, false
	}
	ttl := c.cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c.mu.Lock()
	if e, ok := c.cache[sessionID]; ok && time.Since(e.fetched) < ttl {
		c.mu.Unlock()
		return e.snap, true
	}
	c.mu.Unlock()

	var snap WearableSnapshot
	endpoint := fmt.Sprintf("%s/v1/snapshot?session=%s", c.cfg.BaseURL, url.QueryEscape(sessionID))
	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}
	if err := c.http.getJSON(ctx, endpoint, headers, &snap); err != nil {
		c.logger.Printf("wearable snapshot for %s failed: %v", sessionID, err)
		return WearableSnapshot{}, false
	}
	snap.CapturedAt = time.Now()

	c.mu.Lock()
	c.cache[sessionID] = wearableCacheEntry{snap: snap, fetched: time.Now()}
	c.mu.Unlock()
	return snap, true
}
