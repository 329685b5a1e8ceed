package cache

import "sync/atomic"

// Stats is a snapshot of tiered cache performance.
type Stats struct {
	HitCount        int64    `json:"hit_count"`
	MissCount       int64    `json:"miss_count"`
	HitRate         float64  `json:"hit_rate"`
	LocalHitCount   int64    `json:"local_hit_count"`
	LocalMissCount  int64    `json:"local_miss_count"`
	LocalHitRate    float64  `json:"local_hit_rate"`
	RemoteHitCount  int64    `json:"remote_hit_count"`
	RemoteMissCount int64    `json:"remote_miss_count"`
	RemoteHitRate   float64  `json:"remote_hit_rate"`
	Evictions       int64    `json:"evictions"`
	CachedKeys      []string `json:"cached_keys"`
	TTLSeconds      float64  `json:"ttl_seconds"`
	Backend         string   `json:"backend"`
}

// counters holds the six monotonically increasing read counters.
type counters struct {
	totalHits    atomic.Int64
	totalMisses  atomic.Int64
	localHits    atomic.Int64
	localMisses  atomic.Int64
	remoteHits   atomic.Int64
	remoteMisses atomic.Int64
}

func (c *counters) reset() {
	c.totalHits.Store(0)
	c.totalMisses.Store(0)
	c.localHits.Store(0)
	c.localMisses.Store(0)
	c.remoteHits.Store(0)
	c.remoteMisses.Store(0)
}

func hitRate(hits, misses int64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}
