package models

import "time"

// SystemMetrics is a point-in-time snapshot of operational counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	BookingsTotal            uint64    `json:"bookings_total"`
	BookingConflictsTotal    uint64    `json:"booking_conflicts_total"`
	AutoReschedulesTotal     uint64    `json:"auto_reschedules_total"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
