package engine

// Status is a read-only view of the engine, safe to request
// concurrently with tick processing. It is what the /status endpoint
// serves.
type Status struct {
	InstanceID       string `json:"instance_id,omitempty"`
	State            string `json:"state"`
	UptimeTicks      uint64 `json:"uptime_ticks"`
	FrameCount       uint32 `json:"frame_count"`
	ErrorCount       uint32 `json:"error_count"`
	ResetCount       uint32 `json:"reset_count"`
	SampleEvents     uint64 `json:"sample_events"`
	TelemetryEvents  uint64 `json:"telemetry_events"`
	WatchdogFeeds    uint64 `json:"watchdog_feeds"`
	LastWatchdogFeed uint64 `json:"last_watchdog_feed"`
	Published        uint64 `json:"published"`
	PublishFailures  uint64 `json:"publish_failures"`
	PublisherReady   bool   `json:"publisher_ready"`
}
