package storage

// ReplacingMergeTree keeps the row with the highest version per sorting key,
// so re-delivered snapshots of a session converge to the latest one.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id String,
		customer_id String,
		started_at DateTime64(3),
		ended_at DateTime64(3),
		is_final UInt8,
		duration_seconds Float64,
		total_dwell_seconds Float64,
		slides_viewed UInt32,
		events_count UInt32,
		idle_count UInt32,
		browser LowCardinality(String),
		browser_version String,
		os LowCardinality(String),
		device_type LowCardinality(String),
		screen_width UInt16,
		screen_height UInt16,
		country LowCardinality(String),
		city String,
		received_at DateTime64(3)
	) ENGINE = ReplacingMergeTree(received_at)
	ORDER BY (customer_id, session_id)`,

	`CREATE TABLE IF NOT EXISTS slide_dwell (
		session_id String,
		customer_id String,
		slide_id String,
		slide_title String,
		position UInt16,
		seconds Float64,
		received_at DateTime64(3)
	) ENGINE = ReplacingMergeTree(received_at)
	ORDER BY (customer_id, session_id, slide_id)`,

	`CREATE TABLE IF NOT EXISTS engagement_events (
		event_id String,
		session_id String,
		customer_id String,
		event_type LowCardinality(String),
		timestamp DateTime64(3),
		slide_id String,
		data String,
		received_at DateTime64(3)
	) ENGINE = ReplacingMergeTree(received_at)
	ORDER BY (customer_id, session_id, event_id)`,

	`CREATE TABLE IF NOT EXISTS session_deliveries (
		session_id String,
		customer_id String,
		deliveries UInt32,
		out_of_order UInt32,
		first_received_at DateTime64(3),
		last_received_at DateTime64(3),
		ended_at DateTime64(3),
		final_received UInt8,
		transport LowCardinality(String)
	) ENGINE = ReplacingMergeTree(last_received_at)
	ORDER BY (customer_id, session_id)`,

	`CREATE TABLE IF NOT EXISTS insights (
		insight_id UUID,
		customer_id String,
		session_id String,
		insight_type LowCardinality(String),
		timestamp DateTime64(3),
		slide_id String,
		details String,
		related_event_ids Array(String)
	) ENGINE = MergeTree
	ORDER BY (customer_id, insight_type, timestamp)`,
}
