package domain

import "time"

// Setting is one row of the persisted settings table (spec §3 "Settings",
// §4.10): a keyed map grouped by section, with a value-type discriminator so
// a single generic table round-trips int/float/bool/string values — the
// shape fetchx_cli's config/settings.py uses (see SPEC_FULL.md).
type Setting struct {
	Section   string
	Key       string
	Value     string
	ValueType string // "int" | "float" | "bool" | "string"
	UpdatedAt time.Time
}

// Settings tunables recognized by the core (spec §6).
const (
	SectionDownload = "download"
	SectionQueue    = "queue"
	SectionPaths    = "paths"
	SectionTemp     = "temp"
	SectionCleanup  = "cleanup"

	KeyMaxConnections         = "max_connections"
	KeyChunkSize              = "chunk_size"
	KeyTimeout                = "timeout"
	KeyMaxRetries             = "max_retries"
	KeyRetryDelay             = "retry_delay"
	KeyUserAgent              = "user_agent"
	KeyMaxConcurrentDownloads = "max_concurrent_downloads"
	KeyDownloadDir            = "download_dir"
	KeyTempBaseDir            = "temp_base_dir"
	KeyCleanupAgeDays         = "cleanup_age_days"
	KeySessionCleanupAgeDays  = "session_cleanup_age_days"
)
