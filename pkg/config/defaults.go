package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "clinicbook"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	// The platform operates in one fixed clinic timezone; there is no
	// per-user timezone handling anywhere in the core.
	DefaultClinicTimeZone = "Asia/Ho_Chi_Minh"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultDoctorLockTTL        = 30 * time.Second
	DefaultDoctorLockRetryDelay = 25 * time.Millisecond
	DefaultDoctorLockWait       = 5 * time.Second

	DefaultSweepInterval = 24 * time.Hour

	DefaultPaginationLimit = 100
)
