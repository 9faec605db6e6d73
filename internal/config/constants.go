package config

import "time"

// Protocol time windows. These are wire contracts shared with the device
// firmware and the companion app; do not tune them casually.
const (
	// PairingCodeTTL is a hard cutoff measured from code creation. No clock
	// skew compensation is applied.
	PairingCodeTTL = 240 * time.Second

	// SignedTokenTTL is the lifetime of issued app/device tokens. Tokens are
	// not refreshable; a fresh pairing code must be exchanged.
	SignedTokenTTL = 3600 * time.Second

	// CommandTTL bounds how long an unacknowledged command stays deliverable.
	CommandTTL = 300 * time.Second

	// DeviceStaleAfter is the heartbeat staleness threshold: a device whose
	// last poll is older than this is reported disconnected regardless of the
	// stored connected flag.
	DeviceStaleAfter = 60 * time.Second

	// SweepCollisionWindow suppresses a provider-sourced presence write when
	// the companion app pushed state this recently. App-origin data wins.
	SweepCollisionWindow = 15 * time.Second

	// TokenRefreshHorizon triggers a proactive provider token refresh when
	// the access token expires within this window.
	TokenRefreshHorizon = 60 * time.Second

	// OAuthNonceTTL bounds the window between a device starting an OAuth
	// flow and the browser resolving it.
	OAuthNonceTTL = 10 * time.Minute

	// DeviceSignatureSkew is the accepted clock drift on signed device
	// request timestamps.
	DeviceSignatureSkew = 300 * time.Second

	// RefreshLockTTL guards a provider token refresh against an overlapping
	// sweep cycle refreshing the same token.
	RefreshLockTTL = 30 * time.Second
)

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Admin session lifetime
const AdminSessionTTL = 24 * time.Hour

// Default rate limiting
const DefaultRateLimitPerMin = 60
