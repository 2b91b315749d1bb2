// Package constants defines system-wide constants for the argproxy service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Signed Link Constants
// ================================================================================

const (
	// DefaultCDNBaseURL is the scheme and host used when rendering canonical attachment links.
	DefaultCDNBaseURL = "https://cdn.discordapp.com"

	// AttachmentsPathSegment is the first path segment of every attachment link.
	AttachmentsPathSegment = "attachments"

	// QueryParamExpiresAt carries the hex encoded Unix expiry of a signature.
	QueryParamExpiresAt = "ex"

	// QueryParamIssuedAt carries the hex encoded Unix issue time of a signature.
	QueryParamIssuedAt = "is"

	// QueryParamSignature carries the hex encoded signature bytes.
	QueryParamSignature = "hm"

	// DefaultExpiryMargin is subtracted from a link's expiry before it is considered usable.
	DefaultExpiryMargin = 30 * time.Minute
)

// ================================================================================
// Upstream Refresh API Constants
// ================================================================================

const (
	// DefaultRefreshURL is the upstream endpoint that re-signs attachment links.
	DefaultRefreshURL = "https://discord.com/api/v9/attachments/refresh-urls"

	// DefaultUserAgent identifies this client to the upstream API.
	DefaultUserAgent = "DiscordBot (github.com/turtacn/argproxy; v0.1.0)"

	// DefaultAuthScheme prefixes the bot token in the Authorization header.
	DefaultAuthScheme = "Bot"

	// DefaultRefreshTimeout bounds a single refresh round-trip.
	DefaultRefreshTimeout = 10 * time.Second

	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"
	HeaderUserAgent     = "User-Agent"
	HeaderRequestID     = "X-Request-ID"

	ContentTypeJSON = "application/json"
)

// ================================================================================
// Cache Constants
// ================================================================================

const (
	// DefaultCacheKeyPrefix namespaces link records inside a shared store.
	DefaultCacheKeyPrefix = "argproxy:link:"

	// CacheBackendRedis selects the redis link store.
	CacheBackendRedis = "redis"

	// CacheBackendPostgres selects the postgres link store.
	CacheBackendPostgres = "postgres"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type for values stored on a request context.
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeyTraceID   ContextKey = "trace_id"
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ServiceName is reported by logs, traces and health checks.
const ServiceName = "argproxy"
