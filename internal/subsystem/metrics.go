package subsystem

// Metrics receives runtime observations. Implementations must be safe for
// concurrent use; every executor and the registry share one.
type Metrics interface {
	CacheHit()
	CacheMiss()
	CacheEviction(reason string)
	CacheLoadFailure()

	QueueDepth(placeID string, depth int)
	QueueRejected(placeID string)

	EventDropped(placeID, reason string)
	EventRedirected(placeID, rule string)
	CommitFailed(placeID, subsystem string)

	// ForgetPlace releases per-place series when an executor stops.
	ForgetPlace(placeID string)
}

// Eviction reasons.
const (
	EvictExpired  = "expired"
	EvictSize     = "size"
	EvictExplicit = "explicit"
	EvictMemory   = "memory"
)

// Drop reasons.
const (
	DropNotFound    = "destination_not_found"
	DropDeleted     = "subsystem_deleted"
	DropExpired     = "ttl_expired"
	DropCanceled    = "wakeup_canceled"
	DropUnmatched   = "response_unmatched"
	DropUnsupported = "unsupported_request"
)

// Redirect rules.
const (
	RedirectIncident    = "incident"
	RedirectAlarmActive = "alarm_active"
)

type noopMetrics struct{}

func (noopMetrics) CacheHit()                      {}
func (noopMetrics) CacheMiss()                     {}
func (noopMetrics) CacheEviction(string)           {}
func (noopMetrics) CacheLoadFailure()              {}
func (noopMetrics) QueueDepth(string, int)         {}
func (noopMetrics) QueueRejected(string)           {}
func (noopMetrics) EventDropped(string, string)    {}
func (noopMetrics) EventRedirected(string, string) {}
func (noopMetrics) CommitFailed(string, string)    {}
func (noopMetrics) ForgetPlace(string)             {}
