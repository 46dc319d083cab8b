package bus

// Metrics receives bus observations. *metrics.Prometheus implements it.
type Metrics interface {
	MessageReceived(kind string)
	MessageRedelivered()
	MessageDropped(reason string)
	MessageSent(err error)
}

// Drop reasons.
const (
	DropDecode        = "decode"
	DropPlaceMismatch = "place_mismatch"
	DropUnresolved    = "place_unresolved"
	DropQueueFull     = "queue_full"
	DropStopped       = "executor_stopped"
	DropShutdown      = "shutdown"
	DropRejected      = "rejected"
)

type noopMetrics struct{}

func (noopMetrics) MessageReceived(string) {}
func (noopMetrics) MessageRedelivered()    {}
func (noopMetrics) MessageDropped(string)  {}
func (noopMetrics) MessageSent(error)      {}
