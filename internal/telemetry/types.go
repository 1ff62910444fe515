package telemetry

import "time"

const (
	// ServiceName is the gRPC service carrying telemetry events.
	ServiceName = "placement.telemetry.v1.Telemetry"
	// TrackMethod is the full method name of the unary Track RPC.
	TrackMethod = "/" + ServiceName + "/Track"
)

// Event is one tracked occurrence.
type Event struct {
	Kind    string
	Payload map[string]any
	SentAt  time.Time
}

// Options tunes the client's queue and send rate.
type Options struct {
	QueueSize int
	// RatePerSecond limits sends; zero or less means unlimited.
	RatePerSecond float64
	Burst         int
	SendTimeout   time.Duration
}

// DefaultOptions returns the options used by the controller binary.
func DefaultOptions() Options {
	return Options{
		QueueSize:     256,
		RatePerSecond: 20,
		Burst:         5,
		SendTimeout:   3 * time.Second,
	}
}

// Stats counts client outcomes since creation.
type Stats struct {
	Sent    int64
	Failed  int64
	Dropped int64
}
