package scanner

// Capabilities describes what the radio can do on its own.
type Capabilities struct {
	OffloadedFiltering    bool
	OffloadedBatching     bool
	HardwareCallbackTypes bool
}

// Capabilities lets a fixed Capabilities value act as a CapabilityProvider.
func (c Capabilities) Capabilities() Capabilities { return c }

// CapabilityProvider is queried once per subscription start.
type CapabilityProvider interface {
	Capabilities() Capabilities
}

// Sink is the push interface radios deliver into. Implementations must not
// block the caller.
type Sink interface {
	HandleEvent(ev DiscoveryEvent)
	HandleBatch(events []DiscoveryEvent)
	HandleFailure(code ErrorCode)
}

// RadioController is the optional lifecycle side of a radio. The registry
// starts it when the first subscription registers and stops it when the
// last one leaves.
type RadioController interface {
	StartScan() error
	StopScan() error
	// FlushPending asks the radio to deliver hardware-batched results now.
	FlushPending() error
}
