package scanner

// Callback receives the notifications of one subscription.
//
// Callbacks run on registry goroutines while the subscription is locked,
// which is what makes Registry.Stop synchronous. They must not call back
// into the Registry for the same subscription.
//
// The callback value is the subscription's identity and must therefore be
// comparable; use pointer receivers.
type Callback interface {
	OnDiscovered(callbackType CallbackType, ev DiscoveryEvent)
	OnBatch(events []DiscoveryEvent)
	OnFailed(code ErrorCode)
}

// CallbackFuncs adapts plain functions to Callback. Nil fields are skipped.
// Register a *CallbackFuncs, never a value.
type CallbackFuncs struct {
	Discovered func(CallbackType, DiscoveryEvent)
	Batch      func([]DiscoveryEvent)
	Failed     func(ErrorCode)
}

func (c *CallbackFuncs) OnDiscovered(t CallbackType, ev DiscoveryEvent) {
	if c.Discovered != nil {
		c.Discovered(t, ev)
	}
}

func (c *CallbackFuncs) OnBatch(events []DiscoveryEvent) {
	if c.Batch != nil {
		c.Batch(events)
	}
}

func (c *CallbackFuncs) OnFailed(code ErrorCode) {
	if c.Failed != nil {
		c.Failed(code)
	}
}
