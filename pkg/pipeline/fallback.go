package pipeline

import (
	"sync"
	"time"
)

// FallbackTransition records one move of the input cursor
type FallbackTransition struct {
	From      InputMethod `json:"from"`
	To        InputMethod `json:"to"`
	Reason    string      `json:"reason"`
	Timestamp time.Time   `json:"timestamp"`
}

// FallbackChain tracks which input method is current. It only moves forward on
// sustained failure; returning to the first method requires ResetToPrimary.
type FallbackChain struct {
	mu          sync.Mutex
	methods     []InputMethod
	index       int
	failures    int
	threshold   int
	transitions []FallbackTransition
	listeners   []func(FallbackTransition)
	logger      Logger
}

// NewFallbackChain creates a chain over the given methods in fallback order.
// Manual is always appended as the terminal step if missing. A nil or empty
// methods slice means every method.
func NewFallbackChain(threshold int, methods []InputMethod, logger Logger) *FallbackChain {
	if threshold < 1 {
		threshold = 1
	}
	if logger == nil {
		logger = NullLogger()
	}
	if len(methods) == 0 {
		methods = AllInputMethods
	}

	chain := make([]InputMethod, 0, len(methods)+1)
	seen := make(map[InputMethod]bool)
	for _, m := range methods {
		if m == MethodManual || seen[m] {
			continue
		}
		seen[m] = true
		chain = append(chain, m)
	}
	chain = append(chain, MethodManual)

	return &FallbackChain{
		methods:   chain,
		threshold: threshold,
		logger:    logger.With(String("component", "fallback_chain")),
	}
}

// Current returns the active input method
func (c *FallbackChain) Current() InputMethod {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.methods[c.index]
}

// Methods returns the chain in fallback order
func (c *FallbackChain) Methods() []InputMethod {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]InputMethod, len(c.methods))
	copy(out, c.methods)
	return out
}

// ConsecutiveFailures returns the failure count of the current method
func (c *FallbackChain) ConsecutiveFailures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// OnTransition subscribes to cursor moves
func (c *FallbackChain) OnTransition(listener func(FallbackTransition)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

// ReportFailure counts a failure of the current method. Once the count
// reaches the threshold the cursor advances one step and the count resets.
// Manual never advances. It returns true when the cursor moved.
func (c *FallbackChain) ReportFailure(reason string) bool {
	c.mu.Lock()

	current := c.methods[c.index]
	if current == MethodManual {
		c.mu.Unlock()
		return false
	}

	c.failures++
	if c.failures < c.threshold {
		c.logger.Debug("Input method failure counted",
			String("method", current.String()),
			Int("consecutive_failures", c.failures),
			Int("threshold", c.threshold),
		)
		c.mu.Unlock()
		return false
	}

	c.index++
	c.failures = 0
	transition := c.record(current, c.methods[c.index], reason)
	listeners := c.listeners
	c.mu.Unlock()

	for _, listener := range listeners {
		listener(transition)
	}
	return true
}

// ReportSuccess clears the failure count of the current method. It never moves the cursor.
func (c *FallbackChain) ReportSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = 0
}

// ResetToPrimary moves the cursor back to the first method. It returns false
// when the cursor already was there.
func (c *FallbackChain) ResetToPrimary(reason string) bool {
	c.mu.Lock()

	c.failures = 0
	if c.index == 0 {
		c.mu.Unlock()
		return false
	}

	from := c.methods[c.index]
	c.index = 0
	transition := c.record(from, c.methods[0], reason)
	listeners := c.listeners
	c.mu.Unlock()

	for _, listener := range listeners {
		listener(transition)
	}
	return true
}

// Transitions returns a copy of every recorded transition
func (c *FallbackChain) Transitions() []FallbackTransition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FallbackTransition, len(c.transitions))
	copy(out, c.transitions)
	return out
}

func (c *FallbackChain) record(from, to InputMethod, reason string) FallbackTransition {
	transition := FallbackTransition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	c.transitions = append(c.transitions, transition)

	c.logger.Warn("Input method changed",
		String("from", from.String()),
		String("to", to.String()),
		String("reason", reason),
	)
	return transition
}
