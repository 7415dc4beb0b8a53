package capture

import (
	"sync"
	"time"
)

// poller runs fn on a ticker until stopped
type poller struct {
	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func (p *poller) start(interval time.Duration, fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return false
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.running = true

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fn()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}(p.stop, p.done)

	return true
}

func (p *poller) halt() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stop)
	done := p.done
	p.running = false
	p.mu.Unlock()

	<-done
}

func (p *poller) isRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
