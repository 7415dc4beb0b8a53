package capture

import "sync"

// pcmBuffer accumulates recorder output up to a fixed size. When full the
// oldest frames are discarded.
type pcmBuffer struct {
	mu      sync.Mutex
	data    []byte
	max     int
	frame   int
	dropped uint64
}

func newPCMBuffer(max, frame int) *pcmBuffer {
	if frame < 1 {
		frame = 1
	}
	max -= max % frame
	if max < frame {
		max = frame
	}
	return &pcmBuffer{max: max, frame: frame}
}

func (b *pcmBuffer) Append(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)
	if over := len(b.data) - b.max; over > 0 {
		if rem := over % b.frame; rem != 0 {
			over += b.frame - rem
		}
		b.data = append(b.data[:0], b.data[over:]...)
		b.dropped += uint64(over)
	}
}

// TakeAtLeast returns the whole buffer, aligned to full frames, once it
// holds at least min bytes. Otherwise it returns nil.
func (b *pcmBuffer) TakeAtLeast(min int) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.data) - len(b.data)%b.frame
	if n == 0 || n < min {
		return nil
	}

	out := make([]byte, n)
	copy(out, b.data[:n])
	b.data = append(b.data[:0], b.data[n:]...)
	return out
}

func (b *pcmBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

func (b *pcmBuffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *pcmBuffer) Reset() {
	b.mu.Lock()
	b.data = b.data[:0]
	b.mu.Unlock()
}
