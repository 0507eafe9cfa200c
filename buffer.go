package avtk

import (
	"io"
	"sync"
)

// defaultSlotSize holds 10ms of 48kHz stereo S16 per slot, doubled so
// a decode can land while the device drains the other slot.
const defaultSlotSize = 2 * 1920

// DoubleBuffer moves PCM from a decoding goroutine to an audio device
// callback. Two fixed slots alternate: the producer fills the back
// slot and blocks only when both are full; the consumer never blocks,
// it drains the front slot and flips when it runs dry. Device
// callbacks must not wait, so a starved Consume returns short.
type DoubleBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	slots  [2][]byte
	fill   [2]int
	read   int
	active int
	closed bool
	done   chan struct{}
	sealed bool
}

// NewDoubleBuffer creates a buffer with the given per-slot capacity.
// slotSize <= 0 selects a default sized for 48kHz stereo S16.
func NewDoubleBuffer(slotSize int) *DoubleBuffer {
	if slotSize <= 0 {
		slotSize = defaultSlotSize
	}
	b := &DoubleBuffer{done: make(chan struct{})}
	b.cond = sync.NewCond(&b.mu)
	b.slots[0] = make([]byte, slotSize)
	b.slots[1] = make([]byte, slotSize)
	return b
}

// Produce appends p, blocking while both slots are full. It returns
// io.ErrClosedPipe after Close.
func (b *DoubleBuffer) Produce(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for total < len(p) {
		if b.closed {
			return total, io.ErrClosedPipe
		}
		back := 1 - b.active
		space := len(b.slots[back]) - b.fill[back]
		if space == 0 {
			b.cond.Wait()
			continue
		}
		n := copy(b.slots[back][b.fill[back]:], p[total:])
		b.fill[back] += n
		total += n
	}
	return total, nil
}

// Consume copies up to len(p) buffered bytes into p without blocking.
// It returns 0 when the buffer is empty.
func (b *DoubleBuffer) Consume(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for total < len(p) {
		if b.read == b.fill[b.active] {
			b.fill[b.active] = 0
			b.read = 0
			b.active = 1 - b.active
			b.cond.Signal()
			if b.fill[b.active] == 0 {
				break
			}
		}
		n := copy(p[total:], b.slots[b.active][b.read:b.fill[b.active]])
		b.read += n
		total += n
	}
	b.sealIfDrained()
	return total
}

// Buffered returns the number of bytes waiting to be consumed.
func (b *DoubleBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffered()
}

func (b *DoubleBuffer) buffered() int {
	return (b.fill[b.active] - b.read) + b.fill[1-b.active]
}

func (b *DoubleBuffer) sealIfDrained() {
	if b.closed && !b.sealed && b.buffered() == 0 {
		b.sealed = true
		close(b.done)
	}
}

// Close stops the producer side. Buffered data stays readable; Done
// is closed once the consumer drains it.
func (b *DoubleBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.cond.Broadcast()
		b.sealIfDrained()
	}
	return nil
}

// Done is closed after Close once every buffered byte was consumed.
func (b *DoubleBuffer) Done() <-chan struct{} {
	return b.done
}
