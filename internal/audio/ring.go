package audio

import "sync/atomic"

// Ring is a single-producer single-consumer buffer of interleaved float32
// samples. TryPush and Pull never block and take no locks: the producer owns
// the write index, the consumer owns the read index, and each publishes its
// own index with an atomic store after touching the sample data. Indices
// increase monotonically and are wrapped modulo capacity on access.
//
// Reset may only be called while both sides are known idle for this
// instance, at a track boundary.
type Ring struct {
	buf []float32

	readIdx  atomic.Uint64
	writeIdx atomic.Uint64
}

// NewRing creates a ring holding capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		panic("audio: ring capacity must be positive")
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Cap returns the ring capacity in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of samples currently buffered.
func (r *Ring) Len() int {
	return int(r.writeIdx.Load() - r.readIdx.Load())
}

// Free returns the number of samples that can be pushed without overwriting.
func (r *Ring) Free() int {
	return len(r.buf) - r.Len()
}

// TryPush copies as much of src as fits and returns the number of samples
// accepted. Producer side only.
func (r *Ring) TryPush(src []float32) int {
	read := r.readIdx.Load()
	write := r.writeIdx.Load()

	free := len(r.buf) - int(write-read)
	n := len(src)
	if n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	pos := int(write % uint64(len(r.buf)))
	first := copy(r.buf[pos:], src[:n])
	if first < n {
		copy(r.buf, src[first:n])
	}

	r.writeIdx.Store(write + uint64(n))
	return n
}

// Pull copies up to len(dst) buffered samples into dst and returns the number
// delivered, possibly zero. Consumer side only.
func (r *Ring) Pull(dst []float32) int {
	read := r.readIdx.Load()
	write := r.writeIdx.Load()

	n := int(write - read)
	if n > len(dst) {
		n = len(dst)
	}
	if n == 0 {
		return 0
	}

	pos := int(read % uint64(len(r.buf)))
	first := copy(dst[:n], r.buf[pos:])
	if first < n {
		copy(dst[first:n], r.buf)
	}

	r.readIdx.Store(read + uint64(n))
	return n
}

// Discard drops up to n buffered samples without copying them out and
// returns the number dropped. Consumer side only.
func (r *Ring) Discard(n int) int {
	read := r.readIdx.Load()
	write := r.writeIdx.Load()

	avail := int(write - read)
	if n > avail {
		n = avail
	}
	if n <= 0 {
		return 0
	}
	r.readIdx.Store(read + uint64(n))
	return n
}

// Reset empties the ring. Both sides must be idle.
func (r *Ring) Reset() {
	r.readIdx.Store(0)
	r.writeIdx.Store(0)
}
