package audio

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// FFT size, power of 2. At 44100Hz this yields ~21 frames/sec.
	fftSize = 2048
	// frequency bands exposed to observers
	numBands = 128
	// temporal smoothing factor between FFT frames
	smoothingFactor = 0.5
)

// BandsCallback receives a fresh band vector whenever a full FFT window has
// been analyzed.
type BandsCallback func(bands []uint8)

// Analyzer performs FFT analysis on the rendered output, downmixed to mono.
// It is fed from the device pull path and read by IPC subscribers.
type Analyzer struct {
	mu sync.RWMutex

	fft    *fourier.FFT
	window []float64 // Hanning

	sampleBuffer []float64
	bufferIndex  int

	bands         []float64
	smoothedBands []float64

	sampleRate int
	channels   int
	ready      bool

	callback BandsCallback
}

func NewAnalyzer(sampleRate, channels int) *Analyzer {
	window := make([]float64, fftSize)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(fftSize-1)))
	}

	return &Analyzer{
		fft:           fourier.NewFFT(fftSize),
		window:        window,
		sampleBuffer:  make([]float64, fftSize),
		bands:         make([]float64, numBands),
		smoothedBands: make([]float64, numBands),
		sampleRate:    sampleRate,
		channels:      channels,
	}
}

// ProcessSamples consumes interleaved float32 frames in [-1,1], averaging
// channels into the mono FFT buffer. When the buffer wraps it computes a
// new band vector and notifies the callback outside the lock.
func (a *Analyzer) ProcessSamples(samples []float32) {
	var notify bool
	var bands []uint8

	a.mu.Lock()

	for i := 0; i+a.channels <= len(samples); i += a.channels {
		var sum float64
		for c := 0; c < a.channels; c++ {
			sum += float64(samples[i+c])
		}
		a.sampleBuffer[a.bufferIndex] = sum / float64(a.channels)
		a.bufferIndex = (a.bufferIndex + 1) % fftSize

		if a.bufferIndex == 0 {
			a.computeFFT()
			a.ready = true
			if a.callback != nil {
				notify = true
				bands = a.snapshotBandsLocked()
			}
		}
	}

	cb := a.callback
	a.mu.Unlock()

	if notify && cb != nil {
		cb(bands)
	}
}

func (a *Analyzer) snapshotBandsLocked() []uint8 {
	out := make([]uint8, numBands)
	for i, v := range a.smoothedBands {
		switch {
		case v > 255:
			out[i] = 255
		case v < 0:
			out[i] = 0
		default:
			out[i] = uint8(v)
		}
	}
	return out
}

// computeFFT folds the circular buffer into logarithmically spaced bands,
// scaled 0-255 over a -60dB to 0dB range.
func (a *Analyzer) computeFFT() {
	windowed := make([]float64, fftSize)
	for i := 0; i < fftSize; i++ {
		idx := (a.bufferIndex + i) % fftSize
		windowed[i] = a.sampleBuffer[idx] * a.window[i]
	}

	coeffs := a.fft.Coefficients(nil, windowed)

	nyquist := fftSize / 2
	freqPerBin := float64(a.sampleRate) / float64(fftSize)

	for i := range a.bands {
		a.bands[i] = 0
	}

	minFreq := 20.0
	maxFreq := 20000.0
	if float64(a.sampleRate)/2 < maxFreq {
		maxFreq = float64(a.sampleRate) / 2
	}
	logMin := math.Log10(minFreq)
	logRange := math.Log10(maxFreq) - logMin

	bandCounts := make([]int, numBands)
	for bin := 1; bin < nyquist; bin++ {
		freq := float64(bin) * freqPerBin
		if freq < minFreq || freq > maxFreq {
			continue
		}

		band := int((math.Log10(freq) - logMin) / logRange * float64(numBands))
		if band >= numBands {
			band = numBands - 1
		}
		if band < 0 {
			band = 0
		}

		re := real(coeffs[bin])
		im := imag(coeffs[bin])
		magnitude := math.Sqrt(re*re + im*im)

		db := 20 * math.Log10(magnitude/float64(fftSize)+1e-10)
		normalized := (db + 60) / 60 * 255
		if normalized < 0 {
			normalized = 0
		}
		if normalized > 255 {
			normalized = 255
		}

		a.bands[band] += normalized
		bandCounts[band]++
	}

	for i := range a.bands {
		if bandCounts[i] > 0 {
			a.bands[i] /= float64(bandCounts[i])
		}
	}

	// spread into adjacent bands so sparse bins don't leave holes
	spread := make([]float64, numBands)
	for i := range a.bands {
		spread[i] = a.bands[i]
		if i > 0 {
			spread[i] += a.bands[i-1] * 0.3
		}
		if i < numBands-1 {
			spread[i] += a.bands[i+1] * 0.3
		}
		if spread[i] > 255 {
			spread[i] = 255
		}
	}

	for i := range a.smoothedBands {
		a.smoothedBands[i] = smoothingFactor*a.smoothedBands[i] + (1-smoothingFactor)*spread[i]
	}
}

// Bands returns the current band vector, 0-255 per band.
func (a *Analyzer) Bands() []uint8 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotBandsLocked()
}

// SetCallback registers a push callback for fresh band vectors.
func (a *Analyzer) SetCallback(cb BandsCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callback = cb
}

// IsReady reports whether at least one full window has been analyzed.
func (a *Analyzer) IsReady() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ready
}

// Reset clears accumulated analysis state, used across track boundaries.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.bufferIndex = 0
	a.ready = false
	for i := range a.sampleBuffer {
		a.sampleBuffer[i] = 0
	}
	for i := range a.bands {
		a.bands[i] = 0
	}
	for i := range a.smoothedBands {
		a.smoothedBands[i] = 0
	}
}
