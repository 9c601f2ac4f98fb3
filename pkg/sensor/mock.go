package sensor

import (
	"sync"
	"time"

	"github.com/chewxy/math32"
)

// Waveform describes a simulated channel: a sine around Base with the given
// amplitude and period, plus a deterministic ripple of size Noise.
// Digital channels report 1 while the waveform is above half scale.
type Waveform struct {
	Base      float32       `yaml:"base"`
	Amplitude float32       `yaml:"amplitude"`
	Period    time.Duration `yaml:"period"`
	Noise     float32       `yaml:"noise"`
}

// Mock simulates a board whose channels follow waveforms. Channels without a
// waveform read 0.
type Mock struct {
	mu        sync.RWMutex
	waves     map[Channel]Waveform
	startTime time.Time
	now       func() time.Time
}

var _ Board = (*Mock)(nil)

// NewMock creates a mock board starting its waveforms now.
func NewMock(waves map[Channel]Waveform) *Mock {
	m := &Mock{
		waves: make(map[Channel]Waveform, len(waves)),
		now:   time.Now,
	}
	for ch, w := range waves {
		m.waves[ch] = w
	}
	m.startTime = m.now()
	return m
}

// SetWaveform replaces the waveform of ch.
func (m *Mock) SetWaveform(ch Channel, w Waveform) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waves[ch] = w
}

// Open implements Board.
func (m *Mock) Open(ch Channel) (Reader, error) {
	return ReaderFunc(func() (int, error) {
		return m.sample(ch), nil
	}), nil
}

func (m *Mock) sample(ch Channel) int {
	m.mu.RLock()
	w, ok := m.waves[ch]
	elapsed := m.now().Sub(m.startTime)
	m.mu.RUnlock()

	if !ok {
		return 0
	}

	v := w.Base
	if w.Period > 0 {
		phase := float32(elapsed.Seconds() / w.Period.Seconds())
		v += w.Amplitude * math32.Sin(2*math32.Pi*phase)
	}

	// Ripple from two incommensurate sines.
	t := float32(elapsed.Milliseconds())
	v += (math32.Sin(t*0.013) + math32.Cos(t*0.0071)) * w.Noise * 0.5

	if ch.Kind == Digital {
		if v > float32(AnalogMax)/2 {
			return DigitalMax
		}
		return 0
	}

	v = math32.Round(v)
	if v < 0 {
		return 0
	}
	if v > AnalogMax {
		return AnalogMax
	}
	return int(v)
}
