package sensor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/itohio/gotelem/pkg/observe"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeSensors() FirmwareVersion {
	return FirmwareVersion{
		VersionID: 2,
		Bindings: []Binding{
			{ID: "temp", Channel: A(0)},
			{ID: "light", Channel: A(1)},
			{ID: "humidity", Channel: A(2)},
		},
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	board := NewStaticBoard(map[Channel]int{A(0): 512, A(1): 300, A(2): 88})
	reg := NewRegistry(board, nil)
	require.NoError(t, reg.Configure(threeSensors()))

	snap, err := reg.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"temp": 512, "light": 300, "humidity": 88}, snap.Values)
	assert.Empty(t, snap.Missing)
	assert.False(t, snap.TakenAt.IsZero())
}

func TestRegistry_NotConfigured(t *testing.T) {
	reg := NewRegistry(NewStaticBoard(nil), nil)
	_, err := reg.Snapshot()
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestRegistry_ConfigureOnce(t *testing.T) {
	reg := NewRegistry(NewStaticBoard(nil), nil)
	require.NoError(t, reg.Configure(threeSensors()))
	assert.ErrorIs(t, reg.Configure(threeSensors()), ErrAlreadyConfigured)
}

func TestRegistry_ConfigureRejectsInvalid(t *testing.T) {
	reg := NewRegistry(NewStaticBoard(nil), nil)
	v := FirmwareVersion{Bindings: []Binding{{ID: "x", Channel: A(0)}, {ID: "x", Channel: A(1)}}}
	assert.Error(t, reg.Configure(v))

	// A rejected version does not consume the single configure.
	assert.NoError(t, reg.Configure(threeSensors()))
}

func TestRegistry_VersionIsCopy(t *testing.T) {
	reg := NewRegistry(NewStaticBoard(nil), nil)
	require.NoError(t, reg.Configure(threeSensors()))

	v := reg.Version()
	v.Bindings[0].ID = "changed"
	assert.Equal(t, []string{"temp", "light", "humidity"}, reg.Version().IDs())
}

func TestRegistry_UnavailableBinding(t *testing.T) {
	board := NewStaticBoard(map[Channel]int{A(0): 512, A(1): 300, A(2): 88})
	board.Fail(A(1), errors.New("adc busy"))
	rec := &observe.Recorder{}
	reg := NewRegistry(board, rec)
	require.NoError(t, reg.Configure(threeSensors()))

	snap, err := reg.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"temp": 512, "humidity": 88}, snap.Values)
	assert.Equal(t, []string{"light"}, snap.Missing)
	assert.Equal(t, []string{"light"}, rec.Unavailable)
}

func TestRegistry_OutOfRange(t *testing.T) {
	board := NewStaticBoard(map[Channel]int{A(0): 1024, D(2): 2})
	rec := &observe.Recorder{}
	reg := NewRegistry(board, rec)
	require.NoError(t, reg.Configure(FirmwareVersion{Bindings: []Binding{
		{ID: "temp", Channel: A(0)},
		{ID: "motion", Channel: D(2)},
	}}))

	snap, err := reg.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Values)
	assert.Equal(t, []string{"temp", "motion"}, snap.Missing)
}

func TestRegistry_ReadTimeout(t *testing.T) {
	board := NewStaticBoard(map[Channel]int{A(0): 512, A(1): 300})
	board.Stall(A(1), 500*time.Millisecond)
	rec := &observe.Recorder{}
	reg := NewRegistry(board, rec)
	reg.SetReadTimeout(20 * time.Millisecond)
	require.NoError(t, reg.Configure(FirmwareVersion{Bindings: []Binding{
		{ID: "temp", Channel: A(0)},
		{ID: "light", Channel: A(1)},
	}}))

	start := time.Now()
	snap, err := reg.Snapshot()
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, map[string]int{"temp": 512}, snap.Values)
	assert.Equal(t, []string{"light"}, snap.Missing)
}

// stuckBoard blocks every read until release is closed.
type stuckBoard struct {
	release chan struct{}
	calls   atomic.Int32
}

func (b *stuckBoard) Open(Channel) (Reader, error) {
	return ReaderFunc(func() (int, error) {
		b.calls.Add(1)
		<-b.release
		return 42, nil
	}), nil
}

type unavailableLog struct {
	observe.Nop
	errs []error
}

func (u *unavailableLog) SensorUnavailable(_ string, err error) { u.errs = append(u.errs, err) }

func TestRegistry_TimedOutReadIsNotReissued(t *testing.T) {
	board := &stuckBoard{release: make(chan struct{})}
	log := &unavailableLog{}
	reg := NewRegistry(board, log)
	reg.SetReadTimeout(10 * time.Millisecond)
	require.NoError(t, reg.Configure(FirmwareVersion{Bindings: []Binding{{ID: "light", Channel: A(1)}}}))

	for i := 0; i < 3; i++ {
		snap, err := reg.Snapshot()
		require.NoError(t, err)
		assert.Equal(t, []string{"light"}, snap.Missing)
	}
	assert.EqualValues(t, 1, board.calls.Load(), "no new read while the first one is stuck")
	require.Len(t, log.errs, 3)
	assert.ErrorIs(t, log.errs[0], ErrTimeout)
	assert.ErrorIs(t, log.errs[1], ErrBusy)
	assert.ErrorIs(t, log.errs[2], ErrBusy)
	assert.ErrorIs(t, log.errs[2], ErrUnavailable)

	close(board.release)
	require.Eventually(t, func() bool {
		snap, err := reg.Snapshot()
		return err == nil && snap.Values["light"] == 42
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, board.calls.Load(), int32(2))
}

func TestUnavailableError(t *testing.T) {
	err := error(&UnavailableError{ID: "temp", Err: ErrTimeout})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "temp")
}

func TestLatest(t *testing.T) {
	var l Latest
	_, ok := l.Load()
	assert.False(t, ok)

	l.Store(Snapshot{Values: map[string]int{"temp": 1}})
	got, ok := l.Load()
	require.True(t, ok)
	assert.Equal(t, 1, got.Values["temp"])
}
