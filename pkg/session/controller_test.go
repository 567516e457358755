package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/moments/pkg/adapters/headless"
	"github.com/aretw0/moments/pkg/domain"
	"github.com/aretw0/moments/pkg/ports"
	"github.com/aretw0/moments/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func params(media domain.MediaType) session.CreateParams {
	return session.CreateParams{
		MediaType: media,
		UserID:    "u1",
		Profile:   domain.DeviceProfile{Mobile: false, MaxRasterDimension: domain.DesktopMaxRasterDimension},
		Theme:     domain.Theme{Name: "moments", Mode: "dark"},
		Anchor:    "#editor",
		License:   "lic",
	}
}

func TestController_CreateImage(t *testing.T) {
	f := headless.NewFactory()
	var transitions []domain.SessionState
	c := session.NewController(f, session.WithHooks(domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, e *domain.StateEvent) { transitions = append(transitions, e.To) },
	}, "s1"))

	require.NoError(t, c.Create(context.Background(), params(domain.MediaImage)))
	assert.Equal(t, domain.StateReady, c.State())
	assert.NoError(t, c.Err())

	eng := f.Last()
	require.NotNil(t, eng)
	assert.Equal(t, 1, eng.CallCount(headless.OpCreateImageScene))
	assert.Zero(t, eng.CallCount(headless.OpCreateVideoScene))
	assert.Equal(t, domain.DesktopMaxRasterDimension, eng.Config().MaxRasterDimension)
	assert.Equal(t, "#editor", eng.Anchor())
	assert.Equal(t, "dark", eng.Theme().Mode)

	got, ok := c.Engine()
	require.True(t, ok)
	assert.Same(t, eng, got)

	assert.Equal(t, []domain.SessionState{domain.StateInitializing, domain.StateReady}, transitions)
}

func TestController_CreateVideo(t *testing.T) {
	f := headless.NewFactory()
	c := session.NewController(f)
	require.NoError(t, c.Create(context.Background(), params(domain.MediaVideo)))

	eng := f.Last()
	assert.Equal(t, 1, eng.CallCount(headless.OpCreateVideoScene))
	assert.Zero(t, eng.CallCount(headless.OpCreateImageScene))
}

func TestController_VideoUnavailable(t *testing.T) {
	f := headless.NewFactory(headless.WithVideoSupport(false))
	c := session.NewController(f)

	err := c.Create(context.Background(), params(domain.MediaVideo))
	var serr *domain.SessionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, domain.KindVideoUnavailable, serr.Kind)
	assert.ErrorIs(t, err, domain.ErrVideoUnsupported)
	assert.Equal(t, domain.StateError, c.State())
	assert.Empty(t, f.Engines(), "engine never created")
}

func TestController_CreateFailure(t *testing.T) {
	f := headless.NewFactory(headless.WithCreateError(errors.New("webgl context lost")))
	c := session.NewController(f)

	err := c.Create(context.Background(), params(domain.MediaImage))
	var serr *domain.SessionError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, domain.KindStartFailed, serr.Kind)
	assert.NotEmpty(t, serr.Message)
	assert.Equal(t, serr, c.Err())
}

func TestController_PartialHandleDisposed(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*headless.Engine)
	}{
		{"scene error", func(e *headless.Engine) { e.FailOn(headless.OpCreateImageScene, errors.New("oom")) }},
		{"theme panic", func(e *headless.Engine) { e.PanicOn(headless.OpApplyTheme) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := headless.NewFactory(headless.WithPrepare(tt.prepare))
			c := session.NewController(f)

			err := c.Create(context.Background(), params(domain.MediaImage))
			require.Error(t, err)
			assert.Equal(t, domain.StateError, c.State())
			assert.Equal(t, 1, f.Last().DisposeCount())

			c.Dispose()
			assert.Equal(t, 1, f.Last().DisposeCount(), "engine released exactly once")
		})
	}
}

func TestController_DisposeIdempotentLIFO(t *testing.T) {
	f := headless.NewFactory()
	c := session.NewController(f)
	require.NoError(t, c.Create(context.Background(), params(domain.MediaImage)))

	var order []int
	c.Defer(func() { order = append(order, 1) })
	c.Defer(func() { order = append(order, 2) })
	c.Defer(func() { panic("bad teardown") })
	c.Defer(func() { order = append(order, 3) })

	c.Dispose()
	c.Dispose()

	assert.Equal(t, []int{3, 2, 1}, order)
	assert.Equal(t, 1, f.Last().DisposeCount())
	assert.Equal(t, domain.StateDisposed, c.State())
	_, ok := c.Engine()
	assert.False(t, ok)

	ran := false
	c.Defer(func() { ran = true })
	assert.True(t, ran, "teardown registered after disposal runs immediately")
}

func TestController_DisposeBeforeCreationResolves(t *testing.T) {
	gate := make(chan struct{})
	f := headless.NewFactory(headless.WithCreateGate(gate))
	c := session.NewController(f)

	done := make(chan error, 1)
	go func() { done <- c.Create(context.Background(), params(domain.MediaImage)) }()

	require.Eventually(t, func() bool { return c.State() == domain.StateInitializing }, time.Second, time.Millisecond)
	c.Dispose()
	assert.Equal(t, domain.StateDisposed, c.State())

	close(gate)
	err := <-done
	assert.ErrorIs(t, err, domain.ErrSessionDisposed)

	eng := f.Last()
	require.NotNil(t, eng)
	assert.Equal(t, 1, eng.DisposeCount())
	assert.Zero(t, eng.CallCount(headless.OpCreateImageScene), "no scene on a discarded engine")
	assert.Equal(t, domain.StateDisposed, c.State())
}

func TestController_CreateTwice(t *testing.T) {
	c := session.NewController(headless.NewFactory())
	require.NoError(t, c.Create(context.Background(), params(domain.MediaImage)))
	assert.ErrorIs(t, c.Create(context.Background(), params(domain.MediaImage)), domain.ErrInvalidTransition)

	c.Dispose()
	assert.ErrorIs(t, c.Create(context.Background(), params(domain.MediaImage)), domain.ErrSessionDisposed)
}

func TestController_DisposeFromUninitialized(t *testing.T) {
	c := session.NewController(headless.NewFactory())
	c.Dispose()
	assert.Equal(t, domain.StateDisposed, c.State())
}

func TestController_ConcurrentDispose(t *testing.T) {
	f := headless.NewFactory()
	c := session.NewController(f)
	require.NoError(t, c.Create(context.Background(), params(domain.MediaImage)))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Dispose()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, f.Last().DisposeCount())
}

func TestController_SubscribeReleasedOnDispose(t *testing.T) {
	f := headless.NewFactory()
	c := session.NewController(f)
	require.NoError(t, c.Create(context.Background(), params(domain.MediaImage)))
	eng := f.Last()

	require.NoError(t, c.Subscribe(func(e ports.Engine) func() {
		return e.Events().Subscribe(nil, func([]ports.BlockEvent) {})
	}))
	assert.Equal(t, 1, eng.Subscribers())

	c.Dispose()
	assert.Zero(t, eng.Subscribers())
}

func TestController_SubscribeAfterDispose(t *testing.T) {
	f := headless.NewFactory()
	c := session.NewController(f)
	require.NoError(t, c.Create(context.Background(), params(domain.MediaImage)))
	c.Dispose()

	called := false
	err := c.Subscribe(func(ports.Engine) func() {
		called = true
		return func() {}
	})
	assert.ErrorIs(t, err, domain.ErrSessionDisposed)
	assert.False(t, called, "a released engine is never subscribed to")

	err = session.NewController(f).Subscribe(func(ports.Engine) func() { return nil })
	assert.ErrorIs(t, err, domain.ErrNotStarted)
}
