// Package app wires all ingest subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the pipeline until the context ends, and
// Shutdown tears everything down in order.
//
// For testing, inject fakes via functional options (WithPublisher,
// WithCaptureBackend, etc.). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/stagelink/ingestd/internal/buttons"
	"github.com/stagelink/ingestd/internal/capture"
	"github.com/stagelink/ingestd/internal/config"
	"github.com/stagelink/ingestd/internal/device"
	"github.com/stagelink/ingestd/internal/observe"
	"github.com/stagelink/ingestd/internal/publish"
	"github.com/stagelink/ingestd/internal/queue"
	"github.com/stagelink/ingestd/internal/signaling"
	"github.com/stagelink/ingestd/pkg/audio"
)

// captureStartDelay holds the microphone back on startup so the button
// monitors and transport drains are already running when frames arrive.
const captureStartDelay = time.Second

// processedRate is the pipeline-wide output sample rate. The Opus encoder
// requires it, so the processor resamples everything to it.
const processedRate = 48000

// micRegistryKey names the capture session in the device registry, which
// is otherwise keyed by input device paths.
const micRegistryKey = "mic:actor"

// App owns all subsystem lifetimes and orchestrates the ingest pipeline.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	registry *device.Registry
	rawQ     *queue.SlidingWindow[audio.Frame]
	procQ    *queue.SlidingWindow[audio.TaggedFrame]
	dispatch *queue.Dispatch[buttons.Event]

	processor *audio.Processor
	conn      publish.Publisher
	audioPub  *publish.AudioPublisher
	buttonPub *publish.ButtonPublisher

	captureSession *device.Session
	buttonSessions []*device.Session

	// Injected test doubles; nil means build the real thing.
	backend    capture.Backend
	buttonOpen buttons.OpenFunc
	register   func(ctx context.Context) (string, error)

	// closers are called in order during Shutdown.
	closers []func() error

	// procReset asks processLoop to clear the processor's carry state
	// before the next frame. Set on every capture (re)connect.
	procReset atomic.Bool

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithPublisher injects a transport instead of dialing NATS from config.
func WithPublisher(p publish.Publisher) Option {
	return func(a *App) { a.conn = p }
}

// WithCaptureBackend injects a capture backend instead of initialising
// the system audio context.
func WithCaptureBackend(b capture.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithButtonOpen injects the input device opener used by all button
// monitors.
func WithButtonOpen(open buttons.OpenFunc) Option {
	return func(a *App) { a.buttonOpen = open }
}

// WithMetrics injects a metrics instance instead of using the package
// default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRegistrar replaces the signaling handshake.
func WithRegistrar(fn func(ctx context.Context) (string, error)) Option {
	return func(a *App) { a.register = fn }
}

// New creates an App by wiring all subsystems together. Initialisation is
// synchronous: queue construction, transport connection, device session
// setup. Hardware is not touched until Run; open failures go through the
// per-device reconnect policy instead of failing startup.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.registry = device.NewRegistry()
	a.dispatch = queue.NewDispatch[buttons.Event]()

	var err error
	if a.rawQ, err = queue.NewSlidingWindow[audio.Frame](cfg.Audio.QueueCapacity); err != nil {
		return nil, fmt.Errorf("app: raw frame queue: %w", err)
	}
	if a.procQ, err = queue.NewSlidingWindow[audio.TaggedFrame](cfg.Audio.QueueCapacity); err != nil {
		return nil, fmt.Errorf("app: processed frame queue: %w", err)
	}

	if a.processor, err = audio.NewProcessor(audio.ProcessorConfig{
		TargetRate:        processedRate,
		SilenceThreshold:  dbfsToLinear(cfg.Audio.SilenceThresholdDBFS),
		VADAggressiveness: cfg.Audio.VADAggressiveness,
		Denoise:           cfg.Audio.Denoise,
	}); err != nil {
		return nil, fmt.Errorf("app: init processor: %w", err)
	}

	if err := a.initTransport(); err != nil {
		return nil, fmt.Errorf("app: init transport: %w", err)
	}
	if err := a.initCapture(); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}
	if err := a.initButtons(); err != nil {
		return nil, fmt.Errorf("app: init buttons: %w", err)
	}
	if err := a.initPublishers(); err != nil {
		return nil, fmt.Errorf("app: init publishers: %w", err)
	}

	if a.register == nil && cfg.Signaling.URL != "" {
		sigCfg := signaling.Config{URL: cfg.Signaling.URL, Bearer: cfg.Signaling.Bearer}
		a.register = func(ctx context.Context) (string, error) {
			return signaling.Register(ctx, sigCfg)
		}
	}

	return a, nil
}

// Registry exposes the device registry for health checks.
func (a *App) Registry() *device.Registry { return a.registry }

// Transport exposes the publisher, letting the ops server probe the
// transport connection.
func (a *App) Transport() publish.Publisher { return a.conn }

// initTransport dials NATS unless a publisher was injected.
func (a *App) initTransport() error {
	if a.conn != nil {
		return nil
	}
	conn, err := publish.Connect(publish.ConnConfig{
		URL:        a.cfg.NATS.URL,
		Name:       "ingestd-" + a.cfg.Show.Name,
		UseTLS:     a.cfg.NATS.UseTLS,
		CACert:     a.cfg.NATS.CACert,
		ClientCert: a.cfg.NATS.ClientCert,
		ClientKey:  a.cfg.NATS.ClientKey,
	})
	if err != nil {
		return err
	}
	a.conn = conn
	a.closers = append(a.closers, func() error {
		conn.Close()
		return nil
	})
	return nil
}

// initCapture builds the microphone stage and its supervising session.
func (a *App) initCapture() error {
	if a.backend == nil {
		backend, err := capture.NewMalgoBackend()
		if err != nil {
			return err
		}
		a.backend = backend
		a.closers = append(a.closers, backend.Close)
	}

	stage := capture.NewStage(capture.StageConfig{
		Name:           "actor-mic",
		SourceID:       0,
		DeviceName:     a.cfg.Audio.DeviceName,
		SampleRate:     a.cfg.Audio.SampleRate,
		BlockSamples:   a.cfg.Audio.BlockSamples,
		LivenessWindow: a.cfg.Audio.LivenessWindow(),
		Queue:          a.rawQ,
		OnXrun: func() {
			a.metrics.RecordXrun(context.Background(), "actor-mic")
		},
	}, a.backend)

	var sess *device.Session
	hook := a.statusHook(micRegistryKey, func() *device.Session { return sess }, nil)
	sess = device.NewSession(device.Config{
		Name:                 "actor-mic",
		Capability:           stage,
		Backoff:              a.cfg.Devices.Backoff(),
		MaxReconnectAttempts: a.cfg.Devices.MaxReconnectAttempts,
		OnStatus: func(st device.Status) {
			// Every (re)connect starts a fresh stream: VAD and denoiser
			// carry state must not leak across it.
			if st == device.StatusConnected {
				a.procReset.Store(true)
			}
			hook(st)
		},
		OnRetry: a.retryHook("actor-mic"),
	})
	stage.Bind(sess)
	a.captureSession = sess
	return a.registry.Add(micRegistryKey, sess)
}

// initButtons builds one monitor + session per configured button device.
func (a *App) initButtons() error {
	type spec struct {
		name string
		path string
		grab bool
		keys map[buttons.KeyCode]buttons.Action
	}

	resetKeys, err := a.cfg.Buttons.Reset.KeyMap()
	if err != nil {
		return fmt.Errorf("reset button keys: %w", err)
	}
	specs := []spec{{
		name: "reset-button",
		path: a.cfg.Buttons.Reset.Path,
		grab: a.cfg.Buttons.Reset.Grab,
		keys: resetKeys,
	}}
	for i, av := range a.cfg.Buttons.Avatars {
		keys, err := av.KeyMap()
		if err != nil {
			return fmt.Errorf("avatar button %d keys: %w", i, err)
		}
		specs = append(specs, spec{
			name: fmt.Sprintf("avatar-button-%d", i),
			path: av.Path,
			grab: av.Grab,
			keys: keys,
		})
	}

	for _, sp := range specs {
		mon := buttons.NewMonitor(buttons.MonitorConfig{
			Name:     sp.name,
			Path:     sp.path,
			Grab:     sp.grab,
			Debounce: a.cfg.Buttons.Debounce(),
			Keys:     sp.keys,
			Dispatch: a.dispatch,
			Open:     a.buttonOpen,
		})
		var sess *device.Session
		hook := a.statusHook(sp.path, func() *device.Session { return sess }, mon)
		sess = device.NewSession(device.Config{
			Name:                 sp.name,
			Capability:           mon,
			Backoff:              a.cfg.Devices.Backoff(),
			MaxReconnectAttempts: a.cfg.Devices.MaxReconnectAttempts,
			OnStatus:             hook,
			OnRetry:              a.retryHook(sp.name),
		})
		a.buttonSessions = append(a.buttonSessions, sess)
		if err := a.registry.Add(sp.path, sess); err != nil {
			return err
		}
	}
	return nil
}

// initPublishers builds the two transport drains.
func (a *App) initPublishers() error {
	avatarIDs := map[string]int{a.cfg.Buttons.Reset.Path: -1}
	for i, av := range a.cfg.Buttons.Avatars {
		avatarIDs[av.Path] = i
	}

	a.buttonPub = publish.NewButtonPublisher(publish.ButtonPublisherConfig{
		AvatarIDs: avatarIDs,
		Dispatch:  a.dispatch,
		Publisher: a.conn,
		OnPublish: func(ev buttons.Event) {
			ctx := context.Background()
			a.metrics.RecordPublished(ctx, publish.InterfaceSubject)
			a.metrics.DispatchLatency.Record(ctx, time.Since(ev.Timestamp).Seconds())
		},
	})

	audioSubject := fmt.Sprintf("%s.0", a.cfg.NATS.AudioSubjectPrefix)
	pub, err := publish.NewAudioPublisher(publish.AudioPublisherConfig{
		Subject:   audioSubject,
		Queue:     a.procQ,
		Publisher: a.conn,
		OnPublish: func() {
			a.metrics.RecordPublished(context.Background(), audioSubject)
		},
	})
	if err != nil {
		return err
	}
	a.audioPub = pub
	return nil
}

// statusHook adapts session lifecycle events into registry membership,
// the live-device gauge and, for button devices, status envelopes on the
// dispatch queue. A disconnect removes the device from the registry; the
// next successful open re-adds it. Permanently failed sessions are
// re-added so the readiness probe keeps seeing them.
//
// The session is resolved lazily because the hook is wired before
// NewSession returns. Hooks run on the session goroutine, so the live
// flag needs no lock.
func (a *App) statusHook(key string, sess func() *device.Session, mon *buttons.Monitor) func(device.Status) {
	live := false
	return func(st device.Status) {
		ctx := context.Background()
		switch st {
		case device.StatusConnected:
			a.ensureRegistered(key, sess())
			if !live {
				live = true
				a.metrics.LiveDevices.Add(ctx, 1)
			}
		case device.StatusDisconnected:
			a.registry.Remove(key)
			if live {
				live = false
				a.metrics.LiveDevices.Add(ctx, -1)
			}
		case device.StatusDead:
			a.ensureRegistered(key, sess())
			a.metrics.DeadDevices.Add(ctx, 1)
		}
		if mon != nil {
			mon.EmitStatus(st)
		}
	}
}

// ensureRegistered puts a session back into the registry if its key is
// currently absent.
func (a *App) ensureRegistered(key string, sess *device.Session) {
	if a.registry.Get(key) != nil {
		return
	}
	if err := a.registry.Add(key, sess); err != nil {
		slog.Warn("registry re-add failed", "device", key, "err", err)
	}
}

// retryHook counts reconnect attempts per device.
func (a *App) retryHook(name string) func(uint) {
	return func(uint) {
		a.metrics.Reconnects.Add(context.Background(), 1,
			metric.WithAttributes(observe.Attr("device", name)))
	}
}

// Run starts the pipeline and blocks until the context is cancelled or a
// non-device subsystem fails. A permanently failed device does not stop
// the run; the health endpoint reports it instead.
func (a *App) Run(ctx context.Context) error {
	if a.register != nil {
		sessionID, err := a.register(ctx)
		if err != nil {
			return fmt.Errorf("app: signaling registration: %w", err)
		}
		slog.Info("registered with signaling server", "session_id", sessionID)
	}

	eg, gctx := errgroup.WithContext(ctx)

	// Queues shut down as soon as the group context ends so every drain
	// unblocks, then sessions observe their own context cancellation.
	eg.Go(func() error {
		<-gctx.Done()
		a.rawQ.Shutdown()
		a.procQ.Shutdown()
		a.dispatch.Shutdown()
		return nil
	})

	eg.Go(func() error { return asClean(a.buttonPub.Run(gctx)) })
	eg.Go(func() error { return asClean(a.audioPub.Run(gctx)) })
	eg.Go(func() error { return asClean(a.processLoop(gctx)) })

	for _, sess := range a.buttonSessions {
		eg.Go(func() error { return asClean(sess.Run(gctx)) })
	}

	eg.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-time.After(captureStartDelay):
		}
		return asClean(a.captureSession.Run(gctx))
	})

	slog.Info("pipeline running",
		"show", a.cfg.Show.Name,
		"buttons", len(a.buttonSessions),
	)

	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// processLoop is the single consumer of the raw frame queue: it enriches
// each frame and forwards it to the processed queue. Queue shutdown is
// the clean termination signal.
func (a *App) processLoop(ctx context.Context) error {
	var lastRawDrops, lastProcDrops uint64
	for {
		frame, err := a.rawQ.Get(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrShutdown) {
				return nil
			}
			return fmt.Errorf("app: raw frame drain: %w", err)
		}

		if a.procReset.CompareAndSwap(true, false) {
			a.processor.Reset()
		}

		tagged, err := a.processor.Process(frame)
		if err != nil {
			slog.Warn("frame processing failed, dropped", "err", err)
			continue
		}

		a.metrics.RecordFrame(ctx, "actor-mic")
		if tagged.State == audio.VADStop {
			a.metrics.VADSegments.Add(ctx, 1)
		}

		if err := a.procQ.Put(tagged); err != nil {
			if errors.Is(err, queue.ErrShutdown) {
				return nil
			}
			return fmt.Errorf("app: processed frame enqueue: %w", err)
		}

		if d := a.rawQ.Drops(); d != lastRawDrops {
			a.metrics.RecordQueueDrops(ctx, "raw", int64(d-lastRawDrops))
			lastRawDrops = d
		}
		if d := a.procQ.Drops(); d != lastProcDrops {
			a.metrics.RecordQueueDrops(ctx, "processed", int64(d-lastProcDrops))
			lastProcDrops = d
		}
	}
}

// Shutdown tears down all subsystems in reverse-init order. It respects
// the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.rawQ.Shutdown()
		a.procQ.Shutdown()
		a.dispatch.Shutdown()

		slog.Info("shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// asClean maps context cancellation to a clean stop so an orderly
// shutdown does not surface as a group error.
func asClean(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// dbfsToLinear converts a dBFS level to a normalised amplitude ratio.
func dbfsToLinear(dbfs float64) float64 {
	return math.Pow(10, dbfs/20)
}
