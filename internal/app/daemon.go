package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/quill/internal/asr"
	"github.com/rbright/quill/internal/asr/whisper"
	"github.com/rbright/quill/internal/asr/whisperserver"
	"github.com/rbright/quill/internal/audio"
	"github.com/rbright/quill/internal/config"
	"github.com/rbright/quill/internal/hotkey"
	"github.com/rbright/quill/internal/hud"
	"github.com/rbright/quill/internal/hudws"
	"github.com/rbright/quill/internal/indicator"
	"github.com/rbright/quill/internal/ipc"
	"github.com/rbright/quill/internal/observe"
	"github.com/rbright/quill/internal/output"
	"github.com/rbright/quill/internal/perf"
	"github.com/rbright/quill/internal/readyz"
	"github.com/rbright/quill/internal/session"
	"github.com/rbright/quill/internal/version"
	"github.com/rbright/quill/internal/watchdog"
)

// daemon holds the long-lived components wired by runDaemon.
type daemon struct {
	logger   *slog.Logger
	hub      *hud.Hub
	metrics  *observe.Metrics
	engine   *asr.Engine
	capture  *audio.Supervisor
	injector *output.Injector
	coord    *session.Coordinator
}

func (r Runner) runDaemon(ctx context.Context, loaded config.Loaded, logger *slog.Logger) int {
	cfg := loaded.Config

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{PingTimeout: 180 * time.Millisecond, Retries: 8})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("acquire control socket failed", "error", err.Error())
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	hub := hud.NewHub(logger)

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "quill", ServiceVersion: version.Version})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = shutdownMetrics(shutdownCtx)
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	source, err := hotkey.Open(hotkey.Options{
		Source:  cfg.Hotkey.Source,
		Binding: cfg.Hotkey.Binding,
		Devices: cfg.Hotkey.Devices,
	}, logger)
	if err != nil {
		if hotkey.IsCapabilityError(err) {
			hub.Emit(hud.Event{Kind: hud.KindCapabilityError, Reason: cfg.Hotkey.Source, Fields: map[string]string{"error": err.Error()}})
		}
		logger.Error("hotkey registration failed", "source", cfg.Hotkey.Source, "error", err.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = source.Close() }()

	d, err := buildDaemon(cfg, hub, metrics, logger)
	if err != nil {
		logger.Error("daemon setup failed", "error", err.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = d.engine.Close() }()
	defer func() { _ = d.capture.Stop() }()

	readyPath, err := readyz.SocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	readyLn, err := readyz.Listen(readyPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = os.Remove(readyPath) }()
	ready := readyz.NewServer(logger)

	logger.Info("daemon start",
		"version", version.Version,
		"hotkey_source", cfg.Hotkey.Source,
		"hotkey_mode", cfg.Hotkey.Mode,
		"model", asr.ModelFromConfig(cfg.ASR).String(),
		"socket", socketPath,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := d.engine.Resume(gctx, asr.ModelFromConfig(cfg.ASR))
		if err != nil && gctx.Err() == nil {
			logger.Error("initial model warmup failed", "error", err.Error())
		}
		return nil
	})
	if cfg.Audio.KeepOpen {
		g.Go(func() error {
			if err := d.capture.Start(gctx); err != nil {
				d.reportCaptureError(gctx, err)
			}
			return nil
		})
	}
	g.Go(func() error { return d.coord.Run(gctx, source.Events()) })
	g.Go(func() error { return ipc.Serve(gctx, listener, newHandler(d.coord, hub, source, logger)) })

	readyUpdates, unsubscribe := d.engine.Subscribe(4)
	defer unsubscribe()
	g.Go(func() error {
		ready.Follow(gctx, readyUpdates)
		return nil
	})
	g.Go(func() error { return ready.Serve(gctx, readyLn) })

	wd := watchdog.New(watchdogConfig(cfg.Watchdog), d.capture, d.capture.Health(), hub, watchdog.Options{
		Logger:        logger,
		OnRestart:     func() { metrics.RecordRestart(context.Background()) },
		OnDeviceError: func(error) { metrics.RecordDeviceError(context.Background()) },
		OnDrops:       func(n uint64) { metrics.RecordDrops(context.Background(), int64(n)) },
	})
	g.Go(func() error { return wd.Run(gctx) })

	if notifier := newNotifier(cfg.HUD); notifier != nil {
		presenter := indicator.NewPresenter(indicator.Options{
			Notifier:     notifier,
			Sounds:       cfg.HUD.Sounds,
			ErrorTimeout: ms(cfg.HUD.ErrorTimeoutMS),
			Logger:       logger,
		})
		g.Go(func() error { return presenter.Run(gctx, hub) })
	}
	if cfg.HUD.Listen != "" {
		stream := hudws.NewServer(hub, logger)
		g.Go(func() error { return stream.Serve(gctx, cfg.HUD.Listen) })
	}
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return observe.Serve(gctx, cfg.Metrics.Listen, logger) })
	}

	watcher := config.NewWatcher(loaded, config.DefaultWatchInterval, logger, func(old, next config.Config) {
		d.applyConfig(gctx, old, next)
	})
	g.Go(func() error { return watcher.Run(gctx) })

	if err := g.Wait(); err != nil {
		logger.Error("daemon stopped with error", "error", err.Error())
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	logger.Info("daemon stopped")
	return 0
}

func buildDaemon(cfg config.Config, hub *hud.Hub, metrics *observe.Metrics, logger *slog.Logger) (*daemon, error) {
	d := &daemon{logger: logger, hub: hub, metrics: metrics}

	engine, err := newEngine(cfg, hub, metrics, logger)
	if err != nil {
		return nil, err
	}
	d.engine = engine

	filter, err := audio.NewFilter(cfg.Audio.Preprocess)
	if err != nil {
		return nil, err
	}
	input, fallback := cfg.Audio.Input, cfg.Audio.Fallback
	d.capture = audio.NewSupervisor(audio.SupervisorOptions{
		Select: func(ctx context.Context) (audio.Selection, error) {
			return audio.SelectDevice(ctx, input, fallback)
		},
		Filter: filter,
		Health: &watchdog.Health{},
		Logger: logger,
	})

	injector, err := newInjector(cfg, logger)
	if err != nil {
		return nil, err
	}
	d.injector = injector

	settings, err := sessionSettings(cfg)
	if err != nil {
		return nil, err
	}

	var dumpDir string
	if cfg.Debug.AudioDump {
		stateDir, err := config.StateDir()
		if err != nil {
			return nil, err
		}
		dumpDir = filepath.Join(stateDir, "audio")
	}

	d.coord = session.NewCoordinator(session.Options{
		Settings: settings,
		KeepOpen: cfg.Audio.KeepOpen,
		Engine:   engine,
		Injector: injector,
		Capture:  d.capture,
		Ingress:  d.capture.Health(),
		HUD:      hub,
		Perf:     perf.NewMonitor(perf.DefaultThresholds(), metrics),
		Metrics:  metrics,
		DumpDir:  dumpDir,
		OnResult: func(res session.Result) { logSessionResult(logger, res) },
		Logger:   logger,
	})
	return d, nil
}

func newEngine(cfg config.Config, hub *hud.Hub, metrics *observe.Metrics, logger *slog.Logger) (*asr.Engine, error) {
	modelsDir, err := config.ModelsDir(cfg)
	if err != nil {
		return nil, err
	}
	statePath, err := config.ModelStatePath(cfg)
	if err != nil {
		return nil, err
	}

	backends := map[string]asr.Backend{
		"whisper": whisper.Backend{Logger: logger},
	}
	server, err := whisperserver.New(cfg.ASR.ServerURL, nil)
	switch {
	case err == nil:
		backends["whisper-server"] = server
	case cfg.ASR.Backend == "whisper-server":
		return nil, err
	default:
		logger.Warn("whisper-server backend disabled", "error", err.Error())
	}

	return asr.NewEngine(asr.Options{
		Backends:        backends,
		Catalog:         asr.DirCatalog{Dir: modelsDir, Paths: cfg.ASR.ModelPaths},
		Store:           asr.FileModelStore{Path: statePath},
		WarmupInference: cfg.ASR.WarmupInference,
		Reporter:        hub,
		Metrics:         metrics,
		Logger:          logger,
	}), nil
}

func (d *daemon) reportCaptureError(ctx context.Context, err error) {
	d.logger.Error("audio capture start failed", "error", err.Error())
	d.metrics.RecordDeviceError(ctx)
	d.hub.Emit(hud.Event{Kind: hud.KindDeviceError, Reason: "open", Fields: map[string]string{"error": err.Error()}})
}

// applyConfig pushes live-applicable settings. Sections that own open
// resources keep their startup values until restart.
func (d *daemon) applyConfig(ctx context.Context, old, next config.Config) {
	if model := asr.ModelFromConfig(next.ASR); model != asr.ModelFromConfig(old.ASR) {
		d.logger.Info("model selection changed", "model", model.String())
		if _, err := d.engine.Switch(ctx, model); err != nil && ctx.Err() == nil {
			d.logger.Error("model switch failed", "model", model.String(), "error", err.Error())
		}
	}

	if next.Output.Shortcut != old.Output.Shortcut && next.Output.Injector != "command" {
		sc, err := output.ParseShortcut(next.Output.Shortcut)
		if err != nil {
			d.logger.Warn("ignoring output.shortcut update", "error", err.Error())
		} else {
			d.injector.SetShortcut(sc)
		}
	}

	if next.Hotkey.Mode != old.Hotkey.Mode || next.Output.Mode != old.Output.Mode ||
		next.VAD != old.VAD || next.Transcript != old.Transcript {
		settings, err := sessionSettings(next)
		if err != nil {
			d.logger.Warn("ignoring session settings update", "error", err.Error())
		} else if _, err := d.coord.Apply(ctx, settings); err != nil && !errors.Is(err, session.ErrStopped) {
			d.logger.Warn("apply session settings failed", "error", err.Error())
		}
	}

	oldHotkey, nextHotkey := old.Hotkey, next.Hotkey
	oldHotkey.Mode, nextHotkey.Mode = "", ""
	restart := map[string]bool{
		"hotkey":    !reflect.DeepEqual(oldHotkey, nextHotkey),
		"audio":     old.Audio != next.Audio,
		"clipboard": !reflect.DeepEqual(old.Clipboard, next.Clipboard),
		"hud":       old.HUD != next.HUD,
		"metrics":   old.Metrics != next.Metrics,
		"watchdog":  old.Watchdog != next.Watchdog,
	}
	for section, changed := range restart {
		if changed {
			d.logger.Info("config change requires restart", "section", section)
		}
	}
}
