package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/rotatingbox/internal/api"
	"github.com/bryanchriswhite/rotatingbox/internal/capture"
	"github.com/bryanchriswhite/rotatingbox/internal/config"
	"github.com/bryanchriswhite/rotatingbox/internal/display"
	"github.com/bryanchriswhite/rotatingbox/internal/frame"
	"github.com/bryanchriswhite/rotatingbox/internal/logger"
	"github.com/bryanchriswhite/rotatingbox/internal/messaging"
	"github.com/bryanchriswhite/rotatingbox/internal/observability"
	"github.com/bryanchriswhite/rotatingbox/internal/output"
	"github.com/bryanchriswhite/rotatingbox/internal/overlay"
	"github.com/bryanchriswhite/rotatingbox/internal/render"
)

// shutdownGrace is how long a frame blocked on the peer may hold up exit
// before the channel is closed under it
const shutdownGrace = 2 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the frame loop",
	Long: `Open the camera (or fall back to the placeholder), connect to the reply
server and start drawing frames.

The endpoint must be well formed; the peer itself need not be up yet; the
first exchange waits for it.`,
	Example: `  # Run against a local reply server
  rotatingbox run --endpoint tcp://localhost:5555

  # Force the placeholder texture
  rotatingbox run --backend none

  # Drive the loop without drawing anything
  rotatingbox run --headless`,
	RunE: runRun,
}

var (
	runHeadless bool
	runFrames   uint64
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("backend", "", "capture backend ("+strings.Join(capture.Backends(), ", ")+")")
	runCmd.Flags().Duration("timeout", 0, "per-exchange timeout (0 waits for every reply)")
	runCmd.Flags().Int("port", 0, "status server port")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "record frames instead of rasterizing them")
	runCmd.Flags().Uint64Var(&runFrames, "frames", 0, "stop after this many frames (0 runs until interrupted)")
}

func runRun(cmd *cobra.Command, args []string) error {
	bindFlag(cmd, "capture.backend", "backend")
	bindFlag(cmd, "messaging.exchange_timeout", "timeout")
	bindFlag(cmd, "server.port", "port")

	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The API persists edits, so it gets the file contents without
	// this run's overrides
	apiConfig, err := config.NewManager(GetConfigFile())
	if err != nil {
		return err
	}
	log := logger.WithComponent("run")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	// Capture never fails the run; it degrades to the placeholder
	source := capture.NewSource(capture.Options{
		Backend: cfg.Capture.Backend,
		Mode: capture.Mode{
			Width:  cfg.Capture.Width,
			Height: cfg.Capture.Height,
			Device: cfg.Capture.Device,
			URL:    cfg.Capture.URL,
		},
		Metrics: metrics,
	})
	source.Initialize()
	defer source.Close()

	client := messaging.NewClient(messaging.Options{
		DialRetry: cfg.Messaging.DialRetry,
		Metrics:   metrics,
	})
	if _, err := client.Open(ctx, cfg.Messaging.Endpoint); err != nil {
		return fmt.Errorf("failed to open request channel: %w", err)
	}
	defer client.Close()

	var (
		orch     *frame.Orchestrator
		renderer render.Renderer
		mjpegOut *output.MJPEGOutput
		outputs  []output.Output
	)

	if runHeadless {
		renderer = render.NewRecorder(1)
	} else {
		if cfg.Display.MJPEG {
			mjpegOut = output.NewMJPEGOutput(output.Config{
				Width:  cfg.Display.Width,
				Height: cfg.Display.Height,
				FPS:    cfg.Frame.FPS,
			})
			outputs = append(outputs, mjpegOut)
		}
		if cfg.Display.Window {
			outputs = append(outputs, display.NewWindow(display.Config{
				Width:  cfg.Display.Width,
				Height: cfg.Display.Height,
				Title:  "RotatingBox",
			}))
		}

		var hud *overlay.Manager
		if cfg.Display.HUD {
			hud = overlay.NewManager()
			hud.AddWidget(overlay.NewStatsWidget("stats", 8, 8, func() []string {
				return orch.HUDLines()
			}))
		}

		renderer = render.NewCanvas(render.CanvasOptions{
			Width:   cfg.Display.Width,
			Height:  cfg.Display.Height,
			HUD:     hud,
			Outputs: outputs,
		})
	}

	for _, o := range outputs {
		if err := o.Start(); err != nil {
			log.Warn().Err(err).Str("output", o.Name()).Msg("Output unavailable, continuing without it")
			continue
		}
		defer o.Stop()
	}

	orch = frame.New(source, client, renderer, frame.Options{
		Axis:            render.Vec3(cfg.Frame.RotationAxis),
		Step:            cfg.Frame.RotationStep,
		ExchangeTimeout: cfg.Messaging.ExchangeTimeout,
		FPS:             cfg.Frame.FPS,
		Metrics:         metrics,
	})

	var server *api.Server
	if cfg.Server.Enabled {
		server = api.NewServer(api.Options{
			Config:   apiConfig,
			Frame:    orch,
			Capture:  source,
			MJPEG:    mjpegOut,
			Gatherer: reg,
		})
		go func() {
			if err := server.Start(cfg.Server.Port); err != nil {
				log.Error().Err(err).Int("port", cfg.Server.Port).Msg("Status server failed")
			}
		}()
	}

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	if runFrames > 0 {
		go stopAfter(loopCtx, cancelLoop, orch, runFrames)
	}

	log.Info().
		Str("endpoint", cfg.Messaging.Endpoint).
		Str("capture", source.State().String()).
		Bool("headless", runHeadless).
		Msg("RotatingBox is running, press Ctrl+C to stop")

	err = orch.RunWithGrace(loopCtx, shutdownGrace, func() { client.Close() })

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			log.Warn().Err(serr).Msg("Status server shutdown incomplete")
		}
	}

	s := orch.Stats()
	log.Info().
		Uint64("frames", s.Frames).
		Uint64("rendered", s.Rendered).
		Uint64("failed", s.Failed).
		Msg("Shutting down")

	return err
}

// stopAfter cancels the loop once n frames have been ticked
func stopAfter(ctx context.Context, cancel context.CancelFunc, orch *frame.Orchestrator, n uint64) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if orch.Stats().Frames >= n {
				cancel()
				return
			}
		}
	}
}
