// Command agent is the MeetingCaptureEngine's operator CLI: `serve` wires
// every service package together and runs the long-running HTTP surface;
// the other subcommands are thin REST clients against a running `serve`
// process.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/pkg/browser"

	"go.uber.org/zap"

	"github.com/metacogma/meetcapture/config"
	"github.com/metacogma/meetcapture/http/handlers"
	meetcapturehttp "github.com/metacogma/meetcapture/http"
	"github.com/metacogma/meetcapture/logger"
	"github.com/metacogma/meetcapture/models/session"
	"github.com/metacogma/meetcapture/services/browserdriver"
	"github.com/metacogma/meetcapture/services/browserpool"
	"github.com/metacogma/meetcapture/services/engine"
	"github.com/metacogma/meetcapture/services/livewatch"
	"github.com/metacogma/meetcapture/services/monitoring"
	"github.com/metacogma/meetcapture/services/shutdown"
)

type globals struct {
	Addr string `help:"Base URL of a running 'serve' instance." default:"http://localhost:5000/meetcapture"`
}

type cli struct {
	globals

	Serve           serveCmd           `cmd:"" help:"Run the capture engine's HTTP server."`
	Join            joinCmd            `cmd:"" help:"Join a meeting."`
	Leave           leaveCmd           `cmd:"" help:"Leave an active meeting."`
	Status          statusCmd          `cmd:"" help:"Print a session's current status."`
	Screenshot      screenshotCmd      `cmd:"" help:"Capture a screenshot of an active session."`
	ToggleRecording toggleRecordingCmd `cmd:"" help:"Pause or resume frame/audio capture for a session."`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("agent"),
		kong.Description("MeetingCaptureEngine operator CLI"),
		kong.UsageOnError(),
	)
	if err := kctx.Run(&c.globals); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// serveCmd wires config, logging, the optional browser pool, the capture
// engine, the HTTP surface and the shutdown coordinator, then blocks until
// an interrupt or terminate signal is received.
type serveCmd struct {
	Config        string `help:"Path to a YAML config file." optional:""`
	BrowserPool   int    `help:"Max Docker-isolated browser containers (0 disables pooled isolation)." default:"0"`
	OpenDashboard bool   `help:"Open the server's /health endpoint in the local browser once it is up."`
}

func (s *serveCmd) Run(g *globals) error {
	cfg, err := config.Load(s.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.InitLogger(cfg.Logger.Level)
	logger.Info("starting meetcapture agent", zap.String("listen", cfg.Listen), zap.String("prefix", cfg.Prefix))

	var pool *browserpool.Pool
	var factory *browserdriver.Factory
	if s.BrowserPool > 0 {
		pool = browserpool.New(s.BrowserPool)
		factory, err = browserdriver.NewFactoryWithPool(cfg.MaxConcurrentSessions, pool)
	} else {
		factory, err = browserdriver.NewFactory(cfg.MaxConcurrentSessions)
	}
	if err != nil {
		return fmt.Errorf("init browser driver factory: %w", err)
	}

	eng, err := engine.New(engine.Config{
		RecordingsRoot:        cfg.RecordingsRoot,
		FFmpegPath:            cfg.FFmpegPath,
		AudioDevice:           cfg.AudioDevice,
		DefaultBotName:        cfg.DefaultBotName,
		MaxConcurrentSessions: cfg.MaxConcurrentSessions,
		S3Bucket:              cfg.S3Bucket,
		S3Region:              cfg.S3Region,
	}, factory)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	appMetrics := monitoring.NewApplicationMetrics()
	eng.WithMetrics(appMetrics)

	// Drive any sessions a previous process left behind to completion
	// before accepting new work; their frames are already on disk.
	if recovered := eng.RecoverAllOrphans(context.Background()); len(recovered) > 0 {
		logger.Info("recovered orphaned sessions from previous run", zap.Int("count", len(recovered)))
	}

	watch := livewatch.New(eng)
	capture := handlers.NewCaptureHandler(eng, watch)

	checker := monitoring.NewHealthChecker()
	checker.AddCheck("recordings_root", func() error {
		_, statErr := os.Stat(cfg.RecordingsRoot)
		return statErr
	})

	server := meetcapturehttp.NewServer(cfg, capture, checker)

	coordinator := shutdown.NewCoordinator(30 * time.Second)
	coordinator.RegisterHandler("live_watch", shutdown.CreateLiveWatchShutdown(watch))
	coordinator.RegisterHandler("capture_engine", shutdown.CreateRegistryDrainShutdown(eng))
	coordinator.RegisterHandler("http_server", shutdown.CreateHTTPServerShutdown(server))
	if pool != nil {
		coordinator.RegisterHandler("browser_pool", shutdown.CreateBrowserPoolShutdown(pool))
	}
	coordinator.Start()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go monitoring.NewSystemMetricsCollector(appMetrics).Start(ctx)

	if s.OpenDashboard {
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := browser.OpenURL("http://localhost" + cfg.Listen + "/health"); err != nil {
				logger.Debug("failed to open dashboard in browser", zap.Error(err))
			}
		}()
	}

	listenErr := server.Listen(ctx, cfg.Listen)
	coordinator.Shutdown()
	if factory != nil {
		_ = factory.Shutdown()
	}
	if listenErr != nil && listenErr != http.ErrServerClosed {
		return listenErr
	}
	logger.Info("meetcapture agent stopped")
	return nil
}

type joinCmd struct {
	MeetingID  string `arg:"" help:"Meeting identifier to register the session under."`
	MeetingURL string `arg:"" help:"URL of the meeting to join."`
	BotName    string `help:"Display name the bot joins under."`
	Debug      bool   `help:"Persist debug screenshots of each join step."`
}

func (j *joinCmd) Run(g *globals) error {
	body := struct {
		MeetingURL string              `json:"meeting_url"`
		Options    session.JoinOptions `json:"options"`
	}{
		MeetingURL: j.MeetingURL,
		Options:    session.JoinOptions{BotName: j.BotName, Debug: j.Debug},
	}
	return postJSON(g.Addr, "/v1/sessions/"+j.MeetingID+"/join", body)
}

type leaveCmd struct {
	MeetingID string `arg:"" help:"Meeting identifier to leave."`
}

func (l *leaveCmd) Run(g *globals) error {
	return postJSON(g.Addr, "/v1/sessions/"+l.MeetingID+"/leave", nil)
}

type statusCmd struct {
	MeetingID string `arg:"" help:"Meeting identifier to query."`
}

func (s *statusCmd) Run(g *globals) error {
	return getJSON(g.Addr, "/v1/sessions/"+s.MeetingID+"/status")
}

type screenshotCmd struct {
	MeetingID string `arg:"" help:"Meeting identifier to screenshot."`
}

func (s *screenshotCmd) Run(g *globals) error {
	return postJSON(g.Addr, "/v1/sessions/"+s.MeetingID+"/screenshot", nil)
}

type toggleRecordingCmd struct {
	MeetingID string `arg:"" help:"Meeting identifier to toggle recording for."`
}

func (t *toggleRecordingCmd) Run(g *globals) error {
	return postJSON(g.Addr, "/v1/sessions/"+t.MeetingID+"/toggle-recording", nil)
}

func postJSON(base, path string, body any) error {
	var reader io.Reader = bytes.NewReader([]byte("{}"))
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(http.MethodPost, base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doAndPrint(req)
}

func getJSON(base, path string) error {
	req, err := http.NewRequest(http.MethodGet, base+path, nil)
	if err != nil {
		return err
	}
	return doAndPrint(req)
}

func doAndPrint(req *http.Request) error {
	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server responded %s", resp.Status)
	}
	return nil
}
