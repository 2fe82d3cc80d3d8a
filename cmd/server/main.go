package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/events"
	"github.com/voicebridge/voicebridge/internal/handlers"
	"github.com/voicebridge/voicebridge/internal/heartbeat"
	"github.com/voicebridge/voicebridge/internal/index"
	"github.com/voicebridge/voicebridge/internal/notify"
	"github.com/voicebridge/voicebridge/internal/queue"
	"github.com/voicebridge/voicebridge/internal/reconcile"
	"github.com/voicebridge/voicebridge/internal/remote"
	"github.com/voicebridge/voicebridge/internal/store"
	"github.com/voicebridge/voicebridge/internal/transcription"
	"github.com/voicebridge/voicebridge/internal/types"
	"github.com/voicebridge/voicebridge/internal/watch"
)

func main() {
	configPath := "config/config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Paths.TempDir, 0755); err != nil {
		log.Fatalf("Failed to create temp directory: %v", err)
	}
	if err := os.MkdirAll(cfg.Paths.StateDir, 0755); err != nil {
		log.Fatalf("Failed to create state directory: %v", err)
	}

	logBuffer := &LogBuffer{lines: make([]string, 0, 1000)}
	log.SetOutput(io.MultiWriter(os.Stdout, logBuffer))

	log.Println("Initializing components...")

	sharedStore, err := store.New(cfg.Paths.SharedDir)
	if err != nil {
		log.Fatalf("Failed to open shared store: %v", err)
	}
	state, err := store.OpenStateFile(cfg.Paths.StateDir + "/state.json")
	if err != nil {
		log.Fatalf("Failed to open state file: %v", err)
	}

	bus := events.NewBus(500)
	dispatcher := &notify.BusDispatcher{Bus: bus, Inner: notify.LogDispatcher{}}

	engine := transcription.NewWhisperEngine(
		cfg.Whisper.Command,
		cfg.Whisper.Model,
		cfg.Whisper.Threads,
		cfg.Paths.TempDir,
	)

	transcriptIndex, err := index.New(cfg.Index.Database)
	if err != nil {
		log.Fatalf("Failed to open transcript index: %v", err)
	}
	defer transcriptIndex.Close()

	// Drive mirroring is optional and may fail if credentials are not set up.
	var mirror queue.Mirror
	if cfg.GoogleDrive.CredentialsFile != "" {
		if _, err := os.Stat(cfg.GoogleDrive.CredentialsFile); err == nil {
			driveMirror, err := remote.NewDriveMirror(
				cfg.GoogleDrive.CredentialsFile,
				cfg.GoogleDrive.TokenFile,
				cfg.GoogleDrive.FolderName,
			)
			if err != nil {
				log.Printf("WARNING: Google Drive mirror not available: %v", err)
			} else {
				log.Println("Google Drive mirror enabled")
				mirror = driveMirror
			}
		} else {
			log.Println("Google Drive credentials not found - transcripts stay local")
		}
	}

	jobQueue := queue.New(queue.Config{
		Device:            cfg.Heartbeat.DeviceName,
		Language:          cfg.Whisper.Language,
		DeleteSourceAudio: cfg.Queue.DeleteSourceAudio,
		DownloadWait:      time.Duration(cfg.Queue.DownloadWaitSeconds) * time.Second,
	}, sharedStore, state, engine, bus, dispatcher, transcriptIndex, mirror)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go jobQueue.Run(ctx)

	localWatcher := watch.NewLocalWatcher(
		cfg.Paths.WatchDir,
		time.Duration(cfg.Watcher.DebounceSeconds)*time.Second,
		time.Duration(cfg.Watcher.StabilityWindowSeconds)*time.Second,
		sharedStore, state, jobQueue,
	)
	if err := localWatcher.Start(ctx); err != nil {
		log.Fatalf("Failed to start local watcher: %v", err)
	}

	sharedWatcher := watch.NewSharedWatcher(sharedStore, state, jobQueue)
	if err := sharedWatcher.Start(ctx); err != nil {
		log.Fatalf("Failed to start shared watcher: %v", err)
	}
	watch.NewPoller("shared-store", time.Duration(cfg.Watcher.PollIntervalSeconds)*time.Second, func() {
		sharedWatcher.Rescan(types.SourcePoll)
		localWatcher.Scan(ctx)
	}).Start(ctx)

	reconciler := reconcile.New(
		sharedStore, jobQueue, dispatcher, bus,
		cfg.Heartbeat.DeviceName,
		time.Duration(cfg.Reconciler.IntervalSeconds)*time.Second,
		time.Duration(cfg.Reconciler.StuckThresholdSeconds)*time.Second,
	)
	reconciler.Start()
	defer reconciler.Stop()

	beat := heartbeat.NewWriter(sharedStore, cfg.Heartbeat.DeviceName, time.Duration(cfg.Heartbeat.IntervalSeconds)*time.Second)
	beat.Start()
	defer beat.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Limits.MaxFileSizeMB * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	submitHandler := handlers.NewSubmitHandler(jobQueue, sharedStore, cfg.Paths.TempDir, cfg.Heartbeat.DeviceName, cfg.Limits.MaxFileSizeMB)
	queueHandler := handlers.NewQueueHandler(jobQueue)
	statusHandler := handlers.NewStatusHandler(jobQueue, sharedStore, time.Duration(cfg.Heartbeat.StaleAfterSeconds)*time.Second)
	eventsHandler := handlers.NewEventsHandler(bus)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	app.Post("/recordings", submitHandler.Handle)
	app.Get("/queue", queueHandler.List)
	app.Post("/queue/reorder", queueHandler.Reorder)
	app.Post("/queue/cancel", queueHandler.Cancel)
	app.Delete("/queue/:name", queueHandler.Remove)
	app.Post("/queue/:name/retry", queueHandler.Retry)
	app.Post("/queue/:name/ignore", queueHandler.Ignore)
	app.Get("/status", statusHandler.Handle)
	app.Get("/ws/events", websocket.New(eventsHandler.Handle))

	app.Get("/transcripts", func(c *fiber.Ctx) error {
		entries, err := transcriptIndex.List(50)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(entries)
	})

	app.Get("/transcripts/:name/text", func(c *fiber.Ctx) error {
		name := c.Params("name")
		if !sharedStore.HasTranscript(name) {
			return c.Status(404).JSON(fiber.Map{"error": "Transcript not found"})
		}
		text, err := sharedStore.ReadTranscript(name)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "Failed to read transcript"})
		}
		return c.SendString(text)
	})

	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		cancel()
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// LogBuffer captures logs in memory for the /logs endpoint.
type LogBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.lines = append(lb.lines, string(p))
	if len(lb.lines) > 1000 {
		lb.lines = lb.lines[len(lb.lines)-1000:]
	}
	return len(p), nil
}

// GetLogs returns a copy of the captured log lines.
func (lb *LogBuffer) GetLogs() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	logs := make([]string, len(lb.lines))
	copy(logs, lb.lines)
	return logs
}
