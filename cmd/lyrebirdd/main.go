// Package main is the entry point for the lyrebirdd daemon.
// lyrebirdd is a headless, non-destructive audio playback daemon: it decodes
// tracks with sample-accurate loop and transition handling, integrates with
// OS media sessions, and talks to clients over a Unix socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lyrebird-player/lyrebird/internal/audio"
	"github.com/lyrebird-player/lyrebird/internal/config"
	"github.com/lyrebird-player/lyrebird/internal/decode"
	"github.com/lyrebird-player/lyrebird/internal/decode/aiff"
	"github.com/lyrebird-player/lyrebird/internal/decode/ffmpeg"
	"github.com/lyrebird-player/lyrebird/internal/decode/mp3"
	"github.com/lyrebird-player/lyrebird/internal/decode/vorbis"
	"github.com/lyrebird-player/lyrebird/internal/decode/wav"
	"github.com/lyrebird-player/lyrebird/internal/ipc"
	"github.com/lyrebird-player/lyrebird/internal/media"
	"github.com/lyrebird-player/lyrebird/internal/queue"
)

// Version is set at build time via ldflags
var Version = "dev"

// Config holds daemon configuration
type Config struct {
	SocketPath string
	ConfigDir  string
	NoOutput   bool
	Verbose    bool
}

func main() {
	cfg := parseFlags()

	if cfg.Verbose {
		log.Printf("lyrebirdd version %s starting...", Version)
	}

	// Create context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.SocketPath, "socket", "", "IPC socket path (default: auto-generated based on UID)")
	flag.StringVar(&cfg.ConfigDir, "config", "", "Configuration directory (default: ~/.config/lyrebird)")
	flag.BoolVar(&cfg.NoOutput, "no-output", false, "Run without an audio device (decode only)")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	// Set defaults
	if cfg.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		cfg.ConfigDir = homeDir + "/.config/lyrebird"
	}

	if cfg.SocketPath == "" {
		cfg.SocketPath = fmt.Sprintf("/tmp/lyrebird-%d.sock", os.Getuid())
	}

	return cfg
}

// buildRegistry wires up the decoder adapters. ffmpeg, when present on PATH,
// covers everything the native decoders do not.
func buildRegistry() *decode.Registry {
	registry := decode.NewRegistry()
	registry.Register("wav", wav.Opener{})
	registry.Register("aiff", aiff.Opener{})
	registry.Register("mp3", mp3.Opener{})
	registry.Register("vorbis", vorbis.Opener{})

	if ff, err := ffmpeg.New(); err != nil {
		log.Printf("[DECODE] ffmpeg not available, unsupported formats will be rejected: %v", err)
	} else {
		registry.SetFallback(ff)
		log.Printf("[DECODE] ffmpeg fallback decoder enabled")
	}
	return registry
}

func run(ctx context.Context, cfg *Config) error {
	// Ensure config directory exists
	if err := os.MkdirAll(cfg.ConfigDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Initialize config manager
	configMgr := config.NewManager(cfg.ConfigDir)
	if err := configMgr.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	daemonCfg := configMgr.Get()

	// Initialize media session (platform-specific)
	mediaSession, err := media.NewSession()
	if err != nil {
		log.Printf("[MEDIA] Warning: failed to initialize media session: %v", err)
		log.Printf("[MEDIA] Continuing without OS media integration")
		// Continue without media session - not fatal
		mediaSession = media.NewNoOpSession()
	} else {
		log.Printf("[MEDIA] Media session initialized successfully")
	}
	defer mediaSession.Close()

	// Initialize the playback engine
	engineCfg := audio.EngineConfig{
		SampleRate:        daemonCfg.Audio.SampleRate,
		Channels:          daemonCfg.Audio.Channels,
		RingMs:            daemonCfg.Audio.RingBufferMs,
		DecodeAheadMs:     daemonCfg.Engine.DecodeAheadMs,
		CrossfadeMs:       daemonCfg.Engine.CrossfadeMs,
		FadeCurve:         audio.ParseFadeCurve(daemonCfg.Engine.FadeCurve),
		LoopCrossfadeMs:   daemonCfg.Engine.LoopCrossfadeMs,
		CorruptFrameLimit: daemonCfg.Engine.CorruptFrameLimit,
	}
	engine := audio.NewEngine(engineCfg, buildRegistry())
	engine.SetVolume(daemonCfg.Audio.DefaultVolume)
	go engine.Run()
	defer engine.Close()

	// Attach the audio device unless running decode-only
	var analyzer *audio.Analyzer
	if cfg.NoOutput {
		log.Printf("[AUDIO] Running without an audio device")
	} else {
		output, err := audio.NewOtoOutput(engineCfg.SampleRate, engineCfg.Channels, engine, engine.Transport())
		if err != nil {
			return fmt.Errorf("failed to open audio device: %w", err)
		}
		defer output.Close()
		analyzer = output.Analyzer()
	}

	// Initialize queue manager
	queueMgr := queue.NewManager()

	// Initialize IPC server
	server, err := ipc.NewServer(cfg.SocketPath, configMgr, engine, queueMgr, mediaSession, analyzer)
	if err != nil {
		return fmt.Errorf("failed to initialize IPC server: %w", err)
	}

	// Start the IPC server
	log.Printf("Starting IPC server on %s", cfg.SocketPath)
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("IPC server error: %w", err)
	}

	return nil
}
