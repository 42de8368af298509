package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/skywave/skywave/internal/app"
	"github.com/skywave/skywave/internal/catalog"
	"github.com/skywave/skywave/internal/config"
	"github.com/skywave/skywave/internal/history"
	"github.com/skywave/skywave/internal/logging"
	"github.com/skywave/skywave/internal/player"
	"github.com/skywave/skywave/internal/recognizer"
	"github.com/skywave/skywave/internal/recognizer/vibra"
	"github.com/skywave/skywave/internal/state"
)

var version = "0.1.0"

const shutdownGrace = 3 * time.Second

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `skywave - NTS radio player with track recognition

Usage: skywave [options]

Options:
  -config string
        Path to config file (default: ~/.config/skywave/config.toml)
  -version
        Print version and exit

Diagnostics:
  -doctor
        Check configuration and dependencies

Examples:
  skywave              # Start interactive TUI
  skywave --doctor     # Check setup

`)
	}

	cfgPath := flag.String("config", "", "")
	doctor := flag.Bool("doctor", false, "")
	showVersion := flag.Bool("version", false, "")
	flag.Parse()

	if *showVersion {
		fmt.Println("skywave", version)
		return
	}

	cfg, resolvedPath, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, logFile, err := logging.Setup()
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}
	defer logFile.Close()
	logger.Info("starting skywave", slog.String("config", resolvedPath))

	if *doctor {
		runDoctor(cfg, logger)
		return
	}

	histPath := cfg.History.Path
	if histPath == "" {
		histPath, err = history.DefaultPath()
		if err != nil {
			log.Fatalf("resolve history path: %v", err)
		}
	}
	hist, err := history.Open(histPath)
	if err != nil {
		log.Fatalf("open history log: %v", err)
	}
	defer hist.Close()

	engine := player.New(player.Options{
		Logger:         logger,
		BufferSeconds:  cfg.Player.BufferSeconds,
		BitrateKbps:    cfg.Player.BitrateKbps,
		ReconnectTries: cfg.Player.ReconnectTries,
		InitialVolume:  cfg.Player.InitialVolume,
	})
	defer engine.Stop()

	var loop *recognizer.Loop
	var loopCancel context.CancelFunc
	if !cfg.Recognition.Disabled {
		client := vibra.New(vibra.Options{
			Path:    cfg.Recognition.VibraPath,
			Timeout: cfg.Recognition.Timeout(),
			Logger:  logger,
		})
		loop = recognizer.NewLoop(recognizer.Options{
			Client:         client,
			Source:         engine,
			Log:            hist,
			Logger:         logger,
			Interval:       cfg.Recognition.Interval(),
			SampleDuration: cfg.Recognition.SampleDuration(),
		})
		var loopCtx context.Context
		loopCtx, loopCancel = context.WithCancel(context.Background())
		go loop.Run(loopCtx)
		defer func() {
			loopCancel()
			loop.Wait(shutdownGrace)
		}()
	}

	var sessions *state.Store
	session := state.Session{Volume: state.NoVolume}
	if !cfg.Session.Disabled {
		sessions, err = state.Open("")
		if err != nil {
			logger.Warn("session persistence unavailable", slog.Any("err", err))
		} else {
			defer sessions.Close()
			session, err = sessions.Load(context.Background())
			if err != nil {
				logger.Warn("load session", slog.Any("err", err))
			}
		}
	}
	// A saved volume of 0 is a deliberate mute; only an unset session
	// leaves the configured initial volume in place.
	if session.Volume != state.NoVolume {
		engine.SetVolume(session.Volume)
	}

	// NO_COLOR env var overrides config
	if os.Getenv("NO_COLOR") != "" {
		cfg.UI.NoColor = true
	}

	opts := app.Options{
		Config: cfg,
		Player: engine,
		History: hist,
		Catalog: catalog.New(catalog.Options{
			HTTPClient: &http.Client{Timeout: time.Duration(cfg.Player.NetworkTimeout) * time.Millisecond},
			Logger:     logger,
		}),
		Session: session,
	}
	if loop != nil {
		opts.Recognizer = loop
	}
	if sessions != nil {
		opts.Sessions = sessions
	}

	if _, err := tea.NewProgram(app.New(opts), tea.WithAltScreen()).Run(); err != nil {
		logger.Error("run tui", slog.Any("err", err))
		log.Fatalf("tui: %v", err)
	}
}

func runDoctor(cfg *config.Config, logger *slog.Logger) {
	fmt.Println("skywave doctor")
	fmt.Println("Config file: OK")

	// Check vibra
	vibraPath, err := exec.LookPath(cfg.Recognition.VibraPath)
	if err != nil {
		fmt.Printf("vibra (%s): NOT FOUND (recognition will fail)\n", cfg.Recognition.VibraPath)
	} else {
		fmt.Printf("vibra: OK (%s)\n", vibraPath)
	}

	// Check NTS API reachability
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cat, err := catalog.New(catalog.Options{Logger: logger}).Fetch(ctx)
	if err != nil {
		fmt.Printf("NTS API: ERROR - %v\n", err)
	} else {
		fmt.Printf("NTS API: OK (%d stations, %d mixtapes)\n", len(cat.Channels), len(cat.Mixtapes))
	}

	// Check history log path is writable
	histPath := cfg.History.Path
	if histPath == "" {
		histPath, err = history.DefaultPath()
		if err != nil {
			fmt.Printf("History log: ERROR - %v\n", err)
			logger.Info("doctor complete")
			return
		}
	}
	hist, err := history.Open(histPath)
	if err != nil {
		fmt.Printf("History log (%s): ERROR - %v\n", histPath, err)
	} else {
		fmt.Printf("History log: OK (%s, %d entries)\n", histPath, hist.Len())
		hist.Close()
	}

	logger.Info("doctor complete")
}
