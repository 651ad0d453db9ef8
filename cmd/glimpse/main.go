package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/mmcdole/glimpse/internal/config"
	"github.com/mmcdole/glimpse/internal/domain"
	"github.com/mmcdole/glimpse/internal/log"
	"github.com/mmcdole/glimpse/internal/player"
	"github.com/mmcdole/glimpse/internal/session"
	"github.com/mmcdole/glimpse/internal/source/filesystem"
	"github.com/mmcdole/glimpse/internal/source/memory"
	"github.com/mmcdole/glimpse/internal/store"
	"github.com/mmcdole/glimpse/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

// demoAssetsPerAlbum sizes the synthetic -demo library
const demoAssetsPerAlbum = 250

func main() {
	var (
		showVersion bool
		configPath  string
		demo        bool
		clearCache  bool
	)
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&configPath, "config", "", "config file (default ~/.config/glimpse/config.yaml)")
	flag.BoolVar(&demo, "demo", false, "browse a synthetic in-memory library")
	flag.BoolVar(&clearCache, "clear-cache", false, "remove cached metadata and thumbnails, then exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("glimpse %s\n", Version)
		return
	}

	if err := run(configPath, demo, clearCache); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, demo, clearCache bool) error {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if clearCache {
		if err := config.ClearCache(cfg.Cache.Dir); err != nil {
			return err
		}
		fmt.Println("✓ Cache cleared")
		return nil
	}

	// Setup logger
	logger, closer, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger, closer = log.NullLogger(), io.NopCloser(nil)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("starting glimpse", "version", Version, "root", cfg.Library.Root, "demo", demo)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, settings, cleanup, err := openLibrary(cfg, demo, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Observer events are pumped into the TUI; in plain mode nobody reads them
	events := make(chan tea.Msg, 256)
	obs := tui.NewChannelObserver(events)
	opts := session.OptionsFromConfig(cfg)
	sess := session.New(provider, settings, opts, logger,
		session.WithCatalogObserver(obs),
		session.WithViewerObserver(obs),
	)
	defer sess.Close()

	if cfg.Library.Watch && !demo {
		go func() {
			if err := sess.Watch(ctx); err != nil {
				logger.Error("failed to watch library", "error", err)
			}
		}()
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return printListing(ctx, sess, os.Stdout)
	}

	launcher := player.NewLauncher(cfg.Player.Command, cfg.Player.Args, log.Component(logger, "player"))
	model := tui.NewModel(ctx, sess, events, opts, launcher)
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	logger.Info("starting TUI")

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Info("shutting down")
	return nil
}

// openLibrary returns the provider and settings store for the configured
// library root, or a synthetic library in demo mode
func openLibrary(cfg *config.Config, demo bool, logger *slog.Logger) (domain.MediaLibraryProvider, domain.SettingsStore, func(), error) {
	if demo {
		st, err := store.Open("", "")
		if err != nil {
			return nil, nil, nil, err
		}
		return memory.Demo(demoAssetsPerAlbum), st, func() { st.Close() }, nil
	}

	if !cfg.IsConfigured() {
		return nil, nil, nil, fmt.Errorf("library root %q is not a directory; set library.root in the config or GLIMPSE_LIBRARY_ROOT, or run with -demo", cfg.Library.Root)
	}

	st, err := store.Open(cfg.Cache.Dir, cfg.Library.Root)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open cache: %w", err)
	}
	fs := filesystem.New(cfg.Library.Root, st, filesystem.Options{
		Exiftool:       cfg.Library.Exiftool,
		MaxDisplayEdge: cfg.Viewer.MaxDisplayEdge,
	}, log.Component(logger, "filesystem"))

	cleanup := func() {
		if err := fs.Close(); err != nil {
			logger.Warn("failed to stop exiftool", "error", err)
		}
		if err := st.Close(); err != nil {
			logger.Warn("failed to close cache", "error", err)
		}
	}
	return fs, st, cleanup, nil
}

// printListing writes the visible albums and the first page of the initial
// source, for use in pipes
func printListing(ctx context.Context, sess *session.Session, w io.Writer) error {
	albums, err := sess.Start(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Albums:")
	for _, a := range albums {
		fmt.Fprintf(w, "  %-32s %6d\n", a.DisplayTitle(), a.AssetCount)
	}

	src, _ := sess.Catalog().Source()
	total, _ := sess.Catalog().Total()
	fmt.Fprintf(w, "\n%s (%d of %d):\n", src.ID(), sess.Catalog().Len(), total)
	for _, a := range sess.Catalog().Snapshot() {
		date := "undated"
		if a.CreatedAt != nil {
			date = a.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "  %s  %-48s %s\n", date, a.ID, a.Badge())
	}
	return nil
}
