// Package player hands media the terminal cannot show to an external
// application.
package player

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Launcher opens videos in an external player and photos in the system viewer
type Launcher struct {
	command string   // configured player command, empty for auto-detection
	args    []string // additional arguments for the player
	logger  *slog.Logger

	goos     string
	lookPath func(string) (string, error)
	start    func(*exec.Cmd) error // Starts without waiting
	run      func(*exec.Cmd) error // Waits; used for "open -a" probing
}

// launchPath defines a single way to launch a player
type launchPath struct {
	path      string   // Command path: "mpv", "vlc", or "open-a:AppName"
	openFlags []string // For "open-a:" paths only - flags for macOS open command (e.g., ["-n"])
}

// players registry - platform launch paths per player
var players = map[string]map[string][]launchPath{
	"mpv": {
		"darwin":  {{path: "mpv"}},
		"linux":   {{path: "mpv"}},
		"windows": {{path: "mpv"}},
	},
	"vlc": {
		"darwin": {
			{path: "vlc"},
			{path: "open-a:VLC"},
		},
		"linux":   {{path: "vlc"}},
		"windows": {{path: "vlc"}},
	},
	"iina": {
		"darwin": {{path: "open-a:IINA", openFlags: []string{"-n"}}},
	},
	"celluloid": {
		"linux": {{path: "celluloid"}},
	},
}

// candidatePlayers defines the preferred player order for each platform
var candidatePlayers = map[string][]string{
	"darwin":  {"iina", "vlc", "mpv"},
	"linux":   {"mpv", "celluloid", "vlc"},
	"windows": {"vlc", "mpv"},
}

// NewLauncher creates a Launcher. An empty command auto-detects a player.
func NewLauncher(command string, args []string, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		command:  command,
		args:     args,
		logger:   logger,
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		start:    (*exec.Cmd).Start,
		run:      (*exec.Cmd).Run,
	}
}

// Open launches location. Videos go to the configured or detected player,
// everything else to the system default handler.
func (l *Launcher) Open(location string, video bool) error {
	if !video {
		return l.launchDefault(location)
	}

	// Tier 1: User configured a specific player
	if l.command != "" {
		l.logger.Info("using configured player", "command", l.command)
		return l.launchConfigured(location)
	}

	// Tier 2: Try candidate chain (IINA → VLC → mpv on macOS, etc.)
	if name, err := l.detectAndLaunch(location); err == nil {
		l.logger.Info("launched with detected player", "player", name)
		return nil
	}

	// Tier 3: Fall back to system default (open/xdg-open/start)
	l.logger.Info("no candidate players found, using system default")
	return l.launchDefault(location)
}

// detectAndLaunch tries candidate players in order and returns the one that
// started
func (l *Launcher) detectAndLaunch(location string) (string, error) {
	candidates, ok := candidatePlayers[l.goos]
	if !ok {
		candidates = candidatePlayers["linux"]
	}

	for _, name := range candidates {
		for _, lp := range players[name][l.goos] {
			var err error
			if strings.HasPrefix(lp.path, "open-a:") {
				err = l.openWithApp(strings.TrimPrefix(lp.path, "open-a:"), location, l.args, lp.openFlags)
			} else {
				err = l.launchCommand(lp.path, location, l.args)
			}
			if err == nil {
				return name, nil
			}
			l.logger.Debug("launch path not available", "player", name, "path", lp.path, "error", err)
		}
	}
	return "", fmt.Errorf("no candidate players found")
}

// launchConfigured launches with the configured player. On macOS a command
// that is not in PATH is treated as an application name.
func (l *Launcher) launchConfigured(location string) error {
	if l.goos == "darwin" {
		if _, err := l.lookPath(l.command); err != nil {
			var openFlags []string
			base := strings.ToLower(strings.TrimSuffix(filepath.Base(l.command), filepath.Ext(l.command)))
			for _, lp := range players[base]["darwin"] {
				if strings.HasPrefix(lp.path, "open-a:") {
					openFlags = lp.openFlags
					break
				}
			}
			l.logger.Info("using macOS 'open -a' to launch GUI app", "app", l.command)
			return l.start(exec.Command("open", openArgs(l.command, location, l.args, openFlags)...))
		}
	}

	l.logger.Info("launching player", "command", l.command, "args", l.args, "location", location)
	return l.start(exec.Command(l.command, append(append([]string{}, l.args...), location)...))
}

// openWithApp runs "open -a" and waits, so a missing app reports an error
func (l *Launcher) openWithApp(app, location string, args, openFlags []string) error {
	return l.run(exec.Command("open", openArgs(app, location, args, openFlags)...))
}

// launchCommand starts command when it is in PATH
func (l *Launcher) launchCommand(command, location string, args []string) error {
	if _, err := l.lookPath(command); err != nil {
		return err
	}
	return l.start(exec.Command(command, append(append([]string{}, args...), location)...))
}

// launchDefault opens location using the system default handler
func (l *Launcher) launchDefault(location string) error {
	var cmd *exec.Cmd
	switch l.goos {
	case "darwin":
		cmd = exec.Command("open", location)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", location)
	default:
		cmd = exec.Command("xdg-open", location)
	}

	l.logger.Info("launching with system default", "os", l.goos, "location", location)
	return l.start(cmd)
}

func openArgs(app, location string, args, openFlags []string) []string {
	out := append([]string{}, openFlags...)
	out = append(out, "-a", app)
	if len(args) > 0 {
		out = append(out, "--args")
		out = append(out, args...)
	}
	return append(out, location)
}
