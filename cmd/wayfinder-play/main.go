// Command wayfinder-play walks a campus route in the terminal. It runs the navigation
// engine in-process against a route catalog, so routes can be checked without a
// browser.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ensam-campus/wayfinder/internal/asset"
	"github.com/ensam-campus/wayfinder/internal/catalog"
	"github.com/ensam-campus/wayfinder/internal/config"
	"github.com/ensam-campus/wayfinder/internal/models"
	"github.com/ensam-campus/wayfinder/internal/session"
	"github.com/ensam-campus/wayfinder/internal/util"
	"github.com/gdamore/tcell/v2"
	"github.com/joho/godotenv"
)

// Flags holds the player options.
type Flags struct {
	catalog       string
	pathID        string
	from          string
	gender        string
	viewport      int
	assetBaseURL  string
	staticDir     string
	tuningFile    string
	videoDuration float64
	logFile       string
	mute          bool
}

var errNoPath = errors.New("a route id is required (-path)")

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	flags, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	closeLog, err := initializeLogger(flags.logFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open log file:", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(flags); err != nil {
		slog.Error("wayfinder-play failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Flags, error) {
	var f Flags
	fs.StringVar(&f.catalog, "catalog", util.EnvOr("WAYFINDER_CATALOG", "data.json"), "route catalog file or URL")
	fs.StringVar(&f.pathID, "path", "", "route id to walk")
	fs.StringVar(&f.from, "from", "", "origin label passed through redirects")
	fs.StringVar(&f.gender, "gender", "", "gender for gendered destinations (male or female)")
	fs.IntVar(&f.viewport, "viewport", 0, "viewport width in px used to pick the video variant")
	fs.StringVar(&f.assetBaseURL, "asset-base-url", os.Getenv("WAYFINDER_ASSET_BASE_URL"), "base URL step images are fetched from")
	fs.StringVar(&f.staticDir, "static-dir", os.Getenv("WAYFINDER_STATIC_DIR"), "local directory step images are checked in")
	fs.StringVar(&f.tuningFile, "tuning", os.Getenv("WAYFINDER_TUNING_FILE"), "tuning file (yaml, toml or json)")
	fs.Float64Var(&f.videoDuration, "video-duration", 60, "duration in seconds reported for video routes")
	fs.StringVar(&f.logFile, "log-file", "wayfinder-play.log", "log destination, empty to discard")
	fs.BoolVar(&f.mute, "mute", false, "disable the arrival chime")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if f.pathID == "" && fs.NArg() > 0 {
		f.pathID = fs.Arg(0)
	}
	if f.pathID == "" {
		return Flags{}, errNoPath
	}
	return f, nil
}

// initializeLogger keeps log output off the terminal the player draws on.
func initializeLogger(path string) (func(), error) {
	var w io.Writer = io.Discard
	closer := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return closer, err
		}
		w = f
		closer = func() { f.Close() }
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return closer, nil
}

func run(flags Flags) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tuning, err := config.Load(flags.tuningFile)
	if err != nil {
		return fmt.Errorf("failed to load tuning: %w", err)
	}
	cat, err := catalog.Load(ctx, flags.catalog, catalog.WithGenderedIDs(tuning.GenderedIDs))
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	manager := session.NewManager(cat, buildSessionOptions(flags, tuning)...)
	defer manager.Shutdown()

	sess, err := openSession(manager, flags)
	if err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize screen: %w", err)
	}
	defer screen.Fini()
	screen.EnableMouse()

	var b bell = silentBell{}
	if !flags.mute {
		if c, err := newChime(); err != nil {
			slog.Warn("run: audio unavailable, chime disabled", "error", err)
		} else {
			b = c
		}
	}
	defer b.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	p := newPlayer(screen, sess, manager.Tuning(), b)
	p.draw()
	p.run(ctx)

	slog.Info("run: player exited", "session", sess.ID(), "phase", p.snap.Phase)
	return nil
}

func buildSessionOptions(flags Flags, tuning config.Tuning) []session.Option {
	opts := []session.Option{session.WithTuning(tuning)}
	switch {
	case flags.assetBaseURL != "":
		opts = append(opts, session.WithAssetBaseURL(flags.assetBaseURL))
	case flags.staticDir != "":
		opts = append(opts, session.WithProber(asset.FileProber{Root: flags.staticDir}))
	default:
		// Nothing to check images against; the terminal only shows their URLs.
		opts = append(opts, session.WithProber(asset.ProberFunc(func(context.Context, string) error { return nil })))
	}
	return opts
}

// openSession opens the requested route. Video routes get the configured duration
// since the terminal has no media element to report one.
func openSession(m *session.Manager, flags Flags) (*session.Session, error) {
	sess := m.Open(session.Request{
		PathID:        flags.pathID,
		From:          flags.from,
		Gender:        flags.gender,
		ViewportWidth: flags.viewport,
	})
	snap := sess.Snapshot()
	if snap.Phase == models.PhaseNotFound {
		m.Close(sess.ID())
		return nil, fmt.Errorf("route %s not found in %s", flags.pathID, flags.catalog)
	}
	if r := snap.Redirect; r != nil {
		m.Close(sess.ID())
		if r.Target == models.RedirectGenderSelect {
			return nil, fmt.Errorf("route %s needs a gender, pass -gender male or -gender female", flags.pathID)
		}
		return nil, fmt.Errorf("route %s redirects to %s", flags.pathID, r.Target)
	}
	if snap.Mode == models.ModeKindVideo {
		if _, err := sess.MediaLoaded(flags.videoDuration); err != nil {
			return nil, fmt.Errorf("failed to load video metadata: %w", err)
		}
	}
	return sess, nil
}
