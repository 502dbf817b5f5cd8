package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"fyne.io/fyne/v2"
	"github.com/gogpu/gg"

	"LocalWhiteboard/internal/config"
	"LocalWhiteboard/internal/export"
	"LocalWhiteboard/internal/logging"
	wbnet "LocalWhiteboard/internal/net"
	"LocalWhiteboard/internal/persist"
	"LocalWhiteboard/internal/raster"
	"LocalWhiteboard/internal/state"
	"LocalWhiteboard/internal/storage"
	"LocalWhiteboard/internal/ui"
)

const appTitle = "Local Whiteboard"

func main() {
	args := os.Args[1:]
	var err error
	switch {
	case len(args) > 0 && args[0] == "hub":
		err = runHub(args[1:])
	case len(args) > 0 && args[0] == "export":
		err = runExport(args[1:])
	case len(args) > 0 && strings.HasPrefix(args[0], wbnet.Scheme):
		err = runBoard(args[1:], args[0])
	default:
		err = runBoard(args, "")
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "whiteboard:", err)
		os.Exit(1)
	}
}

func loadConfig(fs *flag.FlagSet, args []string) (*config.Config, error) {
	path := fs.String("config", "", "config file (default: user config dir)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg, err := config.LoadFile(*path)
	if err != nil {
		return nil, err
	}
	level, _ := logging.ParseLevel(cfg.Log.Level)
	l := logging.NewText(os.Stderr, level)
	logging.SetLogger(l)
	gg.SetLogger(l)
	return cfg, nil
}

// openStore picks the storage scope: an explicit hub link wins over the
// configured backend.
func openStore(ctx context.Context, cfg *config.Config, hubAddr string) (storage.Store, error) {
	if hubAddr == "" && cfg.Storage.Backend == config.BackendHub {
		hubAddr = cfg.Storage.HubAddr
		if hubAddr == "" {
			browseCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			found, err := wbnet.Browse(browseCtx)
			cancel()
			if len(found) == 0 {
				return nil, errors.Join(errors.New("no hub found on the local network"), err)
			}
			hubAddr = found[0]
		}
	}
	if hubAddr != "" {
		client, err := wbnet.Dial(ctx, hubAddr)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	if cfg.Storage.Backend == config.BackendMemory {
		return storage.NewMemoryScope(int(cfg.Storage.QuotaBytes)).Open(), nil
	}
	file, err := storage.OpenFile(cfg.DataDir(), cfg.Storage.QuotaBytes)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func newController(cfg *config.Config) (*state.Controller, error) {
	w, h := cfg.Canvas.SurfaceSize()
	r, err := raster.New(w, h)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", state.ErrNoSurface, err)
	}
	pen, err := cfg.PenColor()
	if err != nil {
		return nil, err
	}
	return state.New(r, state.Options{
		Color:        pen,
		Width:        cfg.Style.LineWidth,
		EraserWidth:  cfg.Style.EraserWidth,
		HistoryLimit: cfg.History.Limit,
	})
}

func runBoard(args []string, hubAddr string) error {
	cfg, err := loadConfig(flag.NewFlagSet("whiteboard", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	log := logging.For("main")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, hubAddr)
	if err != nil {
		return err
	}
	defer store.Close()

	ctrl, err := newController(cfg)
	if err != nil {
		return err
	}
	board := ui.NewBoardWidget(ctrl)

	// set once the window exists; saves may finish on any goroutine
	var win atomic.Pointer[ui.Window]
	status := func(text string) {
		if w := win.Load(); w != nil {
			w.SetStatus(text)
		}
	}
	bridge := persist.New(store, cfg.Storage.Key, ctrl, persist.OnWarning(func(err error) {
		status("Could not save the board: " + err.Error())
	}))
	if ok, err := bridge.Load(ctx); err != nil {
		log.Warn("load failed", "err", err)
	} else if ok {
		log.Info("restored saved board")
	}

	autosave := bridge.AutoSave(ctx, persist.SavePolicy{AfterUndo: cfg.History.SaveAfterUndo}, func(err error) {
		if err == nil {
			status("Saved")
		}
	})
	ctrl.OnChange = func(ch state.Change) {
		board.Changed(ch)
		autosave(ch)
	}
	go func() {
		if err := bridge.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("watch stopped", "err", err)
		}
	}()

	title := appTitle
	if hubAddr != "" {
		title += " (" + strings.TrimPrefix(hubAddr, wbnet.Scheme) + ")"
	}
	actions := ui.Actions{
		Undo:  func() { ctrl.Undo() },
		Redo:  func() { ctrl.Redo() },
		Clear: ctrl.Clear,
	}
	size := fyne.NewSize(float32(cfg.Canvas.Width), float32(cfg.Canvas.Height))
	ui.RunApp(title, size, board, actions, win.Store)
	return nil
}

func runHub(args []string) error {
	fs := flag.NewFlagSet("whiteboard hub", flag.ContinueOnError)
	port := fs.Int("port", 0, "listen port (default: hub.port from config)")
	bind := fs.String("bind", "", "listen host (default: all interfaces)")
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *port == 0 {
		*port = cfg.Hub.Port
	}
	log := logging.For("main")

	store, err := storage.OpenFile(cfg.DataDir(), cfg.Storage.QuotaBytes)
	if err != nil {
		return err
	}
	defer store.Close()

	ln, err := net.Listen("tcp", net.JoinHostPort(*bind, strconv.Itoa(*port)))
	if err != nil {
		return fmt.Errorf("hub: listen: %w", err)
	}
	link, err := wbnet.HubShareLink(ln.Addr())
	if err != nil {
		ln.Close()
		return err
	}

	if cfg.Hub.Advertise {
		server, err := wbnet.Advertise(*port)
		if err != nil {
			log.Warn("mdns advertise failed", "err", err)
		} else {
			defer server.Shutdown()
		}
	}
	fmt.Println("Share link:", link)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return wbnet.NewHub(store).Serve(ctx, ln)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("whiteboard export", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: whiteboard export [-config file] <out.png|out.pdf>")
		fs.PrintDefaults()
	}
	cfg, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("export: expected one output path")
	}
	out := fs.Arg(0)
	ctx := context.Background()

	store, err := openStore(ctx, cfg, "")
	if err != nil {
		return err
	}
	defer store.Close()

	ctrl, err := newController(cfg)
	if err != nil {
		return err
	}
	ok, err := persist.New(store, cfg.Storage.Key, ctrl).Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("export: no saved board")
	}
	if err := export.ToFile(out, ctrl.Image()); err != nil {
		return err
	}
	logging.For("main").Info("exported", "path", out)
	return nil
}
