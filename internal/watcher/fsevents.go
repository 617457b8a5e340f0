package watcher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/appopsctl/internal/scanner"
	"github.com/blackwell-systems/appopsctl/internal/store"
)

// DefaultPollInterval is used when Options.PollInterval is zero.
const DefaultPollInterval = 5 * time.Minute

// Rescanner refreshes the stored device state from the device.
type Rescanner interface {
	ScanDevice(ctx context.Context, serial string) (*scanner.Summary, error)
}

// Importer loads a snapshot file as the current device state.
type Importer interface {
	ImportFile(ctx context.Context, path string) (*store.Scan, error)
}

// Options configures a Watcher.
type Options struct {
	Serial       string
	PollInterval time.Duration // negative disables device polling
	InboxDir     string        // empty disables the inbox
}

// Watcher rescans the device on a ticker and imports snapshot files dropped
// into the inbox directory.
type Watcher struct {
	scanner  Rescanner
	importer Importer
	opts     Options
	log      zerolog.Logger

	// OnScan, if set, is called after every stored scan or import.
	OnScan func(*store.Scan)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	ticker *time.Ticker
	fsw    *fsnotify.Watcher
}

// New creates a new Watcher instance.
func New(rescanner Rescanner, importer Importer, opts Options) (*Watcher, error) {
	if rescanner == nil && opts.PollInterval >= 0 {
		return nil, fmt.Errorf("rescanner cannot be nil when polling is enabled")
	}
	if importer == nil && opts.InboxDir != "" {
		return nil, fmt.Errorf("importer cannot be nil when an inbox is configured")
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		scanner:  rescanner,
		importer: importer,
		opts:     opts,
		log:      zerolog.Nop(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// WithLogger sets the logger.
func (w *Watcher) WithLogger(l zerolog.Logger) *Watcher {
	w.log = l
	return w
}

// Start imports anything already in the inbox, runs an initial scan, then
// keeps polling and watching in the background until Stop.
func (w *Watcher) Start() error {
	if w.opts.InboxDir != "" {
		if err := os.MkdirAll(w.opts.InboxDir, 0755); err != nil {
			return fmt.Errorf("failed to create inbox: %w", err)
		}
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create inbox watcher: %w", err)
		}
		if err := fsw.Add(w.opts.InboxDir); err != nil {
			fsw.Close()
			return fmt.Errorf("failed to watch inbox %s: %w", w.opts.InboxDir, err)
		}
		w.fsw = fsw

		if n, err := w.ProcessInbox(w.ctx); err != nil {
			w.log.Error().Err(err).Msg("initial inbox processing failed")
		} else if n > 0 {
			w.log.Info().Int("files", n).Msg("imported pending inbox files")
		}

		w.wg.Add(1)
		go w.runInbox()
	}

	if w.opts.PollInterval > 0 {
		w.rescan()

		w.ticker = time.NewTicker(w.opts.PollInterval)
		w.wg.Add(1)
		go w.runPoller()
	}

	return nil
}

// runPoller rescans the device on each tick.
func (w *Watcher) runPoller() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ticker.C:
			w.rescan()
		case <-w.ctx.Done():
			return
		}
	}
}

// runInbox imports snapshot files as they are written to the inbox.
func (w *Watcher) runInbox() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isInboxCandidate(event.Name) {
				continue
			}
			if _, err := w.importFile(w.ctx, event.Name); err != nil {
				w.log.Error().Err(err).Str("path", event.Name).Msg("inbox import failed")
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("inbox watcher error")
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) rescan() {
	summary, err := w.scanner.ScanDevice(w.ctx, w.opts.Serial)
	if err != nil {
		// The device may simply be unplugged; keep serving the last scan.
		w.log.Warn().Err(err).Msg("device rescan failed")
		return
	}
	w.notify(summary.Scan)
}

func (w *Watcher) notify(scan *store.Scan) {
	if w.OnScan != nil && scan != nil {
		w.OnScan(scan)
	}
}

// Stop halts polling and inbox watching and waits for in-flight work.
func (w *Watcher) Stop() error {
	w.cancel()

	if w.ticker != nil {
		w.ticker.Stop()
	}

	w.wg.Wait()

	if w.fsw != nil {
		if err := w.fsw.Close(); err != nil {
			return fmt.Errorf("failed to close inbox watcher: %w", err)
		}
	}
	return nil
}
