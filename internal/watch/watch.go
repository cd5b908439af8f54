// Package watch redraws a view whenever a directory tree changes. The
// session directory is watched recursively with fsnotify; bursts of events
// are coalesced before each redraw.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/term"
)

// RenderFunc produces the lines to display.
type RenderFunc func() ([]string, error)

// Watcher provides live-updating display of a directory-backed view.
type Watcher struct {
	root     string
	render   RenderFunc
	out      io.Writer
	debounce time.Duration
	clear    bool

	mu           sync.Mutex
	lastRowCount int
	oldState     *term.State
	isRawMode    bool
	stdinFd      int
	keys         bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(watcher *Watcher) {
		watcher.out = w
	}
}

// WithDebounce sets how long events must be quiet before a redraw.
func WithDebounce(d time.Duration) Option {
	return func(watcher *Watcher) {
		watcher.debounce = d
	}
}

// WithKeyboard enables 'q' to quit and in-place redraws when stdout is a terminal.
func WithKeyboard(enabled bool) Option {
	return func(watcher *Watcher) {
		watcher.keys = enabled
	}
}

// New creates a Watcher for the tree rooted at root.
func New(root string, render RenderFunc, opts ...Option) *Watcher {
	w := &Watcher{
		root:     root,
		render:   render,
		out:      os.Stdout,
		debounce: 150 * time.Millisecond,
		stdinFd:  int(os.Stdin.Fd()),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch renders once, then again after every settled burst of changes.
// Returns when the user presses 'q', Ctrl+C, or the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := addTree(fw, w.root); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	keyCh := w.startKeyboardListener(ctx)
	defer w.restoreTerminal()

	if err := w.draw(); err != nil {
		return fmt.Errorf("initial render: %w", err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigCh:
			return nil
		case key := <-keyCh:
			if key == 'q' || key == 'Q' || key == 3 { // 3 = Ctrl+C
				return nil
			}
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addTree(fw, event.Name); err != nil {
						return err
					}
				}
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		case <-timer.C:
			if err := w.draw(); err != nil {
				return fmt.Errorf("rendering: %w", err)
			}
		}
	}
}

// addTree registers root and every directory below it. Symlinked join
// entries are not followed; their targets are already in the tree.
func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("watching %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) draw() error {
	lines, err := w.render()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.clear {
		for range w.lastRowCount {
			fmt.Fprint(w.out, "\033[1A\033[2K")
		}
	}
	for _, line := range lines {
		if w.isRawMode {
			fmt.Fprint(w.out, line+"\r\n")
		} else {
			fmt.Fprintln(w.out, line)
		}
	}
	w.lastRowCount = len(lines)
	return nil
}

// startKeyboardListener starts a goroutine that listens for keyboard input.
// Returns a channel that receives key presses.
func (w *Watcher) startKeyboardListener(ctx context.Context) <-chan byte {
	keyCh := make(chan byte, 1)
	if !w.keys || !term.IsTerminal(int(os.Stdout.Fd())) || !term.IsTerminal(w.stdinFd) {
		return keyCh
	}

	oldState, err := term.MakeRaw(w.stdinFd)
	if err != nil {
		return keyCh
	}
	w.mu.Lock()
	w.oldState = oldState
	w.isRawMode = true
	w.clear = true
	w.mu.Unlock()

	go func() {
		buf := make([]byte, 1)
		for ctx.Err() == nil {
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				continue
			}
			select {
			case keyCh <- buf[0]:
			default:
			}
		}
	}()
	return keyCh
}

// restoreTerminal restores the terminal to its original state.
func (w *Watcher) restoreTerminal() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isRawMode && w.oldState != nil {
		term.Restore(w.stdinFd, w.oldState)
		w.isRawMode = false
	}
}
