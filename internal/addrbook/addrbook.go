// Package addrbook is the default YAML-backed implementation of
// runtime.AddressBook: a device-name -> "tcp://host:port" mapping,
// loaded once at startup and hot-reloaded whenever the backing file
// changes on disk.
//
// Grounded on the LightwaveRF-Go example's config.load (YAML decode
// into a plain map under a mutex) and on beads' watchIssue (an
// fsnotify.Watcher debounced against rapid successive writes) for the
// reload loop — this runtime has no equivalent of its own since the
// original C implementation had no address registry at all, only a
// single statically-addressed peer per device.
package addrbook

import (
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/reactormesh/devrt/internal/logging"
)

// Book is a hot-reloadable device-name -> address mapping, satisfying
// runtime.AddressBook.
type Book struct {
	mu   sync.RWMutex
	path string
	m    map[string]string

	logger          logging.Logger
	watcher         *fsnotify.Watcher
	debounce        time.Duration
	debounceTimerMu sync.Mutex
	debounceTimer   *time.Timer
}

// Load reads path (a YAML document mapping device name to dialable
// address) into a new Book. The file need not exist yet — a missing
// file starts the Book empty, since a device may register addresses
// purely through Set before anything is ever persisted.
func Load(path string, logger logging.Logger) (*Book, error) {
	if logger == nil {
		logger = logging.Noop()
	}
	b := &Book{path: path, m: map[string]string{}, logger: logger, debounce: 250 * time.Millisecond}
	if err := b.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return b, nil
}

// Resolve implements runtime.AddressBook.
func (b *Book) Resolve(dev string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	addr, ok := b.m[dev]
	return addr, ok
}

// Set registers or overwrites dev's address in memory (not persisted).
func (b *Book) Set(dev, addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.m[dev] = addr
}

func (b *Book) reload() error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return err
	}
	var m map[string]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return err
	}
	if m == nil {
		m = map[string]string{}
	}
	b.mu.Lock()
	b.m = m
	b.mu.Unlock()
	return nil
}

// Watch starts an fsnotify watch on the backing file, reloading
// (debounced) on every write, until stop is closed. Safe to call at most
// once per Book.
func (b *Book) Watch(stop <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	b.watcher = w
	if err := w.Add(b.path); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) {
					b.scheduleReload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				b.logger.Warn("addrbook: watch error", "err", err)
			}
		}
	}()
	return nil
}

func (b *Book) scheduleReload() {
	b.debounceTimerMu.Lock()
	defer b.debounceTimerMu.Unlock()
	if b.debounceTimer != nil {
		b.debounceTimer.Stop()
	}
	b.debounceTimer = time.AfterFunc(b.debounce, func() {
		if err := b.reload(); err != nil {
			b.logger.Warn("addrbook: reload failed", "path", b.path, "err", err)
		}
	})
}
