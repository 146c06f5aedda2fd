package config

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/BergCTF/wireguard-router/internal/logging"
)

// ReloadChannelCapacity is the bound callers should use for the
// Snapshot channel passed to Watch. A full channel means the router
// hasn't drained the last reload yet; the new one is dropped rather
// than blocking the watcher, since reloads are idempotent — the next
// event or poll tick republishes an equivalent snapshot.
const ReloadChannelCapacity = 10

// pollInterval is the fallback polling period used both when fsnotify
// is unavailable and as a backstop alongside a working watcher (atomic
// writers occasionally rename in a way a single watched directory
// misses).
const pollInterval = 30 * time.Second

// Watch loads path once, sends the initial Snapshot on out, then
// blocks watching the file's containing directory for changes (atomic
// config writers write-to-temp-then-rename, which replaces the inode a
// direct file watch would lose). On every detected change it reloads
// and publishes a new Snapshot; a parse failure is logged and the
// previous snapshot is left in place (nothing is sent). Watch returns
// when ctx is cancelled.
func Watch(ctx context.Context, path string, out chan<- *Snapshot, log *logging.Logger) error {
	initial, err := Load(path)
	if err != nil {
		return err
	}
	out <- initial

	dir, file := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	var events <-chan fsnotify.Event
	var fsErrors <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer watcher.Close()
		if err := watcher.Add(dir); err == nil {
			events = watcher.Events
			fsErrors = watcher.Errors
			log.Info("config: watching directory ", dir, " for changes to ", file)
		} else {
			log.Error("config: fsnotify watch failed: ", err.Error(), " (falling back to polling)")
		}
	} else {
		log.Error("config: fsnotify unavailable: ", err.Error(), " (falling back to polling)")
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			_, evFile := filepath.Split(ev.Name)
			if evFile != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			reload(path, out, log)

		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			log.Error("config: fsnotify error: ", err.Error())

		case <-ticker.C:
			reload(path, out, log)
		}
	}
}

func reload(path string, out chan<- *Snapshot, log *logging.Logger) {
	snap, err := Load(path)
	if err != nil {
		log.Error("config: reload failed, keeping previous snapshot: ", err.Error())
		return
	}
	select {
	case out <- snap:
		log.Info("config: reloaded, ", strconv.Itoa(len(snap.Peers)), " peer(s)")
	default:
		log.Debug("config: reload channel full, dropping this snapshot")
	}
}
