package whitelist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/petward/server/internal/companion"
)

// Watch reloads the registry whenever the file is edited by something other
// than this process. The file is read and parsed on the calling goroutine;
// the swap is handed to post, which must run it on the tick thread. Watch
// blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context, post func(func())) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("whitelist watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create whitelist dir: %w", err)
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(r.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			r.reloadFromDisk(post)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("白名單監看錯誤", zap.Error(err))
		}
	}
}

func (r *Registry) reloadFromDisk(post func(func())) {
	gen := r.generation()
	data, err := os.ReadFile(r.path)
	if err != nil {
		r.log.Warn("讀取白名單失敗", zap.Error(err))
		return
	}
	if r.isOwnWrite(data) {
		return
	}
	owners, err := r.decode(data)
	if err != nil {
		// Editors often write in several steps; the next event brings the
		// complete file.
		r.log.Warn("白名單格式錯誤，保留目前內容", zap.Error(err))
		return
	}
	post(func() {
		// A save since the read means data predates the in-memory state.
		if r.generation() != gen {
			r.log.Debug("略過過期的白名單重新載入")
			return
		}
		r.replace(owners, data)
		r.log.Info("白名單已重新載入", zap.Int("owners", len(owners)))
	})
}

// Guard adapts a Registry to the host's target filter hook.
type Guard struct {
	Registry *Registry
}

func (g Guard) Suppress(owner companion.Identity, t companion.Target) bool {
	return g.Registry != nil && g.Registry.IsWhitelisted(owner, t)
}
