package discovery

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/mpataki/awinspect/internal/logging"
)

// Watch signals on the returned channel whenever a workflow file in dir is
// created, written, removed or renamed. Signals are coalesced: a reader that
// falls behind sees one pending signal, not a backlog. The channel is closed
// once ctx is done.
func Watch(ctx context.Context, dir string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	logger := logging.FromContext(ctx)
	changes := make(chan struct{}, 1)

	go func() {
		defer close(changes)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isWorkflowFile(event.Name) {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				logger.Debug("workflow directory changed", "path", event.Name, "op", event.Op.String())
				select {
				case changes <- struct{}{}:
				default:
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("workflow watcher error", "error", err)
			}
		}
	}()

	return changes, nil
}
