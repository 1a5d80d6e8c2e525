// edgewall/pkg/store/file_store.go

package store

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"edgewall/pkg/logging"
)

// FileSource reads the packed rule payload from a file and reloads on
// filesystem change events. Intended for local development and for
// deployments that ship rules via a config-management drop.
type FileSource struct {
	path    string
	watcher *fsnotify.Watcher
	updates chan struct{}
	done    chan struct{}
}

func NewFileSource(path string) (*FileSource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors and atomic writers replace the file,
	// which would drop a watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	s := &FileSource{
		path:    path,
		watcher: watcher,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.watch()
	return s, nil
}

func (s *FileSource) watch() {
	defer close(s.updates)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			logging.Logger.Info().Str("path", s.path).Str("op", event.Op.String()).Msg("rule file changed")
			select {
			case s.updates <- struct{}{}:
			default:
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.Logger.Error().Err(err).Msg("rule file watcher error")
		case <-s.done:
			return
		}
	}
}

func (s *FileSource) Fetch() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, logging.NewError(logging.ErrorTypeStore, "failed to read rule file", err,
			map[string]interface{}{"path": s.path})
	}
	return data, nil
}

func (s *FileSource) Updates() <-chan struct{} {
	return s.updates
}

func (s *FileSource) Close() error {
	close(s.done)
	return s.watcher.Close()
}
