package interactions

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Source supplies a knowledge base from outside the binary.
type Source interface {
	Load(ctx context.Context) (*KnowledgeBase, error)
}

// FileSource reads a YAML knowledge base from disk.
type FileSource struct {
	path   string
	logger *zap.Logger
}

func NewFileSource(path string, logger *zap.Logger) *FileSource {
	return &FileSource{path: filepath.Clean(path), logger: logger}
}

func (s *FileSource) Load(ctx context.Context) (*KnowledgeBase, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base %s: %w", s.path, err)
	}
	return Parse(data)
}

// Watch reloads the file whenever it changes and hands valid results to
// onChange. Invalid edits are logged and the previous base stays active.
// It blocks until ctx is cancelled.
func (s *FileSource) Watch(ctx context.Context, onChange func(*KnowledgeBase)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file via rename.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			kb, err := s.Load(ctx)
			if err != nil {
				s.logger.Warn("Ignoring invalid knowledge base update",
					zap.String("path", s.path),
					zap.Error(err),
				)
				continue
			}
			s.logger.Info("Knowledge base reloaded",
				zap.String("path", s.path),
				zap.Int("entries", kb.Len()),
			)
			onChange(kb)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Knowledge base watcher error", zap.Error(err))
		}
	}
}

// HTTPSource fetches a knowledge base document from a remote endpoint
// through a circuit breaker, so a flapping server fails fast.
type HTTPSource struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.Logger
}

func NewHTTPSource(url string, timeout time.Duration, logger *zap.Logger) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "knowledge-base",
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s
}

func (s *HTTPSource) Load(ctx context.Context) (*KnowledgeBase, error) {
	data, err := s.breaker.Execute(func() ([]byte, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch knowledge base: %w", err)
	}
	return Parse(data)
}

func (s *HTTPSource) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/yaml, application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, s.url)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}
