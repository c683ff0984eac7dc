package screenshot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"quizrelay/internal/metrics"
	"quizrelay/pkg/types"
)

// Store saves screenshot images under a single directory and keeps an
// in-memory index by helper id. The directory is the only state that
// survives a restart; on startup it is rescanned once and every file whose
// name matches the {helperID}-{millis}-{seq}.png pattern is re-indexed.
// Question ids are not recoverable from filenames, so rescanned entries
// carry an empty one.
type Store struct {
	dir       string
	urlPrefix string

	mu    sync.Mutex
	seq   int64
	index map[string][]types.ScreenshotRef

	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewStore creates the directory if needed and imports any images already
// present.
func NewStore(dir, urlPrefix string, log *zap.Logger, m *metrics.Metrics) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot dir %s: %w", dir, err)
	}

	s := &Store{
		dir:       dir,
		urlPrefix: urlPrefix,
		index:     make(map[string][]types.ScreenshotRef),
		log:       log,
		metrics:   m,
	}

	if err := s.rescan(); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes one PNG and indexes it, returning the reference delivered to
// helpers.
func (s *Store) Save(helperID, questionID string, data []byte) (types.ScreenshotRef, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	name := fmt.Sprintf("%s-%d-%d.png", helperID, time.Now().UnixMilli(), seq)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return types.ScreenshotRef{}, fmt.Errorf("failed to write screenshot %s: %w", name, err)
	}

	ref := types.ScreenshotRef{
		QuestionID: questionID,
		ImageURL:   s.urlPrefix + name,
	}

	s.mu.Lock()
	s.index[helperID] = append(s.index[helperID], ref)
	s.mu.Unlock()

	s.metrics.ScreenshotsSaved.Inc()
	s.log.Debug("screenshot saved",
		zap.String("helperId", helperID),
		zap.String("file", name),
		zap.Int("bytes", len(data)))

	return ref, nil
}

// Refs returns every indexed screenshot for a helper.
func (s *Store) Refs(helperID string) []types.ScreenshotRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ScreenshotRef(nil), s.index[helperID]...)
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// rescan is a bounded one-shot import of the directory contents.
func (s *Store) rescan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to rescan screenshot dir %s: %w", s.dir, err)
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		helperID, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		s.index[helperID] = append(s.index[helperID], types.ScreenshotRef{
			ImageURL: s.urlPrefix + entry.Name(),
		})
		imported++
	}

	if imported > 0 {
		s.log.Info("screenshot index rebuilt",
			zap.Int("files", imported),
			zap.String("dir", s.dir))
	}

	return nil
}

// parseName extracts the helper id from a {helperID}-{millis}-{seq}.png
// name. The last two dash-separated fields must be decimal; the helper id is
// everything before them and may itself contain dashes.
func parseName(name string) (string, bool) {
	base, found := strings.CutSuffix(name, ".png")
	if !found {
		return "", false
	}

	parts := strings.Split(base, "-")
	if len(parts) < 3 {
		return "", false
	}

	if !isDecimal(parts[len(parts)-1]) || !isDecimal(parts[len(parts)-2]) {
		return "", false
	}

	return strings.Join(parts[:len(parts)-2], "-"), true
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
