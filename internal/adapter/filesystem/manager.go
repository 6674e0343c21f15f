package filesystem

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vertextoedge/download-controller/internal/port"
)

// TempSuffix marks files still being written
const TempSuffix = ".downloading"

// maxUniqueAttempts bounds the "name(n).ext" search
const maxUniqueAttempts = 10000

// Manager handles the download directory
type Manager struct {
	rootDir    string
	bufferSize int

	// reserved holds final paths handed out by UniquePath whose temp file
	// may not exist yet
	mu       sync.Mutex
	reserved map[string]struct{}
}

// Ensure Manager implements port.FileSystem
var _ port.FileSystem = (*Manager)(nil)

// NewManager creates a new filesystem manager
func NewManager(rootDir string) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 256*1024)
}

// NewManagerWithBufferSize creates a new filesystem manager with custom write buffer size
func NewManagerWithBufferSize(rootDir string, bufferSize int) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 256 * 1024
	}

	return &Manager{
		rootDir:    rootDir,
		bufferSize: bufferSize,
		reserved:   make(map[string]struct{}),
	}, nil
}

// RootDir returns the default download directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

// EnsureDir ensures a directory exists
func (m *Manager) EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// UniquePath returns a free path for name in dir and reserves it
func (m *Manager) UniquePath(dir, name string) (string, error) {
	if dir == "" {
		dir = m.rootDir
	}
	name = sanitizeName(name)

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	m.mu.Lock()
	defer m.mu.Unlock()

	for i := 0; i < maxUniqueAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s(%d)%s", base, i, ext)
		}
		p := filepath.Join(dir, candidate)
		if m.taken(p) {
			continue
		}
		m.reserved[p] = struct{}{}
		return p, nil
	}
	return "", fmt.Errorf("no free file name for %q in %s", name, dir)
}

// taken must be called with m.mu held
func (m *Manager) taken(p string) bool {
	if _, ok := m.reserved[p]; ok {
		return true
	}
	if m.FileExists(p) {
		return true
	}
	return m.FileExists(m.TempPath(p))
}

// Release drops a reservation made by UniquePath
func (m *Manager) Release(finalPath string) {
	m.mu.Lock()
	delete(m.reserved, finalPath)
	m.mu.Unlock()
}

// TempPath returns the temp file path for finalPath
func (m *Manager) TempPath(finalPath string) string {
	return finalPath + TempSuffix
}

// OpenTemp opens a temp file, appending to it when resuming
func (m *Manager) OpenTemp(tempPath string, resume bool) (io.WriteCloser, int64, error) {
	if err := m.EnsureDir(filepath.Dir(tempPath)); err != nil {
		return nil, 0, fmt.Errorf("failed to create parent dir: %w", err)
	}

	if resume {
		if info, statErr := os.Stat(tempPath); statErr == nil {
			f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to open temp file for resume: %w", err)
			}
			return m.buffered(f), info.Size(), nil
		}
	}

	f, err := os.Create(tempPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	return m.buffered(f), 0, nil
}

// tempFile flushes its buffer before closing the file
type tempFile struct {
	*bufio.Writer
	f *os.File
}

func (t *tempFile) Close() error {
	flushErr := t.Flush()
	closeErr := t.f.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush temp file: %w", flushErr)
	}
	return closeErr
}

func (m *Manager) buffered(f *os.File) io.WriteCloser {
	return &tempFile{Writer: bufio.NewWriterSize(f, m.bufferSize), f: f}
}

// Commit renames tempPath to finalPath, choosing a new unique name if finalPath exists
func (m *Manager) Commit(tempPath, finalPath string) (string, error) {
	m.Release(finalPath)

	target := finalPath
	if m.FileExists(target) {
		p, err := m.UniquePath(filepath.Dir(finalPath), filepath.Base(finalPath))
		if err != nil {
			return "", err
		}
		defer m.Release(p)
		target = p
	}

	if err := os.Rename(tempPath, target); err != nil {
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}
	return target, nil
}

// FileExists checks if a file exists
func (m *Manager) FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetTempFileInfo returns size and modification time of a temp file
// Returns error if file does not exist
func (m *Manager) GetTempFileInfo(tempPath string) (int64, time.Time, error) {
	info, err := os.Stat(tempPath)
	if err != nil {
		return 0, time.Time{}, err
	}
	return info.Size(), info.ModTime(), nil
}

// DeleteTempFile removes a temporary file
func (m *Manager) DeleteTempFile(tempPath string) error {
	if err := os.Remove(tempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete temp file: %w", err)
	}
	return nil
}

// CleanOldTempFiles removes temp files older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.WalkDir(m.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, TempSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(threshold) {
			if removeErr := os.Remove(path); removeErr == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}

// sanitizeName strips directory parts and characters unsafe in file names
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || strings.ContainsRune(`<>:"|?*`, r) {
			return '_'
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "download"
	}
	return name
}
