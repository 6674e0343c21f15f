package port

import (
	"io"
	"time"
)

// DiskUsage represents disk usage statistics
type DiskUsage struct {
	Path    string  // Directory the figures were taken for
	Total   uint64  // Total disk space in bytes
	Used    uint64  // Used disk space in bytes
	Free    uint64  // Free disk space in bytes
	UsedPct float64 // Used percentage (0-100)
}

// FileSystem defines the destination storage used by transfers
type FileSystem interface {
	// RootDir returns the default download directory
	RootDir() string

	// EnsureDir creates dir and its parents
	EnsureDir(dir string) error

	// UniquePath returns a path in dir for name that no file or pending temp file uses.
	// Collisions are resolved as "name(1).ext", "name(2).ext", ...
	UniquePath(dir, name string) (string, error)

	// Release drops a reservation made by UniquePath
	Release(finalPath string)

	// TempPath returns the temp file path used while writing finalPath
	TempPath(finalPath string) string

	// OpenTemp opens a temp file for writing.
	// With resume set an existing temp file is appended to and its size returned.
	OpenTemp(tempPath string, resume bool) (io.WriteCloser, int64, error)

	// Commit moves a finished temp file to finalPath, or to a fresh unique path
	// if finalPath was taken meanwhile. Returns the path written.
	Commit(tempPath, finalPath string) (string, error)

	// FileExists checks if a file exists
	FileExists(path string) bool

	// GetTempFileInfo returns size and modification time of a temp file
	GetTempFileInfo(tempPath string) (int64, time.Time, error)

	// DeleteTempFile removes a temporary file
	DeleteTempFile(tempPath string) error

	// GetDiskUsage returns disk usage statistics for the root directory
	GetDiskUsage() (*DiskUsage, error)

	// CleanOldTempFiles removes temp files older than the specified duration
	// Returns the number of files deleted
	CleanOldTempFiles(olderThan time.Duration) (int, error)
}
