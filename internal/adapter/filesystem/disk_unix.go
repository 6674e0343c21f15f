//go:build !windows

package filesystem

import (
	"fmt"
	"syscall"

	"github.com/vertextoedge/download-controller/internal/port"
)

// GetDiskUsage reports the volume holding the download root
func (m *Manager) GetDiskUsage() (*port.DiskUsage, error) {
	return volumeUsage(m.rootDir)
}

// volumeUsage reports statfs figures for dir.
// Free is the space available to unprivileged writers.
func volumeUsage(dir string) (*port.DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return nil, fmt.Errorf("statfs %s: %w", dir, err)
	}

	blockSize := uint64(stat.Bsize)
	usage := &port.DiskUsage{
		Path:  dir,
		Total: stat.Blocks * blockSize,
		Free:  stat.Bavail * blockSize,
	}
	if usage.Total == 0 {
		return usage, nil
	}
	usage.Used = usage.Total - usage.Free
	usage.UsedPct = float64(usage.Used) / float64(usage.Total) * 100
	return usage, nil
}
