package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vertextoedge/download-controller/internal/port"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config contains maintenance service configuration
type Config struct {
	// CleanupInterval is how often to prune history and temp files
	CleanupInterval time.Duration

	// HistoryRetention is how long finished transfers stay in the history
	HistoryRetention time.Duration

	// TempFileMaxAge is the maximum age of partial files before cleanup
	TempFileMaxAge time.Duration

	// DiskCheckInterval is how often to check free space in the download directory
	DiskCheckInterval time.Duration

	// DiskWarnPercent logs a warning when disk usage exceeds it
	DiskWarnPercent float64
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		CleanupInterval:   time.Hour,
		HistoryRetention:  30 * 24 * time.Hour,
		TempFileMaxAge:    7 * 24 * time.Hour,
		DiskCheckInterval: 5 * time.Minute,
		DiskWarnPercent:   90,
	}
}

// Service handles periodic maintenance tasks
type Service struct {
	config  *Config
	history port.HistoryRepository
	fs      port.FileSystem
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service. history may be nil when history is disabled.
func New(cfg *Config, history port.HistoryRepository, fs port.FileSystem, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.HistoryRetention == 0 {
		cfg.HistoryRetention = 30 * 24 * time.Hour
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 7 * 24 * time.Hour
	}
	if cfg.DiskCheckInterval == 0 {
		cfg.DiskCheckInterval = 5 * time.Minute
	}
	if cfg.DiskWarnPercent == 0 {
		cfg.DiskWarnPercent = 90
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:  cfg,
		history: history,
		fs:      fs,
		logger:  logger.Named("maintenance"),
		now:     time.Now,
	}
}

// Start runs the maintenance loop until ctx is cancelled or Stop is called
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("cleanup_interval", s.config.CleanupInterval),
		zap.Duration("disk_check_interval", s.config.DiskCheckInterval))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	cleanupTicker := time.NewTicker(s.config.CleanupInterval)
	defer cleanupTicker.Stop()

	diskTicker := time.NewTicker(s.config.DiskCheckInterval)
	defer diskTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			if err := s.RunCleanup(ctx); err != nil {
				s.logger.Error("maintenance cycle failed", zap.Error(err))
			}
		case <-diskTicker.C:
			s.checkDiskUsage()
		}
	}
}

// RunCleanup prunes history and stale temp files concurrently.
// Both steps always run; the first error is returned.
func (s *Service) RunCleanup(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(s.pruneHistory)
	g.Go(s.cleanupTempFiles)
	return g.Wait()
}

// pruneHistory removes finished transfers older than the retention
func (s *Service) pruneHistory() error {
	if s.history == nil {
		return nil
	}
	cutoff := s.now().Add(-s.config.HistoryRetention)
	deleted, err := s.history.DeleteFinishedBefore(cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}
	if deleted > 0 {
		s.logger.Info("pruned transfer history", zap.Int("count", deleted), zap.Time("before", cutoff))
	}
	return nil
}

// cleanupTempFiles removes abandoned partial files from the download directory
func (s *Service) cleanupTempFiles() error {
	if s.fs == nil {
		return nil
	}
	count, err := s.fs.CleanOldTempFiles(s.config.TempFileMaxAge)
	if err != nil {
		return fmt.Errorf("failed to cleanup temp files: %w", err)
	}
	if count > 0 {
		s.logger.Info("cleaned up old temp files", zap.Int("count", count))
	}
	return nil
}

// checkDiskUsage warns when the download directory is nearly full
func (s *Service) checkDiskUsage() {
	if s.fs == nil {
		return
	}
	usage, err := s.fs.GetDiskUsage()
	if err != nil {
		s.logger.Debug("disk usage unavailable", zap.Error(err))
		return
	}
	if usage.UsedPct >= s.config.DiskWarnPercent {
		s.logger.Warn("download directory almost full",
			zap.String("dir", usage.Path),
			zap.String("free", humanize.IBytes(usage.Free)),
			zap.Float64("used_pct", usage.UsedPct))
	}
}
