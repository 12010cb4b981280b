package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	"commission_backend/internal/config"
	"commission_backend/internal/logger"
	"commission_backend/internal/models"
	"commission_backend/internal/orderstate"
	"commission_backend/internal/redis"
	"commission_backend/internal/repositories"
	"commission_backend/internal/services"
	"commission_backend/internal/storage"
)

const (
	workerName   = "archive_scheduler"
	runLockKey   = "archive-scheduler"
	day          = 24 * time.Hour
	defaultBatch = 200
)

// errSkip rolls back a step whose order no longer qualifies once locked.
var errSkip = errors.New("order no longer qualifies")

//go:generate mockgen -source=archive_worker.go -destination=mocks/mock_locker.go -package=mocks

// Locker hands out a cluster-wide run lock. It returns redis.ErrLockHeld when
// another instance is running.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type ArchiveConfig struct {
	PurgeDays       int
	WarningLeadDays int
	Interval        time.Duration
	LockTTL         time.Duration
	BatchSize       int
}

func ArchiveConfigFrom(cfg *config.Config) ArchiveConfig {
	return ArchiveConfig{
		PurgeDays:       cfg.Archive.PurgeDays,
		WarningLeadDays: cfg.Archive.WarningLeadDays,
		Interval:        time.Duration(cfg.Archive.IntervalMinutes) * time.Minute,
		LockTTL:         time.Duration(cfg.Archive.LockTTLSeconds) * time.Second,
		BatchSize:       cfg.Archive.BatchSize,
	}
}

// RunReport counts what a single run changed.
type RunReport struct {
	Archived     int  `json:"archived"`
	Warned       int  `json:"warned"`
	Purged       int  `json:"purged"`
	FilesDeleted int  `json:"filesDeleted"`
	Failed       int  `json:"failed"`
	Skipped      bool `json:"skipped"`
}

// ArchiveWorker archives expired orders, warns clients before their files go
// and purges plans once the retention period has passed. Every step is keyed
// on stamps stored on the order, so reruns are harmless.
type ArchiveWorker struct {
	db       *gorm.DB
	repos    *repositories.RepositoryContainer
	blobs    storage.BlobStore
	notifier services.Notifier
	locker   Locker
	cfg      ArchiveConfig
	now      func() time.Time

	mu sync.Mutex
}

func NewArchiveWorker(db *gorm.DB, repos *repositories.RepositoryContainer, blobs storage.BlobStore,
	notifier services.Notifier, locker Locker, cfg ArchiveConfig) *ArchiveWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatch
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &ArchiveWorker{
		db:       db,
		repos:    repos,
		blobs:    blobs,
		notifier: notifier,
		locker:   locker,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Start runs the scheduler on a ticker until ctx is cancelled.
func (w *ArchiveWorker) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *ArchiveWorker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Archive worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				logger.WorkerLog(workerName, "run", err)
			}
		}
	}
}

// RunOnce performs the expiry, warning and purge passes in that order.
func (w *ArchiveWorker) RunOnce(ctx context.Context) (*RunReport, error) {
	// Runs inside one process never overlap; the redis lock covers other instances.
	w.mu.Lock()
	defer w.mu.Unlock()

	report := &RunReport{}

	if w.locker != nil {
		release, err := w.locker.TryLock(ctx, runLockKey, w.cfg.LockTTL)
		if errors.Is(err, redis.ErrLockHeld) {
			logger.CtxInfo(ctx, "archive run skipped, another instance holds the lock")
			report.Skipped = true
			return report, nil
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.CtxWithError(ctx, "failed to release archive run lock", err)
			}
		}()
	}

	now := w.now().UTC()
	if err := w.expiryPass(ctx, now, report); err != nil {
		return report, err
	}
	if err := w.warningPass(ctx, now, report); err != nil {
		return report, err
	}
	if err := w.purgePass(ctx, now, report); err != nil {
		return report, err
	}

	logger.WorkerLog(workerName, "run", nil,
		"archived", report.Archived,
		"warned", report.Warned,
		"purged", report.Purged,
		"files_deleted", report.FilesDeleted,
		"failed", report.Failed,
	)
	return report, nil
}

func (w *ArchiveWorker) purgeAfter() time.Duration {
	return time.Duration(w.cfg.PurgeDays) * day
}

// ============================================
// Expiry pass
// ============================================

func (w *ArchiveWorker) expiryPass(ctx context.Context, now time.Time, report *RunReport) error {
	return w.eachCandidate(func(after *repositories.OrderCursor) ([]models.Order, error) {
		return w.repos.OrderRepo.FindExpiredOpenOrders(w.db, now, after, w.cfg.BatchSize)
	}, func(candidate models.Order) {
		ok, err := w.step(ctx, candidate.ID, "archive", func(tx *gorm.DB, order *models.Order) ([]models.Notification, error) {
			if order.Status != models.OrderStatusReview && order.Status != models.OrderStatusCompleted {
				return nil, errSkip
			}
			if !order.Expired(now) {
				return nil, errSkip
			}
			if err := orderstate.ValidateTransition(order.Status, models.OrderStatusArchived, models.UserRoleSystem); err != nil {
				return nil, err
			}
			order.Status = models.OrderStatusArchived
			if err := w.repos.OrderRepo.UpdateOrder(tx, order); err != nil {
				return nil, err
			}
			n, err := w.repos.NotificationRepo.CreateOrderArchivedNotification(tx, order)
			if err != nil {
				return nil, err
			}
			return []models.Notification{*n}, nil
		})
		tally(ok, err, &report.Archived, &report.Failed)
	})
}

// ============================================
// Warning pass
// ============================================

func (w *ArchiveWorker) warningPass(ctx context.Context, now time.Time, report *RunReport) error {
	from := now.Add(-w.purgeAfter())
	to := now.Add(-time.Duration(w.cfg.PurgeDays-w.cfg.WarningLeadDays) * day)

	return w.eachCandidate(func(after *repositories.OrderCursor) ([]models.Order, error) {
		return w.repos.OrderRepo.FindArchiveWarningCandidates(w.db, from, to, after, w.cfg.BatchSize)
	}, func(candidate models.Order) {
		ok, err := w.step(ctx, candidate.ID, "warn", func(tx *gorm.DB, order *models.Order) ([]models.Notification, error) {
			if !order.Status.IsTerminal() || order.PlansPurgedAt != nil || order.ArchivedWarningSentAt != nil {
				return nil, errSkip
			}
			if order.Deadline.Before(from) || order.Deadline.After(to) {
				return nil, errSkip
			}
			n, err := w.repos.NotificationRepo.CreateArchiveWarningNotification(tx, order, order.Deadline.Add(w.purgeAfter()))
			if err != nil {
				return nil, err
			}
			sentAt := now
			order.ArchivedWarningSentAt = &sentAt
			if err := w.repos.OrderRepo.UpdateOrder(tx, order); err != nil {
				return nil, err
			}
			return []models.Notification{*n}, nil
		})
		tally(ok, err, &report.Warned, &report.Failed)
	})
}

// ============================================
// Purge pass
// ============================================

func (w *ArchiveWorker) purgePass(ctx context.Context, now time.Time, report *RunReport) error {
	cutoff := now.Add(-w.purgeAfter())

	return w.eachCandidate(func(after *repositories.OrderCursor) ([]models.Order, error) {
		return w.repos.OrderRepo.FindPurgeCandidates(w.db, cutoff, after, w.cfg.BatchSize)
	}, func(candidate models.Order) {
		var urls []string
		ok, err := w.step(ctx, candidate.ID, "purge", func(tx *gorm.DB, order *models.Order) ([]models.Notification, error) {
			if !order.Status.IsTerminal() || order.PlansPurgedAt != nil || order.Deadline.After(cutoff) {
				return nil, errSkip
			}
			cleared, err := w.repos.PlanRepo.TombstonePlans(tx, order.ID, now)
			if err != nil {
				return nil, err
			}
			purgedAt := now
			order.PlansPurgedAt = &purgedAt
			if err := w.repos.OrderRepo.UpdateOrder(tx, order); err != nil {
				return nil, err
			}
			n, err := w.repos.NotificationRepo.CreateFilesPurgedNotification(tx, order)
			if err != nil {
				return nil, err
			}
			urls = cleared
			return []models.Notification{*n}, nil
		})
		tally(ok, err, &report.Purged, &report.Failed)
		if ok {
			report.FilesDeleted += w.deleteFiles(ctx, candidate.ID, urls)
		}
	})
}

// deleteFiles removes purged blobs. Failures leave an orphaned file and are only logged.
func (w *ArchiveWorker) deleteFiles(ctx context.Context, orderID string, urls []string) int {
	if w.blobs == nil {
		return 0
	}
	deleted := 0
	for _, url := range urls {
		if err := w.blobs.Delete(ctx, url); err != nil {
			logger.CtxWithError(ctx, "failed to delete purged plan file", err, "order_id", orderID, "url", url)
			continue
		}
		deleted++
	}
	return deleted
}

// ============================================
// Helpers
// ============================================

type stepFunc func(tx *gorm.DB, order *models.Order) ([]models.Notification, error)

// eachCandidate pages through a selection batch by batch. The cursor moves
// past every visited order, failed and skipped ones included.
func (w *ArchiveWorker) eachCandidate(fetch func(after *repositories.OrderCursor) ([]models.Order, error), visit func(models.Order)) error {
	var after *repositories.OrderCursor
	for {
		batch, err := fetch(after)
		if err != nil {
			return err
		}
		for _, candidate := range batch {
			visit(candidate)
		}
		if len(batch) < w.cfg.BatchSize {
			return nil
		}
		after = repositories.CursorAt(batch[len(batch)-1])
	}
}

// step locks one order, applies fn and announces its notifications after commit.
// It reports whether fn changed the order.
func (w *ArchiveWorker) step(ctx context.Context, orderID, operation string, fn stepFunc) (bool, error) {
	ctx = logger.WithOrderID(ctx, orderID)

	var announce []models.Notification
	err := w.repos.Transactor.WithinTransaction(w.db, func(tx *gorm.DB) error {
		order, err := w.repos.OrderRepo.FindOrderByIDForUpdate(tx, orderID)
		if err != nil {
			return err
		}
		announce, err = fn(tx, order)
		return err
	})
	if errors.Is(err, errSkip) {
		return false, nil
	}
	if err != nil {
		logger.WorkerLog(workerName, operation, err, "order_id", orderID)
		return false, err
	}

	if w.notifier != nil {
		w.notifier.Announce(ctx, announce...)
	}
	return true, nil
}

func tally(ok bool, err error, done, failed *int) {
	switch {
	case err != nil:
		*failed++
	case ok:
		*done++
	}
}
