package application

import (
	"context"
	"sync"
	"time"

	"github.com/pco-network/pco/internal/core/domain"
	"github.com/pco-network/pco/internal/core/ports"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentCollections = 8

// foreclosureWatcher is an unexported service running while the main
// application service is started. It schedules a tax collection at the
// foreclosure time of every asset, so that assets whose deposit ran out are
// handed back to the custodian without waiting for someone to interact with
// them. An optional periodic sweep collects tax on every asset.
type foreclosureWatcher struct {
	repoManager ports.RepoManager
	scheduler   ports.SchedulerService
	interval    time.Duration
	collect     func(ctx context.Context, id string) error

	// cache of scheduled tasks, avoid scheduling the same collection multiple times
	locker         sync.Locker
	scheduledTasks map[string]int64
}

func newForeclosureWatcher(
	repoManager ports.RepoManager,
	scheduler ports.SchedulerService,
	interval time.Duration,
	collect func(ctx context.Context, id string) error,
) *foreclosureWatcher {
	return &foreclosureWatcher{
		repoManager,
		scheduler,
		interval,
		collect,
		&sync.Mutex{},
		make(map[string]int64),
	}
}

func (w *foreclosureWatcher) start() error {
	w.scheduler.Start()

	ctx := context.Background()

	ids, err := w.repoManager.Assets().GetAssetIds(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		asset, err := w.repoManager.Assets().GetAsset(ctx, id)
		if err != nil {
			return err
		}
		if asset == nil {
			continue
		}
		if err := w.schedule(asset); err != nil {
			return err
		}
	}

	if w.interval > 0 {
		return w.scheduler.ScheduleEvery(w.interval, w.sweep)
	}
	return nil
}

func (w *foreclosureWatcher) stop() {
	w.scheduler.Stop()
}

// schedule sets up a collection at the asset's foreclosure time. Tasks
// scheduled for an earlier foreclosure time are left in place: running them
// only collects the tax accrued so far.
func (w *foreclosureWatcher) schedule(asset *domain.Asset) error {
	foreclosureTime, ok := asset.ForeclosureTime()
	if !ok {
		w.removeTask(asset.Id)
		return nil
	}

	w.locker.Lock()
	defer w.locker.Unlock()

	if scheduledAt, scheduled := w.scheduledTasks[asset.Id]; scheduled &&
		scheduledAt == foreclosureTime {
		return nil
	}

	if err := w.scheduler.ScheduleTaskOnce(
		foreclosureTime, w.createTask(asset.Id, foreclosureTime),
	); err != nil {
		return err
	}
	w.scheduledTasks[asset.Id] = foreclosureTime

	log.Debugf(
		"scheduled tax collection for asset %s at %s",
		asset.Id, time.Unix(foreclosureTime, 0).Format(time.DateTime),
	)
	return nil
}

func (w *foreclosureWatcher) removeTask(id string) {
	w.locker.Lock()
	defer w.locker.Unlock()
	delete(w.scheduledTasks, id)
}

func (w *foreclosureWatcher) createTask(id string, foreclosureTime int64) func() {
	return func() {
		w.locker.Lock()
		if w.scheduledTasks[id] == foreclosureTime {
			delete(w.scheduledTasks, id)
		}
		w.locker.Unlock()

		log.Debugf("collecting tax on asset %s at foreclosure time", id)
		if err := w.collect(context.Background(), id); err != nil {
			log.WithError(err).Errorf("failed to collect tax on asset %s", id)
		}
	}
}

// sweep collects tax on every asset, a few at a time.
func (w *foreclosureWatcher) sweep() {
	ctx := context.Background()

	ids, err := w.repoManager.Assets().GetAssetIds(ctx)
	if err != nil {
		log.WithError(err).Error("failed to list assets for tax collection")
		return
	}

	g := &errgroup.Group{}
	g.SetLimit(maxConcurrentCollections)
	for _, id := range ids {
		g.Go(func() error {
			if err := w.collect(ctx, id); err != nil {
				log.WithError(err).Warnf("failed to collect tax on asset %s", id)
			}
			return nil
		})
	}
	// nolint:errcheck
	g.Wait()
}
