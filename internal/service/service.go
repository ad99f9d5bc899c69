package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dealfeed/internal/client"
	"dealfeed/internal/domain"
	"dealfeed/internal/domain/task"
	"dealfeed/internal/queue"
	"dealfeed/internal/ranking"
	"dealfeed/internal/repository"
	"dealfeed/internal/selector"
	"dealfeed/internal/state"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const maxParallelEnqueue = 16

type Service struct {
	repository   repository.SnapshotRepository
	source       client.CatalogSource
	selector     *selector.Selector
	queue        queue.Queue
	preferences  state.PreferenceStore
	defaultPages int
	minIdleTime  time.Duration
	readBackoff  time.Duration
	now          func() time.Time
}

func NewService(
	repository repository.SnapshotRepository,
	source client.CatalogSource,
	selector *selector.Selector,
	queue queue.Queue,
	preferences state.PreferenceStore,
	defaultPages int,
	minIdleTime int,
) *Service {
	if minIdleTime <= 0 {
		minIdleTime = 120
	}
	return &Service{
		repository:   repository,
		source:       source,
		selector:     selector,
		queue:        queue,
		preferences:  preferences,
		defaultPages: max(defaultPages, 1),
		minIdleTime:  time.Duration(minIdleTime) * time.Second,
		readBackoff:  time.Second,
		now:          time.Now,
	}
}

// DailyDeals ranks the deals for userID's current selection. Up to pages
// catalog pages are pulled and the ranking is recomputed over everything
// loaded after each one. A page that fails after the first one ends paging
// early; the ranking of what was loaded is still returned.
func (s *Service) DailyDeals(ctx context.Context, userID string, pages int) (domain.Ranking, domain.QueryState, error) {
	if pages <= 0 {
		pages = s.defaultPages
	}

	selection, err := s.preferences.GetSelection(ctx, userID)
	if err != nil {
		return domain.Ranking{}, nil, err
	}

	stream, queryState, err := s.selector.Open(ctx, s.source, selection)
	if err != nil {
		return domain.Ranking{}, queryState, err
	}

	result := RankStream(ctx, stream, pages, func(page int, r domain.Ranking) {
		log.Debugf("Ranked %d deals for user %s after page %d", len(r.All), userID, page)
	})

	log.Infof("🏷️ %d deals for user %s (%v)", len(result.All), userID, queryState)
	return result, queryState, nil
}

// RankStream ranks stream's items, then keeps fetching until pages pages are
// loaded or the stream runs dry. onRank, if set, sees every intermediate ranking.
func RankStream(ctx context.Context, stream client.Stream, pages int, onRank func(page int, r domain.Ranking)) domain.Ranking {
	result := ranking.Rank(stream.Items())
	if onRank != nil {
		onRank(1, result)
	}

	for page := 2; page <= pages && stream.CanFetchMore(); page++ {
		if err := stream.FetchMore(ctx); err != nil {
			if !errors.Is(err, domain.ErrNoMorePages) {
				log.Warnf("⚠️ Stopped paging at page %d: %v", page, err)
			}
			break
		}

		result = ranking.Rank(stream.Items())
		if onRank != nil {
			onRank(page, result)
		}
	}

	return result
}

// EnqueueDigests queues a DealDigestTask for every onboarded user and returns
// how many were queued.
func (s *Service) EnqueueDigests(ctx context.Context) (int, error) {
	users, err := s.preferences.ListUsers(ctx)
	if err != nil {
		return 0, err
	}

	var queued atomic.Int64
	errGroup, gctx := errgroup.WithContext(ctx)
	errGroup.SetLimit(maxParallelEnqueue)

	for _, userID := range users {
		errGroup.Go(func() error {
			prefs, err := s.preferences.GetPreferences(gctx, userID)
			if err != nil {
				return err
			}
			if !prefs.HasOnboarded {
				log.Debugf("Skipping digest for user %s, onboarding not finished", userID)
				return nil
			}

			_, err = s.queue.AddTask(gctx, &task.DealDigestTask{
				UserID: userID,
				Pages:  s.defaultPages,
			})
			if err != nil {
				log.Errorf("❌ Failed to add digest task for %s: %v", userID, err)
				return err
			}

			queued.Add(1)
			return nil
		})
	}

	if err := errGroup.Wait(); err != nil {
		return int(queued.Load()), err
	}

	log.Infof("✅ Queued %d deal digests for %d users", queued.Load(), len(users))
	return int(queued.Load()), nil
}

// RunWorkers processes digest tasks with numWorkers consumers, and retries
// with half as many, until ctx is cancelled.
func (s *Service) RunWorkers(ctx context.Context, numWorkers int) error {
	pools := []struct {
		name    string
		stream  string
		workers int
	}{
		{name: "digest", stream: queue.StreamName(task.TypeDealDigest), workers: numWorkers},
		{name: "retry", stream: queue.StreamName(task.TypeDigestRetry), workers: max(numWorkers/2, 1)},
	}

	var wg sync.WaitGroup
	for _, pool := range pools {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.claimPending(ctx, pool.name, pool.stream)
		}()

		for i := 1; i <= pool.workers; i++ {
			consumer := fmt.Sprintf("%s-worker-%d", pool.name, i)
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.consume(ctx, consumer, pool.stream)
			}()
		}
	}

	wg.Wait()
	return nil
}

// consume reads and handles tasks from stream until ctx is done.
func (s *Service) consume(ctx context.Context, consumer, stream string) {
	log.Infof("🚀 Worker %s reading %s", consumer, stream)
	defer log.Infof("🛑 Worker %s stopped", consumer)

	for ctx.Err() == nil {
		msg, err := s.queue.GetTask(ctx, consumer, stream)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Errorf("❌ Worker %s failed to read task: %v", consumer, err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(s.readBackoff):
			}
			continue
		}
		if msg == nil {
			continue
		}

		if err := s.handle(ctx, msg); err != nil {
			log.Errorf("❌ Failed to process message %s: %v", msg.ID, err)
		}
	}
}

// claimPending periodically takes over tasks a crashed consumer never acked.
func (s *Service) claimPending(ctx context.Context, name, stream string) {
	ticker := time.NewTicker(s.minIdleTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		consumer := fmt.Sprintf("autoclaimer-%s-%s", name, uuid.NewString())
		claimed, err := s.queue.AutoClaim(ctx, consumer, stream, s.minIdleTime)
		if err != nil {
			log.Errorf("❌ Failed to auto-claim messages for %s: %v", stream, err)
			continue
		}
		if len(claimed) == 0 {
			continue
		}

		log.Infof("🔄 Auto-claimed %d messages from %s stream", len(claimed), name)
		for i := range claimed {
			if err := s.handle(ctx, &claimed[i]); err != nil {
				log.Errorf("❌ Failed to process auto-claimed message %s: %v", claimed[i].ID, err)
			}
		}
	}
}

// handle runs one task and acks it. Failed digests are handed to the retry
// stream before the ack, so the failed message is not redelivered. Messages
// that can never be processed are acked and dropped.
func (s *Service) handle(ctx context.Context, msg *queue.Message) error {
	switch msg.TaskType {
	case task.TypeDealDigest:
		t, err := task.UnmarshalTask[*task.DealDigestTask](msg.Data)
		if err != nil {
			return s.drop(ctx, msg, fmt.Errorf("failed to unmarshal deal digest task: %w", err))
		}

		if err := s.digest(ctx, t.UserID, t.Pages); err != nil {
			if err := s.scheduleRetry(ctx, t.UserID, t.Pages, 0, err); err != nil {
				return err
			}
		}

	case task.TypeDigestRetry:
		t, err := task.UnmarshalTask[*task.DigestRetryTask](msg.Data)
		if err != nil {
			return s.drop(ctx, msg, fmt.Errorf("failed to unmarshal digest retry task: %w", err))
		}

		attempt := t.RetryCount + 1
		log.Infof("🔄 Retrying digest for user %s (attempt %d)", t.UserID, attempt)

		if err := s.digest(ctx, t.UserID, t.Pages); err != nil {
			if err := s.scheduleRetry(ctx, t.UserID, t.Pages, attempt, err); err != nil {
				return err
			}
		} else {
			log.Infof("✅ Recovered digest for user %s after %d attempts", t.UserID, attempt)
		}

	default:
		return s.drop(ctx, msg, fmt.Errorf("%w: %s", domain.ErrUnknownTask, msg.TaskType))
	}

	return s.queue.AckTask(ctx, msg)
}

// drop acks msg so it leaves the pending list, and returns cause for logging.
func (s *Service) drop(ctx context.Context, msg *queue.Message, cause error) error {
	log.Warnf("⚠️ Dropping message %s on %s: %v", msg.ID, msg.Stream, cause)
	if err := s.queue.AckTask(ctx, msg); err != nil {
		return fmt.Errorf("%w (ack failed: %v)", cause, err)
	}
	return cause
}

// scheduleRetry queues another attempt. Digests are retried until they succeed.
func (s *Service) scheduleRetry(ctx context.Context, userID string, pages, attempts int, cause error) error {
	_, err := s.queue.AddTask(ctx, &task.DigestRetryTask{
		UserID:     userID,
		Pages:      pages,
		RetryCount: attempts,
		Error:      cause.Error(),
	})
	if err != nil {
		return fmt.Errorf("failed to queue digest retry for user %s: %w", userID, err)
	}

	log.Warnf("🔄 Digest for user %s failed (attempt %d), queued for retry: %v", userID, attempts, cause)
	return nil
}

// digest ranks userID's deals and stores the result as a snapshot.
func (s *Service) digest(ctx context.Context, userID string, pages int) error {
	result, queryState, err := s.DailyDeals(ctx, userID, pages)
	if err != nil {
		return err
	}

	snapshot := &domain.DealSnapshot{
		ID:        uuid.New(),
		UserID:    userID,
		Query:     queryState.SearchQuery(),
		Filtered:  domain.IsFiltered(queryState),
		TopDeal:   result.Top,
		Deals:     result.All,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repository.SaveSnapshot(ctx, snapshot); err != nil {
		return err
	}

	log.Infof("💾 Saved deal snapshot %s for user %s", snapshot.ID, userID)
	return nil
}

// LatestSnapshot returns the last stored digest for userID, nil when none.
func (s *Service) LatestSnapshot(ctx context.Context, userID string) (*domain.DealSnapshot, error) {
	return s.repository.LatestSnapshot(ctx, userID)
}
