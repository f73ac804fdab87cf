package core

import (
	"context"
	"strconv"
	"sync"

	"github.com/hamsternav/hamsternav/internal/core/db"
	"github.com/rs/zerolog/log"
)

// FetchQueue runs image fetches for websites in the background. It is fed by
// DB event listeners and drained by a fixed number of workers.
type FetchQueue struct {
	db      *db.DB
	fetcher MetadataFetcher
	store   *ImageStore
	workers int

	mu     sync.RWMutex
	closed bool
	jobs   chan db.Website
	wg     sync.WaitGroup
}

// NewFetchQueue returns a queue holding up to size pending websites.
// store may be nil, in which case image files are not removed on delete.
func NewFetchQueue(database *db.DB, fetcher MetadataFetcher, store *ImageStore, workers, size int) *FetchQueue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = workers * 10
	}
	return &FetchQueue{
		db:      database,
		fetcher: fetcher,
		store:   store,
		workers: workers,
		jobs:    make(chan db.Website, size),
	}
}

// RegisterListeners queues new websites and websites whose URL changed, and
// deletes the image files of removed websites.
func (q *FetchQueue) RegisterListeners() {
	q.db.RegisterEventListener(db.OnWebsiteCreatedEvent, func(event db.Event) error {
		ev := event.(db.WebsiteCreatedEvent)
		log.Debug().Int64("id", ev.Website.ID).Str("url", ev.Website.URL).Msg("Website created, queuing image fetch")
		q.Enqueue(ev.Website)
		return nil
	})

	q.db.RegisterEventListener(db.OnWebsiteUpdatedEvent, func(event db.Event) error {
		ev := event.(db.WebsiteUpdatedEvent)
		if !ev.URLChanged {
			return nil
		}
		log.Debug().Int64("id", ev.Website.ID).Str("url", ev.Website.URL).Msg("Website URL changed, queuing image fetch")
		q.Enqueue(ev.Website)
		return nil
	})

	q.db.RegisterEventListener(db.OnWebsiteDeletedEvent, func(event db.Event) error {
		ev := event.(db.WebsiteDeletedEvent)
		if q.store == nil {
			return nil
		}
		return q.store.Remove(strconv.FormatInt(ev.Website.ID, 10))
	})
}

// Enqueue adds w without blocking. It reports false when the queue is full or closed.
func (q *FetchQueue) Enqueue(w db.Website) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- w:
		return true
	default:
		fetchQueueDropped.Inc()
		log.Warn().Int64("id", w.ID).Msg("Fetch queue full, website will be picked up by the next refresh")
		return false
	}
}

// EnqueueMissing queues every website that lacks a favicon or thumbnail and
// returns how many were queued.
func (q *FetchQueue) EnqueueMissing() (int, error) {
	websites, err := q.db.ListWebsitesForRefresh(0, true)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, w := range websites {
		if !q.Enqueue(w) {
			break
		}
		queued++
	}
	log.Info().Int("missing", len(websites)).Int("queued", queued).Msg("Queued websites without images")
	return queued, nil
}

// Start launches the workers. They exit when ctx is done or after Close
// once the queue is drained.
func (q *FetchQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		workerID := i
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			log.Debug().Int("worker", workerID).Msg("Fetch worker started")
			for {
				select {
				case <-ctx.Done():
					return
				case w, ok := <-q.jobs:
					if !ok {
						log.Debug().Int("worker", workerID).Msg("Fetch worker stopped")
						return
					}
					q.process(ctx, workerID, w)
				}
			}
		}()
	}
}

func (q *FetchQueue) process(ctx context.Context, workerID int, w db.Website) {
	// The queued copy may be stale; a later update could have changed the URL.
	current, err := q.db.GetWebsite(w.ID)
	if err != nil {
		log.Warn().Err(err).Int("worker", workerID).Int64("id", w.ID).Msg("Skipping queued website")
		return
	}
	updated, err := FetchAndPersist(ctx, q.db, q.fetcher, current)
	if err != nil {
		log.Error().Err(err).Int("worker", workerID).Int64("id", current.ID).Str("url", current.URL).Msg("Image fetch failed")
		return
	}
	log.Debug().Int("worker", workerID).Int64("id", current.ID).Bool("updated", updated).Msg("Image fetch finished")
}

// Close stops accepting work and waits for the workers to finish the queue.
func (q *FetchQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
