package syncer

import (
	"context"
	"time"

	"github.com/minionszyw/leeksaver/internal/jobs"
	"github.com/minionszyw/leeksaver/internal/transform"
	"github.com/minionszyw/leeksaver/internal/upstream"
)

const (
	// coldStartWindow is how far back the first-ever news fetch reaches.
	coldStartWindow = 24 * time.Hour
	// newsOverlap re-queries a sliver of already-seen time so an article
	// published right at the previous window edge cannot be dropped; the
	// repository's insert-ignore absorbs the resulting repeats.
	newsOverlap = 5 * time.Minute
)

// NewsTask runs the time-window backfill: cold start pulls the last day,
// steady state pulls since the newest stored publish_time minus the
// overlap.
func (s *Syncers) NewsTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		latest, err := s.news.LatestPublishTime(ctx)
		if err != nil {
			return err
		}

		var since time.Time
		if latest.IsZero() {
			since = s.now().Add(-coldStartWindow)
		} else {
			since = latest.Add(-newsOverlap)
		}

		var frame *upstream.Frame
		err = s.gate.Do(ctx, "news", func(ctx context.Context) error {
			var err error
			frame, err = s.adapter.NewsSince(ctx, since)
			return err
		})
		if isEmpty(err) {
			return nil // quiet window
		}
		if err != nil {
			return err
		}
		progress.Fetched.Add(int64(frame.Len()))

		articles, counters := transform.News(frame)
		progress.Accepted.Add(int64(counters.Accepted))
		if err := counters.DriftCheck(); err != nil {
			return err
		}
		if len(articles) == 0 {
			return nil
		}

		if err := s.news.Insert(ctx, articles); err != nil {
			return err
		}
		progress.Written.Add(int64(len(articles)))
		return nil
	}
}

// NewsCleanupTask is the weekly retention sweep. Articles older than the
// retention horizon are deleted; when watchlist protection is on, articles
// whose related_symbols overlap the current watchlist survive regardless of
// age.
func (s *Syncers) NewsCleanupTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		cutoff := s.now().AddDate(0, 0, -s.cfg.NewsRetentionDays)

		var protect []string
		if s.cfg.NewsCleanupProtectWatchlist {
			w, err := s.watchlist.Get(ctx)
			if err != nil {
				return err
			}
			protect = w.Codes
		}

		deleted, err := s.news.DeleteOlderThan(ctx, cutoff, protect)
		if err != nil {
			return err
		}
		progress.Written.Add(deleted)
		s.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).
			Bool("watchlist_protected", len(protect) > 0).Msg("news cleanup done")
		return nil
	}
}

// EmbeddingsTask drains the embedding backlog: news rows with a NULL
// embedding, batched by the provider's declared maximum.
func (s *Syncers) EmbeddingsTask() func(ctx context.Context, progress *jobs.Progress) error {
	return func(ctx context.Context, progress *jobs.Progress) error {
		if s.embedder == nil {
			return nil // embedding service not configured
		}
		batchSize := s.embedder.MaxBatchSize()
		if batchSize <= 0 || batchSize > s.cfg.EmbeddingsBatchSize {
			batchSize = s.cfg.EmbeddingsBatchSize
		}

		for {
			if err := checkCancel(ctx); err != nil {
				return err
			}
			articles, err := s.news.WithoutEmbedding(ctx, batchSize)
			if err != nil {
				return err
			}
			if len(articles) == 0 {
				return nil
			}
			progress.Fetched.Add(int64(len(articles)))

			texts := make([]string, len(articles))
			for i, a := range articles {
				texts[i] = a.Title + "\n" + a.Body
			}
			vectors, err := s.embedder.Embed(ctx, texts)
			if err != nil {
				return err
			}
			if len(vectors) != len(articles) {
				s.log.Warn().Int("want", len(articles)).Int("got", len(vectors)).
					Msg("embedding service returned short batch")
			}
			for i, vec := range vectors {
				if i >= len(articles) {
					break
				}
				if err := s.news.SetEmbedding(ctx, articles[i].ID, vec); err != nil {
					return err
				}
				progress.Written.Add(1)
			}
			if len(articles) < batchSize {
				return nil // backlog drained
			}
		}
	}
}
