package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/minionszyw/leeksaver/internal/domain"
	"github.com/rs/zerolog"
)

// NewsRepository owns the news_articles table. Inserts are append-only with
// dedup by (source, source_id) or (source, url); the only in-place update is
// filling a row's embedding.
type NewsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewNewsRepository(db *sql.DB, log zerolog.Logger) *NewsRepository {
	return &NewsRepository{db: db, log: log.With().Str("repo", "news").Logger()}
}

// Insert appends articles, silently skipping rows that collide on the
// source-native dedup key.
func (r *NewsRepository) Insert(ctx context.Context, articles []domain.NewsArticle) error {
	cols := []string{"source_id", "source", "url", "title", "body", "publish_time", "related_symbols"}
	rows := make([][]any, len(articles))
	for i, a := range articles {
		rows[i] = []any{
			a.SourceID, a.Source, a.URL, a.Title, a.Body,
			formatTimestamp(a.PublishTime), strings.Join(a.RelatedSymbols, ","),
		}
	}
	return BulkInsertIgnore(ctx, r.db, "news_articles", cols, rows)
}

// WithoutEmbedding returns up to limit articles whose embedding has not been
// computed yet, oldest first so the backlog drains in publish order.
func (r *NewsRepository) WithoutEmbedding(ctx context.Context, limit int) ([]domain.NewsArticle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, source, url, title, body, publish_time, related_symbols
		FROM news_articles WHERE embedding IS NULL
		ORDER BY publish_time ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unembedded news: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// SetEmbedding stores an article's vector.
func (r *NewsRepository) SetEmbedding(ctx context.Context, id int64, embedding []float32) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE news_articles SET embedding = ? WHERE id = ?`, encodeVector(embedding), id)
	return err
}

// Since returns articles published on or after ts, ascending.
func (r *NewsRepository) Since(ctx context.Context, ts time.Time) ([]domain.NewsArticle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_id, source, url, title, body, publish_time, related_symbols
		FROM news_articles WHERE publish_time >= ?
		ORDER BY publish_time ASC`, formatTimestamp(ts))
	if err != nil {
		return nil, fmt.Errorf("query news since: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// LatestPublishTime returns the newest stored publish_time, or the zero time
// for an empty table. The news syncer's time-window anchor.
func (r *NewsRepository) LatestPublishTime(ctx context.Context) (time.Time, error) {
	var ts sql.NullString
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(publish_time) FROM news_articles`).Scan(&ts); err != nil {
		return time.Time{}, err
	}
	if !ts.Valid || ts.String == "" {
		return time.Time{}, nil
	}
	return parseTimestamp(ts.String)
}

// DeleteOlderThan removes articles published before cutoff. When protect is
// non-empty, articles whose related_symbols overlap the protected set are
// kept regardless of age.
func (r *NewsRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, protect []string) (int64, error) {
	if len(protect) == 0 {
		res, err := r.db.ExecContext(ctx,
			`DELETE FROM news_articles WHERE publish_time < ?`, formatTimestamp(cutoff))
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}

	// related_symbols is a comma-joined list; overlap is checked per code
	// against the padded string so "600519" cannot match "1600519".
	var conds []string
	args := []any{formatTimestamp(cutoff)}
	for _, code := range protect {
		conds = append(conds, `(',' || related_symbols || ',') NOT LIKE ?`)
		args = append(args, "%,"+code+",%")
	}
	query := fmt.Sprintf(`DELETE FROM news_articles WHERE publish_time < ? AND %s`,
		strings.Join(conds, " AND "))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Count returns the total article count.
func (r *NewsRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM news_articles`).Scan(&n)
	return n, err
}

func scanArticles(rows *sql.Rows) ([]domain.NewsArticle, error) {
	var out []domain.NewsArticle
	for rows.Next() {
		var a domain.NewsArticle
		var ts, related string
		if err := rows.Scan(&a.ID, &a.SourceID, &a.Source, &a.URL, &a.Title, &a.Body, &ts, &related); err != nil {
			return nil, err
		}
		t, err := parseTimestamp(ts)
		if err != nil {
			return nil, err
		}
		a.PublishTime = t
		if related != "" {
			a.RelatedSymbols = strings.Split(related, ",")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// encodeVector packs a float32 vector into the little-endian blob layout the
// store's vector extension expects.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of the blob layout encodeVector writes.
func DecodeVector(buf []byte) []float32 {
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}
