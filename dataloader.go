package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/lib/pq"
)

// DataLoaderContextKey is the key used to store dataloaders in context
type DataLoaderContextKey string

const dataLoaderKey DataLoaderContextKey = "dataloader"

// DataLoaders holds the per-request loaders.
type DataLoaders struct {
	FounderLoader *dataloader.Loader[int, *FounderSummary]
}

func NewDataLoaders(db *sql.DB) *DataLoaders {
	return &DataLoaders{
		FounderLoader: dataloader.NewBatchedLoader(
			founderSummaryBatchFn(db),
			dataloader.WithWait[int, *FounderSummary](16*time.Millisecond),
		),
	}
}

func GetDataLoadersFromContext(ctx context.Context) *DataLoaders {
	if dl, ok := ctx.Value(dataLoaderKey).(*DataLoaders); ok {
		return dl
	}
	return nil
}

func WithDataLoaders(ctx context.Context, dl *DataLoaders) context.Context {
	return context.WithValue(ctx, dataLoaderKey, dl)
}

// founderSummaryBatchFn loads many founder summaries in one query. Unknown
// ids resolve to a nil summary without an error.
func founderSummaryBatchFn(db *sql.DB) dataloader.BatchFunc[int, *FounderSummary] {
	return func(ctx context.Context, keys []int) []*dataloader.Result[*FounderSummary] {
		results := make([]*dataloader.Result[*FounderSummary], len(keys))
		index := make(map[int][]int, len(keys))
		for i, key := range keys {
			index[key] = append(index[key], i)
			results[i] = &dataloader.Result[*FounderSummary]{}
		}
		if len(keys) == 0 {
			return results
		}

		ids := make([]int64, len(keys))
		for i, k := range keys {
			ids[i] = int64(k)
		}

		rows, err := db.QueryContext(ctx, `
			SELECT id, name, stage, industry, is_online, profile_image
			FROM founder_profiles
			WHERE id = ANY($1)
		`, pq.Array(ids))
		if err != nil {
			for i := range results {
				results[i].Error = fmt.Errorf("load founder summaries: %w", err)
			}
			return results
		}
		defer rows.Close()

		for rows.Next() {
			var s FounderSummary
			var image sql.NullString
			if err := rows.Scan(&s.ID, &s.Name, &s.Stage, &s.Industry, &s.IsOnline, &image); err != nil {
				for i := range results {
					if results[i].Data == nil && results[i].Error == nil {
						results[i].Error = err
					}
				}
				return results
			}
			if image.Valid && image.String != "" {
				url := founderImageURL(s.ID)
				s.ProfileImageURL = &url
			}
			for _, idx := range index[s.ID] {
				summary := s
				results[idx].Data = &summary
			}
		}
		return results
	}
}

// founderSummaries resolves ids through the request loader, falling back to
// a one-off loader when the middleware is not installed (websocket hubs, jobs).
func founderSummaries(ctx context.Context, db *sql.DB, ids []int) (map[int]*FounderSummary, error) {
	dl := GetDataLoadersFromContext(ctx)
	if dl == nil {
		dl = NewDataLoaders(db)
	}

	unique := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	out := make(map[int]*FounderSummary, len(unique))
	summaries, errs := dl.FounderLoader.LoadMany(ctx, unique)()
	for i, id := range unique {
		if len(errs) > i && errs[i] != nil {
			return nil, errs[i]
		}
		if summaries[i] != nil {
			out[id] = summaries[i]
		}
	}
	return out, nil
}
