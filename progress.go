package main

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/lib/pq"
)

const progressFeedSize = 50

type ProgressUpdate struct {
	ID            int             `json:"id"`
	FounderID     int             `json:"founder_id"`
	Founder       *FounderSummary `json:"founder"`
	Achievements  []string        `json:"achievements"`
	Failures      []string        `json:"failures"`
	WeekStart     string          `json:"week_start"`
	ReactionCount int             `json:"reaction_count"`
	CreatedAt     time.Time       `json:"created_at"`
}

// weekStart is the Monday of t's ISO week.
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
}

// GET /api/progress
func listProgressHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.QueryContext(r.Context(), `
			SELECT p.id, p.founder_id, p.achievements, p.failures,
			       to_char(p.week_start, 'YYYY-MM-DD'),
			       (SELECT COUNT(*) FROM progress_reactions x WHERE x.progress_id = p.id),
			       p.created_at
			FROM progress_updates p
			ORDER BY p.created_at DESC, p.id DESC
			LIMIT $1
		`, progressFeedSize)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		defer rows.Close()

		updates := make([]*ProgressUpdate, 0, progressFeedSize)
		var founders []int
		for rows.Next() {
			var p ProgressUpdate
			if err := rows.Scan(&p.ID, &p.FounderID, pq.Array(&p.Achievements), pq.Array(&p.Failures),
				&p.WeekStart, &p.ReactionCount, &p.CreatedAt); err != nil {
				writeServerError(w, r, "db_error", err)
				return
			}
			if p.Achievements == nil {
				p.Achievements = []string{}
			}
			if p.Failures == nil {
				p.Failures = []string{}
			}
			updates = append(updates, &p)
			founders = append(founders, p.FounderID)
		}
		if err := rows.Err(); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		summaries, err := founderSummaries(r.Context(), db, founders)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		for _, p := range updates {
			p.Founder = summaries[p.FounderID]
		}
		writeJSON(w, http.StatusOK, updates)
	})
}

// POST /api/progress
func createProgressHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Achievements []string `json:"achievements"`
			Failures     []string `json:"failures"`
			WeekStart    string   `json:"week_start"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		me := requireFounderID(w, r, db)
		if me == 0 {
			return
		}

		achievements := cleanList(req.Achievements)
		failures := cleanList(req.Failures)
		if len(achievements) == 0 && len(failures) == 0 {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}

		week := weekStart(time.Now())
		if s := strings.TrimSpace(req.WeekStart); s != "" {
			t, err := time.Parse(time.DateOnly, s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_week_start")
				return
			}
			week = weekStart(t)
		}

		p := ProgressUpdate{
			FounderID:    me,
			Achievements: achievements,
			Failures:     failures,
			WeekStart:    week.Format(time.DateOnly),
		}
		if err := db.QueryRowContext(r.Context(), `
			INSERT INTO progress_updates (founder_id, achievements, failures, week_start)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`, me, pq.Array(achievements), pq.Array(failures), p.WeekStart).Scan(&p.ID, &p.CreatedAt); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if s, err := founderSummaries(r.Context(), db, []int{me}); err == nil {
			p.Founder = s[me]
		}
		writeJSON(w, http.StatusCreated, p)
	})
}

// POST /api/progress/{id}/react
// One reaction per founder; reacting again replaces the comment.
func reactProgressHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		progressID, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		var req struct {
			Comment string `json:"comment"`
		}
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_json")
				return
			}
		}
		me := requireFounderID(w, r, db)
		if me == 0 {
			return
		}

		var id, count int
		err := db.QueryRowContext(r.Context(), `
			WITH up AS (
				INSERT INTO progress_reactions (progress_id, founder_id, comment)
				SELECT $1, $2, $3 WHERE EXISTS (SELECT 1 FROM progress_updates WHERE id = $1)
				ON CONFLICT (progress_id, founder_id) DO UPDATE SET comment = EXCLUDED.comment
				RETURNING id
			)
			SELECT up.id,
			       (SELECT COUNT(*) FROM progress_reactions WHERE progress_id = $1 AND founder_id <> $2) + 1
			FROM up
		`, progressID, me, strings.TrimSpace(req.Comment)).Scan(&id, &count)
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "reacted",
			"id":             id,
			"reaction_count": count,
		})
	})
}
