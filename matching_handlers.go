package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/startuphub/backend/matching"
)

const maxSuggestionLimit = 100

// requireFounder resolves the caller's founder profile and its matching
// snapshot. It writes the error response itself and returns nil on failure.
func requireFounder(w http.ResponseWriter, r *http.Request, db *sql.DB) (*Founder, *matching.Profile) {
	f, err := currentFounder(r.Context(), db, userIDFromContext(r.Context()))
	if errors.Is(err, errNoProfile) {
		writeError(w, http.StatusBadRequest, "profile_required")
		return nil, nil
	} else if err != nil {
		writeServerError(w, r, "db_error", err)
		return nil, nil
	}
	p, err := f.Profile()
	if err != nil {
		logger.Warn("caller profile incomplete", "founder_id", f.ID, "err", err)
		writeError(w, http.StatusBadRequest, "profile_incomplete")
		return nil, nil
	}
	return f, &p
}

// POST /api/matching/roulette
func rouletteHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		me, current := requireFounder(w, r, db)
		if me == nil {
			return
		}

		pool, err := loadCandidatePool(r.Context(), db, true)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		picked, ok := selector.Select(*current, pool.Profiles)
		if !ok {
			writeError(w, http.StatusNotFound, "no_founders_available")
			return
		}

		sessionID := uuid.New()
		_, err = db.ExecContext(r.Context(), `
			INSERT INTO roulette_sessions (id, founder_id, matched_with_id)
			VALUES ($1, $2, $3)
		`, sessionID.String(), me.ID, picked.ID)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		logger.Debug("roulette match", "founder_id", me.ID, "matched_with", picked.ID, "session", sessionID)
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":      sessionID.String(),
			"matched_founder": pool.Founder(picked.ID),
		})
	})
}

// POST /api/matching/roulette/{session}/end
func endRouletteHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := uuid.Parse(r.PathValue("session"))
		if err != nil {
			writeError(w, http.StatusNotFound, "session_not_found")
			return
		}

		var req struct {
			Connected bool `json:"connected"`
		}
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_json")
				return
			}
		}

		meID, err := currentFounderID(r.Context(), db, userIDFromContext(r.Context()))
		if errors.Is(err, errNoProfile) {
			writeError(w, http.StatusBadRequest, "profile_required")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		type sessionResp struct {
			SessionID       string     `json:"session_id"`
			StartedAt       time.Time  `json:"started_at"`
			EndedAt         *time.Time `json:"ended_at"`
			DurationSeconds int        `json:"duration_seconds"`
			Connected       bool       `json:"connected"`
		}
		var resp sessionResp
		wroteErr := false

		err = withTx(r.Context(), db, func(tx *sql.Tx) error {
			var ownerID int
			var endedAt sql.NullTime
			err := tx.QueryRowContext(r.Context(), `
				SELECT founder_id, started_at, ended_at, duration_seconds, connected
				FROM roulette_sessions
				WHERE id = $1
				FOR UPDATE
			`, sessionID.String()).Scan(&ownerID, &resp.StartedAt, &endedAt, &resp.DurationSeconds, &resp.Connected)
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusNotFound, "session_not_found")
				wroteErr = true
				return nil
			} else if err != nil {
				return err
			}
			if ownerID != meID {
				writeError(w, http.StatusForbidden, "not_authorized")
				wroteErr = true
				return nil
			}

			// Already ended: echo the stored outcome.
			if endedAt.Valid {
				resp.EndedAt = &endedAt.Time
				return nil
			}

			var ended time.Time
			err = tx.QueryRowContext(r.Context(), `
				UPDATE roulette_sessions
				SET ended_at = NOW(),
				    duration_seconds = GREATEST(0, EXTRACT(EPOCH FROM NOW() - started_at))::int,
				    connected = $2
				WHERE id = $1
				RETURNING ended_at, duration_seconds, connected
			`, sessionID.String(), req.Connected).Scan(&ended, &resp.DurationSeconds, &resp.Connected)
			if err != nil {
				return err
			}
			resp.EndedAt = &ended
			return nil
		})
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if wroteErr {
			return
		}
		resp.SessionID = sessionID.String()
		writeJSON(w, http.StatusOK, resp)
	})
}

type suggestionResp struct {
	Founder            *Founder `json:"founder"`
	CompatibilityScore int      `json:"compatibility_score"`
}

// GET /api/matching/cofounder_suggestions?limit=&min_score=
func suggestionsHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		limit := suggestionLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_limit")
				return
			}
			limit = min(n, maxSuggestionLimit)
		}
		minScore := 0
		if v := r.URL.Query().Get("min_score"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_min_score")
				return
			}
			minScore = n
		}

		me, current := requireFounder(w, r, db)
		if me == nil {
			return
		}

		pool, err := loadCandidatePool(r.Context(), db, false)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		ranked := ranker.Rank(*current, pool.Profiles, limit)
		out := make([]suggestionResp, 0, len(ranked))
		for _, s := range ranked {
			if s.Score < minScore {
				// Ranked best-first, so nothing after this qualifies either.
				break
			}
			out = append(out, suggestionResp{
				Founder:            pool.Founder(s.Founder.ID),
				CompatibilityScore: s.Score,
			})
		}
		writeJSON(w, http.StatusOK, out)
	})
}

// POST /api/matching/interest/{id}
func interestHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		targetID, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusNotFound, "founder_not_found")
			return
		}

		me, current := requireFounder(w, r, db)
		if me == nil {
			return
		}
		if targetID == me.ID {
			writeError(w, http.StatusBadRequest, "invalid_target")
			return
		}

		target, err := loadFounderByID(r.Context(), db, targetID)
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "founder_not_found")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		targetProfile, err := target.Profile()
		if err != nil {
			writeError(w, http.StatusBadRequest, "profile_incomplete")
			return
		}

		score := scorer.Score(*current, targetProfile)
		matched, err := recordInterest(r.Context(), db, me.ID, target.ID, score)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"matched":             matched,
			"compatibility_score": score,
		})
	})
}

// recordInterest upserts the pair row with founder1 < founder2 and reports
// whether both sides are now interested.
func recordInterest(ctx context.Context, db *sql.DB, from, to, score int) (bool, error) {
	f1, f2 := min(from, to), max(from, to)
	fromIsFirst := from == f1

	var matched bool
	err := db.QueryRowContext(ctx, `
		INSERT INTO cofounder_matches
			(founder1_id, founder2_id, compatibility_score, interested_founder1, interested_founder2)
		VALUES ($1, $2, $3, $4, NOT $4)
		ON CONFLICT (founder1_id, founder2_id) DO UPDATE
		SET compatibility_score = EXCLUDED.compatibility_score,
		    interested_founder1 = cofounder_matches.interested_founder1 OR $4,
		    interested_founder2 = cofounder_matches.interested_founder2 OR NOT $4
		RETURNING interested_founder1 AND interested_founder2
	`, f1, f2, score, fromIsFirst).Scan(&matched)
	if err != nil {
		return false, fmt.Errorf("record interest: %w", err)
	}
	return matched, nil
}

// DailyStat is one daily_match_statistics row.
type DailyStat struct {
	Date                      string  `json:"date"`
	TotalMatches              int     `json:"total_matches"`
	SuccessfulConnections     int     `json:"successful_connections"`
	AverageCompatibilityScore float64 `json:"average_compatibility_score"`
}

// GET /api/matching/stats?days=7
func matchStatsHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		days := 7
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > 365 {
				writeError(w, http.StatusBadRequest, "invalid_days")
				return
			}
			days = n
		}

		rows, err := db.QueryContext(r.Context(), `
			SELECT to_char(date, 'YYYY-MM-DD'), total_matches, successful_connections, average_compatibility_score
			FROM daily_match_statistics
			WHERE date >= CURRENT_DATE - $1::int
			ORDER BY date DESC
		`, days)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		defer rows.Close()

		stats := make([]DailyStat, 0, days)
		for rows.Next() {
			var s DailyStat
			if err := rows.Scan(&s.Date, &s.TotalMatches, &s.SuccessfulConnections, &s.AverageCompatibilityScore); err != nil {
				writeServerError(w, r, "db_error", err)
				return
			}
			stats = append(stats, s)
		}
		if err := rows.Err(); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})
}

// computeDailyStats aggregates one UTC day of roulette sessions and
// co-founder matches and upserts the result.
func computeDailyStats(ctx context.Context, db *sql.DB, day time.Time) (DailyStat, error) {
	date := day.UTC().Format(time.DateOnly)
	s := DailyStat{Date: date}

	err := db.QueryRowContext(ctx, `
		WITH sessions AS (
			SELECT COUNT(*) FILTER (WHERE matched_with_id IS NOT NULL) AS total,
			       COUNT(*) FILTER (WHERE connected) AS connected
			FROM roulette_sessions
			WHERE started_at >= $1::date AND started_at < $1::date + 1
		),
		scores AS (
			SELECT COALESCE(AVG(compatibility_score), 0)::float8 AS avg_score
			FROM cofounder_matches
			WHERE created_at >= $1::date AND created_at < $1::date + 1
		)
		INSERT INTO daily_match_statistics
			(date, total_matches, successful_connections, average_compatibility_score)
		SELECT $1::date, sessions.total, sessions.connected, scores.avg_score
		FROM sessions, scores
		ON CONFLICT (date) DO UPDATE
		SET total_matches = EXCLUDED.total_matches,
		    successful_connections = EXCLUDED.successful_connections,
		    average_compatibility_score = EXCLUDED.average_compatibility_score
		RETURNING total_matches, successful_connections, average_compatibility_score
	`, date).Scan(&s.TotalMatches, &s.SuccessfulConnections, &s.AverageCompatibilityScore)
	if err != nil {
		return s, fmt.Errorf("compute daily stats for %s: %w", date, err)
	}
	return s, nil
}
