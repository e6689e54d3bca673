package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/startuphub/backend/matching"
)

// founderInput is shared by create and PATCH. Nil fields are left untouched.
type founderInput struct {
	Name            *string   `json:"name"`
	Country         *string   `json:"country"`
	Timezone        *string   `json:"timezone"`
	Stage           *string   `json:"stage"`
	Industry        *string   `json:"industry"`
	Skills          *[]string `json:"skills"`
	LookingFor      *string   `json:"looking_for"`
	PersonalityTags *[]string `json:"personality_tags"`
	CurrentGoal     *string   `json:"current_goal"`
}

// apply copies the provided fields onto f and returns an error code for the
// first invalid one.
func (in founderInput) apply(f *Founder) string {
	trim := func(s *string) string { return strings.TrimSpace(*s) }

	if in.Name != nil {
		f.Name = trim(in.Name)
	}
	if in.Country != nil {
		f.Country = trim(in.Country)
	}
	if in.Timezone != nil {
		f.Timezone = trim(in.Timezone)
	}
	if in.Industry != nil {
		f.Industry = trim(in.Industry)
	}
	if in.CurrentGoal != nil {
		f.CurrentGoal = trim(in.CurrentGoal)
	}
	if in.Skills != nil {
		f.Skills = cleanList(*in.Skills)
	}
	if in.PersonalityTags != nil {
		f.PersonalityTags = cleanList(*in.PersonalityTags)
	}
	if in.Stage != nil {
		st, err := matching.ParseStage(trim(in.Stage))
		if err != nil {
			return "invalid_stage"
		}
		f.Stage = string(st)
	}
	if in.LookingFor != nil {
		lf, err := matching.ParseLookingFor(trim(in.LookingFor))
		if err != nil {
			return "invalid_looking_for"
		}
		f.LookingFor = string(lf)
	}

	if f.Name == "" || f.Timezone == "" || f.Industry == "" || f.Stage == "" || f.LookingFor == "" {
		return "missing_fields"
	}
	return ""
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// GET /api/founders?stage=&industry=&looking_for=
func listFoundersHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		var where []string
		var args []any
		for _, col := range []string{"stage", "industry", "looking_for"} {
			v := strings.TrimSpace(r.URL.Query().Get(col))
			if v == "" || v == "all" {
				continue
			}
			args = append(args, v)
			where = append(where, "f."+col+" = $"+strconv.Itoa(len(args)))
		}

		query := founderSelect
		if len(where) > 0 {
			query += " WHERE " + strings.Join(where, " AND ")
		}
		query += " ORDER BY f.created_at DESC, f.id DESC"

		rows, err := db.QueryContext(r.Context(), query, args...)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		defer rows.Close()

		founders := make([]*Founder, 0, 32)
		for rows.Next() {
			f, err := scanFounder(rows)
			if err != nil {
				writeServerError(w, r, "db_error", err)
				return
			}
			founders = append(founders, f)
		}
		if err := rows.Err(); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, founders)
	})
}

// POST /api/founders
func createFounderHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		me := userIDFromContext(r.Context())

		var in founderInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		f := &Founder{Skills: []string{}, PersonalityTags: []string{}}
		if code := in.apply(f); code != "" {
			writeError(w, http.StatusBadRequest, code)
			return
		}

		var id int
		err := db.QueryRowContext(r.Context(), `
			INSERT INTO founder_profiles
				(user_id, name, country, timezone, stage, industry, skills,
				 looking_for, personality_tags, current_goal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`, me, f.Name, f.Country, f.Timezone, f.Stage, f.Industry, pq.Array(f.Skills),
			f.LookingFor, pq.Array(f.PersonalityTags), f.CurrentGoal,
		).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				writeError(w, http.StatusConflict, "profile_exists")
				return
			}
			writeServerError(w, r, "db_error", err)
			return
		}

		created, err := loadFounderByID(r.Context(), db, id)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	})
}

// GET /api/founders/me
func myFounderHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		f, err := currentFounder(r.Context(), db, userIDFromContext(r.Context()))
		if errors.Is(err, errNoProfile) {
			writeError(w, http.StatusNotFound, "founder_not_found")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	})
}

// GET /api/founders/{id}
func getFounderHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusNotFound, "founder_not_found")
			return
		}
		f, err := loadFounderByID(r.Context(), db, id)
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "founder_not_found")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, f)
	})
}

// loadOwnedFounder loads {id} and checks it belongs to the caller. It writes
// the error response itself and returns nil in that case.
func loadOwnedFounder(w http.ResponseWriter, r *http.Request, db *sql.DB) *Founder {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "founder_not_found")
		return nil
	}
	f, err := loadFounderByID(r.Context(), db, id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "founder_not_found")
		return nil
	} else if err != nil {
		writeServerError(w, r, "db_error", err)
		return nil
	}
	if f.UserID != userIDFromContext(r.Context()) {
		writeError(w, http.StatusForbidden, "not_authorized")
		return nil
	}
	return f
}

// PATCH /api/founders/{id}
func updateFounderHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		f := loadOwnedFounder(w, r, db)
		if f == nil {
			return
		}

		var in founderInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if code := in.apply(f); code != "" {
			writeError(w, http.StatusBadRequest, code)
			return
		}

		_, err := db.ExecContext(r.Context(), `
			UPDATE founder_profiles
			SET name = $2, country = $3, timezone = $4, stage = $5, industry = $6,
			    skills = $7, looking_for = $8, personality_tags = $9, current_goal = $10,
			    updated_at = NOW()
			WHERE id = $1
		`, f.ID, f.Name, f.Country, f.Timezone, f.Stage, f.Industry, pq.Array(f.Skills),
			f.LookingFor, pq.Array(f.PersonalityTags), f.CurrentGoal)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		updated, err := loadFounderByID(r.Context(), db, f.ID)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	})
}

// DELETE /api/founders/{id}
func deleteFounderHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		f := loadOwnedFounder(w, r, db)
		if f == nil {
			return
		}
		if _, err := db.ExecContext(r.Context(), `DELETE FROM founder_profiles WHERE id = $1`, f.ID); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if f.ProfileImage != nil {
			removeImageFile(*f.ProfileImage)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// PATCH /api/founders/update_online_status
func updateOnlineStatusHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IsOnline bool `json:"is_online"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		err := setOnline(r.Context(), db, userIDFromContext(r.Context()), req.IsOnline)
		if errors.Is(err, errNoProfile) {
			writeError(w, http.StatusNotFound, "founder_not_found")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	})
}

// founderExists is used by handlers that only need to validate a target id.
func founderExists(ctx context.Context, q queryRower, id int) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM founder_profiles WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}
