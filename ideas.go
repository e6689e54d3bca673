package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

type Idea struct {
	ID           int            `json:"id"`
	AuthorID     int            `json:"author_id"`
	AuthorName   string         `json:"author_name"`
	Problem      string         `json:"problem"`
	Solution     string         `json:"solution"`
	Stage        string         `json:"stage"`
	NeedHelp     string         `json:"need_help"`
	Upvotes      int            `json:"upvotes"`
	CommentCount int            `json:"comment_count"`
	UserUpvoted  bool           `json:"user_upvoted"`
	Comments     []*IdeaComment `json:"comments,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type IdeaComment struct {
	ID         int       `json:"id"`
	IdeaID     int       `json:"idea"`
	AuthorID   int       `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// ideaSelect takes the viewer's founder id as $1 for user_upvoted.
const ideaSelect = `
	SELECT i.id, i.author_id, a.name, i.problem, i.solution, i.stage, i.need_help,
	       i.upvotes,
	       (SELECT COUNT(*) FROM idea_comments c WHERE c.idea_id = i.id),
	       EXISTS (SELECT 1 FROM idea_upvotes u WHERE u.idea_id = i.id AND u.founder_id = $1),
	       i.created_at, i.updated_at
	FROM ideas i
	JOIN founder_profiles a ON a.id = i.author_id`

func scanIdea(row rowScanner) (*Idea, error) {
	var i Idea
	err := row.Scan(&i.ID, &i.AuthorID, &i.AuthorName, &i.Problem, &i.Solution, &i.Stage,
		&i.NeedHelp, &i.Upvotes, &i.CommentCount, &i.UserUpvoted, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func loadIdea(ctx context.Context, db *sql.DB, viewerID, ideaID int) (*Idea, error) {
	return scanIdea(db.QueryRowContext(ctx, ideaSelect+` WHERE i.id = $2`, viewerID, ideaID))
}

// viewerFounderID is the caller's founder id, or 0 when they have no
// profile yet. Read-only endpoints stay usable without a profile.
func viewerFounderID(ctx context.Context, db *sql.DB) (int, error) {
	id, err := currentFounderID(ctx, db, userIDFromContext(ctx))
	if errors.Is(err, errNoProfile) {
		return 0, nil
	}
	return id, err
}

// requireFounderID writes 400 profile_required when the caller has no
// founder profile and returns 0.
func requireFounderID(w http.ResponseWriter, r *http.Request, db *sql.DB) int {
	id, err := currentFounderID(r.Context(), db, userIDFromContext(r.Context()))
	if errors.Is(err, errNoProfile) {
		writeError(w, http.StatusBadRequest, "profile_required")
		return 0
	} else if err != nil {
		writeServerError(w, r, "db_error", err)
		return 0
	}
	return id
}

// ideaFromPath loads {id} for the viewer. It writes 404 or 500 itself.
func ideaFromPath(w http.ResponseWriter, r *http.Request, db *sql.DB, viewerID int) *Idea {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "idea_not_found")
		return nil
	}
	idea, err := loadIdea(r.Context(), db, viewerID, id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "idea_not_found")
		return nil
	} else if err != nil {
		writeServerError(w, r, "db_error", err)
		return nil
	}
	return idea
}

// GET /api/ideas?stage=&industry=
func listIdeasHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		viewer, err := viewerFounderID(r.Context(), db)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		args := []any{viewer}
		var where []string
		if stage := strings.TrimSpace(r.URL.Query().Get("stage")); stage != "" {
			args = append(args, "%"+stage+"%")
			where = append(where, "i.stage ILIKE $"+strconv.Itoa(len(args)))
		}
		if industry := strings.TrimSpace(r.URL.Query().Get("industry")); industry != "" {
			args = append(args, industry)
			where = append(where, "a.industry = $"+strconv.Itoa(len(args)))
		}

		query := ideaSelect
		if len(where) > 0 {
			query += " WHERE " + strings.Join(where, " AND ")
		}
		query += " ORDER BY i.created_at DESC, i.id DESC"

		rows, err := db.QueryContext(r.Context(), query, args...)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		defer rows.Close()

		ideas := make([]*Idea, 0, 32)
		for rows.Next() {
			idea, err := scanIdea(rows)
			if err != nil {
				writeServerError(w, r, "db_error", err)
				return
			}
			ideas = append(ideas, idea)
		}
		if err := rows.Err(); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, ideas)
	})
}

type ideaInput struct {
	Problem  *string `json:"problem"`
	Solution *string `json:"solution"`
	Stage    *string `json:"stage"`
	NeedHelp *string `json:"need_help"`
}

func (in ideaInput) apply(i *Idea) string {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&i.Problem, in.Problem)
	set(&i.Solution, in.Solution)
	set(&i.Stage, in.Stage)
	set(&i.NeedHelp, in.NeedHelp)
	if i.Problem == "" {
		return "problem_required"
	}
	return ""
}

// POST /api/ideas
func createIdeaHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		var in ideaInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		me := requireFounderID(w, r, db)
		if me == 0 {
			return
		}

		var idea Idea
		if code := in.apply(&idea); code != "" {
			writeError(w, http.StatusBadRequest, code)
			return
		}

		var id int
		if err := db.QueryRowContext(r.Context(), `
			INSERT INTO ideas (author_id, problem, solution, stage, need_help)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, me, idea.Problem, idea.Solution, idea.Stage, idea.NeedHelp).Scan(&id); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		created, err := loadIdea(r.Context(), db, me, id)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	})
}

// GET /api/ideas/{id}
func getIdeaHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		viewer, err := viewerFounderID(r.Context(), db)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		idea := ideaFromPath(w, r, db, viewer)
		if idea == nil {
			return
		}
		comments, err := loadIdeaComments(r.Context(), db, idea.ID)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		idea.Comments = comments
		writeJSON(w, http.StatusOK, idea)
	})
}

// ownedIdea loads {id} and checks the caller wrote it.
func ownedIdea(w http.ResponseWriter, r *http.Request, db *sql.DB) *Idea {
	me := requireFounderID(w, r, db)
	if me == 0 {
		return nil
	}
	idea := ideaFromPath(w, r, db, me)
	if idea == nil {
		return nil
	}
	if idea.AuthorID != me {
		writeError(w, http.StatusForbidden, "not_authorized")
		return nil
	}
	return idea
}

// PATCH /api/ideas/{id}
func updateIdeaHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		idea := ownedIdea(w, r, db)
		if idea == nil {
			return
		}
		var in ideaInput
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		if code := in.apply(idea); code != "" {
			writeError(w, http.StatusBadRequest, code)
			return
		}

		if _, err := db.ExecContext(r.Context(), `
			UPDATE ideas
			SET problem = $2, solution = $3, stage = $4, need_help = $5, updated_at = NOW()
			WHERE id = $1
		`, idea.ID, idea.Problem, idea.Solution, idea.Stage, idea.NeedHelp); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		updated, err := loadIdea(r.Context(), db, idea.AuthorID, idea.ID)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	})
}

// DELETE /api/ideas/{id}
func deleteIdeaHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		idea := ownedIdea(w, r, db)
		if idea == nil {
			return
		}
		if _, err := db.ExecContext(r.Context(), `DELETE FROM ideas WHERE id = $1`, idea.ID); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// POST /api/ideas/{id}/upvote
// Toggles the caller's upvote. The counter never drops below zero.
func upvoteIdeaHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		ideaID, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusNotFound, "idea_not_found")
			return
		}
		me := requireFounderID(w, r, db)
		if me == 0 {
			return
		}

		type response struct {
			Status  string `json:"status"`
			Upvotes int    `json:"upvotes"`
		}
		var resp response
		wroteErr := false

		err := withTx(r.Context(), db, func(tx *sql.Tx) error {
			// Lock the idea so concurrent toggles serialize on the counter.
			err := tx.QueryRowContext(r.Context(),
				`SELECT upvotes FROM ideas WHERE id = $1 FOR UPDATE`, ideaID).Scan(&resp.Upvotes)
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusNotFound, "idea_not_found")
				wroteErr = true
				return nil
			} else if err != nil {
				return err
			}

			res, err := tx.ExecContext(r.Context(),
				`DELETE FROM idea_upvotes WHERE idea_id = $1 AND founder_id = $2`, ideaID, me)
			if err != nil {
				return err
			}
			removed, _ := res.RowsAffected()

			delta, status := 1, "upvoted"
			if removed > 0 {
				delta, status = -1, "removed"
			} else if _, err := tx.ExecContext(r.Context(),
				`INSERT INTO idea_upvotes (idea_id, founder_id) VALUES ($1, $2)`, ideaID, me); err != nil {
				return err
			}

			resp.Status = status
			return tx.QueryRowContext(r.Context(), `
				UPDATE ideas SET upvotes = GREATEST(0, upvotes + $2) WHERE id = $1 RETURNING upvotes
			`, ideaID, delta).Scan(&resp.Upvotes)
		})
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if wroteErr {
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

func loadIdeaComments(ctx context.Context, db *sql.DB, ideaID int) ([]*IdeaComment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, idea_id, author_id, content, created_at
		FROM idea_comments
		WHERE idea_id = $1
		ORDER BY created_at ASC, id ASC
	`, ideaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]*IdeaComment, 0, 8)
	var authors []int
	for rows.Next() {
		var c IdeaComment
		if err := rows.Scan(&c.ID, &c.IdeaID, &c.AuthorID, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, &c)
		authors = append(authors, c.AuthorID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	summaries, err := founderSummaries(ctx, db, authors)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		if s := summaries[c.AuthorID]; s != nil {
			c.AuthorName = s.Name
		}
	}
	return comments, nil
}

// POST /api/ideas/{id}/comment
func commentIdeaHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Content string `json:"content"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		me := requireFounderID(w, r, db)
		if me == 0 {
			return
		}
		idea := ideaFromPath(w, r, db, me)
		if idea == nil {
			return
		}
		content := strings.TrimSpace(req.Content)
		if content == "" {
			writeError(w, http.StatusBadRequest, "content_required")
			return
		}

		c := IdeaComment{IdeaID: idea.ID, AuthorID: me, Content: content}
		if err := db.QueryRowContext(r.Context(), `
			INSERT INTO idea_comments (idea_id, author_id, content)
			VALUES ($1, $2, $3)
			RETURNING id, created_at
		`, idea.ID, me, content).Scan(&c.ID, &c.CreatedAt); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if s, err := founderSummaries(r.Context(), db, []int{me}); err == nil && s[me] != nil {
			c.AuthorName = s[me].Name
		}
		writeJSON(w, http.StatusCreated, c)
	})
}

// GET /api/ideas/{id}/comments
func listIdeaCommentsHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		idea := ideaFromPath(w, r, db, 0)
		if idea == nil {
			return
		}
		comments, err := loadIdeaComments(r.Context(), db, idea.ID)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, comments)
	})
}

// POST /api/ideas/{id}/collaborate
func collaborateIdeaHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
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
		idea := ideaFromPath(w, r, db, me)
		if idea == nil {
			return
		}
		if idea.AuthorID == me {
			writeError(w, http.StatusBadRequest, "own_idea")
			return
		}

		var id int
		err := db.QueryRowContext(r.Context(), `
			INSERT INTO idea_collaborations (idea_id, founder_id, message)
			VALUES ($1, $2, $3)
			RETURNING id
		`, idea.ID, me, strings.TrimSpace(req.Message)).Scan(&id)
		if err != nil {
			if isUniqueViolation(err) {
				writeError(w, http.StatusBadRequest, "already_requested")
				return
			}
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"status": "collaboration_requested",
			"id":     id,
		})
	})
}

type collaboratorResp struct {
	ID      int `json:"id"`
	Founder struct {
		ID       int      `json:"id"`
		Name     string   `json:"name"`
		Skills   []string `json:"skills"`
		Industry string   `json:"industry"`
	} `json:"founder"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// GET /api/ideas/{id}/collaborators
func listCollaboratorsHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		idea := ownedIdea(w, r, db)
		if idea == nil {
			return
		}

		rows, err := db.QueryContext(r.Context(), `
			SELECT c.id, f.id, f.name, f.skills, f.industry, c.message, c.status, c.created_at
			FROM idea_collaborations c
			JOIN founder_profiles f ON f.id = c.founder_id
			WHERE c.idea_id = $1
			ORDER BY c.created_at ASC, c.id ASC
		`, idea.ID)
		if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		defer rows.Close()

		out := make([]collaboratorResp, 0, 8)
		for rows.Next() {
			var c collaboratorResp
			if err := rows.Scan(&c.ID, &c.Founder.ID, &c.Founder.Name, pq.Array(&c.Founder.Skills),
				&c.Founder.Industry, &c.Message, &c.Status, &c.CreatedAt); err != nil {
				writeServerError(w, r, "db_error", err)
				return
			}
			if c.Founder.Skills == nil {
				c.Founder.Skills = []string{}
			}
			out = append(out, c)
		}
		if err := rows.Err(); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	})
}
