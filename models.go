package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/lib/pq"

	"github.com/startuphub/backend/matching"
)

// Founder is the serialized founder profile.
type Founder struct {
	ID              int       `json:"id"`
	UserID          int       `json:"-"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	Name            string    `json:"name"`
	Country         string    `json:"country"`
	Timezone        string    `json:"timezone"`
	Stage           string    `json:"stage"`
	Industry        string    `json:"industry"`
	Skills          []string  `json:"skills"`
	LookingFor      string    `json:"looking_for"`
	PersonalityTags []string  `json:"personality_tags"`
	CurrentGoal     string    `json:"current_goal"`
	IsOnline        bool      `json:"is_online"`
	LastActive      time.Time `json:"last_active"`
	ProfileImage    *string   `json:"profile_image"`
	ProfileImageURL *string   `json:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at"`
}

// FounderSummary is the compact form embedded in ideas, messages and connections.
type FounderSummary struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Stage           string  `json:"stage,omitempty"`
	Industry        string  `json:"industry,omitempty"`
	IsOnline        bool    `json:"is_online"`
	ProfileImageURL *string `json:"profile_image_url,omitempty"`
}

const founderSelect = `
	SELECT f.id, f.user_id, u.email, u.username, f.name, f.country, f.timezone,
	       f.stage, f.industry, f.skills, f.looking_for, f.personality_tags,
	       f.current_goal, f.is_online, f.last_active, f.profile_image, f.created_at
	FROM founder_profiles f
	JOIN users u ON u.id = f.user_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFounder(row rowScanner) (*Founder, error) {
	var f Founder
	var image sql.NullString
	err := row.Scan(
		&f.ID, &f.UserID, &f.Email, &f.Username, &f.Name, &f.Country, &f.Timezone,
		&f.Stage, &f.Industry, pq.Array(&f.Skills), &f.LookingFor, pq.Array(&f.PersonalityTags),
		&f.CurrentGoal, &f.IsOnline, &f.LastActive, &image, &f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if f.Skills == nil {
		f.Skills = []string{}
	}
	if f.PersonalityTags == nil {
		f.PersonalityTags = []string{}
	}
	if image.Valid && image.String != "" {
		f.ProfileImage = &image.String
		url := founderImageURL(f.ID)
		f.ProfileImageURL = &url
	}
	return &f, nil
}

func founderImageURL(founderID int) string {
	return path.Join("/api/founders", fmt.Sprint(founderID), "image")
}

func (f *Founder) Summary() FounderSummary {
	return FounderSummary{
		ID:              f.ID,
		Name:            f.Name,
		Stage:           f.Stage,
		Industry:        f.Industry,
		IsOnline:        f.IsOnline,
		ProfileImageURL: f.ProfileImageURL,
	}
}

// Profile converts the row into a validated matching snapshot.
func (f *Founder) Profile() (matching.Profile, error) {
	p := matching.Profile{
		ID:         f.ID,
		Stage:      matching.Stage(f.Stage),
		Industry:   f.Industry,
		Skills:     f.Skills,
		Timezone:   f.Timezone,
		LookingFor: matching.LookingFor(f.LookingFor),
		IsOnline:   f.IsOnline,
	}
	if err := p.Validate(); err != nil {
		return matching.Profile{}, fmt.Errorf("founder %d: %w", f.ID, err)
	}
	return p, nil
}

func loadFounderByID(ctx context.Context, db *sql.DB, id int) (*Founder, error) {
	return scanFounder(db.QueryRowContext(ctx, founderSelect+` WHERE f.id = $1`, id))
}

func loadFounderByUserID(ctx context.Context, db *sql.DB, userID int) (*Founder, error) {
	return scanFounder(db.QueryRowContext(ctx, founderSelect+` WHERE f.user_id = $1`, userID))
}

// currentFounder returns the caller's profile or errNoProfile.
func currentFounder(ctx context.Context, db *sql.DB, userID int) (*Founder, error) {
	f, err := loadFounderByUserID(ctx, db, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNoProfile
	}
	return f, err
}

// queryRower is satisfied by both *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// currentFounderID is currentFounder without the joins.
func currentFounderID(ctx context.Context, q queryRower, userID int) (int, error) {
	var id int
	err := q.QueryRowContext(ctx, `SELECT id FROM founder_profiles WHERE user_id = $1`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errNoProfile
	}
	return id, err
}

// candidatePool holds matching snapshots plus the rows they came from, so
// handlers can serialize whichever founder the matcher picks.
type candidatePool struct {
	Profiles []matching.Profile
	byID     map[int]*Founder
}

func (p *candidatePool) Founder(id int) *Founder {
	return p.byID[id]
}

// loadCandidatePool returns every founder, or only the online ones. Rows
// that fail validation are skipped.
func loadCandidatePool(ctx context.Context, db *sql.DB, onlineOnly bool) (*candidatePool, error) {
	query := founderSelect
	if onlineOnly {
		query += ` WHERE f.is_online = TRUE`
	}
	query += ` ORDER BY f.created_at DESC, f.id DESC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query candidate pool: %w", err)
	}
	defer rows.Close()

	pool := &candidatePool{
		Profiles: make([]matching.Profile, 0, 64),
		byID:     make(map[int]*Founder, 64),
	}
	for rows.Next() {
		f, err := scanFounder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		p, err := f.Profile()
		if err != nil {
			logger.Warn("skipping founder with incomplete profile", "founder_id", f.ID, "err", err)
			continue
		}
		pool.Profiles = append(pool.Profiles, p)
		pool.byID[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate pool: %w", err)
	}
	return pool, nil
}
