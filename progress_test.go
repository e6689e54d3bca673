package main

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want string
	}{
		{"monday", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), "2024-01-01"},
		{"wednesday", time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC), "2024-01-01"},
		{"sunday", time.Date(2024, 1, 7, 23, 59, 0, 0, time.UTC), "2024-01-01"},
		{"across month", time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), "2024-02-26"},
		{"offset zone", time.Date(2024, 1, 8, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*3600)), "2024-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := weekStart(tt.in)
			assert.Equal(t, tt.want, got.Format(time.DateOnly))
			assert.Equal(t, time.Monday, got.Weekday())
		})
	}
}

func TestProgressHandlers(t *testing.T) {
	requireDB(t)

	author := createTestFounder(t, nil)
	fan := createTestFounder(t, nil)
	other := createTestFounder(t, nil)

	t.Run("validation", func(t *testing.T) {
		w := doRequest(t, http.MethodPost, "/api/progress", author.Token, map[string]any{
			"achievements": []string{"  "},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "missing_fields", errorCode(t, w))

		w = doRequest(t, http.MethodPost, "/api/progress", author.Token, map[string]any{
			"achievements": []string{"shipped"},
			"week_start":   "last week",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_week_start", errorCode(t, w))
	})

	w := doRequest(t, http.MethodPost, "/api/progress", author.Token, map[string]any{
		"achievements": []string{" launched beta ", "10 users"},
		"failures":     []string{"missed hiring goal"},
		"week_start":   "2024-05-15",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[ProgressUpdate](t, w)
	assert.Equal(t, "2024-05-13", created.WeekStart)
	assert.Equal(t, []string{"launched beta", "10 users"}, created.Achievements)
	require.NotNil(t, created.Founder)
	assert.Equal(t, author.FounderID, created.Founder.ID)

	t.Run("default week is the current one", func(t *testing.T) {
		w := doRequest(t, http.MethodPost, "/api/progress", other.Token, map[string]any{
			"failures": []string{"no sleep"},
		})
		require.Equal(t, http.StatusCreated, w.Code)
		p := decodeBody[ProgressUpdate](t, w)
		assert.Equal(t, weekStart(time.Now()).Format(time.DateOnly), p.WeekStart)
		assert.Equal(t, []string{}, p.Achievements)
	})

	t.Run("reactions", func(t *testing.T) {
		path := fmt.Sprintf("/api/progress/%d/react", created.ID)

		w := doRequest(t, http.MethodPost, path, fan.Token, map[string]string{"comment": "nice"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[map[string]any](t, w)
		assert.Equal(t, "reacted", resp["status"])
		assert.Equal(t, float64(1), resp["reaction_count"])

		// Reacting again replaces the comment.
		w = doRequest(t, http.MethodPost, path, fan.Token, map[string]string{"comment": "great"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), decodeBody[map[string]any](t, w)["reaction_count"])

		var comment string
		require.NoError(t, db.QueryRow(`
			SELECT comment FROM progress_reactions WHERE progress_id = $1 AND founder_id = $2
		`, created.ID, fan.FounderID).Scan(&comment))
		assert.Equal(t, "great", comment)

		w = doRequest(t, http.MethodPost, path, other.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(2), decodeBody[map[string]any](t, w)["reaction_count"])

		w = doRequest(t, http.MethodPost, "/api/progress/999999/react", fan.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("feed newest first", func(t *testing.T) {
		w := doRequest(t, http.MethodGet, "/api/progress", fan.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		feed := decodeBody[[]ProgressUpdate](t, w)
		require.NotEmpty(t, feed)
		assert.LessOrEqual(t, len(feed), progressFeedSize)
		assert.Equal(t, other.FounderID, feed[0].FounderID)

		var found *ProgressUpdate
		for i := range feed {
			if feed[i].ID == created.ID {
				found = &feed[i]
			}
		}
		require.NotNil(t, found)
		assert.Equal(t, 2, found.ReactionCount)
		assert.Equal(t, []string{"missed hiring goal"}, found.Failures)
		require.NotNil(t, found.Founder)
		assert.NotEmpty(t, found.Founder.Name)
	})
}
