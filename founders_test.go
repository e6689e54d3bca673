package main

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestFounderInputApply(t *testing.T) {
	full := func() founderInput {
		return founderInput{
			Name:       strPtr("  Ada  "),
			Timezone:   strPtr("UTC"),
			Stage:      strPtr("mvp"),
			Industry:   strPtr("ai"),
			LookingFor: strPtr("cofounder"),
			Skills:     &[]string{" go ", "", "ml"},
		}
	}

	t.Run("valid input is trimmed", func(t *testing.T) {
		var f Founder
		assert.Empty(t, full().apply(&f))
		assert.Equal(t, "Ada", f.Name)
		assert.Equal(t, []string{"go", "ml"}, f.Skills)
		assert.Equal(t, "mvp", f.Stage)
	})

	t.Run("unknown stage", func(t *testing.T) {
		in := full()
		in.Stage = strPtr("series-a")
		assert.Equal(t, "invalid_stage", in.apply(&Founder{}))
	})

	t.Run("stage is case sensitive", func(t *testing.T) {
		in := full()
		in.Stage = strPtr("MVP")
		assert.Equal(t, "invalid_stage", in.apply(&Founder{}))
	})

	t.Run("unknown looking_for", func(t *testing.T) {
		in := full()
		in.LookingFor = strPtr("investors")
		assert.Equal(t, "invalid_looking_for", in.apply(&Founder{}))
	})

	t.Run("missing required field", func(t *testing.T) {
		in := full()
		in.Industry = nil
		assert.Equal(t, "missing_fields", in.apply(&Founder{}))
	})

	t.Run("partial update keeps existing values", func(t *testing.T) {
		f := Founder{Name: "Ada", Timezone: "UTC", Stage: "idea", Industry: "ai", LookingFor: "users"}
		in := founderInput{CurrentGoal: strPtr("raise seed")}
		assert.Empty(t, in.apply(&f))
		assert.Equal(t, "idea", f.Stage)
		assert.Equal(t, "raise seed", f.CurrentGoal)
	})
}

func TestFounderProfileConversion(t *testing.T) {
	f := Founder{ID: 3, Stage: "launched", Industry: "health", Timezone: "UTC", LookingFor: "users", Skills: []string{"design"}}
	p, err := f.Profile()
	require.NoError(t, err)
	assert.Equal(t, 3, p.ID)
	assert.Equal(t, "health", p.Industry)

	f.Industry = ""
	_, err = f.Profile()
	assert.Error(t, err)
}

func TestFounderHandlers(t *testing.T) {
	requireDB(t)

	owner := createTestFounder(t, map[string]any{"stage": "mvp", "industry": "edtech", "looking_for": "feedback"})
	other := createTestFounder(t, nil)

	t.Run("no profile yet", func(t *testing.T) {
		u := createTestUser(t)
		w := doRequest(t, http.MethodGet, "/api/founders/me", u.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "founder_not_found", errorCode(t, w))
	})

	t.Run("me", func(t *testing.T) {
		w := doRequest(t, http.MethodGet, "/api/founders/me", owner.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		f := decodeBody[Founder](t, w)
		assert.Equal(t, owner.FounderID, f.ID)
		assert.Equal(t, owner.Email, f.Email)
		assert.Equal(t, owner.Username, f.Username)
		assert.Equal(t, "mvp", f.Stage)
		assert.Nil(t, f.ProfileImageURL)
	})

	t.Run("second profile conflicts", func(t *testing.T) {
		w := doRequest(t, http.MethodPost, "/api/founders", owner.Token, map[string]any{
			"name": "Again", "timezone": "UTC", "stage": "idea", "industry": "x", "looking_for": "users",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "profile_exists", errorCode(t, w))
	})

	t.Run("create rejects bad stage", func(t *testing.T) {
		u := createTestUser(t)
		w := doRequest(t, http.MethodPost, "/api/founders", u.Token, map[string]any{
			"name": "X", "timezone": "UTC", "stage": "unicorn", "industry": "x", "looking_for": "users",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_stage", errorCode(t, w))
	})

	t.Run("list filters", func(t *testing.T) {
		w := doRequest(t, http.MethodGet, "/api/founders?stage=mvp&industry=edtech&looking_for=feedback", other.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		founders := decodeBody[[]Founder](t, w)
		require.NotEmpty(t, founders)
		ids := make([]int, 0, len(founders))
		for _, f := range founders {
			assert.Equal(t, "mvp", f.Stage)
			assert.Equal(t, "edtech", f.Industry)
			ids = append(ids, f.ID)
		}
		assert.Contains(t, ids, owner.FounderID)
		assert.NotContains(t, ids, other.FounderID)
	})

	t.Run("list with all means no filter", func(t *testing.T) {
		w := doRequest(t, http.MethodGet, "/api/founders?stage=all", other.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		founders := decodeBody[[]Founder](t, w)
		assert.GreaterOrEqual(t, len(founders), 2)
	})

	t.Run("get by id", func(t *testing.T) {
		w := doRequest(t, http.MethodGet, fmt.Sprintf("/api/founders/%d", owner.FounderID), other.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, owner.FounderID, decodeBody[Founder](t, w).ID)

		w = doRequest(t, http.MethodGet, "/api/founders/999999", other.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("update by owner", func(t *testing.T) {
		w := doRequest(t, http.MethodPatch, fmt.Sprintf("/api/founders/%d", owner.FounderID), owner.Token, map[string]any{
			"stage":  "launched",
			"skills": []string{"rust"},
		})
		require.Equal(t, http.StatusOK, w.Code)
		f := decodeBody[Founder](t, w)
		assert.Equal(t, "launched", f.Stage)
		assert.Equal(t, []string{"rust"}, f.Skills)
		assert.Equal(t, "edtech", f.Industry)
	})

	t.Run("update by someone else", func(t *testing.T) {
		w := doRequest(t, http.MethodPatch, fmt.Sprintf("/api/founders/%d", owner.FounderID), other.Token, map[string]any{
			"stage": "idea",
		})
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "not_authorized", errorCode(t, w))
	})

	t.Run("online status", func(t *testing.T) {
		w := doRequest(t, http.MethodPatch, "/api/founders/update_online_status", owner.Token, map[string]any{"is_online": true})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "updated", decodeBody[map[string]string](t, w)["status"])

		f, err := loadFounderByID(t.Context(), db, owner.FounderID)
		require.NoError(t, err)
		assert.True(t, f.IsOnline)
	})

	t.Run("delete", func(t *testing.T) {
		victim := createTestFounder(t, nil)
		w := doRequest(t, http.MethodDelete, fmt.Sprintf("/api/founders/%d", victim.FounderID), other.Token, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = doRequest(t, http.MethodDelete, fmt.Sprintf("/api/founders/%d", victim.FounderID), victim.Token, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		exists, err := founderExists(t.Context(), db, victim.FounderID)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestLoadCandidatePool(t *testing.T) {
	requireDB(t)

	setAllOffline(t)
	online := createTestFounder(t, nil)
	offline := createTestFounder(t, nil)
	setOnlineForTest(t, online.FounderID, true)

	t.Run("online only", func(t *testing.T) {
		pool, err := loadCandidatePool(t.Context(), db, true)
		require.NoError(t, err)
		ids := make([]int, 0, len(pool.Profiles))
		for _, p := range pool.Profiles {
			assert.True(t, p.IsOnline)
			ids = append(ids, p.ID)
		}
		assert.Contains(t, ids, online.FounderID)
		assert.NotContains(t, ids, offline.FounderID)
		assert.Equal(t, online.FounderID, pool.Founder(online.FounderID).ID)
	})

	t.Run("everyone", func(t *testing.T) {
		pool, err := loadCandidatePool(t.Context(), db, false)
		require.NoError(t, err)
		assert.NotNil(t, pool.Founder(offline.FounderID))
	})

	t.Run("incomplete rows are skipped", func(t *testing.T) {
		broken := createTestFounder(t, nil)
		_, err := db.Exec(`UPDATE founder_profiles SET industry = '' WHERE id = $1`, broken.FounderID)
		require.NoError(t, err)

		pool, err := loadCandidatePool(t.Context(), db, false)
		require.NoError(t, err)
		assert.Nil(t, pool.Founder(broken.FounderID))
	})
}
