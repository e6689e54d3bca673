package main

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestIdea(t *testing.T, author testFounder, problem, stage string) Idea {
	t.Helper()
	w := doRequest(t, http.MethodPost, "/api/ideas", author.Token, map[string]string{
		"problem":   problem,
		"solution":  "an app",
		"stage":     stage,
		"need_help": "design",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[Idea](t, w)
}

func TestIdeaInputApply(t *testing.T) {
	var i Idea
	assert.Equal(t, "problem_required", ideaInput{Problem: strPtr("   ")}.apply(&i))

	assert.Empty(t, ideaInput{Problem: strPtr(" slow invoicing ")}.apply(&i))
	assert.Equal(t, "slow invoicing", i.Problem)

	// PATCH without problem keeps the stored one.
	assert.Empty(t, ideaInput{Stage: strPtr("Prototype")}.apply(&i))
	assert.Equal(t, "slow invoicing", i.Problem)
	assert.Equal(t, "Prototype", i.Stage)
}

func TestIdeaHandlers(t *testing.T) {
	requireDB(t)

	author := createTestFounder(t, map[string]any{"industry": "logistics"})
	reader := createTestFounder(t, nil)
	idea := createTestIdea(t, author, "Freight paperwork is slow", "Early Prototype")
	ideaPath := fmt.Sprintf("/api/ideas/%d", idea.ID)

	assert.Equal(t, author.FounderID, idea.AuthorID)
	assert.NotEmpty(t, idea.AuthorName)
	assert.Zero(t, idea.Upvotes)

	t.Run("create requires problem", func(t *testing.T) {
		w := doRequest(t, http.MethodPost, "/api/ideas", author.Token, map[string]string{"solution": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "problem_required", errorCode(t, w))
	})

	t.Run("list filters", func(t *testing.T) {
		w := doRequest(t, http.MethodGet, "/api/ideas?stage=prototype&industry=logistics", reader.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		ideas := decodeBody[[]Idea](t, w)
		ids := make([]int, 0, len(ideas))
		for _, i := range ideas {
			ids = append(ids, i.ID)
		}
		assert.Contains(t, ids, idea.ID)

		w = doRequest(t, http.MethodGet, "/api/ideas?industry=nothing-here", reader.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeBody[[]Idea](t, w))
	})

	t.Run("upvote toggles", func(t *testing.T) {
		type upvoteResp struct {
			Status  string `json:"status"`
			Upvotes int    `json:"upvotes"`
		}
		w := doRequest(t, http.MethodPost, ideaPath+"/upvote", reader.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, upvoteResp{Status: "upvoted", Upvotes: 1}, decodeBody[upvoteResp](t, w))

		w = doRequest(t, http.MethodGet, ideaPath, reader.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decodeBody[Idea](t, w).UserUpvoted)

		w = doRequest(t, http.MethodPost, ideaPath+"/upvote", reader.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, upvoteResp{Status: "removed", Upvotes: 0}, decodeBody[upvoteResp](t, w))

		w = doRequest(t, http.MethodPost, "/api/ideas/999999/upvote", reader.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("upvote counter never negative", func(t *testing.T) {
		_, err := db.Exec(`UPDATE ideas SET upvotes = 0 WHERE id = $1`, idea.ID)
		require.NoError(t, err)
		_, err = db.Exec(`INSERT INTO idea_upvotes (idea_id, founder_id) VALUES ($1, $2)`, idea.ID, author.FounderID)
		require.NoError(t, err)

		w := doRequest(t, http.MethodPost, ideaPath+"/upvote", author.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeBody[map[string]any](t, w)
		assert.Equal(t, "removed", resp["status"])
		assert.Equal(t, float64(0), resp["upvotes"])
	})

	t.Run("comments", func(t *testing.T) {
		w := doRequest(t, http.MethodPost, ideaPath+"/comment", reader.Token, map[string]string{"content": "  "})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "content_required", errorCode(t, w))

		for _, c := range []string{"first", "second"} {
			w = doRequest(t, http.MethodPost, ideaPath+"/comment", reader.Token, map[string]string{"content": c})
			require.Equal(t, http.StatusCreated, w.Code)
		}

		w = doRequest(t, http.MethodGet, ideaPath+"/comments", author.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		comments := decodeBody[[]IdeaComment](t, w)
		require.Len(t, comments, 2)
		assert.Equal(t, "first", comments[0].Content)
		assert.Equal(t, "second", comments[1].Content)
		assert.Equal(t, reader.FounderID, comments[0].AuthorID)
		assert.NotEmpty(t, comments[0].AuthorName)

		w = doRequest(t, http.MethodGet, ideaPath, author.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		detail := decodeBody[Idea](t, w)
		assert.Equal(t, 2, detail.CommentCount)
		assert.Len(t, detail.Comments, 2)
	})

	t.Run("collaborate", func(t *testing.T) {
		w := doRequest(t, http.MethodPost, ideaPath+"/collaborate", author.Token, map[string]string{"message": "me"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "own_idea", errorCode(t, w))

		w = doRequest(t, http.MethodPost, ideaPath+"/collaborate", reader.Token, map[string]string{"message": "I can help"})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "collaboration_requested", decodeBody[map[string]any](t, w)["status"])

		w = doRequest(t, http.MethodPost, ideaPath+"/collaborate", reader.Token, map[string]string{"message": "again"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "already_requested", errorCode(t, w))

		w = doRequest(t, http.MethodGet, ideaPath+"/collaborators", reader.Token, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = doRequest(t, http.MethodGet, ideaPath+"/collaborators", author.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		collabs := decodeBody[[]collaboratorResp](t, w)
		require.Len(t, collabs, 1)
		assert.Equal(t, reader.FounderID, collabs[0].Founder.ID)
		assert.Equal(t, "pending", collabs[0].Status)
		assert.Equal(t, "I can help", collabs[0].Message)
	})

	t.Run("author-only writes", func(t *testing.T) {
		w := doRequest(t, http.MethodPatch, ideaPath, reader.Token, map[string]string{"stage": "x"})
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = doRequest(t, http.MethodPatch, ideaPath, author.Token, map[string]string{"stage": "Launched"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Launched", decodeBody[Idea](t, w).Stage)

		w = doRequest(t, http.MethodDelete, ideaPath, reader.Token, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		w = doRequest(t, http.MethodDelete, ideaPath, author.Token, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = doRequest(t, http.MethodGet, ideaPath, author.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "idea_not_found", errorCode(t, w))
	})
}
