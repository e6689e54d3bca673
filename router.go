package main

import (
	"database/sql"
	"net/http"
)

func newRouter(db *sql.DB) http.Handler {
	mux := http.NewServeMux()

	// Accounts
	mux.Handle("POST /api/auth/register", registerHandler(db))
	mux.Handle("POST /api/token", tokenHandler(db))
	mux.Handle("POST /api/token/refresh", refreshTokenHandler())

	// Founder profiles
	mux.Handle("GET /api/founders", listFoundersHandler(db))
	mux.Handle("POST /api/founders", createFounderHandler(db))
	mux.Handle("GET /api/founders/me", myFounderHandler(db))
	mux.Handle("PATCH /api/founders/update_online_status", updateOnlineStatusHandler(db))
	mux.Handle("POST /api/founders/me/ping", pingHandler(db))
	mux.Handle("POST /api/founders/me/image", uploadFounderImageHandler(db))
	mux.Handle("DELETE /api/founders/me/image", deleteFounderImageHandler(db))
	mux.Handle("GET /api/founders/{id}", getFounderHandler(db))
	mux.Handle("PATCH /api/founders/{id}", updateFounderHandler(db))
	mux.Handle("DELETE /api/founders/{id}", deleteFounderHandler(db))
	mux.Handle("GET /api/founders/{id}/image", getFounderImageHandler(db))

	// Connections
	mux.Handle("GET /api/connections", listConnectionsHandler(db))
	mux.Handle("POST /api/connections", requestConnectionHandler(db))
	mux.Handle("POST /api/connections/{id}/accept", respondConnectionHandler(db, statusAccepted))
	mux.Handle("POST /api/connections/{id}/reject", respondConnectionHandler(db, statusRejected))

	// Matching
	mux.Handle("POST /api/matching/roulette", rouletteHandler(db))
	mux.Handle("POST /api/matching/roulette/{session}/end", endRouletteHandler(db))
	mux.Handle("GET /api/matching/cofounder_suggestions", suggestionsHandler(db))
	mux.Handle("POST /api/matching/interest/{id}", interestHandler(db))
	mux.Handle("GET /api/matching/stats", matchStatsHandler(db))

	// Ideas
	mux.Handle("GET /api/ideas", listIdeasHandler(db))
	mux.Handle("POST /api/ideas", createIdeaHandler(db))
	mux.Handle("GET /api/ideas/{id}", getIdeaHandler(db))
	mux.Handle("PATCH /api/ideas/{id}", updateIdeaHandler(db))
	mux.Handle("DELETE /api/ideas/{id}", deleteIdeaHandler(db))
	mux.Handle("POST /api/ideas/{id}/upvote", upvoteIdeaHandler(db))
	mux.Handle("POST /api/ideas/{id}/comment", commentIdeaHandler(db))
	mux.Handle("GET /api/ideas/{id}/comments", listIdeaCommentsHandler(db))
	mux.Handle("POST /api/ideas/{id}/collaborate", collaborateIdeaHandler(db))
	mux.Handle("GET /api/ideas/{id}/collaborators", listCollaboratorsHandler(db))

	// Co-working rooms
	mux.Handle("GET /api/rooms", listRoomsHandler(db))
	mux.Handle("POST /api/rooms/{id}/join", joinRoomHandler(db))
	mux.Handle("POST /api/rooms/{id}/leave", leaveRoomHandler(db))
	mux.Handle("GET /api/rooms/{id}/messages", roomMessagesHandler(db))
	mux.Handle("POST /api/rooms/{id}/send_message", sendRoomMessageHandler(db))
	mux.Handle("GET /ws/rooms/{id}", wsRoomHandler(db))

	// Direct messages
	mux.Handle("GET /api/messages", listMessagesHandler(db))
	mux.Handle("POST /api/messages", sendMessageHandler(db))
	mux.Handle("GET /api/messages/conversation/{id}", conversationHandler(db))
	mux.Handle("GET /api/messages/summary", messageSummaryHandler(db))
	mux.Handle("GET /ws/messages", wsMessagesHandler(db))

	// Weekly progress
	mux.Handle("GET /api/progress", listProgressHandler(db))
	mux.Handle("POST /api/progress", createProgressHandler(db))
	mux.Handle("POST /api/progress/{id}/react", reactProgressHandler(db))

	mux.HandleFunc("GET /api/{$}", apiRootHandler)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return logger.Middleware(withCORS(DataLoaderMiddleware(db)(mux)))
}

func apiRootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "startup.hub API",
		"version": apiVersion,
		"endpoints": map[string]string{
			"auth":        "/api/auth/register",
			"token":       "/api/token",
			"founders":    "/api/founders",
			"connections": "/api/connections",
			"matching":    "/api/matching",
			"ideas":       "/api/ideas",
			"rooms":       "/api/rooms",
			"messages":    "/api/messages",
			"progress":    "/api/progress",
		},
	})
}
