package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type ctxKey string

const userIDKey ctxKey = "userID"

func userIDFromContext(ctx context.Context) int {
	id, _ := ctx.Value(userIDKey).(int)
	return id
}

func issueToken(userID int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(tokenTTL).Unix(),
	})
	return token.SignedString(jwtSecret)
}

// POST /api/auth/register
func registerHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		req.Username = strings.TrimSpace(req.Username)
		if req.Email == "" || req.Username == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeServerError(w, r, "hash_error", err)
			return
		}

		var newID int
		err = db.QueryRowContext(r.Context(), `
			INSERT INTO users (email, username, password_hash)
			VALUES ($1, $2, $3)
			RETURNING id
		`, req.Email, req.Username, string(hash)).Scan(&newID)
		if err != nil {
			if isUniqueViolation(err) {
				code := "email_exists"
				if strings.Contains(violatedConstraint(err), "username") {
					code = "username_taken"
				}
				writeError(w, http.StatusConflict, code)
				return
			}
			writeServerError(w, r, "register_error", err)
			return
		}

		token, err := issueToken(newID)
		if err != nil {
			writeServerError(w, r, "token_generation_error", err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "registration successful",
			"user": map[string]any{
				"id":       newID,
				"email":    req.Email,
				"username": req.Username,
			},
			"token": token,
		})
	}
}

// POST /api/token
func tokenHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json")
			return
		}

		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "missing_fields")
			return
		}

		var userID int
		var passwordHash string
		err := db.QueryRowContext(r.Context(),
			"SELECT id, password_hash FROM users WHERE email = $1", req.Email,
		).Scan(&userID, &passwordHash)
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}

		token, err := issueToken(userID)
		if err != nil {
			writeServerError(w, r, "token_generation_error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": token, "id": userID})
	}
}

// POST /api/token/refresh
func refreshTokenHandler() http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		token, err := issueToken(userIDFromContext(r.Context()))
		if err != nil {
			writeServerError(w, r, "token_generation_error", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": token})
	})
}

func authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := getUserIDFromBearer(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	}
}

func getUserIDFromBearer(r *http.Request) (int, bool) {
	auth := r.Header.Get("Authorization")
	tokenStr, found := strings.CutPrefix(auth, "Bearer ")
	if !found || tokenStr == "" {
		return 0, false
	}
	return parseUserIDFromJWT(tokenStr)
}

// getUserIDFromRequest also accepts ?token= since browsers cannot set
// headers on websocket upgrades.
func getUserIDFromRequest(r *http.Request) (int, bool) {
	if id, ok := getUserIDFromBearer(r); ok {
		return id, true
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return parseUserIDFromJWT(q)
	}
	return 0, false
}

func parseUserIDFromJWT(tokenStr string) (int, bool) {
	claims := jwt.MapClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return 0, false
	}

	// jwt.MapClaims stores numbers as float64
	fv, ok := claims["user_id"].(float64)
	if !ok || fv <= 0 {
		return 0, false
	}
	return int(fv), true
}
