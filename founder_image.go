package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// imageExt maps the sniffed content type to the stored file extension.
var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// POST /api/founders/me/image  (multipart form, field name: "file")
func uploadFounderImageHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		f, err := currentFounder(r.Context(), db, userIDFromContext(r.Context()))
		if errors.Is(err, errNoProfile) {
			writeError(w, http.StatusBadRequest, "profile_required")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
		if err := r.ParseMultipartForm(maxImageBytes + 1<<20); err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large_or_missing")
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing_file")
			return
		}
		defer file.Close()

		// Sniff MIME from the first bytes
		head := make([]byte, 512)
		n, _ := io.ReadFull(file, head)
		ext, ok := imageExt[http.DetectContentType(head[:n])]
		if !ok {
			writeError(w, http.StatusBadRequest, "unsupported_image_type")
			return
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			writeServerError(w, r, "save_failed", err)
			return
		}

		filename := fmt.Sprintf("%d%s", f.ID, ext)
		if err := saveImageFile(filename, file); err != nil {
			writeServerError(w, r, "save_failed", err)
			return
		}

		if _, err := db.ExecContext(r.Context(), `
			UPDATE founder_profiles SET profile_image = $1, updated_at = NOW() WHERE id = $2
		`, filename, f.ID); err != nil {
			_ = os.Remove(filepath.Join(uploadRoot, filename))
			writeServerError(w, r, "db_error", err)
			return
		}

		// A previous upload with the other extension is now stale.
		if f.ProfileImage != nil && *f.ProfileImage != filename {
			removeImageFile(*f.ProfileImage)
		}

		url := founderImageURL(f.ID)
		writeJSON(w, http.StatusOK, map[string]any{
			"profile_image":     filename,
			"profile_image_url": url,
		})
	})
}

// saveImageFile writes src to uploadRoot/name through a temp file so readers
// never see a partial image.
func saveImageFile(name string, src io.Reader) error {
	if err := os.MkdirAll(uploadRoot, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(uploadRoot, name)
	tmp := dst + ".tmp"

	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// removeImageFile deletes a stored image. Only the base name is used so a
// tampered column cannot escape uploadRoot.
func removeImageFile(name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	fullPath := filepath.Join(uploadRoot, filepath.Base(name))
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("cannot remove founder image", "path", fullPath, "err", err)
	}
}

// DELETE /api/founders/me/image
func deleteFounderImageHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		f, err := currentFounder(r.Context(), db, userIDFromContext(r.Context()))
		if errors.Is(err, errNoProfile) {
			writeError(w, http.StatusBadRequest, "profile_required")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		if _, err := db.ExecContext(r.Context(), `
			UPDATE founder_profiles SET profile_image = NULL, updated_at = NOW() WHERE id = $1
		`, f.ID); err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}
		if f.ProfileImage != nil {
			removeImageFile(*f.ProfileImage)
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
}

// GET /api/founders/{id}/image
func getFounderImageHandler(db *sql.DB) http.HandlerFunc {
	return authenticate(func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r, "id")
		if !ok {
			writeError(w, http.StatusNotFound, "image_not_found")
			return
		}

		var name sql.NullString
		err := db.QueryRowContext(r.Context(),
			`SELECT profile_image FROM founder_profiles WHERE id = $1`, id).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && (!name.Valid || name.String == "")) {
			writeError(w, http.StatusNotFound, "image_not_found")
			return
		} else if err != nil {
			writeServerError(w, r, "db_error", err)
			return
		}

		path := filepath.Join(uploadRoot, filepath.Base(name.String))
		if _, err := os.Stat(path); err != nil {
			writeError(w, http.StatusNotFound, "image_not_found")
			return
		}

		contentType := "image/jpeg"
		if strings.HasSuffix(path, ".png") {
			contentType = "image/png"
		}
		w.Header().Set("Content-Type", contentType)
		// Light cache; clients bust it with ?ts=
		w.Header().Set("Cache-Control", "private, max-age=3600")
		http.ServeFile(w, r, path)
	})
}
