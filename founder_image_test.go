package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(t *testing.T, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	switch format {
	case "png":
		require.NoError(t, png.Encode(&buf, img))
	case "jpeg":
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	default:
		t.Fatalf("unknown format %q", format)
	}
	return buf.Bytes()
}

func uploadImage(t *testing.T, token, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/founders/me/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	testMux.ServeHTTP(w, req)
	return w
}

func TestFounderImage(t *testing.T) {
	requireDB(t)

	f := createTestFounder(t, nil)
	imagePath := fmt.Sprintf("/api/founders/%d/image", f.FounderID)

	t.Run("profile required", func(t *testing.T) {
		u := createTestUser(t)
		w := uploadImage(t, u.Token, "a.png", testImage(t, "png"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "profile_required", errorCode(t, w))
	})

	t.Run("no image yet", func(t *testing.T) {
		w := doRequest(t, http.MethodGet, imagePath, f.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "image_not_found", errorCode(t, w))
	})

	t.Run("rejects non images", func(t *testing.T) {
		w := uploadImage(t, f.Token, "notes.png", []byte("definitely not a picture"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "unsupported_image_type", errorCode(t, w))
	})

	t.Run("rejects oversized files", func(t *testing.T) {
		prev := maxImageBytes
		maxImageBytes = 64
		t.Cleanup(func() { maxImageBytes = prev })

		w := uploadImage(t, f.Token, "big.png", bytes.Repeat([]byte{0x89}, 4096))
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("png upload and fetch", func(t *testing.T) {
		content := testImage(t, "png")
		w := uploadImage(t, f.Token, "me.png", content)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decodeBody[map[string]string](t, w)
		assert.Equal(t, fmt.Sprintf("%d.png", f.FounderID), resp["profile_image"])
		assert.Equal(t, founderImageURL(f.FounderID), resp["profile_image_url"])

		w = doRequest(t, http.MethodGet, imagePath, f.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, content, w.Body.Bytes())

		got, err := loadFounderByID(t.Context(), db, f.FounderID)
		require.NoError(t, err)
		require.NotNil(t, got.ProfileImageURL)
	})

	t.Run("jpeg replaces png", func(t *testing.T) {
		w := uploadImage(t, f.Token, "me.jpg", testImage(t, "jpeg"))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, fmt.Sprintf("%d.jpg", f.FounderID), decodeBody[map[string]string](t, w)["profile_image"])

		_, err := os.Stat(filepath.Join(uploadRoot, fmt.Sprintf("%d.png", f.FounderID)))
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(filepath.Join(uploadRoot, fmt.Sprintf("%d.jpg", f.FounderID)))
		assert.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		w := doRequest(t, http.MethodDelete, "/api/founders/me/image", f.Token, nil)
		require.Equal(t, http.StatusOK, w.Code)

		_, err := os.Stat(filepath.Join(uploadRoot, fmt.Sprintf("%d.jpg", f.FounderID)))
		assert.True(t, os.IsNotExist(err))

		w = doRequest(t, http.MethodGet, imagePath, f.Token, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRemoveImageFileStaysInRoot(t *testing.T) {
	outside := filepath.Join(t.TempDir(), "keep.png")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	removeImageFile("../../" + outside)
	removeImageFile("")

	_, err := os.Stat(outside)
	assert.NoError(t, err)
}
