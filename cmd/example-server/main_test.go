package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRouter_EchoesForwardedRequest(t *testing.T) {
	h := newRouter(zap.NewNop().Sugar())

	r := httptest.NewRequest(http.MethodPost, "http://backend/v1/books/enrich?x=1", strings.NewReader(`{"books":[]}`))
	r.Header.Set("X-Device-Id", "dev-12345678")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var got echo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "/v1/books/enrich", got.Path)
	assert.Equal(t, "x=1", got.Query)
	assert.Equal(t, "dev-12345678", got.DeviceID)
	assert.Equal(t, 12, got.BodyBytes)
}

func TestRouter_Scan(t *testing.T) {
	h := newRouter(zap.NewNop().Sugar())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "a.jpg")
	require.NoError(t, err)
	_, _ = fw.Write([]byte{0xff, 0xd8, 0xff})
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "http://backend/v1/scan", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	var spines []spine
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &spines))
	assert.Len(t, spines, 2)
}

func TestRouter_ScanWithoutImageIs400(t *testing.T) {
	h := newRouter(zap.NewNop().Sugar())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://backend/v1/scan", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
