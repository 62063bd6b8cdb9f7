package upload

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"edge-gateway/middleware/httperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR"), bytes.Repeat([]byte{0}, 64)...)
	jpegBytes = append([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, bytes.Repeat([]byte{0}, 64)...)
	webpBytes = append([]byte("RIFF\x24\x00\x00\x00WEBPVP8 "), bytes.Repeat([]byte{0}, 64)...)
	gifBytes  = append([]byte("GIF89a"), bytes.Repeat([]byte{0}, 64)...)
)

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "hello"))

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	pw, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = pw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func run(t *testing.T, v *Validator, r *http.Request) (*httptest.ResponseRecorder, *Asset) {
	t.Helper()
	var got *Asset
	h := Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w, got
}

func scanRequest(t *testing.T, field, contentType string, data []byte) *http.Request {
	body, ct := multipartBody(t, field, "photo.bin", contentType, data)
	r := httptest.NewRequest(http.MethodPost, "http://example/api/scan", body)
	r.Header.Set("Content-Type", ct)
	return r
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var b httperr.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	return b.Code
}

func TestValidator_AcceptsMatchingTypes(t *testing.T) {
	v := NewValidator(10 << 20)

	cases := map[string][]byte{"image/png": pngBytes, "image/jpeg": jpegBytes, "image/webp": webpBytes}
	for ct, data := range cases {
		w, asset := run(t, v, scanRequest(t, "image", ct, data))
		require.Equal(t, http.StatusOK, w.Code, ct)
		require.NotNil(t, asset)
		assert.Equal(t, ct, asset.SniffedMIME)
		assert.Equal(t, ct, asset.DeclaredMIME)
		assert.Equal(t, int64(len(data)), asset.Size)
		assert.Equal(t, "photo.bin", asset.Filename)
		assert.Len(t, asset.Fingerprint(), 16)
	}
}

func TestValidator_PNGDeclaredAsJPEGIs415(t *testing.T) {
	w, asset := run(t, NewValidator(10<<20), scanRequest(t, "image", "image/jpeg", pngBytes))

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "SIGNATURE_MISMATCH", errCode(t, w))
	assert.Nil(t, asset)
}

func TestValidator_DisallowedDeclaredTypeIs415(t *testing.T) {
	w, _ := run(t, NewValidator(10<<20), scanRequest(t, "image", "image/gif", gifBytes))

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", errCode(t, w))
}

func TestValidator_GIFDeclaredAsPNGIs415(t *testing.T) {
	w, _ := run(t, NewValidator(10<<20), scanRequest(t, "image", "image/png", gifBytes))

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "SIGNATURE_MISMATCH", errCode(t, w))
}

func TestValidator_MissingFieldIs400(t *testing.T) {
	w, _ := run(t, NewValidator(10<<20), scanRequest(t, "other", "image/png", pngBytes))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_FILE", errCode(t, w))
}

func TestValidator_EmptyFileIs400(t *testing.T) {
	w, _ := run(t, NewValidator(10<<20), scanRequest(t, "image", "image/png", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_FILE", errCode(t, w))
}

func TestValidator_NotMultipartIs400(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://example/api/scan", bytes.NewReader([]byte(`{}`)))
	r.Header.Set("Content-Type", "application/json")

	w, _ := run(t, NewValidator(10<<20), r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_FILE", errCode(t, w))
}

func TestValidator_MalformedMultipartIs400(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "http://example/api/scan", bytes.NewReader([]byte("garbage without boundary")))
	r.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")

	w, _ := run(t, NewValidator(10<<20), r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_MULTIPART", errCode(t, w))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func TestValidator_OversizedContentLengthRejectedBeforeReading(t *testing.T) {
	big := append(append([]byte{}, pngBytes...), make([]byte, 15<<20)...)
	body, ct := multipartBody(t, "image", "big.png", "image/png", big)
	size := int64(body.Len())
	cr := &countingReader{r: body}

	r := httptest.NewRequest(http.MethodPost, "http://example/api/scan", cr)
	r.Header.Set("Content-Type", ct)
	r.ContentLength = size

	w, _ := run(t, NewValidator(10<<20), r)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "FILE_TOO_LARGE", errCode(t, w))
	assert.Zero(t, cr.n)
}

func TestValidator_OversizedStreamWithoutLengthStopsAtCap(t *testing.T) {
	big := append(append([]byte{}, pngBytes...), make([]byte, 2<<20)...)
	body, ct := multipartBody(t, "image", "big.png", "image/png", big)
	total := int64(body.Len())
	cr := &countingReader{r: body}

	r := httptest.NewRequest(http.MethodPost, "http://example/api/scan", cr)
	r.Header.Set("Content-Type", ct)
	r.ContentLength = -1

	w, _ := run(t, NewValidator(1<<20), r)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Less(t, cr.n, total)
}

func TestSniff_WalksToAllowedParent(t *testing.T) {
	assert.Equal(t, "image/png", Sniff(pngBytes, DefaultAllowed))
	assert.Equal(t, "image/gif", Sniff(gifBytes, DefaultAllowed))
	assert.Equal(t, "image/jpeg", baseType("IMAGE/JPG"))
	assert.Equal(t, "image/png", baseType("image/png; charset=binary"))
}
