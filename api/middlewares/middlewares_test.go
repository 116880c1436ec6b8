package middlewares

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/moyoez/multiparter/adapters"
	"github.com/moyoez/multiparter/multiparter"
	"github.com/moyoez/multiparter/source"
	"github.com/moyoez/multiparter/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quiet() multiparter.Option {
	return multiparter.WithLogger(log.New(io.Discard))
}

func bufferFactory() (multiparter.StorageAdapter[adapters.BufferedFile], error) {
	return adapters.NewBuffer(), nil
}

// brokenStore accepts files but cannot undo them.
type brokenStore struct{ *adapters.Buffer }

func (brokenStore) Rollback(context.Context) error { return errors.New("disk gone") }

func formRequest(t *testing.T, build func(w *multipart.Writer)) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	build(w)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func addFile(t *testing.T, w *multipart.Writer, field, filename, content string) {
	t.Helper()
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	h.Set("Content-Type", "text/plain")
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
}

func uploadEngine(mw gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(ErrorHandler())
	r.POST("/upload", mw, func(c *gin.Context) {
		form := Form[adapters.BufferedFile](c)
		c.JSON(http.StatusOK, gin.H{"session": SessionID(c), "fields": form.Fields, "files": form.Files})
	})
	return r
}

func TestMultipart_StoresForm(t *testing.T) {
	r := uploadEngine(Multipart(bufferFactory, quiet()))
	req := formRequest(t, func(w *multipart.Writer) {
		require.NoError(t, w.WriteField("title", "report"))
		addFile(t, w, "doc", "a.txt", "hello")
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Session string                  `json:"session"`
		Fields  []types.Field           `json:"fields"`
		Files   []adapters.BufferedFile `json:"files"`
	}
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Session)
	assert.Equal(t, body.Session, rec.Header().Get(SessionHeader))
	assert.Equal(t, []types.Field{{Name: "title", Value: "report"}}, body.Fields)
	require.Len(t, body.Files, 1)
	assert.Equal(t, "a.txt", body.Files[0].Filename)
	assert.Equal(t, 5, body.Files[0].Size)
}

func TestMultipart_Hooks(t *testing.T) {
	var started, done string
	var doneErr error
	hooks := Hooks{
		OnStart: func(_ *gin.Context, id string, abort func()) {
			started = id
			assert.NotNil(t, abort)
		},
		OnDone: func(_ *gin.Context, id string, err error) {
			done = id
			doneErr = err
		},
	}
	r := uploadEngine(MultipartWithHooks(bufferFactory, hooks, quiet(),
		multiparter.WithLimits(types.Limits{MaxFields: 1})))
	req := formRequest(t, func(w *multipart.Writer) {
		require.NoError(t, w.WriteField("a", "1"))
		require.NoError(t, w.WriteField("b", "2"))
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.NotEmpty(t, started)
	assert.Equal(t, started, done)
	assert.ErrorIs(t, doneErr, multiparter.ErrFieldLimit)

	var body multiparter.ErrorBody
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "FieldLimitError", body.Name)
	assert.Equal(t, "Field limit reached.", body.Message)
}

func TestMultipart_ContentType(t *testing.T) {
	r := uploadEngine(Multipart(bufferFactory, quiet()))
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Empty(t, rec.Header().Get(SessionHeader))
	assert.JSONEq(t, `{"name":"ContentTypeError","message":"Invalid content type."}`, rec.Body.String())
}

func TestMultipart_RollbackFailure(t *testing.T) {
	factory := func() (multiparter.StorageAdapter[adapters.BufferedFile], error) {
		return brokenStore{adapters.NewBuffer()}, nil
	}
	r := uploadEngine(Multipart(factory, quiet(), multiparter.WithLimits(types.Limits{MaxFiles: 1})))
	req := formRequest(t, func(w *multipart.Writer) {
		addFile(t, w, "a", "a.txt", "one")
		addFile(t, w, "b", "b.txt", "two")
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{
		"name": "RollbackError",
		"message": "Rollback failed.",
		"originalError": {"name": "FileLimitError", "message": "File limit reached."},
		"rollbackError": {"name": "Error", "message": "disk gone"}
	}`, rec.Body.String())
}

func TestMultipart_FactoryError(t *testing.T) {
	factory := func() (multiparter.StorageAdapter[adapters.BufferedFile], error) {
		return nil, errors.New("no space")
	}
	r := uploadEngine(Multipart(factory, quiet()))
	req := formRequest(t, func(w *multipart.Writer) {
		require.NoError(t, w.WriteField("a", "1"))
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"name":"Error","message":"no space"}`, rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{multiparter.ErrContentType, http.StatusUnsupportedMediaType},
		{multiparter.ErrFieldNameSize, http.StatusRequestEntityTooLarge},
		{multiparter.ErrFieldLimit, http.StatusRequestEntityTooLarge},
		{multiparter.ErrFileLimit, http.StatusRequestEntityTooLarge},
		{multiparter.ErrPartLimit, http.StatusRequestEntityTooLarge},
		{source.ErrUnexpectedEnd, http.StatusBadRequest},
		{source.ErrMalformedHeader, http.StatusBadRequest},
		{multiparter.ErrRequestErrored, http.StatusInternalServerError},
		{&multiparter.RollbackError{OriginalError: multiparter.ErrFileLimit, RollbackErr: errors.New("x")}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}
}

func TestErrorHandler_LeavesWrittenResponses(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/", func(c *gin.Context) {
		_ = c.Error(multiparter.ErrFileLimit)
		c.String(http.StatusTeapot, "handled")
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "handled", rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimit(0.001, 2), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code, "other clients have their own bucket")
}

func TestRateLimit_Disabled(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimit(0, 0), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	for range 5 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestOnlyAllowLocal(t *testing.T) {
	r := gin.New()
	r.GET("/", OnlyAllowLocal, func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for addr, want := range map[string]int{
		"127.0.0.1:5000":   http.StatusNoContent,
		"[::1]:5000":       http.StatusNoContent,
		"192.168.1.7:5000": http.StatusForbidden,
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		r.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, addr)
	}
}
