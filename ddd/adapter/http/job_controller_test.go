package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"medkit-service/ddd/application/cqe"
	"medkit-service/ddd/application/dto"
	"medkit-service/pkg/errno"
	"medkit-service/pkg/middleware"
)

type stubJobApp struct {
	created   *cqe.CreateJobReq
	body      string
	createErr error
}

func (s *stubJobApp) CreateJob(_ context.Context, req *cqe.CreateJobReq) (*dto.JobDTO, error) {
	if req.Upload != nil {
		b, _ := io.ReadAll(req.Upload)
		s.body = string(b)
	}
	s.created = req
	if s.createErr != nil {
		return &dto.JobDTO{JobID: "job-1", Kind: req.Kind, Status: "failed"}, s.createErr
	}
	return &dto.JobDTO{JobID: "job-1", Kind: req.Kind, Status: "pending"}, nil
}

func (s *stubJobApp) GetStatus(_ context.Context, id string) (*dto.JobDTO, error) {
	if id != "job-1" {
		return nil, errno.ErrJobNotFound
	}
	return &dto.JobDTO{JobID: id, Status: "processing", Progress: 40}, nil
}

func (s *stubJobApp) Cancel(_ context.Context, id string) error {
	if id == "done" {
		return errno.NewBizError(errno.ErrInvalidJobStatus, nil)
	}
	return nil
}

func (s *stubJobApp) GetProgress(context.Context, string) (*dto.ProgressDTO, error) {
	return nil, errno.ErrNoProgressData
}

func (s *stubJobApp) GetOutput(_ context.Context, id string) (*dto.OutputDTO, error) {
	return &dto.OutputDTO{
		FileName:    "My Clip.mp4",
		ContentType: "video/mp4",
		Size:        5,
		Body:        io.NopCloser(strings.NewReader("movie")),
	}, nil
}

func newTestEngine(a *stubJobApp) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(middleware.RequestContextMiddleware())
	NewJobController(a).RegisterRoutes(engine)
	return engine
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestCreateJobJSONUsesOwnerHeader(t *testing.T) {
	a := &stubJobApp{}
	engine := newTestEngine(a)
	body := `{"source":"https://example.com/v/1","format":"mp4","quality":"720p"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", "owner-7")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if a.created == nil || a.created.OwnerID != "owner-7" || a.created.Format != "mp4" {
		t.Fatalf("created = %+v", a.created)
	}
	data := decode(t, w)["data"].(map[string]interface{})
	if data["job_id"] != "job-1" {
		t.Fatalf("data = %v", data)
	}
}

func TestCreateJobMultipartIsConversion(t *testing.T) {
	a := &stubJobApp{}
	engine := newTestEngine(a)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("format", "mp3")
	fw, _ := mw.CreateFormFile("file", "clip.mp4")
	_, _ = fw.Write([]byte("video"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if a.created.Kind != "conversion" || a.created.UploadName != "clip.mp4" || a.body != "video" {
		t.Fatalf("created = %+v body=%q", a.created, a.body)
	}
}

func TestJobErrorsMapToStatus(t *testing.T) {
	engine := newTestEngine(&stubJobApp{})
	cases := []struct {
		method, path string
		status, code int
	}{
		{http.MethodGet, "/api/v1/jobs/job-1", http.StatusOK, 200},
		{http.MethodGet, "/api/v1/jobs/other", http.StatusNotFound, errno.ErrJobNotFound.Code},
		{http.MethodGet, "/api/v1/jobs/job-1/progress", http.StatusNotFound, errno.ErrNoProgressData.Code},
		{http.MethodPost, "/api/v1/jobs/job-1/cancel", http.StatusOK, 200},
		{http.MethodPost, "/api/v1/jobs/done/cancel", http.StatusConflict, errno.ErrInvalidJobStatus.Code},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.status {
			t.Fatalf("%s %s status = %d", tc.method, tc.path, w.Code)
		}
		if got := int(decode(t, w)["code"].(float64)); got != tc.code {
			t.Fatalf("%s %s code = %d", tc.method, tc.path, got)
		}
	}
}

func TestDownloadOutputStreamsFile(t *testing.T) {
	engine := newTestEngine(&stubJobApp{})
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1/output", nil))
	if w.Code != http.StatusOK || w.Body.String() != "movie" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "video/mp4" || w.Header().Get("Content-Disposition") != `attachment; filename="My Clip.mp4"` {
		t.Fatalf("headers = %v", w.Header())
	}
}

func TestCreateJobUnavailableStillReturnsJobID(t *testing.T) {
	a := &stubJobApp{createErr: errno.NewBizError(errno.ErrProcessingUnavailable, nil)}
	engine := newTestEngine(a)
	body := `{"source":"https://example.com/v/1","format":"mp4"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	data, ok := decode(t, w)["data"].(map[string]interface{})
	if !ok || data["job_id"] != "job-1" || data["status"] != "failed" {
		t.Fatalf("body = %s", w.Body.String())
	}
}
