package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drummonds/pdfworker/config"
	"github.com/drummonds/pdfworker/database"
)

type testServer struct {
	echo     *echo.Echo
	handler  *ServerHandler
	docs     *fakeEngine
	renderer *fakeRenderer
	repo     *fakeRepository
	dir      string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	worker, docs, renderer := newTestWorker()
	repo := newFakeRepository()
	dir := t.TempDir()
	e := echo.New()
	handler := &ServerHandler{
		DB:           repo,
		Echo:         e,
		ServerConfig: config.ServerConfig{OutputPath: filepath.Join(dir, "output")},
		Worker:       worker,
	}
	handler.RegisterRoutes()
	return &testServer{echo: e, handler: handler, docs: docs, renderer: renderer, repo: repo, dir: dir}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var payload string
	switch b := body.(type) {
	case nil:
	case string:
		payload = b
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err)
		payload = string(encoded)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func (s *testServer) job(t *testing.T, body map[string]interface{}) *database.Job {
	t.Helper()
	raw, ok := body["jobId"].(string)
	require.True(t, ok, "response should carry a jobId: %v", body)
	id, err := ulid.Parse(raw)
	require.NoError(t, err)
	job, err := s.repo.GetJob(id)
	require.NoError(t, err)
	return job
}

func TestMergeRoute(t *testing.T) {
	s := newTestServer(t)
	a := filepath.Join(s.dir, "a.pdf")
	b := filepath.Join(s.dir, "b.pdf")
	s.docs.addPDF(t, a, "a1")
	s.docs.addPDF(t, b, "b1", "b2")

	rec, body := s.do(t, http.MethodPost, "/api/merge", map[string]interface{}{
		"filePaths":  []string{a, b},
		"outputPath": "merged.pdf",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	want := filepath.Join(s.dir, "output", "merged.pdf")
	result := body["result"].(map[string]interface{})
	assert.Equal(t, want, result["outputPath"])
	assert.Equal(t, []string{"a1", "b1", "b2"}, s.docs.file(want).pages)

	job := s.job(t, body)
	assert.Equal(t, database.JobTypeMerge, job.Type)
	assert.Equal(t, database.JobStatusCompleted, job.Status)
	assert.JSONEq(t, `{"outputPath":"`+want+`"}`, job.Result)
}

func TestMergeRoute_ErrorMapping(t *testing.T) {
	s := newTestServer(t)
	a := filepath.Join(s.dir, "a.pdf")
	s.docs.addPDF(t, a, "a1")

	tests := []struct {
		name     string
		body     interface{}
		status   int
		code     string
		trackJob bool
	}{
		{"missing file", map[string]interface{}{"filePaths": []string{filepath.Join(s.dir, "gone.pdf")}, "outputPath": "out.pdf"}, http.StatusNotFound, "NOT_FOUND", true},
		{"empty list", map[string]interface{}{"filePaths": []string{}, "outputPath": "out.pdf"}, http.StatusBadRequest, "EMPTY_INPUT", true},
		{"blank path in list", map[string]interface{}{"filePaths": []string{a, ""}, "outputPath": "out.pdf"}, http.StatusBadRequest, codeInvalidRequest, false},
		{"no output", map[string]interface{}{"filePaths": []string{a}}, http.StatusBadRequest, codeInvalidRequest, false},
		{"malformed json", `{"filePaths": [`, http.StatusBadRequest, codeInvalidRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := s.do(t, http.MethodPost, "/api/merge", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, "mergeAll", body["operation"])
			if tt.trackJob {
				job := s.job(t, body)
				assert.Equal(t, database.JobStatusFailed, job.Status)
				assert.Contains(t, job.Error, tt.code)
			} else {
				assert.Nil(t, body["jobId"])
			}
		})
	}
}

func TestMergePagesRoute_TracksProgress(t *testing.T) {
	s := newTestServer(t)
	in := filepath.Join(s.dir, "in.pdf")
	s.docs.addPDF(t, in, "p0", "p1", "p2", "p3")

	rec, body := s.do(t, http.MethodPost, "/api/merge/pages", map[string]interface{}{
		"inputPath":  in,
		"outputPath": filepath.Join(s.dir, "picked.pdf"),
		"pages":      []int{3, 1, 3, 0},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"p3", "p1", "p3", "p0"}, s.docs.file(filepath.Join(s.dir, "picked.pdf")).pages)

	job := s.job(t, body)
	assert.Equal(t, database.JobTypeMergePages, job.Type)
	assert.Equal(t, []int{25, 50, 75, 100}, s.repo.progress[job.ID])

	rec, body = s.do(t, http.MethodPost, "/api/merge/pages", map[string]interface{}{
		"inputPath":  in,
		"outputPath": "bad.pdf",
		"pages":      []int{4},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "OUT_OF_RANGE", body["code"])
}

func TestImagesToPdfRoute_ConfigDefaults(t *testing.T) {
	s := newTestServer(t)
	img := writeTestImage(t, s.dir, "photo.png", 100, 50)

	rec, _ := s.do(t, http.MethodPost, "/api/images/pdf", map[string]interface{}{
		"imagePaths": []string{img},
		"outputPath": "photos.pdf",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1190, s.docs.imagePages[0].X, "no config block uses the worker defaults")

	rec, _ = s.do(t, http.MethodPost, "/api/images/pdf", map[string]interface{}{
		"imagePaths": []string{img},
		"outputPath": "photos.pdf",
		"config":     map[string]interface{}{"rescale": map[string]interface{}{"maxHeight": 25}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 50, s.docs.imagePages[0].X)
	assert.Equal(t, 25, s.docs.imagePages[0].Y)
}

func TestProtectionRoutes(t *testing.T) {
	s := newTestServer(t)
	path := filepath.Join(s.dir, "doc.pdf")
	s.docs.addPDF(t, path, "p0")

	check := func() bool {
		rec, body := s.do(t, http.MethodPost, "/api/protection/check", map[string]string{"filePath": path})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return body["result"].(map[string]interface{})["protected"].(bool)
	}

	assert.False(t, check())

	rec, _ := s.do(t, http.MethodPost, "/api/protection/lock", map[string]string{"filePath": path, "userPassword": "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, check())

	rec, body := s.do(t, http.MethodPost, "/api/protection/lock", map[string]string{"filePath": path, "userPassword": "pw"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_PROTECTED", body["code"])

	rec, body = s.do(t, http.MethodPost, "/api/protection/unlock", map[string]string{"filePath": path, "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_PASSWORD", body["code"])

	rec, body = s.do(t, http.MethodPost, "/api/protection/unlock", map[string]string{"filePath": path, "userPassword": "pw"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, false, body["result"].(map[string]interface{})["protected"])
	assert.False(t, check())

	rec, body = s.do(t, http.MethodPost, "/api/protection/unlock", map[string]string{"filePath": path, "password": "pw"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOT_PROTECTED", body["code"])

	for _, job := range s.repo.sorted(func(*database.Job) bool { return true }) {
		assert.NotContains(t, job.Message, "pw")
		assert.NotContains(t, job.Result, `"pw"`)
	}
}

func TestSniffRoute(t *testing.T) {
	s := newTestServer(t)
	path := writeTail(t, "%PDF-1.4\ntrailer\n<< /Root 1 0 R /Encrypt 2 0 R >>\n%%EOF\n")

	rec, body := s.do(t, http.MethodPost, "/api/protection/sniff", map[string]string{"filePath": path})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["result"].(map[string]interface{})["protected"])
	assert.Equal(t, database.JobTypeSniff, s.job(t, body).Type)
}

func TestRenderRoutes(t *testing.T) {
	s := newTestServer(t)
	in := filepath.Join(s.dir, "in.pdf")
	s.renderer.addPDF(t, in, [2]float64{10, 10}, [2]float64{10, 20})

	rec, body := s.do(t, http.MethodPost, "/api/render/pages", map[string]interface{}{
		"inputPath": in,
		"format":    "jpeg",
		"quality":   70,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	paths := body["result"].(map[string]interface{})["outputPaths"].([]interface{})
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(s.dir, "output"), filepath.Dir(paths[0].(string)))
	assert.True(t, strings.HasSuffix(paths[1].(string), "_2.jpg"))

	rec, body = s.do(t, http.MethodPost, "/api/render/pages", map[string]interface{}{"inputPath": in, "format": "bmp"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, body["code"])

	rec, body = s.do(t, http.MethodPost, "/api/render/pages", map[string]interface{}{"inputPath": in, "pages": []int{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EMPTY_INPUT", body["code"])

	rec, body = s.do(t, http.MethodPost, "/api/render/long", map[string]interface{}{"inputPath": in})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidRequest, body["code"])

	rec, body = s.do(t, http.MethodPost, "/api/render/long", map[string]interface{}{"inputPath": in, "outputPath": "long.png", "pages": []int{1, 0}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, filepath.Join(s.dir, "output", "long.png"), body["result"].(map[string]interface{})["outputPath"])

	huge := filepath.Join(s.dir, "huge.pdf")
	s.renderer.addPDF(t, huge, [2]float64{10, 8e8})
	rec, body = s.do(t, http.MethodPost, "/api/render/long", map[string]interface{}{"inputPath": huge, "outputPath": "huge.png"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_SIZE", body["code"])
}

func TestJobRoutes(t *testing.T) {
	s := newTestServer(t)
	a := filepath.Join(s.dir, "a.pdf")
	s.docs.addPDF(t, a, "a1")
	_, body := s.do(t, http.MethodPost, "/api/merge", map[string]interface{}{"filePaths": []string{a}, "outputPath": "one.pdf"})
	jobID := body["jobId"].(string)

	rec, job := s.do(t, http.MethodGet, "/api/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", job["status"])

	rec, _ = s.do(t, http.MethodGet, "/api/jobs/not-a-ulid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/jobs/"+ulid.Make().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/jobs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []database.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 1)

	rec, _ = s.do(t, http.MethodGet, "/api/jobs/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHealthRoute(t *testing.T) {
	s := newTestServer(t)
	rec, body := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	s.repo.pingErr = errors.New("connection refused")
	rec, _ = s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, body = s.do(t, http.MethodGet, "/api/about", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DefaultRenderScale, body["renderScale"])
}

func TestRunJobWithTracking(t *testing.T) {
	s := newTestServer(t)

	jobID, _, err := s.handler.runJobWithTracking(database.JobTypeMerge, "mergeAll", "boom", func(ProgressFunc) (interface{}, error) {
		panic("renderer crashed")
	})
	assert.ErrorIs(t, err, ErrIOError)
	job, getErr := s.repo.GetJob(jobID)
	require.NoError(t, getErr)
	assert.Equal(t, database.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "renderer crashed")

	s.repo.createErr = errors.New("database locked")
	_, _, err = s.handler.runJobWithTracking(database.JobTypeMerge, "mergeAll", "never", func(ProgressFunc) (interface{}, error) {
		t.Fatal("job must not run without a job row")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrIOError)
}

func TestResolveOutput(t *testing.T) {
	handler := &ServerHandler{ServerConfig: config.ServerConfig{OutputPath: "/srv/out"}}
	assert.Equal(t, "/srv/out", handler.resolveOutput(""))
	assert.Equal(t, "/srv/out/a/b.pdf", handler.resolveOutput("a/b.pdf"))
	assert.Equal(t, "/tmp/x.pdf", handler.resolveOutput("/tmp/../tmp/x.pdf"))
}

func TestImageConfigRequest_ToConfig(t *testing.T) {
	var missing *ImageConfigRequest
	assert.Nil(t, missing.ToConfig())

	width := 300
	keep := false
	got := (&ImageConfigRequest{Rescale: &RescaleRequest{MaxWidth: &width}, KeepAspectRatio: &keep}).ToConfig()
	assert.Equal(t, &ImageToPdfConfig{Rescale: RescaleLimit{MaxWidth: 300}}, got)

	got = (&ImageConfigRequest{}).ToConfig()
	assert.Equal(t, &ImageToPdfConfig{KeepAspectRatio: true}, got)
}

func TestStatusForKind(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusForKind(KindEmptyInput))
	assert.Equal(t, http.StatusNotFound, statusForKind(KindNotFound))
	assert.Equal(t, http.StatusUnauthorized, statusForKind(KindInvalidPassword))
	assert.Equal(t, http.StatusConflict, statusForKind(KindNotProtected))
	assert.Equal(t, http.StatusUnprocessableEntity, statusForKind(KindInvalidSize))
	assert.Equal(t, http.StatusInternalServerError, statusForKind(KindWriteFailed))
}

func TestRegisteredRoutesAreDocumented(t *testing.T) {
	server := newTestServer(t)

	documented := map[string]bool{}
	for _, name := range []string{"routes.go", "jobs_routes.go"} {
		source, err := os.ReadFile(name)
		require.NoError(t, err)
		for _, line := range strings.Split(string(source), "\n") {
			if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "// @Router "); ok {
				documented[rest] = true
			}
		}
	}

	var routes []string
	for _, route := range server.echo.Routes() {
		path := strings.TrimPrefix(route.Path, "/api")
		path = strings.ReplaceAll(path, ":id", "{id}")
		annotation := fmt.Sprintf("%s [%s]", path, strings.ToLower(route.Method))
		routes = append(routes, annotation)
		assert.True(t, documented[annotation], "route %s %s has no @Router annotation", route.Method, route.Path)
	}
	assert.Len(t, documented, len(routes), "annotations without a registered route")
}
