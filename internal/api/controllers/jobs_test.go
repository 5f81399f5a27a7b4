package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v5"
)

const oneFileNZB = `<?xml version="1.0" encoding="iso-8859-1"?>
<nzb xmlns="http://www.newzbin.com/DTD/2003/nzb">
<file subject="[1/1] &quot;release.r00&quot; yEnc (1/1)" poster="p@example.com">
<groups><group>alt.binaries.test</group></groups>
<segments>
<segment bytes="100" number="1">abc@example.com</segment>
</segments>
</file>
</nzb>
`

func newTestServer(t *testing.T) (*httptest.Server, *echo.Echo) {
	t.Helper()
	e := echo.New()
	appCtx := newTestApp(t)

	jobsCtrl := &JobsController{App: appCtx}
	e.POST("/jobs", jobsCtrl.Submit)
	e.GET("/jobs", jobsCtrl.List)
	e.GET("/jobs/:id", jobsCtrl.Get)
	e.POST("/jobs/:id/pause", jobsCtrl.Pause)
	e.POST("/jobs/:id/resume", jobsCtrl.Resume)
	e.DELETE("/jobs/:id", jobsCtrl.Delete)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, e
}

func submitNZB(t *testing.T, srv *httptest.Server, filename string) map[string]string {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(oneFileNZB)); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/jobs", &body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 202 Accepted, got %d: %s", resp.StatusCode, b)
	}

	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

// waitForStatus polls /jobs/:id until it reports the given status, or fails
// the test after a short timeout. The job goroutine flips Queued->Downloading
// asynchronously right after Submit returns, so pause/resume tests need to
// wait for it rather than assume it has already happened.
func waitForStatus(t *testing.T, srv *httptest.Server, id, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/jobs/" + id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		var j map[string]any
		err = json.NewDecoder(resp.Body).Decode(&j)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decoding job: %v", err)
		}
		if j["status"] == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %q", id, want)
}

func TestJobsController_Submit_QueuesJob(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	out := submitNZB(t, srv, "release.nzb")
	if out["id"] == "" {
		t.Fatal("expected a non-empty job id")
	}
}

func TestJobsController_Submit_MissingFileReturnsBadRequest(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/jobs", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestJobsController_GetAndList_RoundTrip(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	out := submitNZB(t, srv, "release.nzb")
	id := out["id"]

	resp, err := http.Get(srv.URL + "/jobs/" + id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	listResp, err := http.Get(srv.URL + "/jobs")
	if err != nil {
		t.Fatalf("Get list: %v", err)
	}
	defer listResp.Body.Close()
	var jobs []map[string]any
	if err := json.NewDecoder(listResp.Body).Decode(&jobs); err != nil {
		t.Fatalf("decoding job list: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected exactly 1 job listed, got %d", len(jobs))
	}
}

func TestJobsController_Get_UnknownReturnsNotFound(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/jobs/does-not-exist")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestJobsController_PauseThenResume(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	out := submitNZB(t, srv, "release.nzb")
	id := out["id"]
	waitForStatus(t, srv, id, "downloading")

	resp, err := http.Post(srv.URL+"/jobs/"+id+"/pause", "", nil)
	if err != nil {
		t.Fatalf("Post pause: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on pause, got %d", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/jobs/"+id+"/resume", "", nil)
	if err != nil {
		t.Fatalf("Post resume: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on resume, got %d", resp.StatusCode)
	}
}

func TestJobsController_Delete_RemovesJob(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	out := submitNZB(t, srv, "release.nzb")
	id := out["id"]

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/jobs/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	getResp, err := http.Get(srv.URL + "/jobs/" + id)
	if err != nil {
		t.Fatalf("Get after delete: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected job to still be listed (marked deleted, not removed from Manager), got %d", getResp.StatusCode)
	}
}
