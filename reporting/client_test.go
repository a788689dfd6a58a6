package reporting

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionURLs(t *testing.T) {
	tests := []struct {
		region  string
		wantAPI string
		wantApp string
	}{
		{region: "", wantAPI: "https://api.us-west-1.saucelabs.com", wantApp: "https://app.saucelabs.com"},
		{region: "us-west-1", wantAPI: "https://api.us-west-1.saucelabs.com", wantApp: "https://app.saucelabs.com"},
		{region: "eu-central-1", wantAPI: "https://api.eu-central-1.saucelabs.com", wantApp: "https://app.eu-central-1.saucelabs.com"},
	}

	for _, tt := range tests {
		t.Run(tt.region, func(t *testing.T) {
			assert.Equal(t, tt.wantAPI, APIBaseURL(tt.region))
			assert.Equal(t, tt.wantApp, AppBaseURL(tt.region))
		})
	}
}

func newTestClient(t *testing.T, handler http.Handler) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(zerolog.Nop(), ClientOptions{
		Username:  "user",
		AccessKey: "key",
		UserAgent: "cyreport/test",
		BaseURL:   srv.URL,
		AppURL:    "https://app.example.com",
	})
}

func TestHTTPClient_CreateJob(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/testcomposer/reports", r.URL.Path)
		assert.Equal(t, "cyreport/test", r.Header.Get("User-Agent"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "user", user)
		assert.Equal(t, "key", pass)

		var req JobRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "my suite", req.Name)
		assert.Equal(t, "cypress", req.Framework)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ID": "job-1"}`))
	}))

	job, err := c.CreateJob(context.Background(), JobRequest{Name: "my suite", Framework: Framework})
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, "https://app.example.com/tests/job-1", job.URL)
}

func TestHTTPClient_CreateJobIsAttemptedOnce(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))

	_, err := c.CreateJob(context.Background(), JobRequest{Name: "my suite"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
	require.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_Timeout(t *testing.T) {
	c := NewHTTPClient(zerolog.Nop(), ClientOptions{})
	assert.Equal(t, DefaultTimeout, c.client.HTTPClient.Timeout)

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c = NewHTTPClient(zerolog.Nop(), ClientOptions{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.CreateJob(context.Background(), JobRequest{Name: "my suite"})
	require.Error(t, err)
}

func TestHTTPClient_CreateJobWithoutID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))

	_, err := c.CreateJob(context.Background(), JobRequest{Name: "my suite"})
	require.Error(t, err)
}

func TestHTTPClient_UploadAssets(t *testing.T) {
	dir := t.TempDir()
	junitPath := filepath.Join(dir, "junit.xml")
	videoPath := filepath.Join(dir, "video.mp4")
	require.NoError(t, os.WriteFile(junitPath, []byte("<testsuites/>"), 0644))
	require.NoError(t, os.WriteFile(videoPath, []byte("frames"), 0644))

	got := map[string]string{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v2/testcomposer/jobs/job-1/assets", r.URL.Path)

		reader, err := r.MultipartReader()
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, "files", part.FormName())
			data, _ := io.ReadAll(part)
			got[part.FileName()] = string(data)
		}
		_, _ = w.Write([]byte(`{"uploaded": ["junit.xml"], "errors": ["video.mp4: unsupported"]}`))
	}))

	res, err := c.UploadAssets(context.Background(), "job-1", []string{junitPath, videoPath})
	require.NoError(t, err)
	require.Equal(t, []string{"junit.xml"}, res.Uploaded)
	require.Equal(t, []string{"video.mp4: unsupported"}, res.Errors)
	require.Equal(t, map[string]string{"junit.xml": "<testsuites/>", "video.mp4": "frames"}, got)
}

func TestHTTPClient_UpdateJobStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/rest/v1/user/jobs/job-1", r.URL.Path)

		var status JobStatus
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&status))
		assert.True(t, status.Passed)
		_, _ = w.Write([]byte(`{}`))
	}))

	require.NoError(t, c.UpdateJobStatus(context.Background(), "job-1", JobStatus{Passed: true}))
}
