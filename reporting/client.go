package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/cyreport/cyreport/model"
)

// DefaultRegion of the reporting service.
const DefaultRegion = "us-west-1"

// DefaultTimeout bounds a single request, asset uploads included.
const DefaultTimeout = 5 * time.Minute

// APIBaseURL returns the API endpoint of region.
func APIBaseURL(region string) string {
	if region == "" {
		region = DefaultRegion
	}
	return fmt.Sprintf("https://api.%s.saucelabs.com", region)
}

// AppBaseURL returns the web app endpoint of region.
func AppBaseURL(region string) string {
	if region == "" || region == DefaultRegion {
		return "https://app.saucelabs.com"
	}
	return fmt.Sprintf("https://app.%s.saucelabs.com", region)
}

// ClientOptions configure an HTTPClient.
type ClientOptions struct {
	Region    string
	Username  string
	AccessKey string
	UserAgent string
	// Timeout of a single request. Zero means DefaultTimeout.
	Timeout time.Duration
	// BaseURL and AppURL override the endpoints derived from Region.
	BaseURL string
	AppURL  string
}

// HTTPClient talks to the reporting service over HTTPS. Every request is
// attempted once.
type HTTPClient struct {
	logger  zerolog.Logger
	opts    ClientOptions
	baseURL string
	appURL  string
	client  *retryablehttp.Client
}

var _ JobService = (*HTTPClient)(nil)

// NewHTTPClient returns a client for the given options.
func NewHTTPClient(logger zerolog.Logger, opts ClientOptions) *HTTPClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = APIBaseURL(opts.Region)
	}
	appURL := opts.AppURL
	if appURL == "" {
		appURL = AppBaseURL(opts.Region)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = adapter{logger: logger}
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.HTTPClient.Timeout = opts.Timeout
	if retryClient.HTTPClient.Timeout == 0 {
		retryClient.HTTPClient.Timeout = DefaultTimeout
	}

	return &HTTPClient{
		logger:  logger,
		opts:    opts,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		appURL:  strings.TrimSuffix(appURL, "/"),
		client:  retryClient,
	}
}

// CreateJob registers a job and returns its id and details page URL.
func (c *HTTPClient) CreateJob(ctx context.Context, jobReq JobRequest) (*model.Job, error) {
	body, err := json.Marshal(jobReq)
	if err != nil {
		return nil, fmt.Errorf("could not marshal job request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/v2/testcomposer/reports", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("create job failed: %w", err)
	}

	id := gjson.GetBytes(data, "ID").String()
	if id == "" {
		return nil, fmt.Errorf("create job failed: response carries no job id: %s", data)
	}
	return &model.Job{
		ID:  id,
		URL: fmt.Sprintf("%s/tests/%s", c.appURL, id),
	}, nil
}

// UploadAssets uploads files as one multipart request. Files are streamed
// from disk.
func (c *HTTPClient) UploadAssets(ctx context.Context, jobID string, files []string) (*UploadResult, error) {
	// The body is produced more than once, so every multipart writer has to
	// share the boundary announced in the header.
	boundary := multipart.NewWriter(io.Discard).Boundary()
	body := func() (io.Reader, error) {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		if err := mw.SetBoundary(boundary); err != nil {
			return nil, err
		}
		go func() {
			pw.CloseWithError(writeAssets(mw, files))
		}()
		return pr, nil
	}

	req, err := c.newRequest(ctx, http.MethodPut, fmt.Sprintf("%s/v2/testcomposer/jobs/%s/assets", c.baseURL, jobID), retryablehttp.ReaderFunc(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	res := &UploadResult{}
	if err := json.Unmarshal(data, res); err != nil {
		return nil, fmt.Errorf("could not parse upload response: %w", err)
	}
	return res, nil
}

func writeAssets(mw *multipart.Writer, files []string) error {
	for _, file := range files {
		if err := writeAsset(mw, file); err != nil {
			return err
		}
	}
	return mw.Close()
}

func writeAsset(mw *multipart.Writer, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := mw.CreateFormFile("files", filepath.Base(file))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

// UpdateJobStatus marks the job passed or failed.
func (c *HTTPClient) UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error {
	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("could not marshal job status: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPut, fmt.Sprintf("%s/rest/v1/%s/jobs/%s", c.baseURL, c.opts.Username, jobID), body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

func (c *HTTPClient) newRequest(ctx context.Context, method, url string, body interface{}) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.SetBasicAuth(c.opts.Username, c.opts.AccessKey)
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	return req, nil
}

func (c *HTTPClient) do(req *retryablehttp.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request to %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("got unexpected http %d status code: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, nil
}

// adapter routes retryablehttp's logging into zerolog.
type adapter struct {
	logger zerolog.Logger
}

func (a adapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (a adapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info().Fields(keysAndValues).Msg(msg)
}

func (a adapter) Debug(msg string, keysAndValues ...interface{}) {
	a.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (a adapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn().Fields(keysAndValues).Msg(msg)
}

var _ retryablehttp.LeveledLogger = adapter{}
