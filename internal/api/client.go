package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"carevault/internal/models"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	uploadHTTPTimeout  = 5 * time.Minute
	httpTimeoutEnvKey  = "CAREVAULT_HTTP_TIMEOUT"
	apiTokenEnvKey     = "CAREVAULT_API_TOKEN"
	adminTokenEnvKey   = "CAREVAULT_ADMIN_TOKEN"
)

// Client is a simple HTTP client for the carevault API.
type Client struct {
	baseURL    string
	http       *http.Client
	upload     *http.Client
	authToken  string
	adminToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		upload:     &http.Client{Timeout: uploadHTTPTimeout},
		authToken:  strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/v1/info", nil, nil, &resp)
	return resp, err
}

func (c *Client) CreatePatient(ctx context.Context, req PatientCreateRequest) (models.Patient, error) {
	var resp models.Patient
	err := c.do(ctx, http.MethodPost, "/v1/patients", nil, req, &resp)
	return resp, err
}

func (c *Client) GetPatient(ctx context.Context, patientID string) (models.Patient, error) {
	var resp models.Patient
	err := c.do(ctx, http.MethodGet, patientPath(patientID), nil, nil, &resp)
	return resp, err
}

func (c *Client) ListPatients(ctx context.Context) ([]models.Patient, error) {
	var resp []models.Patient
	err := c.do(ctx, http.MethodGet, "/v1/patients", nil, nil, &resp)
	return resp, err
}

func (c *Client) UpdatePatient(ctx context.Context, patientID string, req PatientUpdateRequest) (models.Patient, error) {
	var resp models.Patient
	err := c.do(ctx, http.MethodPatch, patientPath(patientID), nil, req, &resp)
	return resp, err
}

func (c *Client) DeletePatient(ctx context.Context, patientID string) (DeleteResponse, error) {
	var resp DeleteResponse
	err := c.do(ctx, http.MethodDelete, patientPath(patientID), nil, nil, &resp)
	return resp, err
}

func (c *Client) CreateEpisode(ctx context.Context, patientID string, req EpisodeCreateRequest) (models.Episode, error) {
	var resp models.Episode
	err := c.do(ctx, http.MethodPost, patientPath(patientID)+"/episodes", nil, req, &resp)
	return resp, err
}

func (c *Client) GetEpisode(ctx context.Context, patientID, episodeID string) (models.Episode, error) {
	var resp models.Episode
	err := c.do(ctx, http.MethodGet, episodePath(patientID, episodeID), nil, nil, &resp)
	return resp, err
}

func (c *Client) ListEpisodes(ctx context.Context, patientID string) ([]models.Episode, error) {
	var resp []models.Episode
	err := c.do(ctx, http.MethodGet, patientPath(patientID)+"/episodes", nil, nil, &resp)
	return resp, err
}

func (c *Client) CreateStage(ctx context.Context, patientID, episodeID string, req StageCreateRequest) (models.Stage, error) {
	var resp models.Stage
	err := c.do(ctx, http.MethodPost, episodePath(patientID, episodeID)+"/stages", nil, req, &resp)
	return resp, err
}

func (c *Client) ListStages(ctx context.Context, patientID, episodeID string) ([]models.Stage, error) {
	var resp []models.Stage
	err := c.do(ctx, http.MethodGet, episodePath(patientID, episodeID)+"/stages", nil, nil, &resp)
	return resp, err
}

// UploadFile streams file content to a stage as a multipart upload.
func (c *Client) UploadFile(ctx context.Context, point models.AttachmentPoint, fileName, contentType string, content io.Reader) (FileResponse, error) {
	var resp FileResponse

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("content", fileName)
	if err != nil {
		return resp, err
	}
	if _, err := io.Copy(part, content); err != nil {
		return resp, err
	}
	if contentType != "" {
		if err := form.WriteField("content_type", contentType); err != nil {
			return resp, err
		}
	}
	if err := form.Close(); err != nil {
		return resp, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+stagePath(point)+"/files", body)
	if err != nil {
		return resp, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	c.setAuthHeader(req)

	httpResp, err := c.upload.Do(req)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

// UploadFileBase64 uploads base64 text content as JSON.
func (c *Client) UploadFileBase64(ctx context.Context, point models.AttachmentPoint, req FileUploadBase64Request) (FileResponse, error) {
	var resp FileResponse
	err := c.do(ctx, http.MethodPost, stagePath(point)+"/files/base64", nil, req, &resp)
	return resp, err
}

func (c *Client) GetFile(ctx context.Context, point models.AttachmentPoint, fileID string) (FileResponse, error) {
	var resp FileResponse
	err := c.do(ctx, http.MethodGet, filePath(point, fileID), nil, nil, &resp)
	return resp, err
}

// DownloadFile streams file content to a writer and returns the served
// content type.
func (c *Client) DownloadFile(ctx context.Context, point models.AttachmentPoint, fileID string, w io.Writer) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+filePath(point, fileID)+"/content", nil)
	if err != nil {
		return "", err
	}
	c.setAuthHeader(req)

	resp, err := c.upload.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", err
	}
	return resp.Header.Get("Content-Type"), nil
}

func (c *Client) DeleteFile(ctx context.Context, point models.AttachmentPoint, fileID string) (DeleteResponse, error) {
	var resp DeleteResponse
	err := c.do(ctx, http.MethodDelete, filePath(point, fileID), nil, nil, &resp)
	return resp, err
}

func (c *Client) ListStageFiles(ctx context.Context, point models.AttachmentPoint) ([]FileResponse, error) {
	var resp []FileResponse
	err := c.do(ctx, http.MethodGet, stagePath(point)+"/files", nil, nil, &resp)
	return resp, err
}

func (c *Client) ListPatientFiles(ctx context.Context, patientID string) ([]FileResponse, error) {
	var resp []FileResponse
	err := c.do(ctx, http.MethodGet, patientPath(patientID)+"/files", nil, nil, &resp)
	return resp, err
}

// Sweep triggers an orphaned object sweep. Non-dry-run requires confirm.
func (c *Client) Sweep(ctx context.Context, req SweepRequest, confirm bool) (SweepResponse, error) {
	var resp SweepResponse
	payload, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/admin/sweep", bytes.NewReader(payload))
	if err != nil {
		return resp, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if confirm {
		httpReq.Header.Set("X-Confirm", "true")
	}
	c.setAuthHeader(httpReq)
	c.setAdminHeader(httpReq)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeader(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

func (c *Client) setAdminHeader(req *http.Request) {
	if c.adminToken == "" {
		return
	}
	req.Header.Set("X-Admin-Token", c.adminToken)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var wire ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&wire); err == nil {
		apiErr.Code = wire.Code
		apiErr.ErrorCode = wire.ErrorCode
		apiErr.Message = wire.Error
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func patientPath(patientID string) string {
	return "/v1/patients/" + url.PathEscape(patientID)
}

func episodePath(patientID, episodeID string) string {
	return patientPath(patientID) + "/episodes/" + url.PathEscape(episodeID)
}

func stagePath(point models.AttachmentPoint) string {
	return episodePath(point.PatientID, point.EpisodeID) + "/stages/" + url.PathEscape(point.StageID)
}

func filePath(point models.AttachmentPoint, fileID string) string {
	return stagePath(point) + "/files/" + url.PathEscape(fileID)
}

func httpTimeoutFromEnv() time.Duration {
	raw := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if raw == "" {
		return defaultHTTPTimeout
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return defaultHTTPTimeout
	}
	return parsed
}
