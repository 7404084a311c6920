/**
 * @description
 * This package provides a client for the SumSub identity verification REST API.
 * It signs every request with the app token and secret key, and exposes the two
 * calls the kyc-service needs: creating an applicant and reading its review status.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256: Request signing required by SumSub.
 * - net/http, encoding/json: Standard Go libraries.
 *
 * @notes
 * - Signature: hex(HMAC_SHA256(secret, ts + METHOD + path?query + body)) sent in
 *   X-App-Access-Sig alongside X-App-Token and X-App-Access-Ts.
 * - Creating an applicant that already exists for the external user id returns
 *   409; the client then looks the applicant up instead of failing.
 */
package sumsubclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrApplicantNotFound is returned when SumSub has no applicant for a lookup.
var ErrApplicantNotFound = errors.New("sumsub applicant not found")

// Client is a client for interacting with the SumSub API.
type Client struct {
	BaseURL    string
	AppToken   string
	SecretKey  string
	LevelName  string
	httpClient *http.Client
	now        func() time.Time
}

// ReviewResult is the verdict block of an applicant status.
type ReviewResult struct {
	ReviewAnswer     string   `json:"reviewAnswer"`
	RejectLabels     []string `json:"rejectLabels,omitempty"`
	ReviewRejectType string   `json:"reviewRejectType,omitempty"`
}

// ApplicantStatus is the response of GET /resources/applicants/{id}/status.
type ApplicantStatus struct {
	ReviewStatus string        `json:"reviewStatus"`
	ReviewResult *ReviewResult `json:"reviewResult,omitempty"`
}

type applicantResponse struct {
	ID             string `json:"id"`
	ExternalUserID string `json:"externalUserId"`
}

// APIError is a non-2xx response from SumSub.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        int    `json:"code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sumsub api error: status %d code %d: %s", e.StatusCode, e.Code, e.Description)
}

// NewClient creates a new SumSub API client.
func NewClient(baseURL, appToken, secretKey, levelName string) *Client {
	return &Client{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		AppToken:  appToken,
		SecretKey: secretKey,
		LevelName: levelName,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

// CreateApplicant registers externalUserID with SumSub under the configured level and
// returns the SumSub applicant id.
func (c *Client) CreateApplicant(ctx context.Context, externalUserID string) (string, error) {
	path := "/resources/applicants?levelName=" + url.QueryEscape(c.LevelName)
	body, err := json.Marshal(map[string]string{"externalUserId": externalUserID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	var created applicantResponse
	err = c.do(ctx, http.MethodPost, path, body, &created)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
		log.Printf("level=info component=sumsub msg=\"applicant already exists; looking it up\" external_user_id=%s", externalUserID)
		return c.applicantIDByExternalUserID(ctx, externalUserID)
	}
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("sumsub returned an applicant without an id")
	}
	return created.ID, nil
}

func (c *Client) applicantIDByExternalUserID(ctx context.Context, externalUserID string) (string, error) {
	path := "/resources/applicants/-;externalUserId=" + url.PathEscape(externalUserID) + "/one"
	var existing applicantResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &existing); err != nil {
		return "", err
	}
	if existing.ID == "" {
		return "", ErrApplicantNotFound
	}
	return existing.ID, nil
}

// GetApplicantStatus fetches the current review status of an applicant.
func (c *Client) GetApplicantStatus(ctx context.Context, applicantID string) (*ApplicantStatus, error) {
	path := "/resources/applicants/" + url.PathEscape(applicantID) + "/status"
	var status ApplicantStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	c.setHeaders(httpReq, method, path, body)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to SumSub: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrApplicantNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode successful response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, method, path string, body []byte) {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-App-Token", c.AppToken)
	req.Header.Set("X-App-Access-Ts", ts)
	req.Header.Set("X-App-Access-Sig", Sign(c.SecretKey, ts, method, path, body))
}

// Sign computes the X-App-Access-Sig value for a request.
func Sign(secret, ts, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte(strings.ToUpper(method)))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sumsub api error: status %d, failed to read error body: %w", resp.StatusCode, err)
	}

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if jsonErr := json.Unmarshal(bodyBytes, apiErr); jsonErr != nil || apiErr.Description == "" {
		apiErr.Description = strings.TrimSpace(string(bodyBytes))
	}
	return apiErr
}
