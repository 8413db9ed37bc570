package b2

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"protocol-backend/internal/shared/telemetry"
	"protocol-backend/internal/shared/util"
)

const defaultAuthURL = "https://api.backblazeb2.com/b2api/v2/b2_authorize_account"

// Session is the immutable auth state obtained from b2_authorize_account.
type Session struct {
	AuthToken   string
	APIURL      string
	DownloadURL string
}

// Client talks to the Backblaze B2 native API.
type Client struct {
	keyID          string
	applicationKey string
	bucketName     string
	authURL        string
	httpClient     *http.Client

	mu       sync.Mutex
	session  *Session
	bucketID string
}

// NewClient constructs a B2 client. Credentials are validated lazily on first use.
func NewClient(keyID, applicationKey, bucketName string) *Client {
	return &Client{
		keyID:          keyID,
		applicationKey: applicationKey,
		bucketName:     bucketName,
		authURL:        defaultAuthURL,
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
}

// Configured reports whether storage credentials are present.
func (c *Client) Configured() bool {
	return c.keyID != "" && c.applicationKey != "" && c.bucketName != ""
}

// Authenticate returns the cached session, performing the account authorization
// call at most once per process. Safe for concurrent first callers.
func (c *Client) Authenticate(ctx context.Context) (Session, error) {
	if c.keyID == "" || c.applicationKey == "" {
		return Session{}, ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return *c.session, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authURL, nil)
	if err != nil {
		return Session{}, err
	}
	req.SetBasicAuth(c.keyID, c.applicationKey)

	body, err := c.do(req, "authorize_account")
	if err != nil {
		return Session{}, err
	}

	var parsed struct {
		AuthorizationToken string `json:"authorizationToken"`
		APIURL             string `json:"apiUrl"`
		DownloadURL        string `json:"downloadUrl"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Session{}, fmt.Errorf("authorize_account response parse: %w", err)
	}

	c.session = &Session{
		AuthToken:   parsed.AuthorizationToken,
		APIURL:      parsed.APIURL,
		DownloadURL: parsed.DownloadURL,
	}
	telemetry.Info("b2.authenticated", map[string]any{"bucket": c.bucketName})
	return *c.session, nil
}

// Upload stores content under a collision-resistant key and returns the B2
// file id plus the public download URL.
func (c *Client) Upload(ctx context.Context, content []byte, filename, contentType string) (string, string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	session, err := c.Authenticate(ctx)
	if err != nil {
		return "", "", err
	}

	sanitized, err := util.SanitizeFileName(filename)
	if err != nil {
		return "", "", err
	}
	storageKey := storageKeyFor(content, sanitized, time.Now().UTC())

	uploadURL, uploadToken, err := c.uploadTarget(ctx, session)
	if err != nil {
		return "", "", err
	}

	sha1Sum := sha1.Sum(content)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(content))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", uploadToken)
	req.Header.Set("X-Bz-File-Name", storageKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Bz-Content-Sha1", hex.EncodeToString(sha1Sum[:]))
	req.Header.Set("X-Bz-Info-src_filename", sanitized)
	req.ContentLength = int64(len(content))

	body, err := c.do(req, "upload_file")
	if err != nil {
		return "", "", err
	}

	var parsed struct {
		FileID string `json:"fileId"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", fmt.Errorf("upload_file response parse: %w", err)
	}

	publicURL := session.DownloadURL + "/file/" + c.bucketName + "/" + storageKey
	telemetry.Info("b2.uploaded", map[string]any{
		"file_id":     parsed.FileID,
		"storage_key": storageKey,
		"size_bytes":  len(content),
	})
	return parsed.FileID, publicURL, nil
}

// Delete removes a previously uploaded object. Best-effort capability; not
// part of the analyze flow.
func (c *Client) Delete(ctx context.Context, fileID, fileName string) error {
	session, err := c.Authenticate(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{
		"fileId":   fileID,
		"fileName": fileName,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, session.APIURL+"/b2api/v2/b2_delete_file_version", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", session.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.do(req, "delete_file_version"); err != nil {
		return err
	}
	telemetry.Info("b2.deleted", map[string]any{"file_id": fileID})
	return nil
}

// resolveBucketID looks up and caches the bucket id for the configured bucket name.
func (c *Client) resolveBucketID(ctx context.Context, session Session) (string, error) {
	c.mu.Lock()
	cached := c.bucketID
	c.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	payload, err := json.Marshal(map[string]string{
		"accountId":  c.keyID,
		"bucketName": c.bucketName,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, session.APIURL+"/b2api/v2/b2_list_buckets", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", session.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "list_buckets")
	if err != nil {
		return "", err
	}

	var parsed struct {
		Buckets []struct {
			BucketID string `json:"bucketId"`
		} `json:"buckets"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("list_buckets response parse: %w", err)
	}
	if len(parsed.Buckets) == 0 {
		return "", fmt.Errorf("bucket %q: %w", c.bucketName, ErrBucketNotFound)
	}

	c.mu.Lock()
	c.bucketID = parsed.Buckets[0].BucketID
	c.mu.Unlock()
	return parsed.Buckets[0].BucketID, nil
}

// uploadTarget requests a short-lived upload URL and token scoped to the bucket.
func (c *Client) uploadTarget(ctx context.Context, session Session) (string, string, error) {
	bucketID, err := c.resolveBucketID(ctx, session)
	if err != nil {
		return "", "", err
	}

	payload, err := json.Marshal(map[string]string{"bucketId": bucketID})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, session.APIURL+"/b2api/v2/b2_get_upload_url", bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", session.AuthToken)
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "get_upload_url")
	if err != nil {
		return "", "", err
	}

	var parsed struct {
		UploadURL          string `json:"uploadUrl"`
		AuthorizationToken string `json:"authorizationToken"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", "", fmt.Errorf("get_upload_url response parse: %w", err)
	}
	return parsed.UploadURL, parsed.AuthorizationToken, nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("b2 %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("b2 %s read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// storageKeyFor builds a timestamp_hash_filename key. The md5 fragment keeps
// same-second uploads of different content apart.
func storageKeyFor(content []byte, sanitized string, now time.Time) string {
	sum := md5.Sum(content)
	return fmt.Sprintf("%s_%s_%s", now.Format("20060102_150405"), hex.EncodeToString(sum[:])[:8], sanitized)
}
