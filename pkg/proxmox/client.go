package proxmox

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/proxforge/proxforge/pkg/inventory"
)

// Client is an HTTP client for the Proxmox VE REST API.
type Client struct {
	baseURL    string
	node       string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger

	// PollInterval and PollAttempts bound the ISO availability poll.
	PollInterval time.Duration
	PollAttempts int
}

// NewClient creates a client from the inventory's proxmox block.
// Token format: "PVEAPIToken=user@realm!tokenid=secret", or the bare
// "user@realm!tokenid=secret" form which gets the prefix added.
func NewClient(cfg inventory.ProxmoxConfig) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
	}
	token := cfg.TokenID + "=" + cfg.Secret
	if !strings.HasPrefix(token, "PVEAPIToken=") {
		token = "PVEAPIToken=" + token
	}
	return &Client{
		baseURL:      strings.TrimSuffix(cfg.Endpoint, "/") + "/api2/json",
		node:         cfg.Node,
		token:        token,
		httpClient:   &http.Client{Transport: transport, Timeout: 60 * time.Second},
		logger:       log.With().Str("component", "proxmox").Logger(),
		PollInterval: 5 * time.Second,
		PollAttempts: 60,
	}
}

// StorageContent is one entry of a storage pool's content listing.
type StorageContent struct {
	Volid  string `json:"volid"`
	Format string `json:"format"`
	Size   int64  `json:"size"`
}

// VMInfo is the subset of a guest's current status the workflows read.
type VMInfo struct {
	VMID     int     `json:"vmid"`
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	Template IntBool `json:"template"`
}

// IntBool decodes the 0/1 booleans the Proxmox API uses.
type IntBool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *IntBool) UnmarshalJSON(raw []byte) error {
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		*b = IntBool(v)
		return nil
	}
	*b = n != 0
	return nil
}

// CheckISO reports whether the named ISO exists on the storage pool.
func (c *Client) CheckISO(ctx context.Context, storage, isoName string) (bool, error) {
	path := fmt.Sprintf("/nodes/%s/storage/%s/content?content=iso", c.node, storage)
	var contents []StorageContent
	if err := c.get(ctx, path, &contents); err != nil {
		return false, err
	}
	for _, entry := range contents {
		if strings.HasSuffix(entry.Volid, "/"+isoName) {
			return true, nil
		}
	}
	return false, nil
}

// DownloadISO asks the node to fetch an ISO from a URL onto the storage
// pool, then polls until the image is listed. The poll is a fixed-interval,
// bounded loop; if the image never appears the download counts as failed.
func (c *Client) DownloadISO(ctx context.Context, storage, isoName, sourceURL string) error {
	exists, err := c.CheckISO(ctx, storage, isoName)
	if err != nil {
		return err
	}
	if exists {
		c.logger.Debug().Str("iso", isoName).Msg("iso already on storage")
		return nil
	}

	params := url.Values{}
	params.Set("content", "iso")
	params.Set("filename", isoName)
	params.Set("url", sourceURL)
	path := fmt.Sprintf("/nodes/%s/storage/%s/download-url", c.node, storage)
	if _, err := c.post(ctx, path, params); err != nil {
		return fmt.Errorf("start iso download: %w", err)
	}

	c.logger.Info().Str("iso", isoName).Str("url", sourceURL).Msg("iso download started")

	for attempt := 0; attempt < c.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.PollInterval):
		}

		exists, err := c.CheckISO(ctx, storage, isoName)
		if err != nil {
			return err
		}
		if exists {
			c.logger.Info().Str("iso", isoName).Msg("iso available")
			return nil
		}
	}

	return fmt.Errorf("iso %q did not appear on storage %q after %d checks", isoName, storage, c.PollAttempts)
}

// TemplateInfo looks up a guest by VM ID and reports its status. The second
// return is false when no guest with that ID exists.
func (c *Client) TemplateInfo(ctx context.Context, vmid int) (VMInfo, bool, error) {
	var guests []VMInfo
	if err := c.get(ctx, fmt.Sprintf("/nodes/%s/qemu", c.node), &guests); err != nil {
		return VMInfo{}, false, err
	}
	for _, guest := range guests {
		if guest.VMID == vmid {
			return guest, true, nil
		}
	}
	return VMInfo{}, false, nil
}

// DeleteTemplate destroys the guest with the given VM ID. Deleting a guest
// that does not exist is not an error; a rebuild after a manual cleanup
// should not fail on the missing old template.
func (c *Client) DeleteTemplate(ctx context.Context, vmid int) error {
	_, found, err := c.TemplateInfo(ctx, vmid)
	if err != nil {
		return err
	}
	if !found {
		c.logger.Debug().Int("vmid", vmid).Msg("template already gone")
		return nil
	}

	path := fmt.Sprintf("/nodes/%s/qemu/%d", c.node, vmid)
	if err := c.delete(ctx, path); err != nil {
		return fmt.Errorf("delete template %d: %w", vmid, err)
	}
	c.logger.Info().Int("vmid", vmid).Msg("template deleted")
	return nil
}

// get performs a GET request and decodes the "data" field into result.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s: HTTP %d: %s", path, resp.StatusCode, body)
	}

	return decodeData(resp.Body, result)
}

// post performs a POST with a form-encoded body and returns the raw "data"
// value, typically a task UPID.
func (c *Client) post(ctx context.Context, path string, params url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBufferString(params.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("POST %s: HTTP %d: %s", path, resp.StatusCode, body)
	}

	var envelope struct {
		Data any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("POST %s: decode response: %w", path, err)
	}
	return fmt.Sprintf("%v", envelope.Data), nil
}

// delete performs a DELETE request.
func (c *Client) delete(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("DELETE %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("DELETE %s: HTTP %d: %s", path, resp.StatusCode, body)
	}
	return nil
}

// decodeData unwraps the {"data": ...} envelope every Proxmox response uses.
func decodeData(body io.Reader, result any) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response envelope: %w", err)
	}
	if result == nil || len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, result)
}
