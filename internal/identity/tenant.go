package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TenantClient pushes tenant-level changes back to the identity
// platform, which owns the canonical tenant record.
type TenantClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewTenantClient(baseURL, apiKey string) *TenantClient {
	return &TenantClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// UpdateTenant renames the tenant on the platform side. Callers invoke
// this after the local write succeeded, so a failure here leaves the two
// systems out of sync and must be surfaced, not swallowed.
func (c *TenantClient) UpdateTenant(ctx context.Context, tenantID, name string) error {
	body, err := json.Marshal(map[string]any{"name": name})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v01/tenants/%s", c.baseURL, tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tenant update returned %s", resp.Status)
	}
	return nil
}
