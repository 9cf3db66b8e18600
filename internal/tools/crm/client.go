package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/pysugar/agent-nexus/internal/util"
)

// DefaultBaseURL is HubSpot's public API host.
const DefaultBaseURL = "https://api.hubapi.com"

// hubspotClient is a minimal HubSpot CRM v3 contacts client.
type hubspotClient struct {
	http        *http.Client
	baseURL     string
	accessToken string
}

type contact struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type searchFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type filterGroup struct {
	Filters []searchFilter `json:"filters"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit"`
}

type searchResponse struct {
	Total   int       `json:"total"`
	Results []contact `json:"results"`
}

// apiError is HubSpot's error envelope.
type apiError struct {
	StatusCode  int    `json:"-"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	Category    string `json:"category"`
	SubCategory string `json:"subCategory"`
}

func (e *apiError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Category != "" {
		return fmt.Sprintf("%s (%s, HTTP %d)", msg, e.Category, e.StatusCode)
	}
	return fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
}

func (e *apiError) contactExists() bool {
	return e.StatusCode == http.StatusConflict ||
		e.Category == "CONFLICT" ||
		strings.Contains(e.Message, "CONTACT_EXISTS") ||
		strings.Contains(e.SubCategory, "CONTACT_EXISTS")
}

func (c *hubspotClient) createContact(ctx context.Context, props map[string]string) (*contact, error) {
	var out contact
	err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts", map[string]any{"properties": props}, &out)
	return &out, err
}

func (c *hubspotClient) updateContact(ctx context.Context, id string, props map[string]string) (*contact, error) {
	var out contact
	err := c.do(ctx, http.MethodPatch, "/crm/v3/objects/contacts/"+id, map[string]any{"properties": props}, &out)
	return &out, err
}

func (c *hubspotClient) searchByEmail(ctx context.Context, operator, email string, limit int, properties []string) (*searchResponse, error) {
	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []searchFilter{{PropertyName: "email", Operator: operator, Value: email}}}},
		Properties:   properties,
		Limit:        limit,
	}

	var out searchResponse
	err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", req, &out)
	return &out, err
}

func (c *hubspotClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.baseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		log.Printf("⚠️ HubSpot %s %s returned %d: %s", method, path, resp.StatusCode, util.TruncateBytes(data))
		apiErr := &apiError{StatusCode: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = util.TruncateLog(strings.TrimSpace(string(data)), 512)
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
