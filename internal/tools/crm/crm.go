// Package crm exposes one HubSpot connection to an agent as a tool that creates contacts,
// updates lead status and searches contacts by email.
package crm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/toolalias"
	"github.com/pysugar/agent-nexus/internal/tools"
)

const (
	ActionCreateContact  = "create_contact"
	ActionUpdateLead     = "update_lead"
	ActionSearchContacts = "search_contacts"

	maxSearchResults = 10
	contactURLPrefix = "https://app.hubspot.com/contacts/contact/"
)

// Statuses are the lifecycle stages update_lead accepts.
var Statuses = []string{"lead", "marketingqualifiedlead", "salesqualifiedlead", "opportunity", "customer"}

// TokenSource yields a connection whose access token is valid right now.
type TokenSource interface {
	EnsureValidToken(ctx context.Context, connectionID string, provider models.Provider) (*models.Connection, error)
}

// Binding ties the tool to one connection under its frozen alias.
type Binding struct {
	ConnectionID string
	DisplayName  string
	Alias        string
}

// Options configures how the tool reaches HubSpot.
type Options struct {
	Tokens TokenSource
	// BaseURL overrides DefaultBaseURL.
	BaseURL    string
	HTTPClient *http.Client
}

type Input struct {
	Action     string   `json:"action" jsonschema:"required,enum=create_contact,enum=update_lead,enum=search_contacts,description=CRM operation to run"`
	Email      string   `json:"email" jsonschema:"required,format=email,description=Contact email address"`
	FirstName  string   `json:"firstName,omitempty" jsonschema:"description=First name (required for create_contact)"`
	LastName   string   `json:"lastName,omitempty"`
	Company    string   `json:"company,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Status     string   `json:"status,omitempty" jsonschema:"enum=lead,enum=marketingqualifiedlead,enum=salesqualifiedlead,enum=opportunity,enum=customer,description=Lifecycle stage (required for update_lead)"`
	Notes      string   `json:"notes,omitempty"`
	DealAmount *float64 `json:"dealAmount,omitempty" jsonschema:"exclusiveMinimum=0"`
}

type ContactSummary struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Status  string `json:"status,omitempty"`
}

type Output struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	ContactID  string           `json:"contactId,omitempty"`
	HubSpotURL string           `json:"hubspotUrl,omitempty"`
	Contacts   []ContactSummary `json:"contacts,omitempty"`
}

type crmTool struct {
	binding Binding
	opts    Options
}

// New builds the CRM tool for b.
func New(b Binding, opts Options) (tools.Tool, error) {
	if opts.Tokens == nil {
		return nil, errors.New("crm tool: token source is required")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	ct := &crmTool{binding: b, opts: opts}
	return tools.New(tools.Config{
		Name:        b.Alias,
		Description: toolalias.ToolDescription(models.ProviderHubSpot, b.DisplayName),
		Provider:    string(models.ProviderHubSpot),
	}, ct.run)
}

func (c *crmTool) run(ctx context.Context, in Input) (Output, error) {
	in.Action = strings.TrimSpace(in.Action)
	in.Email = strings.TrimSpace(in.Email)
	if err := validate(in); err != nil {
		return Output{}, err
	}

	conn, err := c.opts.Tokens.EnsureValidToken(ctx, c.binding.ConnectionID, models.ProviderHubSpot)
	if err != nil {
		return Output{}, err
	}
	client := &hubspotClient{http: c.opts.HTTPClient, baseURL: c.opts.BaseURL, accessToken: conn.AccessToken}

	switch in.Action {
	case ActionCreateContact:
		return c.createContact(ctx, client, in)
	case ActionUpdateLead:
		return c.updateLead(ctx, client, in)
	default:
		return c.searchContacts(ctx, client, in)
	}
}

func validate(in Input) error {
	switch in.Action {
	case ActionCreateContact, ActionUpdateLead, ActionSearchContacts:
	default:
		return apperr.Invalid("action", "unknown action %q", in.Action)
	}
	if !tools.ValidEmail(in.Email) {
		return apperr.Invalid("email", "valid email address required")
	}
	if in.Status != "" && !validStatus(in.Status) {
		return apperr.Invalid("status", "must be one of %s", strings.Join(Statuses, ", "))
	}
	if in.DealAmount != nil && *in.DealAmount <= 0 {
		return apperr.Invalid("dealAmount", "must be positive")
	}
	switch in.Action {
	case ActionCreateContact:
		if strings.TrimSpace(in.FirstName) == "" {
			return apperr.Invalid("firstName", "first name is required for creating contacts")
		}
	case ActionUpdateLead:
		if in.Status == "" {
			return apperr.Invalid("status", "status is required for updating leads")
		}
	}
	return nil
}

func validStatus(s string) bool {
	for _, status := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (c *crmTool) createContact(ctx context.Context, client *hubspotClient, in Input) (Output, error) {
	status := in.Status
	if status == "" {
		status = "lead"
	}
	props := map[string]string{
		"email":          in.Email,
		"firstname":      in.FirstName,
		"lastname":       in.LastName,
		"company":        in.Company,
		"phone":          in.Phone,
		"lifecyclestage": status,
	}

	created, err := client.createContact(ctx, props)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.contactExists() {
			return Output{}, &apperr.ProviderError{
				Provider:  string(models.ProviderHubSpot),
				Operation: ActionCreateContact,
				Message:   fmt.Sprintf("Contact with email %s already exists in %s", in.Email, c.binding.DisplayName),
				Err:       err,
			}
		}
		return Output{}, providerError(ActionCreateContact, err)
	}

	name := strings.TrimSpace(in.FirstName + " " + in.LastName)
	return Output{
		Success:    true,
		ContactID:  created.ID,
		HubSpotURL: contactURLPrefix + created.ID,
		Message:    fmt.Sprintf("Created contact for %s in %s", name, c.binding.DisplayName),
	}, nil
}

func (c *crmTool) updateLead(ctx context.Context, client *hubspotClient, in Input) (Output, error) {
	found, err := client.searchByEmail(ctx, "EQ", in.Email, 1, nil)
	if err != nil {
		return Output{}, providerError(ActionUpdateLead, err)
	}
	if len(found.Results) == 0 {
		return Output{}, fmt.Errorf("contact with email %s in %s: %w", in.Email, c.binding.DisplayName, apperr.ErrNotFound)
	}

	id := found.Results[0].ID
	if _, err := client.updateContact(ctx, id, map[string]string{"lifecyclestage": in.Status}); err != nil {
		return Output{}, providerError(ActionUpdateLead, err)
	}
	return Output{
		Success:    true,
		ContactID:  id,
		HubSpotURL: contactURLPrefix + id,
		Message:    fmt.Sprintf("Updated %s status to %s in %s", in.Email, in.Status, c.binding.DisplayName),
	}, nil
}

func (c *crmTool) searchContacts(ctx context.Context, client *hubspotClient, in Input) (Output, error) {
	found, err := client.searchByEmail(ctx, "CONTAINS_TOKEN", in.Email, maxSearchResults,
		[]string{"firstname", "lastname", "email", "company", "lifecyclestage"})
	if err != nil {
		return Output{}, providerError(ActionSearchContacts, err)
	}

	contacts := make([]ContactSummary, 0, len(found.Results))
	for _, r := range found.Results {
		p := r.Properties
		contacts = append(contacts, ContactSummary{
			ID:      r.ID,
			Email:   p["email"],
			Name:    strings.TrimSpace(p["firstname"] + " " + p["lastname"]),
			Company: p["company"],
			Status:  p["lifecyclestage"],
		})
	}
	return Output{
		Success:  true,
		Message:  fmt.Sprintf("Found %d contacts in %s", len(contacts), c.binding.DisplayName),
		Contacts: contacts,
	}, nil
}

func providerError(action string, err error) error {
	pe := apperr.ProviderFailed(string(models.ProviderHubSpot), action, err).(*apperr.ProviderError)
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		pe.Message = apiErr.Message
	}
	return pe
}
