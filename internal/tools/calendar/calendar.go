// Package calendar exposes one Google Calendar connection to an agent as a tool that books
// meetings, checks free/busy and lists upcoming events.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pysugar/agent-nexus/internal/apperr"
	"github.com/pysugar/agent-nexus/internal/db/models"
	"github.com/pysugar/agent-nexus/internal/toolalias"
	"github.com/pysugar/agent-nexus/internal/tools"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	ActionBookMeeting       = "book_meeting"
	ActionCheckAvailability = "check_availability"
	ActionListEvents        = "list_events"

	MinDuration     = 15
	MaxDuration     = 480
	DefaultDuration = 30

	primaryCalendar = "primary"
	maxListed       = 10
)

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

// Options configures how the tool reaches Google.
type Options struct {
	Tokens TokenSource
	// Endpoint overrides the Calendar API base URL.
	Endpoint string
	// HTTPClient is the base client; its Timeout bounds each call.
	HTTPClient *http.Client
	Now        func() time.Time
}

type Input struct {
	Action        string `json:"action,omitempty" jsonschema:"enum=book_meeting,enum=check_availability,enum=list_events,default=book_meeting,description=What to do on the calendar"`
	Title         string `json:"title,omitempty" jsonschema:"description=Event title (book_meeting)"`
	AttendeeEmail string `json:"attendeeEmail,omitempty" jsonschema:"format=email,description=Attendee email address (book_meeting)"`
	StartTime     string `json:"startTime,omitempty" jsonschema:"format=date-time,description=ISO 8601 start time such as 2024-06-01T15:00:00Z"`
	Duration      *int   `json:"duration,omitempty" jsonschema:"minimum=15,maximum=480,default=30,description=Duration in minutes"`
	Description   string `json:"description,omitempty" jsonschema:"description=Optional event description"`
	MeetingLink   *bool  `json:"meetingLink,omitempty" jsonschema:"default=true,description=Attach a Google Meet link"`
}

type BusyTime struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Event struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Attendees []string `json:"attendees,omitempty"`
}

type Output struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	EventID     string     `json:"eventId,omitempty"`
	EventLink   string     `json:"eventLink,omitempty"`
	MeetingLink string     `json:"meetingLink,omitempty"`
	Available   *bool      `json:"available,omitempty"`
	BusyTimes   []BusyTime `json:"busyTimes,omitzero"`
	Events      []Event    `json:"events,omitempty"`
}

type request struct {
	action      string
	title       string
	attendee    string
	start       time.Time
	duration    time.Duration
	description string
	meetingLink bool
}

type calendarTool struct {
	binding Binding
	opts    Options
}

// New builds the calendar tool for b.
func New(b Binding, opts Options) (tools.Tool, error) {
	if opts.Tokens == nil {
		return nil, errors.New("calendar tool: token source is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	ct := &calendarTool{binding: b, opts: opts}
	return tools.New(tools.Config{
		Name:        b.Alias,
		Description: toolalias.ToolDescription(models.ProviderGoogleCalendar, b.DisplayName),
		Provider:    string(models.ProviderGoogleCalendar),
	}, ct.run)
}

func (c *calendarTool) run(ctx context.Context, in Input) (Output, error) {
	req, err := parse(in)
	if err != nil {
		return Output{}, err
	}

	svc, err := c.service(ctx)
	if err != nil {
		return Output{}, err
	}

	switch req.action {
	case ActionBookMeeting:
		return c.bookMeeting(ctx, svc, req)
	case ActionCheckAvailability:
		return c.checkAvailability(ctx, svc, req)
	case ActionListEvents:
		return c.listEvents(ctx, svc)
	}
	return Output{}, apperr.Invalid("action", "unknown action %q", req.action)
}

// parse validates input before any token or provider work happens.
func parse(in Input) (request, error) {
	req := request{
		action:      strings.TrimSpace(in.Action),
		title:       strings.TrimSpace(in.Title),
		attendee:    strings.TrimSpace(in.AttendeeEmail),
		description: in.Description,
		duration:    DefaultDuration * time.Minute,
		meetingLink: true,
	}
	if req.action == "" {
		req.action = ActionBookMeeting
	}
	if in.MeetingLink != nil {
		req.meetingLink = *in.MeetingLink
	}
	if in.Duration != nil {
		if *in.Duration < MinDuration || *in.Duration > MaxDuration {
			return request{}, apperr.Invalid("duration", "must be between %d and %d minutes, got %d", MinDuration, MaxDuration, *in.Duration)
		}
		req.duration = time.Duration(*in.Duration) * time.Minute
	}

	switch req.action {
	case ActionBookMeeting:
		if req.title == "" {
			return request{}, apperr.Invalid("title", "event title is required")
		}
		if !tools.ValidEmail(req.attendee) {
			return request{}, apperr.Invalid("attendeeEmail", "valid email address required")
		}
		start, err := tools.ParseISODateTime("startTime", in.StartTime)
		if err != nil {
			return request{}, err
		}
		req.start = start
	case ActionCheckAvailability:
		start, err := tools.ParseISODateTime("startTime", in.StartTime)
		if err != nil {
			return request{}, err
		}
		req.start = start
	case ActionListEvents:
	default:
		return request{}, apperr.Invalid("action", "unknown action %q", req.action)
	}
	return req, nil
}

func (c *calendarTool) service(ctx context.Context) (*gcal.Service, error) {
	conn, err := c.opts.Tokens.EnsureValidToken(ctx, c.binding.ConnectionID, models.ProviderGoogleCalendar)
	if err != nil {
		return nil, err
	}
	base := context.WithValue(ctx, oauth2.HTTPClient, c.opts.HTTPClient)
	client := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: conn.AccessToken,
		TokenType:   "Bearer",
	}))
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if c.opts.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.opts.Endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}
	return svc, nil
}

func (c *calendarTool) bookMeeting(ctx context.Context, svc *gcal.Service, req request) (Output, error) {
	start := req.start.UTC()
	end := start.Add(req.duration)

	event := &gcal.Event{
		Summary:     req.title,
		Description: req.description,
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: "UTC"},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: "UTC"},
		Attendees:   []*gcal.EventAttendee{{Email: req.attendee}},
	}
	if req.meetingLink {
		event.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             "meet-" + uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
	}
	call := svc.Events.Insert(primaryCalendar, event).Context(ctx)
	if req.meetingLink {
		call = call.ConferenceDataVersion(1)
	}

	created, err := call.Do()
	if err != nil {
		return Output{}, providerError(ActionBookMeeting, err)
	}

	out := Output{
		Success:   true,
		EventID:   created.Id,
		EventLink: created.HtmlLink,
		Message:   fmt.Sprintf("Meeting %q booked on %s for %s", req.title, c.binding.DisplayName, start.Format(time.RFC1123)),
	}
	if req.meetingLink {
		out.MeetingLink = meetingURI(created)
	}
	return out, nil
}

func meetingURI(ev *gcal.Event) string {
	if ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" || ep.EntryPointType == "" {
				return ep.Uri
			}
		}
	}
	return ev.HangoutLink
}

func (c *calendarTool) checkAvailability(ctx context.Context, svc *gcal.Service, req request) (Output, error) {
	start := req.start.UTC()
	resp, err := svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: start.Format(time.RFC3339),
		TimeMax: start.Add(req.duration).Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: primaryCalendar}},
	}).Context(ctx).Do()
	if err != nil {
		return Output{}, providerError(ActionCheckAvailability, err)
	}

	busy := []BusyTime{}
	if cal, ok := resp.Calendars[primaryCalendar]; ok {
		for _, period := range cal.Busy {
			busy = append(busy, BusyTime{Start: period.Start, End: period.End})
		}
	}
	available := len(busy) == 0
	state := "busy"
	if available {
		state = "available"
	}
	return Output{
		Success:   true,
		Message:   fmt.Sprintf("%s is %s at %s", c.binding.DisplayName, state, start.Format(time.RFC1123)),
		Available: &available,
		BusyTimes: busy,
	}, nil
}

func (c *calendarTool) listEvents(ctx context.Context, svc *gcal.Service) (Output, error) {
	resp, err := svc.Events.List(primaryCalendar).
		TimeMin(c.opts.Now().UTC().Format(time.RFC3339)).
		MaxResults(maxListed).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return Output{}, providerError(ActionListEvents, err)
	}

	events := make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev := Event{ID: item.Id, Title: item.Summary, Start: when(item.Start), End: when(item.End)}
		for _, a := range item.Attendees {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
		events = append(events, ev)
	}
	return Output{
		Success: true,
		Message: fmt.Sprintf("Found %d upcoming events on %s", len(events), c.binding.DisplayName),
		Events:  events,
	}, nil
}

// when prefers the timed value and falls back to the all-day date.
func when(dt *gcal.EventDateTime) string {
	if dt == nil {
		return ""
	}
	if dt.DateTime != "" {
		return dt.DateTime
	}
	return dt.Date
}

func providerError(action string, err error) error {
	pe := apperr.ProviderFailed(string(models.ProviderGoogleCalendar), action, err).(*apperr.ProviderError)
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		pe.Message = gerr.Message
	}
	return pe
}
