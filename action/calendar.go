package action

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
)

// DefaultMeetingDuration is the length of scheduled meetings.
const DefaultMeetingDuration = time.Hour

// Meeting is the event created by CalendarHandler.
type Meeting struct {
	Title          string    `slot:"title"`
	RecipientEmail string    `slot:"recipient_email"`
	StartTime      time.Time `slot:"start_time"`
}

// CalendarHandler creates a Google Calendar event on the user's primary
// calendar and invites the recipient. Attendees get an email reminder one
// day before and a popup ten minutes before.
type CalendarHandler struct {
	svc      *calendar.Service
	duration time.Duration
	timeZone string
}

// CalendarOption configures a CalendarHandler.
type CalendarOption func(*CalendarHandler)

// WithMeetingDuration overrides DefaultMeetingDuration.
func WithMeetingDuration(d time.Duration) CalendarOption {
	return func(h *CalendarHandler) {
		if d > 0 {
			h.duration = d
		}
	}
}

// WithTimeZone sets the IANA time zone recorded on events.
func WithTimeZone(tz string) CalendarOption {
	return func(h *CalendarHandler) {
		h.timeZone = tz
	}
}

// NewCalendarHandler returns a handler creating events through svc.
func NewCalendarHandler(svc *calendar.Service, opts ...CalendarOption) *CalendarHandler {
	h := &CalendarHandler{svc: svc, duration: DefaultMeetingDuration}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Execute implements Handler.
func (h *CalendarHandler) Execute(ctx context.Context, name string, slots map[string]any) (Result, error) {
	var m Meeting
	if err := decodeSlots(slots, &m); err != nil {
		return Result{}, err
	}
	if err := requireSlots(
		[2]string{"title", m.Title},
		[2]string{"recipient_email", m.RecipientEmail},
	); err != nil {
		return Result{}, err
	}
	if m.StartTime.IsZero() {
		return Result{}, fmt.Errorf("%w: start_time", ErrMissingSlot)
	}

	event := h.buildEvent(m)
	created, err := h.svc.Events.Insert("primary", event).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return Result{}, fmt.Errorf("calendar insert: %w", err)
	}

	return Result{
		Action:  name,
		Success: true,
		Detail: fmt.Sprintf("Your meeting %q with %s on %s has been scheduled.",
			m.Title, m.RecipientEmail, m.StartTime.Format("Mon 2 Jan 2006 15:04 MST")),
		Payload: map[string]any{
			"event_id":   created.Id,
			"html_link":  created.HtmlLink,
			"start_time": m.StartTime.Format(time.RFC3339),
		},
	}, nil
}

func (h *CalendarHandler) buildEvent(m Meeting) *calendar.Event {
	end := m.StartTime.Add(h.duration)
	return &calendar.Event{
		Summary: m.Title,
		Start: &calendar.EventDateTime{
			DateTime: m.StartTime.Format(time.RFC3339),
			TimeZone: h.timeZone,
		},
		End: &calendar.EventDateTime{
			DateTime: end.Format(time.RFC3339),
			TimeZone: h.timeZone,
		},
		Attendees: []*calendar.EventAttendee{{Email: m.RecipientEmail}},
		Reminders: &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 10},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
}
