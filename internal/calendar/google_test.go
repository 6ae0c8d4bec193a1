package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"
)

type recordedRequest struct {
	method string
	path   string
}

// newStubGateway points the Google client at a local stub server so tests
// can observe which calendar each call addresses.
func newStubGateway(t *testing.T, calendarID string, respond func(w http.ResponseWriter, r *http.Request)) (*GoogleGateway, *[]recordedRequest) {
	t.Helper()

	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path})
		w.Header().Set("Content-Type", "application/json")
		respond(w, r)
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	gw, err := NewGoogleGateway(context.Background(), nil, calendarID, logger,
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL),
	)
	if err != nil {
		t.Fatalf("gateway init: %v", err)
	}
	return gw, &requests
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestGateway_AllCallsAddressConfiguredCalendar(t *testing.T) {
	const calendarID = "team-cal"
	day := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)

	gw, requests := newStubGateway(t, calendarID, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "freeBusy"):
			fmt.Fprintf(w, `{"calendars":{"%s":{"busy":[]}}}`, calendarID)
		case r.Method == http.MethodPost:
			fmt.Fprint(w, `{"id":"ext-1"}`)
		default:
			fmt.Fprint(w, `{"items":[]}`)
		}
	})

	if _, err := gw.ListEvents(context.Background(), day, day.AddDate(0, 0, 1), "UTC"); err != nil {
		t.Fatalf("list events: %v", err)
	}
	if _, err := gw.ListBusyIntervals(context.Background(), day, "UTC", ""); err != nil {
		t.Fatalf("list busy intervals: %v", err)
	}
	id, err := gw.CreateEvent(context.Background(), EventDetails{
		Title:         "Intro Call",
		Start:         day.Add(10 * time.Hour),
		End:           day.Add(11 * time.Hour),
		AttendeeName:  "Ada Lovelace",
		AttendeeEmail: "ada@example.com",
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if id != "ext-1" {
		t.Fatalf("external id = %q, want ext-1", id)
	}

	if len(*requests) != 3 {
		t.Fatalf("expected 3 API calls, got %d", len(*requests))
	}
	for _, req := range *requests {
		if strings.Contains(req.path, "freeBusy") {
			continue // free/busy names the calendar in the request body
		}
		if !strings.Contains(req.path, "/calendars/"+calendarID+"/") {
			t.Errorf("%s %s does not address calendar %q", req.method, req.path, calendarID)
		}
	}
	if strings.Contains((*requests)[2].path, DefaultCalendarID) {
		t.Errorf("event insert went to the default calendar: %s", (*requests)[2].path)
	}
}

func TestGateway_EmptyIDFallsBackToPrimary(t *testing.T) {
	gw, requests := newStubGateway(t, "", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[]}`)
	})

	day := time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC)
	if _, err := gw.ListEvents(context.Background(), day, day.AddDate(0, 0, 1), "UTC"); err != nil {
		t.Fatalf("list events: %v", err)
	}
	if !strings.Contains((*requests)[0].path, "/calendars/"+DefaultCalendarID+"/") {
		t.Fatalf("empty id must address %q, got %s", DefaultCalendarID, (*requests)[0].path)
	}
}
