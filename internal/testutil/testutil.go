// Package testutil provides common test helpers and fixtures for wayfinder tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/ensam-campus/wayfinder/internal/asset"
	"github.com/ensam-campus/wayfinder/internal/catalog"
	"github.com/ensam-campus/wayfinder/internal/models"
	"github.com/ensam-campus/wayfinder/internal/store"
)

// T is the subset of testing.T the helpers need.
type T interface {
	Helper()
	Errorf(format string, args ...interface{})
	Error(args ...interface{})
	Fatalf(format string, args ...interface{})
	Fatal(args ...interface{})
}

// AcceptAll is a prober that finds every asset.
var AcceptAll = asset.ProberFunc(func(context.Context, string) error { return nil })

// GenderedIDs are the gendered indirections used by SamplePaths.
var GenderedIDs = []string{"toilet"}

// SamplePaths returns a small campus catalog: an image route, a video route, a gendered
// pair, a one-step route and a malformed record.
func SamplePaths() []models.PathRecord {
	return []models.PathRecord{
		{ID: "p2a", From: "Entrance", To: "Amphi A", Time: "3 min", Steps: 3, Path: "/img/p2a", Ext: "jpg", Title: "To Amphi A"},
		{ID: "vid1", From: "Library", To: "Lab 3", VideoPath: "/media/vid1.mp4"},
		{ID: "toilet-female", From: "Hall", To: "Toilets (F)", Steps: 2, Path: "/img/tf"},
		{ID: "toilet-male", From: "Hall", To: "Toilets (M)", Steps: 2, Path: "/img/tm"},
		{ID: "single", From: "Hall", To: "Desk", Steps: 1, Path: "/img/single"},
		{ID: "broken", From: "Nowhere"},
	}
}

// NewTestCatalog builds a catalog from SamplePaths.
func NewTestCatalog() *catalog.Catalog {
	return catalog.New(SamplePaths(), catalog.WithGenderedIDs(GenderedIDs))
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// DecodeResult decodes an API envelope and unmarshals its result into target. It returns
// the envelope status.
func DecodeResult(t T, body []byte, target interface{}) string {
	t.Helper()
	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("failed to decode API envelope: %v (body %s)", err, strings.TrimSpace(string(body)))
		return ""
	}
	if target != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, target); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
	}
	return envelope.Status
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// CreateJSONRequest creates an HTTP request with a raw JSON body.
func CreateJSONRequest(t T, method, url, jsonBody string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(jsonBody))
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// SeedJourneys adds a started and an arrived event for each path id.
func SeedJourneys(t T, st store.Store, pathIDs ...string) {
	t.Helper()
	now := int64(1000)
	for i, id := range pathIDs {
		sid := "seed-" + id
		for _, kind := range []models.JourneyKind{models.JourneyStarted, models.JourneyArrived} {
			now++
			e := models.JourneyEvent{SessionID: sid, PathID: id, Kind: kind, Time: now + int64(i)}
			if err := st.AddJourneyEvent(e); err != nil {
				t.Fatalf("failed to add journey event: %v", err)
			}
		}
	}
}

// AssertJourneyCount checks the number of journey events logged for pathID.
func AssertJourneyCount(t T, st store.Store, pathID string, expected int, context string) {
	t.Helper()
	events, err := st.GetJourneyEvents(pathID, 0)
	if err != nil {
		t.Fatalf("%s: failed to get journey events: %v", context, err)
		return
	}
	if len(events) != expected {
		t.Errorf("%s: expected %d journey events, got %d", context, expected, len(events))
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
