// Package testutil provides programmable fakes shared by the merge-ready package tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// MockHTTPDoer implements github.HTTPDoer for testing.
// Responses are configured per method and URL; unknown requests get a 404.
type MockHTTPDoer struct {
	responses map[string][]cannedResponse
	errors    map[string]error
	calls     []HTTPCall
	mu        sync.Mutex
}

type cannedResponse struct {
	header http.Header
	body   []byte
	status int
}

// HTTPCall records a single HTTP call.
type HTTPCall struct {
	Header http.Header
	Method string
	URL    string
	Body   []byte
}

// NewMockHTTPDoer creates a new MockHTTPDoer.
func NewMockHTTPDoer() *MockHTTPDoer {
	return &MockHTTPDoer{
		responses: make(map[string][]cannedResponse),
		errors:    make(map[string]error),
	}
}

// Do records the request and replays the next configured response for it.
// The last response for a key is repeated once the queue is drained.
func (m *MockHTTPDoer) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	url := req.URL.String()
	m.calls = append(m.calls, HTTPCall{Method: req.Method, URL: url, Body: body, Header: req.Header.Clone()})

	key := req.Method + ":" + url
	if err, ok := m.errors[key]; ok {
		return nil, err
	}

	queue := m.responses[key]
	if len(queue) == 0 {
		return newResponse(http.StatusNotFound, nil, []byte(`{"message":"Not Found"}`)), nil
	}
	next := queue[0]
	if len(queue) > 1 {
		m.responses[key] = queue[1:]
	}
	return newResponse(next.status, next.header, next.body), nil
}

func newResponse(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

// SetResponse queues a response for method and url. Strings and byte slices are sent verbatim;
// anything else is JSON encoded.
func (m *MockHTTPDoer) SetResponse(method, url string, statusCode int, body any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var data []byte
	switch b := body.(type) {
	case nil:
	case string:
		data = []byte(b)
	case []byte:
		data = b
	default:
		var err error
		data, err = json.Marshal(b)
		if err != nil {
			panic(fmt.Sprintf("failed to marshal response body: %v", err))
		}
	}

	key := method + ":" + url
	m.responses[key] = append(m.responses[key], cannedResponse{status: statusCode, body: data})
}

// SetError configures a transport error for method and url.
func (m *MockHTTPDoer) SetError(method, url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method+":"+url] = err
}

// Calls returns all recorded HTTP calls.
func (m *MockHTTPDoer) Calls() []HTTPCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]HTTPCall, len(m.calls))
	copy(calls, m.calls)
	return calls
}

// CallsTo counts recorded calls whose URL contains substr.
func (m *MockHTTPDoer) CallsTo(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.calls {
		if strings.Contains(c.URL, substr) {
			n++
		}
	}
	return n
}
