package pricing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestClientPostsQueuedSubmissions(t *testing.T) {
	var mu sync.Mutex
	var received []Submission
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/prices" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var sub Submission
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		mu.Lock()
		received = append(received, sub)
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	client.QueueSubmission(88112, "s1", 0.02, []float64{0.02, 0.021})
	client.QueueSubmission(90001, "s1", 1.5, []float64{1.5})
	client.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(received))
	}
	first := received[0]
	if first.ItemTypeID != 88112 || first.ReferencePrice != 0.02 || first.Season != "s1" {
		t.Errorf("wrong submission: %+v", first)
	}
	if first.ID == "" {
		t.Error("submission id not assigned")
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("wrong authorization header: %q", gotAuth)
	}
}

func TestClientSurvivesUnreachableEndpoint(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "")
	client.QueueSubmission(88112, "s1", 0.02, []float64{0.02})
	// Close drains the queue; failed posts must not hang or panic.
	client.Close()
}
