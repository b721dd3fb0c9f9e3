package matchclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/face-match/internal/matcher"
)

func testImage(t *testing.T) matcher.CapturedImage {
	t.Helper()
	img, err := matcher.NewCapturedImage([]byte("\xff\xd8\xff\xe0fake-jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("failed to build image: %v", err)
	}
	return img
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(server.URL, opts...)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func respondJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func TestSubmitSendsMultipartImage(t *testing.T) {
	var gotPath, gotType string
	var gotData []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		file, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("missing image part: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotType = header.Header.Get("Content-Type")
		gotData, _ = io.ReadAll(file)
		respondJSON(`{"success":true,"matches":[{"id":"a","name":"A","percentage":50}]}`)(w, r)
	})

	if _, err := client.Submit(context.Background(), testImage(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != DefaultPath {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotType != "image/jpeg" {
		t.Fatalf("unexpected part content type %s", gotType)
	}
	if string(gotData) != "\xff\xd8\xff\xe0fake-jpeg" {
		t.Fatalf("unexpected payload %q", gotData)
	}
}

func TestSubmitParsesRankedCandidates(t *testing.T) {
	client := newTestClient(t, respondJSON(`{
		"success": true,
		"face_bbox": [1, 2, 3, 4],
		"matches": [
			{"id": "shahzoda", "name": "Шаҳзода", "name_uz": "Shahzoda", "category": "singer", "image": "/celebrities/shahzoda.jpg", "percentage": 81.0},
			{"id": "yulduz", "name": "Юлдуз Усмонова", "name_uz": "Yulduz Usmonova", "image": "https://cdn.example.com/y.jpg", "percentage": 92.3},
			{"id": "ulugbek", "name": "Улуғбек", "percentage": 40.5}
		]
	}`))

	results, err := client.Submit(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(results))
	}
	wantOrder := []string{"yulduz", "shahzoda", "ulugbek"}
	for i, id := range wantOrder {
		if results[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, results[i].ID, id)
		}
	}
	if results[1].LocalizedName != "Shahzoda" || results[1].Category != "singer" {
		t.Fatalf("unexpected candidate fields %+v", results[1])
	}
	if got := results[1].ImageURL; got != client.baseURL.String()+"/celebrities/shahzoda.jpg" {
		t.Fatalf("relative image not resolved: %s", got)
	}
	if got := results[0].ImageURL; got != "https://cdn.example.com/y.jpg" {
		t.Fatalf("absolute image rewritten: %s", got)
	}
}

func TestSubmitFailureKinds(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    matcher.ErrorKind
	}{
		{"empty matches", respondJSON(`{"success":true,"matches":[]}`), matcher.NoFaceDetected},
		{"no face signal", respondJSON(`{"success":false,"error":"no_face_detected","error_message":"Face not detected"}`), matcher.NoFaceDetected},
		{"bare failure", respondJSON(`{"success":false}`), matcher.NoFaceDetected},
		{"processing error", respondJSON(`{"success":false,"error":"processing_error","error_message":"cv2"}`), matcher.RequestFailed},
		{"malformed body", respondJSON(`<html>oops`), matcher.RequestFailed},
		{"score out of range", respondJSON(`{"success":true,"matches":[{"id":"a","name":"A","percentage":140}]}`), matcher.RequestFailed},
		{"missing score", respondJSON(`{"success":true,"matches":[{"id":"a","name":"A"}]}`), matcher.RequestFailed},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}, matcher.RequestFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, tc.handler)
			results, err := client.Submit(context.Background(), testImage(t))
			if err == nil {
				t.Fatalf("expected failure, got %d results", len(results))
			}
			failure, ok := err.(*matcher.Failure)
			if !ok {
				t.Fatalf("expected *matcher.Failure, got %T", err)
			}
			if failure.Kind != tc.want {
				t.Fatalf("expected %v, got %v (%v)", tc.want, failure.Kind, failure.Err)
			}
		})
	}
}

func TestSubmitTimeoutIsRequestFailed(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	_, err := client.Submit(context.Background(), testImage(t))
	if matcher.KindOf(err) != matcher.RequestFailed {
		t.Fatalf("expected RequestFailed, got %v", err)
	}
}

func TestSubmitOversizedResponseIsRequestFailed(t *testing.T) {
	body := `{"success":true,"matches":[{"id":"a","name":"A","percentage":90}]}` + strings.Repeat(" ", MaxResponseSize)
	client := newTestClient(t, respondJSON(body))

	_, err := client.Submit(context.Background(), testImage(t))
	if matcher.KindOf(err) != matcher.RequestFailed {
		t.Fatalf("expected RequestFailed, got %v", err)
	}
}

func TestSubmitTransportErrorIsRequestFailed(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	client, err := New(addr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.Submit(context.Background(), testImage(t))
	if matcher.KindOf(err) != matcher.RequestFailed {
		t.Fatalf("expected RequestFailed, got %v", err)
	}
}

func TestSubmitRejectsEmptyImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	})
	_, err := client.Submit(context.Background(), matcher.CapturedImage{})
	if matcher.KindOf(err) != matcher.RequestFailed {
		t.Fatalf("expected RequestFailed, got %v", err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("ftp://example.com"); err == nil {
		t.Fatal("expected error for non-http url")
	}
}
