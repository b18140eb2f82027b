package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"asrgateway/pkg/objectstore"
)

type fakeVerifier struct {
	subject string
	err     error
}

func (f fakeVerifier) Verify(token string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.subject, nil
}

func seedStore(t *testing.T) objectstore.Client {
	t.Helper()
	store := objectstore.NewMemoryClient()
	ctx := t.Context()
	for _, key := range []string{
		"audio-sessions/session_a_original_1.wav",
		"audio-sessions/session_b_original_1.wav",
	} {
		if err := store.Put(ctx, objectstore.PutInput{
			Key:      key,
			Body:     []byte("RIFF...."),
			Metadata: map[string]string{"userId": "user_1", "uploadedAt": "2020-01-01T00:00:00Z"},
		}); err != nil {
			t.Fatalf("seed Put: %v", err)
		}
	}
	return store
}

func TestStatsRequiresAuth(t *testing.T) {
	h := NewHandler(seedStore(t), fakeVerifier{err: errInvalid})
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/admin/audio/stats")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestStatsReturnsObjectCount(t *testing.T) {
	h := NewHandler(seedStore(t), fakeVerifier{subject: "user_1"})
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/admin/audio/stats", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	var body statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ObjectCount != 2 {
		t.Errorf("ObjectCount = %d, want 2", body.ObjectCount)
	}
}

func TestDeleteRemovesObject(t *testing.T) {
	store := seedStore(t)
	h := NewHandler(store, fakeVerifier{subject: "user_1"})
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/admin/audio?key=audio-sessions/session_a_original_1.wav", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}

	objs, _ := store.List(t.Context(), "")
	if len(objs) != 1 {
		t.Errorf("remaining objects = %d, want 1", len(objs))
	}
}

func TestRetentionSweepRejectsOutOfRangeMaxAgeDays(t *testing.T) {
	h := NewHandler(seedStore(t), fakeVerifier{subject: "user_1"})
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	body, _ := json.Marshal(map[string]int{"maxAgeDays": 400})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/admin/audio/retention-sweep", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRetentionSweepDeletesOldObjects(t *testing.T) {
	store := seedStore(t)
	h := NewHandler(store, fakeVerifier{subject: "user_1"})
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	body, _ := json.Marshal(map[string]int{"maxAgeDays": 30})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/admin/audio/retention-sweep", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	var result retentionSweepResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Deleted != 2 {
		t.Errorf("Deleted = %d, want 2", result.Deleted)
	}
}

func TestListFiltersByUserID(t *testing.T) {
	store := seedStore(t)
	_ = store.Put(t.Context(), objectstore.PutInput{
		Key:      "audio-sessions/session_c_original_1.wav",
		Body:     []byte("RIFF...."),
		Metadata: map[string]string{"userId": "user_2", "uploadedAt": "2020-01-01T00:00:00Z"},
	})
	h := NewHandler(store, fakeVerifier{subject: "user_1"})
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/admin/audio/list?userId=user_2", nil)
	req.Header.Set("Authorization", "Bearer tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	var entries []listEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "audio-sessions/session_c_original_1.wav" {
		t.Errorf("entries = %+v, want single session_c entry", entries)
	}
}

var errInvalid = &verifyErr{"invalid"}

type verifyErr struct{ msg string }

func (e *verifyErr) Error() string { return e.msg }
