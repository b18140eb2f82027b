package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"asrgateway/pkg/objectstore"
)

func testConfig() Config {
	return Config{
		WindowSizeMs:       500,
		UploadIntervalMs:   200,
		MaxMemoryMB:        0.0005, // ~500 bytes, small enough to exercise emergency upload
		StoreOriginalAudio: true,
	}
}

func TestProcessCountsEveryChunk(t *testing.T) {
	store := objectstore.NewMemoryClient()
	a, err := New(testConfig(), "sess-1", "user-1", store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	a.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 50 * time.Millisecond)
	}

	for i := 0; i < 5; i++ {
		a.Process(Frame{Payload: []byte{byte(i)}})
	}

	stats := a.Stats()
	if stats.TotalChunks != 5 {
		t.Fatalf("TotalChunks = %d, want 5", stats.TotalChunks)
	}
}

func TestWindowNeverExceedsConfiguredSize(t *testing.T) {
	store := objectstore.NewMemoryClient()
	cfg := testConfig()
	cfg.UploadIntervalMs = 60_000
	cfg.MaxMemoryMB = 100
	a, err := New(cfg, "sess-8", "user-8", store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	step := 0
	a.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * 100 * time.Millisecond)
	}

	for i := 0; i < 20; i++ {
		a.Process(Frame{Payload: []byte{byte(i)}})
	}

	// window covers 500ms at 100ms steps: no more than 5 entries should survive.
	if got := a.WindowLen(); got > 5 {
		t.Fatalf("WindowLen() = %d, want <= 5", got)
	}
}

func TestEmergencyUploadTriggersOnMemoryBound(t *testing.T) {
	store := objectstore.NewMemoryClient()
	cfg := testConfig()
	cfg.UploadIntervalMs = 60_000 // disable the scheduled ticker from also firing during the test
	a, err := New(cfg, "sess-2", "user-2", store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	big := make([]byte, 2000)
	a.Process(Frame{Payload: big})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		objs, _ := store.List(context.Background(), "audio-sessions/")
		if len(objs) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected emergency upload to have written at least one object")
}

func TestScheduledUploadWritesKeyAndMetadata(t *testing.T) {
	store := objectstore.NewMemoryClient()
	cfg := Config{
		WindowSizeMs:       10_000,
		UploadIntervalMs:   50,
		MaxMemoryMB:        100,
		StoreOriginalAudio: true,
	}
	a, err := New(cfg, "sess-3", "user-3", store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown()

	a.Process(Frame{Payload: []byte{1, 2, 3, 4}})

	deadline := time.Now().Add(2 * time.Second)
	var objs []objectstore.Object
	for time.Now().Before(deadline) {
		objs, _ = store.List(context.Background(), "audio-sessions/session_sess-3_")
		if len(objs) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(objs) == 0 {
		t.Fatal("expected at least one scheduled upload")
	}
	head, err := store.Head(context.Background(), objs[0].Key)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Metadata["sessionId"] != "sess-3" {
		t.Fatalf("sessionId metadata = %q, want sess-3", head.Metadata["sessionId"])
	}
	if head.Metadata["userId"] != "user-3" {
		t.Fatalf("userId metadata = %q, want user-3", head.Metadata["userId"])
	}
	if !strings.HasSuffix(objs[0].Key, ".wav") {
		t.Fatalf("key %q does not end in .wav", objs[0].Key)
	}
}

func TestShutdownFlushesRemainingWindow(t *testing.T) {
	store := objectstore.NewMemoryClient()
	cfg := Config{
		WindowSizeMs:       60_000,
		UploadIntervalMs:   60_000, // never fires on its own within the test
		MaxMemoryMB:        100,
		StoreOriginalAudio: true,
	}
	a, err := New(cfg, "sess-4", "user-4", store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.Process(Frame{Payload: []byte{5, 6, 7}})

	a.Shutdown()

	objs, err := store.List(context.Background(), "audio-sessions/session_sess-4_")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 1 {
		t.Fatalf("len(objs) = %d, want 1 final flush", len(objs))
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	store := objectstore.NewMemoryClient()
	a, err := New(testConfig(), "sess-5", "user-5", store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.Shutdown()
	a.Shutdown() // must not panic or block
}

func TestNewRejectsNilStore(t *testing.T) {
	if _, err := New(testConfig(), "sess-6", "user-6", nil); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestProcessAfterShutdownIsNoop(t *testing.T) {
	store := objectstore.NewMemoryClient()
	a, err := New(testConfig(), "sess-7", "user-7", store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.Shutdown()
	a.Process(Frame{Payload: []byte{1}})

	if got := a.Stats().TotalChunks; got != 0 {
		t.Fatalf("TotalChunks after shutdown = %d, want 0", got)
	}
}
