// Package archive implements the per-session sliding-window PCM archiver
// (C7): it accumulates the raw audio stream in memory and periodically
// uploads rolling ~1-minute chunks to object storage without ever blocking
// the transcription path. Upload failures are logged and counted; they are
// never surfaced to the session as protocol errors (§7).
package archive

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	suuid "github.com/satori/go.uuid"
	"golang.org/x/sync/errgroup"

	"asrgateway/pkg/metrics"
	"asrgateway/pkg/objectstore"
	"asrgateway/pkg/wav"
)

// Config enumerates the Archiver's tunables, all defaulted per §4.6.
type Config struct {
	WindowSizeMs       int
	UploadIntervalMs   int
	MaxMemoryMB        float64
	StoreOriginalAudio bool
	StoreVadSegments   bool

	// Metrics is optional; when set, upload outcomes are counted there
	// instead of only being tracked in Stats.
	Metrics *metrics.Registry
}

// DefaultConfig returns the spec's enumerated defaults.
func DefaultConfig() Config {
	return Config{
		WindowSizeMs:       120_000,
		UploadIntervalMs:   60_000,
		MaxMemoryMB:        10,
		StoreOriginalAudio: true,
		StoreVadSegments:   false,
	}
}

const cleanupInterval = 30 * time.Second

// Frame is one fire-and-forget audio chunk handed to the Archiver by the
// session worker.
type Frame struct {
	Payload []byte
}

// Stats mirrors §4.6's enumerated archiver state for observability.
type Stats struct {
	TotalChunks      int
	UploadsCompleted int
	UploadsFailed    int
	MemoryUsageMB    float64
	LastUploadAt     time.Time
}

type windowEntry struct {
	timestamp time.Time
	payload   []byte
}

// Archiver accumulates one session's raw PCM stream and periodically
// uploads it. The session worker must never touch the window directly; all
// access goes through Process, which the worker itself serializes.
type Archiver struct {
	cfg       Config
	sessionID string
	userID    string
	store     objectstore.Client

	mu        sync.Mutex
	window    []windowEntry
	stats     Stats
	uploading bool
	active    bool

	uploadTicker  *time.Ticker
	cleanupTicker *time.Ticker
	stopCh        chan struct{}
	loopWG        sync.WaitGroup

	now func() time.Time
}

// New constructs and starts an Archiver for sessionID/userID, backed by
// store. The only construction failure is a nil store (there is no remote
// handshake at start-up); the error return lets the session log it and
// continue without archival.
func New(cfg Config, sessionID, userID string, store objectstore.Client) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("archive: nil object store client")
	}
	a := &Archiver{
		cfg:           cfg,
		sessionID:     sessionID,
		userID:        userID,
		store:         store,
		active:        true,
		stopCh:        make(chan struct{}),
		uploadTicker:  time.NewTicker(time.Duration(cfg.UploadIntervalMs) * time.Millisecond),
		cleanupTicker: time.NewTicker(cleanupInterval),
		now:           time.Now,
	}
	a.loopWG.Add(1)
	go a.loop()
	return a, nil
}

func (a *Archiver) loop() {
	defer a.loopWG.Done()
	for {
		select {
		case <-a.uploadTicker.C:
			a.scheduledUpload()
		case <-a.cleanupTicker.C:
			a.cleanup()
		case <-a.stopCh:
			return
		}
	}
}

// Process feeds one audio frame into the sliding window. Safe to call from
// the single session worker goroutine only (by contract, not by locking
// convenience — §5 assigns window ownership to the archiver's own task, and
// Process is the only door in).
func (a *Archiver) Process(frame Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return
	}

	if a.cfg.StoreOriginalAudio {
		a.window = append(a.window, windowEntry{timestamp: a.now(), payload: frame.Payload})
		a.stats.TotalChunks++
	}

	a.evictLocked()
	a.recomputeMemoryLocked()

	if a.cfg.Metrics != nil {
		a.cfg.Metrics.FramesReceived.Add(context.Background(), 1)
	}

	if a.stats.MemoryUsageMB > a.cfg.MaxMemoryMB {
		go a.emergencyUpload()
	}
}

func (a *Archiver) evictLocked() {
	cutoff := a.now().Add(-time.Duration(a.cfg.WindowSizeMs) * time.Millisecond)
	i := 0
	for i < len(a.window) && !a.window[i].timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		a.window = a.window[i:]
	}
}

func (a *Archiver) recomputeMemoryLocked() {
	total := 0
	for _, e := range a.window {
		total += len(e.payload)
	}
	a.stats.MemoryUsageMB = float64(total) / (1024 * 1024)
}

func (a *Archiver) cleanup() {
	a.mu.Lock()
	a.evictLocked()
	a.recomputeMemoryLocked()
	a.mu.Unlock()
}

// Stats returns a copy of the archiver's current counters.
func (a *Archiver) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// WindowLen reports how many chunks are currently held in the sliding
// window, for tests asserting the window stays bounded (P7).
func (a *Archiver) WindowLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.window)
}

// scheduledUpload fires every UploadIntervalMs. It snapshots the window
// without clearing it: adjacent chunks intentionally overlap by up to
// WindowSizeMs-UploadIntervalMs, accepted by design for archival safety.
func (a *Archiver) scheduledUpload() {
	a.mu.Lock()
	if a.uploading || !a.active || len(a.window) == 0 {
		a.mu.Unlock()
		return
	}
	a.uploading = true
	snapshot := append([]windowEntry(nil), a.window...)
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.uploading = false
		a.mu.Unlock()
	}()

	a.upload(snapshot)
}

// emergencyUpload is triggered from Process when the window exceeds
// MaxMemoryMB. After the attempt, only the most recent half of the window
// is retained, regardless of upload outcome, to bound memory immediately.
func (a *Archiver) emergencyUpload() {
	a.mu.Lock()
	if a.uploading || !a.active || len(a.window) == 0 {
		a.mu.Unlock()
		return
	}
	a.uploading = true
	snapshot := append([]windowEntry(nil), a.window...)
	a.mu.Unlock()

	a.upload(snapshot)

	a.mu.Lock()
	keep := (len(a.window) + 1) / 2
	if keep < len(a.window) {
		a.window = a.window[len(a.window)-keep:]
	}
	a.recomputeMemoryLocked()
	a.uploading = false
	a.mu.Unlock()
}

func (a *Archiver) upload(snapshot []windowEntry) {
	if len(snapshot) == 0 {
		return
	}
	corrID := newCorrelationID()

	chunkIndex := a.now().UnixMilli() / int64(a.cfg.UploadIntervalMs)
	key := fmt.Sprintf("audio-sessions/session_%s_original_%d.wav", a.sessionID, chunkIndex)

	segments := make([][]byte, len(snapshot))
	for i, e := range snapshot {
		segments[i] = e.payload
	}
	wavBytes := wav.Assemble(segments)

	start := snapshot[0].timestamp
	end := snapshot[len(snapshot)-1].timestamp
	duration := end.Sub(start).Seconds()

	in := objectstore.PutInput{
		Key:         key,
		Body:        wavBytes,
		ContentType: "audio/wav",
		Metadata: map[string]string{
			"sessionId":       a.sessionID,
			"userId":          a.userID,
			"audioType":       "original",
			"chunkIndex":      fmt.Sprintf("%d", chunkIndex),
			"chunkCount":      fmt.Sprintf("%d", len(snapshot)),
			"startTimestamp":  start.UTC().Format(time.RFC3339Nano),
			"endTimestamp":    end.UTC().Format(time.RFC3339Nano),
			"durationSeconds": fmt.Sprintf("%.3f", duration),
			"uploadedAt":      a.now().UTC().Format(time.RFC3339Nano),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.store.Put(ctx, in); err != nil {
		a.mu.Lock()
		a.stats.UploadsFailed++
		a.mu.Unlock()
		if a.cfg.Metrics != nil {
			a.cfg.Metrics.UploadsFailed.Add(ctx, 1)
		}
		log.Printf("archive[%s/%s]: upload failed, will retry next tick: %v", a.sessionID, corrID, err)
		return
	}

	a.mu.Lock()
	a.stats.UploadsCompleted++
	a.stats.LastUploadAt = a.now()
	a.mu.Unlock()
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.UploadsCompleted.Add(ctx, 1)
	}
}

// Shutdown stops both tickers and, if the window is non-empty and no upload
// is in flight, performs one final synchronous upload. The wait is bounded
// by upload's 30-second Put timeout; errgroup.Group only waits for it.
func (a *Archiver) Shutdown() {
	a.mu.Lock()
	if !a.active {
		a.mu.Unlock()
		return
	}
	a.active = false
	snapshot := append([]windowEntry(nil), a.window...)
	uploading := a.uploading
	a.mu.Unlock()

	close(a.stopCh)
	a.uploadTicker.Stop()
	a.cleanupTicker.Stop()
	a.loopWG.Wait()

	if uploading || len(snapshot) == 0 {
		a.mu.Lock()
		a.window = nil
		a.mu.Unlock()
		return
	}

	var g errgroup.Group
	g.Go(func() error {
		a.upload(snapshot)
		return nil
	})
	_ = g.Wait()

	a.mu.Lock()
	a.window = nil
	a.mu.Unlock()
}

func newCorrelationID() string {
	return suuid.NewV4().String()[:8]
}
