// Package asr dispatches assembled utterances to one of two external speech
// -to-text providers (Groq, Fireworks) and reports the normalized result or
// error back to the originating connection. Submissions are fire-and-forget:
// Submit spawns an independent goroutine and returns immediately so the
// session worker is never blocked on network I/O.
package asr

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"asrgateway/pkg/metrics"
	"asrgateway/pkg/wav"
)

// Sink receives the JSON-shaped frames the dispatcher emits back to a
// connection (transcription_result, transcription_error, debug_audio). It is
// satisfied by the session package's outbound writer without asr importing
// session, avoiding an import cycle.
type Sink interface {
	Emit(frame any)
}

// Request is one utterance submitted for transcription.
type Request struct {
	Segments      [][]byte
	Subject       string
	SpeechStartMs int
	SpeechEndMs   int
	IsPrefetch    bool
	Prompt        string // asr_prompt, accepted but intentionally not forwarded; see DESIGN.md Open Question decision.
}

// Provider is one speech-to-text backend.
type provider interface {
	name() string
	transcribe(ctx context.Context, wavBytes []byte, prompt string) (text string, err error)
}

// Dispatcher selects a provider once at construction (per USE_FIREWORKS) and
// submits utterances to it.
type Dispatcher struct {
	provider  provider
	sink      Sink
	debugMode bool
	metrics   *metrics.Registry
}

// Config selects provider credentials and behavior flags, mirroring the
// process configuration enumerated in §6.
type Config struct {
	UseFireworks    bool
	GroqAPIKey      string
	FireworksAPIKey string
	DebugMode       bool

	// Metrics is optional; when set, transcription outcomes and latency are
	// recorded there instead of only appearing in the per-result Performance
	// block.
	Metrics *metrics.Registry
}

// NewDispatcher constructs a Dispatcher bound to sink, which receives all
// outbound frames this dispatcher produces for a given connection. Callers
// construct one Dispatcher per session (it is cheap; the provider is
// stateless) so Sink can be the session's own outbound channel.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	var p provider
	if cfg.UseFireworks {
		p = &fireworksProvider{apiKey: cfg.FireworksAPIKey}
	} else {
		p = &groqProvider{apiKey: cfg.GroqAPIKey}
	}
	return &Dispatcher{provider: p, sink: sink, debugMode: cfg.DebugMode, metrics: cfg.Metrics}
}

// Submit builds the WAV blob and hands the utterance to the configured
// provider on an independent goroutine. A Request with no segments is a
// no-op, per §4.5.
func (d *Dispatcher) Submit(ctx context.Context, req Request) {
	if len(req.Segments) == 0 {
		return
	}
	go d.run(ctx, req)
}

func (d *Dispatcher) run(ctx context.Context, req Request) {
	reqID := uuid.NewString()
	start := time.Now()

	wavStart := time.Now()
	wavBytes := wav.Assemble(req.Segments)
	wavCreationMs := int(time.Since(wavStart).Milliseconds())

	if d.debugMode {
		d.sink.Emit(debugAudioFrame{
			Type:              "debug_audio",
			AudioData:         base64.StdEncoding.EncodeToString(wavBytes),
			SpeechStartTimeMs: req.SpeechStartMs,
			SpeechEndTimeMs:   req.SpeechEndMs,
			Timestamp:         nowISO(),
		})
	}

	apiStart := time.Now()
	text, err := d.provider.transcribe(ctx, wavBytes, req.Prompt)
	apiFetchMs := int(time.Since(apiStart).Milliseconds())

	if d.metrics != nil {
		d.metrics.ASRLatencyMs.Record(ctx, float64(apiFetchMs))
	}

	if err != nil {
		log.Printf("asr[%s]: %s transcription failed: %v", reqID[:8], d.provider.name(), err)
		if d.metrics != nil {
			d.metrics.TranscriptionsFailed.Add(ctx, 1)
		}
		d.sink.Emit(transcriptionErrorFrame{
			Type:       "transcription_error",
			Error:      "transcription failed",
			Details:    err.Error(),
			IsPrefetch: req.IsPrefetch,
			Timestamp:  nowISO(),
		})
		return
	}

	if d.metrics != nil {
		d.metrics.TranscriptionsComplete.Add(ctx, 1)
	}

	d.sink.Emit(transcriptionResultFrame{
		Type:              "transcription_result",
		Text:              text,
		SpeechStartTimeMs: req.SpeechStartMs,
		SpeechEndTimeMs:   req.SpeechEndMs,
		IsPrefetch:        req.IsPrefetch,
		Timestamp:         nowISO(),
		Performance: performance{
			TotalProcessingMs: int(time.Since(start).Milliseconds()),
			WavCreationMs:     wavCreationMs,
			APIFetchMs:        apiFetchMs,
			WorkerTimestamp:   nowISO(),
			Provider:          d.provider.name(),
		},
	})
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

type performance struct {
	TotalProcessingMs int    `json:"total_processing_ms"`
	WavCreationMs     int    `json:"wav_creation_ms"`
	APIFetchMs        int    `json:"api_fetch_ms"`
	WorkerTimestamp   string `json:"worker_timestamp"`
	Provider          string `json:"provider"`
}

type transcriptionResultFrame struct {
	Type              string      `json:"type"`
	Text              string      `json:"text"`
	SpeechStartTimeMs int         `json:"speechStartTimeMs"`
	SpeechEndTimeMs   int         `json:"speechEndTimeMs"`
	IsPrefetch        bool        `json:"is_prefetch"`
	Timestamp         string      `json:"timestamp"`
	Performance       performance `json:"performance"`
}

type transcriptionErrorFrame struct {
	Type       string `json:"type"`
	Error      string `json:"error"`
	Details    string `json:"details"`
	IsPrefetch bool   `json:"is_prefetch"`
	Timestamp  string `json:"timestamp"`
}

type debugAudioFrame struct {
	Type              string `json:"type"`
	AudioData         string `json:"audioData"`
	SpeechStartTimeMs int    `json:"speechStartTimeMs"`
	SpeechEndTimeMs   int    `json:"speechEndTimeMs"`
	Timestamp         string `json:"timestamp"`
}

var errMissingText = fmt.Errorf("response did not include a text field")
