package session

import (
	"context"

	"github.com/bytedance/sonic"

	"asrgateway/pkg/archive"
	"asrgateway/pkg/asr"
)

func (s *Session) handleStreaming(env envelope, raw []byte) {
	switch env.Type {
	case "audio_stream_start":
		s.resetStream()
		s.Emit(audioStreamStartAckFrame{Type: "audio_stream_start_ack", Timestamp: nowISO(), UserID: s.subject})
	case "audio_chunk":
		s.handleAudioChunk(raw)
	case "audio_stream_end":
		s.Emit(audioStreamEndAckFrame{Type: "audio_stream_end_ack", ReceivedChunks: s.frameCountSnapshot(), Timestamp: nowISO()})
	default:
		s.Emit(unknownTypeFrame{
			Error:           "Unknown message type received",
			UnknownType:     env.Type,
			ReceivedMessage: string(raw),
			Timestamp:       nowISO(),
		})
	}
}

func (s *Session) resetStream() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.frameCount = 0
	s.globalTimeMs = 0
	s.caching = false
	s.utteranceCache = nil
	s.preroll.Clear()
	s.speechStartMs = 0
	s.suppressNextPrefetch = false
}

func (s *Session) handleAudioChunk(raw []byte) {
	var msg audioChunkMessage
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		s.Emit(parseErrorFrame{
			Error:        "Failed to parse message as JSON",
			ParseError:   err.Error(),
			ReceivedData: truncate(string(raw), 100),
			Timestamp:    nowISO(),
		})
		return
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	s.frameCount++
	frameBaseMs := s.globalTimeMs

	payload, err := decodeBase64(msg.Data)
	if err != nil {
		s.Emit(parseErrorFrame{
			Error:        "Failed to parse message as JSON",
			ParseError:   err.Error(),
			ReceivedData: truncate(string(raw), 100),
			Timestamp:    nowISO(),
		})
		return
	}

	if msg.VadState == "start" {
		s.caching = true
		s.utteranceCache = nil
		s.suppressNextPrefetch = false
		offset := offsetOrZero(msg.VadOffsetMs)
		s.speechStartMs = frameBaseMs + offset
		if msg.VadOffsetMs != nil && *msg.VadOffsetMs < 0 {
			need := -(*msg.VadOffsetMs) * 32
			snap := s.preroll.Snapshot()
			if len(snap) >= need {
				s.utteranceCache = append(s.utteranceCache, append([]byte(nil), snap[len(snap)-need:]...))
			} else {
				s.utteranceCache = append(s.utteranceCache, snap)
			}
		}
		s.Emit(vadCacheStartFrame{Type: "vad_cache_start"})
	}

	if s.caching && len(payload) > 0 && msg.VadState != "end" {
		s.utteranceCache = append(s.utteranceCache, payload)
	}

	if len(payload) > 0 {
		s.preroll.Append(payload)
	}

	if s.archiver != nil {
		s.archiver.Process(archive.Frame{Payload: payload})
	}

	s.globalTimeMs = frameBaseMs + frameCadenceMs

	switch {
	case msg.VadState == "cache_asr_trigger" && s.caching:
		speechEndMs := frameBaseMs + offsetOrZero(msg.VadOffsetMs)
		if s.suppressNextPrefetch {
			s.suppressNextPrefetch = false
			break
		}
		snapshot := copySegments(s.utteranceCache)
		if len(payload) > 0 {
			snapshot = append(snapshot, prefixForOffset(payload, msg.VadOffsetMs))
		}
		s.dispatcher.Submit(context.Background(), asr.Request{
			Segments:      snapshot,
			Subject:       s.subject,
			SpeechStartMs: s.speechStartMs,
			SpeechEndMs:   speechEndMs,
			IsPrefetch:    true,
			Prompt:        msg.AsrPrompt,
		})

	case msg.VadState == "cache_asr_drop" && s.caching:
		s.suppressNextPrefetch = true

	case msg.VadState == "end" && s.caching:
		speechEndMs := frameBaseMs + offsetOrZero(msg.VadOffsetMs)
		if len(payload) > 0 {
			s.utteranceCache = append(s.utteranceCache, prefixForOffset(payload, msg.VadOffsetMs))
		}
		s.caching = false
		s.suppressNextPrefetch = false
		snapshot := copySegments(s.utteranceCache)
		s.utteranceCache = nil
		s.Emit(vadCacheEndFrame{Type: "vad_cache_end", Timestamp: nowISO()})
		s.dispatcher.Submit(context.Background(), asr.Request{
			Segments:      snapshot,
			Subject:       s.subject,
			SpeechStartMs: s.speechStartMs,
			SpeechEndMs:   speechEndMs,
			IsPrefetch:    false,
			Prompt:        msg.AsrPrompt,
		})
	}
}

func offsetOrZero(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// prefixForOffset returns the leading slice of p that a positive
// vad_offset_ms selects, clamped to len(p). An unset or non-positive offset
// selects all of p.
func prefixForOffset(p []byte, offsetMs *int) []byte {
	if offsetMs == nil || *offsetMs <= 0 {
		return p
	}
	n := *offsetMs * 32
	if n > len(p) {
		n = len(p)
	}
	return p[:n]
}

func copySegments(segs [][]byte) [][]byte {
	out := make([][]byte, len(segs))
	copy(out, segs)
	return out
}
