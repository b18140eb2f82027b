package asr

import (
	"context"
	"fmt"
	"net/http"
)

// fireworksURL is a var, not a const, so tests can point it at an
// httptest.Server.
var fireworksURL = "https://audio-turbo.us-virginia-1.direct.fireworks.ai/v1/audio/transcriptions"

type fireworksProvider struct {
	apiKey string
}

func (p *fireworksProvider) name() string { return "fireworks" }

func (p *fireworksProvider) transcribe(ctx context.Context, wavBytes []byte, prompt string) (string, error) {
	body, contentType, err := buildMultipart(wavBytes, map[string]string{
		"model":       "whisper-v3-turbo",
		"temperature": "0",
	})
	if err != nil {
		return "", fmt.Errorf("fireworks: build request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fireworksURL, body)
	if err != nil {
		return "", fmt.Errorf("fireworks: new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	return doTranscriptionRequest(req, "fireworks")
}
