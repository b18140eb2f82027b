package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// groqURL is a var, not a const, so tests can point it at an httptest.Server.
var groqURL = "https://api.groq.com/openai/v1/audio/transcriptions"

type groqProvider struct {
	apiKey string
}

func (p *groqProvider) name() string { return "groq" }

func (p *groqProvider) transcribe(ctx context.Context, wavBytes []byte, prompt string) (string, error) {
	body, contentType, err := buildMultipart(wavBytes, map[string]string{
		"model":           "whisper-large-v3-turbo",
		"response_format": "verbose_json",
	})
	if err != nil {
		return "", fmt.Errorf("groq: build request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, groqURL, body)
	if err != nil {
		return "", fmt.Errorf("groq: new request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	return doTranscriptionRequest(req, "groq")
}

// buildMultipart writes a single-file multipart/form-data body named
// audio.wav plus the given scalar fields, matching the shape both Groq and
// Fireworks expect. Neither provider ships a Go SDK anywhere in the example
// corpus or the wider dependency surface pinned here, so the multipart body
// is built by hand with mime/multipart — the one intentionally
// stdlib-on-the-wire boundary recorded in DESIGN.md for this package.
func buildMultipart(wavBytes []byte, fields map[string]string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(wavBytes); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

type transcriptionAPIResponse struct {
	Text string `json:"text"`
}

func doTranscriptionRequest(req *http.Request, providerName string) (string, error) {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: request failed: %w", providerName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%s: read response: %w", providerName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s: non-2xx status %d: %s", providerName, resp.StatusCode, string(raw))
	}

	var parsed transcriptionAPIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", providerName, err)
	}
	if parsed.Text == "" {
		return "", fmt.Errorf("%s: %w", providerName, errMissingText)
	}
	return parsed.Text, nil
}
