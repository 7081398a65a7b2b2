package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// WhisperMaxBytes is the upload ceiling of the OpenAI transcription endpoint.
const WhisperMaxBytes = 25 * 1024 * 1024

// WhisperRecognizer transcribes audio with the OpenAI Whisper API.
type WhisperRecognizer struct {
	client  *openai.Client
	timeout time.Duration
}

// NewWhisperRecognizer wraps an OpenAI client. Each request is bounded by timeout.
func NewWhisperRecognizer(client *openai.Client, timeout time.Duration) *WhisperRecognizer {
	return &WhisperRecognizer{client: client, timeout: timeout}
}

// Recognize uploads the local audio file. Whisper returns a single text body.
func (r *WhisperRecognizer) Recognize(ctx context.Context, audio Audio) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audio.Path,
		Language: whisperLanguage(audio.LanguageCode),
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrRecognitionTimeout, err)
		}
		return nil, err
	}
	return []string{resp.Text}, nil
}

// whisperLanguage reduces a BCP-47 tag such as ja-JP to ISO-639-1.
func whisperLanguage(code string) string {
	lang, _, _ := strings.Cut(code, "-")
	return strings.ToLower(lang)
}
