package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

type longRunningFunc func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error)

// GoogleRecognizer runs Cloud Speech-to-Text long-running recognition.
type GoogleRecognizer struct {
	timeout   time.Duration
	recognize longRunningFunc
}

// NewGoogleRecognizer waits at most timeout for each operation.
func NewGoogleRecognizer(client *speech.Client, timeout time.Duration) *GoogleRecognizer {
	return &GoogleRecognizer{
		timeout: timeout,
		recognize: func(ctx context.Context, req *speechpb.LongRunningRecognizeRequest) (*speechpb.LongRunningRecognizeResponse, error) {
			op, err := client.LongRunningRecognize(ctx, req)
			if err != nil {
				return nil, err
			}
			return op.Wait(ctx)
		},
	}
}

// Recognize returns the top alternative of each result in order.
func (r *GoogleRecognizer) Recognize(ctx context.Context, audio Audio) ([]string, error) {
	req, err := buildRequest(audio)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.recognize(waitCtx, req)
	if err != nil {
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrRecognitionTimeout, r.timeout)
		}
		return nil, err
	}

	segments := make([]string, 0, len(resp.GetResults()))
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			segments = append(segments, alts[0].GetTranscript())
		}
	}
	return segments, nil
}

func buildRequest(audio Audio) (*speechpb.LongRunningRecognizeRequest, error) {
	req := &speechpb.LongRunningRecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_FLAC,
			SampleRateHertz:            int32(audio.SampleRate),
			AudioChannelCount:          1,
			LanguageCode:               audio.LanguageCode,
			EnableAutomaticPunctuation: true,
		},
	}

	if audio.URI != "" {
		req.Audio = &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Uri{Uri: audio.URI},
		}
		return req, nil
	}

	content, err := os.ReadFile(audio.Path)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	req.Audio = &speechpb.RecognitionAudio{
		AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
	}
	return req, nil
}
