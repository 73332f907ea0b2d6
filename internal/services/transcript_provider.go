package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/vidcourse/vidcourse-backend/internal/logger"
	"github.com/vidcourse/vidcourse-backend/internal/types"
)

// TranscriptProvider hands the pipeline a finished transcript for a source
// reference. Transcription itself happens in an external service; the
// pipeline treats the result as an opaque, ordered artifact.
type TranscriptProvider interface {
	Fetch(ctx context.Context, sourceRef string) (types.Transcript, error)
}

type httpTranscriptProvider struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewTranscriptProvider(log *logger.Logger) (TranscriptProvider, error) {
	baseURL := os.Getenv("TRANSCRIPT_SERVICE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("missing TRANSCRIPT_SERVICE_URL")
	}
	return &httpTranscriptProvider{
		log:        log.With("service", "TranscriptProvider"),
		baseURL:    baseURL,
		apiKey:     os.Getenv("TRANSCRIPT_SERVICE_API_KEY"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (p *httpTranscriptProvider) Fetch(ctx context.Context, sourceRef string) (types.Transcript, error) {
	if sourceRef == "" {
		return nil, fmt.Errorf("missing source reference")
	}

	endpoint := p.baseURL + "/v1/transcripts?source=" + url.QueryEscape(sourceRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch transcript: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read transcript response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transcript service http %d: %s", resp.StatusCode, string(raw))
	}

	var chunks types.Transcript
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}

	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].StartSec < chunks[j].StartSec })
	return chunks, nil
}
