// Package backend is the REST client for the learning app's voice and tutor API.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	ttsPath       = "/api/v2/voice/tts"
	sttPath       = "/api/v2/voice/stt"
	statusPath    = "/api/v2/voice/status"
	tutorChatPath = "/api/tutor/chat"

	// maxSynthesisRunes mirrors the server-side text limit for /tts.
	maxSynthesisRunes = 5000
	maxErrorBody      = 4096
	defaultTimeout    = 30 * time.Second
)

// Client talks to the learning app backend.
type Client struct {
	http    *http.Client
	baseURL string
	tokens  TokenSource
}

// New builds a client rooted at baseURL. timeout <= 0 selects 30s.
func New(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		tokens:  tokens,
	}
}

// BaseURL returns the normalized backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SynthesizeRequest is the /tts payload.
type SynthesizeRequest struct {
	Text     string `json:"text"`
	Emotion  string `json:"emotion,omitempty"`
	AgeGroup string `json:"age_group,omitempty"`
}

// Speech is synthesized WAV audio plus the response metadata headers.
type Speech struct {
	Audio      []byte
	Emotion    string
	SampleRate int
}

// Transcription is the /stt response.
type Transcription struct {
	Text       string   `json:"text"`
	Language   string   `json:"language"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// VoiceStatus is the /status response.
type VoiceStatus struct {
	TTS struct {
		Loaded     bool   `json:"loaded"`
		ModelType  string `json:"model_type"`
		SampleRate int    `json:"sample_rate"`
		Installed  bool   `json:"installed"`
	} `json:"tts"`
	STT struct {
		Loaded    bool   `json:"loaded"`
		ModelSize string `json:"model_size"`
		Installed bool   `json:"installed"`
	} `json:"stt"`
	AvailableEmotions []string `json:"available_emotions"`
}

// TutorRequest is the /api/tutor/chat payload.
type TutorRequest struct {
	Subject        string  `json:"subject"`
	Question       string  `json:"question"`
	Mistakes       int     `json:"mistakes"`
	TimeSpent      int     `json:"time_spent"`
	Frustration    int     `json:"frustration"`
	RecentAccuracy float64 `json:"recent_accuracy"`
}

// TutorReply is the /api/tutor/chat response.
type TutorReply struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Strategy string `json:"strategy"`
}

// Synthesize requests speech audio for req.Text.
func (c *Client) Synthesize(ctx context.Context, req SynthesizeRequest) (Speech, error) {
	req.Text = truncateRunes(req.Text, maxSynthesisRunes)
	resp, err := c.do(ctx, http.MethodPost, ttsPath, req)
	if err != nil {
		return Speech{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Speech{}, fmt.Errorf("read speech audio: %w", err)
	}
	if len(data) == 0 {
		return Speech{}, errors.New("read speech audio: empty body")
	}

	speech := Speech{Audio: data, Emotion: resp.Header.Get("X-Emotion")}
	if rate, err := strconv.Atoi(resp.Header.Get("X-Sample-Rate")); err == nil {
		speech.SampleRate = rate
	}
	return speech, nil
}

// Transcribe sends a WAV recording for speech-to-text.
func (c *Client) Transcribe(ctx context.Context, wav []byte, language string) (Transcription, error) {
	if language == "" {
		language = "en"
	}
	payload := map[string]string{
		"audio_base64": base64.StdEncoding.EncodeToString(wav),
		"language":     language,
	}
	var out Transcription
	if err := c.doJSON(ctx, http.MethodPost, sttPath, payload, &out); err != nil {
		return Transcription{}, err
	}
	out.Text = strings.TrimSpace(out.Text)
	return out, nil
}

// Status reports whether the backend voice models are loaded.
func (c *Client) Status(ctx context.Context) (VoiceStatus, error) {
	var out VoiceStatus
	if err := c.doJSON(ctx, http.MethodGet, statusPath, nil, &out); err != nil {
		return VoiceStatus{}, err
	}
	return out, nil
}

// TutorChat asks the adaptive tutor for a reply.
func (c *Client) TutorChat(ctx context.Context, req TutorRequest) (TutorReply, error) {
	var out TutorReply
	if err := c.doJSON(ctx, http.MethodPost, tutorChatPath, req, &out); err != nil {
		return TutorReply{}, err
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method string, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// do sends one request and converts non-2xx responses into *StatusError.
func (c *Client) do(ctx context.Context, method string, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, newStatusError(resp)
	}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("read auth token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	count := 0
	for i := range text {
		if count == limit {
			return text[:i]
		}
		count++
	}
	return text
}
