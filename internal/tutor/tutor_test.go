package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rbright/studyvoice/internal/backend"
	"github.com/stretchr/testify/require"
)

func TestDetectEmotion(t *testing.T) {
	tests := []struct {
		reply string
		want  string
	}{
		{reply: "Great job, that is right!", want: "excited"},
		{reply: "Let's try a smaller number first.", want: "encouraging"},
		{reply: "Think about what happens when x is zero.", want: "encouraging"},
		{reply: "Photosynthesis turns light into sugar.", want: "friendly"},
		{reply: "", want: "friendly"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, DetectEmotion(tc.reply), tc.reply)
	}
}

func TestHistoryKeepsMostRecentMessages(t *testing.T) {
	var h history
	for i := range 14 {
		h.add(RoleUser, fmt.Sprintf("m%d", i))
	}

	got := h.snapshot()
	require.Len(t, got, historyLimit)
	require.Equal(t, "m4", got[0].Content)
	require.Equal(t, "m13", got[len(got)-1].Content)

	got[0].Content = "mutated"
	require.Equal(t, "m4", h.snapshot()[0].Content)
}

type fakeChat struct {
	req   backend.TutorRequest
	reply backend.TutorReply
	err   error
}

func (f *fakeChat) TutorChat(_ context.Context, req backend.TutorRequest) (backend.TutorReply, error) {
	f.req = req
	return f.reply, f.err
}

func TestHTTPResponderSendsQuestion(t *testing.T) {
	chat := &fakeChat{}
	chat.reply.Message.Content = "  Great, now divide both sides.  "
	chat.reply.Strategy = "scaffold"

	responder := NewHTTPResponder(chat, " ")
	start := responder.started
	responder.now = func() time.Time { return start.Add(42 * time.Second) }

	reply, err := responder.Respond(context.Background(), "how do I solve 2x = 4")
	require.NoError(t, err)
	require.Equal(t, "Great, now divide both sides.", reply.Text)
	require.Equal(t, "excited", reply.Emotion)
	require.Equal(t, "scaffold", reply.Strategy)
	require.Equal(t, "general", chat.req.Subject)
	require.Equal(t, "how do I solve 2x = 4", chat.req.Question)
	require.Equal(t, 42, chat.req.TimeSpent)
}

func TestHTTPResponderErrors(t *testing.T) {
	chat := &fakeChat{err: errors.New("boom")}
	_, err := NewHTTPResponder(chat, "math").Respond(context.Background(), "hi")
	require.ErrorContains(t, err, "boom")

	chat = &fakeChat{}
	_, err = NewHTTPResponder(chat, "math").Respond(context.Background(), "hi")
	require.ErrorContains(t, err, "empty reply")
}

func newTestOpenAIResponder(t *testing.T, handler http.HandlerFunc) *OpenAIResponder {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	responder, err := NewOpenAIResponder(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL + "/v1",
		Profile: Profile{Subject: "algebra", GradeLevel: 7},
	})
	require.NoError(t, err)
	return responder
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   DefaultOpenAIModel,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func TestOpenAIResponderCarriesHistory(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []map[string]any
	)
	responder := newTestOpenAIResponder(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		requests = append(requests, body)
		n := len(requests)
		mu.Unlock()
		writeCompletion(w, fmt.Sprintf("Let's try step %d.", n))
	})
	require.Equal(t, DefaultOpenAIModel, responder.Model())

	reply, err := responder.Respond(context.Background(), "what is a variable")
	require.NoError(t, err)
	require.Equal(t, "Let's try step 1.", reply.Text)
	require.Equal(t, "encouraging", reply.Emotion)

	_, err = responder.Respond(context.Background(), "and a constant")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 2)
	messages := requests[1]["messages"].([]any)
	require.Len(t, messages, 4)

	system := messages[0].(map[string]any)
	require.Equal(t, "system", system["role"])
	require.Contains(t, system["content"], "grade 7")
	require.Contains(t, system["content"], "algebra")
	require.Equal(t, "Let's try step 1.", messages[2].(map[string]any)["content"])
	require.Equal(t, "and a constant", messages[3].(map[string]any)["content"])
}

func TestOpenAIResponderErrors(t *testing.T) {
	_, err := NewOpenAIResponder(OpenAIConfig{})
	require.ErrorContains(t, err, "API key")

	responder := newTestOpenAIResponder(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})
	_, err = responder.Respond(context.Background(), "hi")
	require.ErrorContains(t, err, "tutor chat completion")

	responder = newTestOpenAIResponder(t, func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(w, "   ")
	})
	_, err = responder.Respond(context.Background(), "hi")
	require.ErrorContains(t, err, "empty reply")
}

func TestLectureURL(t *testing.T) {
	profile := Profile{Subject: "biology", GradeLevel: 9, AgeGroup: "teen"}

	got, err := LectureURL("", "https://api.example.com/", profile)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(got, "wss://api.example.com/ws/live-lecture?"), got)
	require.Contains(t, got, "gradeLevel=9")
	require.Contains(t, got, "educationLevel=teen")
	require.Contains(t, got, "subjects=biology")

	got, err = LectureURL("ws://localhost:9000/custom?x=1", "", Profile{})
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:9000/custom?x=1", got)

	_, err = LectureURL("", "not a url", profile)
	require.Error(t, err)
}

// lectureServer mimics the live-lecture protocol: greeting on connect, then
// one reply turn per text frame.
func lectureServer(t *testing.T, onText func(conn *websocket.Conn, text string)) (string, *sync.WaitGroup) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var connects sync.WaitGroup

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		connects.Done()

		isUser := false
		_ = conn.WriteJSON(map[string]any{"type": "setup_complete"})
		_ = conn.WriteJSON(map[string]any{"type": "text", "data": "Hello! Ready to learn " + r.URL.Query().Get("subjects") + "?", "isUser": isUser})
		_ = conn.WriteJSON(map[string]any{"type": "audio", "data": "UklGRg=="})
		_ = conn.WriteJSON(map[string]any{"type": "turn_complete"})

		for {
			var frame lectureFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			onText(conn, frame.Data)
		}
	}))
	t.Cleanup(server.Close)

	rawURL, err := LectureURL("", server.URL, Profile{Subject: "physics"})
	require.NoError(t, err)
	return rawURL, &connects
}

func TestLectureResponderGreetingAndTurns(t *testing.T) {
	rawURL, connects := lectureServer(t, func(conn *websocket.Conn, text string) {
		_ = conn.WriteJSON(map[string]any{"type": "user_text", "data": text})
		_ = conn.WriteJSON(map[string]any{"type": "text", "data": text, "isUser": true})
		_ = conn.WriteJSON(map[string]any{"type": "text", "data": "Great question."})
		_ = conn.WriteJSON(map[string]any{"type": "text", "data": "Force equals mass times acceleration."})
		_ = conn.WriteJSON(map[string]any{"type": "turn_complete"})
	})
	connects.Add(1)

	responder := NewLectureResponder(rawURL)
	t.Cleanup(func() { _ = responder.Close() })

	greeting, err := responder.Greeting(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Hello! Ready to learn physics?", greeting.Text)

	again, err := responder.Greeting(context.Background())
	require.NoError(t, err)
	require.Empty(t, again.Text)

	reply, err := responder.Respond(context.Background(), "what is force")
	require.NoError(t, err)
	require.Equal(t, "Great question. Force equals mass times acceleration.", reply.Text)
	require.Equal(t, "excited", reply.Emotion)

	_, err = responder.Respond(context.Background(), "and mass")
	require.NoError(t, err)
	connects.Wait()
}

func TestLectureResponderRespondWithoutGreetingSkipsIt(t *testing.T) {
	rawURL, connects := lectureServer(t, func(conn *websocket.Conn, _ string) {
		_ = conn.WriteJSON(map[string]any{"type": "text", "data": "Sure."})
		_ = conn.WriteJSON(map[string]any{"type": "turn_complete"})
	})
	connects.Add(1)

	responder := NewLectureResponder(rawURL)
	t.Cleanup(func() { _ = responder.Close() })

	reply, err := responder.Respond(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "Sure.", reply.Text)
}

func TestLectureResponderServerError(t *testing.T) {
	rawURL, connects := lectureServer(t, func(conn *websocket.Conn, text string) {
		if text == "fail" {
			_ = conn.WriteJSON(map[string]any{"type": "error", "message": "model overloaded"})
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "text", "data": "Recovered."})
		_ = conn.WriteJSON(map[string]any{"type": "turn_complete"})
	})
	connects.Add(1)

	responder := NewLectureResponder(rawURL)
	t.Cleanup(func() { _ = responder.Close() })

	_, err := responder.Respond(context.Background(), "fail")
	require.ErrorContains(t, err, "model overloaded")

	reply, err := responder.Respond(context.Background(), "again")
	require.NoError(t, err)
	require.Equal(t, "Recovered.", reply.Text)
	connects.Wait()
}

func TestLectureResponderCancelRedials(t *testing.T) {
	release := make(chan struct{})
	rawURL, connects := lectureServer(t, func(conn *websocket.Conn, text string) {
		if text == "hang" {
			<-release
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "text", "data": "Back."})
		_ = conn.WriteJSON(map[string]any{"type": "turn_complete"})
	})
	connects.Add(2)
	t.Cleanup(func() { close(release) })

	responder := NewLectureResponder(rawURL)
	t.Cleanup(func() { _ = responder.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := responder.Respond(ctx, "hang")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	reply, err := responder.Respond(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, "Back.", reply.Text)
	connects.Wait()
}

func TestLectureResponderDialFailure(t *testing.T) {
	responder := NewLectureResponder("ws://127.0.0.1:1/ws/live-lecture")
	_, err := responder.Respond(context.Background(), "hi")
	require.ErrorContains(t, err, "dial")
	require.NoError(t, responder.Close())
}
