package tutor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	lecturePath      = "/ws/live-lecture"
	lectureWriteWait = 5 * time.Second
)

// lectureFrame is one live-lecture websocket message in either direction.
type lectureFrame struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	IsUser  *bool  `json:"isUser,omitempty"`
	Message string `json:"message,omitempty"`
}

// LectureResponder keeps one live-lecture websocket session open and sends
// each user turn as a text frame.
type LectureResponder struct {
	url    string
	dialer *websocket.Dialer

	mu       sync.Mutex
	conn     *websocket.Conn
	greeting string
}

// LectureURL derives the websocket endpoint from the backend base URL when
// raw is empty, and appends the learner profile as query parameters.
func LectureURL(raw string, baseURL string, profile Profile) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		base, err := url.Parse(strings.TrimSpace(baseURL))
		if err != nil || base.Host == "" {
			return "", fmt.Errorf("derive lecture url from %q: invalid base url", baseURL)
		}
		switch base.Scheme {
		case "https":
			base.Scheme = "wss"
		default:
			base.Scheme = "ws"
		}
		base.Path = strings.TrimRight(base.Path, "/") + lecturePath
		raw = base.String()
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse lecture url %q: %w", raw, err)
	}
	query := parsed.Query()
	if profile.GradeLevel > 0 {
		query.Set("gradeLevel", strconv.Itoa(profile.GradeLevel))
	}
	if profile.AgeGroup != "" {
		query.Set("educationLevel", profile.AgeGroup)
	}
	if profile.Subject != "" {
		query.Set("subjects", profile.Subject)
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// NewLectureResponder builds a responder for the websocket endpoint at rawURL.
func NewLectureResponder(rawURL string) *LectureResponder {
	return &LectureResponder{
		url:    rawURL,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Greeting returns the opening turn the server sends on connect.
func (l *LectureResponder) Greeting(ctx context.Context) (Reply, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.connect(ctx); err != nil {
		return Reply{}, err
	}
	text := l.greeting
	l.greeting = ""
	if text == "" {
		return Reply{}, nil
	}
	return Reply{Text: text, Emotion: "friendly"}, nil
}

// Respond sends text and collects the tutor's reply until the turn completes.
func (l *LectureResponder) Respond(ctx context.Context, text string) (Reply, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.connect(ctx); err != nil {
		return Reply{}, err
	}
	l.greeting = ""

	conn := l.conn
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_ = conn.SetWriteDeadline(time.Now().Add(lectureWriteWait))
	if err := conn.WriteJSON(lectureFrame{Type: "text", Data: text}); err != nil {
		l.reset()
		return Reply{}, l.wrap(ctx, "send turn", err)
	}

	reply, err := readTurn(conn)
	if err != nil {
		var remote *lectureError
		if !errors.As(err, &remote) {
			l.reset()
		}
		return Reply{}, l.wrap(ctx, "read reply", err)
	}
	if reply == "" {
		return Reply{}, errors.New("lecture: empty reply")
	}
	return Reply{Text: reply, Emotion: DetectEmotion(reply)}, nil
}

// Close ends the websocket session.
func (l *LectureResponder) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	_ = l.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	l.reset()
	return nil
}

// connect dials when no session is open and consumes the greeting turn.
// Caller holds l.mu.
func (l *LectureResponder) connect(ctx context.Context) error {
	if l.conn != nil {
		return nil
	}
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("lecture: dial %s: %w", l.url, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	greeting, err := readTurn(conn)
	stop()
	if err != nil {
		_ = conn.Close()
		return l.wrap(ctx, "read greeting", err)
	}
	l.conn = conn
	l.greeting = greeting
	return nil
}

// reset drops the connection so the next turn redials. Caller holds l.mu.
func (l *LectureResponder) reset() {
	if l.conn != nil {
		_ = l.conn.Close()
		l.conn = nil
	}
}

func (l *LectureResponder) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("lecture: %s: %w", op, ctx.Err())
	}
	return fmt.Errorf("lecture: %s: %w", op, err)
}

type lectureError struct {
	message string
}

func (e *lectureError) Error() string {
	return "server error: " + e.message
}

// readTurn reads frames until turn_complete and joins the tutor text frames.
func readTurn(conn *websocket.Conn) (string, error) {
	var parts []string
	for {
		var frame lectureFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return "", err
		}
		switch frame.Type {
		case "text":
			if frame.IsUser != nil && *frame.IsUser {
				continue
			}
			if text := strings.TrimSpace(frame.Data); text != "" {
				parts = append(parts, text)
			}
		case "error":
			return "", &lectureError{message: frame.Message}
		case "turn_complete":
			return strings.Join(parts, " "), nil
		}
	}
}
