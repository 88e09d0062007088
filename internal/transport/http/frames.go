package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"moodquiz-service/internal/capture"
	"moodquiz-service/internal/pkg/logger"
)

const maxFrameBytes = 2 << 20

// FramePublisher receives webcam frames pushed by a user's browser. Publish
// reports whether the frame was accepted.
type FramePublisher interface {
	Connect(userID string) (disconnect func())
	Publish(userID string, frame capture.Frame) bool
}

// FrameHandler accepts a websocket stream of binary image frames from an
// identified user and feeds them to the capture device. Capture sessions of
// that user can acquire the device while the stream is connected; frames from
// other users never reach their sessions.
type FrameHandler struct {
	feed     FramePublisher
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewFrameHandler(feed FramePublisher, log *logger.Logger) *FrameHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &FrameHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With("service", "http.FrameHandler"),
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type frameAck struct {
	Frames   int  `json:"frames"`
	Accepted bool `json:"accepted"`
}

// ServeWS requires the X-User-ID header, upgrades the request and publishes
// every binary message as a frame of that user. The MIME type of the frames
// comes from the "mime" query parameter.
func (h *FrameHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	requireUser(h.serveFrames)(w, r)
}

func (h *FrameHandler) serveFrames(w http.ResponseWriter, r *http.Request, userID string) {
	mimeType := r.URL.Query().Get("mime")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBytes)

	disconnect := h.feed.Connect(userID)
	defer disconnect()

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})

	// Single writer; gorilla connections do not support concurrent writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "error", err)
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "connected", Payload: struct{}{}}

	frames := 0
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if kind != websocket.BinaryMessage {
			trySend(send, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "frames must be binary messages"}})
			continue
		}
		if len(data) == 0 {
			continue
		}
		accepted := h.feed.Publish(userID, capture.Frame{Data: data, MIMEType: mimeType})
		if accepted {
			frames++
		}
		trySend(send, outboundMessage[any]{Type: "frameAck", Payload: frameAck{Frames: frames, Accepted: accepted}})
	}

	close(send)
	<-writerDone
	h.log.Debug("frame stream closed", "user_id", userID, "frames", frames)
}

// trySend drops the message when the writer is behind; acks are advisory.
func trySend(send chan<- outboundMessage[any], msg outboundMessage[any]) {
	select {
	case send <- msg:
	default:
	}
}
