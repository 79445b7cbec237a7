package olympus

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gridcast/stlf/pkg/charon"
	"github.com/gridcast/stlf/pkg/domain"
	"github.com/gridcast/stlf/pkg/persephone"
)

// Stream message kinds.
const (
	StreamStage  = "stage"
	StreamResult = "result"
	StreamError  = "error"
)

// StreamMessage is one frame on the run stream: a stage event while the
// pipeline works, then exactly one result or error.
type StreamMessage struct {
	Type   string             `json:"type"`
	Event  *domain.StageEvent `json:"event,omitempty"`
	Result *RunResponse       `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
	Status int                `json:"status,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

const streamWriteTimeout = 10 * time.Second

func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.Logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	send := func(msg StreamMessage) {
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			s.Logger.Warn("Stream write failed", "error", err)
		}
	}

	res, err := s.Pipeline.Run(r.Context(), persephone.RunRequest{
		UploadID: domain.UploadID(r.URL.Query().Get("upload_id")),
		Observer: func(e domain.StageEvent) {
			send(StreamMessage{Type: StreamStage, Event: &e})
		},
	})
	if err != nil {
		httpErr := charon.ToHTTPError(err)
		send(StreamMessage{Type: StreamError, Error: httpErr.Message, Status: httpErr.HTTPStatusCode()})
	} else {
		send(StreamMessage{Type: StreamResult, Result: &RunResponse{
			Message:     "Pipeline completed",
			RunID:       res.Run.ID,
			DownloadURL: downloadURL(res.Run.ID),
			Report:      res.Run.Report,
		}})
	}

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
