package mcpserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// sessionStreamID derives the eventstore stream identifier for a tool call's
// originating session, so that every call within one MCP session lands in
// the same durable stream and can be replayed together after a reconnect.
func sessionStreamID(req *mcpsdk.CallToolRequest) string {
	if req == nil || req.Session == nil {
		return "anonymous"
	}
	return req.Session.ID()
}

// recordAudit appends a durable record of a tool invocation to the event
// store, independent of whatever resumption hook the SDK transport itself
// provides — this is the server's own audit trail (spec-mandated durable
// per-session event log), queryable via ResumeHandler.
func (s *Server) recordAudit(streamID, tool string, input any) {
	if s.events == nil {
		return
	}
	_, err := s.events.StoreEvent(streamID, map[string]any{
		"tool":  tool,
		"input": input,
	}, "")
	if err != nil {
		s.logger.Warn("failed to record tool-call audit event", "tool", tool, "stream", streamID, "error", err)
	}
}

// ResumeHandler serves GET /mcp/resume/{sessionID}, replaying every event
// recorded for a session after the client's Last-Event-ID header, in the
// style of an SSE resumption endpoint. This lets a reconnecting client catch
// up on tool-call audit events it may have missed.
func (s *Server) ResumeHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("sessionID")
		if sessionID == "" {
			http.Error(w, "sessionID is required", http.StatusBadRequest)
			return
		}
		lastEventID := r.Header.Get("Last-Event-ID")

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		flusher, ok := w.(http.Flusher)

		send := func(eventID string, message any) error {
			data, err := json.Marshal(message)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "id: %s\ndata: %s\n\n", eventID, data); err != nil {
				return err
			}
			if ok {
				flusher.Flush()
			}
			return nil
		}

		if _, err := s.events.ReplayEventsAfter(lastEventID, send, ""); err != nil {
			s.logger.Warn("resume replay failed", "session", sessionID, "error", err)
		}
	})
}
