package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/htangden/lastbil-optimering/internal/model"
)

const heartbeatInterval = 15 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// terminalEvent describes a finished plan for late subscribers.
func terminalEvent(p model.Plan) SSEEvent {
	typ := eventCompleted
	if p.Status != model.PlanCompleted {
		typ = eventFailed
	}
	pr := model.Progress{Type: typ, PlanID: p.ID, Status: string(p.Status)}
	if p.Result != nil {
		pr.BestObjective = p.Result.Objective
	}
	return newEvent(typ, pr)
}

// subscribePlan subscribes before reading the plan so a completion between
// the two cannot be missed. done is non-nil when the plan already finished.
func (s *Server) subscribePlan(r *http.Request, tenant, id string) (ch chan SSEEvent, done *SSEEvent, err error) {
	ch = s.Broker.Subscribe(id)
	plan, err := s.Store.GetPlan(r.Context(), tenant, id)
	if err != nil {
		s.Broker.Unsubscribe(id, ch)
		return nil, nil, err
	}
	if plan.Status.Done() {
		evt := terminalEvent(plan)
		return ch, &evt, nil
	}
	return ch, nil, nil
}

// streamSSE serves GET /v1/plans/{id}/events/stream until the plan finishes
// or the client goes away.
func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request, tenant, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch, done, err := s.subscribePlan(r, tenant, id)
	if err != nil {
		writeStoreError(w, r, "Get plan failed", err)
		return
	}
	defer s.Broker.Unsubscribe(id, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	send := func(evt SSEEvent) {
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", evt.Data)
		flusher.Flush()
	}
	heartbeat := func() {
		send(newEvent("heartbeat", map[string]string{"planId": id, "ts": time.Now().UTC().Format(time.RFC3339)}))
	}
	heartbeat()
	if done != nil {
		send(*done)
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if evt.Terminal() {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}

// streamWS serves GET /v1/plans/{id}/ws: every broker event is written as
// one JSON text message; the server closes normally after the terminal one.
func (s *Server) streamWS(w http.ResponseWriter, r *http.Request, tenant, id string) {
	ch, done, err := s.subscribePlan(r, tenant, id)
	if err != nil {
		writeStoreError(w, r, "Get plan failed", err)
		return
	}
	defer s.Broker.Unsubscribe(id, ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// drain client frames so close and pong control messages are handled
	closed := make(chan struct{})
	conn.SetReadLimit(1 << 16)
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	finish := func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "plan finished")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	if done != nil {
		_ = conn.WriteJSON(done)
		finish()
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
			if evt.Terminal() {
				finish()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
