// Package main submits a demo plan and follows its WebSocket progress stream.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const demoPlan = `{
  "name": "demo",
  "sources": [
    {"name": "Goteborg", "lat": 57.70, "lng": 11.97, "quantity": 400},
    {"name": "Jonkoping", "lat": 57.78, "lng": 14.16, "quantity": 250}
  ],
  "sinks": [
    {"name": "Stockholm", "lat": 59.33, "lng": 18.07, "quantity": 300},
    {"name": "Uppsala", "lat": 59.86, "lng": 17.64, "quantity": 150},
    {"name": "Vasteras", "lat": 59.61, "lng": 16.55, "quantity": 120}
  ]
}`

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	req, _ := http.NewRequest(http.MethodPost, base+"/v1/plans", bytes.NewReader([]byte(demoPlan)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "planner")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("submit: %s", resp.Status)
	}
	var accepted struct {
		PlanID string `json:"planId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		log.Fatal(err)
	}
	log.Printf("Plan ID: %s", accepted.PlanID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/plans/" + accepted.PlanID + "/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	_ = c.SetReadDeadline(time.Now().Add(time.Minute))
	for {
		var m event
		if err := c.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("read: %v", err)
			}
			break
		}
		log.Printf("WS <- %s: %s", m.Type, string(m.Data))
	}

	rep, err := http.Get(base + "/v1/plans/" + accepted.PlanID + "/report")
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = rep.Body.Close() }()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(rep.Body)
	fmt.Print(buf.String())
}
