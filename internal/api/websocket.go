package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"backtest-core/internal/eventbus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamRunProgress upgrades to a websocket and relays run-lifecycle
// events until the client disconnects.
func (s *Server) streamRunProgress(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"event bus not ready"}`))
		return
	}

	events := []eventbus.Event{
		eventbus.EventRunStarted, eventbus.EventOrderFilled,
		eventbus.EventRunFinished, eventbus.EventRunFailed,
	}
	streams := make([]<-chan any, len(events))
	unsubs := make([]func(), len(events))
	for i, e := range events {
		streams[i], unsubs[i] = s.Bus.Subscribe(e, 100)
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}()

	merged := mergeChannels(streams)
	for msg := range merged {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}

func mergeChannels(streams []<-chan any) <-chan any {
	out := make(chan any)
	var wg sync.WaitGroup
	wg.Add(len(streams))

	for _, s := range streams {
		go func(s <-chan any) {
			defer wg.Done()
			for v := range s {
				out <- v
			}
		}(s)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}
