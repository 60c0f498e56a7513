package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-errors/errors"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/the-lightning-land/reachd/connectivity"
	"github.com/the-lightning-land/reachd/daemon"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type watchEvent struct {
	Watch     string              `json:"watch"`
	Target    string              `json:"target"`
	Status    connectivity.Status `json:"status"`
	Label     string              `json:"label"`
	Reachable bool                `json:"reachable"`
	Time      time.Time           `json:"time"`
}

func (a *Api) handleGetWatchEvents() http.HandlerFunc {
	upgrader := &websocket.Upgrader{}

	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]

		client, err := a.watcher.SubscribeWatch(name)
		if errors.Is(err, daemon.ErrWatchNotFound) {
			a.jsonError(w, fmt.Sprintf("No watch with name %s found", name), http.StatusNotFound)
			return
		} else if err != nil {
			a.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			client.Cancel()
			a.log.Warnf("Could not upgrade events connection: %v", err)
			return
		}

		a.log.Debugf("Streaming events of watch %v to client %v", name, client.Id)

		// read pump
		go func() {
			defer client.Cancel()
			defer c.Close()

			c.SetReadLimit(512)
			c.SetReadDeadline(time.Now().Add(pongWait))
			c.SetPongHandler(func(string) error {
				c.SetReadDeadline(time.Now().Add(pongWait))
				return nil
			})

			for {
				_, _, err := c.ReadMessage()
				if err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						a.log.Errorf("unexpected websocket closure: %v", err)
					}
					break
				}
			}
		}()

		// write pump
		go func() {
			defer c.Close()

			ticker := time.NewTicker(pingPeriod)
			defer ticker.Stop()

			for {
				select {
				case event, ok := <-client.Events:
					c.SetWriteDeadline(time.Now().Add(writeWait))

					if !ok {
						c.WriteMessage(websocket.CloseMessage, []byte{})
						return
					}

					err := c.WriteJSON(&watchEvent{
						Watch:     event.Watch,
						Target:    event.Target.String(),
						Status:    event.Status,
						Label:     event.Status.String(),
						Reachable: event.Status.IsReachable(),
						Time:      event.Time,
					})
					if err != nil {
						return
					}
				case <-ticker.C:
					c.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()
	}
}
