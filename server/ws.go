package server

import (
	"context"
	"time"

	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// handleBidStream upgrades to a WebSocket and writes every new bid of the
// vault's LPDA as one JSON message.
func (s *Server) handleBidStream(c *gin.Context) {
	v, ok := s.vault(c)
	if !ok {
		return
	}
	if v.LPDA == nil {
		writeError(c, sdkerr.Configuration("server.bidStream", "vault has no LPDA module"))
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Errorf("Failed to upgrade connection to WebSocket: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bids := make(chan types.Bid, 64)
	sub, err := v.LPDA.SubscribeBids(ctx, bids)
	if err != nil {
		s.log.Errorf("Failed to subscribe to bids of vault %s: %v", v.Address.Hex(), err)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"))
		return
	}
	defer sub.Unsubscribe()
	s.log.Infof("Streaming bids of vault %s to %s", v.Address.Hex(), conn.RemoteAddr())

	go s.readPump(conn, cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case bid := <-bids:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(bid); err != nil {
				s.log.Warnf("Dropping bid stream client: %v", err)
				return
			}
		case err := <-sub.Err():
			if err != nil {
				s.log.Errorf("Bid subscription of vault %s failed: %v", v.Address.Hex(), err)
			}
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readPump drains client frames so control messages are processed, and
// cancels the stream once the client goes away.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Errorf("WebSocket read error: %v", err)
			}
			return
		}
	}
}
