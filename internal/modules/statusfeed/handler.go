package statusfeed

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,

	// origin checking is handled by the CORS layer in front
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws/bookings", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and hands it to the hub, which
// streams booking status events until the client goes away.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("statusfeed upgrade failed: %v", err)
		return
	}

	subscriberID := uuid.NewString()
	log.Printf("statusfeed subscriber connected id=%s total=%d", subscriberID, h.hub.SubscriberCount()+1)

	h.hub.ServeWS(subscriberID, conn)

	log.Printf("statusfeed subscriber disconnected id=%s", subscriberID)
}
