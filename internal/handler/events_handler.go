package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"pcconv-go/internal/pipeline"
	"pcconv-go/internal/service"
	"pcconv-go/pkg/log"
	"pcconv-go/pkg/token"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	subscribeQueue = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// EventsHandler 通过 WebSocket 推送流水线事件。
type EventsHandler struct {
	hub        *service.ProgressHub
	jwtManager *token.JWTManager
}

// NewEventsHandler 创建一个新的 EventsHandler。
func NewEventsHandler(hub *service.ProgressHub, jwtManager *token.JWTManager) *EventsHandler {
	return &EventsHandler{hub: hub, jwtManager: jwtManager}
}

// Handle 处理 /api/v1/events/:token。默认不推送转换程序的逐行输出，?output=true 时推送。
func (h *EventsHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Param("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}
	withOutput := c.Query("output") == "true"

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("WebSocket 连接已建立, subject: %s", claims.Subject)

	events, unsubscribe := h.hub.Subscribe(subscribeQueue)
	defer unsubscribe()

	// 读循环只用于感知客户端关闭和处理 pong
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			log.Infof("WebSocket 连接已关闭, subject: %s", claims.Subject)
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type == pipeline.EventOutput && !withOutput {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				log.Warnf("写入 WebSocket 消息失败: %v", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
