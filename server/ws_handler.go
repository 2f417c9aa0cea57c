package server

import (
	"net/http"

	"echowall/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 事件只是刷新提示，对来源不做限制
	CheckOrigin: func(r *http.Request) bool { return true },
}

// EventsHandler 把连接升级为websocket并订阅目录事件
func (h *APIHandler) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		http.Error(w, "events unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket升级失败", logger.ErrorField(err))
		return
	}

	h.hub.Subscribe(conn)
}
