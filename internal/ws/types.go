package ws

import (
	"encoding/json"
)

// Channel 推送消息所属频道
type Channel string

const (
	ChannelSystem          Channel = "system"
	ChannelPostgresChanges Channel = "postgres_changes"
	ChannelPong            Channel = "pong"
)

// 客户端请求方法
const (
	MethodSubscribe = "subscribe"
	MethodPing      = "ping"
)

// Request 客户端发往服务端的请求
type Request struct {
	Method string `json:"method"`
	Table  string `json:"table,omitempty"`
}

// WsMessage 服务端推送
type WsMessage struct {
	Channel Channel         `json:"channel"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// SystemData system 频道载荷
type SystemData struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Callback 消息回调函数
type Callback func(msg WsMessage) error

func systemMessage(status, message string) []byte {
	data, _ := json.Marshal(SystemData{Status: status, Message: message})
	out, _ := json.Marshal(WsMessage{Channel: ChannelSystem, Data: data})
	return out
}
