package subscription

import "encoding/json"

// 消息类型，兼容 subscriptions-transport-ws 协议
const (
	TypeConnectionInit      = "connection_init"
	TypeStart               = "start"
	TypeStop                = "stop"
	TypeConnectionTerminate = "connection_terminate"

	TypeConnectionAck   = "connection_ack"
	TypeConnectionError = "connection_error"
	TypeData            = "data"
	TypeError           = "error"
	TypeComplete        = "complete"
	TypeKeepAlive       = "ka"
)

// Subprotocol websocket 子协议名
const Subprotocol = "graphql-ws"

// 订阅操作名
const (
	OperationMessageAdded = "messageAdded"
	OperationGroupAdded   = "groupAdded"
)

// OperationMessage 协议帧
type OperationMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// InitPayload connection_init 携带的认证信息
type InitPayload struct {
	AuthToken string `json:"authToken"`
}

// StartPayload start 携带的订阅请求
type StartPayload struct {
	OperationName string          `json:"operationName"`
	Variables     json.RawMessage `json:"variables"`
}

// ErrorPayload error / connection_error 的内容
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func newMessage(id, typ string, payload any) OperationMessage {
	msg := OperationMessage{ID: id, Type: typ}
	if payload != nil {
		// payload 都是可序列化的内部结构
		data, _ := json.Marshal(payload)
		msg.Payload = data
	}
	return msg
}

// dataPayload data 帧内容：{"data": {"<operationName>": <node>}}
func dataPayload(operation string, node any) map[string]any {
	return map[string]any{"data": map[string]any{operation: node}}
}
