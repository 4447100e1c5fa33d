package stream

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Framing 决定 websocket 文本帧如何解析成 Event。
type Framing string

const (
	// FramingSocketIO 兼容 Engine.IO v4 / Socket.IO v5 文本帧。
	FramingSocketIO Framing = "socketio"
	// FramingJSON 每帧是一个 {"event": ..., "data": ...} 对象。
	FramingJSON Framing = "json"
)

// frameKind 是解析后的帧语义。
type frameKind int

const (
	frameIgnore frameKind = iota
	frameEvent
	frameOpen
	framePing
	frameConnected
	frameDisconnected
	frameConnectError
	frameMalformed
)

type frame struct {
	kind  frameKind
	event Event
	info  string
}

func decodeFrame(f Framing, msg []byte) frame {
	if f == FramingJSON {
		return decodeJSONFrame(msg)
	}
	return decodeSocketIOFrame(string(msg))
}

func decodeJSONFrame(msg []byte) frame {
	if !gjson.ValidBytes(msg) {
		return frame{kind: frameMalformed, info: "invalid json"}
	}
	name := gjson.GetBytes(msg, "event")
	if name.Type != gjson.String || name.String() == "" {
		return frame{kind: frameMalformed, info: "missing event name"}
	}
	data := gjson.GetBytes(msg, "data")
	if !data.Exists() {
		return frame{kind: frameMalformed, info: "missing data"}
	}
	return frame{kind: frameEvent, event: Event{Channel: name.String(), Payload: []byte(data.Raw)}}
}

// Engine.IO 包类型前缀 + Socket.IO 包类型前缀。
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioMessage = '4'

	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

func decodeSocketIOFrame(msg string) frame {
	if msg == "" {
		return frame{kind: frameMalformed, info: "empty frame"}
	}
	body := msg[1:]
	switch msg[0] {
	case eioOpen:
		return frame{kind: frameOpen, info: body}
	case eioPing:
		return frame{kind: framePing}
	case eioClose:
		return frame{kind: frameDisconnected, info: "engine.io close"}
	case eioMessage:
	default:
		return frame{kind: frameIgnore}
	}
	if body == "" {
		return frame{kind: frameMalformed, info: "empty socket.io packet"}
	}
	packetType, rest := body[0], body[1:]
	rest = stripNamespace(rest)
	switch packetType {
	case sioConnect:
		return frame{kind: frameConnected, info: rest}
	case sioDisconnect:
		return frame{kind: frameDisconnected, info: "socket.io disconnect"}
	case sioConnectError:
		return frame{kind: frameConnectError, info: gjson.Get(rest, "message").String()}
	case sioEvent:
	default:
		return frame{kind: frameIgnore}
	}
	rest = strings.TrimLeft(rest, "0123456789")
	if !gjson.Valid(rest) {
		return frame{kind: frameMalformed, info: "invalid event array"}
	}
	name := gjson.Get(rest, "0")
	if name.Type != gjson.String {
		return frame{kind: frameMalformed, info: "missing event name"}
	}
	payload := gjson.Get(rest, "1")
	raw := payload.Raw
	if !payload.Exists() {
		raw = "null"
	}
	return frame{kind: frameEvent, event: Event{Channel: name.String(), Payload: []byte(raw)}}
}

// stripNamespace 去掉 "/ns," 形式的命名空间前缀。
func stripNamespace(s string) string {
	if !strings.HasPrefix(s, "/") {
		return s
	}
	if idx := strings.IndexByte(s, ','); idx != -1 {
		return s[idx+1:]
	}
	return ""
}
