package stream

import "testing"

func TestDecodeSocketIOFrame(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		kind    frameKind
		channel string
		payload string
		info    string
	}{
		{name: "open", in: `0{"sid":"abc","pingInterval":25000}`, kind: frameOpen, info: `{"sid":"abc","pingInterval":25000}`},
		{name: "ping", in: "2", kind: framePing},
		{name: "pong ignored", in: "3", kind: frameIgnore},
		{name: "namespace connected", in: `40{"sid":"xyz"}`, kind: frameConnected, info: `{"sid":"xyz"}`},
		{name: "event", in: `42["log",{"data":"Parsing..."}]`, kind: frameEvent, channel: "log", payload: `{"data":"Parsing..."}`},
		{name: "event with namespace and ack", in: `42/audit,7["log",{"data":"x"}]`, kind: frameEvent, channel: "log", payload: `{"data":"x"}`},
		{name: "event without payload", in: `42["log"]`, kind: frameEvent, channel: "log", payload: "null"},
		{name: "connect error", in: `44{"message":"not allowed"}`, kind: frameConnectError, info: "not allowed"},
		{name: "disconnect", in: "41", kind: frameDisconnected},
		{name: "engine close", in: "1", kind: frameDisconnected},
		{name: "bad json", in: `42["log",{`, kind: frameMalformed},
		{name: "non-string name", in: `42[1,{"data":"x"}]`, kind: frameMalformed},
		{name: "empty", in: "", kind: frameMalformed},
		{name: "empty message", in: "4", kind: frameMalformed},
		{name: "noop", in: "6", kind: frameIgnore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decodeFrame(FramingSocketIO, []byte(tc.in))
			if got.kind != tc.kind {
				t.Fatalf("kind = %v, want %v (%+v)", got.kind, tc.kind, got)
			}
			if tc.kind == frameEvent {
				if got.event.Channel != tc.channel {
					t.Fatalf("channel = %q, want %q", got.event.Channel, tc.channel)
				}
				if string(got.event.Payload) != tc.payload {
					t.Fatalf("payload = %s, want %s", got.event.Payload, tc.payload)
				}
			}
			if tc.info != "" && got.info != tc.info {
				t.Fatalf("info = %q, want %q", got.info, tc.info)
			}
		})
	}
}

func TestDecodeJSONFrame(t *testing.T) {
	got := decodeFrame(FramingJSON, []byte(`{"event":"log","data":{"data":"Done."}}`))
	if got.kind != frameEvent || got.event.Channel != "log" {
		t.Fatalf("unexpected frame %+v", got)
	}
	text, ok := got.event.Data()
	if !ok || text != "Done." {
		t.Fatalf("Data() = %q, %v", text, ok)
	}

	for _, bad := range []string{`not json`, `{"data":{}}`, `{"event":"log"}`, `{"event":3,"data":{}}`} {
		if f := decodeFrame(FramingJSON, []byte(bad)); f.kind != frameMalformed {
			t.Fatalf("%s: kind = %v, want malformed", bad, f.kind)
		}
	}
}

func TestEventData(t *testing.T) {
	cases := []struct {
		payload string
		want    string
		ok      bool
	}{
		{payload: `{"data":"line"}`, want: "line", ok: true},
		{payload: `{"data":""}`, want: "", ok: true},
		{payload: `{"data":42}`},
		{payload: `{"other":"x"}`},
		{payload: `null`},
		{payload: `{`},
	}
	for _, tc := range cases {
		got, ok := Event{Channel: ChannelLog, Payload: []byte(tc.payload)}.Data()
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%s: Data() = %q, %v; want %q, %v", tc.payload, got, ok, tc.want, tc.ok)
		}
	}
}
