package kernel

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("a0436f6c-1916-498b-8eb9-e81ab9368e84")

// recordingSocket captures everything sent through it.
type recordingSocket struct {
	zmq4.Socket
	sent []zmq4.Msg
}

func (s *recordingSocket) Send(msg zmq4.Msg) error {
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSocket) SendMulti(msg zmq4.Msg) error {
	return s.Send(msg)
}

type testSockets struct {
	shell *recordingSocket
	iopub *recordingSocket
	group SocketGroup
}

func newTestSockets() *testSockets {
	ts := &testSockets{shell: &recordingSocket{}, iopub: &recordingSocket{}}
	ts.group = SocketGroup{
		ShellSocket: Socket{Socket: ts.shell, Lock: &sync.Mutex{}},
		IOPubSocket: Socket{Socket: ts.iopub, Lock: &sync.Mutex{}},
		Key:         testKey,
	}
	return ts
}

func newTestReceipt(t *testing.T, sockets *testSockets, msgType string, content interface{}) msgReceipt {
	t.Helper()

	raw, err := json.Marshal(content)
	require.NoError(t, err)

	return msgReceipt{
		Msg: ComposedMsg{
			Header: MsgHeader{
				MsgID:    "request-1",
				Session:  "session-1",
				Username: "tester",
				MsgType:  msgType,
			},
			Content: json.RawMessage(raw),
		},
		Identities: [][]byte{[]byte("client")},
		Sockets:    sockets.group,
	}
}

type sentMsg struct {
	ComposedMsg
	content map[string]interface{}
}

func decodeSent(t *testing.T, sock *recordingSocket) []sentMsg {
	t.Helper()

	out := make([]sentMsg, 0, len(sock.sent))
	for _, m := range sock.sent {
		msg, ids, err := WireMsgToComposedMsg(m.Frames, testKey)
		require.NoError(t, err)
		require.Equal(t, [][]byte{[]byte("client")}, ids)

		var content map[string]interface{}
		require.NoError(t, msg.DecodeContent(&content))
		out = append(out, sentMsg{ComposedMsg: msg, content: content})
	}
	return out
}

func msgTypes(msgs []sentMsg) []string {
	types := make([]string, len(msgs))
	for i, m := range msgs {
		types[i] = m.Header.MsgType
	}
	return types
}
