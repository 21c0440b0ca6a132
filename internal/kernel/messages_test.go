package kernel

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func wireFrames(t *testing.T, msg ComposedMsg, key []byte) [][]byte {
	t.Helper()
	frames, err := msg.ToWireMsg(key)
	require.NoError(t, err)
	return append([][]byte{[]byte("id-1"), []byte("id-2"), delimiter}, frames...)
}

func TestWireRoundTrip(t *testing.T) {
	parent := ComposedMsg{Header: MsgHeader{MsgID: "p", Session: "s", Username: "u", MsgType: "complete_request"}}
	msg, err := NewMsg("complete_reply", parent)
	require.NoError(t, err)
	msg.Content = map[string]interface{}{"status": "ok"}

	got, ids, err := WireMsgToComposedMsg(wireFrames(t, msg, testKey), testKey)
	require.NoError(t, err)

	assert.Equal(t, [][]byte{[]byte("id-1"), []byte("id-2")}, ids)
	assert.Equal(t, msg.Header, got.Header)
	assert.Equal(t, parent.Header, got.ParentHeader)
	assert.Equal(t, "s", got.Header.Session)
	assert.Equal(t, ProtocolVersion, got.Header.ProtocolVersion)
	assert.NotEmpty(t, got.Header.MsgID)
	assert.Empty(t, got.Metadata)

	var content struct {
		Status string `json:"status"`
	}
	require.NoError(t, got.DecodeContent(&content))
	assert.Equal(t, "ok", content.Status)
}

func TestNewMsgIDsAreUnique(t *testing.T) {
	a, err := NewMsg("status", ComposedMsg{})
	require.NoError(t, err)
	b, err := NewMsg("status", ComposedMsg{})
	require.NoError(t, err)

	assert.NotEqual(t, a.Header.MsgID, b.Header.MsgID)
}

func TestWireRejectsBadSignature(t *testing.T) {
	msg := ComposedMsg{Header: MsgHeader{MsgType: "execute_request"}, Content: map[string]string{"code": "SELECT 1"}}
	frames := wireFrames(t, msg, testKey)
	frames[len(frames)-1] = []byte(`{"code":"DROP TABLE users"}`)

	_, _, err := WireMsgToComposedMsg(frames, testKey)
	assert.True(t, xerrors.Is(err, ErrInvalidSignature))
}

func TestWireWithoutKey(t *testing.T) {
	msg := ComposedMsg{Header: MsgHeader{MsgType: "kernel_info_request"}, Content: struct{}{}}
	frames := wireFrames(t, msg, nil)

	// The signature frame is empty when signing is disabled.
	assert.Empty(t, frames[3])

	got, _, err := WireMsgToComposedMsg(frames, nil)
	require.NoError(t, err)
	assert.Equal(t, "kernel_info_request", got.Header.MsgType)
}

func TestWireMalformed(t *testing.T) {
	_, _, err := WireMsgToComposedMsg([][]byte{[]byte("id"), []byte("{}")}, testKey)
	assert.Error(t, err)

	_, _, err = WireMsgToComposedMsg([][]byte{delimiter, []byte(""), []byte("{}")}, nil)
	assert.Error(t, err)

	frames := [][]byte{delimiter, []byte(""), []byte("not json"), []byte("{}"), []byte("{}"), []byte("{}")}
	_, _, err = WireMsgToComposedMsg(frames, nil)
	assert.Error(t, err)
}

func TestSignIsHexHMAC(t *testing.T) {
	sig := sign([]byte("key"), [][]byte{[]byte("a"), []byte("b")})
	assert.Len(t, sig, 64)
	assert.True(t, bytes.Equal(sig, sign([]byte("key"), [][]byte{[]byte("ab")})))
	assert.Empty(t, sign(nil, [][]byte{[]byte("a")}))
}

func TestDecodeContentEmpty(t *testing.T) {
	msg := ComposedMsg{Header: MsgHeader{MsgType: "shutdown_request"}, Content: json.RawMessage(nil)}

	var req shutdownRequest
	require.NoError(t, msg.DecodeContent(&req))
	assert.False(t, req.Restart)

	msg.Content = map[string]string{}
	assert.Error(t, msg.DecodeContent(&req))
}
