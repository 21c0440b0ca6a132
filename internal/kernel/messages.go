package kernel

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/gofrs/uuid"
	"golang.org/x/xerrors"
)

// ProtocolVersion is the Jupyter messaging protocol version implemented here.
const ProtocolVersion = "5.3"

// signatureScheme is the only scheme the kernel can verify.
const signatureScheme = "hmac-sha256"

var delimiter = []byte("<IDS|MSG>")

// ErrInvalidSignature is returned when a message signature does not match its content.
var ErrInvalidSignature = xerrors.New("invalid message signature")

// MsgHeader encodes header info for ZMQ messages.
type MsgHeader struct {
	MsgID           string `json:"msg_id"`
	Username        string `json:"username"`
	Session         string `json:"session"`
	MsgType         string `json:"msg_type"`
	ProtocolVersion string `json:"version"`
	Timestamp       string `json:"date"`
}

// ComposedMsg represents an entire message in a high-level structure.
// Incoming content stays raw until a handler decodes it into its request type.
type ComposedMsg struct {
	Header       MsgHeader
	ParentHeader MsgHeader
	Metadata     map[string]interface{}
	Content      interface{}
}

// msgReceipt represents a received message, its return identities, and
// the sockets for communication.
type msgReceipt struct {
	Msg        ComposedMsg
	Identities [][]byte
	Sockets    SocketGroup
}

// sign computes the hex HMAC-SHA256 of the given frames. An empty key disables signing.
func sign(key []byte, frames [][]byte) []byte {
	if len(key) == 0 {
		return []byte{}
	}
	mac := hmac.New(sha256.New, key)
	for _, f := range frames {
		mac.Write(f)
	}
	sig := make([]byte, hex.EncodedLen(mac.Size()))
	hex.Encode(sig, mac.Sum(nil))
	return sig
}

// WireMsgToComposedMsg translates a multipart ZMQ messages received from a socket into
// a ComposedMsg struct and a slice of return identities. This includes verifying the
// message signature.
func WireMsgToComposedMsg(msgparts [][]byte, signkey []byte) (ComposedMsg, [][]byte, error) {
	var msg ComposedMsg

	i := 0
	for i < len(msgparts) && !bytes.Equal(msgparts[i], delimiter) {
		i++
	}
	if i == len(msgparts) || len(msgparts) < i+6 {
		return msg, nil, xerrors.Errorf("malformed message with %d frames", len(msgparts))
	}
	identities := msgparts[:i]
	frames := msgparts[i+2 : i+6]

	if len(signkey) != 0 {
		expected := sign(signkey, frames)
		if !hmac.Equal(msgparts[i+1], expected) {
			return msg, nil, ErrInvalidSignature
		}
	}

	if err := json.Unmarshal(frames[0], &msg.Header); err != nil {
		return msg, nil, xerrors.Errorf("could not decode header: %w", err)
	}
	if err := json.Unmarshal(frames[1], &msg.ParentHeader); err != nil {
		return msg, nil, xerrors.Errorf("could not decode parent header: %w", err)
	}
	if err := json.Unmarshal(frames[2], &msg.Metadata); err != nil {
		return msg, nil, xerrors.Errorf("could not decode metadata: %w", err)
	}
	msg.Content = json.RawMessage(append([]byte(nil), frames[3]...))

	return msg, identities, nil
}

// ToWireMsg translates a ComposedMsg into a multipart ZMQ message ready to send, and
// signs it. This does not add the return identities or the delimiter.
func (msg ComposedMsg) ToWireMsg(signkey []byte) ([][]byte, error) {
	frames := make([][]byte, 5)

	header, err := json.Marshal(msg.Header)
	if err != nil {
		return nil, err
	}
	frames[1] = header

	parentHeader, err := json.Marshal(msg.ParentHeader)
	if err != nil {
		return nil, err
	}
	frames[2] = parentHeader

	if msg.Metadata == nil {
		msg.Metadata = make(map[string]interface{})
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return nil, err
	}
	frames[3] = metadata

	content, err := json.Marshal(msg.Content)
	if err != nil {
		return nil, err
	}
	frames[4] = content

	frames[0] = sign(signkey, frames[1:])

	return frames, nil
}

// DecodeContent unmarshals the raw content of a received message into v.
func (msg ComposedMsg) DecodeContent(v interface{}) error {
	raw, ok := msg.Content.(json.RawMessage)
	if !ok {
		return xerrors.Errorf("content of %s is not raw json", msg.Header.MsgType)
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return xerrors.Errorf("could not decode %s content: %w", msg.Header.MsgType, err)
	}
	return nil
}

// NewMsg creates a new ComposedMsg to respond to a parent message.
// This includes setting up its headers.
func NewMsg(msgType string, parent ComposedMsg) (ComposedMsg, error) {
	var msg ComposedMsg

	msg.ParentHeader = parent.Header
	msg.Header.Session = parent.Header.Session
	msg.Header.Username = parent.Header.Username
	msg.Header.MsgType = msgType
	msg.Header.ProtocolVersion = ProtocolVersion
	msg.Header.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	u, err := uuid.NewV4()
	if err != nil {
		return msg, xerrors.Errorf("could not generate message id: %w", err)
	}
	msg.Header.MsgID = u.String()

	return msg, nil
}

// SendResponse sends a message back to return identities of the received message.
func (receipt *msgReceipt) SendResponse(socket Socket, msg ComposedMsg) error {
	frames, err := msg.ToWireMsg(receipt.Sockets.Key)
	if err != nil {
		return err
	}

	parts := make([][]byte, 0, len(receipt.Identities)+1+len(frames))
	parts = append(parts, receipt.Identities...)
	parts = append(parts, delimiter)
	parts = append(parts, frames...)

	return socket.RunWithSocket(func(s zmq4.Socket) error {
		return s.SendMulti(zmq4.NewMsgFrom(parts...))
	})
}

// Publish creates a new ComposedMsg and sends it back to the return identities over the
// IOPub channel.
func (receipt *msgReceipt) Publish(msgType string, content interface{}) error {
	msg, err := NewMsg(msgType, receipt.Msg)
	if err != nil {
		return err
	}
	msg.Content = content
	return receipt.SendResponse(receipt.Sockets.IOPubSocket, msg)
}

// Reply creates a new ComposedMsg and sends it back to the return identities over the
// Shell channel.
func (receipt *msgReceipt) Reply(msgType string, content interface{}) error {
	msg, err := NewMsg(msgType, receipt.Msg)
	if err != nil {
		return err
	}
	msg.Content = content
	return receipt.SendResponse(receipt.Sockets.ShellSocket, msg)
}

// PublishKernelStatus publishes a status message notifying front-ends of the state the kernel is in.
func (receipt *msgReceipt) PublishKernelStatus(status string) error {
	return receipt.Publish("status",
		struct {
			ExecutionState string `json:"execution_state"`
		}{
			ExecutionState: status,
		},
	)
}

// PublishExecutionInput publishes a status message notifying front-ends of what code is
// currently being executed.
func (receipt *msgReceipt) PublishExecutionInput(execCount int, code string) error {
	return receipt.Publish("execute_input",
		struct {
			ExecCount int    `json:"execution_count"`
			Code      string `json:"code"`
		}{
			ExecCount: execCount,
			Code:      code,
		},
	)
}

// PublishExecutionResult publishes the result of the `execCount` execution as a string.
func (receipt *msgReceipt) PublishExecutionResult(execCount int, data MIMEMap) error {
	return receipt.Publish("execute_result",
		struct {
			ExecCount int     `json:"execution_count"`
			Data      MIMEMap `json:"data"`
			Metadata  MIMEMap `json:"metadata"`
		}{
			ExecCount: execCount,
			Data:      data,
			Metadata:  make(MIMEMap),
		},
	)
}

// PublishExecutionError publishes a serialized error that was encountered during execution.
func (receipt *msgReceipt) PublishExecutionError(err string, trace []string) error {
	return receipt.Publish("error",
		struct {
			Name  string   `json:"ename"`
			Value string   `json:"evalue"`
			Trace []string `json:"traceback"`
		}{
			Name:  "ERROR",
			Value: err,
			Trace: trace,
		},
	)
}

// MIMEMap holds data that can be presented in multiple formats. The keys are MIME types
// and the values are the data formatted with respect to its MIME type.
type MIMEMap = map[string]interface{}

// MIME types used for execution results.
const (
	MIMETypeText = "text/plain"
	MIMETypeHTML = "text/html"
)
