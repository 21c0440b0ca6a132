// Package kernel runs a Jupyter kernel for SQL notebooks. Cells execute against
// a live session and completions come from the completion connector.
package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/u2takey/sqlkernel/internal/session"
)

// Version is the kernel implementation version.
var Version = "0.1.0"

// Evaluator executes cells and exposes the schema of what it executes against.
type Evaluator interface {
	Execute(ctx context.Context, cell string) (*session.Result, error)
	LookupSchema(ctx context.Context) ([]string, error)
}

// Kernel serves the Jupyter shell protocol on top of an Evaluator.
type Kernel struct {
	evaluator        Evaluator
	schemaCompletion bool
	logger           *zap.Logger

	// execCounter is incremented each time we run user code in the notebook.
	execCounter int
}

// Option configures a Kernel.
type Option func(*Kernel)

// WithLogger sets the kernel logger.
func WithLogger(logger *zap.Logger) Option {
	return func(k *Kernel) {
		k.logger = logger
	}
}

// WithSchemaCompletion toggles table and column names in completions.
func WithSchemaCompletion(enabled bool) Option {
	return func(k *Kernel) {
		k.schemaCompletion = enabled
	}
}

// New creates a Kernel that executes cells with evaluator.
func New(evaluator Evaluator, opts ...Option) *Kernel {
	k := &Kernel{
		evaluator:        evaluator,
		schemaCompletion: true,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.logger = k.logger.With(zap.String("component", "kernel"))
	return k
}

// ReadConnectionInfo parses the connection file written by Jupyter.
func ReadConnectionInfo(connectionFile string) (ConnectionInfo, error) {
	var connInfo ConnectionInfo

	connData, err := os.ReadFile(connectionFile)
	if err != nil {
		return connInfo, xerrors.Errorf("could not read connection file: %w", err)
	}

	if err = json.Unmarshal(connData, &connInfo); err != nil {
		return connInfo, xerrors.Errorf("could not parse connection file: %w", err)
	}

	if connInfo.Key != "" && connInfo.SignatureScheme != signatureScheme {
		return connInfo, xerrors.Errorf("unsupported signature scheme %q", connInfo.SignatureScheme)
	}

	return connInfo, nil
}

// Run starts the kernel and serves requests until a shutdown_request arrives
// or ctx is cancelled.
func (k *Kernel) Run(ctx context.Context, connectionFile string) error {
	connInfo, err := ReadConnectionInfo(connectionFile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)

	// Set up the ZMQ sockets through which the kernel will communicate.
	sockets, err := prepareSockets(ctx, connInfo)
	if err != nil {
		cancel()
		return err
	}

	var wg sync.WaitGroup

	// Start up the heartbeat handler.
	shutdownHB := k.startHeartbeat(sockets.HBSocket, &wg)

	// Closing the sockets unblocks the pollers before waiting on them.
	defer func() {
		cancel()
		close(shutdownHB)
		sockets.Close()
		wg.Wait()
	}()

	type msgType struct {
		Msg zmq4.Msg
		Err error
	}

	var (
		shell = make(chan msgType)
		stdin = make(chan msgType)
		ctl   = make(chan msgType)
	)

	poll := func(msgs chan msgType, sck zmq4.Socket) {
		defer wg.Done()
		for {
			msg, err := sck.Recv()
			select {
			case msgs <- msgType{Msg: msg, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil && ctx.Err() != nil {
				return
			}
		}
	}

	wg.Add(3)
	go poll(shell, sockets.ShellSocket.Socket)
	go poll(stdin, sockets.StdinSocket.Socket)
	go poll(ctl, sockets.ControlSocket.Socket)

	k.logger.Info("kernel started",
		zap.String("transport", connInfo.Transport),
		zap.String("ip", connInfo.IP),
		zap.Int("shell_port", connInfo.ShellPort),
	)

	// Start a message receiving loop.
	for {
		var v msgType
		select {
		case <-ctx.Done():
			return nil
		case v = <-shell:
		case v = <-ctl:
		case <-stdin:
			// The kernel never requests input.
			continue
		}

		if v.Err != nil {
			k.logger.Warn("receive failed", zap.Error(v.Err))
			continue
		}

		msg, ids, err := WireMsgToComposedMsg(v.Msg.Frames, sockets.Key)
		if err != nil {
			k.logger.Warn("dropping message", zap.Error(err))
			continue
		}

		if k.handleShellMsg(ctx, msgReceipt{msg, ids, sockets}) {
			k.logger.Info("shutting down in response to shutdown_request")
			return nil
		}
	}
}

// prepareSockets sets up the ZMQ sockets through which the kernel
// will communicate.
func prepareSockets(ctx context.Context, connInfo ConnectionInfo) (SocketGroup, error) {
	var sg SocketGroup

	// The shell socket is a request-reply socket that may receive messages from multiple frontends for
	// code execution, introspection, auto-completion, etc.
	sg.ShellSocket = Socket{Socket: zmq4.NewRouter(ctx), Lock: &sync.Mutex{}}

	// The control socket duplicates the shell socket; its messages jump ahead of queued shell messages.
	sg.ControlSocket = Socket{Socket: zmq4.NewRouter(ctx), Lock: &sync.Mutex{}}

	// The stdin socket is used to request user input from a front-end.
	sg.StdinSocket = Socket{Socket: zmq4.NewRouter(ctx), Lock: &sync.Mutex{}}

	// The iopub socket broadcasts results, errors and kernel status to connected subscribers.
	sg.IOPubSocket = Socket{Socket: zmq4.NewPub(ctx), Lock: &sync.Mutex{}}

	// The heartbeat socket echoes the byte strings it receives to show the kernel is alive.
	sg.HBSocket = Socket{Socket: zmq4.NewRep(ctx), Lock: &sync.Mutex{}}

	// Bind the sockets.
	address := fmt.Sprintf("%v://%v:%%v", connInfo.Transport, connInfo.IP)
	binds := []struct {
		name   string
		socket zmq4.Socket
		port   int
	}{
		{"shell", sg.ShellSocket.Socket, connInfo.ShellPort},
		{"control", sg.ControlSocket.Socket, connInfo.ControlPort},
		{"stdin", sg.StdinSocket.Socket, connInfo.StdinPort},
		{"iopub", sg.IOPubSocket.Socket, connInfo.IOPubPort},
		{"hbeat", sg.HBSocket.Socket, connInfo.HBPort},
	}
	for _, b := range binds {
		if err := b.socket.Listen(fmt.Sprintf(address, b.port)); err != nil {
			sg.Close()
			return sg, xerrors.Errorf("could not listen on %s-socket: %w", b.name, err)
		}
	}

	// Set the message signing key.
	sg.Key = []byte(connInfo.Key)

	return sg, nil
}

// handleShellMsg responds to a message on the shell or control ROUTER socket.
// It reports whether the kernel should shut down.
func (k *Kernel) handleShellMsg(ctx context.Context, receipt msgReceipt) (shutdown bool) {
	msgType := receipt.Msg.Header.MsgType
	logger := k.logger.With(zap.String("msg_type", msgType), zap.String("msg_id", receipt.Msg.Header.MsgID))

	// Tell the front-end that the kernel is working and when finished notify the
	// front-end that the kernel is idle again.
	if err := receipt.PublishKernelStatus(kernelBusy); err != nil {
		logger.Warn("error publishing kernel status 'busy'", zap.Error(err))
	}
	defer func() {
		if err := receipt.PublishKernelStatus(kernelIdle); err != nil {
			logger.Warn("error publishing kernel status 'idle'", zap.Error(err))
		}
	}()

	var err error
	switch msgType {
	case "kernel_info_request":
		err = sendKernelInfo(receipt)
	case "complete_request":
		err = k.handleCompleteRequest(ctx, receipt)
	case "execute_request":
		err = k.handleExecuteRequest(ctx, receipt)
	case "is_complete_request":
		err = handleIsCompleteRequest(receipt)
	case "shutdown_request":
		shutdown, err = handleShutdownRequest(receipt)
	default:
		logger.Debug("unhandled shell message")
	}
	if err != nil {
		logger.Error("error handling shell message", zap.Error(err))
	}

	return shutdown
}

func newKernelInfo() kernelInfo {
	return kernelInfo{
		Status:                "ok",
		ProtocolVersion:       ProtocolVersion,
		Implementation:        "sqlkernel",
		ImplementationVersion: Version,
		Banner:                fmt.Sprintf("SQL kernel: sqlkernel - v%s (%s)", Version, runtime.Version()),
		LanguageInfo: kernelLanguageInfo{
			Name:           "sql",
			Version:        "3",
			MIMEType:       "text/x-sql",
			FileExtension:  ".sql",
			PygmentsLexer:  "sql",
			CodeMirrorMode: "sql",
		},
		HelpLinks: []helpLink{
			{Text: "SQLite", URL: "https://www.sqlite.org/lang.html"},
		},
	}
}

// sendKernelInfo sends a kernel_info_reply message.
func sendKernelInfo(receipt msgReceipt) error {
	return receipt.Reply("kernel_info_reply", newKernelInfo())
}

// Execute runs a cell and advances the execution counter unless silent.
func (k *Kernel) Execute(ctx context.Context, code string, silent bool) (int, *session.Result, error) {
	if !silent {
		k.execCounter++
	}
	result, err := k.evaluator.Execute(ctx, code)
	return k.execCounter, result, err
}

// handleExecuteRequest runs code from an execute_request method,
// and sends the various reply messages.
func (k *Kernel) handleExecuteRequest(ctx context.Context, receipt msgReceipt) error {
	var req executeRequest
	if err := receipt.Msg.DecodeContent(&req); err != nil {
		return replyDecodeError(receipt, "execute_reply", err)
	}

	// Tell the front-end what the kernel is about to execute. Silent runs
	// broadcast nothing on iopub.
	if !req.Silent {
		if err := receipt.PublishExecutionInput(k.execCounter+1, req.Code); err != nil {
			k.logger.Warn("error publishing execution input", zap.Error(err))
		}
	}

	start := time.Now()
	count, result, executionErr := k.Execute(ctx, req.Code, req.Silent)
	k.logger.Debug("cell executed",
		zap.Int("execution_count", count),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(executionErr),
	)

	// Prepare the map that will hold the reply content.
	content := make(map[string]interface{})
	content["execution_count"] = count

	if executionErr == nil {
		content["status"] = "ok"
		content["user_expressions"] = make(map[string]string)

		if data := renderResult(result); !req.Silent && len(data) != 0 {
			// Publish the result of the execution.
			if err := receipt.PublishExecutionResult(count, data); err != nil {
				k.logger.Warn("error publishing execution result", zap.Error(err))
			}
		}
	} else {
		content["status"] = "error"
		content["ename"] = "ERROR"
		content["evalue"] = executionErr.Error()
		content["traceback"] = []string{executionErr.Error()}

		if err := receipt.PublishExecutionError(executionErr.Error(), []string{executionErr.Error()}); err != nil {
			k.logger.Warn("error publishing execution error", zap.Error(err))
		}
	}

	// Send the output back to the notebook.
	return receipt.Reply("execute_reply", content)
}

// renderResult converts a statement result into display data.
func renderResult(result *session.Result) MIMEMap {
	if result == nil || (!result.HasRows() && result.Statement == "") {
		return nil
	}
	data := MIMEMap{MIMETypeText: result.PlainText()}
	if html := result.HTML(); html != "" {
		data[MIMETypeHTML] = html
	}
	return data
}

// handleIsCompleteRequest tells the front-end whether the cell can run as typed.
func handleIsCompleteRequest(receipt msgReceipt) error {
	var req isCompleteRequest
	if err := receipt.Msg.DecodeContent(&req); err != nil {
		return replyDecodeError(receipt, "is_complete_reply", err)
	}
	return receipt.Reply("is_complete_reply", isComplete(req.Code))
}

func isComplete(code string) isCompleteReply {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" || strings.HasSuffix(trimmed, ";") {
		return isCompleteReply{Status: "complete"}
	}
	return isCompleteReply{Status: "incomplete", Indent: ""}
}

// handleShutdownRequest sends a "shutdown" message. The kernel only stops
// once the request has been decoded.
func handleShutdownRequest(receipt msgReceipt) (bool, error) {
	var req shutdownRequest
	if err := receipt.Msg.DecodeContent(&req); err != nil {
		return false, replyDecodeError(receipt, "shutdown_reply", err)
	}

	return true, receipt.Reply("shutdown_reply", shutdownReply{
		Status:  "ok",
		Restart: req.Restart,
	})
}

// replyDecodeError answers a request whose content could not be decoded with an
// error reply of replyType and returns the decode error.
func replyDecodeError(receipt msgReceipt, replyType string, err error) error {
	if replyErr := receipt.Reply(replyType, errorReply(err)); replyErr != nil {
		return xerrors.Errorf("%v; could not send %s: %w", err, replyType, replyErr)
	}
	return err
}

// startHeartbeat starts a go-routine for handling heartbeat ping messages sent over the given `hbSocket`. The `wg`'s
// `Done` method is invoked after the thread is completely shutdown. To request a shutdown the returned `shutdown` channel
// can be closed.
func (k *Kernel) startHeartbeat(hbSocket Socket, wg *sync.WaitGroup) (shutdown chan struct{}) {
	quit := make(chan struct{})

	// Start the handler that will echo any received messages back to the sender.
	wg.Add(1)
	go func() {
		defer wg.Done()

		type msgType struct {
			Msg zmq4.Msg
			Err error
		}

		msgs := make(chan msgType)

		go func() {
			defer close(msgs)
			for {
				msg, err := hbSocket.Socket.Recv()
				select {
				case msgs <- msgType{msg, err}:
				case <-quit:
					return
				}
			}
		}()

		for {
			select {
			case <-quit:
				return
			case v, ok := <-msgs:
				if !ok {
					return
				}
				_ = hbSocket.RunWithSocket(func(echo zmq4.Socket) error {
					if v.Err != nil {
						k.logger.Debug("error reading heartbeat ping bytes", zap.Error(v.Err))
						return v.Err
					}

					// Send the received byte string back to let the front-end know that the kernel is alive.
					if err := echo.Send(v.Msg); err != nil {
						k.logger.Warn("error sending heartbeat pong bytes", zap.Error(err))
						return err
					}

					return nil
				})
			}
		}
	}()

	return quit
}
