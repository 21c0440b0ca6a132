package kernel

import (
	"context"
	"unicode"

	"github.com/u2takey/sqlkernel/internal/completion"
)

type completeRequest struct {
	Code      string `json:"code"`
	CursorPos int    `json:"cursor_pos"`
}

type completeReply struct {
	Status      string                 `json:"status"`
	Matches     []string               `json:"matches"`
	CursorStart int                    `json:"cursor_start"`
	CursorEnd   int                    `json:"cursor_end"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// cellEditor exposes the code of a complete_request as a completion.Editor.
// Offsets are counted in code points, as in the Jupyter protocol.
type cellEditor struct {
	code   []rune
	cursor int
}

func newCellEditor(code string, cursorPos int) *cellEditor {
	runes := []rune(code)
	if cursorPos < 0 {
		cursorPos = 0
	}
	if cursorPos > len(runes) {
		cursorPos = len(runes)
	}
	return &cellEditor{code: runes, cursor: cursorPos}
}

func (e *cellEditor) CursorPosition() completion.Position {
	pos := completion.Position{Offset: e.cursor}
	for _, r := range e.code[:e.cursor] {
		if r == '\n' {
			pos.Line++
			pos.Column = 0
		} else {
			pos.Column++
		}
	}
	return pos
}

// TokenForPosition returns the run of token characters ending at pos.
func (e *cellEditor) TokenForPosition(pos completion.Position) completion.Token {
	end := pos.Offset
	start := end
	for start > 0 && isTokenRune(e.code[start-1]) {
		start--
	}
	return completion.Token{Value: string(e.code[start:end]), Offset: start}
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}

// Complete returns the completions for the token before cursorPos in code.
func (k *Kernel) Complete(ctx context.Context, code string, cursorPos int) (completion.Reply, error) {
	opts := []completion.Option{
		completion.WithEditor(newCellEditor(code, cursorPos)),
		completion.WithLogger(k.logger),
	}
	if k.schemaCompletion && k.evaluator != nil {
		opts = append(opts, completion.WithSchemaLookup(k.evaluator))
	}
	return completion.NewConnector(opts...).Fetch(ctx)
}

func (k *Kernel) handleCompleteRequest(ctx context.Context, receipt msgReceipt) error {
	var req completeRequest
	if err := receipt.Msg.DecodeContent(&req); err != nil {
		return replyDecodeError(receipt, "complete_reply", err)
	}

	reply, err := k.Complete(ctx, req.Code, req.CursorPos)
	if err != nil {
		return receipt.Reply("complete_reply", errorReply(err))
	}

	return receipt.Reply("complete_reply", completeReply{
		Status:      "ok",
		Matches:     reply.Matches,
		CursorStart: reply.Start,
		CursorEnd:   reply.End,
		Metadata:    reply.Metadata,
	})
}

func errorReply(err error) map[string]interface{} {
	return map[string]interface{}{
		"status":    "error",
		"ename":     "ERROR",
		"evalue":    err.Error(),
		"traceback": []string{err.Error()},
	}
}
