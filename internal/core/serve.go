package core

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Serve answers framed calls read from r by invoking c, writing replies to
// w, until r reaches EOF or ctx is done. Errors from c are sent back as
// error replies; only I/O and framing errors end the loop.
func Serve(ctx context.Context, r io.Reader, w io.Writer, c Core) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		body, err := readFrame(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read call: %w", err)
		}

		op, id, payload, err := decodeCall(body)
		if err != nil {
			return err
		}

		var out []byte
		switch op {
		case opEvent:
			out, err = c.ProcessEvent(ctx, payload)
		case opResponse:
			out, err = c.HandleResponse(ctx, id, payload)
		case opView:
			out, err = c.View(ctx)
		default:
			err = fmt.Errorf("unknown op %d", op)
		}

		reply := encodeReply(statusOK, out)
		if err != nil {
			reply = encodeReply(statusError, []byte(err.Error()))
		}
		if err := writeFrame(w, reply); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
}
