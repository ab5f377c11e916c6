package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame ops sent to a process core.
const (
	opEvent    byte = 1
	opResponse byte = 2
	opView     byte = 3
)

// Reply status bytes.
const (
	statusOK    byte = 0
	statusError byte = 1
)

// maxFrame bounds a single frame body.
const maxFrame = 16 << 20

var errFrameTooLarge = errors.New("frame exceeds size limit")

// writeFrame writes a u32 big-endian length followed by body.
func writeFrame(w io.Writer, body []byte) error {
	if len(body) > maxFrame {
		return errFrameTooLarge
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrame {
		return nil, errFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// callFrame is op | id (u32 BE) | payload.
func encodeCall(op byte, id uint32, payload []byte) []byte {
	body := make([]byte, 5, 5+len(payload))
	body[0] = op
	binary.BigEndian.PutUint32(body[1:5], id)
	return append(body, payload...)
}

func decodeCall(body []byte) (op byte, id uint32, payload []byte, err error) {
	if len(body) < 5 {
		return 0, 0, nil, fmt.Errorf("short call frame (%d bytes)", len(body))
	}
	return body[0], binary.BigEndian.Uint32(body[1:5]), body[5:], nil
}

// replyFrame is status | payload. An error reply carries the message.
func encodeReply(status byte, payload []byte) []byte {
	return append([]byte{status}, payload...)
}

func decodeReply(body []byte) ([]byte, error) {
	if len(body) < 1 {
		return nil, errors.New("empty reply frame")
	}
	switch body[0] {
	case statusOK:
		return body[1:], nil
	case statusError:
		return nil, &RemoteError{Message: string(body[1:])}
	default:
		return nil, fmt.Errorf("invalid reply status %d", body[0])
	}
}

// RemoteError is a failure reported by the core on the other end of a pipe.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "core: " + e.Message
}
