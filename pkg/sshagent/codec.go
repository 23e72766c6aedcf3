package sshagent

import (
	"encoding/binary"
	"fmt"
	"io"
)

// lengthPrefixSize is the width of the big-endian length word that
// precedes every payload on the wire.
const lengthPrefixSize = 4

// DecodeOne attempts to pull exactly one framed message off the front of
// buf. It returns the remaining, unconsumed bytes and the decoded message.
//
// If buf does not yet contain a complete frame, msg is the zero Message
// and ok is false; buf is returned unchanged so the caller can append more
// bytes and retry. A truncated frame is not an error.
//
// A declared length of zero or a length exceeding MaxPayloadSize is fatal
// to the connection and reported via err; remainder and ok are meaningless
// in that case.
func DecodeOne(buf []byte, dir Direction) (remainder []byte, msg Message, ok bool, err error) {
	if len(buf) < lengthPrefixSize {
		return buf, Message{}, false, nil
	}

	length := binary.BigEndian.Uint32(buf[:lengthPrefixSize])
	if length == 0 {
		return buf, Message{}, false, ErrMessageInvalid
	}
	if length > MaxPayloadSize {
		return buf, Message{}, false, fmt.Errorf("%w: declared length %d", ErrFrameTooLarge, length)
	}

	total := lengthPrefixSize + int(length)
	if len(buf) < total {
		return buf, Message{}, false, nil
	}

	payload := buf[lengthPrefixSize:total]
	m, err := newMessage(payload, dir)
	if err != nil {
		return buf, Message{}, false, err
	}
	return buf[total:], m, true, nil
}

// Encode writes one framed message to w: a big-endian length followed by
// the payload. Callers that share w across goroutines must serialise
// calls to Encode themselves (the connection pipeline does this with a
// single writer mutex); Encode performs the two writes back-to-back but
// does not itself lock anything.
func Encode(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrMessageInvalid
	}
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: payload length %d", ErrFrameTooLarge, len(payload))
	}

	var header [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// EncodeEmptyRSAIdentities returns the synthetic SSH_AGENT_RSA_IDENTITIES_ANSWER
// body: opcode 2 followed by a zero key count. It is never encoded with
// a leading length word here -- callers pass the returned payload to Encode.
func EncodeEmptyRSAIdentities() []byte {
	payload := make([]byte, 5)
	payload[0] = byte(SSHAgentRSAIdentitiesAnswer)
	binary.BigEndian.PutUint32(payload[1:], 0)
	return payload
}

// EncodeFailure returns the synthetic SSH_AGENT_FAILURE payload: just the
// opcode byte, no body.
func EncodeFailure() []byte {
	return []byte{byte(SSHAgentFailure)}
}

// Reader frames an underlying byte stream into a sequence of Messages:
// each Read is appended to a growable buffer, then DecodeOne is applied
// repeatedly until it reports "need more bytes".
type Reader struct {
	r        io.Reader
	dir      Direction
	buf      []byte
	readSize int
}

// NewReader wraps r. readSize is the size of each underlying Read call;
// 0 selects the default of 8192.
func NewReader(r io.Reader, dir Direction, readSize int) *Reader {
	if readSize <= 0 {
		readSize = 8192
	}
	return &Reader{r: r, dir: dir, readSize: readSize}
}

// Next returns the next fully framed message, reading from the
// underlying stream as needed. It returns io.EOF when the stream ends,
// also when a partial frame is still buffered (those bytes are dropped),
// and a non-nil error wrapping
// ErrMessageInvalid/ErrFrameTooLarge on a protocol violation, which is
// fatal to the connection.
func (r *Reader) Next() (Message, error) {
	for {
		rem, msg, ok, err := DecodeOne(r.buf, r.dir)
		if err != nil {
			return Message{}, err
		}
		if ok {
			r.buf = rem
			return msg, nil
		}
		r.buf = rem

		chunk := make([]byte, r.readSize)
		n, readErr := r.r.Read(chunk)
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
		}
		if readErr != nil {
			if n > 0 {
				// Try to drain one more decode before surfacing EOF, in case
				// the final read delivered a complete trailing frame.
				continue
			}
			return Message{}, readErr
		}
	}
}
