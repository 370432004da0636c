package timer

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Codec is the interface for message framing on the byte stream.
// Both peers of a connection must use the same codec.
type Codec interface {
	// Decode reads one message from the reader. It returns io.EOF when the
	// peer has closed the connection.
	Decode(r io.Reader) ([]byte, error)
	// Encode returns the bytes to put on the wire for one message.
	Encode(body []byte) ([]byte, error)
}

// DefaultReadBufferSize is the largest message RawCodec can receive in one read.
const DefaultReadBufferSize = 1024

// RawCodec treats every read as one message and every write as one message.
// It has no framing: a message must fit in the read buffer and the peer
// must not coalesce or split writes.
type RawCodec struct {
	bufferSize int
}

// NewRawCodec returns a RawCodec reading at most bufferSize bytes per message.
func NewRawCodec(bufferSize int) *RawCodec {
	if bufferSize <= 0 {
		bufferSize = DefaultReadBufferSize
	}
	return &RawCodec{bufferSize: bufferSize}
}

// Decode performs a single read. A zero-length read means the peer closed.
func (c *RawCodec) Decode(r io.Reader) ([]byte, error) {
	buf := make([]byte, c.bufferSize)
	n, err := r.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

// Encode returns body unchanged.
func (c *RawCodec) Encode(body []byte) ([]byte, error) {
	return body, nil
}

const lengthHeaderSize = 4

// LengthPrefixedCodec frames each message with a 4-byte big-endian length.
type LengthPrefixedCodec struct {
	maxSize int
}

// NewLengthPrefixedCodec returns a codec rejecting messages larger than maxSize.
func NewLengthPrefixedCodec(maxSize int) *LengthPrefixedCodec {
	if maxSize <= 0 {
		maxSize = defaultMaxPackageLength
	}
	return &LengthPrefixedCodec{maxSize: maxSize}
}

// Decode reads the header and then exactly the announced number of bytes.
func (c *LengthPrefixedCodec) Decode(r io.Reader) ([]byte, error) {
	var header [lengthHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if int64(size) > int64(c.maxSize) {
		return nil, ErrMessageTooLarge
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// Encode prepends the length header.
func (c *LengthPrefixedCodec) Encode(body []byte) ([]byte, error) {
	if len(body) > c.maxSize {
		return nil, ErrMessageTooLarge
	}
	out := make([]byte, lengthHeaderSize+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	copy(out[lengthHeaderSize:], body)
	return out, nil
}

// ErrInvalidResponse is returned by ParseResponse for text not produced by FormatResponse.
var ErrInvalidResponse = errors.New("invalid response")

const (
	responsePrefix = "UUID: "
	responseInfix  = " received after "
	responseSuffix = " seconds"
)

// Response is the server's answer to one message.
type Response struct {
	Message string
	Elapsed time.Duration
}

// FormatResponse renders the reply for msg received elapsed after the previous one.
func FormatResponse(msg string, elapsed time.Duration) string {
	return fmt.Sprintf("%s%s%s%.6f%s", responsePrefix, msg, responseInfix, elapsed.Seconds(), responseSuffix)
}

// ParseResponse is the inverse of FormatResponse.
func ParseResponse(s string) (Response, error) {
	rest, ok := strings.CutPrefix(s, responsePrefix)
	if !ok {
		return Response{}, errors.Wrapf(ErrInvalidResponse, "missing prefix in %q", s)
	}
	rest, ok = strings.CutSuffix(rest, responseSuffix)
	if !ok {
		return Response{}, errors.Wrapf(ErrInvalidResponse, "missing suffix in %q", s)
	}

	i := strings.LastIndex(rest, responseInfix)
	if i < 0 {
		return Response{}, errors.Wrapf(ErrInvalidResponse, "missing elapsed time in %q", s)
	}

	seconds, err := strconv.ParseFloat(rest[i+len(responseInfix):], 64)
	if err != nil {
		return Response{}, errors.Wrapf(ErrInvalidResponse, "elapsed time: %v", err)
	}

	return Response{
		Message: rest[:i],
		Elapsed: time.Duration(seconds * float64(time.Second)),
	}, nil
}

// MessageSource produces the payloads a client sends.
type MessageSource interface {
	Next() string
}

// MessageSourceFunc adapts a function to MessageSource.
type MessageSourceFunc func() string

// Next calls f.
func (f MessageSourceFunc) Next() string {
	return f()
}

// UUIDSource returns a MessageSource producing random lowercase UUIDs.
func UUIDSource() MessageSource {
	return MessageSourceFunc(func() string {
		return strings.ToLower(uuid.NewString())
	})
}
