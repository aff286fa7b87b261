package wire

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Writer encodes envelopes and struct fields onto an output stream. Writes are
// buffered; nothing reaches the peer until Flush. A Writer is not safe for
// concurrent use; the transport layer serializes access.
type Writer struct {
	w   *bufio.Writer
	buf [4]byte // Scratch space for fixed-width integers
}

// NewWriter wraps w in a buffered protocol writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteMessageBegin writes the message envelope: name, kind, sequence id.
// The struct payload follows; the message has no explicit end marker because
// structs are self-delimiting (Stop-terminated).
func (w *Writer) WriteMessageBegin(name string, kind Kind, seq int32) error {
	if err := w.WriteString(name); err != nil {
		return errors.Wrap(err, "envelope: name")
	}
	if err := w.w.WriteByte(byte(kind)); err != nil {
		return errors.Wrap(err, "envelope: kind")
	}
	if err := w.WriteI32(seq); err != nil {
		return errors.Wrap(err, "envelope: seq")
	}
	return nil
}

// WriteFieldBegin writes a field header. The typed payload must follow.
func (w *Writer) WriteFieldBegin(ftype Type, id int16) error {
	if err := w.w.WriteByte(byte(ftype)); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(w.buf[:2], uint16(id))
	_, err := w.w.Write(w.buf[:2])
	return err
}

// WriteFieldStop terminates a struct's field list.
func (w *Writer) WriteFieldStop() error {
	return w.w.WriteByte(byte(TypeStop))
}

// WriteI32 writes a 32-bit signed integer, big-endian.
func (w *Writer) WriteI32(v int32) error {
	binary.BigEndian.PutUint32(w.buf[:4], uint32(v))
	_, err := w.w.Write(w.buf[:4])
	return err
}

// WriteString writes an int32 byte length followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) error {
	if err := w.WriteI32(int32(len(s))); err != nil {
		return err
	}
	_, err := w.w.WriteString(s)
	return err
}

// WriteListBegin writes the list header: element wire type and element count.
// The elements follow back to back; lists have no end marker.
func (w *Writer) WriteListBegin(elem Type, size int) error {
	if err := w.w.WriteByte(byte(elem)); err != nil {
		return err
	}
	return w.WriteI32(int32(size))
}

// Flush pushes all buffered bytes to the underlying stream.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
