package wire

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Reader decodes envelopes and struct fields from an input stream. Like
// Writer, it is single-owner: the transport layer guarantees one reader per
// connection, because a byte stream can only be parsed sequentially.
type Reader struct {
	r   *bufio.Reader
	buf [8]byte
}

// NewReader wraps r in a buffered protocol reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadMessageBegin reads the message envelope and validates the kind byte.
func (r *Reader) ReadMessageBegin() (name string, kind Kind, seq int32, err error) {
	if name, err = r.ReadString(); err != nil {
		err = errors.Wrap(err, "envelope: name")
		return
	}
	var k byte
	if k, err = r.r.ReadByte(); err != nil {
		err = errors.Wrap(err, "envelope: kind")
		return
	}
	kind = Kind(k)
	if kind != KindCall && kind != KindReply && kind != KindException {
		err = errors.Errorf("envelope: invalid message kind %d", k)
		return
	}
	if seq, err = r.ReadI32(); err != nil {
		err = errors.Wrap(err, "envelope: seq")
	}
	return
}

// ReadFieldBegin reads the next field header. A Stop type has no field id;
// callers must check for it before using the id.
func (r *Reader) ReadFieldBegin() (ftype Type, id int16, err error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	ftype = Type(b)
	if ftype == TypeStop {
		return ftype, 0, nil
	}
	if _, err = io.ReadFull(r.r, r.buf[:2]); err != nil {
		return 0, 0, err
	}
	id = int16(binary.BigEndian.Uint16(r.buf[:2]))
	return ftype, id, nil
}

// ReadI32 reads a 32-bit signed integer, big-endian.
func (r *Reader) ReadI32() (int32, error) {
	if _, err := io.ReadFull(r.r, r.buf[:4]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.buf[:4])), nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadI32()
	if err != nil {
		return "", err
	}
	if n < 0 || n > maxPayloadSize {
		return "", errors.Errorf("invalid string length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadListBegin reads the list header and validates the element count.
func (r *Reader) ReadListBegin() (elem Type, size int, err error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	n, err := r.ReadI32()
	if err != nil {
		return 0, 0, err
	}
	if n < 0 || n > maxPayloadSize {
		return 0, 0, errors.Errorf("invalid list size %d", n)
	}
	return Type(b), int(n), nil
}

// Skip discards one value of the given wire type, recursively for containers.
// This is what makes unknown field ids harmless: the decoder can always step
// over a payload it does not understand.
func (r *Reader) Skip(ftype Type) error {
	switch ftype {
	case TypeBool, TypeByte:
		return r.discard(1)
	case TypeI16:
		return r.discard(2)
	case TypeI32:
		return r.discard(4)
	case TypeI64, TypeDouble:
		return r.discard(8)
	case TypeString:
		_, err := r.ReadString()
		return err
	case TypeStruct:
		for {
			ft, _, err := r.ReadFieldBegin()
			if err != nil {
				return err
			}
			if ft == TypeStop {
				return nil
			}
			if err := r.Skip(ft); err != nil {
				return err
			}
		}
	case TypeList, TypeSet:
		elem, size, err := r.ReadListBegin()
		if err != nil {
			return err
		}
		for i := 0; i < size; i++ {
			if err := r.Skip(elem); err != nil {
				return err
			}
		}
		return nil
	case TypeMap:
		kt, err := r.r.ReadByte()
		if err != nil {
			return err
		}
		vt, err := r.r.ReadByte()
		if err != nil {
			return err
		}
		n, err := r.ReadI32()
		if err != nil {
			return err
		}
		if n < 0 || n > maxPayloadSize {
			return errors.Errorf("invalid map size %d", n)
		}
		for i := int32(0); i < n; i++ {
			if err := r.Skip(Type(kt)); err != nil {
				return err
			}
			if err := r.Skip(Type(vt)); err != nil {
				return err
			}
		}
		return nil
	default:
		return errors.Errorf("cannot skip unknown wire type %d", ftype)
	}
}

func (r *Reader) discard(n int) error {
	_, err := r.r.Discard(n)
	return err
}
