// Package wire implements the tagged binary protocol spoken between the
// query-service client and server.
//
// Every message starts with an envelope (method name, message kind, sequence
// id) followed by exactly one struct. Structs are self-describing: a sequence
// of field headers (wire type + field id), each followed by the typed payload,
// terminated by a Stop marker. Field ids, not field order, are authoritative
// on decode, and unknown field ids are skipped, so either side can grow its
// structs without breaking the other.
//
// Envelope layout:
//
//	┌──────────┬────────────┬──────┬─────────┐
//	│ nameLen  │   name     │ kind │   seq   │
//	│ int32 BE │ UTF-8      │ byte │ int32 BE│
//	└──────────┴────────────┴──────┴─────────┘
//
// Field header layout (repeated until a single Stop byte):
//
//	┌──────┬──────────┬─────────────────┐
//	│ type │ field id │  typed payload  │
//	│ byte │ int16 BE │                 │
//	└──────┴──────────┴─────────────────┘
package wire

import "fmt"

// Kind identifies the role of a message on the wire.
type Kind byte

const (
	KindCall      Kind = 1 // Client → Server request
	KindReply     Kind = 2 // Server → Client result (success or declared exception)
	KindException Kind = 3 // Server → Client protocol-level application error
)

// Type is the wire type carried in a field header. The numeric values are
// part of the wire contract and must never be renumbered.
type Type byte

const (
	TypeStop   Type = 0
	TypeBool   Type = 2
	TypeByte   Type = 3
	TypeDouble Type = 4
	TypeI16    Type = 6
	TypeI32    Type = 8
	TypeI64    Type = 10
	TypeString Type = 11
	TypeStruct Type = 12
	TypeMap    Type = 13
	TypeSet    Type = 14
	TypeList   Type = 15
)

// Application error codes. These travel on Exception envelopes and are
// synthesized by the RPC layer itself, never by a service handler.
const (
	ExceptionUnknown         int32 = 0
	ExceptionUnknownMethod   int32 = 1
	ExceptionWrongMethodName int32 = 3
	ExceptionBadSequenceID   int32 = 4
	ExceptionMissingResult   int32 = 5
	ExceptionInternalError   int32 = 6
	ExceptionProtocolError   int32 = 7
)

// maxPayloadSize bounds any single length-prefixed value (string bytes, list
// element count). A peer announcing more than this is treated as corrupt
// rather than allocated for.
const maxPayloadSize = 64 << 20

// Encoder is implemented by every struct that can write itself to the wire.
type Encoder interface {
	Encode(w *Writer) error
}

// Decoder is implemented by every struct that can read itself from the wire.
type Decoder interface {
	Decode(r *Reader) error
}

// ApplicationError is a protocol-level failure raised by the RPC layer: an
// unknown method on the server, a malformed reply on the client, and so on.
// It is carried on an Exception envelope as a struct:
//
//	{1: message string, 2: code i32}
type ApplicationError struct {
	Message string
	Code    int32
}

// NewApplicationError builds an ApplicationError with the given reason code.
func NewApplicationError(code int32, message string) *ApplicationError {
	return &ApplicationError{Message: message, Code: code}
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("rpc application error (code %d): %s", e.Code, e.Message)
}

// Encode writes the error struct (without an envelope).
func (e *ApplicationError) Encode(w *Writer) error {
	if err := w.WriteFieldBegin(TypeString, 1); err != nil {
		return err
	}
	if err := w.WriteString(e.Message); err != nil {
		return err
	}
	if err := w.WriteFieldBegin(TypeI32, 2); err != nil {
		return err
	}
	if err := w.WriteI32(e.Code); err != nil {
		return err
	}
	return w.WriteFieldStop()
}

// Decode reads the error struct (without an envelope). Unknown fields are
// skipped.
func (e *ApplicationError) Decode(r *Reader) error {
	for {
		ftype, fid, err := r.ReadFieldBegin()
		if err != nil {
			return err
		}
		if ftype == TypeStop {
			return nil
		}
		switch {
		case fid == 1 && ftype == TypeString:
			if e.Message, err = r.ReadString(); err != nil {
				return err
			}
		case fid == 2 && ftype == TypeI32:
			if e.Code, err = r.ReadI32(); err != nil {
				return err
			}
		default:
			if err = r.Skip(ftype); err != nil {
				return err
			}
		}
	}
}
