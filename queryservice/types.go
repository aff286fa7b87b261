// Package queryservice defines the query-execution service contract: the
// operation names, the handler interface a server implements, the declared
// QueryError exception, and the request/result structs with their wire
// codecs.
//
// Every operation follows the same shape: an Args struct with zero or one
// field, and a Result struct with an optional success field (tag 0) and an
// optional ex field (tag 1) carrying the declared exception. At most one of
// the two is populated per call.
package queryservice

import (
	"fmt"

	"queryrpc/wire"
)

// ServiceName is the name query servers advertise in the registry.
const ServiceName = "QueryService"

// Operation names as they appear on the wire.
const (
	MethodExecute   = "execute"
	MethodFetchOne  = "fetchOne"
	MethodFetchN    = "fetchN"
	MethodFetchAll  = "fetchAll"
	MethodGetSchema = "getSchema"
)

// Handler is the server-side contract. One Handler instance is created per
// client connection: Execute establishes a result set, and the fetch
// operations advance a cursor over it.
//
// A handler signals a declared service failure by returning *QueryError; any
// other error is reported to the client as an internal application error.
type Handler interface {
	// Execute runs a query, replacing any previous result set.
	Execute(query string) error
	// FetchOne returns the next serialized result row.
	FetchOne() (string, error)
	// FetchN returns up to numRows rows. An exhausted cursor yields an
	// empty slice, not an error.
	FetchN(numRows int32) ([]string, error)
	// FetchAll returns every remaining row.
	FetchAll() ([]string, error)
	// GetSchema returns the serialized schema of the current result set.
	GetSchema() (string, error)
}

// QueryError is the declared service exception: the one failure a handler is
// allowed to surface to the remote caller as a typed error.
//
// Wire struct: {1: message string, 2: errorCode i32, 3: sqlState string}
type QueryError struct {
	Message   string
	ErrorCode int32
	SQLState  string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %s (code %d, sqlstate %s)", e.Message, e.ErrorCode, e.SQLState)
}

func (e *QueryError) Encode(w *wire.Writer) error {
	if err := w.WriteFieldBegin(wire.TypeString, 1); err != nil {
		return err
	}
	if err := w.WriteString(e.Message); err != nil {
		return err
	}
	if err := w.WriteFieldBegin(wire.TypeI32, 2); err != nil {
		return err
	}
	if err := w.WriteI32(e.ErrorCode); err != nil {
		return err
	}
	if err := w.WriteFieldBegin(wire.TypeString, 3); err != nil {
		return err
	}
	if err := w.WriteString(e.SQLState); err != nil {
		return err
	}
	return w.WriteFieldStop()
}

func (e *QueryError) Decode(r *wire.Reader) error {
	for {
		ftype, fid, err := r.ReadFieldBegin()
		if err != nil {
			return err
		}
		if ftype == wire.TypeStop {
			return nil
		}
		switch {
		case fid == 1 && ftype == wire.TypeString:
			if e.Message, err = r.ReadString(); err != nil {
				return err
			}
		case fid == 2 && ftype == wire.TypeI32:
			if e.ErrorCode, err = r.ReadI32(); err != nil {
				return err
			}
		case fid == 3 && ftype == wire.TypeString:
			if e.SQLState, err = r.ReadString(); err != nil {
				return err
			}
		default:
			// Unknown tag or mismatched type: step over it.
			if err = r.Skip(ftype); err != nil {
				return err
			}
		}
	}
}

// ExecuteArgs carries the query string for execute. Field tag 1.
type ExecuteArgs struct {
	Query string
}

func (a *ExecuteArgs) Encode(w *wire.Writer) error {
	if err := w.WriteFieldBegin(wire.TypeString, 1); err != nil {
		return err
	}
	if err := w.WriteString(a.Query); err != nil {
		return err
	}
	return w.WriteFieldStop()
}

func (a *ExecuteArgs) Decode(r *wire.Reader) error {
	for {
		ftype, fid, err := r.ReadFieldBegin()
		if err != nil {
			return err
		}
		if ftype == wire.TypeStop {
			return nil
		}
		if fid == 1 && ftype == wire.TypeString {
			if a.Query, err = r.ReadString(); err != nil {
				return err
			}
			continue
		}
		if err = r.Skip(ftype); err != nil {
			return err
		}
	}
}

// ExecuteResult is void on success; tag 1 carries the declared exception.
type ExecuteResult struct {
	Ex *QueryError
}

func (res *ExecuteResult) Encode(w *wire.Writer) error {
	if res.Ex != nil {
		if err := w.WriteFieldBegin(wire.TypeStruct, 1); err != nil {
			return err
		}
		if err := res.Ex.Encode(w); err != nil {
			return err
		}
	}
	return w.WriteFieldStop()
}

func (res *ExecuteResult) Decode(r *wire.Reader) error {
	for {
		ftype, fid, err := r.ReadFieldBegin()
		if err != nil {
			return err
		}
		if ftype == wire.TypeStop {
			return nil
		}
		if fid == 1 && ftype == wire.TypeStruct {
			res.Ex = &QueryError{}
			if err = res.Ex.Decode(r); err != nil {
				return err
			}
			continue
		}
		if err = r.Skip(ftype); err != nil {
			return err
		}
	}
}

// FetchOneArgs is empty: fetchOne takes no parameters.
type FetchOneArgs struct{}

func (a *FetchOneArgs) Encode(w *wire.Writer) error {
	return w.WriteFieldStop()
}

func (a *FetchOneArgs) Decode(r *wire.Reader) error {
	return skipStructFields(r)
}

// FetchOneResult: tag 0 success row, tag 1 declared exception.
type FetchOneResult struct {
	Success *string
	Ex      *QueryError
}

func (res *FetchOneResult) Encode(w *wire.Writer) error {
	if res.Success != nil {
		if err := w.WriteFieldBegin(wire.TypeString, 0); err != nil {
			return err
		}
		if err := w.WriteString(*res.Success); err != nil {
			return err
		}
	}
	if res.Ex != nil {
		if err := w.WriteFieldBegin(wire.TypeStruct, 1); err != nil {
			return err
		}
		if err := res.Ex.Encode(w); err != nil {
			return err
		}
	}
	return w.WriteFieldStop()
}

func (res *FetchOneResult) Decode(r *wire.Reader) error {
	for {
		ftype, fid, err := r.ReadFieldBegin()
		if err != nil {
			return err
		}
		if ftype == wire.TypeStop {
			return nil
		}
		switch {
		case fid == 0 && ftype == wire.TypeString:
			s, err := r.ReadString()
			if err != nil {
				return err
			}
			res.Success = &s
		case fid == 1 && ftype == wire.TypeStruct:
			res.Ex = &QueryError{}
			if err = res.Ex.Decode(r); err != nil {
				return err
			}
		default:
			if err = r.Skip(ftype); err != nil {
				return err
			}
		}
	}
}

// FetchNArgs carries the requested row count. Field tag 1.
type FetchNArgs struct {
	NumRows int32
}

func (a *FetchNArgs) Encode(w *wire.Writer) error {
	if err := w.WriteFieldBegin(wire.TypeI32, 1); err != nil {
		return err
	}
	if err := w.WriteI32(a.NumRows); err != nil {
		return err
	}
	return w.WriteFieldStop()
}

func (a *FetchNArgs) Decode(r *wire.Reader) error {
	for {
		ftype, fid, err := r.ReadFieldBegin()
		if err != nil {
			return err
		}
		if ftype == wire.TypeStop {
			return nil
		}
		if fid == 1 && ftype == wire.TypeI32 {
			if a.NumRows, err = r.ReadI32(); err != nil {
				return err
			}
			continue
		}
		if err = r.Skip(ftype); err != nil {
			return err
		}
	}
}

// FetchNResult: tag 0 success row list, tag 1 declared exception. A nil
// Success means the field was absent; a non-nil empty slice is a written
// zero-length list; the two are distinct on the wire.
type FetchNResult struct {
	Success []string
	Ex      *QueryError
}

func (res *FetchNResult) Encode(w *wire.Writer) error {
	return encodeRowListResult(w, res.Success, res.Ex)
}

func (res *FetchNResult) Decode(r *wire.Reader) error {
	var err error
	res.Success, res.Ex, err = decodeRowListResult(r)
	return err
}

// FetchAllArgs is empty: fetchAll takes no parameters.
type FetchAllArgs struct{}

func (a *FetchAllArgs) Encode(w *wire.Writer) error {
	return w.WriteFieldStop()
}

func (a *FetchAllArgs) Decode(r *wire.Reader) error {
	return skipStructFields(r)
}

// FetchAllResult has the same wire shape as FetchNResult.
type FetchAllResult struct {
	Success []string
	Ex      *QueryError
}

func (res *FetchAllResult) Encode(w *wire.Writer) error {
	return encodeRowListResult(w, res.Success, res.Ex)
}

func (res *FetchAllResult) Decode(r *wire.Reader) error {
	var err error
	res.Success, res.Ex, err = decodeRowListResult(r)
	return err
}

// GetSchemaArgs is empty: getSchema takes no parameters.
type GetSchemaArgs struct{}

func (a *GetSchemaArgs) Encode(w *wire.Writer) error {
	return w.WriteFieldStop()
}

func (a *GetSchemaArgs) Decode(r *wire.Reader) error {
	return skipStructFields(r)
}

// GetSchemaResult: tag 0 serialized schema, tag 1 declared exception.
type GetSchemaResult struct {
	Success *string
	Ex      *QueryError
}

func (res *GetSchemaResult) Encode(w *wire.Writer) error {
	if res.Success != nil {
		if err := w.WriteFieldBegin(wire.TypeString, 0); err != nil {
			return err
		}
		if err := w.WriteString(*res.Success); err != nil {
			return err
		}
	}
	if res.Ex != nil {
		if err := w.WriteFieldBegin(wire.TypeStruct, 1); err != nil {
			return err
		}
		if err := res.Ex.Encode(w); err != nil {
			return err
		}
	}
	return w.WriteFieldStop()
}

func (res *GetSchemaResult) Decode(r *wire.Reader) error {
	for {
		ftype, fid, err := r.ReadFieldBegin()
		if err != nil {
			return err
		}
		if ftype == wire.TypeStop {
			return nil
		}
		switch {
		case fid == 0 && ftype == wire.TypeString:
			s, err := r.ReadString()
			if err != nil {
				return err
			}
			res.Success = &s
		case fid == 1 && ftype == wire.TypeStruct:
			res.Ex = &QueryError{}
			if err = res.Ex.Decode(r); err != nil {
				return err
			}
		default:
			if err = r.Skip(ftype); err != nil {
				return err
			}
		}
	}
}

// encodeRowListResult writes the shared {0: list<string>, 1: struct} result
// shape used by fetchN and fetchAll.
func encodeRowListResult(w *wire.Writer, rows []string, ex *QueryError) error {
	if rows != nil {
		if err := w.WriteFieldBegin(wire.TypeList, 0); err != nil {
			return err
		}
		if err := w.WriteListBegin(wire.TypeString, len(rows)); err != nil {
			return err
		}
		for _, row := range rows {
			if err := w.WriteString(row); err != nil {
				return err
			}
		}
	}
	if ex != nil {
		if err := w.WriteFieldBegin(wire.TypeStruct, 1); err != nil {
			return err
		}
		if err := ex.Encode(w); err != nil {
			return err
		}
	}
	return w.WriteFieldStop()
}

func decodeRowListResult(r *wire.Reader) (rows []string, ex *QueryError, err error) {
	for {
		ftype, fid, err := r.ReadFieldBegin()
		if err != nil {
			return nil, nil, err
		}
		if ftype == wire.TypeStop {
			return rows, ex, nil
		}
		switch {
		case fid == 0 && ftype == wire.TypeList:
			elem, size, err := r.ReadListBegin()
			if err != nil {
				return nil, nil, err
			}
			rows = make([]string, 0, size)
			for i := 0; i < size; i++ {
				if elem != wire.TypeString {
					if err := r.Skip(elem); err != nil {
						return nil, nil, err
					}
					continue
				}
				s, err := r.ReadString()
				if err != nil {
					return nil, nil, err
				}
				rows = append(rows, s)
			}
		case fid == 1 && ftype == wire.TypeStruct:
			ex = &QueryError{}
			if err := ex.Decode(r); err != nil {
				return nil, nil, err
			}
		default:
			if err := r.Skip(ftype); err != nil {
				return nil, nil, err
			}
		}
	}
}

// skipStructFields consumes a struct whose fields are all ignored, the
// decode path for parameterless args, tolerant of future additions.
func skipStructFields(r *wire.Reader) error {
	for {
		ftype, _, err := r.ReadFieldBegin()
		if err != nil {
			return err
		}
		if ftype == wire.TypeStop {
			return nil
		}
		if err = r.Skip(ftype); err != nil {
			return err
		}
	}
}
