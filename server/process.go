package server

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"queryrpc/middleware"
	"queryrpc/queryservice"
	"queryrpc/wire"
)

// connState is everything one connection's requests share: the handler
// session, the stream codec, and a write lock. The lock matters because an
// abandoned (timed-out) invocation may still be running when the exception
// writer or a later reply touches the stream.
type connState struct {
	sess queryservice.Handler
	r    *wire.Reader
	w    *wire.Writer
	wmu  sync.Mutex
}

func (cs *connState) close() {
	if closer, ok := cs.sess.(interface{ Close() error }); ok {
		closer.Close()
	}
}

// writeReply sends a Reply envelope carrying the encoded result struct.
func (cs *connState) writeReply(method string, seq int32, result wire.Encoder) error {
	cs.wmu.Lock()
	defer cs.wmu.Unlock()

	if err := cs.w.WriteMessageBegin(method, wire.KindReply, seq); err != nil {
		return errors.Wrapf(err, "%s: reply envelope", method)
	}
	if err := result.Encode(cs.w); err != nil {
		return errors.Wrapf(err, "%s: encode result", method)
	}
	return errors.Wrapf(cs.w.Flush(), "%s: flush reply", method)
}

// writeException sends an Exception envelope. It reports whether the
// connection survived the write.
func (cs *connState) writeException(s *Server, method string, seq int32, appErr *wire.ApplicationError) bool {
	cs.wmu.Lock()
	defer cs.wmu.Unlock()

	if err := cs.w.WriteMessageBegin(method, wire.KindException, seq); err != nil {
		s.logger.Warn("exception envelope write failed", zap.Error(err))
		return false
	}
	if err := appErr.Encode(cs.w); err != nil {
		s.logger.Warn("exception encode failed", zap.Error(err))
		return false
	}
	if err := cs.w.Flush(); err != nil {
		s.logger.Warn("exception flush failed", zap.Error(err))
		return false
	}
	return true
}

// A processFunc decodes one operation's args off the stream and returns the
// invocation step as a handler the middleware chain can wrap. Splitting the
// two phases keeps the stream aligned even when a middleware rejects the call
// before the handler runs.
type processFunc func(cs *connState) (middleware.HandlerFunc, error)

// processMap is the dispatch table, keyed by the method name carried in the
// Call envelope.
var processMap = map[string]processFunc{
	queryservice.MethodExecute:   processExecute,
	queryservice.MethodFetchOne:  processFetchOne,
	queryservice.MethodFetchN:    processFetchN,
	queryservice.MethodFetchAll:  processFetchAll,
	queryservice.MethodGetSchema: processGetSchema,
}

// declaredError splits a handler error into the declared query error, which
// travels inside the result struct of a normal reply, and anything else,
// which becomes an internal-error exception.
func declaredError(err error) (*queryservice.QueryError, error) {
	var qerr *queryservice.QueryError
	if errors.As(err, &qerr) {
		return qerr, nil
	}
	return nil, wire.NewApplicationError(wire.ExceptionInternalError, err.Error())
}

func processExecute(cs *connState) (middleware.HandlerFunc, error) {
	var args queryservice.ExecuteArgs
	if err := args.Decode(cs.r); err != nil {
		return nil, errors.Wrap(err, "execute: decode args")
	}
	return func(ctx context.Context, call *middleware.Call) error {
		var result queryservice.ExecuteResult
		if err := cs.sess.Execute(args.Query); err != nil {
			qerr, appErr := declaredError(err)
			if appErr != nil {
				return appErr
			}
			result.Ex = qerr
		}
		return cs.writeReply(queryservice.MethodExecute, call.Seq, &result)
	}, nil
}

func processFetchOne(cs *connState) (middleware.HandlerFunc, error) {
	var args queryservice.FetchOneArgs
	if err := args.Decode(cs.r); err != nil {
		return nil, errors.Wrap(err, "fetchOne: decode args")
	}
	return func(ctx context.Context, call *middleware.Call) error {
		var result queryservice.FetchOneResult
		row, err := cs.sess.FetchOne()
		if err != nil {
			qerr, appErr := declaredError(err)
			if appErr != nil {
				return appErr
			}
			result.Ex = qerr
		} else {
			result.Success = &row
		}
		return cs.writeReply(queryservice.MethodFetchOne, call.Seq, &result)
	}, nil
}

func processFetchN(cs *connState) (middleware.HandlerFunc, error) {
	var args queryservice.FetchNArgs
	if err := args.Decode(cs.r); err != nil {
		return nil, errors.Wrap(err, "fetchN: decode args")
	}
	return func(ctx context.Context, call *middleware.Call) error {
		var result queryservice.FetchNResult
		rows, err := cs.sess.FetchN(args.NumRows)
		if err != nil {
			qerr, appErr := declaredError(err)
			if appErr != nil {
				return appErr
			}
			result.Ex = qerr
		} else {
			if rows == nil {
				rows = []string{}
			}
			result.Success = rows
		}
		return cs.writeReply(queryservice.MethodFetchN, call.Seq, &result)
	}, nil
}

func processFetchAll(cs *connState) (middleware.HandlerFunc, error) {
	var args queryservice.FetchAllArgs
	if err := args.Decode(cs.r); err != nil {
		return nil, errors.Wrap(err, "fetchAll: decode args")
	}
	return func(ctx context.Context, call *middleware.Call) error {
		var result queryservice.FetchAllResult
		rows, err := cs.sess.FetchAll()
		if err != nil {
			qerr, appErr := declaredError(err)
			if appErr != nil {
				return appErr
			}
			result.Ex = qerr
		} else {
			if rows == nil {
				rows = []string{}
			}
			result.Success = rows
		}
		return cs.writeReply(queryservice.MethodFetchAll, call.Seq, &result)
	}, nil
}

func processGetSchema(cs *connState) (middleware.HandlerFunc, error) {
	var args queryservice.GetSchemaArgs
	if err := args.Decode(cs.r); err != nil {
		return nil, errors.Wrap(err, "getSchema: decode args")
	}
	return func(ctx context.Context, call *middleware.Call) error {
		var result queryservice.GetSchemaResult
		schema, err := cs.sess.GetSchema()
		if err != nil {
			qerr, appErr := declaredError(err)
			if appErr != nil {
				return appErr
			}
			result.Ex = qerr
		} else {
			result.Success = &schema
		}
		return cs.writeReply(queryservice.MethodGetSchema, call.Seq, &result)
	}, nil
}
