package service

import (
	"context"
	"errors"

	"github.com/harun/knife/pkg/engine"
	"github.com/harun/knife/pkg/inflight"
	"github.com/harun/knife/pkg/locks"
	"github.com/harun/knife/pkg/sandbox"
	"github.com/harun/knife/pkg/session"
)

// callFunc backs the call builtin. It runs inside a request that already
// holds the engine lock, so dispatch needs no further locking.
func (s *Service) callFunc(handle func() engine.Handle) sandbox.CallFunc {
	return func(ctx context.Context, op string, params map[string]any) (any, error) {
		if s.catalog == nil {
			return nil, engine.ErrUnknownOperation
		}
		ctx, release, err := s.engineLock.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
		return s.catalog.Dispatch(ctx, handle(), op, params)
	}
}

func (s *Service) codeRun(ctx context.Context, p CodeRunParams) (interface{}, error) {
	ctx, sess, err := s.lookup(ctx, p.Session)
	if err != nil {
		return nil, err
	}

	var res sandbox.Result
	err = s.tracked(ctx, sessionOp(sess, "run_code"), []*locks.Lock{sess.Lock(), s.engineLock}, func(ctx context.Context) error {
		res = sess.RunCode(ctx, s.engineLock, p.Code, session.RunOptions{
			Argv:          p.Argv,
			CaptureOutput: boolOr(p.CaptureOutput, true),
			Call:          s.callFunc(sess.Handle),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) newRootNamespace() sandbox.Namespace {
	ns := s.sandbox.NewNamespace()
	ns.Set(session.ResourceVar, nil)
	return ns
}

func (s *Service) rootRunCode(ctx context.Context, p RootRunParams) (interface{}, error) {
	var res sandbox.Result
	err := s.tracked(ctx, "root.run_code", []*locks.Lock{s.rootLock, s.engineLock}, func(ctx context.Context) error {
		s.rootMu.Lock()
		ns := s.rootNS
		s.rootMu.Unlock()

		res = s.sandbox.Run(ctx, ns, sandbox.Request{
			Name:          "<root>",
			Source:        p.Code,
			Argv:          p.Argv,
			CaptureOutput: boolOr(p.CaptureOutput, true),
			Call:          s.callFunc(func() engine.Handle { return nil }),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) rootReset(ctx context.Context, _ NoParams) (interface{}, error) {
	ctx, release, err := s.rootLock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ns := s.newRootNamespace()
	s.rootMu.Lock()
	s.rootNS = ns
	s.rootMu.Unlock()

	s.logger.Debug().Msg("Root namespace reset")
	return true, nil
}

func (s *Service) operationList(ctx context.Context, _ NoParams) (interface{}, error) {
	if s.catalog == nil {
		return []engine.OperationInfo{}, nil
	}
	return s.catalog.List(), nil
}

// operationCall dispatches a catalog operation against the session resource.
// Dispatch failures are reported in the result, not as errors.
func (s *Service) operationCall(ctx context.Context, p OperationCallParams) (interface{}, error) {
	if s.catalog == nil {
		return nil, &NotFoundError{Message: "no operation catalog"}
	}
	ctx, sess, err := s.lookup(ctx, p.Session)
	if err != nil {
		return nil, err
	}

	var res sandbox.Result
	err = s.tracked(ctx, sessionOp(sess, "call."+p.Name), []*locks.Lock{sess.Lock(), s.engineLock}, func(ctx context.Context) error {
		out, err := s.catalog.Dispatch(ctx, sess.Handle(), p.Name, p.Params)
		switch {
		case err == nil:
			res = sandbox.Result{OK: true, Result: out}
		case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, inflight.ErrInterrupted)):
			res = sandbox.Result{OK: false, Error: sandbox.InterruptedMarker}
		default:
			res = sandbox.Result{OK: false, Error: err.Error()}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
