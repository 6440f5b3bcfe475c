package service

import (
	"context"

	"github.com/harun/knife/internal/observability"
	"github.com/harun/knife/pkg/locks"
	"github.com/harun/knife/pkg/session"
)

func (s *Service) sessionOpen(ctx context.Context, p SessionOpenParams) (interface{}, error) {
	if _, err := s.registry.Open(p.Name); err != nil {
		return nil, err
	}
	observability.RecordSessionAudit(ctx, p.Name, "open", "success", nil)
	return p.Name, nil
}

func (s *Service) sessionList(ctx context.Context, _ NoParams) (interface{}, error) {
	return s.registry.List(), nil
}

func (s *Service) sessionClose(ctx context.Context, p SessionOpenParams) (interface{}, error) {
	closed := s.registry.Close(p.Name)
	status := "noop"
	if closed {
		status = "success"
	}
	observability.RecordSessionAudit(ctx, p.Name, "close", status, nil)
	return closed, nil
}

func (s *Service) sessionReset(ctx context.Context, p SessionResetParams) (interface{}, error) {
	ctx, sess, err := s.lookup(ctx, p.Name)
	if err != nil {
		return nil, err
	}

	keep := boolOr(p.KeepResource, true)
	held := []*locks.Lock{sess.Lock()}
	if !keep {
		// dropping the resource may close it through the engine
		held = append(held, s.engineLock)
	}

	err = s.tracked(ctx, sessionOp(sess, "reset"), held, func(ctx context.Context) error {
		sess.Reset(keep)
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.RecordSessionAudit(ctx, p.Name, "reset", "success", map[string]interface{}{"keep_resource": keep})
	return true, nil
}

// Open creates or returns the named session
func (s *Service) Open(name string) (*session.Session, error) {
	sess, err := s.registry.Open(name)
	return sess, classify(err)
}
