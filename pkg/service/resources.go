package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/knife/internal/observability"
	"github.com/harun/knife/pkg/engine"
	"github.com/harun/knife/pkg/locks"
	"github.com/harun/knife/pkg/session"
)

// ResourceInfo describes a listed, attached or loaded resource
type ResourceInfo struct {
	Index         *int    `json:"index,omitempty"`
	Attached      *bool   `json:"attached,omitempty"`
	Filename      string  `json:"filename"`
	Repr          string  `json:"repr"`
	Source        string  `json:"source,omitempty"`
	ViewType      string  `json:"view_type,omitempty"`
	Arch          string  `json:"arch,omitempty"`
	AnalysisState string  `json:"analysis_state,omitempty"`
	Start         *uint64 `json:"start,omitempty"`
	Length        *uint64 `json:"length,omitempty"`
	StartHex      string  `json:"start_hex,omitempty"`
	LengthHex     string  `json:"length_hex,omitempty"`
}

// ResourceStatus is the result of resource.status
type ResourceStatus struct {
	Attached bool `json:"attached"`
	*ResourceInfo
}

func (r *ResourceInfo) merge(info engine.Info) {
	info = engine.Normalize(info)
	r.Filename = info.Filename
	r.Repr = info.Repr
	r.ViewType = info.ViewType
	r.Arch = info.Arch
	r.AnalysisState = info.AnalysisState
	start, length := info.Start, info.Length
	r.Start = &start
	r.Length = &length
	r.StartHex = info.StartHex
	r.LengthHex = info.LengthHex
}

func (s *Service) describe(h engine.Handle) (*ResourceInfo, error) {
	info, err := s.engine.Describe(h)
	if err != nil {
		return nil, err
	}
	out := &ResourceInfo{}
	out.merge(info)
	return out, nil
}

func listed(idx int, d engine.Discovered) *ResourceInfo {
	i := idx
	filename := d.Filename
	repr := d.Repr
	if repr == "" {
		repr = filename
	}
	return &ResourceInfo{Index: &i, Filename: filename, Repr: repr, Source: d.Source}
}

// discover enumerates attachable resources. Callers hold the engine lock.
func (s *Service) discover(ctx context.Context, includeUnnamed bool) ([]engine.Discovered, error) {
	entries, err := s.engine.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovery failed: %w", err)
	}
	entries = engine.Dedupe(entries)
	if !includeUnnamed {
		entries = engine.Named(entries)
	}
	return entries, nil
}

func (s *Service) resourceList(ctx context.Context, p ResourceListParams) (interface{}, error) {
	ctx, sess, err := s.lookup(ctx, p.Session)
	if err != nil {
		return nil, err
	}

	var out []*ResourceInfo
	err = s.tracked(ctx, sessionOp(sess, "resource_list"), []*locks.Lock{sess.Lock(), s.engineLock}, func(ctx context.Context) error {
		entries, err := s.discover(ctx, p.IncludeUnnamed)
		if err != nil {
			return err
		}
		sess.SetListing(entries, p.IncludeUnnamed)

		out = make([]*ResourceInfo, 0, len(entries))
		for idx, d := range entries {
			info := listed(idx, d)
			if p.Full {
				if full, err := s.engine.Describe(d.Handle); err == nil {
					info.merge(full)
				}
			}
			out = append(out, info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// validateAttach checks the index/match combination before any lock is taken
func validateAttach(p ResourceAttachParams) error {
	hasMatch := p.Match != nil && *p.Match != ""
	switch {
	case p.Index != nil && hasMatch:
		return &ValidationError{Message: "index and match are mutually exclusive"}
	case p.Index == nil && !hasMatch:
		return &ValidationError{Message: "attach requires index or match"}
	}
	return nil
}

func (s *Service) resourceAttach(ctx context.Context, p ResourceAttachParams) (interface{}, error) {
	if err := validateAttach(p); err != nil {
		return nil, err
	}
	ctx, sess, err := s.lookup(ctx, p.Session)
	if err != nil {
		return nil, err
	}

	var out *ResourceInfo
	err = s.tracked(ctx, sessionOp(sess, "resource_attach"), []*locks.Lock{sess.Lock(), s.engineLock}, func(ctx context.Context) error {
		entries, cachedUnnamed := sess.Listing()
		if len(entries) == 0 || (p.IncludeUnnamed && !cachedUnnamed) {
			fresh, err := s.discover(ctx, p.IncludeUnnamed)
			if err != nil {
				return err
			}
			sess.SetListing(fresh, p.IncludeUnnamed)
			entries = fresh
		}

		var chosen int
		if p.Index != nil {
			chosen = *p.Index
		} else {
			matches := engine.Match(entries, *p.Match)
			switch len(matches) {
			case 0:
				return &NotFoundError{Message: fmt.Sprintf("no resources match %q", *p.Match)}
			case 1:
				chosen = matches[0]
			default:
				return &AmbiguousError{Match: *p.Match, Matches: matches}
			}
		}
		if chosen < 0 || chosen >= len(entries) {
			return &OutOfRangeError{Index: chosen, Length: len(entries)}
		}

		entry := entries[chosen]
		sess.BindResource(entry.Handle, false)
		observability.RecordSessionAudit(ctx, p.Session, "attach", "success", map[string]interface{}{"index": chosen, "id": entry.Handle.ID()})

		info, err := s.describe(entry.Handle)
		if err != nil {
			info = listed(chosen, entry)
		}
		info.Index = &chosen
		info.Source = entry.Source
		out = info
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) resourceStatus(ctx context.Context, p SessionParams) (interface{}, error) {
	ctx, sess, err := s.lookup(ctx, p.Session)
	if err != nil {
		return nil, err
	}

	var out ResourceStatus
	err = s.tracked(ctx, sessionOp(sess, "resource_status"), []*locks.Lock{sess.Lock(), s.engineLock}, func(ctx context.Context) error {
		h := sess.Handle()
		if h == nil {
			return nil
		}
		info, err := s.describe(h)
		if err != nil {
			return err
		}
		out = ResourceStatus{Attached: true, ResourceInfo: info}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) resourceLoad(ctx context.Context, p ResourceLoadParams) (interface{}, error) {
	if strings.TrimSpace(p.Path) == "" {
		return nil, &ValidationError{Message: "path is required"}
	}
	ctx, sess, err := s.lookup(ctx, p.Session)
	if err != nil {
		return nil, err
	}

	var out *ResourceInfo
	err = s.tracked(ctx, sessionOp(sess, "resource_load"), []*locks.Lock{sess.Lock(), s.engineLock}, func(ctx context.Context) error {
		h, err := s.engine.Load(ctx, p.Path, engine.LoadOptions{
			UpdateAnalysis: boolOr(p.UpdateAnalysis, true),
			Options:        p.Options,
		})
		if err != nil {
			return fmt.Errorf("load %s: %w", p.Path, err)
		}
		sess.BindResource(h, true)
		observability.RecordSessionAudit(ctx, p.Session, "load", "success", map[string]interface{}{"path": p.Path})

		info, err := s.describe(h)
		if err != nil {
			return err
		}
		attached := true
		info.Attached = &attached
		info.Source = "load"
		out = info
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) resourceDetach(ctx context.Context, p ResourceDetachParams) (interface{}, error) {
	ctx, sess, err := s.lookup(ctx, p.Session)
	if err != nil {
		return nil, err
	}

	var out session.DetachOutcome
	err = s.tracked(ctx, sessionOp(sess, "resource_detach"), []*locks.Lock{sess.Lock(), s.engineLock}, func(ctx context.Context) error {
		out = sess.DetachResource(true, p.Force)
		if out.HadAttached {
			observability.RecordSessionAudit(ctx, p.Session, "detach", "success", map[string]interface{}{"closed": out.Closed, "force": p.Force})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
