package deferred

import (
	"context"
	"time"

	"github.com/JPM1118/shipsbell/internal/bell"
	"github.com/JPM1118/shipsbell/internal/ringer"
	"go.uber.org/zap"
)

var _ ringer.Facility = (*Notifier)(nil)

// DefaultSource tags requests submitted by the bell clock.
const DefaultSource = "ships-bell"

// Notifier exposes the store as a notification facility for one source.
type Notifier struct {
	store  *Store
	source string
	log    *zap.Logger
}

// Notifier binds the store to source ("" means DefaultSource).
func (s *Store) Notifier(source string, log *zap.Logger) *Notifier {
	if source == "" {
		source = DefaultSource
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{store: s, source: source, log: log}
}

func (n *Notifier) Authorized(ctx context.Context) bool {
	return n.store.Authorized(ctx, Notifications)
}

func (n *Notifier) RequestAuthorization(ctx context.Context) {
	if err := n.store.RequestAuthorization(ctx, Notifications); err != nil {
		n.log.Warn("request notification capability", zap.Error(err))
	}
}

func (n *Notifier) Submit(ctx context.Context, fireAt time.Time, b bell.Boundary, p bell.Pattern) (string, error) {
	return n.store.Submit(ctx, n.source, fireAt, b, p)
}

func (n *Notifier) Pending(ctx context.Context) ([]string, error) {
	reqs, err := n.store.Pending(ctx, n.source)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
	}
	return ids, nil
}

func (n *Notifier) CancelAll(ctx context.Context, handles []string) (int, error) {
	return n.store.Cancel(ctx, handles)
}

// Permission exposes one capability grant of the store.
type Permission struct {
	store *Store
	c     Capability
	log   *zap.Logger
}

// Permission binds the store to capability c.
func (s *Store) Permission(c Capability, log *zap.Logger) *Permission {
	if log == nil {
		log = zap.NewNop()
	}
	return &Permission{store: s, c: c, log: log}
}

func (p *Permission) Authorized(ctx context.Context) bool {
	return p.store.Authorized(ctx, p.c)
}

func (p *Permission) RequestAuthorization(ctx context.Context) {
	if err := p.store.RequestAuthorization(ctx, p.c); err != nil {
		p.log.Warn("request capability", zap.String("capability", string(p.c)), zap.Error(err))
	}
}
