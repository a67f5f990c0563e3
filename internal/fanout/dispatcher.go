package fanout

import (
	"context"
	"strconv"
	"strings"

	"github.com/park285/Cheese-TicTacToe-bot/internal/msgcat"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"github.com/park285/Cheese-TicTacToe-bot/internal/session"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispatcher pushes the current view of a session to every participant concurrently.
// A failed recipient never blocks or undoes delivery to the other.
type Dispatcher struct {
	messenger Messenger
	catalog   *msgcat.Catalog
	prefix    string
	snapshots Snapshotter
}

type DispatcherOption func(*Dispatcher)

// WithSnapshots sends a board picture on terminal views when the messenger can post images.
func WithSnapshots(s Snapshotter) DispatcherOption {
	return func(d *Dispatcher) { d.snapshots = s }
}

func NewDispatcher(messenger Messenger, catalog *msgcat.Catalog, prefix string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{messenger: messenger, catalog: catalog, prefix: strings.TrimSpace(prefix)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify implements session.Notifier. Recipients are served concurrently and each failure is
// reported in its own Delivery.Err; one recipient's error never stops the other.
func (d *Dispatcher) Notify(ctx context.Context, rec *session.Record) []session.Delivery {
	if rec == nil || len(rec.Participants) == 0 {
		return nil
	}
	out := make([]session.Delivery, len(rec.Participants))
	var g errgroup.Group
	for i, p := range rec.Participants {
		g.Go(func() error {
			view := Render(d.catalog, d.prefix, rec, p.UserID)
			out[i] = d.deliver(ctx, p, view)
			return out[i].Err
		})
	}
	// Wait only joins the goroutines; the errors are already in out.
	_ = g.Wait()
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, p session.Participant, view View) session.Delivery {
	res := session.Delivery{UserID: p.UserID}
	if p.MessageID != "" {
		err := d.messenger.Edit(ctx, p.ChatID, p.MessageID, view.Text, view.Layout)
		if err == nil {
			res.MessageID = p.MessageID
			d.snapshot(ctx, p, view)
			return res
		}
		obslog.L().Debug("fanout_edit_fallback",
			zap.Int64("session_id", view.SessionID),
			zap.String("user_id", p.UserID),
			zap.Error(err),
		)
	}
	id, err := d.messenger.Send(ctx, p.ChatID, view.Text, view.Layout)
	if err != nil {
		res.Err = err
		return res
	}
	res.MessageID = id
	d.snapshot(ctx, p, view)
	return res
}

func (d *Dispatcher) snapshot(ctx context.Context, p session.Participant, view View) {
	if d.snapshots == nil || !view.Terminal() {
		return
	}
	sender, ok := d.messenger.(ImageSender)
	if !ok {
		return
	}
	png, err := d.snapshots.Snapshot(ctx, view)
	if err == nil {
		caption := d.catalog.Text("view.snapshot", map[string]any{"ID": strconv.FormatInt(view.SessionID, 10)})
		err = sender.SendImage(ctx, p.ChatID, png, caption)
	}
	if err != nil {
		obslog.L().Warn("fanout_snapshot_error",
			zap.Int64("session_id", view.SessionID),
			zap.String("user_id", p.UserID),
			zap.Error(err),
		)
	}
}
