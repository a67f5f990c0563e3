package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
	"github.com/park285/Cheese-TicTacToe-bot/internal/obslog"
	"go.uber.org/zap"
)

// ErrInvalidArgs reports a caller bug (missing identity or address), not a user mistake.
var ErrInvalidArgs = errors.New("invalid arguments")

// Delivery is the outcome of pushing a view to one participant.
type Delivery struct {
	UserID    string
	MessageID string
	Err       error
}

// Notifier fans an updated record out to every participant. Failures are reported per recipient.
type Notifier interface {
	Notify(ctx context.Context, rec *Record) []Delivery
}

// Archive stores terminal sessions outside the hot store.
type Archive interface {
	SaveResult(ctx context.Context, rec *Record) error
}

// Manager owns every state transition of a session: creation, joining, leaving and moves.
// All load-mutate-persist-notify sequences for one session id run under that id's lock.
// Lock order is always user before session.
type Manager struct {
	store    Store
	users    UserIndex
	locker   Locker
	notifier Notifier
	archive  Archive
	now      func() time.Time
}

type Option func(*Manager)

func WithLocker(l Locker) Option { return func(m *Manager) { m.locker = l } }

func WithNotifier(n Notifier) Option { return func(m *Manager) { m.notifier = n } }

func WithArchive(a Archive) Option { return func(m *Manager) { m.archive = a } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(store Store, users UserIndex, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		users:  users,
		locker: NewKeyedMutex(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create opens a new session with creator in the first seat.
func (m *Manager) Create(ctx context.Context, creator Participant) (*Record, error) {
	if err := checkParticipant(creator); err != nil {
		return nil, err
	}
	unlockUser, err := m.lock(ctx, userLockKey(creator.UserID))
	if err != nil {
		return nil, err
	}
	defer unlockUser()

	busy, err := m.activeSession(ctx, creator.UserID)
	if err != nil {
		return nil, err
	}
	if busy != nil {
		return nil, ErrAlreadyInSession
	}

	id, err := m.store.AllocateID(ctx)
	if err != nil {
		return nil, unavailable("allocate id", err)
	}
	unlock, err := m.lock(ctx, sessionLockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	token, err := reserveToken(ctx, m.store, id)
	if err != nil {
		return nil, err
	}

	now := m.now()
	creator.Symbol = seatSymbols[0]
	rec := &Record{
		ID:           id,
		Status:       StatusWaiting,
		Participants: []Participant{creator},
		CurrentTurn:  creator.UserID,
		JoinToken:    token,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// The pointer is bound before the record exists; a failed commit restores the previous one.
	prevID, hadPrev, err := m.users.Current(ctx, creator.UserID)
	if err != nil {
		return nil, unavailable("user pointer", err)
	}
	if err := m.users.Bind(ctx, creator.UserID, id); err != nil {
		return nil, unavailable("bind user", err)
	}
	if err := m.commit(ctx, nil, rec); err != nil {
		m.restorePointer(ctx, creator.UserID, prevID, hadPrev)
		return nil, err
	}
	obslog.L().Info("session_create",
		zap.Int64("session_id", id),
		zap.String("join_token", token),
		zap.String("user_id", creator.UserID),
		zap.String("chat_id", creator.ChatID),
	)
	m.deliver(ctx, rec)
	return rec, nil
}

// Join seats joiner in the session identified by ref (numeric id or join token).
// Joining a session the user already sits in only refreshes their delivery address.
func (m *Manager) Join(ctx context.Context, joiner Participant, ref string) (*Record, error) {
	if err := checkParticipant(joiner); err != nil {
		return nil, err
	}
	unlockUser, err := m.lock(ctx, userLockKey(joiner.UserID))
	if err != nil {
		return nil, err
	}
	defer unlockUser()

	id, ok, err := resolveRef(ctx, m.store, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	unlock, err := m.lock(ctx, sessionLockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, seated := rec.Participant(joiner.UserID); seated {
		if rec.Status.Terminal() {
			return nil, ErrSessionTerminal
		}
		next := rec.Clone()
		seat, _ := next.Participant(joiner.UserID)
		if seat.ChatID != joiner.ChatID {
			seat.ChatID = joiner.ChatID
			seat.MessageID = joiner.MessageID
		}
		if n := strings.TrimSpace(joiner.Name); n != "" {
			seat.Name = n
		}
		if err := m.commit(ctx, rec, next); err != nil {
			return nil, err
		}
		if err := m.users.Bind(ctx, joiner.UserID, id); err != nil {
			return nil, unavailable("bind user", err)
		}
		obslog.L().Info("session_rejoin", zap.Int64("session_id", id), zap.String("user_id", joiner.UserID))
		m.deliver(ctx, next)
		return next, nil
	}

	if len(rec.Participants) >= MaxParticipants {
		return nil, ErrSessionFull
	}
	if rec.Status.Terminal() {
		return nil, ErrSessionTerminal
	}
	busy, err := m.activeSession(ctx, joiner.UserID)
	if err != nil {
		return nil, err
	}
	if busy != nil && busy.ID != id {
		return nil, ErrAlreadyInSession
	}

	next := rec.Clone()
	joiner.Symbol = seatSymbols[len(next.Participants)]
	next.Participants = append(next.Participants, joiner)
	next.Status = StatusInProgress
	next.UpdatedAt = m.now()
	if err := m.commit(ctx, rec, next); err != nil {
		return nil, err
	}
	if err := m.users.Bind(ctx, joiner.UserID, id); err != nil {
		return nil, unavailable("bind user", err)
	}
	obslog.L().Info("session_join",
		zap.Int64("session_id", id),
		zap.String("user_id", joiner.UserID),
		zap.String("chat_id", joiner.ChatID),
		zap.String("current_turn", next.CurrentTurn),
	)
	m.deliver(ctx, next)
	return next, nil
}

// Leave clears the user's local pointer and returns the record it referenced, if any.
// The shared record is never modified.
func (m *Manager) Leave(ctx context.Context, userID string) (*Record, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidArgs
	}
	unlockUser, err := m.lock(ctx, userLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer unlockUser()

	id, ok, err := m.users.Current(ctx, userID)
	if err != nil {
		return nil, unavailable("user pointer", err)
	}
	if err := m.users.Unbind(ctx, userID); err != nil {
		return nil, unavailable("unbind user", err)
	}
	if !ok {
		return nil, nil
	}
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, unavailable("get", err)
	}
	obslog.L().Info("session_leave", zap.Int64("session_id", id), zap.String("user_id", userID))
	return rec, nil
}

// Get returns the record by id; finished sessions stay retrievable.
func (m *Manager) Get(ctx context.Context, id int64) (*Record, error) {
	return m.load(ctx, id)
}

// Lookup resolves a numeric id or join token.
func (m *Manager) Lookup(ctx context.Context, ref string) (*Record, error) {
	id, ok, err := resolveRef(ctx, m.store, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m.load(ctx, id)
}

// CurrentFor returns the session the user's pointer references, or nil.
func (m *Manager) CurrentFor(ctx context.Context, userID string) (*Record, error) {
	id, ok, err := m.users.Current(ctx, userID)
	if err != nil {
		return nil, unavailable("user pointer", err)
	}
	if !ok {
		return nil, nil
	}
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, unavailable("get", err)
	}
	return rec, nil
}

// Refresh re-sends the current view of a session to every participant.
func (m *Manager) Refresh(ctx context.Context, id int64) (*Record, error) {
	unlock, err := m.lock(ctx, sessionLockKey(id))
	if err != nil {
		return nil, err
	}
	defer unlock()
	rec, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	m.deliver(ctx, rec)
	return rec, nil
}

func (m *Manager) activeSession(ctx context.Context, userID string) (*Record, error) {
	rec, err := m.CurrentFor(ctx, userID)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return nil, nil
	}
	return rec, nil
}

func (m *Manager) load(ctx context.Context, id int64) (*Record, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, unavailable("get", err)
	}
	if rec == nil {
		return nil, ErrSessionNotFound
	}
	return rec, nil
}

func (m *Manager) lock(ctx context.Context, key string) (func(), error) {
	unlock, err := m.locker.Lock(ctx, key)
	if err != nil {
		return nil, unavailable("lock", err)
	}
	return unlock, nil
}

// commit validates next against its invariants and the previous version, then overwrites it.
func (m *Manager) commit(ctx context.Context, prev, next *Record) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("refusing to persist: %w", err)
	}
	if err := checkTransition(prev, next); err != nil {
		return fmt.Errorf("refusing to persist: %w", err)
	}
	if err := m.store.Put(ctx, next); err != nil {
		return unavailable("put", err)
	}
	return nil
}

// deliver runs the fan-out and records message ids of newly sent views. Delivery problems never
// roll back the committed record. The ids are merged into whatever is stored now, because a slow
// fan-out can outlive the session lock.
func (m *Manager) deliver(ctx context.Context, rec *Record) {
	if m.notifier == nil {
		return
	}
	deliveries := m.notifier.Notify(ctx, rec.Clone())
	var updates []MessageIDUpdate
	for _, d := range deliveries {
		if d.Err != nil {
			obslog.L().Warn("fanout_delivery_error",
				zap.Int64("session_id", rec.ID),
				zap.String("user_id", d.UserID),
				zap.Error(d.Err),
			)
			continue
		}
		p, ok := rec.Participant(d.UserID)
		if !ok || d.MessageID == "" || p.MessageID == d.MessageID {
			continue
		}
		updates = append(updates, MessageIDUpdate{UserID: d.UserID, Old: p.MessageID, New: d.MessageID})
		p.MessageID = d.MessageID
	}
	if len(updates) == 0 {
		return
	}
	if err := m.store.UpdateMessageIDs(ctx, rec.ID, updates); err != nil {
		obslog.L().Warn("session_message_ids_persist_error", zap.Int64("session_id", rec.ID), zap.Error(err))
	}
}

func (m *Manager) restorePointer(ctx context.Context, userID string, prevID int64, hadPrev bool) {
	var err error
	if hadPrev {
		err = m.users.Bind(ctx, userID, prevID)
	} else {
		err = m.users.Unbind(ctx, userID)
	}
	if err != nil {
		obslog.L().Warn("session_pointer_restore_error", zap.String("user_id", userID), zap.Error(err))
	}
}

func checkParticipant(p Participant) error {
	if strings.TrimSpace(p.UserID) == "" || strings.TrimSpace(p.ChatID) == "" {
		return ErrInvalidArgs
	}
	return nil
}

// symbolFor returns the seat symbol of userID in rec.
func symbolFor(rec *Record, userID string) board.Symbol {
	if p, ok := rec.Participant(userID); ok {
		return p.Symbol
	}
	return board.Empty
}
