package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
)

// Store is the keyed persistence the core consumes. It offers no compare-and-swap;
// callers serialize read-modify-write sequences per id through a Locker.
type Store interface {
	// AllocateID returns a unique id, monotonically increasing across concurrent callers.
	AllocateID(ctx context.Context) (int64, error)
	// Get returns nil, nil when no record exists.
	Get(ctx context.Context, id int64) (*Record, error)
	// Put overwrites the record stored under rec.ID.
	Put(ctx context.Context, rec *Record) error
	// ReserveToken binds token to id only if the token is unused.
	ReserveToken(ctx context.Context, token string, id int64) (bool, error)
	ResolveToken(ctx context.Context, token string) (int64, bool, error)
	// UpdateMessageIDs rewrites only participants' message ids on the current stored record,
	// so it never reverts a newer board written by someone else.
	UpdateMessageIDs(ctx context.Context, id int64, updates []MessageIDUpdate) error
}

// MessageIDUpdate replaces a participant's message id only while it still equals Old.
type MessageIDUpdate struct {
	UserID string
	Old    string
	New    string
}

// applyMessageIDs reports whether rec changed.
func applyMessageIDs(rec *Record, updates []MessageIDUpdate) bool {
	changed := false
	for _, u := range updates {
		p, ok := rec.Participant(u.UserID)
		if !ok || p.MessageID != u.Old || p.MessageID == u.New {
			continue
		}
		p.MessageID = u.New
		changed = true
	}
	return changed
}

// UserIndex maps a user to the session they are currently looking at.
// It is a local pointer only; clearing it never touches the shared record.
type UserIndex interface {
	Current(ctx context.Context, userID string) (int64, bool, error)
	Bind(ctx context.Context, userID string, id int64) error
	Unbind(ctx context.Context, userID string) error
}

const (
	tokenPrefix   = "TTT-"
	tokenAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	tokenLength   = 6
)

// newJoinToken returns `TTT-` + 6 characters without ambiguous glyphs (0/O, 1/I).
func newJoinToken() (string, error) {
	b := make([]byte, tokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = tokenAlphabet[int(b[i])%len(tokenAlphabet)]
	}
	return tokenPrefix + string(b), nil
}

// NormalizeRef uppercases a user-typed code and restores a missing `TTT-` prefix.
func NormalizeRef(ref string) string {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	if ref == "" {
		return ""
	}
	if _, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return ref
	}
	if !strings.HasPrefix(ref, tokenPrefix) && len(ref) == tokenLength {
		return tokenPrefix + ref
	}
	return ref
}

// resolveRef turns a numeric id or join token into a session id.
func resolveRef(ctx context.Context, store Store, ref string) (int64, bool, error) {
	ref = NormalizeRef(ref)
	if ref == "" {
		return 0, false, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if id <= 0 {
			return 0, false, nil
		}
		return id, true, nil
	}
	id, ok, err := store.ResolveToken(ctx, ref)
	if err != nil {
		return 0, false, unavailable("resolve token", err)
	}
	return id, ok, nil
}

// reserveToken allocates a fresh join token for id, retrying on collision like the lobby code allocator.
func reserveToken(ctx context.Context, store Store, id int64) (string, error) {
	for i := 0; i < 5; i++ {
		token, err := newJoinToken()
		if err != nil {
			return "", err
		}
		ok, err := store.ReserveToken(ctx, token, id)
		if err != nil {
			return "", unavailable("reserve token", err)
		}
		if ok {
			return token, nil
		}
	}
	return "", fmt.Errorf("failed to allocate join token for session %d", id)
}
