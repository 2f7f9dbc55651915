package security

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quailyquaily/slackpm/internal/taskstore"
)

const (
	tokenTTL = 30 * 24 * time.Hour

	ActionTokenRotated = "TOKEN_ROTATED"
	ActionTokenRevoked = "TOKEN_REVOKED"
	ActionGDPRDelete   = "GDPR_DELETE"
)

// AuditEntry is one append-only audit record. Entries are never mutated or
// removed.
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	UserID    string         `json:"user_id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
}

type Options struct {
	Token  string
	Store  *taskstore.Store
	Logger *slog.Logger
	Now    func() time.Time
}

// Manager simulates credential rotation/revocation and keeps the audit log.
// The extraction core never reads from it.
type Manager struct {
	log   *slog.Logger
	store *taskstore.Store
	now   func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
	audit  []AuditEntry
}

func NewManager(opts Options) *Manager {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:    log,
		store:  opts.Store,
		now:    now,
		token:  opts.Token,
		expiry: now().UTC().Add(tokenTTL),
	}
}

// RotateToken replaces the token with a fresh simulated value and renews the
// 30-day expiry. A secrets-manager integration would slot in here.
func (m *Manager) RotateToken() string {
	if m == nil {
		return ""
	}
	now := m.now().UTC()
	m.mu.Lock()
	m.token = "rotated_" + strconv.FormatInt(now.UnixMilli(), 10)
	m.expiry = now.Add(tokenTTL)
	token := m.token
	expiry := m.expiry
	m.appendLocked("system", ActionTokenRotated, map[string]any{"expiry": expiry.Format(time.RFC3339)})
	m.mu.Unlock()

	m.log.Info("token_rotated", "expiry", expiry.Format(time.RFC3339))
	return token
}

// RevokeToken clears the token and its expiry.
func (m *Manager) RevokeToken() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.token = ""
	m.expiry = time.Time{}
	m.appendLocked("system", ActionTokenRevoked, nil)
	m.mu.Unlock()

	m.log.Info("token_revoked")
}

func (m *Manager) Token() string {
	if m == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *Manager) Expiry() time.Time {
	if m == nil {
		return time.Time{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiry
}

// LogAccess appends one audit entry.
func (m *Manager) LogAccess(userID, action string, details map[string]any) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.appendLocked(userID, action, details)
	m.mu.Unlock()
}

// AuditLog returns a copy of all audit entries in append order.
func (m *Manager) AuditLog() []AuditEntry {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}

// DeleteUserData purges every stored record owned by userID and audits the
// deletion. Returns the number of purged records.
func (m *Manager) DeleteUserData(userID string) int {
	if m == nil {
		return 0
	}
	purged := 0
	if m.store != nil {
		m.store.Range(func(key taskstore.Key, md taskstore.Metadata) bool {
			if md.Owner == userID {
				m.store.Delete(key.Channel, key.TS)
				purged++
			}
			return true
		})
	}
	m.LogAccess(userID, ActionGDPRDelete, map[string]any{"user_id": userID, "purged": purged})
	m.log.Info("gdpr_delete_user", "user_id", userID, "purged", purged)
	return purged
}

// DeleteChannelData purges every stored record keyed under channelID and
// audits the deletion. Returns the number of purged records.
func (m *Manager) DeleteChannelData(channelID string) int {
	if m == nil {
		return 0
	}
	purged := 0
	if m.store != nil {
		m.store.Range(func(key taskstore.Key, _ taskstore.Metadata) bool {
			if key.Channel == channelID {
				m.store.Delete(key.Channel, key.TS)
				purged++
			}
			return true
		})
	}
	m.LogAccess("system", ActionGDPRDelete, map[string]any{"channel_id": channelID, "purged": purged})
	m.log.Info("gdpr_delete_channel", "channel_id", channelID, "purged", purged)
	return purged
}

func (m *Manager) appendLocked(userID, action string, details map[string]any) {
	m.audit = append(m.audit, AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: m.now().UTC(),
		UserID:    userID,
		Action:    action,
		Details:   details,
	})
}
