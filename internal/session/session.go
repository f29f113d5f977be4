package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"jubi-watch/internal/api"
	"jubi-watch/internal/interfaces"
	"jubi-watch/internal/logger"
)

// ErrLoginFailed means every login attempt was rejected.
var ErrLoginFailed = errors.New("login failed")

// Manager owns the session cookie. It is loaded from disk on first use and
// refreshed by logging in when absent or invalidated.
type Manager struct {
	ex          interfaces.Exchange
	path        string
	credentials map[string]string
	retry       *api.RetryConfig

	mu     sync.Mutex
	cookie string
}

var _ interfaces.Session = (*Manager)(nil)

// NewManager creates a session manager persisting its cookie at path.
func NewManager(ex interfaces.Exchange, path string, credentials map[string]string, retry *api.RetryConfig) *Manager {
	if retry == nil {
		retry = api.DefaultRetryConfig()
	}
	return &Manager{ex: ex, path: path, credentials: credentials, retry: retry}
}

// Ensure returns a cookie, reading the cookie file or logging in when none is held.
func (m *Manager) Ensure(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cookie != "" {
		return m.cookie, nil
	}

	cookie, err := m.load()
	if err != nil {
		logger.Warn(ctx, "Failed to read cookie file, logging in", "path", m.path, "error", err)
	} else if cookie != "" {
		logger.Debug(ctx, "Session cookie restored", "path", m.path)
		m.cookie = cookie
		return cookie, nil
	}

	cookie, err = m.login(ctx)
	if err != nil {
		return "", err
	}
	m.cookie = cookie
	return cookie, nil
}

// Invalidate drops the held cookie and removes the cookie file so the next
// Ensure logs in again.
func (m *Manager) Invalidate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cookie = ""
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove cookie file: %w", err)
	}
	logger.Info(ctx, "Session invalidated", "path", m.path)
	return nil
}

func (m *Manager) load() (string, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func (m *Manager) save(cookie string) error {
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(m.path, []byte(cookie), 0o600)
}

// login retries rejected attempts with exponential backoff. The cookie file
// is written only after a successful login.
func (m *Manager) login(ctx context.Context) (string, error) {
	wait := m.retry.InitialWait
	var lastErr error

	for attempt := 1; attempt <= m.retry.MaxAttempts; attempt++ {
		cookie, err := m.ex.Login(ctx, m.credentials)
		if err == nil {
			if err := m.save(cookie); err != nil {
				logger.Warn(ctx, "Failed to persist session cookie", "path", m.path, "error", err)
			}
			logger.Info(ctx, "Logged in", "attempt", attempt)
			return cookie, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		lastErr = err
		if attempt == m.retry.MaxAttempts {
			break
		}
		logger.Warn(ctx, "Login attempt failed, retrying", "attempt", attempt, "error", err, "waitTime", wait)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > m.retry.MaxWait {
			wait = m.retry.MaxWait
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %w", ErrLoginFailed, m.retry.MaxAttempts, lastErr)
}
