package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
)

// Storage backends for the refresh token. The profile metadata always
// lives in the profile file so status works without keychain access.
const (
	StorageFile     = "file"
	StorageKeychain = "keychain"
)

const keyringService = "pcsctl"

// Credential is the durable state of one profile: the identity resolved
// at login plus the refresh token used to mint access tokens later.
type Credential struct {
	TenantID     string    `json:"tenant_id"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	User         string    `json:"user,omitempty"`
	AcquiredAt   time.Time `json:"acquired_at,omitempty"`
}

// Store persists one Credential per profile under an owner-only
// directory. Writes are atomic (temp file + rename); reads never fail for
// a missing profile because "not logged in" is an expected state.
type Store struct {
	Dir     string
	Backend string
}

func NewStore(dir string) *Store {
	return &Store{Dir: dir, Backend: StorageFile}
}

func (s *Store) backend() string {
	if s.Backend == "" {
		return StorageFile
	}
	return s.Backend
}

func (s *Store) path(profile string) string {
	return filepath.Join(s.Dir, sanitizeProfileName(profile)+".json")
}

func sanitizeProfileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

// Write replaces the profile's stored credential. The record is written
// to a temp file in the same directory and renamed into place so readers
// only ever observe a fully-old or fully-new value.
func (s *Store) Write(profile string, cred Credential) error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create profile dir: %w", err)
	}
	onDisk := cred
	if s.backend() == StorageKeychain {
		if err := keyring.Set(keyringService, sanitizeProfileName(profile), cred.RefreshToken); err != nil {
			return fmt.Errorf("failed to store refresh token in keychain: %w", err)
		}
		onDisk.RefreshToken = ""
	}
	content, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".profile-*")
	if err != nil {
		return fmt.Errorf("failed to create temp profile file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path(profile))
}

// Read returns the profile's credential. A missing or unreadable record
// degrades to (zero, false, nil): callers treat absence as the normal
// "please log in" branch, not an error.
func (s *Store) Read(profile string) (Credential, bool, error) {
	content, err := os.ReadFile(s.path(profile))
	if err != nil {
		return Credential{}, false, nil
	}
	var cred Credential
	if err := json.Unmarshal(content, &cred); err != nil {
		return Credential{}, false, nil
	}
	if s.backend() == StorageKeychain && cred.RefreshToken == "" {
		if secret, err := keyring.Get(keyringService, sanitizeProfileName(profile)); err == nil {
			cred.RefreshToken = secret
		}
	}
	return cred, true, nil
}

// Delete removes the profile's record. Idempotent.
func (s *Store) Delete(profile string) error {
	if s.backend() == StorageKeychain {
		if err := keyring.Delete(keyringService, sanitizeProfileName(profile)); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("failed to remove refresh token from keychain: %w", err)
		}
	}
	if err := os.Remove(s.path(profile)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether the profile holds a non-empty refresh token. It
// is a liveness probe of local state only; the token is not validated
// against the provider.
func (s *Store) Exists(profile string) bool {
	cred, ok, _ := s.Read(profile)
	return ok && cred.RefreshToken != ""
}

const (
	lockRetryInterval = 50 * time.Millisecond
	lockWaitTimeout   = 5 * time.Second
	lockStaleAfter    = 10 * time.Second
)

// WithLock serializes read-modify-write cycles on one profile across
// concurrent pcsctl processes using a mkdir-based lock next to the
// profile file. Locks older than the staleness window are force-cleared
// so an abandoned lock from a killed process cannot wedge everyone.
func (s *Store) WithLock(profile string, fn func() error) error {
	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to create profile dir: %w", err)
	}
	lockDir := filepath.Join(s.Dir, sanitizeProfileName(profile)+".lock")
	deadline := time.Now().Add(lockWaitTimeout)
	for {
		err := os.Mkdir(lockDir, 0o700)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to acquire profile lock: %w", err)
		}
		if info, statErr := os.Stat(lockDir); statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			_ = os.Remove(lockDir)
			continue
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for profile lock %s", lockDir)
		}
		time.Sleep(lockRetryInterval)
	}
	defer func() {
		_ = os.Remove(lockDir)
	}()
	return fn()
}
