package auth

import (
	"errors"
	"sort"
	"strings"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

// Authenticate verifies the password and, when the user has a TOTP secret,
// the verification code.
func (s *Store) Authenticate(username, password, totpCode string) error {
	user, err := s.checkPassword(username, password)
	if err != nil {
		return err
	}
	if user.TOTPSecret != "" && !totp.Validate(strings.TrimSpace(totpCode), user.TOTPSecret) {
		return ErrInvalidTOTP
	}
	return nil
}

// ValidateTOTP verifies the verification code of a user that has a TOTP secret.
func (s *Store) ValidateTOTP(username, totpCode string) error {
	user, ok := s.lookup(username)
	if !ok {
		return ErrInvalidCredentials
	}
	if user.TOTPSecret == "" || !totp.Validate(strings.TrimSpace(totpCode), user.TOTPSecret) {
		return ErrInvalidTOTP
	}
	return nil
}

// ValidatePassword verifies the password only.
func (s *Store) ValidatePassword(username, password string) error {
	_, err := s.checkPassword(username, password)
	return err
}

// HasTOTP reports whether the user must present a verification code.
func (s *Store) HasTOTP(username string) bool {
	user, ok := s.lookup(username)
	return ok && user.TOTPSecret != ""
}

// HasUser reports whether the user exists.
func (s *Store) HasUser(username string) bool {
	_, ok := s.lookup(username)
	return ok
}

func (s *Store) checkPassword(username, password string) (User, error) {
	user, ok := s.lookup(username)
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Store) lookup(username string) (User, bool) {
	if err := s.refreshIfNeeded(); err != nil {
		return User{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	return user, ok
}

// ChangePassword verifies credentials and replaces the stored password hash.
func (s *Store) ChangePassword(username, currentPassword, totpCode, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return errors.New("new password is required")
	}
	if err := s.Authenticate(username, currentPassword, totpCode); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.UpdatePassword(username, string(hash))
}

// LoadUsers returns a snapshot of users sorted by name.
func (s *Store) LoadUsers() []User {
	if err := s.refreshIfNeeded(); err != nil {
		s.warn("auth store refresh failed", "err", err)
	}
	s.mu.RLock()
	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	s.mu.RUnlock()
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// AddUser inserts a new user and persists the store.
func (s *Store) AddUser(user User) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	username, err := validateUsername(user.Username)
	if err != nil {
		return err
	}
	if strings.TrimSpace(user.PasswordHash) == "" {
		return errors.New("password hash is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return ErrUserExists
	}
	user.Username = username
	s.users[username] = user
	if err := s.saveLocked(); err != nil {
		s.warn("auth user add failed", "user", username, "err", err)
		return err
	}
	if s.log != nil {
		s.log.Info("auth user added", "user", username, "totp", user.TOTPSecret != "")
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(username, passwordHash string) error {
	if strings.TrimSpace(passwordHash) == "" {
		return errors.New("password hash is required")
	}
	return s.update(username, "auth password updated", func(user *User) {
		user.PasswordHash = passwordHash
	})
}

// UpdateTOTP replaces the stored TOTP secret. An empty secret disables the
// second factor.
func (s *Store) UpdateTOTP(username, secret string) error {
	return s.update(username, "auth totp updated", func(user *User) {
		user.TOTPSecret = strings.TrimSpace(secret)
	})
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(username string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	username, err := validateUsername(username)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return ErrUserNotFound
	}
	delete(s.users, username)
	if err := s.saveLocked(); err != nil {
		s.warn("auth user delete failed", "user", username, "err", err)
		return err
	}
	if s.log != nil {
		s.log.Info("auth user deleted", "user", username)
	}
	return nil
}

func (s *Store) update(username, msg string, apply func(user *User)) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	username, err := validateUsername(username)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return ErrUserNotFound
	}
	apply(&user)
	s.users[username] = user
	if err := s.saveLocked(); err != nil {
		s.warn(msg+" failed", "user", username, "err", err)
		return err
	}
	if s.log != nil {
		s.log.Info(msg, "user", username)
	}
	return nil
}
