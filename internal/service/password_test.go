package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sumire/stressless/internal/domain"
)

type issuedCode struct {
	id        int64
	email     string
	role      domain.Role
	code      string
	expiresAt time.Time
	used      bool
}

type fakeResetStore struct {
	codes  []*issuedCode
	nextID int64
}

func (s *fakeResetStore) IssueCode(_ context.Context, email string, role domain.Role, code string, expiresAt time.Time) error {
	for _, c := range s.codes {
		if c.email == email && c.role == role {
			c.used = true
		}
	}
	s.nextID++
	s.codes = append(s.codes, &issuedCode{
		id: s.nextID, email: email, role: role, code: code, expiresAt: expiresAt,
	})
	return nil
}

func (s *fakeResetStore) FindValid(_ context.Context, email string, role domain.Role, code string, now time.Time) (*domain.PasswordReset, error) {
	for i := len(s.codes) - 1; i >= 0; i-- {
		c := s.codes[i]
		if c.email == email && c.role == role && c.code == code && !c.used && now.Before(c.expiresAt) {
			return &domain.PasswordReset{ID: c.id, Email: c.email, Role: c.role, Code: c.code, ExpiresAt: c.expiresAt}, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeResetStore) MarkUsed(_ context.Context, id int64) error {
	for _, c := range s.codes {
		if c.id == id {
			c.used = true
		}
	}
	return nil
}

type fakePasswordStore struct {
	users     map[string]*domain.User // key email
	newHashes map[int64]string
}

func (s *fakePasswordStore) FindByEmailAndRole(_ context.Context, email string, role domain.Role) (*domain.User, error) {
	user, ok := s.users[email]
	if !ok || user.Role != role {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *fakePasswordStore) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	if s.newHashes == nil {
		s.newHashes = make(map[int64]string)
	}
	s.newHashes[id] = passwordHash
	return nil
}

type recordingMailer struct {
	sent []string // "to|subject"
	body string
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to+"|"+subject)
	m.body = body
	return nil
}

func newPasswordHarness(now time.Time) (*PasswordService, *fakeResetStore, *fakePasswordStore, *recordingMailer) {
	resets := &fakeResetStore{}
	users := &fakePasswordStore{users: map[string]*domain.User{
		"rosa@example.com": {ID: 20, Name: "Rosa Quispe", Email: "rosa@example.com", Role: domain.RoleCollaborator, Active: true},
	}}
	mail := &recordingMailer{}
	svc := NewPasswordService(resets, users, mail, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return now }
	return svc, resets, users, mail
}

func TestForgotIssuesAndMailsCode(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	svc, resets, _, mail := newPasswordHarness(now)

	require.NoError(t, svc.Forgot(context.Background(), "rosa@example.com", domain.RoleCollaborator))

	require.Len(t, resets.codes, 1)
	code := resets.codes[0]
	assert.Len(t, code.code, 6)
	assert.Equal(t, now.Add(15*time.Minute), code.expiresAt)
	require.Len(t, mail.sent, 1)
	assert.Contains(t, mail.body, code.code)
}

func TestForgotUnknownEmailIsSilent(t *testing.T) {
	svc, resets, _, mail := newPasswordHarness(time.Now())

	require.NoError(t, svc.Forgot(context.Background(), "nobody@example.com", domain.RoleCollaborator))
	assert.Empty(t, resets.codes)
	assert.Empty(t, mail.sent)
}

func TestForgotInvalidatesPreviousCode(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	svc, resets, _, _ := newPasswordHarness(now)
	ctx := context.Background()

	require.NoError(t, svc.Forgot(ctx, "rosa@example.com", domain.RoleCollaborator))
	first := resets.codes[0].code
	require.NoError(t, svc.Forgot(ctx, "rosa@example.com", domain.RoleCollaborator))

	err := svc.Verify(ctx, "rosa@example.com", domain.RoleCollaborator, first)
	if first != resets.codes[1].code {
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	}
	require.NoError(t, svc.Verify(ctx, "rosa@example.com", domain.RoleCollaborator, resets.codes[1].code))
}

func TestVerifyExpiredCode(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	svc, _, _, _ := newPasswordHarness(now)
	ctx := context.Background()

	require.NoError(t, svc.Forgot(ctx, "rosa@example.com", domain.RoleCollaborator))
	svc.now = func() time.Time { return now.Add(16 * time.Minute) }

	err := svc.Verify(ctx, "rosa@example.com", domain.RoleCollaborator, "000000")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestResetReplacesPasswordAndBurnsCode(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	svc, resets, users, _ := newPasswordHarness(now)
	ctx := context.Background()

	require.NoError(t, svc.Forgot(ctx, "rosa@example.com", domain.RoleCollaborator))
	code := resets.codes[0].code

	require.NoError(t, svc.Reset(ctx, "rosa@example.com", domain.RoleCollaborator, code, "new-secret-99"))

	hash, ok := users.newHashes[20]
	require.True(t, ok)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("new-secret-99")))

	// Burned codes reject a second reset.
	err := svc.Reset(ctx, "rosa@example.com", domain.RoleCollaborator, code, "another-secret")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGenerateOTP(t *testing.T) {
	code, err := GenerateOTP(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9', "unexpected rune %q", r)
	}
}
