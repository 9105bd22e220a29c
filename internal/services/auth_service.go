package services

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/simulacroapp/simulacro/internal/models"
)

type AuthStore interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByNickname(ctx context.Context, nickname string) (*models.User, error)
	AddUser(ctx context.Context, u *models.User) error
}

type TokenSigner func(uid, nickname string, ttl time.Duration) (string, error)

type AuthService struct {
	store     AuthStore
	now       func() time.Time
	idGen     func() string
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token    string
	UserID   string
	Nickname string
}

func NewAuthService(store AuthStore, signer TokenSigner) *AuthService {
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func() string { return "u" + shortID(11) },
		signToken: signer,
		tokenTTL:  30 * 24 * time.Hour,
	}
}

func (s *AuthService) Register(ctx context.Context, nickname, email, password string) (*AuthResult, error) {
	nickname = strings.TrimSpace(nickname)
	email = strings.ToLower(strings.TrimSpace(email))
	if nickname == "" || email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("apodo, correo y contraseña son obligatorios")
	}
	if len(password) < 8 {
		return nil, NewInvalidError("la contraseña debe tener al menos 8 caracteres")
	}
	if existing, err := s.store.FindUserByEmail(ctx, email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, NewConflictError("el correo ya está registrado")
	}
	if existing, err := s.store.FindUserByNickname(ctx, nickname); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, NewConflictError("el apodo ya está en uso")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:        s.idGen(),
		Nickname:  nickname,
		Email:     email,
		PassHash:  hash,
		CreatedAt: s.now(),
	}
	if err := s.store.AddUser(ctx, u); err != nil {
		return nil, err
	}
	if s.signToken == nil {
		return nil, NewInternalError("token signer not configured")
	}
	token, err := s.signToken(u.ID, u.Nickname, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: u.ID, Nickname: u.Nickname}, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("correo y contraseña son obligatorios")
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, NewUnauthorizedError("credenciales inválidas")
	}
	if err := bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("credenciales inválidas")
	}
	if s.signToken == nil {
		return nil, NewInternalError("token signer not configured")
	}
	token, err := s.signToken(u.ID, u.Nickname, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: u.ID, Nickname: u.Nickname}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
