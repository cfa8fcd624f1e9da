package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"interior/internal/auth"
	"interior/internal/entity"
	"interior/internal/ledger"
	"interior/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthService 注册与登录。新用户的赠送积分通过账本入账。
type AuthService struct {
	repo        model.Repository
	ledger      *ledger.Ledger
	tokens      *auth.Manager
	signupBonus int64
}

func NewAuthService(repo model.Repository, l *ledger.Ledger, tokens *auth.Manager, signupBonus int64) *AuthService {
	return &AuthService{repo: repo, ledger: l, tokens: tokens, signupBonus: signupBonus}
}

func (s *AuthService) Register(ctx context.Context, req entity.AuthRegisterRequest) (*entity.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)
	if email == "" || password == "" {
		return nil, &ValidationError{Field: "email", Message: "email and password are required"}
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, &ValidationError{Field: "password", Message: err.Error()}
	}

	if existing, err := s.repo.GetUserByEmail(ctx, email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &entity.DbUser{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Role:         entity.UserRoleUser,
		IsActive:     true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.signupBonus > 0 {
		balance, err := s.ledger.Credit(ctx, user.ID, s.signupBonus, entity.CreditTypeBonus, fmt.Sprintf("signup-%d", user.ID))
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"user_id":   user.ID,
				"reconcile": true,
			}).Error("failed to grant signup bonus")
		} else {
			user.Credits = balance
		}
	}

	logrus.WithField("user_id", user.ID).Info("user registered")
	return s.session(user)
}

func (s *AuthService) Login(ctx context.Context, req entity.AuthLoginRequest) (*entity.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := strings.TrimSpace(req.Password)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		logrus.WithField("user_id", user.ID).Warn("login attempt with wrong password")
		return nil, ErrInvalidCredentials
	}
	return s.session(user)
}

// CurrentUser 用于 /api/auth/me，余额以账本为准。
func (s *AuthService) CurrentUser(ctx context.Context, userID uint) (*entity.UserSummary, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, mapNotFound(err, ErrAccountNotFound)
	}
	summary := user.ToSummary()
	return &summary, nil
}

func (s *AuthService) session(user *entity.DbUser) (*entity.AuthResponse, error) {
	token, expiresAt, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &entity.AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user.ToSummary(),
	}, nil
}
