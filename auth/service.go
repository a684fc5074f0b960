package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals a wrong account name or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
)

// accountNameMaxLen bounds on-ledger account names, which are 1 to 12
// lowercase characters on the host ledger.
const accountNameMaxLen = 12

// Service handles authentication business logic.
type Service struct {
	repo      Repository
	jwtSecret []byte
}

// LoginResult bundles the token and account returned after a successful login.
type LoginResult struct {
	Token   string
	Account Account
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
	}
}

// Register creates a new account bound to an on-ledger name. Every account
// starts as a party; the admin role is granted out of band.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	name := strings.ToLower(strings.TrimSpace(req.Account))
	if name == "" || len(name) > accountNameMaxLen {
		return nil, fmt.Errorf("auth: account name must be 1 to %d characters", accountNameMaxLen)
	}
	if req.Email == "" {
		return nil, fmt.Errorf("auth: email is required")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	acc, err := s.repo.CreateAccount(ctx, CreateAccountParams{
		Account:      name,
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		Role:         RoleParty,
	})
	if err != nil {
		return nil, err
	}

	return &acc, nil
}

// Login authenticates an account and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	acc, err := s.repo.GetAccount(ctx, strings.ToLower(strings.TrimSpace(req.Account)))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(acc.Account, acc.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{
		Token:   token,
		Account: acc,
	}, nil
}

// GetAccount retrieves one account.
func (s *Service) GetAccount(ctx context.Context, account string) (*Account, error) {
	acc, err := s.repo.GetAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// VerifyToken validates a JWT token and returns the account name and role.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return "", "", fmt.Errorf("auth: parse token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		account, ok := claims["sub"].(string)
		if !ok {
			return "", "", fmt.Errorf("auth: invalid subject in token")
		}
		roleStr, ok := claims["role"].(string)
		if !ok {
			return "", "", fmt.Errorf("auth: invalid role in token")
		}
		role := Role(roleStr)
		if !isValidRole(role) {
			return "", "", fmt.Errorf("auth: invalid role %q in token", roleStr)
		}
		return account, role, nil
	}

	return "", "", fmt.Errorf("auth: invalid token")
}

// generateToken creates a JWT token for the account.
func (s *Service) generateToken(account string, role Role) (string, error) {
	claims := jwt.MapClaims{
		"sub":  account,
		"role": role,
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleParty, RoleAdmin:
		return true
	default:
		return false
	}
}
