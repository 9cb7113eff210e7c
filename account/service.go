package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("account: password must be at least 8 characters")
)

// Service handles authentication business logic. Tokens bind the caller to a
// settlement address, which is the principal for every engine operation.
type Service struct {
	repo      Repository
	jwtSecret []byte
}

// LoginResult bundles the token and account returned after a successful login.
type LoginResult struct {
	Token   string
	Account Account
}

func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
	}
}

// Register creates a new account with a freshly generated settlement address.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	if req.Email == "" || req.FullName == "" {
		return nil, fmt.Errorf("account: email and full_name are required")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("account: hash password: %w", err)
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = RoleTrader
	}
	if !isValidRole(role) {
		return nil, fmt.Errorf("account: invalid role %q", role)
	}

	address, err := newAddress()
	if err != nil {
		return nil, err
	}

	acct, err := s.repo.Create(ctx, CreateParams{
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: string(passwordHash),
		Address:      address,
		Role:         role,
	})
	if err != nil {
		return nil, err
	}

	return &acct, nil
}

// Login authenticates an account and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	acct, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(acct.Address, acct.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("account: generate token: %w", err)
	}

	return LoginResult{Token: token, Account: acct}, nil
}

// VerifyToken validates a JWT token and returns the caller address and role.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("account: parse token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		address, ok := claims["address"].(string)
		if !ok || address == "" {
			return "", "", fmt.Errorf("account: invalid address in token")
		}
		roleStr, ok := claims["role"].(string)
		if !ok {
			return "", "", fmt.Errorf("account: invalid role in token")
		}
		role := Role(roleStr)
		if !isValidRole(role) {
			return "", "", fmt.Errorf("account: invalid role %q in token", roleStr)
		}
		return address, role, nil
	}

	return "", "", fmt.Errorf("account: invalid token")
}

func (s *Service) generateToken(address string, role Role) (string, error) {
	claims := jwt.MapClaims{
		"address": address,
		"role":    role,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// newAddress generates a random 20-byte settlement address.
func newAddress() (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("account: generate address: %w", err)
	}
	return "0x" + hex.EncodeToString(raw), nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleTrader, RoleArbiter, RoleAdmin:
		return true
	default:
		return false
	}
}
