package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:    "alice@example.com",
		Password: "supersafe",
		FullName: "Alice Payer",
	}

	ctx := context.Background()
	acct, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}

	if acct.Email != req.Email {
		t.Fatalf("expected email %q got %q", req.Email, acct.Email)
	}
	if acct.Role != RoleTrader {
		t.Fatalf("register: expected default role %s got %s", RoleTrader, acct.Role)
	}
	if !strings.HasPrefix(acct.Address, "0x") || len(acct.Address) != 42 {
		t.Fatalf("register: unexpected settlement address %q", acct.Address)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.Account.Address != acct.Address {
		t.Fatalf("login: expected address %q got %q", acct.Address, resp.Account.Address)
	}

	tokenAddress, tokenRole, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if tokenAddress != acct.Address {
		t.Fatalf("verify token: expected %q got %q", acct.Address, tokenAddress)
	}
	if tokenRole != RoleTrader {
		t.Fatalf("verify token: expected role %s got %s", RoleTrader, tokenRole)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "alice@example.com",
		Password: "short",
		FullName: "Alice Payer",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "",
		Password: "strongpassword",
		FullName: "",
	}); err == nil {
		t.Fatal("expected validation error for missing fields")
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:    "alice@example.com",
		Password: "strongpassword",
		FullName: "Alice Payer",
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "unknown@example.com",
		Password: "irrelevant",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

type fakeRepository struct {
	byEmail   map[string]Account
	byAddress map[string]Account
	nextID    int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byEmail:   make(map[string]Account),
		byAddress: make(map[string]Account),
		nextID:    1,
	}
}

func (f *fakeRepository) Create(ctx context.Context, params CreateParams) (Account, error) {
	if _, exists := f.byEmail[strings.ToLower(params.Email)]; exists {
		return Account{}, ErrDuplicateEmail
	}

	id := fmt.Sprintf("acct-%d", f.nextID)
	f.nextID++
	role := params.Role
	if role == "" {
		role = RoleTrader
	}

	acct := Account{
		ID:           id,
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Address:      params.Address,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	f.byEmail[strings.ToLower(acct.Email)] = acct
	f.byAddress[acct.Address] = acct

	return acct, nil
}

func (f *fakeRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	acct, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (f *fakeRepository) GetByAddress(ctx context.Context, address string) (Account, error) {
	acct, ok := f.byAddress[address]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}
