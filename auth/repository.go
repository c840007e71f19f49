package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"disputeflow/principal"
)

var (
	// ErrCredentialNotFound signals that the principal has no credential.
	ErrCredentialNotFound = errors.New("auth: credential not found")
	// ErrDuplicatePrincipal signals that the principal is already registered.
	ErrDuplicatePrincipal = errors.New("auth: principal already registered")
)

// Repository handles credential storage.
type Repository interface {
	CreateCredential(ctx context.Context, p principal.Principal, secretHash string) (Credential, error)
	GetCredential(ctx context.Context, p principal.Principal) (Credential, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed credential repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateCredential inserts a new credential.
func (r *PGRepository) CreateCredential(ctx context.Context, p principal.Principal, secretHash string) (Credential, error) {
	const insertSQL = `
		INSERT INTO principal_credentials (principal, secret_hash)
		VALUES ($1, $2)
		RETURNING principal, secret_hash, created_at
	`

	cred, err := scanCredential(r.pool.QueryRow(ctx, insertSQL, p.String(), secretHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Credential{}, ErrDuplicatePrincipal
		}
		return Credential{}, fmt.Errorf("auth: create credential: %w", err)
	}
	return cred, nil
}

// GetCredential retrieves the credential of p.
func (r *PGRepository) GetCredential(ctx context.Context, p principal.Principal) (Credential, error) {
	const selectSQL = `
		SELECT principal, secret_hash, created_at
		FROM principal_credentials
		WHERE principal = $1
	`

	cred, err := scanCredential(r.pool.QueryRow(ctx, selectSQL, p.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credential{}, ErrCredentialNotFound
		}
		return Credential{}, fmt.Errorf("auth: get credential: %w", err)
	}
	return cred, nil
}

func scanCredential(row pgx.Row) (Credential, error) {
	var (
		cred Credential
		p    string
	)
	if err := row.Scan(&p, &cred.SecretHash, &cred.CreatedAt); err != nil {
		return Credential{}, err
	}
	cred.Principal = principal.Principal(p)
	return cred, nil
}

// MemoryRepository keeps credentials in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	creds map[principal.Principal]Credential
}

// NewMemoryRepository returns an empty in-process credential store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{creds: make(map[principal.Principal]Credential)}
}

func (m *MemoryRepository) CreateCredential(ctx context.Context, p principal.Principal, secretHash string) (Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.creds[p]; exists {
		return Credential{}, ErrDuplicatePrincipal
	}
	cred := Credential{Principal: p, SecretHash: secretHash, CreatedAt: time.Now().UTC()}
	m.creds[p] = cred
	return cred, nil
}

func (m *MemoryRepository) GetCredential(ctx context.Context, p principal.Principal) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cred, ok := m.creds[p]
	if !ok {
		return Credential{}, ErrCredentialNotFound
	}
	return cred, nil
}
