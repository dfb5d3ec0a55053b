package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
)

// ─── ClientRepository ───

type clientRepo struct{ s *Store }

func (r *clientRepo) Get(ctx context.Context, clientID string) (*types.Client, error) {
	const query = `
		SELECT id, name, realm, secret_digest, secret_salt, confidential, grant_types,
		       redirect_uris, allow_plain_pkce, active, organization_id, last_used_at, created_at
		FROM oauth_client WHERE id = $1 AND realm = $2
	`
	var (
		c      types.Client
		realm  string
		grants []string
	)
	err := r.s.pool.QueryRow(ctx, query, clientID, string(r.s.realm)).Scan(
		&c.ID, &c.Name, &realm, &c.SecretDigest, &c.SecretSalt, &c.Confidential, &grants,
		&c.RedirectURIs, &c.AllowPlainPKCE, &c.Active, &c.OrganizationID, &c.LastUsedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	c.Realm = types.Realm(realm)
	for _, g := range grants {
		c.GrantTypes = append(c.GrantTypes, types.GrantType(g))
	}
	return &c, nil
}

func (r *clientRepo) Save(ctx context.Context, c *types.Client) error {
	if c == nil || c.ID == "" {
		return repository.ErrInvalidInput
	}
	if c.Realm == "" {
		c.Realm = r.s.realm
	}
	if c.Realm != r.s.realm {
		return fmt.Errorf("%w: client %s belongs to realm %s", repository.ErrConflict, c.ID, c.Realm)
	}
	grants := make([]string, 0, len(c.GrantTypes))
	for _, g := range c.GrantTypes {
		grants = append(grants, string(g))
	}
	redirects := c.RedirectURIs
	if redirects == nil {
		redirects = []string{}
	}

	// El WHERE del upsert impide mover un client a otro realm.
	const query = `
		INSERT INTO oauth_client (id, realm, name, secret_digest, secret_salt, confidential, grant_types,
		                          redirect_uris, allow_plain_pkce, active, organization_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = $3, secret_digest = $4, secret_salt = $5, confidential = $6, grant_types = $7,
			redirect_uris = $8, allow_plain_pkce = $9, active = $10, organization_id = $11
		WHERE oauth_client.realm = EXCLUDED.realm
	`
	tag, err := r.s.pool.Exec(ctx, query,
		c.ID, string(c.Realm), c.Name, c.SecretDigest, c.SecretSalt, c.Confidential, grants,
		redirects, c.AllowPlainPKCE, c.Active, c.OrganizationID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: realm is immutable", repository.ErrConflict)
	}
	return nil
}

func (r *clientRepo) MarkUsed(ctx context.Context, clientID string, at time.Time) error {
	const query = `UPDATE oauth_client SET last_used_at = $3 WHERE id = $1 AND realm = $2`
	tag, err := r.s.pool.Exec(ctx, query, clientID, string(r.s.realm), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ─── UserRepository ───

type userRepo struct{ s *Store }

const userColumns = `id, realm, username, password_hash, enabled, created_at`

func (r *userRepo) scan(ctx context.Context, where string, arg string) (*types.User, error) {
	query := `SELECT ` + userColumns + ` FROM oauth_user WHERE realm = $1 AND ` + where + ` = $2`
	var (
		u     types.User
		realm string
	)
	err := r.s.pool.QueryRow(ctx, query, string(r.s.realm), arg).Scan(
		&u.ID, &realm, &u.Username, &u.PasswordHash, &u.Enabled, &u.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	u.Realm = types.Realm(realm)
	return &u, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*types.User, error) {
	return r.scan(ctx, "username", username)
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*types.User, error) {
	return r.scan(ctx, "id", id)
}

func (r *userRepo) Save(ctx context.Context, u *types.User) error {
	if u == nil || u.ID == "" || u.Username == "" {
		return repository.ErrInvalidInput
	}
	if u.Realm == "" {
		u.Realm = r.s.realm
	}
	if u.Realm != r.s.realm {
		return repository.ErrConflict
	}
	const query = `
		INSERT INTO oauth_user (realm, id, username, password_hash, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (realm, id) DO UPDATE SET username = $3, password_hash = $4, enabled = $5
	`
	_, err := r.s.pool.Exec(ctx, query, string(u.Realm), u.ID, u.Username, u.PasswordHash, u.Enabled)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: username taken", repository.ErrConflict)
	}
	return err
}

// ─── AccessTokenRepository ───

type accessRepo struct{ s *Store }

func (r *accessRepo) Persist(ctx context.Context, t *types.AccessToken) error {
	const query = `
		INSERT INTO oauth_access_token (realm, id, client_id, principal_kind, principal_id, scopes, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, NOW()))
	`
	_, err := r.s.pool.Exec(ctx, query,
		string(r.s.realm), t.ID, t.ClientID, t.Principal.Kind().String(), t.Principal.ID(),
		nonNil(t.Scopes), t.ExpiresAt, t.Revoked, nullTime(t.CreatedAt),
	)
	if isUniqueViolation(err) {
		return repository.ErrIdentifierCollision
	}
	return err
}

func (r *accessRepo) Get(ctx context.Context, id string) (*types.AccessToken, error) {
	const query = `
		SELECT id, client_id, principal_kind, principal_id, scopes, expires_at, revoked, created_at
		FROM oauth_access_token WHERE realm = $1 AND id = $2
	`
	var (
		t         types.AccessToken
		kind, pid string
	)
	err := r.s.pool.QueryRow(ctx, query, string(r.s.realm), id).Scan(
		&t.ID, &t.ClientID, &kind, &pid, &t.Scopes, &t.ExpiresAt, &t.Revoked, &t.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	ref, err := types.ParsePrincipal(kind, pid)
	if err != nil {
		return nil, fmt.Errorf("pg: access token %s: %w", id, err)
	}
	t.Principal = ref
	return &t, nil
}

func (r *accessRepo) Revoke(ctx context.Context, id string) (bool, error) {
	return r.s.revoke(ctx, "oauth_access_token", id)
}

func (r *accessRepo) IsRevoked(ctx context.Context, id string) (bool, error) {
	return r.s.isRevoked(ctx, "oauth_access_token", id)
}

// ─── RefreshTokenRepository ───

type refreshRepo struct{ s *Store }

func (r *refreshRepo) Persist(ctx context.Context, t *types.RefreshToken) error {
	const query = `
		INSERT INTO oauth_refresh_token (realm, id, access_token_id, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))
	`
	_, err := r.s.pool.Exec(ctx, query,
		string(r.s.realm), t.ID, t.AccessTokenID, t.ExpiresAt, t.Revoked, nullTime(t.CreatedAt),
	)
	if isUniqueViolation(err) {
		return repository.ErrIdentifierCollision
	}
	return err
}

func (r *refreshRepo) Get(ctx context.Context, id string) (*types.RefreshToken, error) {
	const query = `
		SELECT id, access_token_id, expires_at, revoked, created_at
		FROM oauth_refresh_token WHERE realm = $1 AND id = $2
	`
	var t types.RefreshToken
	err := r.s.pool.QueryRow(ctx, query, string(r.s.realm), id).Scan(
		&t.ID, &t.AccessTokenID, &t.ExpiresAt, &t.Revoked, &t.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *refreshRepo) Revoke(ctx context.Context, id string) (bool, error) {
	return r.s.revoke(ctx, "oauth_refresh_token", id)
}

func (r *refreshRepo) IsRevoked(ctx context.Context, id string) (bool, error) {
	return r.s.isRevoked(ctx, "oauth_refresh_token", id)
}

// ─── AuthCodeRepository ───

type codeRepo struct{ s *Store }

func (r *codeRepo) Persist(ctx context.Context, c *types.AuthCode) error {
	const query = `
		INSERT INTO oauth_auth_code (realm, id, client_id, principal_kind, principal_id, scopes,
		                             redirect_uri, code_challenge, code_challenge_method, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.s.pool.Exec(ctx, query,
		string(r.s.realm), c.ID, c.ClientID, c.Principal.Kind().String(), c.Principal.ID(), nonNil(c.Scopes),
		c.RedirectURI, c.CodeChallenge, c.CodeChallengeMethod, c.ExpiresAt, c.Revoked,
	)
	if isUniqueViolation(err) {
		return repository.ErrIdentifierCollision
	}
	return err
}

func (r *codeRepo) Get(ctx context.Context, id string) (*types.AuthCode, error) {
	const query = `
		SELECT id, client_id, principal_kind, principal_id, scopes, redirect_uri,
		       code_challenge, code_challenge_method, expires_at, revoked
		FROM oauth_auth_code WHERE realm = $1 AND id = $2
	`
	var (
		c         types.AuthCode
		kind, pid string
	)
	err := r.s.pool.QueryRow(ctx, query, string(r.s.realm), id).Scan(
		&c.ID, &c.ClientID, &kind, &pid, &c.Scopes, &c.RedirectURI,
		&c.CodeChallenge, &c.CodeChallengeMethod, &c.ExpiresAt, &c.Revoked,
	)
	if err != nil {
		return nil, notFound(err)
	}
	ref, err := types.ParsePrincipal(kind, pid)
	if err != nil {
		return nil, fmt.Errorf("pg: auth code %s: %w", id, err)
	}
	c.Principal = ref
	return &c, nil
}

func (r *codeRepo) Revoke(ctx context.Context, id string) (bool, error) {
	return r.s.revoke(ctx, "oauth_auth_code", id)
}

func (r *codeRepo) IsRevoked(ctx context.Context, id string) (bool, error) {
	return r.s.isRevoked(ctx, "oauth_auth_code", id)
}

// ─── ScopeRepository ───

type scopeRepo struct{ s *Store }

func (r *scopeRepo) Get(ctx context.Context, id string) (types.Scope, error) {
	const query = `SELECT id FROM oauth_scope WHERE realm = $1 AND id = $2`
	var sc string
	if err := r.s.pool.QueryRow(ctx, query, string(r.s.realm), id).Scan(&sc); err != nil {
		return "", notFound(err)
	}
	return types.Scope(sc), nil
}

// ─── helpers compartidos ───

// revoke hace compare-and-set: sólo la transición false→true afecta una fila.
func (s *Store) revoke(ctx context.Context, table, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+table+` SET revoked = TRUE WHERE realm = $1 AND id = $2 AND revoked = FALSE`,
		string(s.realm), id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) isRevoked(ctx context.Context, table, id string) (bool, error) {
	var revoked bool
	err := s.pool.QueryRow(ctx,
		`SELECT revoked FROM `+table+` WHERE realm = $1 AND id = $2`,
		string(s.realm), id).Scan(&revoked)
	if err != nil {
		if repository.IsNotFound(notFound(err)) {
			return true, nil
		}
		return false, err
	}
	return revoked, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
