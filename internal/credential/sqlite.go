package credential

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/scoutcard/internal/model"
)

// ErrWrongPassphrase is returned when the keyring was created with a
// different passphrase.
var ErrWrongPassphrase = errors.New("credential store: wrong passphrase")

var keyringCheck = []byte("scoutcard-keyring-v1")

// SQLiteStore persists credentials encrypted at rest. Each scope is one row.
type SQLiteStore struct {
	db     *sql.DB
	sealer *sealer
}

// NewSQLiteStore unlocks (or initializes) the keyring in db with passphrase.
// db must already be migrated; see database.Open.
func NewSQLiteStore(ctx context.Context, db *sql.DB, passphrase string) (*SQLiteStore, error) {
	if passphrase == "" {
		return nil, errors.New("credential store: empty passphrase")
	}

	var salt, check []byte
	err := db.QueryRowContext(ctx, `SELECT salt, check_blob FROM keyring WHERE id = 1`).Scan(&salt, &check)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return initKeyring(ctx, db, passphrase)
	case err != nil:
		return nil, fmt.Errorf("read keyring: %w", err)
	}

	s, err := newSealer(passphrase, salt)
	if err != nil {
		return nil, err
	}
	got, err := s.open(check, nil)
	if err != nil || !bytes.Equal(got, keyringCheck) {
		return nil, ErrWrongPassphrase
	}
	return &SQLiteStore{db: db, sealer: s}, nil
}

func initKeyring(ctx context.Context, db *sql.DB, passphrase string) (*SQLiteStore, error) {
	salt, err := generateSalt()
	if err != nil {
		return nil, err
	}
	s, err := newSealer(passphrase, salt)
	if err != nil {
		return nil, err
	}
	check, err := s.seal(keyringCheck, nil)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO keyring (id, salt, check_blob) VALUES (1, ?, ?)`, salt, check,
	); err != nil {
		return nil, fmt.Errorf("insert keyring: %w", err)
	}
	return &SQLiteStore{db: db, sealer: s}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, scope string) (model.Credentials, error) {
	var access, renewal []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT access_sealed, renewal_sealed FROM credentials WHERE scope = ?`, scope,
	).Scan(&access, &renewal)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credentials{}, nil
	}
	if err != nil {
		return model.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}

	var creds model.Credentials
	if creds.Access, err = s.openField(access, scope, "access"); err != nil {
		return model.Credentials{}, err
	}
	if creds.Renewal, err = s.openField(renewal, scope, "renewal"); err != nil {
		return model.Credentials{}, err
	}
	return creds, nil
}

func (s *SQLiteStore) Save(ctx context.Context, scope string, creds model.Credentials) error {
	access, err := s.sealField(creds.Access, scope, "access")
	if err != nil {
		return err
	}
	renewal, err := s.sealField(creds.Renewal, scope, "renewal")
	if err != nil {
		return err
	}

	var expiresAt sql.NullTime
	if exp, ok := AccessExpiry(creds.Access); ok {
		expiresAt = sql.NullTime{Time: exp.UTC(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO credentials (scope, access_sealed, renewal_sealed, access_expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(scope) DO UPDATE SET
		   access_sealed = excluded.access_sealed,
		   renewal_sealed = excluded.renewal_sealed,
		   access_expires_at = excluded.access_expires_at,
		   updated_at = excluded.updated_at`,
		scope, access, renewal, expiresAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, scope string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Scopes lists every scope with stored credentials and the access expiry,
// when the access credential carries one.
func (s *SQLiteStore) Scopes(ctx context.Context) (map[string]*time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT scope, access_expires_at FROM credentials ORDER BY scope`)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*time.Time)
	for rows.Next() {
		var scope string
		var exp sql.NullTime
		if err := rows.Scan(&scope, &exp); err != nil {
			return nil, fmt.Errorf("scan scope: %w", err)
		}
		if exp.Valid {
			t := exp.Time
			out[scope] = &t
		} else {
			out[scope] = nil
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) sealField(value, scope, field string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	sealed, err := s.sealer.seal([]byte(value), []byte(scope+"/"+field))
	if err != nil {
		return nil, fmt.Errorf("seal %s credential: %w", field, err)
	}
	return sealed, nil
}

func (s *SQLiteStore) openField(sealed []byte, scope, field string) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	plain, err := s.sealer.open(sealed, []byte(scope+"/"+field))
	if err != nil {
		return "", fmt.Errorf("open %s credential: %w", field, err)
	}
	return string(plain), nil
}
