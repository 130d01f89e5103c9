package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
)

// ErrAccountNotFound is returned when no account exists at an address.
var ErrAccountNotFound = errors.New("account not found")

// Account is one ledger account.
type Account struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// GetAccount reads an account outside of any unit of work.
func (s *Store) GetAccount(ctx context.Context, addr solana.PublicKey) (Account, error) {
	return getAccount(ctx, s.db, addr)
}

// ListAccounts returns all accounts ordered by address.
func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, owner, lamports, data
		FROM accounts
		ORDER BY address COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		var address, owner string
		var lamports int64
		var data []byte
		if err := rows.Scan(&address, &owner, &lamports, &data); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		acc, err := decodeAccountRow(address, owner, lamports, data)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// GetAccount reads an account inside the unit of work.
func (t *Tx) GetAccount(ctx context.Context, addr solana.PublicKey) (Account, error) {
	return getAccount(ctx, t.tx, addr)
}

// PutAccount inserts or replaces an account inside the unit of work.
func (t *Tx) PutAccount(ctx context.Context, acc Account) error {
	return putAccount(ctx, t.tx, acc)
}

func getAccount(ctx context.Context, q querier, addr solana.PublicKey) (Account, error) {
	var owner string
	var lamports int64
	var data []byte
	err := q.QueryRowContext(ctx, `
		SELECT owner, lamports, data FROM accounts WHERE address = ?
	`, addr.String()).Scan(&owner, &lamports, &data)
	if isNoRows(err) {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account %s: %w", addr, err)
	}
	return decodeAccountRow(addr.String(), owner, lamports, data)
}

func putAccount(ctx context.Context, q querier, acc Account) error {
	if acc.Lamports > math.MaxInt64 {
		return fmt.Errorf("put account %s: lamports %d exceed storage range", acc.Address, acc.Lamports)
	}
	data := acc.Data
	if data == nil {
		data = []byte{}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts (address, owner, lamports, data)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			owner = excluded.owner,
			lamports = excluded.lamports,
			data = excluded.data
	`, acc.Address.String(), acc.Owner.String(), int64(acc.Lamports), data)
	if err != nil {
		return fmt.Errorf("put account %s: %w", acc.Address, err)
	}
	return nil
}

func decodeAccountRow(address, owner string, lamports int64, data []byte) (Account, error) {
	addr, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return Account{}, fmt.Errorf("decode account address %q: %w", address, err)
	}
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return Account{}, fmt.Errorf("decode owner of %s: %w", address, err)
	}
	if lamports < 0 {
		return Account{}, fmt.Errorf("account %s has negative lamports %d", address, lamports)
	}
	if data == nil {
		data = []byte{}
	}
	return Account{
		Address:  addr,
		Owner:    ownerKey,
		Lamports: uint64(lamports),
		Data:     data,
	}, nil
}
