package postgres

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS fund_events (
    id UUID PRIMARY KEY,
    sequence BIGINT NOT NULL,
    type SMALLINT NOT NULL,
    account TEXT NOT NULL,
    amount NUMERIC(78, 0) NOT NULL,
    reference_value NUMERIC(78, 0),
    funders INT NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL
);
ALTER TABLE fund_events ADD COLUMN IF NOT EXISTS tx_hash TEXT;
`

// Journal 以 PostgreSQL 保存帳本事件 (稽核用)
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal 依 DSN 連線並確保資料表存在
func NewJournal(ctx context.Context, dsn string) (*Journal, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}
	return &Journal{pool: pool}, nil
}

func (j *Journal) Close() {
	if j.pool != nil {
		j.pool.Close()
	}
}

// Ping 健康檢查
func (j *Journal) Ping(ctx context.Context) error {
	return j.pool.Ping(ctx)
}

func (j *Journal) Append(ctx context.Context, event *domain.Event) error {
	var reference *string
	if event.ReferenceValue != nil {
		v := event.ReferenceValue.String()
		reference = &v
	}
	var txHash *string
	if event.TxHash != nil {
		v := event.TxHash.Hex()
		txHash = &v
	}
	_, err := j.pool.Exec(ctx, `
INSERT INTO fund_events (id, sequence, type, account, amount, reference_value, funders, created_at, tx_hash)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9)
ON CONFLICT (id) DO NOTHING
`, event.ID.String(), int64(event.Sequence), int16(event.Type), event.Account.Hex(),
		event.Amount.String(), reference, event.Funders, event.CreatedAt, txHash)
	return err
}

// Event 以事件 ID 查詢，不存在回傳 nil
func (j *Journal) Event(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	row := j.pool.QueryRow(ctx, `
SELECT sequence, type, account, amount::text, reference_value::text, funders, created_at, tx_hash
FROM fund_events
WHERE id = $1
`, id.String())

	var (
		sequence  int64
		kind      int16
		account   string
		amount    string
		reference *string
		funders   int
		createdAt int64
		txHash    *string
	)
	if err := row.Scan(&sequence, &kind, &account, &amount, &reference, &funders, &createdAt, &txHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, errors.New("invalid amount: " + amount)
	}
	event := &domain.Event{
		ID:        id,
		Sequence:  uint64(sequence),
		Type:      domain.EventType(kind),
		Account:   common.HexToAddress(account),
		Amount:    value,
		Funders:   funders,
		CreatedAt: createdAt,
	}
	if reference != nil {
		ref, ok := new(big.Int).SetString(*reference, 10)
		if !ok {
			return nil, errors.New("invalid reference_value: " + *reference)
		}
		event.ReferenceValue = ref
	}
	if txHash != nil {
		hash := common.HexToHash(*txHash)
		event.TxHash = &hash
	}
	return event, nil
}

var _ usecase.Journal = (*Journal)(nil)
