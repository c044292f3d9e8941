package mysql

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-fund/pkg/mysql"
)

// sqlFundEvent 對應資料庫的 fund_events 表
type sqlFundEvent struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	RefID          []byte `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.Event.ID
	Sequence       uint64 `gorm:"index"`
	Type           uint8
	Account        string `gorm:"type:char(42);index"`
	Amount         string `gorm:"type:varchar(80)"` // wei，十進位字串
	ReferenceValue string `gorm:"type:varchar(80)"`
	TxHash         string `gorm:"type:char(66)"` // 鏈上出資交易，可為空
	Funders        int
	CreatedAt      int64 `gorm:"autoCreateTime:false"`
}

func (*sqlFundEvent) TableName() string {
	return "fund_events"
}

// Journal 以 MySQL 保存帳本事件 (稽核用)
type Journal struct {
	client *mysql.Client
}

// NewJournal 建立 Journal 並確保資料表存在
func NewJournal(client *mysql.Client) (*Journal, error) {
	if err := client.DB().AutoMigrate(&sqlFundEvent{}); err != nil {
		return nil, err
	}
	return &Journal{client: client}, nil
}

// Append 寫入事件，同一事件重送不會重複
func (j *Journal) Append(ctx context.Context, event *domain.Event) error {
	row := toSQLEvent(event)
	return j.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

// Event 以事件 ID 查詢
func (j *Journal) Event(ctx context.Context, id uuid.UUID) (*domain.Event, error) {
	var row sqlFundEvent
	err := j.client.DB().WithContext(ctx).Where("ref_id = ?", id[:]).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromSQLEvent(row)
}

func toSQLEvent(event *domain.Event) sqlFundEvent {
	row := sqlFundEvent{
		RefID:     event.ID[:],
		Sequence:  event.Sequence,
		Type:      uint8(event.Type),
		Account:   event.Account.Hex(),
		Amount:    event.Amount.String(),
		Funders:   event.Funders,
		CreatedAt: event.CreatedAt,
	}
	if event.ReferenceValue != nil {
		row.ReferenceValue = event.ReferenceValue.String()
	}
	if event.TxHash != nil {
		row.TxHash = event.TxHash.Hex()
	}
	return row
}

func fromSQLEvent(row sqlFundEvent) (*domain.Event, error) {
	id, err := uuid.FromBytes(row.RefID)
	if err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(row.Amount, 10)
	if !ok {
		return nil, errors.New("invalid amount column: " + row.Amount)
	}
	event := &domain.Event{
		ID:        id,
		Sequence:  row.Sequence,
		Type:      domain.EventType(row.Type),
		Account:   common.HexToAddress(row.Account),
		Amount:    amount,
		Funders:   row.Funders,
		CreatedAt: row.CreatedAt,
	}
	if row.ReferenceValue != "" {
		ref, ok := new(big.Int).SetString(row.ReferenceValue, 10)
		if !ok {
			return nil, errors.New("invalid reference_value column: " + row.ReferenceValue)
		}
		event.ReferenceValue = ref
	}
	if row.TxHash != "" {
		hash := common.HexToHash(row.TxHash)
		event.TxHash = &hash
	}
	return event, nil
}

var _ usecase.Journal = (*Journal)(nil)
