package filejournal

import (
	"context"
	"encoding/json"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
	"github.com/JoeShih716/go-mem-fund/pkg/wal"
)

// Journal 把帳本事件寫進 WAL 檔案 (稽核用，不做重放)
type Journal struct {
	wal *wal.WAL
}

func NewJournal(w *wal.WAL) *Journal {
	return &Journal{wal: w}
}

func (j *Journal) Append(ctx context.Context, event *domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.wal.Write(event)
}

// Events 依寫入順序讀出所有事件
func (j *Journal) Events() ([]domain.Event, error) {
	events := make([]domain.Event, 0)
	err := j.wal.ReadAll(func(jsonRaw []byte) error {
		var event domain.Event
		if err := json.Unmarshal(jsonRaw, &event); err != nil {
			return err
		}
		events = append(events, event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

var _ usecase.Journal = (*Journal)(nil)
