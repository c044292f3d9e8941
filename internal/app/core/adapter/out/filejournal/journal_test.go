package filejournal

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/pkg/wal"
)

func TestJournalRoundTripsEvents(t *testing.T) {
	w, err := wal.NewWAL(filepath.Join(t.TempDir(), "fund.wal"))
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}
	defer w.Close()
	j := NewJournal(w)

	funder := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	owner := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	oneEther, _ := domain.ParseEther("1")

	fund := domain.NewFundEvent(1, domain.NewDeposit(funder, oneEther), big.NewInt(2000), oneEther)
	withdraw := domain.NewWithdrawEvent(2, owner, oneEther, 1)
	for _, e := range []*domain.Event{fund, withdraw} {
		if err := j.Append(context.Background(), e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	events, err := j.Events()
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events got %d", len(events))
	}
	if events[0].ID != fund.ID || events[0].Account != funder || events[0].Amount.Cmp(oneEther) != 0 {
		t.Fatalf("unexpected fund event %+v", events[0])
	}
	if events[1].Type != domain.EventTypeWithdraw || events[1].Funders != 1 || events[1].ReferenceValue != nil {
		t.Fatalf("unexpected withdraw event %+v", events[1])
	}
}
