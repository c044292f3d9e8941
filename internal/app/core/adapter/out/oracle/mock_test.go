package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
)

func TestMockAggregator(t *testing.T) {
	mock := NewDefaultMockAggregator()
	ctx := context.Background()

	reading, err := mock.CurrentRate(ctx)
	if err != nil {
		t.Fatalf("current rate: %v", err)
	}
	if reading.Decimals != MockDecimals || reading.Rate.Int64() != MockInitialAnswer {
		t.Fatalf("unexpected default reading %+v", reading)
	}

	mock.UpdateAnswer(big.NewInt(150))
	mock.SetDecimals(2)
	reading, err = mock.CurrentRate(ctx)
	if err != nil {
		t.Fatalf("current rate: %v", err)
	}
	if reading.Decimals != 2 || reading.Rate.Int64() != 150 {
		t.Fatalf("unexpected updated reading %+v", reading)
	}

	// 讀數是複本，改動不影響 mock
	reading.Rate.SetInt64(1)
	again, _ := mock.CurrentRate(ctx)
	if again.Rate.Int64() != 150 {
		t.Fatalf("reading should not alias mock state")
	}

	mock.Fail(errors.New("feed down"))
	if _, err := mock.CurrentRate(ctx); !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("expected ErrOracleUnavailable got %v", err)
	}
	mock.Fail(nil)
	if _, err := mock.CurrentRate(ctx); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if mock.Reads() != 5 {
		t.Fatalf("expected 5 reads got %d", mock.Reads())
	}
}
