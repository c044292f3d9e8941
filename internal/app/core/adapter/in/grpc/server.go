package grpc

import (
	"context"
	"errors"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/usecase"
)

// GrpcServer 寫入方法 (Fund / Withdraw) 必須帶簽章，查詢不需要
type GrpcServer struct {
	core   *usecase.CoreUseCase
	auth   *Authenticator
	logger *zap.Logger
}

var _ FundLedgerServer = (*GrpcServer)(nil)

// NewGrpcServer auth 為 nil 時使用 DefaultMaxSkew 的 Authenticator
func NewGrpcServer(core *usecase.CoreUseCase, auth *Authenticator, logger *zap.Logger) *GrpcServer {
	if auth == nil {
		auth = NewAuthenticator(DefaultMaxSkew)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrpcServer{
		core:   core,
		auth:   auth,
		logger: logger,
	}
}

func (s *GrpcServer) Fund(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	// 1. 呼叫者身分 (簽章還原)
	caller, err := s.auth.Authenticate(ctx, FullMethod("Fund"), req)
	if err != nil {
		return nil, err
	}

	// 2. 金額解析 (十進位 wei 字串)
	raw := req.GetFields()["amount_wei"].GetStringValue()
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, status.Errorf(codes.InvalidArgument, "invalid amount_wei %q", raw)
	}
	deposit := domain.NewDeposit(caller, amount)

	// 3. 鏈上轉帳 (選填)
	if v, ok := req.GetFields()["tx_hash"]; ok {
		hash, err := hexutil.Decode(v.GetStringValue())
		if err != nil || len(hash) != common.HashLength {
			return nil, status.Errorf(codes.InvalidArgument, "invalid tx_hash %q", v.GetStringValue())
		}
		deposit.TxHash = common.BytesToHash(hash)
	}

	// 4. 出資，回應的累計金額與入帳在同一個臨界區內計算
	event, err := s.core.Fund(ctx, deposit)
	if err != nil {
		return nil, toStatus(err)
	}

	return newStruct(map[string]any{
		"event_id":          event.ID.String(),
		"sequence":          event.Sequence,
		"amount_funded_wei": event.TotalFunded.String(),
	})
}

func (s *GrpcServer) Withdraw(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	caller, err := s.auth.Authenticate(ctx, FullMethod("Withdraw"), req)
	if err != nil {
		return nil, err
	}
	event, err := s.core.Withdraw(ctx, caller)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{
		"event_id":      event.ID.String(),
		"sequence":      event.Sequence,
		"withdrawn_wei": event.Amount.String(),
		"funders":       event.Funders,
	})
}

func (s *GrpcServer) AmountFunded(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	raw := req.GetFields()["funder"].GetStringValue()
	if !common.IsHexAddress(raw) {
		return nil, status.Errorf(codes.InvalidArgument, "invalid funder %q", raw)
	}
	amount, err := s.core.AmountFunded(ctx, common.HexToAddress(raw))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"amount_wei": amount.String()})
}

func (s *GrpcServer) FunderAt(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	v, ok := req.GetFields()["index"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "index is required")
	}
	if _, ok := v.GetKind().(*structpb.Value_NumberValue); !ok {
		return nil, status.Error(codes.InvalidArgument, "index must be a number")
	}
	n := v.GetNumberValue()
	if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
		return nil, status.Errorf(codes.InvalidArgument, "invalid index %v", n)
	}
	// 超出 int 範圍的索引必定不存在
	if n < 0 || n > math.MaxInt32 {
		return nil, toStatus(domain.ErrIndexOutOfRange)
	}
	funder, err := s.core.FunderAt(ctx, int(n))
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"funder": funder.Hex()})
}

func (s *GrpcServer) Owner(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return newStruct(map[string]any{"owner": s.core.Owner().Hex()})
}

func (s *GrpcServer) PriceFeed(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return newStruct(map[string]any{"address": s.core.PriceFeedAddress().Hex()})
}

func (s *GrpcServer) PoolBalance(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	pool, err := s.core.PoolBalance(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{"pool_wei": pool.String()})
}

var errorCodes = []struct {
	err  error
	code codes.Code
}{
	{domain.ErrInsufficientContribution, codes.FailedPrecondition},
	{domain.ErrNotOwner, codes.PermissionDenied},
	{domain.ErrOracleUnavailable, codes.Unavailable},
	{domain.ErrIndexOutOfRange, codes.OutOfRange},
	{domain.ErrInvalidAmount, codes.InvalidArgument},
	{domain.ErrInvalidCaller, codes.InvalidArgument},
	{domain.ErrDepositNotReceived, codes.FailedPrecondition},
	{domain.ErrWithdrawalPending, codes.Unavailable},
	// ErrTransferPending 也包裝 ErrTransferFailed，必須先比對
	{domain.ErrTransferPending, codes.Unavailable},
	{domain.ErrTransferFailed, codes.Aborted},
	{domain.ErrLedgerStopped, codes.Unavailable},
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

// toStatus 將 domain 錯誤轉為 gRPC status，訊息為 sentinel 原文
func toStatus(err error) error {
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return status.Error(m.code, m.err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
