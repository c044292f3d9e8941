package grpc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName 服務完整名稱
const ServiceName = "fundledger.v1.FundLedgerService"

// FundLedgerServer 所有方法的請求與回應都是 google.protobuf.Struct
type FundLedgerServer interface {
	Fund(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Withdraw(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AmountFunded(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FunderAt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Owner(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PriceFeed(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PoolBalance(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// FullMethod 方法的完整名稱，也是簽章內容的一部分
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type handlerFunc func(FundLedgerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call handlerFunc) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FundLedgerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(FundLedgerServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc 手寫的服務描述，等同 protoc 產生的 _grpc.pb.go
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FundLedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fund", Handler: unaryHandler("Fund", FundLedgerServer.Fund)},
		{MethodName: "Withdraw", Handler: unaryHandler("Withdraw", FundLedgerServer.Withdraw)},
		{MethodName: "AmountFunded", Handler: unaryHandler("AmountFunded", FundLedgerServer.AmountFunded)},
		{MethodName: "FunderAt", Handler: unaryHandler("FunderAt", FundLedgerServer.FunderAt)},
		{MethodName: "Owner", Handler: unaryHandler("Owner", FundLedgerServer.Owner)},
		{MethodName: "PriceFeed", Handler: unaryHandler("PriceFeed", FundLedgerServer.PriceFeed)},
		{MethodName: "PoolBalance", Handler: unaryHandler("PoolBalance", FundLedgerServer.PoolBalance)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fundledger/v1/fundledger.proto",
}

// RegisterFundLedgerServer 註冊服務
func RegisterFundLedgerServer(s grpc.ServiceRegistrar, srv FundLedgerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// FundReceipt 出資結果
type FundReceipt struct {
	EventID      string
	Sequence     uint64
	AmountFunded *big.Int
}

// WithdrawReceipt 提領結果
type WithdrawReceipt struct {
	EventID   string
	Sequence  uint64
	Withdrawn *big.Int
	Funders   int
}

// Client 型別化的 gRPC 客戶端
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// invoke signer 不為 nil 時簽署請求
func (c *Client) invoke(ctx context.Context, signer *Signer, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	if signer != nil {
		if ctx, err = signer.attach(ctx, FullMethod(method), req); err != nil {
			return nil, err
		}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Fund 以 signer 身分出資，txHash 為轉入託管的鏈上交易 (本地開發鏈留空)
func (c *Client) Fund(ctx context.Context, signer *Signer, amount *big.Int, txHash common.Hash) (*FundReceipt, error) {
	fields := map[string]any{"amount_wei": amount.String()}
	if txHash != (common.Hash{}) {
		fields["tx_hash"] = txHash.Hex()
	}
	out, err := c.invoke(ctx, signer, "Fund", fields)
	if err != nil {
		return nil, err
	}
	funded, err := weiField(out, "amount_funded_wei")
	if err != nil {
		return nil, err
	}
	return &FundReceipt{
		EventID:      stringField(out, "event_id"),
		Sequence:     uint64(numberField(out, "sequence")),
		AmountFunded: funded,
	}, nil
}

// Withdraw 以 signer 身分提領
func (c *Client) Withdraw(ctx context.Context, signer *Signer) (*WithdrawReceipt, error) {
	out, err := c.invoke(ctx, signer, "Withdraw", nil)
	if err != nil {
		return nil, err
	}
	withdrawn, err := weiField(out, "withdrawn_wei")
	if err != nil {
		return nil, err
	}
	return &WithdrawReceipt{
		EventID:   stringField(out, "event_id"),
		Sequence:  uint64(numberField(out, "sequence")),
		Withdrawn: withdrawn,
		Funders:   int(numberField(out, "funders")),
	}, nil
}

func (c *Client) AmountFunded(ctx context.Context, funder common.Address) (*big.Int, error) {
	out, err := c.invoke(ctx, nil, "AmountFunded", map[string]any{"funder": funder.Hex()})
	if err != nil {
		return nil, err
	}
	return weiField(out, "amount_wei")
}

func (c *Client) FunderAt(ctx context.Context, index int) (common.Address, error) {
	out, err := c.invoke(ctx, nil, "FunderAt", map[string]any{"index": index})
	if err != nil {
		return common.Address{}, err
	}
	return addressField(out, "funder")
}

func (c *Client) Owner(ctx context.Context) (common.Address, error) {
	out, err := c.invoke(ctx, nil, "Owner", nil)
	if err != nil {
		return common.Address{}, err
	}
	return addressField(out, "owner")
}

func (c *Client) PriceFeed(ctx context.Context) (common.Address, error) {
	out, err := c.invoke(ctx, nil, "PriceFeed", nil)
	if err != nil {
		return common.Address{}, err
	}
	return addressField(out, "address")
}

func (c *Client) PoolBalance(ctx context.Context) (*big.Int, error) {
	out, err := c.invoke(ctx, nil, "PoolBalance", nil)
	if err != nil {
		return nil, err
	}
	return weiField(out, "pool_wei")
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func numberField(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func weiField(s *structpb.Struct, key string) (*big.Int, error) {
	raw := stringField(s, key)
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("field %s: invalid wei amount %q", key, raw)
	}
	return v, nil
}

func addressField(s *structpb.Struct, key string) (common.Address, error) {
	raw := stringField(s, key)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("field %s: invalid address %q", key, raw)
	}
	return common.HexToAddress(raw), nil
}
