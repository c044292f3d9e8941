package grpc

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// 呼叫者簽章放在這些 metadata key
const (
	// CallerMetadataKey 宣稱的呼叫者地址 (hex)
	CallerMetadataKey = "x-caller-address"
	// TimestampMetadataKey 簽署時間 (Unix 毫秒)
	TimestampMetadataKey = "x-caller-timestamp"
	// NonceMetadataKey 每次請求不同的隨機值
	NonceMetadataKey = "x-caller-nonce"
	// SignatureMetadataKey 65 bytes secp256k1 簽章 (hex)
	SignatureMetadataKey = "x-caller-signature"
)

// DefaultMaxSkew 簽署時間與伺服器時間允許的差距
const DefaultMaxSkew = 5 * time.Minute

// signingDigest 簽署內容綁定方法、呼叫者、時間、nonce 與請求本體
//
// 以 EIP-191 personal_sign 格式雜湊，外部錢包可以直接簽署同一段文字
func signingDigest(fullMethod string, caller common.Address, timestamp int64, nonce string, req proto.Message) ([]byte, error) {
	body, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	text := fmt.Sprintf("fundledger:%s:%s:%d:%s:%s",
		fullMethod, caller.Hex(), timestamp, nonce, crypto.Keccak256Hash(body).Hex())
	return accounts.TextHash([]byte(text)), nil
}

// Signer 以私鑰簽署每一次寫入請求
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	now     func() time.Time
}

func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		now:     time.Now,
	}
}

// Address 簽署者地址
func (s *Signer) Address() common.Address {
	return s.address
}

// attach 簽署請求並把簽章放進 outgoing metadata
func (s *Signer) attach(ctx context.Context, fullMethod string, req proto.Message) (context.Context, error) {
	timestamp := s.now().UnixMilli()
	nonce := uuid.NewString()
	digest, err := signingDigest(fullMethod, s.address, timestamp, nonce, req)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("sign request: %w", err)
	}
	return metadata.AppendToOutgoingContext(ctx,
		CallerMetadataKey, s.address.Hex(),
		TimestampMetadataKey, strconv.FormatInt(timestamp, 10),
		NonceMetadataKey, nonce,
		SignatureMetadataKey, hexutil.Encode(sig),
	), nil
}

// Authenticator 驗證請求簽章，還原出的地址才是呼叫者身分
//
// 結構:
//
//	maxSkew: 簽署時間允許的誤差，超過即拒絕
//	nonces: 已使用的 (呼叫者, nonce)，超過 maxSkew 的紀錄會被清除
type Authenticator struct {
	maxSkew time.Duration
	now     func() time.Time

	mu     sync.Mutex
	nonces map[string]time.Time
}

type AuthOption func(*Authenticator)

// WithClock 替換時間來源
func WithClock(now func() time.Time) AuthOption {
	return func(a *Authenticator) {
		a.now = now
	}
}

// NewAuthenticator maxSkew <= 0 時使用 DefaultMaxSkew
func NewAuthenticator(maxSkew time.Duration, opts ...AuthOption) *Authenticator {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	a := &Authenticator{
		maxSkew: maxSkew,
		now:     time.Now,
		nonces:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate 驗證 metadata 中的簽章
//
// 參數:
//
//	ctx: 帶 incoming metadata 的上下文
//	fullMethod: 完整方法名稱，例如 /fundledger.v1.FundLedgerService/Withdraw
//	req: 已解碼的請求
//
// 回傳:
//
//	common.Address: 簽章還原出的呼叫者
//	error: codes.Unauthenticated
func (a *Authenticator) Authenticate(ctx context.Context, fullMethod string, req proto.Message) (common.Address, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return common.Address{}, status.Error(codes.Unauthenticated, "missing caller metadata")
	}
	claimed, err := singleValue(md, CallerMetadataKey)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(claimed) {
		return common.Address{}, status.Errorf(codes.Unauthenticated, "invalid %s %q", CallerMetadataKey, claimed)
	}
	caller := common.HexToAddress(claimed)

	rawTimestamp, err := singleValue(md, TimestampMetadataKey)
	if err != nil {
		return common.Address{}, err
	}
	timestamp, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return common.Address{}, status.Errorf(codes.Unauthenticated, "invalid %s %q", TimestampMetadataKey, rawTimestamp)
	}
	signedAt := time.UnixMilli(timestamp)
	now := a.now()
	if skew := now.Sub(signedAt).Abs(); skew > a.maxSkew {
		return common.Address{}, status.Errorf(codes.Unauthenticated, "signature timestamp off by %s", skew.Truncate(time.Second))
	}

	nonce, err := singleValue(md, NonceMetadataKey)
	if err != nil {
		return common.Address{}, err
	}
	rawSig, err := singleValue(md, SignatureMetadataKey)
	if err != nil {
		return common.Address{}, err
	}
	sig, err := hexutil.Decode(rawSig)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, status.Errorf(codes.Unauthenticated, "invalid %s", SignatureMetadataKey)
	}

	digest, err := signingDigest(fullMethod, caller, timestamp, nonce, req)
	if err != nil {
		return common.Address{}, status.Error(codes.Internal, err.Error())
	}
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}, status.Error(codes.Unauthenticated, "signature does not recover")
	}
	if crypto.PubkeyToAddress(*pub) != caller {
		return common.Address{}, status.Error(codes.Unauthenticated, "signature does not match caller")
	}

	if !a.useNonce(caller, nonce, signedAt, now) {
		return common.Address{}, status.Error(codes.Unauthenticated, "nonce already used")
	}
	return caller, nil
}

// useNonce 記錄 nonce，已使用過回傳 false
func (a *Authenticator) useNonce(caller common.Address, nonce string, signedAt, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := now.Add(-a.maxSkew)
	for key, at := range a.nonces {
		if at.Before(cutoff) {
			delete(a.nonces, key)
		}
	}

	key := caller.Hex() + ":" + nonce
	if _, seen := a.nonces[key]; seen {
		return false
	}
	a.nonces[key] = signedAt
	return true
}

func singleValue(md metadata.MD, key string) (string, error) {
	values := md.Get(key)
	if len(values) != 1 || values[0] == "" {
		return "", status.Error(codes.Unauthenticated, "missing "+key)
	}
	return values[0], nil
}
