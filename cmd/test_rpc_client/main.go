package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	grpc_adapter "github.com/JoeShih716/go-mem-fund/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-mem-fund/internal/app/core/domain"
	grpcpool "github.com/JoeShih716/go-mem-fund/pkg/grpc"
)

const (
	TotalCount  = 100000
	Concurrency = 500
)

// funderKeys hardhat 預設帳號 1~4，本地開發鏈會預存餘額
var funderKeys = []string{
	"59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
	"5de4111afa1a4b94908f83103eb1f1706367c2e68ca870fc3fb9a804cdab365a",
	"7c852118294e51e653712a81e05800f419141751be58f605c371e15141b007a6",
	"47e179ec197488593b187f80a00eb0da91f1b9d0b13f82a59f4f1e8c8a5e4bde",
}

// 壓測：大量並發出資，最後核對資金池
func main() {
	// 計算單筆事件 buffer大小
	// measureEventSize()
	// return
	pool := grpcpool.NewPool()
	defer pool.Close()
	conn, err := pool.GetConnection("localhost:50051")
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	c := grpc_adapter.NewClient(conn)

	signers := make([]*grpc_adapter.Signer, 0, len(funderKeys))
	for _, hexKey := range funderKeys {
		key, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			log.Fatalf("parse funder key: %v", err)
		}
		signers = append(signers, grpc_adapter.NewSigner(key))
	}

	amount, err := domain.ParseEther("0.03") // 2000 USD/ETH 時約 60 USD
	if err != nil {
		log.Fatalf("parse amount: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	before, err := c.PoolBalance(ctx)
	if err != nil {
		log.Fatalf("pool balance: %v", err)
	}

	var wg sync.WaitGroup
	var failed atomic.Int64
	wg.Add(TotalCount)
	sem := make(chan struct{}, Concurrency)
	startTime := time.Now()

	for i := 0; i < TotalCount; i++ {
		sem <- struct{}{}

		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			signer := signers[idx%len(signers)]
			if _, err := c.Fund(ctx, signer, amount, common.Hash{}); err != nil {
				failed.Add(1)
				if idx%10000 == 0 {
					log.Printf("Fund %d failed: %v", idx, err)
				}
			}
		}(i)
	}

	wg.Wait()

	elapsed := time.Since(startTime)
	fmt.Printf("Completed %d requests in %v (%d failed)\n", TotalCount, elapsed, failed.Load())
	fmt.Printf("TPS: %.2f\n", float64(TotalCount)/elapsed.Seconds())

	after, err := c.PoolBalance(ctx)
	if err != nil {
		log.Fatalf("pool balance: %v", err)
	}
	succeeded := big.NewInt(TotalCount - failed.Load())
	expected := new(big.Int).Add(before, new(big.Int).Mul(amount, succeeded))
	fmt.Printf("Pool: %s ETH (expected %s ETH)\n", domain.FormatEther(after), domain.FormatEther(expected))
}

// measureEventSize 計算單筆出資事件 JSON 大小
func measureEventSize() {
	amount, _ := domain.ParseEther("0.03")
	reference, _ := domain.ParseEther("60")
	event := domain.NewFundEvent(1234567, domain.NewDeposit(common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"), amount), reference, amount)

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(event); err != nil {
		panic(err)
	}

	fmt.Printf("Single Event JSON Size: %d bytes\n", buf.Len())
}
