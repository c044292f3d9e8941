package wal

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

type record struct {
	Seq  int    `json:"seq"`
	Kind string `json:"kind"`
}

func TestWALWriteAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fund.wal")
	w, err := NewWAL(path)
	if err != nil {
		t.Fatalf("open wal: %v", err)
	}

	for i := 1; i <= 3; i++ {
		if err := w.Write(record{Seq: i, Kind: "fund"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewWAL(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if err := reopened.Write(record{Seq: 4, Kind: "withdraw"}); err != nil {
		t.Fatalf("append after reopen: %v", err)
	}

	var got []record
	err = reopened.ReadAll(func(raw []byte) error {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 records got %d", len(got))
	}
	for i, r := range got {
		if r.Seq != i+1 {
			t.Fatalf("record %d out of order: %+v", i, r)
		}
	}
	if got[3].Kind != "withdraw" {
		t.Fatalf("expected last record to be withdraw, got %s", got[3].Kind)
	}
}
