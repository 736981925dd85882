package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"lendcore/core/events"
)

var (
	dai   = common.HexToAddress("0x000000000000000000000000000000000000da10")
	weth  = common.HexToAddress("0x000000000000000000000000000000000000e710")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	j, err := New(db, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalAppendAndFilter(t *testing.T) {
	j := openJournal(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	j.Emit(events.LendingSupply{Reserve: dai, User: alice, OnBehalfOf: bob, Amount: uint256.NewInt(100)})
	j.Emit(events.LendingBorrow{Reserve: weth, User: bob, OnBehalfOf: bob, Amount: uint256.NewInt(5), InterestRateMode: 2})
	j.Emit(events.LendingSupply{Reserve: weth, User: alice, OnBehalfOf: alice, Amount: uint256.NewInt(7)})
	j.Emit(nil)

	ctx := context.Background()
	all, err := j.List(ctx, Query{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	first := all[0]
	if first.Type != events.TypeLendingSupply || first.Reserve != dai.Hex() || first.Account != bob.Hex() {
		t.Fatalf("unexpected first record %+v", first)
	}
	if !first.RecordedAt.Equal(fixed) {
		t.Fatalf("recorded at %v", first.RecordedAt)
	}
	attrs, err := first.Attrs()
	if err != nil {
		t.Fatalf("attrs: %v", err)
	}
	if attrs["amount"] != "100" || attrs["user"] != alice.Hex() {
		t.Fatalf("unexpected attributes %v", attrs)
	}

	cases := []struct {
		name string
		q    Query
		want int
	}{
		{"type", Query{Type: events.TypeLendingSupply}, 2},
		{"reserve", Query{Reserve: weth.Hex()}, 2},
		{"account", Query{Account: bob.Hex()}, 2},
		{"combined", Query{Type: events.TypeLendingSupply, Reserve: weth.Hex()}, 1},
		{"after", Query{AfterID: first.ID}, 2},
		{"limit", Query{Limit: 1}, 1},
		{"none", Query{Type: events.TypeLendingRepay}, 0},
	}
	for _, tc := range cases {
		got, err := j.List(ctx, tc.q)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(got) != tc.want {
			t.Fatalf("%s: expected %d records, got %d", tc.name, tc.want, len(got))
		}
	}
}

func TestOpenRejectsBadInput(t *testing.T) {
	if _, err := Open("mysql", "x"); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(DriverSQLite, " "); err == nil {
		t.Fatal("expected missing dsn error")
	}
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected nil database error")
	}
}
