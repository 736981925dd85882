package observability

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"lendcore/core/events"
	"lendcore/native/lending"
)

var _ lending.Metrics = (*LendingMetrics)(nil)

func TestLendingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewLendingMetrics(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	m.ObserveOperation("borrow", "ok", 3*time.Millisecond)
	m.ObserveOperation("borrow", "BORROW_CAP_EXCEEDED", time.Millisecond)
	m.ObserveOperation("borrow", "ok", time.Millisecond)
	dai := common.HexToAddress("0x000000000000000000000000000000000000da10")
	m.SetReserveUtilization(dai, 0.8)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("borrow", "ok")); got != 2 {
		t.Fatalf("ok borrows = %v", got)
	}
	if got := testutil.ToFloat64(m.utilization.WithLabelValues(dai.Hex())); got != 0.8 {
		t.Fatalf("utilization = %v", got)
	}
	if _, err := NewLendingMetrics(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}

	var nilMetrics *LendingMetrics
	nilMetrics.ObserveOperation("supply", "ok", time.Second)
}

func TestRPCMetrics(t *testing.T) {
	m, err := NewRPCMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	m.Observe("lending_supply", 0, time.Millisecond)
	m.Observe("lending_supply", -32010, time.Millisecond)
	m.RecordThrottle("")

	if got := testutil.ToFloat64(m.requests.WithLabelValues("lending_supply", "error")); got != 1 {
		t.Fatalf("error requests = %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("lending_supply", "-32010")); got != 1 {
		t.Fatalf("errors by code = %v", got)
	}
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("unspecified")); got != 1 {
		t.Fatalf("throttles = %v", got)
	}
}

func TestEventCounterForwards(t *testing.T) {
	rec := &events.Recorder{}
	c, err := NewEventCounter(prometheus.NewRegistry(), rec)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	c.Emit(events.LendingReserveDropped{})
	c.Emit(events.LendingReserveDropped{})
	c.Emit(nil)

	if len(rec.Events()) != 2 {
		t.Fatalf("forwarded %d events", len(rec.Events()))
	}
	if got := testutil.ToFloat64(c.counts.WithLabelValues(events.TypeLendingReserveDropped)); got != 2 {
		t.Fatalf("count = %v", got)
	}
}

func TestEventLoggerMasksAccounts(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := NewEventLogger(logger)

	dai := common.HexToAddress("0x000000000000000000000000000000000000da10")
	user := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	l.Emit(events.LendingSupply{Reserve: dai, User: user, OnBehalfOf: user, Amount: uint256.NewInt(42)})

	out := buf.String()
	for _, want := range []string{
		`"type":"lending.supply"`,
		`"reserve":"` + dai.Hex() + `"`,
		`"user":"0x0000…00b0"`,
		`"onBehalfOf":"0x0000…00b0"`,
		`"amount":"42"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}

	buf.Reset()
	quiet := NewEventLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	quiet.Emit(events.LendingSupply{Reserve: dai, User: user, Amount: uint256.NewInt(1)})
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below debug, got %s", buf.String())
	}
}
