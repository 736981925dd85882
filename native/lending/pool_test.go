package lending

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"lendcore/core/events"
	nativecommon "lendcore/native/common"
	"lendcore/native/lending/rates"
	"lendcore/native/lending/wadray"
)

const genesisTimestamp = 1_700_000_000

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	carol    = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000ee")

	dai  = common.HexToAddress("0x000000000000000000000000000000000000da10")
	weth = common.HexToAddress("0x000000000000000000000000000000000000e710")
	usdc = common.HexToAddress("0x000000000000000000000000000000000000c5dc")
)

type fixture struct {
	pool     *Pool
	clock    *ManualClock
	oracle   *StaticOracle
	acl      *StaticACL
	recorder *events.Recorder
	pauses   *nativecommon.Pauses
}

type reserveParams struct {
	decimals  uint8
	ltv       uint64
	threshold uint64
	bonus     uint64
	factor    uint64
}

func units(t testing.TB, amount string, decimals uint8) *uint256.Int {
	t.Helper()
	v, err := wadray.ParseUnits(amount, decimals)
	require.NoError(t, err)
	return v
}

func ray(t testing.TB, s string) *uint256.Int {
	t.Helper()
	v, err := wadray.ParseRay(s)
	require.NoError(t, err)
	return v
}

func dollars(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), BaseCurrencyUnit)
}

func newStrategies(t testing.TB) *rates.Registry {
	t.Helper()
	strategy, err := rates.NewDefaultStrategy(rates.DefaultStrategy{
		VariableRateSlope1:   ray(t, "0.04"),
		VariableRateSlope2:   ray(t, "0.75"),
		StableRateSlope1:     ray(t, "0.02"),
		StableRateSlope2:     ray(t, "0.75"),
		BaseStableRateOffset: ray(t, "0.02"),
	})
	require.NoError(t, err)
	registry := rates.NewRegistry()
	require.NoError(t, registry.Register("default", strategy))
	return registry
}

// newFixture builds a pool with dai, weth and usdc listed and priced at 1,
// 2000 and 1 dollars.
func newFixture(t testing.TB, opts ...Option) *fixture {
	t.Helper()
	return newFixtureAt(t, genesisTimestamp, opts...)
}

func newFixtureAt(t testing.TB, timestamp uint64, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		clock:    NewManualClock(Block{Number: 1, Timestamp: timestamp}),
		oracle:   NewStaticOracle(),
		acl:      NewStaticACL(),
		recorder: &events.Recorder{},
		pauses:   nativecommon.NewPauses(),
	}
	f.acl.Grant(RolePoolAdmin, admin)
	base := []Option{WithClock(f.clock), WithEmitter(f.recorder), WithPauses(f.pauses)}
	f.pool = NewPool(f.oracle, newStrategies(t), f.acl, append(base, opts...)...)
	require.NoError(t, f.pool.SetTreasury(admin, treasury))

	f.list(t, dai, dollars(1), reserveParams{decimals: 18, ltv: 7500, threshold: 8000, bonus: 10500})
	f.list(t, weth, dollars(2000), reserveParams{decimals: 18, ltv: 8000, threshold: 8250, bonus: 10500, factor: 1000})
	f.list(t, usdc, dollars(1), reserveParams{decimals: 6, ltv: 8000, threshold: 8000, bonus: 10500, factor: 1000})
	f.recorder.Reset()
	return f
}

func (f *fixture) list(t testing.TB, asset common.Address, price *uint256.Int, p reserveParams) {
	t.Helper()
	require := require.New(t)
	f.oracle.SetAssetPrice(asset, price)
	require.NoError(f.pool.InitReserve(admin, InitReserveInput{Asset: asset, Decimals: p.decimals, Strategy: "default"}))
	require.NoError(f.pool.ConfigureReserveAsCollateral(admin, asset, p.ltv, p.threshold, p.bonus))
	require.NoError(f.pool.SetReserveBorrowing(admin, asset, true))
	require.NoError(f.pool.SetReserveStableRateBorrowing(admin, asset, true))
	require.NoError(f.pool.SetReserveFlashLoaning(admin, asset, true))
	require.NoError(f.pool.SetReserveFactor(admin, asset, p.factor))
}

// fund mints amount of asset to holder and approves the pool for all of it.
func (f *fixture) fund(t testing.TB, asset, holder common.Address, amount *uint256.Int) {
	t.Helper()
	require.NoError(t, f.pool.Mint(asset, holder, amount))
	require.NoError(t, f.pool.Approve(holder, asset, f.pool.Address(), MaxUint()))
}

// supply funds holder and supplies the whole amount.
func (f *fixture) supply(t testing.TB, asset, holder common.Address, amount *uint256.Int) {
	t.Helper()
	f.fund(t, asset, holder, amount)
	require.NoError(t, f.pool.Supply(holder, asset, amount, holder, 0))
}

func (f *fixture) reserve(t testing.TB, asset common.Address) *ReserveData {
	t.Helper()
	r, err := f.pool.ReserveData(asset)
	require.NoError(t, err)
	return r
}

func (f *fixture) debt(t testing.TB, asset, user common.Address) (stable, variable *uint256.Int) {
	t.Helper()
	stable, variable, err := f.pool.DebtBalances(asset, user)
	require.NoError(t, err)
	return stable, variable
}

func (f *fixture) aBalance(t testing.TB, asset, user common.Address) *uint256.Int {
	t.Helper()
	v, err := f.pool.ATokenBalance(asset, user)
	require.NoError(t, err)
	return v
}

func requireEq(t testing.TB, want, got *uint256.Int) {
	t.Helper()
	require.Truef(t, want.Eq(got), "want %s, got %s", want.Dec(), got.Dec())
}

func requireNear(t testing.TB, want, got *uint256.Int, tolerance uint64) {
	t.Helper()
	diff := new(uint256.Int)
	if want.Gt(got) {
		diff.Sub(want, got)
	} else {
		diff.Sub(got, want)
	}
	require.Truef(t, !diff.GtUint64(tolerance), "want %s within %d, got %s", want.Dec(), tolerance, got.Dec())
}

func TestPoolPauseGuardRejectsCalls(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	f.fund(t, dai, alice, units(t, "10", 18))

	f.pauses.Set(ModuleName, true)
	err := f.pool.Supply(alice, dai, units(t, "10", 18), alice, 0)
	require.ErrorIs(err, nativecommon.ErrModulePaused)
	require.Equal("POOL_PAUSED", Code(err))

	f.pauses.Set(ModuleName, false)
	require.NoError(f.pool.Supply(alice, dai, units(t, "10", 18), alice, 0))
}

func TestFailedCallLeavesNoTrace(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	amount := units(t, "10", 18)
	require.NoError(f.pool.Mint(dai, alice, amount))
	f.recorder.Reset()
	before := f.reserve(t, dai)

	// No allowance: the transfer in fails after the reserve was accrued and
	// repriced inside the call.
	err := f.pool.Supply(alice, dai, amount, alice, 0)
	require.ErrorIs(err, ErrTransferAmountExceedsAllowance)
	require.Equal(KindTransfer, KindOf(err))

	require.Empty(f.recorder.Events())
	require.True(f.aBalance(t, dai, alice).IsZero())
	requireEq(t, amount, f.pool.BalanceOf(dai, alice))
	require.Equal(before, f.reserve(t, dai))
	require.False(f.pool.UserConfiguration(alice).IsUsingAsCollateralAny())
}

func TestUnlistedAssetIsRejected(t *testing.T) {
	f := newFixture(t)
	unknown := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	f.fund(t, unknown, alice, units(t, "1", 18))
	err := f.pool.Supply(alice, unknown, units(t, "1", 18), alice, 0)
	require.ErrorIs(t, err, ErrAssetNotListed)
}

func TestSentinelsReturnCopies(t *testing.T) {
	require := require.New(t)
	MaxUint().Clear()
	HealthFactorLiquidationThreshold().AddUint64(HealthFactorLiquidationThreshold(), 1)
	requireEq(t, wadray.MaxUint256, MaxUint())
	requireEq(t, wadray.RAY, HealthFactorLiquidationThreshold())
	require.False(MaxUint() == MaxUint())
}
