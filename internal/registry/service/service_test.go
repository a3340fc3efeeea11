package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,NativeGateway,TokenGateway,EventPublisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"seisreg/internal/events"
	"seisreg/internal/payment/ledger"
	"seisreg/internal/registry/metrics"
	"seisreg/internal/registry/models"
	"seisreg/internal/registry/service/mocks"
	"seisreg/internal/registry/store"
	id "seisreg/pkg/domain"
	dErrors "seisreg/pkg/domain-errors"
	"seisreg/pkg/requestcontext"
)

// =============================================================================
// Registry Service Test Suite
// =============================================================================
// The suite runs the real in-memory store and custodial ledger so balances
// can be checked on both sides of every settlement. Gateway failures and
// reentrancy are driven through mocks and a wrapping gateway.

var (
	admin   = id.MustParseAddress("0x00000000000000000000000000000000000000ad")
	alice   = id.MustParseAddress("0x000000000000000000000000000000000000a11c")
	bob     = id.MustParseAddress("0x0000000000000000000000000000000000000b0b")
	carol   = id.MustParseAddress("0x00000000000000000000000000000000000ca201")
	custody = id.MustParseAddress("0x00000000000000000000000000000000000000cc")
	tokenX  = id.MustParseAddress("0x00000000000000000000000000000000000000f0")
)

func hashOf(b byte) id.ContentHash {
	var h id.ContentHash
	h[0], h[31] = b, b
	return h
}

func as(caller id.Address) context.Context {
	ctx := requestcontext.WithCaller(context.Background(), caller)
	ctx = requestcontext.WithRequestID(ctx, "req-"+caller.String()[38:])
	return requestcontext.WithTime(ctx, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

type RegistryServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	ledger  *ledger.Ledger
	log     *events.MemoryLog
	service *Service
}

func TestRegistryServiceSuite(t *testing.T) {
	suite.Run(t, new(RegistryServiceSuite))
}

func (s *RegistryServiceSuite) SetupTest() {
	s.store = store.NewInMemory(admin)
	s.ledger = ledger.New(custody)
	s.Require().NoError(s.ledger.Deposit(context.Background(), id.ZeroAddress, bob, 1_000))
	s.Require().NoError(s.ledger.Deposit(context.Background(), tokenX, bob, 1_000))
	s.log = events.NewMemoryLog()
	s.service = s.newService(s.ledger, s.ledger)
}

func (s *RegistryServiceSuite) newService(native NativeGateway, tokens TokenGateway) *Service {
	svc, err := New(s.store, native, tokens,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEventPublisher(events.NewPublisher(s.log)),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	s.Require().NoError(err)
	return svc
}

func (s *RegistryServiceSuite) registerDataset(owner id.Address, h byte) id.AssetID {
	assetID, err := s.service.RegisterDataset(as(owner), hashOf(h), "ipfs://payload", "CC-BY-4.0")
	s.Require().NoError(err)
	return assetID
}

func (s *RegistryServiceSuite) issue(owner id.Address, assetID id.AssetID, price uint64) id.LicenseID {
	licenseID, err := s.service.IssueLicense(as(owner), assetID, bob, "terms://standard", price)
	s.Require().NoError(err)
	return licenseID
}

func (s *RegistryServiceSuite) seedBalance(key models.BalanceKey, amount uint64) {
	s.Require().NoError(s.store.RunInTx(context.Background(), func(tables store.Tables) error {
		tables.SetBalance(key, amount)
		return nil
	}))
}

func (s *RegistryServiceSuite) reserved(key models.BalanceKey) uint64 {
	var held uint64
	s.Require().NoError(s.store.RunInTx(context.Background(), func(tables store.Tables) error {
		held = tables.Reserved(key)
		return nil
	}))
	return held
}

func (s *RegistryServiceSuite) pending(account id.Address) uint64 {
	amount, err := s.service.PendingBalance(context.Background(), account)
	s.Require().NoError(err)
	return amount
}

func (s *RegistryServiceSuite) eventKinds() []events.Kind {
	all, err := s.log.Since(context.Background(), 0, 0)
	s.Require().NoError(err)
	kinds := make([]events.Kind, 0, len(all))
	for _, e := range all {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (s *RegistryServiceSuite) requireCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), "unexpected error: %v", err)
}

// =============================================================================
// Constructor Tests (Invariant Enforcement)
// =============================================================================

func (s *RegistryServiceSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, s.ledger, s.ledger)
		s.Error(err)
		s.Contains(err.Error(), "registry store is required")
	})

	s.Run("nil gateway returns error", func() {
		_, err := New(s.store, nil, s.ledger)
		s.Error(err)
		s.Contains(err.Error(), "payment gateways are required")
	})

	s.Run("valid dependencies return configured service", func() {
		svc, err := New(s.store, s.ledger, s.ledger)
		s.NoError(err)
		s.NotNil(svc)
	})
}

// =============================================================================
// Registration Tests
// =============================================================================

func (s *RegistryServiceSuite) TestRegister() {
	s.Run("assigns sequential ids from one", func() {
		first := s.registerDataset(alice, 1)
		second, err := s.service.RegisterModel(as(alice), hashOf(2), "ipfs://model", "MIT")
		s.Require().NoError(err)
		s.Equal(id.AssetID(1), first)
		s.Equal(id.AssetID(2), second)

		asset, err := s.service.GetAsset(context.Background(), second)
		s.Require().NoError(err)
		s.Equal(models.AssetKindModel, asset.Kind)
		s.Equal(alice, asset.Owner)
		s.True(asset.Active)
	})

	s.Run("duplicate content hash conflicts and leaves the first asset intact", func() {
		_, err := s.service.RegisterDataset(as(carol), hashOf(1), "ipfs://other", "proprietary")
		s.requireCode(err, dErrors.CodeConflict)

		asset, err := s.service.GetAssetByHash(context.Background(), hashOf(1))
		s.Require().NoError(err)
		s.Equal(id.AssetID(1), asset.ID)
		s.Equal(alice, asset.Owner)
		s.Equal("ipfs://payload", asset.URI)
	})

	s.Run("a rejected registration does not consume an id", func() {
		next := s.registerDataset(carol, 3)
		s.Equal(id.AssetID(3), next)
	})

	s.Run("zero content hash is invalid", func() {
		_, err := s.service.RegisterDataset(as(alice), id.ContentHash{}, "ipfs://x", "")
		s.requireCode(err, dErrors.CodeInvalidArgument)
	})

	s.Run("anonymous caller is unauthorized", func() {
		_, err := s.service.RegisterDataset(context.Background(), hashOf(9), "ipfs://x", "")
		s.requireCode(err, dErrors.CodeUnauthorized)
	})

	s.Run("emits one notification per registration", func() {
		s.Equal([]events.Kind{
			events.KindAssetRegistered,
			events.KindAssetRegistered,
			events.KindAssetRegistered,
		}, s.eventKinds())
		s.Equal(float64(2), promtestutil.ToFloat64(s.service.metrics.AssetsRegistered.WithLabelValues("dataset")))
	})
}

func (s *RegistryServiceSuite) TestStoreCID() {
	assetID := s.registerDataset(alice, 1)

	s.Run("owner sets cid, last write wins", func() {
		s.Require().NoError(s.service.StoreCID(as(alice), assetID, "bafy-one"))
		s.Require().NoError(s.service.StoreCID(as(alice), assetID, "bafy-two"))
		asset, err := s.service.GetAsset(context.Background(), assetID)
		s.Require().NoError(err)
		s.Equal("bafy-two", asset.CID)
	})

	s.Run("non-owner is unauthorized", func() {
		s.requireCode(s.service.StoreCID(as(bob), assetID, "bafy-evil"), dErrors.CodeUnauthorized)
	})

	s.Run("unknown asset is not found", func() {
		s.requireCode(s.service.StoreCID(as(alice), 99, "bafy"), dErrors.CodeNotFound)
	})
}

func (s *RegistryServiceSuite) TestStoreEncryptedKeyCID() {
	first := s.registerDataset(alice, 1)
	second := s.registerDataset(alice, 2)
	licenseOnFirst := s.issue(alice, first, 100)

	s.Run("unset reference reads empty", func() {
		cid, err := s.service.GetEncryptedKeyCID(context.Background(), first, licenseOnFirst)
		s.Require().NoError(err)
		s.Empty(cid)
	})

	s.Run("owner stores reference for a license of the asset", func() {
		s.Require().NoError(s.service.StoreEncryptedKeyCID(as(alice), first, licenseOnFirst, "bafy-key"))
		cid, err := s.service.GetEncryptedKeyCID(context.Background(), first, licenseOnFirst)
		s.Require().NoError(err)
		s.Equal("bafy-key", cid)
	})

	s.Run("license of another asset is a mismatch", func() {
		err := s.service.StoreEncryptedKeyCID(as(alice), second, licenseOnFirst, "bafy-key")
		s.requireCode(err, dErrors.CodeMismatch)
	})

	s.Run("license id out of range is not found", func() {
		s.requireCode(s.service.StoreEncryptedKeyCID(as(alice), first, 0, "x"), dErrors.CodeNotFound)
		s.requireCode(s.service.StoreEncryptedKeyCID(as(alice), first, 42, "x"), dErrors.CodeNotFound)
	})

	s.Run("non-owner is unauthorized before the license is checked", func() {
		s.requireCode(s.service.StoreEncryptedKeyCID(as(bob), first, 42, "x"), dErrors.CodeUnauthorized)
	})
}

// =============================================================================
// Licensing Tests
// =============================================================================

func (s *RegistryServiceSuite) TestIssueLicense() {
	assetID := s.registerDataset(alice, 1)

	s.Run("owner issues licenses listed in issuance order", func() {
		l1 := s.issue(alice, assetID, 100)
		l2, err := s.service.IssueLicense(as(alice), assetID, id.ZeroAddress, "terms://open", 0)
		s.Require().NoError(err)

		ids, err := s.service.GetLicensesOfAsset(context.Background(), assetID)
		s.Require().NoError(err)
		s.Equal([]id.LicenseID{l1, l2}, ids)

		license, err := s.service.GetLicense(context.Background(), l2)
		s.Require().NoError(err)
		s.Equal(alice, license.Licensor)
		s.True(license.Licensee.IsZero())
		s.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), license.IssuedAt)
	})

	s.Run("non-owner is unauthorized", func() {
		_, err := s.service.IssueLicense(as(bob), assetID, bob, "terms", 1)
		s.requireCode(err, dErrors.CodeUnauthorized)
	})

	s.Run("unknown asset is not found", func() {
		_, err := s.service.IssueLicense(as(alice), 77, bob, "terms", 1)
		s.requireCode(err, dErrors.CodeNotFound)
		_, err = s.service.GetLicensesOfAsset(context.Background(), 77)
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *RegistryServiceSuite) TestTransferAsset() {
	assetID := s.registerDataset(alice, 1)
	before := s.issue(alice, assetID, 100)

	s.Require().NoError(s.service.TransferAsset(as(alice), assetID, carol))

	s.Run("previous owner can no longer issue", func() {
		_, err := s.service.IssueLicense(as(alice), assetID, bob, "terms", 100)
		s.requireCode(err, dErrors.CodeUnauthorized)
	})

	s.Run("new owner issues and becomes licensor", func() {
		after := s.issue(carol, assetID, 100)
		license, err := s.service.GetLicense(context.Background(), after)
		s.Require().NoError(err)
		s.Equal(carol, license.Licensor)
	})

	s.Run("existing licenses keep their licensor and proceeds", func() {
		_, err := s.service.Purchase(as(bob), before, 100)
		s.Require().NoError(err)
		s.Equal(uint64(100), s.pending(alice))
		s.Zero(s.pending(carol))
	})

	s.Run("zero recipient is invalid", func() {
		s.requireCode(s.service.TransferAsset(as(carol), assetID, id.ZeroAddress), dErrors.CodeInvalidArgument)
	})

	s.Run("non-owner is unauthorized", func() {
		s.requireCode(s.service.TransferAsset(as(alice), assetID, alice), dErrors.CodeUnauthorized)
	})
}

func (s *RegistryServiceSuite) TestRevokeLicense() {
	assetID := s.registerDataset(alice, 1)

	s.Run("licensor revokes once; repeat is a silent no-op", func() {
		licenseID := s.issue(alice, assetID, 100)
		s.Require().NoError(s.service.RevokeLicense(as(alice), licenseID))
		s.Require().NoError(s.service.RevokeLicense(as(alice), licenseID))

		license, err := s.service.GetLicense(context.Background(), licenseID)
		s.Require().NoError(err)
		s.True(license.Revoked)

		revocations := 0
		for _, kind := range s.eventKinds() {
			if kind == events.KindLicenseRevoked {
				revocations++
			}
		}
		s.Equal(1, revocations)
	})

	s.Run("administrator may revoke", func() {
		licenseID := s.issue(alice, assetID, 100)
		s.Require().NoError(s.service.RevokeLicense(as(admin), licenseID))
	})

	s.Run("licensee may not revoke", func() {
		licenseID := s.issue(alice, assetID, 100)
		s.requireCode(s.service.RevokeLicense(as(bob), licenseID), dErrors.CodeUnauthorized)
	})

	s.Run("unknown license is not found", func() {
		s.requireCode(s.service.RevokeLicense(as(alice), 500), dErrors.CodeNotFound)
	})
}

func (s *RegistryServiceSuite) TestTransferAdmin() {
	s.Run("non-admin is unauthorized", func() {
		s.requireCode(s.service.TransferAdmin(as(alice), alice), dErrors.CodeUnauthorized)
	})

	s.Run("zero address is invalid", func() {
		s.requireCode(s.service.TransferAdmin(as(admin), id.ZeroAddress), dErrors.CodeInvalidArgument)
	})

	s.Run("new administrator gains revocation rights", func() {
		s.Require().NoError(s.service.TransferAdmin(as(admin), carol))
		current, err := s.service.Admin(context.Background())
		s.Require().NoError(err)
		s.Equal(carol, current)

		licenseID := s.issue(alice, s.registerDataset(alice, 1), 10)
		s.requireCode(s.service.RevokeLicense(as(admin), licenseID), dErrors.CodeUnauthorized)
		s.NoError(s.service.RevokeLicense(as(carol), licenseID))
	})
}

// =============================================================================
// Purchase Tests
// =============================================================================

func (s *RegistryServiceSuite) TestPurchase() {
	assetID := s.registerDataset(alice, 1)
	licenseID := s.issue(alice, assetID, 100)

	s.Run("exact price credits the licensor by the price", func() {
		purchaseID, err := s.service.Purchase(as(bob), licenseID, 100)
		s.Require().NoError(err)
		s.Equal(uint64(100), s.pending(alice))
		s.Equal(uint64(900), s.ledger.Balance(id.ZeroAddress, bob))
		s.Equal(uint64(100), s.ledger.Balance(id.ZeroAddress, custody))

		purchase, err := s.service.GetPurchase(context.Background(), purchaseID)
		s.Require().NoError(err)
		s.Equal(bob, purchase.Buyer)
		s.True(purchase.IsNative())
	})

	s.Run("overpayment is credited in full", func() {
		_, err := s.service.Purchase(as(bob), licenseID, 150)
		s.Require().NoError(err)
		s.Equal(uint64(250), s.pending(alice))

		ids, err := s.service.GetPurchasesOfLicense(context.Background(), licenseID)
		s.Require().NoError(err)
		s.Equal([]id.PurchaseID{1, 2}, ids)
	})

	s.Run("underpayment, zero payment and unpriced licenses are invalid", func() {
		_, err := s.service.Purchase(as(bob), licenseID, 99)
		s.requireCode(err, dErrors.CodeInvalidArgument)
		_, err = s.service.Purchase(as(bob), licenseID, 0)
		s.requireCode(err, dErrors.CodeInvalidArgument)

		free := s.issue(alice, assetID, 0)
		_, err = s.service.Purchase(as(bob), free, 10)
		s.requireCode(err, dErrors.CodeInvalidArgument)
		s.Equal(uint64(750), s.ledger.Balance(id.ZeroAddress, bob))
	})

	s.Run("revoked license is invalid state regardless of amount", func() {
		revoked := s.issue(alice, assetID, 100)
		s.Require().NoError(s.service.RevokeLicense(as(alice), revoked))
		for _, amount := range []uint64{0, 1, 100, 1_000} {
			_, err := s.service.Purchase(as(bob), revoked, amount)
			s.requireCode(err, dErrors.CodeInvalidState)
		}
	})

	s.Run("unknown license is not found", func() {
		_, err := s.service.Purchase(as(bob), 404, 100)
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("capture failure records nothing", func() {
		_, err := s.service.Purchase(as(carol), licenseID, 100)
		s.requireCode(err, dErrors.CodePaymentFailed)
		s.True(errors.Is(err, ledger.ErrInsufficientFunds))

		ids, err := s.service.GetPurchasesOfLicense(context.Background(), licenseID)
		s.Require().NoError(err)
		s.Len(ids, 2)
		s.Equal(uint64(250), s.pending(alice))
	})

	s.Run("credit overflow is rejected before funds move", func() {
		s.seedBalance(models.NativeBalance(alice), math.MaxUint64-10)
		_, err := s.service.Purchase(as(bob), licenseID, 100)
		s.requireCode(err, dErrors.CodeInvalidArgument)
		s.Equal(uint64(750), s.ledger.Balance(id.ZeroAddress, bob))
	})
}

func (s *RegistryServiceSuite) TestPurchaseRefundsWhenCommitFails() {
	assetID := s.registerDataset(alice, 1)
	licenseID := s.issue(alice, assetID, 100)

	// The licensor revokes while the buyer's funds are being captured.
	gateway := &hookedGateway{Ledger: s.ledger}
	gateway.onCapture = func(context.Context) {
		s.Require().NoError(s.service.RevokeLicense(as(alice), licenseID))
	}
	s.service = s.newService(gateway, s.ledger)

	_, err := s.service.Purchase(as(bob), licenseID, 100)
	s.requireCode(err, dErrors.CodeInvalidState)
	s.Equal(uint64(1_000), s.ledger.Balance(id.ZeroAddress, bob))
	s.Zero(s.ledger.Balance(id.ZeroAddress, custody))
	s.Zero(s.pending(alice))
}

func (s *RegistryServiceSuite) TestPurchaseWithToken() {
	assetID := s.registerDataset(alice, 1)
	licenseID := s.issue(alice, assetID, 100)

	s.Run("amount is not reconciled with price", func() {
		purchaseID, err := s.service.PurchaseWithToken(as(bob), tokenX, licenseID, 7)
		s.Require().NoError(err)

		balance, err := s.service.PendingTokenBalance(context.Background(), tokenX, alice)
		s.Require().NoError(err)
		s.Equal(uint64(7), balance)
		s.Zero(s.pending(alice))

		purchase, err := s.service.GetPurchase(context.Background(), purchaseID)
		s.Require().NoError(err)
		s.Equal(tokenX, purchase.Token)
	})

	s.Run("zero token is invalid", func() {
		_, err := s.service.PurchaseWithToken(as(bob), id.ZeroAddress, licenseID, 7)
		s.requireCode(err, dErrors.CodeInvalidArgument)
	})

	s.Run("unpriced license is invalid", func() {
		free := s.issue(alice, assetID, 0)
		_, err := s.service.PurchaseWithToken(as(bob), tokenX, free, 7)
		s.requireCode(err, dErrors.CodeInvalidArgument)
	})

	s.Run("gateway returning false leaves no trace", func() {
		ctrl := gomock.NewController(s.T())
		tokens := mocks.NewMockTokenGateway(ctrl)
		tokens.EXPECT().TransferFrom(gomock.Any(), tokenX, bob, uint64(50)).Return(false, nil)
		svc := s.newService(s.ledger, tokens)

		_, err := svc.PurchaseWithToken(as(bob), tokenX, licenseID, 50)
		s.requireCode(err, dErrors.CodePaymentFailed)

		ids, err := svc.GetPurchasesOfLicense(context.Background(), licenseID)
		s.Require().NoError(err)
		s.Len(ids, 1)
		balance, err := svc.PendingTokenBalance(context.Background(), tokenX, alice)
		s.Require().NoError(err)
		s.Equal(uint64(7), balance)
	})

	s.Run("gateway error is payment failed and keeps the cause", func() {
		ctrl := gomock.NewController(s.T())
		tokens := mocks.NewMockTokenGateway(ctrl)
		cause := errors.New("rpc timeout")
		tokens.EXPECT().TransferFrom(gomock.Any(), tokenX, bob, uint64(50)).Return(false, cause)
		svc := s.newService(s.ledger, tokens)

		_, err := svc.PurchaseWithToken(as(bob), tokenX, licenseID, 50)
		s.requireCode(err, dErrors.CodePaymentFailed)
		s.ErrorIs(err, cause)
	})
}

// =============================================================================
// Withdrawal Tests
// =============================================================================

func (s *RegistryServiceSuite) TestScenarioPurchaseAndWithdraw() {
	assetID := s.registerDataset(alice, 1)
	licenseID := s.issue(alice, assetID, 100)

	_, err := s.service.Purchase(as(bob), licenseID, 100)
	s.Require().NoError(err)
	s.Equal(uint64(100), s.pending(alice))

	paid, err := s.service.Withdraw(as(alice))
	s.Require().NoError(err)
	s.Equal(uint64(100), paid)
	s.Zero(s.pending(alice))
	s.Equal(uint64(100), s.ledger.Balance(id.ZeroAddress, alice))

	_, err = s.service.Withdraw(as(alice))
	s.requireCode(err, dErrors.CodeNothingToWithdraw)

	s.Equal([]events.Kind{
		events.KindAssetRegistered,
		events.KindLicenseIssued,
		events.KindPurchaseRecorded,
		events.KindFundsWithdrawn,
	}, s.eventKinds())
	s.Equal(float64(1), promtestutil.ToFloat64(s.service.metrics.Withdrawals.WithLabelValues("native", "ok")))
	s.Equal(float64(1), promtestutil.ToFloat64(s.service.metrics.Withdrawals.WithLabelValues("native", "nothing_to_withdraw")))
}

func (s *RegistryServiceSuite) TestReentrantWithdrawObservesZero() {
	s.seedBalance(models.NativeBalance(alice), 100)
	s.Require().NoError(s.ledger.Deposit(context.Background(), id.ZeroAddress, custody, 100))

	gateway := &hookedGateway{Ledger: s.ledger}
	var innerErr error
	calls := 0
	gateway.onSend = func(ctx context.Context) {
		calls++
		if calls == 1 {
			_, innerErr = s.service.Withdraw(ctx)
		}
	}
	s.service = s.newService(gateway, s.ledger)

	paid, err := s.service.Withdraw(as(alice))
	s.Require().NoError(err)
	s.Equal(uint64(100), paid)
	s.requireCode(innerErr, dErrors.CodeNothingToWithdraw)
	s.Equal(1, calls)
	s.Equal(uint64(100), s.ledger.Balance(id.ZeroAddress, alice))
	s.Zero(s.pending(alice))
	s.Zero(s.reserved(models.NativeBalance(alice)))
}

func (s *RegistryServiceSuite) TestFailedWithdrawSurvivesCreditsWhileInFlight() {
	assetID := s.registerDataset(alice, 1)
	licenseID := s.issue(alice, assetID, 100)
	s.seedBalance(models.NativeBalance(alice), 100)
	s.Require().NoError(s.ledger.Deposit(context.Background(), id.ZeroAddress, carol, math.MaxUint64-100))

	// While alice's 100 is in flight, one purchase would leave no room to
	// credit it back and one fills the remaining headroom exactly.
	gateway := &hookedGateway{Ledger: s.ledger, sendErr: errors.New("node unavailable")}
	var tooLarge, fits error
	gateway.onSend = func(context.Context) {
		_, tooLarge = s.service.Purchase(as(carol), licenseID, math.MaxUint64-50)
		_, fits = s.service.Purchase(as(carol), licenseID, math.MaxUint64-100)
	}
	s.service = s.newService(gateway, s.ledger)

	_, err := s.service.Withdraw(as(alice))
	s.requireCode(err, dErrors.CodePaymentFailed)
	s.requireCode(tooLarge, dErrors.CodeInvalidArgument)
	s.Require().NoError(fits)

	s.Equal(uint64(math.MaxUint64), s.pending(alice))
	s.Zero(s.reserved(models.NativeBalance(alice)))
	s.Zero(s.ledger.Balance(id.ZeroAddress, carol))
}

func (s *RegistryServiceSuite) TestWithdrawRollsBackOnGatewayFailure() {
	s.Run("native send error restores the balance", func() {
		s.seedBalance(models.NativeBalance(alice), 100)
		ctrl := gomock.NewController(s.T())
		native := mocks.NewMockNativeGateway(ctrl)
		native.EXPECT().Send(gomock.Any(), alice, uint64(100)).Return(errors.New("node unavailable"))
		svc := s.newService(native, s.ledger)

		_, err := svc.Withdraw(as(alice))
		s.requireCode(err, dErrors.CodePaymentFailed)
		s.Equal(uint64(100), s.pending(alice))
	})

	s.Run("token transfer returning false restores the balance", func() {
		key := models.TokenBalance(tokenX, alice)
		s.seedBalance(key, 40)
		ctrl := gomock.NewController(s.T())
		tokens := mocks.NewMockTokenGateway(ctrl)
		tokens.EXPECT().Transfer(gomock.Any(), tokenX, alice, uint64(40)).Return(false, nil)
		svc := s.newService(s.ledger, tokens)

		_, err := svc.WithdrawToken(as(alice), tokenX)
		s.requireCode(err, dErrors.CodePaymentFailed)
		balance, err := svc.PendingTokenBalance(context.Background(), tokenX, alice)
		s.Require().NoError(err)
		s.Equal(uint64(40), balance)
	})

	s.Run("token withdrawal pays out and zeroes", func() {
		s.Require().NoError(s.ledger.Deposit(context.Background(), tokenX, custody, 40))
		paid, err := s.service.WithdrawToken(as(alice), tokenX)
		s.Require().NoError(err)
		s.Equal(uint64(40), paid)
		s.Equal(uint64(40), s.ledger.Balance(tokenX, alice))

		_, err = s.service.WithdrawToken(as(alice), tokenX)
		s.requireCode(err, dErrors.CodeNothingToWithdraw)
	})

	s.Run("zero token is invalid", func() {
		_, err := s.service.WithdrawToken(as(alice), id.ZeroAddress)
		s.requireCode(err, dErrors.CodeInvalidArgument)
	})
}

// =============================================================================
// Failure Propagation Tests
// =============================================================================

func (s *RegistryServiceSuite) TestStoreFailureIsInternal() {
	ctrl := gomock.NewController(s.T())
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().RunInTx(gomock.Any(), gomock.Any()).Return(errors.New("connection reset")).AnyTimes()
	svc, err := New(st, s.ledger, s.ledger, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	_, err = svc.RegisterDataset(as(alice), hashOf(1), "", "")
	s.requireCode(err, dErrors.CodeInternal)
	_, err = svc.GetAsset(context.Background(), 1)
	s.requireCode(err, dErrors.CodeInternal)
}

func (s *RegistryServiceSuite) TestPublishFailureDoesNotFailOperation() {
	ctrl := gomock.NewController(s.T())
	publisher := mocks.NewMockEventPublisher(ctrl)
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e events.Event) (events.Event, error) {
			s.Equal(events.KindAssetRegistered, e.Kind)
			s.Equal(alice, e.Actor)
			s.NotEmpty(e.RequestID)
			return events.Event{}, errors.New("log full")
		})
	svc, err := New(s.store, s.ledger, s.ledger,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEventPublisher(publisher),
	)
	s.Require().NoError(err)

	assetID, err := svc.RegisterDataset(as(alice), hashOf(1), "", "")
	s.Require().NoError(err)
	s.Equal(id.AssetID(1), assetID)
}

func (s *RegistryServiceSuite) TestEventSequenceFollowsCommitOrder() {
	assetID := s.registerDataset(alice, 1)

	const issuers = 32
	var wg sync.WaitGroup
	for i := 0; i < issuers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.IssueLicense(as(alice), assetID, bob, "terms://standard", 10)
			s.NoError(err)
		}()
	}
	wg.Wait()

	all, err := s.log.Since(context.Background(), 0, 0)
	s.Require().NoError(err)
	var last uint64
	for _, e := range all {
		if e.Kind != events.KindLicenseIssued {
			continue
		}
		s.Equal(last+1, uint64(e.LicenseID), "license %d logged at seq %d", e.LicenseID, e.Seq)
		last = uint64(e.LicenseID)
	}
	s.Equal(uint64(issuers), last)
}

// hookedGateway runs a callback before delegating to the ledger, so a test
// can act while the service is between transactions. A non-nil sendErr fails
// Send after the callback instead of delegating.
type hookedGateway struct {
	*ledger.Ledger
	onCapture func(ctx context.Context)
	onSend    func(ctx context.Context)
	sendErr   error
}

func (g *hookedGateway) Capture(ctx context.Context, from id.Address, amount uint64) error {
	if g.onCapture != nil {
		g.onCapture(ctx)
	}
	return g.Ledger.Capture(ctx, from, amount)
}

func (g *hookedGateway) Send(ctx context.Context, to id.Address, amount uint64) error {
	if g.onSend != nil {
		g.onSend(ctx)
	}
	if g.sendErr != nil {
		return g.sendErr
	}
	return g.Ledger.Send(ctx, to, amount)
}
