package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"seisreg/internal/events"
	"seisreg/internal/registry/models"
	id "seisreg/pkg/domain"
	dErrors "seisreg/pkg/domain-errors"
	"seisreg/pkg/platform/httputil"
	authmw "seisreg/pkg/platform/middleware/auth"
	request "seisreg/pkg/platform/middleware/request"
)

// Service is the registry surface the handler exposes.
type Service interface {
	RegisterDataset(ctx context.Context, hash id.ContentHash, uri, licenseTerms string) (id.AssetID, error)
	RegisterModel(ctx context.Context, hash id.ContentHash, uri, licenseTerms string) (id.AssetID, error)
	StoreCID(ctx context.Context, assetID id.AssetID, cid string) error
	StoreEncryptedKeyCID(ctx context.Context, assetID id.AssetID, licenseID id.LicenseID, cid string) error
	IssueLicense(ctx context.Context, assetID id.AssetID, licensee id.Address, termsRef string, price uint64) (id.LicenseID, error)
	RevokeLicense(ctx context.Context, licenseID id.LicenseID) error
	TransferAsset(ctx context.Context, assetID id.AssetID, to id.Address) error
	TransferAdmin(ctx context.Context, to id.Address) error
	Purchase(ctx context.Context, licenseID id.LicenseID, amount uint64) (id.PurchaseID, error)
	PurchaseWithToken(ctx context.Context, token id.Address, licenseID id.LicenseID, amount uint64) (id.PurchaseID, error)
	Withdraw(ctx context.Context) (uint64, error)
	WithdrawToken(ctx context.Context, token id.Address) (uint64, error)

	GetAsset(ctx context.Context, assetID id.AssetID) (*models.Asset, error)
	GetAssetByHash(ctx context.Context, hash id.ContentHash) (*models.Asset, error)
	GetLicense(ctx context.Context, licenseID id.LicenseID) (*models.License, error)
	GetPurchase(ctx context.Context, purchaseID id.PurchaseID) (*models.Purchase, error)
	GetLicensesOfAsset(ctx context.Context, assetID id.AssetID) ([]id.LicenseID, error)
	GetPurchasesOfLicense(ctx context.Context, licenseID id.LicenseID) ([]id.PurchaseID, error)
	GetEncryptedKeyCID(ctx context.Context, assetID id.AssetID, licenseID id.LicenseID) (string, error)
	PendingBalance(ctx context.Context, account id.Address) (uint64, error)
	PendingTokenBalance(ctx context.Context, token, account id.Address) (uint64, error)
	Admin(ctx context.Context) (id.Address, error)
}

// EventSource backs the notification polling route.
type EventSource interface {
	Since(ctx context.Context, after uint64, limit int) ([]events.Event, error)
}

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// Handler serves the /v1 registry API.
type Handler struct {
	registry  Service
	events    EventSource
	validator authmw.TokenValidator
	logger    *slog.Logger
}

func New(registry Service, eventSource EventSource, validator authmw.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{
		registry:  registry,
		events:    eventSource,
		validator: validator,
		logger:    logger,
	}
}

// Register mounts the routes on r. Reads are public; every state change
// requires a bearer token naming the caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/assets/{assetID}", h.handleGetAsset)
		r.Get("/assets/by-hash/{hash}", h.handleGetAssetByHash)
		r.Get("/assets/{assetID}/licenses", h.handleListLicenses)
		r.Get("/assets/{assetID}/licenses/{licenseID}/key-cid", h.handleGetKeyCID)
		r.Get("/licenses/{licenseID}", h.handleGetLicense)
		r.Get("/licenses/{licenseID}/purchases", h.handleListPurchases)
		r.Get("/purchases/{purchaseID}", h.handleGetPurchase)
		r.Get("/balances/{address}", h.handleGetBalance)
		r.Get("/balances/{address}/tokens/{token}", h.handleGetTokenBalance)
		r.Get("/admin", h.handleGetAdmin)
		if h.events != nil {
			r.Get("/events", h.handleListEvents)
		}

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireAuth(h.validator, h.logger))
			r.Post("/datasets", h.handleRegister(models.AssetKindDataset))
			r.Post("/models", h.handleRegister(models.AssetKindModel))
			r.Put("/assets/{assetID}/cid", h.handleStoreCID)
			r.Post("/assets/{assetID}/transfer", h.handleTransferAsset)
			r.Post("/assets/{assetID}/licenses", h.handleIssueLicense)
			r.Put("/assets/{assetID}/licenses/{licenseID}/key-cid", h.handleStoreKeyCID)
			r.Post("/licenses/{licenseID}/revoke", h.handleRevokeLicense)
			r.Post("/licenses/{licenseID}/purchases", h.handlePurchase)
			r.Post("/licenses/{licenseID}/token-purchases", h.handleTokenPurchase)
			r.Post("/withdrawals", h.handleWithdraw)
			r.Post("/withdrawals/tokens/{token}", h.handleWithdrawToken)
			r.Post("/admin/transfer", h.handleTransferAdmin)
		})
	})
}

// fail logs by severity and writes the error. Client errors are warnings;
// everything else is an error with the cause attached.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"path", r.URL.Path,
		"request_id", request.GetRequestID(ctx),
	)
	httputil.WriteError(w, err)
}

func assetIDParam(r *http.Request) (id.AssetID, error) {
	return id.ParseAssetID(chi.URLParam(r, "assetID"))
}

func licenseIDParam(r *http.Request) (id.LicenseID, error) {
	return id.ParseLicenseID(chi.URLParam(r, "licenseID"))
}

func addressParam(r *http.Request, name string) (id.Address, error) {
	return parseAddressField(chi.URLParam(r, name), name)
}

func queryUint(r *http.Request, name string, fallback uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be a non-negative integer")
	}
	return v, nil
}
