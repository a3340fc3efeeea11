package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"seisreg/internal/events"
	id "seisreg/pkg/domain"
	dErrors "seisreg/pkg/domain-errors"
	"seisreg/pkg/platform/httputil"
)

func (h *Handler) handleGetLicense(w http.ResponseWriter, r *http.Request) {
	licenseID, err := licenseIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid license id", err)
		return
	}
	license, err := h.registry.GetLicense(r.Context(), licenseID)
	if err != nil {
		h.fail(w, r, "failed to get license", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, license)
}

func (h *Handler) handleRevokeLicense(w http.ResponseWriter, r *http.Request) {
	licenseID, err := licenseIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid license id", err)
		return
	}
	if err := h.registry.RevokeLicense(r.Context(), licenseID); err != nil {
		h.fail(w, r, "failed to revoke license", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	licenseID, err := licenseIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid license id", err)
		return
	}
	var req PurchaseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid purchase request", err)
		return
	}
	if req.Token != "" {
		h.fail(w, r, "invalid purchase request",
			dErrors.New(dErrors.CodeBadRequest, "token purchases use /token-purchases"))
		return
	}
	purchaseID, err := h.registry.Purchase(r.Context(), licenseID, req.Amount)
	if err != nil {
		h.fail(w, r, "failed to purchase license", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, PurchaseIDResponse{PurchaseID: purchaseID})
}

func (h *Handler) handleTokenPurchase(w http.ResponseWriter, r *http.Request) {
	licenseID, err := licenseIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid license id", err)
		return
	}
	var req PurchaseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid purchase request", err)
		return
	}
	token, err := parseAddressField(req.Token, "token")
	if err != nil {
		h.fail(w, r, "invalid purchase request", err)
		return
	}
	purchaseID, err := h.registry.PurchaseWithToken(r.Context(), token, licenseID, req.Amount)
	if err != nil {
		h.fail(w, r, "failed to purchase license with token", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, PurchaseIDResponse{PurchaseID: purchaseID})
}

func (h *Handler) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	licenseID, err := licenseIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid license id", err)
		return
	}
	ids, err := h.registry.GetPurchasesOfLicense(r.Context(), licenseID)
	if err != nil {
		h.fail(w, r, "failed to list purchases", err)
		return
	}
	if ids == nil {
		ids = []id.PurchaseID{}
	}
	httputil.WriteJSON(w, http.StatusOK, PurchaseIDsResponse{LicenseID: licenseID, PurchaseIDs: ids})
}

func (h *Handler) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	purchaseID, err := id.ParsePurchaseID(chi.URLParam(r, "purchaseID"))
	if err != nil {
		h.fail(w, r, "invalid purchase id", err)
		return
	}
	purchase, err := h.registry.GetPurchase(r.Context(), purchaseID)
	if err != nil {
		h.fail(w, r, "failed to get purchase", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, purchase)
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	account, err := addressParam(r, "address")
	if err != nil {
		h.fail(w, r, "invalid address", err)
		return
	}
	pending, err := h.registry.PendingBalance(r.Context(), account)
	if err != nil {
		h.fail(w, r, "failed to get balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Address: account, Pending: pending})
}

func (h *Handler) handleGetTokenBalance(w http.ResponseWriter, r *http.Request) {
	account, err := addressParam(r, "address")
	if err != nil {
		h.fail(w, r, "invalid address", err)
		return
	}
	token, err := addressParam(r, "token")
	if err != nil {
		h.fail(w, r, "invalid token", err)
		return
	}
	pending, err := h.registry.PendingTokenBalance(r.Context(), token, account)
	if err != nil {
		h.fail(w, r, "failed to get token balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Address: account, Token: &token, Pending: pending})
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	amount, err := h.registry.Withdraw(r.Context())
	if err != nil {
		h.fail(w, r, "failed to withdraw", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, WithdrawalResponse{Amount: amount})
}

func (h *Handler) handleWithdrawToken(w http.ResponseWriter, r *http.Request) {
	token, err := addressParam(r, "token")
	if err != nil {
		h.fail(w, r, "invalid token", err)
		return
	}
	amount, err := h.registry.WithdrawToken(r.Context(), token)
	if err != nil {
		h.fail(w, r, "failed to withdraw token", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, WithdrawalResponse{Amount: amount, Token: &token})
}

func (h *Handler) handleGetAdmin(w http.ResponseWriter, r *http.Request) {
	admin, err := h.registry.Admin(r.Context())
	if err != nil {
		h.fail(w, r, "failed to get administrator", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AdminResponse{Admin: admin})
}

func (h *Handler) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid admin transfer request", err)
		return
	}
	to, err := req.Recipient()
	if err != nil {
		h.fail(w, r, "invalid admin transfer request", err)
		return
	}
	if err := h.registry.TransferAdmin(r.Context(), to); err != nil {
		h.fail(w, r, "failed to transfer administrator", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type eventsResponse struct {
	Events []events.Event `json:"events"`
	Next   uint64         `json:"next"`
}

// handleListEvents pages through notifications. Pass the returned next value
// as after to continue.
func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	after, err := queryUint(r, "after", 0)
	if err != nil {
		h.fail(w, r, "invalid events query", err)
		return
	}
	limit, err := queryUint(r, "limit", defaultEventLimit)
	if err != nil {
		h.fail(w, r, "invalid events query", err)
		return
	}
	if limit == 0 || limit > maxEventLimit {
		limit = maxEventLimit
	}
	page, err := h.events.Since(r.Context(), after, int(limit))
	if err != nil {
		h.fail(w, r, "failed to list events", dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}
	next := after
	if len(page) > 0 {
		next = page[len(page)-1].Seq
	}
	if page == nil {
		page = []events.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, eventsResponse{Events: page, Next: next})
}
