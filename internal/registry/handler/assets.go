package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"seisreg/internal/registry/models"
	id "seisreg/pkg/domain"
	"seisreg/pkg/platform/httputil"
)

func (h *Handler) handleRegister(kind models.AssetKind) http.HandlerFunc {
	register := h.registry.RegisterDataset
	if kind == models.AssetKindModel {
		register = h.registry.RegisterModel
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterAssetRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			h.fail(w, r, "invalid register request", err)
			return
		}
		req.Normalize()
		hash, err := req.Hash()
		if err != nil {
			h.fail(w, r, "invalid register request", err)
			return
		}

		assetID, err := register(r.Context(), hash, req.URI, req.LicenseTerms)
		if err != nil {
			h.fail(w, r, "failed to register asset", err)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, AssetIDResponse{AssetID: assetID})
	}
}

func (h *Handler) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid asset id", err)
		return
	}
	asset, err := h.registry.GetAsset(r.Context(), assetID)
	if err != nil {
		h.fail(w, r, "failed to get asset", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, asset)
}

func (h *Handler) handleGetAssetByHash(w http.ResponseWriter, r *http.Request) {
	hash, err := id.ParseContentHash(chi.URLParam(r, "hash"))
	if err != nil {
		h.fail(w, r, "invalid content hash", err)
		return
	}
	asset, err := h.registry.GetAssetByHash(r.Context(), hash)
	if err != nil {
		h.fail(w, r, "failed to get asset by hash", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, asset)
}

func (h *Handler) handleStoreCID(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid asset id", err)
		return
	}
	var req CIDRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid cid request", err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, "invalid cid request", err)
		return
	}
	if err := h.registry.StoreCID(r.Context(), assetID, req.CID); err != nil {
		h.fail(w, r, "failed to store cid", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTransferAsset(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid asset id", err)
		return
	}
	var req TransferRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid transfer request", err)
		return
	}
	to, err := req.Recipient()
	if err != nil {
		h.fail(w, r, "invalid transfer request", err)
		return
	}
	if err := h.registry.TransferAsset(r.Context(), assetID, to); err != nil {
		h.fail(w, r, "failed to transfer asset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleIssueLicense(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid asset id", err)
		return
	}
	var req IssueLicenseRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid license request", err)
		return
	}
	licensee, err := req.LicenseeAddress()
	if err != nil {
		h.fail(w, r, "invalid license request", err)
		return
	}
	licenseID, err := h.registry.IssueLicense(r.Context(), assetID, licensee, req.TermsRef, req.Price)
	if err != nil {
		h.fail(w, r, "failed to issue license", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, LicenseIDResponse{LicenseID: licenseID})
}

func (h *Handler) handleListLicenses(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid asset id", err)
		return
	}
	ids, err := h.registry.GetLicensesOfAsset(r.Context(), assetID)
	if err != nil {
		h.fail(w, r, "failed to list licenses", err)
		return
	}
	if ids == nil {
		ids = []id.LicenseID{}
	}
	httputil.WriteJSON(w, http.StatusOK, LicenseIDsResponse{AssetID: assetID, LicenseIDs: ids})
}

func (h *Handler) handleStoreKeyCID(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid asset id", err)
		return
	}
	licenseID, err := licenseIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid license id", err)
		return
	}
	var req CIDRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, "invalid key cid request", err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, "invalid key cid request", err)
		return
	}
	if err := h.registry.StoreEncryptedKeyCID(r.Context(), assetID, licenseID, req.CID); err != nil {
		h.fail(w, r, "failed to store encrypted key cid", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetKeyCID(w http.ResponseWriter, r *http.Request) {
	assetID, err := assetIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid asset id", err)
		return
	}
	licenseID, err := licenseIDParam(r)
	if err != nil {
		h.fail(w, r, "invalid license id", err)
		return
	}
	cid, err := h.registry.GetEncryptedKeyCID(r.Context(), assetID, licenseID)
	if err != nil {
		h.fail(w, r, "failed to get encrypted key cid", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, KeyCIDResponse{AssetID: assetID, LicenseID: licenseID, CID: cid})
}
