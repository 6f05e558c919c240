package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/custodia/escrowd/internal/api/respond"
	"github.com/custodia/escrowd/internal/api/validate"
	"github.com/custodia/escrowd/internal/engine"
	"github.com/custodia/escrowd/internal/model"
)

// VaultHandler is the HTTP transport over the vault engine.
type VaultHandler struct {
	eng *engine.Engine
}

func NewVaultHandler(eng *engine.Engine) *VaultHandler { return &VaultHandler{eng: eng} }

func vaultID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["vaultId"], 10, 64)
}

// CreateVault POST /v1/vaults
func (h *VaultHandler) CreateVault(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req struct {
		Message     string `json:"message"`
		Asset       string `json:"asset"`
		LockSeconds int64  `json:"lockSeconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.Message(req.Message); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := validate.LockSeconds(req.LockSeconds); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	asset, err := model.ParseAsset(req.Asset)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	v, err := h.eng.CreateVault(r.Context(), actor.ActorID, req.Message, asset,
		time.Duration(req.LockSeconds)*time.Second)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, v)
}

// ListVaults GET /v1/vaults
func (h *VaultHandler) ListVaults(w http.ResponseWriter, r *http.Request) {
	vaults := h.eng.Vaults()
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"vaults": vaults,
		"count":  len(vaults),
	})
}

// GetVault GET /v1/vaults/{vaultId}
func (h *VaultHandler) GetVault(w http.ResponseWriter, r *http.Request) {
	id, err := vaultID(r)
	if err != nil {
		respond.WriteBadRequest(w, "invalid vault id")
		return
	}
	v, err := h.eng.Vault(id)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, v)
}

// Donate POST /v1/vaults/{vaultId}/donations
func (h *VaultHandler) Donate(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, err := vaultID(r)
	if err != nil {
		respond.WriteBadRequest(w, "invalid vault id")
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := h.eng.Donate(r.Context(), actor.ActorID, id, req.Amount); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	v, err := h.eng.Vault(id)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, v)
}

// Settle POST /v1/vaults/{vaultId}/settlements
func (h *VaultHandler) Settle(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, err := vaultID(r)
	if err != nil {
		respond.WriteBadRequest(w, "invalid vault id")
		return
	}
	var req struct {
		Recipient string `json:"recipient"`
		Amount    int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.Actor("recipient", req.Recipient); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.eng.Settle(r.Context(), actor.ActorID, id, req.Recipient, req.Amount); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	ent, err := h.eng.Entitlement(id, req.Recipient)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, ent)
}

// Claim POST /v1/vaults/{vaultId}/claims
func (h *VaultHandler) Claim(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, err := vaultID(r)
	if err != nil {
		respond.WriteBadRequest(w, "invalid vault id")
		return
	}
	paid, err := h.eng.Claim(r.Context(), actor.ActorID, id)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"vaultId":   id,
		"recipient": actor.ActorID,
		"amount":    paid,
	})
}

// Withdraw POST /v1/vaults/{vaultId}/withdrawals
func (h *VaultHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, err := vaultID(r)
	if err != nil {
		respond.WriteBadRequest(w, "invalid vault id")
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := h.eng.Withdraw(r.Context(), actor.ActorID, id, req.Amount); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	v, err := h.eng.Vault(id)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, v)
}

// GetEntitlement GET /v1/vaults/{vaultId}/entitlements/{recipient}
func (h *VaultHandler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	id, err := vaultID(r)
	if err != nil {
		respond.WriteBadRequest(w, "invalid vault id")
		return
	}
	recipient := mux.Vars(r)["recipient"]
	ent, err := h.eng.Entitlement(id, recipient)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"vaultId":       ent.VaultID,
		"recipient":     ent.Recipient,
		"settledAmount": ent.SettledAmount,
		"claimedAmount": ent.ClaimedAmount,
		"claimable":     ent.Claimable(),
	})
}
