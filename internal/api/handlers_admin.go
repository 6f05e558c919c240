package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/custodia/escrowd/internal/api/respond"
	"github.com/custodia/escrowd/internal/api/validate"
	"github.com/custodia/escrowd/internal/engine"
	"github.com/custodia/escrowd/internal/model"
)

// AdminHandler exposes the operator-only engine operations. The engine itself
// enforces that the caller holds operator authority; the handler only shapes
// the HTTP surface.
type AdminHandler struct {
	eng *engine.Engine
}

func NewAdminHandler(eng *engine.Engine) *AdminHandler { return &AdminHandler{eng: eng} }

// AllowAsset POST /v1/admin/assets
func (h *AdminHandler) AllowAsset(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req struct {
		Asset string `json:"asset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	asset, err := model.ParseAsset(req.Asset)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	if err := h.eng.AddAllowedToken(r.Context(), actor.ActorID, asset); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"asset":   asset,
		"allowed": true,
	})
}

// RemoveAsset DELETE /v1/admin/assets/{asset}
func (h *AdminHandler) RemoveAsset(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	asset, err := model.ParseAsset(mux.Vars(r)["asset"])
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	if err := h.eng.RemoveAllowedToken(r.Context(), actor.ActorID, asset); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"asset":   asset,
		"allowed": false,
	})
}

// GetAsset GET /v1/assets/{asset}
func (h *AdminHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	asset, err := model.ParseAsset(mux.Vars(r)["asset"])
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"asset":   asset,
		"allowed": h.eng.IsAllowedToken(asset),
	})
}

// ToggleEmergencyMode POST /v1/admin/emergency-mode
func (h *AdminHandler) ToggleEmergencyMode(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	enabled, err := h.eng.ToggleEmergencyMode(r.Context(), actor.ActorID)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"emergencyMode": enabled})
}

// GetEmergencyMode GET /v1/emergency-mode
func (h *AdminHandler) GetEmergencyMode(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"emergencyMode": h.eng.EmergencyMode(),
	})
}

// EmergencyWithdraw POST /v1/admin/emergency-withdrawals
func (h *AdminHandler) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req struct {
		VaultID int64 `json:"vaultId"`
		Amount  int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := h.eng.EmergencyWithdraw(r.Context(), actor.ActorID, req.VaultID, req.Amount); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	v, err := h.eng.Vault(req.VaultID)
	if err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, v)
}

// TransferAuthority POST /v1/admin/operator
func (h *AdminHandler) TransferAuthority(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req struct {
		NewOperator string `json:"newOperator"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	if err := validate.Actor("newOperator", req.NewOperator); err != nil {
		respond.WriteBadRequest(w, err.Error())
		return
	}
	if err := h.eng.TransferAuthority(r.Context(), actor.ActorID, req.NewOperator); err != nil {
		respond.WriteDomainError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"operator": req.NewOperator})
}
