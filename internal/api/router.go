package api

import (
	"github.com/gorilla/mux"

	"github.com/custodia/escrowd/internal/api/recovery"
	"github.com/custodia/escrowd/internal/auth"
	"github.com/custodia/escrowd/internal/engine"
)

// NewRouter wires the full HTTP surface over the engine. Mutating routes
// require an authenticated actor; read routes are open.
func NewRouter(eng *engine.Engine, authorizer auth.Authorizer) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	vault := NewVaultHandler(eng)
	admin := NewAdminHandler(eng)

	root.HandleFunc("/v1/vaults", RequireActor(authorizer, vault.CreateVault)).Methods("POST")
	root.HandleFunc("/v1/vaults", vault.ListVaults).Methods("GET")
	root.HandleFunc("/v1/vaults/{vaultId}", vault.GetVault).Methods("GET")
	root.HandleFunc("/v1/vaults/{vaultId}/donations", RequireActor(authorizer, vault.Donate)).Methods("POST")
	root.HandleFunc("/v1/vaults/{vaultId}/settlements", RequireActor(authorizer, vault.Settle)).Methods("POST")
	root.HandleFunc("/v1/vaults/{vaultId}/claims", RequireActor(authorizer, vault.Claim)).Methods("POST")
	root.HandleFunc("/v1/vaults/{vaultId}/withdrawals", RequireActor(authorizer, vault.Withdraw)).Methods("POST")
	root.HandleFunc("/v1/vaults/{vaultId}/entitlements/{recipient}", vault.GetEntitlement).Methods("GET")

	root.HandleFunc("/v1/assets/{asset}", admin.GetAsset).Methods("GET")
	root.HandleFunc("/v1/emergency-mode", admin.GetEmergencyMode).Methods("GET")

	root.HandleFunc("/v1/admin/assets", RequireActor(authorizer, admin.AllowAsset)).Methods("POST")
	root.HandleFunc("/v1/admin/assets/{asset}", RequireActor(authorizer, admin.RemoveAsset)).Methods("DELETE")
	root.HandleFunc("/v1/admin/emergency-mode", RequireActor(authorizer, admin.ToggleEmergencyMode)).Methods("POST")
	root.HandleFunc("/v1/admin/emergency-withdrawals", RequireActor(authorizer, admin.EmergencyWithdraw)).Methods("POST")
	root.HandleFunc("/v1/admin/operator", RequireActor(authorizer, admin.TransferAuthority)).Methods("POST")

	health := NewHealthHandler()
	root.HandleFunc("/v1/health", health.CheckHealth).Methods("GET")

	return root
}
