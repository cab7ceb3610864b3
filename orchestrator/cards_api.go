package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
	"github.com/wasmfleet-labs/wasmfleet-go/internal/repo"
)

func (api *orchestratorAPI) registerCardRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /nodeCards", api.handleCreateNodeCard)
	mux.HandleFunc("GET /nodeCards", api.handleListNodeCards)
	mux.HandleFunc("DELETE /nodeCards", api.handleDeleteNodeCards)
	mux.HandleFunc("DELETE /nodeCards/{node}", api.handleDeleteNodeCard)

	mux.HandleFunc("POST /moduleCards", api.handleCreateModuleCard)
	mux.HandleFunc("GET /moduleCards", api.handleListModuleCards)
	mux.HandleFunc("DELETE /moduleCards", api.handleDeleteModuleCards)
	mux.HandleFunc("DELETE /moduleCards/{module}", api.handleDeleteModuleCard)

	mux.HandleFunc("POST /dataSourceCards", api.handleCreateDatasourceCard)
	mux.HandleFunc("GET /dataSourceCards", api.handleListDatasourceCards)
	mux.HandleFunc("DELETE /dataSourceCards", api.handleDeleteDatasourceCards)
	mux.HandleFunc("DELETE /dataSourceCards/{node}", api.handleDeleteDatasourceCard)

	mux.HandleFunc("GET /deploymentCertificates", api.handleListCertificates)
}

// odrlRelation is one entry in an asset's relation array.
type odrlRelation struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type odrlAsset struct {
	UID      string         `json:"uid"`
	Title    string         `json:"title"`
	Relation []odrlRelation `json:"relation"`
}

type odrlConstraint struct {
	LeftOperand  string `json:"leftOperand"`
	RightOperand string `json:"rightOperand"`
}

type odrlPermission struct {
	Target     string           `json:"target"`
	Action     string           `json:"action"`
	Constraint []odrlConstraint `json:"constraint"`
}

// odrlDocument is the subset of an ODRL policy the card endpoints read.
type odrlDocument struct {
	Asset      []odrlAsset      `json:"asset"`
	Permission []odrlPermission `json:"permission"`
}

func (a *odrlAsset) relation(key string) (string, bool) {
	for _, r := range a.Relation {
		if r.Type == key {
			return r.Value, true
		}
	}
	return "", false
}

func (a *odrlAsset) relationOr(key, fallback string) string {
	if v, ok := a.relation(key); ok {
		return v
	}
	return fallback
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// handleCreateNodeCard extracts a node card from an ODRL document: the
// first asset names the device and a memberOf relation assigns its zone.
func (api *orchestratorAPI) handleCreateNodeCard(w http.ResponseWriter, r *http.Request) {
	var doc odrlDocument
	if err := decodeJSON(r, &doc); err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(doc.Asset) == 0 {
		api.writeError(w, http.StatusBadRequest, "Invalid metadata: Missing asset data")
		return
	}
	asset := doc.Asset[0]

	card := domain.NodeCard{
		Name:         orUnknown(asset.Title),
		NodeID:       orUnknown(asset.UID),
		Zone:         orUnknown(asset.relationOr("memberOf", "")),
		DateReceived: nowUTC(),
	}
	if _, err := api.cards.CreateNodeCard(r.Context(), card); err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Node card received and saved",
		"nodeCard": card,
	})
}

func (api *orchestratorAPI) handleListNodeCards(w http.ResponseWriter, r *http.Request) {
	filter, err := cardFilter(r)
	if err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cards, err := api.cards.ListNodeCards(r.Context(), filter)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, cards)
}

func (api *orchestratorAPI) handleDeleteNodeCards(w http.ResponseWriter, r *http.Request) {
	n, err := api.cards.DeleteAllNodeCards(r.Context())
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deleted_count": n})
}

func (api *orchestratorAPI) handleDeleteNodeCard(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("node")
	if err := api.cards.DeleteNodeCard(r.Context(), nodeID); err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Node card deleted",
		"nodeid":  nodeID,
	})
}

// handleCreateModuleCard extracts a module card from an ODRL document: the
// first permission targets the module and its constraints carry the risk
// profile.
func (api *orchestratorAPI) handleCreateModuleCard(w http.ResponseWriter, r *http.Request) {
	var doc odrlDocument
	if err := decodeJSON(r, &doc); err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(doc.Permission) == 0 {
		api.writeError(w, http.StatusBadRequest, "Invalid ODRL document: Missing or invalid 'permission' section.")
		return
	}
	perm := doc.Permission[0]
	if perm.Target == "" {
		api.writeError(w, http.StatusBadRequest, "Invalid permission: missing 'target'")
		return
	}
	if perm.Action == "" {
		api.writeError(w, http.StatusBadRequest, "Invalid permission: missing 'action'")
		return
	}
	if !repo.IsID(perm.Target) {
		api.writeError(w, http.StatusBadRequest, "Invalid 'target': must be a valid module id")
		return
	}

	card := domain.ModuleCard{
		ModuleID:     perm.Target,
		Name:         perm.Action,
		DateReceived: nowUTC(),
	}
	for _, c := range perm.Constraint {
		switch c.LeftOperand {
		case "risk-level":
			card.RiskLevel = c.RightOperand
		case "input-type":
			card.InputType = c.RightOperand
		case "output-risk":
			card.OutputRisk = c.RightOperand
		}
	}
	if _, err := api.cards.CreateModuleCard(r.Context(), card); err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Module card received and saved",
		"moduleCard": card,
	})
}

func (api *orchestratorAPI) handleListModuleCards(w http.ResponseWriter, r *http.Request) {
	filter, err := cardFilter(r)
	if err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cards, err := api.cards.ListModuleCards(r.Context(), filter)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, cards)
}

func (api *orchestratorAPI) handleDeleteModuleCards(w http.ResponseWriter, r *http.Request) {
	n, err := api.cards.DeleteAllModuleCards(r.Context())
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deleted_count": n})
}

func (api *orchestratorAPI) handleDeleteModuleCard(w http.ResponseWriter, r *http.Request) {
	moduleID := r.PathValue("module")
	if !repo.IsID(moduleID) {
		api.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid module id %q", moduleID))
		return
	}
	if err := api.cards.DeleteModuleCard(r.Context(), moduleID); err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Module card deleted",
		"moduleid": moduleID,
	})
}

// handleCreateDatasourceCard extracts a data source card from an ODRL
// document: the first asset names the source and typed relations carry its
// kind, risk level and owning node.
func (api *orchestratorAPI) handleCreateDatasourceCard(w http.ResponseWriter, r *http.Request) {
	var doc odrlDocument
	if err := decodeJSON(r, &doc); err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(doc.Asset) == 0 {
		api.writeError(w, http.StatusBadRequest, "Invalid ODRL document: Asset not found")
		return
	}
	asset := doc.Asset[0]

	nodeID := asset.relationOr("nodeid", "")
	if !repo.IsID(nodeID) {
		api.writeError(w, http.StatusBadRequest, "Invalid nodeid (expected a valid node id)")
		return
	}
	card := domain.DatasourceCard{
		Name:         orUnknown(asset.Title),
		Type:         orUnknown(asset.relationOr("type", "")),
		RiskLevel:    orUnknown(asset.relationOr("risk-level", "")),
		NodeID:       nodeID,
		DateReceived: nowUTC(),
	}
	if _, err := api.cards.CreateDatasourceCard(r.Context(), card); err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"message": "Datasourcecard received and saved"})
}

func (api *orchestratorAPI) handleListDatasourceCards(w http.ResponseWriter, r *http.Request) {
	filter, err := cardFilter(r)
	if err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cards, err := api.cards.ListDatasourceCards(r.Context(), filter)
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, cards)
}

func (api *orchestratorAPI) handleDeleteDatasourceCards(w http.ResponseWriter, r *http.Request) {
	n, err := api.cards.DeleteAllDatasourceCards(r.Context())
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deleted_count": n})
}

func (api *orchestratorAPI) handleDeleteDatasourceCard(w http.ResponseWriter, r *http.Request) {
	nodeID := r.PathValue("node")
	if !repo.IsID(nodeID) {
		api.writeError(w, http.StatusBadRequest, "Invalid nodeid (expected a valid node id)")
		return
	}
	if err := api.cards.DeleteDatasourceCard(r.Context(), nodeID); err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Data source card deleted",
		"nodeid":  nodeID,
	})
}

func (api *orchestratorAPI) handleListCertificates(w http.ResponseWriter, r *http.Request) {
	var (
		certs []domain.DeploymentCertificate
		err   error
	)
	if deploymentID := r.URL.Query().Get("deployment"); deploymentID != "" {
		certs, err = api.certificates.ListByDeployment(r.Context(), deploymentID)
	} else {
		certs, err = api.certificates.List(r.Context())
	}
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, certs)
}

func cardFilter(r *http.Request) (repo.CardFilter, error) {
	after := r.URL.Query().Get("after")
	if after == "" {
		return repo.CardFilter{}, nil
	}
	if _, err := time.Parse(time.RFC3339, after); err != nil {
		return repo.CardFilter{}, fmt.Errorf("invalid 'after' timestamp: %w", err)
	}
	return repo.CardFilter{After: after}, nil
}
