package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/wasmfleet-labs/wasmfleet-go/internal/domain"
)

func (api *orchestratorAPI) registerZoneRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /zoneRiskLevels", api.handleIngestZones)
	mux.HandleFunc("GET /zoneRiskLevels", api.handleGetZones)
	mux.HandleFunc("DELETE /zoneRiskLevels", api.handleDeleteZones)
}

type zoneRiskMapping struct {
	Zone              string   `json:"zone"`
	AllowedRiskLevels []string `json:"allowed_risk_levels"`
}

type riskLevelsMetadata struct {
	Levels      []string  `json:"levels"`
	LastUpdated time.Time `json:"last_updated"`
}

// zonePermission is one permission entry of a zone policy document. The
// target names a risk level and zone constraints list where it is allowed.
// rightOperand may be a single zone name or an array of them.
type zonePermission struct {
	Target     string `json:"target"`
	Constraint []struct {
		LeftOperand  string          `json:"leftOperand"`
		RightOperand json.RawMessage `json:"rightOperand"`
	} `json:"constraint"`
}

type zonePolicyDocument struct {
	Permission []zonePermission `json:"permission"`
}

// handleIngestZones parses a zone policy document into per-zone allowed
// risk level mappings plus the sorted set of known risk levels, and
// replaces the stored definitions.
func (api *orchestratorAPI) handleIngestZones(w http.ResponseWriter, r *http.Request) {
	var doc zonePolicyDocument
	if err := decodeJSON(r, &doc); err != nil {
		api.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	mappings, levels := extractZoneMappings(&doc)
	now := nowUTC()

	for _, m := range mappings {
		zone := domain.Zone{
			Zone:              m.Zone,
			AllowedRiskLevels: m.AllowedRiskLevels,
			LastUpdated:       now,
		}
		if _, err := api.zones.Upsert(r.Context(), zone); err != nil {
			api.fail(w, r, err)
			return
		}
	}
	if err := api.zones.SetRiskLevels(r.Context(), levels); err != nil {
		api.fail(w, r, err)
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Zone and risk-level definitions parsed and saved successfully",
		"zones":      mappings,
		"riskLevels": riskLevelsMetadata{Levels: levels, LastUpdated: now},
	})
}

func (api *orchestratorAPI) handleGetZones(w http.ResponseWriter, r *http.Request) {
	docs, err := api.zones.List(r.Context())
	if err != nil {
		api.fail(w, r, err)
		return
	}

	mappings := make([]zoneRiskMapping, 0, len(docs))
	var riskLevels *riskLevelsMetadata
	for _, z := range docs {
		if z.Type == domain.ZoneTypeRiskLevels {
			riskLevels = &riskLevelsMetadata{Levels: z.Levels, LastUpdated: z.LastUpdated}
			continue
		}
		if z.Zone == "" {
			continue
		}
		mappings = append(mappings, zoneRiskMapping{
			Zone:              z.Zone,
			AllowedRiskLevels: z.AllowedRiskLevels,
		})
	}

	api.writeJSON(w, http.StatusOK, map[string]any{
		"zones":      mappings,
		"riskLevels": riskLevels,
	})
}

func (api *orchestratorAPI) handleDeleteZones(w http.ResponseWriter, r *http.Request) {
	n, err := api.zones.DeleteAll(r.Context())
	if err != nil {
		api.fail(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"deleted_count": n})
}

// extractZoneMappings inverts the permission list: each permission's target
// is a risk level and its zone constraints say which zones allow it. The
// returned level list is sorted and deduplicated.
func extractZoneMappings(doc *zonePolicyDocument) ([]zoneRiskMapping, []string) {
	mappings := make([]zoneRiskMapping, 0, len(doc.Permission))
	levelSet := make(map[string]bool)

	for _, perm := range doc.Permission {
		level := perm.Target
		if level == "" {
			level = "unknown"
		}
		levelSet[level] = true

		for _, c := range perm.Constraint {
			if c.LeftOperand != "zone" {
				continue
			}
			for _, zone := range operandZones(c.RightOperand) {
				i := indexOfZone(mappings, zone)
				if i < 0 {
					mappings = append(mappings, zoneRiskMapping{Zone: zone})
					i = len(mappings) - 1
				}
				mappings[i].AllowedRiskLevels = append(mappings[i].AllowedRiskLevels, level)
			}
		}
	}

	levels := make([]string, 0, len(levelSet))
	for level := range levelSet {
		levels = append(levels, level)
	}
	sort.Strings(levels)
	return mappings, levels
}

func operandZones(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}
	}
	return nil
}

func indexOfZone(mappings []zoneRiskMapping, zone string) int {
	for i, m := range mappings {
		if m.Zone == zone {
			return i
		}
	}
	return -1
}
