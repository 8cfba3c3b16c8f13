package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/legacore/legacore/control-plane/internal/credentials"
	"github.com/legacore/legacore/control-plane/internal/router"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

type systemStatus struct {
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	CurrentProvider string    `json:"currentProvider"`
	CurrentModel    string    `json:"currentModel"`
}

type providerSummary struct {
	Name        string           `json:"name"`
	Enabled     bool             `json:"enabled"`
	Status      string           `json:"status"`
	Model       string           `json:"model"`
	KeySource   models.KeySource `json:"keySource"`
	StatusColor string           `json:"statusColor"`
}

type validationSummary struct {
	HasAnyProvider      bool     `json:"hasAnyProvider"`
	RecommendedProvider string   `json:"recommendedProvider"`
	Errors              []string `json:"errors"`
	Warnings            []string `json:"warnings"`
}

type routerSummary struct {
	ActiveProviders  []router.ActiveProvider `json:"activeProviders"`
	RequestCounts    map[string]int64        `json:"requestCounts"`
	LastUsedProvider string                  `json:"lastUsedProvider,omitempty"`
	FallbackActive   bool                    `json:"fallbackActive"`
}

type aiStatusResponse struct {
	System     systemStatus      `json:"system"`
	Providers  []providerSummary `json:"providers"`
	Validation validationSummary `json:"validation"`
	Router     routerSummary     `json:"router"`
}

// AIStatus reports credential validation and router state.
func (h *Handlers) AIStatus(w http.ResponseWriter, r *http.Request) {
	st := h.Router.Status()
	v := st.Validation

	provider, model := credentials.CurrentModel(v)
	health := "degraded"
	if v.HasAnyProvider {
		health = "healthy"
	}

	providers := make([]providerSummary, 0, len(models.ProviderNames))
	for _, name := range models.ProviderNames {
		pc := v.Provider(name)
		label, color := "No Key", "red"
		if pc.HasValidKey {
			switch pc.Status {
			case models.StatusActive:
				label, color = "Valid", "green"
			case models.StatusFallback:
				label, color = "Using Fallback", "yellow"
			default:
				label = "Error"
			}
		}
		m := pc.Model
		if m == "" {
			m = "N/A"
		}
		providers = append(providers, providerSummary{
			Name:        strings.ToUpper(name),
			Enabled:     pc.Enabled,
			Status:      label,
			Model:       m,
			KeySource:   pc.KeySource,
			StatusColor: color,
		})
	}

	respondData(w, http.StatusOK, aiStatusResponse{
		System: systemStatus{
			Status:          health,
			Timestamp:       time.Now().UTC(),
			CurrentProvider: provider,
			CurrentModel:    model,
		},
		Providers: providers,
		Validation: validationSummary{
			HasAnyProvider:      v.HasAnyProvider,
			RecommendedProvider: v.RecommendedProvider,
			Errors:              v.Errors,
			Warnings:            v.Warnings,
		},
		Router: routerSummary{
			ActiveProviders:  st.ActiveProviders,
			RequestCounts:    st.RequestCounts,
			LastUsedProvider: st.LastUsedProvider,
			FallbackActive:   len(v.Warnings) > 0,
		},
	})
}
