package operator

import (
	"context"
	"sort"

	"github.com/dmitrymomot/crewplane/modules/alerts"
	"github.com/dmitrymomot/crewplane/modules/tenants"
	"github.com/dmitrymomot/crewplane/modules/usage"
)

// Dashboard is the operator landing view.
type Dashboard struct {
	TotalTenants   int                     `json:"total_tenants"`
	ActiveTenants  int                     `json:"active_tenants"`
	Trend          usage.Trend             `json:"trend"`
	AlertHistogram map[alerts.Severity]int `json:"alert_histogram"`
	TopTenants     []TenantScore           `json:"top_tenants"`
}

// TenantScore ranks a tenant by weighted activity.
type TenantScore struct {
	TenantID     string  `json:"tenant_id"`
	Name         string  `json:"name"`
	Score        float64 `json:"score"`
	Employees    int     `json:"employees"`
	APIRequests  int64   `json:"api_requests"`
	StorageBytes int64   `json:"storage_bytes"`
	ActiveAlerts int     `json:"active_alerts"`
}

const topTenantCount = 10

// Component weights of the activity score. API volume is normalized
// against the busiest tenant so one chatty integration cannot drown the
// other components.
const (
	weightEmployees = 0.4
	weightAPI       = 0.3
	weightStorage   = 0.2
	weightAlerts    = 0.1
)

var severityWeight = map[alerts.Severity]float64{
	alerts.SeverityCritical: 10,
	alerts.SeverityHigh:     5,
	alerts.SeverityMedium:   2,
	alerts.SeverityLow:      1,
}

const bytesPerGB = 1 << 30

// Dashboard aggregates the platform view: tenant counts, usage trend,
// alert severity histogram and the top tenants by weighted score.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	all, err := s.tenants.List(ctx, tenants.Filter{})
	if err != nil {
		return nil, err
	}
	trend, err := s.usage.Trends(ctx)
	if err != nil {
		return nil, err
	}
	histogram, err := s.alerts.SeverityHistogram(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := s.usage.CurrentPeriodMetrics(ctx)
	if err != nil {
		return nil, err
	}
	activeAlerts, err := s.alerts.List(ctx, alerts.Filter{Status: alerts.StatusActive})
	if err != nil {
		return nil, err
	}

	active := 0
	names := make(map[string]string, len(all))
	for _, t := range all {
		names[t.ID] = t.Name
		if t.Status == tenants.StatusActive {
			active++
		}
	}

	return &Dashboard{
		TotalTenants:   len(all),
		ActiveTenants:  active,
		Trend:          trend,
		AlertHistogram: histogram,
		TopTenants:     rankTenants(metrics, activeAlerts, names, topTenantCount),
	}, nil
}

func rankTenants(metrics []usage.Metric, activeAlerts []alerts.Alert, names map[string]string, limit int) []TenantScore {
	alertWeight := make(map[string]float64)
	alertCount := make(map[string]int)
	for _, a := range activeAlerts {
		alertWeight[a.TenantID] += severityWeight[a.Severity]
		alertCount[a.TenantID]++
	}

	var maxAPI int64
	for _, m := range metrics {
		if m.APIRequestCount > maxAPI {
			maxAPI = m.APIRequestCount
		}
	}

	scores := make([]TenantScore, 0, len(metrics))
	for _, m := range metrics {
		normAPI := 0.0
		if maxAPI > 0 {
			normAPI = float64(m.APIRequestCount) / float64(maxAPI)
		}
		score := weightEmployees*float64(m.EmployeeCount) +
			weightAPI*normAPI +
			weightStorage*float64(m.StorageBytesUsed)/bytesPerGB +
			weightAlerts*alertWeight[m.TenantID]

		scores = append(scores, TenantScore{
			TenantID:     m.TenantID,
			Name:         names[m.TenantID],
			Score:        score,
			Employees:    m.EmployeeCount,
			APIRequests:  m.APIRequestCount,
			StorageBytes: m.StorageBytesUsed,
			ActiveAlerts: alertCount[m.TenantID],
		})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if len(scores) > limit {
		scores = scores[:limit]
	}
	return scores
}
