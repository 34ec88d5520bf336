package nexusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD value from a query string or body.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(s))
}

// DateRange selects dashboard data between two dates, inclusive. The
// wire format is {"start","end"} with YYYY-MM-DD dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}{
		Start: r.Start.Format(dateLayout),
		End:   r.End.Format(dateLayout),
	})
}

// Validate rejects inverted or zero ranges.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("date range requires both start and end")
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("date range end %s precedes start %s",
			r.End.Format(dateLayout), r.Start.Format(dateLayout))
	}
	return nil
}

// Dataset identifies one dashboard data endpoint. Ranged datasets POST
// the date range as the request body; the rest are plain GETs.
type Dataset struct {
	Name   string
	Path   string
	Method string
	Ranged bool
}

// Datasets is the full catalog of dashboard endpoints consumed for
// display and export. Paths are part of the observed backend contract.
var Datasets = []Dataset{
	{Name: "yield_total", Path: "/api/yield/total/range", Method: http.MethodPost, Ranged: true},
	{Name: "savings_total", Path: "/api/savings/total/range", Method: http.MethodPost, Ranged: true},
	{Name: "performance", Path: "/api/performance/range", Method: http.MethodPost, Ranged: true},
	{Name: "devices", Path: "/api/devices", Method: http.MethodGet},
	{Name: "plants", Path: "/api/plants", Method: http.MethodGet},
	{Name: "earnings_history", Path: "/api/earnings/history", Method: http.MethodGet},
	{Name: "yield_monthly", Path: "/api/yield/monthly", Method: http.MethodGet},
	{Name: "earnings_monthly_change", Path: "/api/earnings/monthly/change", Method: http.MethodGet},
	{Name: "plant_count", Path: "/api/plants/count", Method: http.MethodGet},
}

// DatasetByName looks a dataset up in the catalog.
func DatasetByName(name string) (Dataset, bool) {
	for _, ds := range Datasets {
		if ds.Name == name {
			return ds, true
		}
	}
	return Dataset{}, false
}

// FetchDataset retrieves one dashboard dataset, decoded as raw JSON for
// the caller to shape.
func (a *Authed) FetchDataset(ctx context.Context, ds Dataset, r DateRange) (json.RawMessage, error) {
	var body any
	if ds.Ranged {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		body = r
	}
	var raw json.RawMessage
	if err := a.do(ctx, ds.Method, ds.Path, body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
