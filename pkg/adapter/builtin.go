package adapter

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/models"
)

// base carries the declarative half of the adapter contract. The built-in
// adapters embed it and provide Execute.
type base struct {
	*httpSource
	required []models.Slot
	deps     []string
	modes    []models.Mode
}

func (b *base) Name() string                       { return b.name }
func (b *base) RequiredIdentifiers() []models.Slot { return b.required }
func (b *base) Dependencies() []string             { return b.deps }
func (b *base) Modes() []models.Mode               { return b.modes }

// BuiltinNames lists the closed set of built-in adapters.
func BuiltinNames() []string {
	return []string{
		"tracking-api", "network-relationship", "historical-warehouse",
		"recent-logs", "historical-logs", "rpa-scraper", "internal-config",
		"callback-history", "ocean-events", "documentation-search",
		"chat-history", "ticket-system",
	}
}

// NewBuiltinRegistry constructs every enabled built-in adapter from its
// configuration record and wraps it with the resilience middleware.
func NewBuiltinRegistry(cfg *config.Config) (*Registry, error) {
	reg := NewRegistry()
	for _, name := range BuiltinNames() {
		ac := cfg.Adapter(name)
		if ac.Disabled {
			continue
		}
		a, err := newBuiltin(name, ac)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(Wrap(a, ac)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func newBuiltin(name string, cfg config.AdapterConfig) (Adapter, error) {
	src := newHTTPSource(name, cfg)
	switch name {
	case "tracking-api":
		return &trackingAPI{base: base{httpSource: src}}, nil
	case "network-relationship":
		return &networkRelationship{base: base{
			httpSource: src,
			required:   []models.Slot{models.SlotShipperID, models.SlotCarrierID},
		}}, nil
	case "historical-warehouse":
		return &historicalWarehouse{base: base{
			httpSource: src,
			deps:       []string{"network-relationship"},
		}}, nil
	case "recent-logs":
		return &logSearch{base: base{httpSource: src}, recent: true}, nil
	case "historical-logs":
		return &logSearch{base: base{httpSource: src}}, nil
	case "rpa-scraper":
		return &rpaScraper{base: base{
			httpSource: src,
			required:   []models.Slot{models.SlotCarrierID},
		}}, nil
	case "internal-config":
		return &internalConfig{base: base{
			httpSource: src,
			required:   []models.Slot{models.SlotCarrierID},
		}}, nil
	case "callback-history":
		return &callbackHistory{base: base{
			httpSource: src,
			required:   []models.Slot{models.SlotShipperID},
			deps:       []string{"tracking-api"},
		}}, nil
	case "ocean-events":
		return &oceanEvents{base: base{
			httpSource: src,
			modes:      []models.Mode{models.ModeOcean},
		}}, nil
	case "documentation-search":
		return &textSearch{base: base{httpSource: src}, path: "/docs/search", label: "documentation"}, nil
	case "chat-history":
		return &textSearch{base: base{httpSource: src}, path: "/chats/search", label: "chat history"}, nil
	case "ticket-system":
		return &textSearch{base: base{httpSource: src}, path: "/tickets/search", label: "similar ticket"}, nil
	default:
		return nil, fmt.Errorf("unknown builtin adapter %q", name)
	}
}

// primaryIdentifier picks the strongest available tracking identifier.
func primaryIdentifier(ids models.Identifiers) (models.Slot, string, bool) {
	for _, slot := range []models.Slot{
		models.SlotTrackingID, models.SlotLoadNumber, models.SlotContainerNumber,
		models.SlotBookingNumber, models.SlotBillOfLading, models.SlotAWB,
		models.SlotProNumber, models.SlotRailCar,
	} {
		if v, ok := ids[slot]; ok && v != "" {
			return slot, v, true
		}
	}
	return "", "", false
}

// trackingAPI looks a shipment up in the tracking platform. A not-found
// response is a normal outcome and yields critical evidence of absence.
type trackingAPI struct {
	base
}

func (a *trackingAPI) Execute(ctx context.Context, q Query) (*Result, error) {
	slot, value, ok := primaryIdentifier(q.Identifiers)
	if !ok {
		return &Result{}, nil
	}
	var load struct {
		LoadID          string `json:"load_id"`
		TrackingEnabled bool   `json:"tracking_enabled"`
		Status          string `json:"status"`
		LastUpdate      string `json:"last_update"`
	}
	raw, err := a.getJSON(ctx, "/v1/loads/"+url.PathEscape(value), nil, &load)
	if err != nil {
		if KindOf(err) == ErrNotFound {
			return &Result{Findings: []Finding{{
				Finding:          fmt.Sprintf("load %s not found in tracking system (lookup by %s)", value, slot),
				Supports:         true,
				Weight:           models.WeightCritical,
				SourceConfidence: 1.0,
				Raw:              raw,
			}}}, nil
		}
		return nil, err
	}
	res := &Result{Context: map[string]string{"load_id": load.LoadID}}
	if !load.TrackingEnabled {
		res.Findings = append(res.Findings, Finding{
			Finding:          fmt.Sprintf("tracking not requested for load %s", value),
			Supports:         true,
			Weight:           models.WeightCritical,
			SourceConfidence: 1.0,
			Raw:              raw,
		})
		return res, nil
	}
	res.Findings = append(res.Findings, Finding{
		Finding:          fmt.Sprintf("load %s present, status %q, last update %s", value, load.Status, load.LastUpdate),
		Supports:         false,
		Weight:           models.WeightSupporting,
		SourceConfidence: 0.9,
		Raw:              raw,
	})
	return res, nil
}

// networkRelationship checks for an active shipper-carrier relationship and
// carries its id forward for dependent checks.
type networkRelationship struct {
	base
}

func (a *networkRelationship) Execute(ctx context.Context, q Query) (*Result, error) {
	shipper := q.Identifiers[models.SlotShipperID]
	carrier := q.Identifiers[models.SlotCarrierID]
	params := url.Values{"shipper": {shipper}, "carrier": {carrier}}
	var out struct {
		Relationships []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"relationships"`
	}
	raw, err := a.getJSON(ctx, "/v1/relationships", params, &out)
	if err != nil {
		if KindOf(err) == ErrNotFound {
			out.Relationships = nil
		} else {
			return nil, err
		}
	}
	for _, rel := range out.Relationships {
		if rel.Status == "active" {
			return &Result{
				Findings: []Finding{{
					Finding:          fmt.Sprintf("active relationship %s between %s and %s", rel.ID, shipper, carrier),
					Supports:         false,
					Weight:           models.WeightCritical,
					SourceConfidence: 1.0,
					Raw:              raw,
				}},
				Context: map[string]string{"relationship_id": rel.ID},
			}, nil
		}
	}
	return &Result{Findings: []Finding{{
		Finding:          fmt.Sprintf("no active relationship between %s and %s", shipper, carrier),
		Supports:         true,
		Weight:           models.WeightCritical,
		SourceConfidence: 1.0,
		Raw:              raw,
	}}}, nil
}

// historicalWarehouse searches the data warehouse for carrier files that
// failed to match the load. Historical queries are chunked by the
// configured date-range window.
type historicalWarehouse struct {
	base
}

func (a *historicalWarehouse) Execute(ctx context.Context, q Query) (*Result, error) {
	_, value, ok := primaryIdentifier(q.Identifiers)
	if !ok {
		return &Result{}, nil
	}
	res := &Result{}
	for _, chunk := range chunkWindow(q.Window, a.cfg.ChunkDays) {
		body := map[string]string{
			"reference":       value,
			"relationship_id": q.Context["relationship_id"],
			"from":            chunk.From.Format(time.RFC3339),
			"to":              chunk.To.Format(time.RFC3339),
		}
		var out struct {
			Unmatched []struct {
				FileID    string `json:"file_id"`
				Carrier   string `json:"carrier"`
				Reference string `json:"reference"`
			} `json:"unmatched"`
		}
		raw, err := a.postJSON(ctx, "/v1/files/search", body, &out)
		if err != nil {
			return nil, err
		}
		for _, f := range out.Unmatched {
			res.Findings = append(res.Findings, Finding{
				Finding:          fmt.Sprintf("unmatched file %s from carrier %s references %s", f.FileID, f.Carrier, f.Reference),
				Supports:         true,
				Weight:           models.WeightCritical,
				SourceConfidence: 0.9,
				Raw:              raw,
			})
		}
	}
	return res, nil
}

// logSearch queries the logging platform, either the hot recent index or
// the chunked historical archive.
type logSearch struct {
	base
	recent bool
}

func (a *logSearch) Execute(ctx context.Context, q Query) (*Result, error) {
	_, value, ok := primaryIdentifier(q.Identifiers)
	if !ok {
		return &Result{}, nil
	}
	windows := []Window{q.Window}
	path := "/v1/logs/recent"
	if !a.recent {
		path = "/v1/logs/archive"
		windows = chunkWindow(q.Window, a.cfg.ChunkDays)
	}
	res := &Result{}
	for _, w := range windows {
		params := url.Values{"reference": {value}}
		if !w.From.IsZero() {
			params.Set("from", w.From.Format(time.RFC3339))
			params.Set("to", w.To.Format(time.RFC3339))
		}
		var out struct {
			Entries []struct {
				Level   string `json:"level"`
				Message string `json:"message"`
				Count   int    `json:"count"`
			} `json:"entries"`
		}
		raw, err := a.getJSON(ctx, path, params, &out)
		if err != nil {
			if KindOf(err) == ErrNotFound {
				continue
			}
			return nil, err
		}
		for _, entry := range out.Entries {
			if entry.Level != "error" && entry.Level != "warn" {
				continue
			}
			res.Findings = append(res.Findings, Finding{
				Finding:          fmt.Sprintf("%s (%d occurrences)", entry.Message, entry.Count),
				Supports:         true,
				Weight:           models.WeightSupporting,
				SourceConfidence: 0.8,
				Raw:              raw,
			})
		}
	}
	return res, nil
}

// rpaScraper reports the state of the portal scraping jobs for the carrier.
type rpaScraper struct {
	base
}

func (a *rpaScraper) Execute(ctx context.Context, q Query) (*Result, error) {
	carrier := q.Identifiers[models.SlotCarrierID]
	var out struct {
		Jobs []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"jobs"`
	}
	raw, err := a.getJSON(ctx, "/v1/scrape-jobs", url.Values{"carrier": {carrier}}, &out)
	if err != nil {
		if KindOf(err) == ErrNotFound {
			return &Result{}, nil
		}
		return nil, err
	}
	res := &Result{}
	for _, job := range out.Jobs {
		if job.Status != "failed" {
			continue
		}
		res.Findings = append(res.Findings, Finding{
			Finding:          fmt.Sprintf("scrape failed for carrier %s, job %s: %s", carrier, job.ID, job.Error),
			Supports:         true,
			Weight:           models.WeightCritical,
			SourceConfidence: 0.9,
			Raw:              raw,
		})
	}
	return res, nil
}

// internalConfig inspects the carrier's integration configuration.
type internalConfig struct {
	base
}

func (a *internalConfig) Execute(ctx context.Context, q Query) (*Result, error) {
	carrier := q.Identifiers[models.SlotCarrierID]
	var out struct {
		ELDEnabled      bool     `json:"eld_enabled"`
		TrackingMethods []string `json:"tracking_methods"`
	}
	raw, err := a.getJSON(ctx, "/v1/carriers/"+url.PathEscape(carrier)+"/config", nil, &out)
	if err != nil {
		if KindOf(err) == ErrNotFound {
			return &Result{Findings: []Finding{{
				Finding:          fmt.Sprintf("no integration configuration on file for carrier %s", carrier),
				Supports:         true,
				Weight:           models.WeightSupporting,
				SourceConfidence: 0.9,
				Raw:              raw,
			}}}, nil
		}
		return nil, err
	}
	res := &Result{}
	if !out.ELDEnabled && q.Mode == models.ModeOTR {
		res.Findings = append(res.Findings, Finding{
			Finding:          fmt.Sprintf("eld integration not enabled for carrier %s", carrier),
			Supports:         true,
			Weight:           models.WeightCritical,
			SourceConfidence: 1.0,
			Raw:              raw,
		})
	}
	if len(out.TrackingMethods) == 0 {
		res.Findings = append(res.Findings, Finding{
			Finding:          fmt.Sprintf("carrier %s has no tracking methods configured", carrier),
			Supports:         true,
			Weight:           models.WeightSupporting,
			SourceConfidence: 0.9,
			Raw:              raw,
		})
	}
	return res, nil
}

// callbackHistory checks delivery of tracking callbacks to the shipper.
type callbackHistory struct {
	base
}

func (a *callbackHistory) Execute(ctx context.Context, q Query) (*Result, error) {
	params := url.Values{"shipper": {q.Identifiers[models.SlotShipperID]}}
	if loadID := q.Context["load_id"]; loadID != "" {
		params.Set("load_id", loadID)
	}
	var out struct {
		Deliveries []struct {
			Endpoint string `json:"endpoint"`
			Status   int    `json:"status"`
			Failures int    `json:"failures"`
		} `json:"deliveries"`
	}
	raw, err := a.getJSON(ctx, "/v1/callbacks", params, &out)
	if err != nil {
		if KindOf(err) == ErrNotFound {
			return &Result{}, nil
		}
		return nil, err
	}
	res := &Result{}
	for _, d := range out.Deliveries {
		if d.Failures == 0 {
			continue
		}
		res.Findings = append(res.Findings, Finding{
			Finding:          fmt.Sprintf("callback delivery failed %d times to %s (last HTTP %d)", d.Failures, d.Endpoint, d.Status),
			Supports:         true,
			Weight:           models.WeightCritical,
			SourceConfidence: 1.0,
			Raw:              raw,
		})
	}
	return res, nil
}

// staleVesselAge is how old a vessel position may be before it counts as
// stale.
const staleVesselAge = 48 * time.Hour

// oceanEvents checks vessel movement freshness for ocean shipments.
type oceanEvents struct {
	base
}

func (a *oceanEvents) Execute(ctx context.Context, q Query) (*Result, error) {
	_, value, ok := primaryIdentifier(q.Identifiers)
	if !ok {
		return &Result{}, nil
	}
	var out struct {
		Vessel       string    `json:"vessel"`
		Voyage       string    `json:"voyage"`
		LastPosition time.Time `json:"last_position"`
	}
	raw, err := a.getJSON(ctx, "/v1/voyages", url.Values{"reference": {value}}, &out)
	if err != nil {
		if KindOf(err) == ErrNotFound {
			return &Result{}, nil
		}
		return nil, err
	}
	if time.Since(out.LastPosition) > staleVesselAge {
		return &Result{Findings: []Finding{{
			Finding:          fmt.Sprintf("vessel %s voyage %s position stale since %s", out.Vessel, out.Voyage, out.LastPosition.Format(time.RFC3339)),
			Supports:         true,
			Weight:           models.WeightCritical,
			SourceConfidence: 0.9,
			Raw:              raw,
		}}}, nil
	}
	return &Result{Findings: []Finding{{
		Finding:          fmt.Sprintf("vessel %s position current as of %s", out.Vessel, out.LastPosition.Format(time.RFC3339)),
		Supports:         false,
		Weight:           models.WeightAuxiliary,
		SourceConfidence: 0.9,
		Raw:              raw,
	}}}, nil
}

// textSearch backs the auxiliary knowledge adapters: documentation,
// prior support chats, and similar tickets. Their findings carry low
// weight and never decide an investigation on their own.
type textSearch struct {
	base
	path  string
	label string
}

func (a *textSearch) Execute(ctx context.Context, q Query) (*Result, error) {
	_, value, _ := primaryIdentifier(q.Identifiers)
	params := url.Values{"q": {value}, "carrier": {q.Identifiers[models.SlotCarrierID]}}
	var out struct {
		Hits []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"hits"`
	}
	raw, err := a.getJSON(ctx, a.path, params, &out)
	if err != nil {
		if KindOf(err) == ErrNotFound {
			return &Result{}, nil
		}
		return nil, err
	}
	res := &Result{}
	for i, hit := range out.Hits {
		if i >= 3 {
			break
		}
		res.Findings = append(res.Findings, Finding{
			Finding:          fmt.Sprintf("%s: %s: %s", a.label, hit.Title, hit.Snippet),
			Supports:         true,
			Weight:           models.WeightAuxiliary,
			SourceConfidence: 0.6,
			Raw:              raw,
		})
	}
	return res, nil
}

// chunkWindow splits a historical window into date-range chunks. A zero
// window or zero chunk size yields the window unchanged.
func chunkWindow(w Window, days int) []Window {
	if days <= 0 || w.From.IsZero() || w.To.IsZero() || !w.From.Before(w.To) {
		return []Window{w}
	}
	step := time.Duration(days) * 24 * time.Hour
	var out []Window
	for from := w.From; from.Before(w.To); from = from.Add(step) {
		to := from.Add(step)
		if to.After(w.To) {
			to = w.To
		}
		out = append(out, Window{From: from, To: to})
	}
	return out
}

var (
	_ Adapter = (*trackingAPI)(nil)
	_ Adapter = (*networkRelationship)(nil)
	_ Adapter = (*historicalWarehouse)(nil)
	_ Adapter = (*logSearch)(nil)
	_ Adapter = (*rpaScraper)(nil)
	_ Adapter = (*internalConfig)(nil)
	_ Adapter = (*callbackHistory)(nil)
	_ Adapter = (*oceanEvents)(nil)
	_ Adapter = (*textSearch)(nil)
	_ Adapter = (*resilient)(nil)
)
