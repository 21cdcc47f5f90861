package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/pricetracker/internal/core"
)

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Error: core.MapError(err).Message})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type kindInfo struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Parent  string   `json:"parent,omitempty"`
}

func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	kinds := core.Kinds()
	out := make([]kindInfo, 0, len(kinds))
	for _, k := range kinds {
		spec, _ := core.LookupKind(k)
		out = append(out, kindInfo{Name: k.String(), Columns: spec.Columns, Parent: spec.Parent.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

type priceKindInfo struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Measure     string `json:"measure"`
}

func (s *Server) handlePriceKinds(w http.ResponseWriter, r *http.Request) {
	kinds := core.PriceKinds()
	out := make([]priceKindInfo, 0, len(kinds))
	for _, k := range kinds {
		info, _ := core.LookupPriceKind(k)
		out = append(out, priceKindInfo{
			Name: k.String(), Category: info.Category, Subcategory: info.Subcategory, Measure: string(info.Measure),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type targetResponse struct {
	Currency string   `json:"currency"`
	Units    []string `json:"units"`
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	units := s.deps.Target.Units
	if units == nil {
		units = []string{}
	}
	writeJSON(w, http.StatusOK, targetResponse{Currency: s.deps.Target.Currency, Units: units})
}

type unitConversionResponse struct {
	Quantity decimal.Decimal `json:"quantity"`
	Unit     string          `json:"unit"`
	Result   decimal.Decimal `json:"result"`
	ToUnit   string          `json:"to_unit"`
}

// handleConvertUnit serves GET /api/convert/unit?quantity=2.5&unit=kg&to_unit=g.
func (s *Server) handleConvertUnit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	quantity, err := decimalParam(q.Get("quantity"), "quantity")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	unit, toUnit := strings.TrimSpace(q.Get("unit")), strings.TrimSpace(q.Get("to_unit"))
	if err := requireParams(map[string]string{"unit": unit, "to_unit": toUnit}); err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.deps.Normalizer.ConvertUnit(r.Context(), quantity, unit, toUnit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unitConversionResponse{Quantity: quantity, Unit: unit, Result: result, ToUnit: toUnit})
}

type currencyConversionResponse struct {
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Result     decimal.Decimal `json:"result"`
	ToCurrency string          `json:"to_currency"`
	Date       string          `json:"date"`
}

// handleConvertCurrency serves
// GET /api/convert/currency?price=10&currency=EUR&to_currency=USD&date=2024-01-15.
func (s *Server) handleConvertCurrency(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	price, err := decimalParam(q.Get("price"), "price")
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(q.Get("currency")))
	toCurrency := strings.ToUpper(strings.TrimSpace(q.Get("to_currency")))
	if err := requireParams(map[string]string{"currency": currency, "to_currency": toCurrency}); err != nil {
		s.respondError(w, r, err)
		return
	}
	date, err := core.ParseDate(q.Get("date"))
	if err != nil {
		s.respondError(w, r, &core.ValidationError{Field: "date", Value: q.Get("date"), Message: "invalid date format (use YYYY-MM-DD)"})
		return
	}

	result, err := s.deps.Normalizer.ConvertCurrency(r.Context(), price, currency, toCurrency, date)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, currencyConversionResponse{
		Price: price, Currency: currency, Result: result, ToCurrency: toCurrency, Date: date.Format(time.DateOnly),
	})
}

func decimalParam(raw, name string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Decimal{}, &core.ValidationError{Field: name, Message: "required parameter is missing"}
	}
	d, err := core.ParseDecimal(raw)
	if err != nil {
		return decimal.Decimal{}, &core.ValidationError{Field: name, Value: raw, Message: "invalid number format"}
	}
	return d, nil
}

func requireParams(params map[string]string) error {
	for _, name := range []string{"unit", "to_unit", "currency", "to_currency"} {
		if v, ok := params[name]; ok && v == "" {
			return &core.ValidationError{Field: name, Message: "required parameter is missing"}
		}
	}
	return nil
}
