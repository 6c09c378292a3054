package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avoscheidt/fiskal/internal/ruleset"
	"github.com/avoscheidt/fiskal/internal/storage/memory"
	"github.com/avoscheidt/fiskal/internal/tax"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type recordResp struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	TaxYear   int       `json:"tax_year"`
	Status    string    `json:"status"`
	InputHash string    `json:"input_hash"`
	CreatedAt time.Time `json:"created_at"`
	Results   []struct {
		Jurisdiction       string `json:"jurisdiction"`
		GrossCapitalGains  string `json:"gross_capital_gains"`
		AllowanceUsed      string `json:"allowance_used"`
		AllowanceRemaining string `json:"allowance_remaining"`
		TaxComputed        string `json:"tax_computed"`
		NetTaxDue          string `json:"net_tax_due"`
	} `json:"results"`
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// setup seeds one German owner holding an equity fund: 100 units bought at 10
// in 2020, 60 sold at 15 mid-2023, full 1,000 allowance elected.
func setup(t *testing.T) (*memory.Store, http.Handler, uuid.UUID) {
	t.Helper()
	store := memory.New()
	owner := tax.Owner{ID: uuid.New()}
	store.SeedOwner(owner)
	store.SeedProfile(tax.TaxProfile{
		OwnerID:          owner.ID,
		Primary:          tax.JurisdictionDE,
		Jurisdictions:    []tax.Jurisdiction{tax.JurisdictionDE},
		AllowanceElected: decimal.NewFromInt(1000),
	})
	posID := uuid.New()
	store.SeedPosition(tax.Position{
		ID: posID, OwnerID: owner.ID, Name: "World Equity Fund",
		AssetClass: tax.AssetClassFund, FundCategory: tax.FundCategoryEquity,
		CostMethod: tax.CostMethodFIFO, Currency: "EUR",
		Quantity: decimal.NewFromInt(100),
		Lots: []tax.Lot{{
			ID: uuid.New(), PositionID: posID,
			AcquisitionDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			Quantity:        decimal.NewFromInt(100),
			UnitCost:        decimal.NewFromInt(10),
			Currency:        "EUR",
		}},
	})
	store.SeedTransaction(tax.Transaction{
		ID: uuid.New(), OwnerID: owner.ID, PositionID: posID,
		Type: tax.TransactionTypeSell,
		Date: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		Quantity: decimal.NewFromInt(60), Amount: decimal.NewFromInt(900),
		Currency: "EUR", Source: tax.JurisdictionDE,
	})
	h := New(store, store, ruleset.DefaultRegistry(), testLogger()).Handler()
	return store, h, owner.ID
}

func postJSON(t *testing.T, h http.Handler, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostCalculation_ValidAndInvalid(t *testing.T) {
	_, h, ownerID := setup(t)

	rec := postJSON(t, h, "/v1/calculations", map[string]any{
		"owner_id": ownerID.String(),
		"tax_year": 2023,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var rr recordResp
	if err := json.Unmarshal(rec.Body.Bytes(), &rr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Status != string(tax.RecordStatusValidated) {
		t.Fatalf("status: got %s", rr.Status)
	}
	if len(rr.Results) != 1 || rr.Results[0].Jurisdiction != "DE" {
		t.Fatalf("unexpected results: %+v", rr.Results)
	}
	de := rr.Results[0]
	if de.GrossCapitalGains != "300.00" || de.AllowanceUsed != "210.00" || de.AllowanceRemaining != "790.00" {
		t.Fatalf("worked example drifted: %+v", de)
	}
	if de.TaxComputed != "0.00" {
		t.Fatalf("tax computed: got %s", de.TaxComputed)
	}

	// invalid: missing owner
	rec = postJSON(t, h, "/v1/calculations", map[string]any{"tax_year": 2023})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	// unknown owner
	rec = postJSON(t, h, "/v1/calculations", map[string]any{
		"owner_id": uuid.New().String(), "tax_year": 2023,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}

	// year with no published rule table
	rec = postJSON(t, h, "/v1/calculations", map[string]any{
		"owner_id": ownerID.String(), "tax_year": 2010,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	var er errResp
	_ = json.Unmarshal(rec.Body.Bytes(), &er)
	if er.Code != "rule_table_not_found" {
		t.Fatalf("error code: got %q", er.Code)
	}
}

func TestFinalizeAndExportFlow(t *testing.T) {
	_, h, ownerID := setup(t)

	created := postJSON(t, h, "/v1/calculations", map[string]any{
		"owner_id": ownerID.String(), "tax_year": 2023,
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("calculate: %d: %s", created.Code, created.Body.String())
	}
	var rr recordResp
	_ = json.Unmarshal(created.Body.Bytes(), &rr)

	// export before finalize must be refused
	req := httptest.NewRequest(http.MethodGet, "/v1/calculations/"+rr.ID+"/export?owner_id="+ownerID.String(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("export of validated record: expected 409, got %d", rec.Code)
	}

	fin := postJSON(t, h, "/v1/calculations/finalize", map[string]any{
		"owner_id": ownerID.String(), "record_id": rr.ID,
	})
	if fin.Code != http.StatusOK {
		t.Fatalf("finalize: %d: %s", fin.Code, fin.Body.String())
	}
	var fr recordResp
	_ = json.Unmarshal(fin.Body.Bytes(), &fr)
	if fr.Status != string(tax.RecordStatusFinalized) {
		t.Fatalf("status after finalize: %s", fr.Status)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/calculations/"+rr.ID+"/export?owner_id="+ownerID.String(), nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Fatalf("content type: %s", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("<CapitalIncomeDeclaration")) {
		t.Fatalf("export body: %s", rec.Body.String())
	}

	// identical exports byte for byte
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/v1/calculations/"+rr.ID+"/export?owner_id="+ownerID.String(), nil))
	if !bytes.Equal(rec.Body.Bytes(), rec2.Body.Bytes()) {
		t.Fatal("export must be byte stable")
	}
}

func TestListCalculations(t *testing.T) {
	_, h, ownerID := setup(t)

	for i := 0; i < 2; i++ {
		if rec := postJSON(t, h, "/v1/calculations", map[string]any{
			"owner_id": ownerID.String(), "tax_year": 2023,
		}); rec.Code != http.StatusCreated {
			t.Fatalf("calculate %d: %d", i, rec.Code)
		}
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/calculations?owner_id="+ownerID.String(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	var list []recordResp
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("want 2 records, got %d", len(list))
	}
	if list[0].InputHash != list[1].InputHash {
		t.Fatal("identical inputs must produce identical hashes")
	}

	// owner_id is mandatory
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/calculations", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without owner_id, got %d", rec.Code)
	}
}

func TestGetRuleTable(t *testing.T) {
	_, h, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/rule-tables/DE/2023", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("rule table: %d", rec.Code)
	}
	var tbl struct {
		FlatRate   string            `json:"flat_rate"`
		Exemptions map[string]string `json:"exemptions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &tbl); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tbl.FlatRate != "0.25" {
		t.Fatalf("flat rate: %s", tbl.FlatRate)
	}
	if tbl.Exemptions[string(tax.FundCategoryEquity)] != "0.3" {
		t.Fatalf("equity exemption: %q", tbl.Exemptions[string(tax.FundCategoryEquity)])
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rule-tables/DE/1985", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unpublished year: expected 404, got %d", rec.Code)
	}
}

func TestDictionaryAndHealth(t *testing.T) {
	_, h, _ := setup(t)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/dictionary", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("dictionary: %d", rec.Code)
	}
	var cat struct {
		FundCategories []struct {
			Code string `json:"code"`
		} `json:"fund_categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cat); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cat.FundCategories) == 0 {
		t.Fatal("fund categories missing from dictionary")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: %d", rec.Code)
	}
}
