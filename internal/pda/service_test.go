package pda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portagency/pdadesk/internal/audit"
	"github.com/portagency/pdadesk/internal/masterdata"
	"github.com/portagency/pdadesk/internal/pilotage"
	"github.com/portagency/pdadesk/internal/platform/httpx"
	"github.com/portagency/pdadesk/internal/pricing"
	"github.com/portagency/pdadesk/internal/shared"
)

// =============================================================================
// Stubs
// =============================================================================

func ptr[T any](v T) *T { return &v }

type stubRepo struct {
	mu      sync.Mutex
	ships   map[int64]Ship
	ports   map[int64]Port
	clients map[int64]Client
	saved   []Header
	lines   [][]Line
	saveErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		ships: map[int64]Ship{
			1: {ID: 1, Name: "MV Atlantic Star", DWT: ptr(50000.0), GRT: ptr(30000.0), Depth: ptr(11.5), Year: ptr(2012)},
		},
		ports:   map[int64]Port{10: {ID: 10, Name: "Santos", Terminal: ptr("T-37")}},
		clients: map[int64]Client{20: {ID: 20, Name: "Oceanic Charterers"}},
	}
}

func (s *stubRepo) Ship(_ context.Context, _ int64, id int64) (Ship, error) {
	if v, ok := s.ships[id]; ok {
		return v, nil
	}
	return Ship{}, fmt.Errorf("%w: ship not found", httpx.ErrNotFound)
}

func (s *stubRepo) Port(_ context.Context, _ int64, id int64) (Port, error) {
	if v, ok := s.ports[id]; ok {
		return v, nil
	}
	return Port{}, fmt.Errorf("%w: port not found", httpx.ErrNotFound)
}

func (s *stubRepo) Client(_ context.Context, _ int64, id int64) (Client, error) {
	if v, ok := s.clients[id]; ok {
		return v, nil
	}
	return Client{}, fmt.Errorf("%w: client not found", httpx.ErrNotFound)
}

func (s *stubRepo) Save(_ context.Context, h Header, lines []Line) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	s.saved = append(s.saved, h)
	s.lines = append(s.lines, lines)
	return int64(len(s.saved)), nil
}

func (s *stubRepo) List(context.Context, int64) ([]Summary, error) { return nil, nil }

func (s *stubRepo) Get(_ context.Context, _ int64, id int64) (Detail, error) {
	if id != 1 {
		return Detail{}, fmt.Errorf("%w: PDA not found", httpx.ErrNotFound)
	}
	return Detail{ID: 1, Port: Port{ID: 10}, Items: []Item{{ID: 1, PDAID: 1, ServiceName: "Pilotage", Value: 10, Currency: "USD"}}}, nil
}

type stubRules struct {
	calcs []pricing.Calculation
	err   error
}

func (s stubRules) ForPort(context.Context, int64, int64) ([]pricing.Calculation, error) {
	return s.calcs, s.err
}

type stubPortData struct {
	linked  []int64
	remarks []masterdata.Remark
	taxable map[string]bool
}

func (s stubPortData) LinkedServiceIDs(context.Context, int64, int64) ([]int64, error) {
	return s.linked, nil
}

func (s stubPortData) Remarks(context.Context, int64, int64) ([]masterdata.Remark, error) {
	return s.remarks, nil
}

func (s stubPortData) TaxableNames(context.Context, int64) (map[string]bool, error) {
	return s.taxable, nil
}

type stubTariffs struct{}

func (stubTariffs) TariffsForPort(context.Context, int64, int64) ([]pilotage.Tariff, error) {
	return []pilotage.Tariff{{ID: 4, Name: "Santos pilotage", TagName: "PIL_SANTOS", Basis: pilotage.BasisGRT, PortID: 10}}, nil
}

type recordingPublisher struct {
	entries []audit.Entry
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, e audit.Entry) error {
	p.entries = append(p.entries, e)
	return p.err
}

func calc(id, serviceID int64, name, currency, method, formula string) pricing.Calculation {
	rule, _ := pricing.ParseRule(method, formula)
	return pricing.Calculation{ID: id, ServiceID: serviceID, ServiceName: name, Currency: currency, Rule: rule}
}

func newTestService(repo *stubRepo, events audit.Publisher) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(Deps{
		Repo: repo,
		Rules: stubRules{calcs: []pricing.Calculation{
			calc(1, 100, "Pilotage", "USD", "FORMULA", "@GRT * 0.05"),
			calc(2, 101, "Towage", "USD", "CONDITIONAL", `{"rules":[{"variable":"@DWT","operator":">","value":"40000","result":"3.000,00"}],"defaultValue":"1500"}`),
			calc(3, 102, "Not linked", "BRL", "FIXED", "999"),
			calc(4, 103, "Broken", "BRL", "FORMULA", "@DWT +"),
			calc(5, 104, "Berth Dues", "BRL", "FORMULA", "@DRAFT * @ROE"),
		}},
		PortData: stubPortData{
			linked:  []int64{100, 101, 103, 104},
			taxable: map[string]bool{"AGENCY FEE": true},
		},
		Tariffs: stubTariffs{},
		Events:  events,
		Logger:  logger,
	})
}

// =============================================================================
// Calculate
// =============================================================================

func TestCalculatePricesLinkedServices(t *testing.T) {
	svc := newTestService(newStubRepo(), nil)

	out, err := svc.Calculate(context.Background(), 1, CalculateRequest{
		ShipID: 1, PortID: 10, ClientID: 20, ROE: 5, TotalCargo: 42000, PDANumber: "PDA-9",
	})
	require.NoError(t, err)

	require.Len(t, out.Items, 4)
	assert.Equal(t, "Pilotage", out.Items[0].ServiceName)
	assert.Equal(t, "USD", out.Items[0].Currency)
	assert.InDelta(t, 1500.0, out.Items[0].Value, 1e-9)
	assert.Equal(t, 3000.0, out.Items[1].Value)
	assert.Equal(t, "Broken", out.Items[2].ServiceName)
	assert.Zero(t, out.Items[2].Value, "a broken formula prices at zero")
	assert.InDelta(t, 57.5, out.Items[3].Value, 1e-9, "draft falls back to depth")

	assert.Equal(t, "MV Atlantic Star", out.Ship.Name)
	assert.Equal(t, 5.0, out.ROE)
	assert.Equal(t, "PDA-9", out.PDANumber)
	assert.NotNil(t, out.Remarks)
	assert.Len(t, out.PilotageTariffs, 1)
}

func TestCalculateRequiresVoyageInputs(t *testing.T) {
	svc := newTestService(newStubRepo(), nil)
	cases := []CalculateRequest{
		{PortID: 10, ClientID: 20, ROE: 5},
		{ShipID: 1, ClientID: 20, ROE: 5},
		{ShipID: 1, PortID: 10, ROE: 5},
		{ShipID: 1, PortID: 10, ClientID: 20},
	}
	for i, in := range cases {
		_, err := svc.Calculate(context.Background(), 1, in)
		assert.ErrorIs(t, err, httpx.ErrValidation, "case %d", i)
	}
}

func TestCalculateReportsMissingEntityInOrder(t *testing.T) {
	svc := newTestService(newStubRepo(), nil)

	_, err := svc.Calculate(context.Background(), 1, CalculateRequest{ShipID: 2, PortID: 11, ClientID: 20, ROE: 5})
	require.ErrorIs(t, err, httpx.ErrNotFound)
	assert.Contains(t, err.Error(), "ship")

	_, err = svc.Calculate(context.Background(), 1, CalculateRequest{ShipID: 1, PortID: 11, ClientID: 21, ROE: 5})
	require.ErrorIs(t, err, httpx.ErrNotFound)
	assert.Contains(t, err.Error(), "port")

	_, err = svc.Calculate(context.Background(), 1, CalculateRequest{ShipID: 1, PortID: 10, ClientID: 21, ROE: 5})
	require.ErrorIs(t, err, httpx.ErrNotFound)
	assert.Contains(t, err.Error(), "client")
}

func TestCalculatePropagatesLoadFailures(t *testing.T) {
	svc := newTestService(newStubRepo(), nil)
	svc.rules = stubRules{err: errors.New("connection refused")}

	_, err := svc.Calculate(context.Background(), 1, CalculateRequest{ShipID: 1, PortID: 10, ClientID: 20, ROE: 5})
	require.Error(t, err)
	assert.False(t, httpx.IsClientError(err))
}

// =============================================================================
// Save, detail and taxes
// =============================================================================

func TestSaveNormalizesAndPublishes(t *testing.T) {
	repo := newStubRepo()
	events := &recordingPublisher{}
	svc := newTestService(repo, events)

	var in SaveRequest
	require.NoError(t, json.Unmarshal([]byte(`{"pdaData":{
		"pdaNumber":"PDA-10","ship":{"id":1},"port":{"id":"10"},"client":{"id":20},
		"roe":"5,25","cargo":"Soybeans","totalCargo":"42.000,5","eta":"2026-03-01T08:00","etb":"",
		"items":[{"service_name":"Pilotage","value":"1.234,56","currency":"USD"}]}}`), &in))

	id, err := svc.Save(context.Background(), 1, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	require.Len(t, repo.saved, 1)
	h := repo.saved[0]
	assert.Equal(t, int64(10), h.PortID)
	assert.Equal(t, 5.25, h.ROE)
	assert.Equal(t, 42000.5, h.TotalCargo)
	require.NotNil(t, h.ETA)
	assert.Nil(t, h.ETB)
	assert.Equal(t, []Line{{ServiceName: "Pilotage", Value: 1234.56, Currency: "USD"}}, repo.lines[0])

	require.Len(t, events.entries, 1)
	assert.Equal(t, "pda", events.entries[0].Entity)
	assert.Equal(t, "1", events.entries[0].EntityID)
}

func TestSaveSurvivesPublishFailure(t *testing.T) {
	svc := newTestService(newStubRepo(), &recordingPublisher{err: errors.New("redis down")})
	_, err := svc.Save(context.Background(), 1, SaveRequest{PDAData: &Draft{
		Ship: entityRef{ID: 1}, Port: entityRef{ID: 10}, Client: entityRef{ID: 20},
	}})
	assert.NoError(t, err)
}

func TestSaveValidation(t *testing.T) {
	svc := newTestService(newStubRepo(), nil)

	_, err := svc.Save(context.Background(), 1, SaveRequest{})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Save(context.Background(), 1, SaveRequest{PDAData: &Draft{
		Ship: entityRef{ID: 1}, Port: entityRef{ID: 10}, Client: entityRef{ID: 20},
		Items: []pricing.DraftItem{{ServiceName: " ", Value: 1, Currency: "USD"}},
	}})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

type memKeys struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
}

func (m *memKeys) Claim(_ context.Context, companyID int64, module, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimed == nil {
		m.claimed = map[string]bool{}
	}
	k := fmt.Sprintf("%d/%s/%s", companyID, module, key)
	if m.claimed[k] {
		return shared.ErrIdempotencyConflict
	}
	m.claimed[k] = true
	return nil
}

func (m *memKeys) Release(_ context.Context, companyID int64, module, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := fmt.Sprintf("%d/%s/%s", companyID, module, key)
	delete(m.claimed, k)
	m.released = append(m.released, k)
	return nil
}

func keyedDraft(key string) SaveRequest {
	return SaveRequest{
		PDAData:        &Draft{Ship: entityRef{ID: 1}, Port: entityRef{ID: 10}, Client: entityRef{ID: 20}},
		IdempotencyKey: key,
	}
}

func TestSaveRejectsReplayedKey(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, nil)
	svc.keys = &memKeys{}

	_, err := svc.Save(context.Background(), 1, keyedDraft("k-1"))
	require.NoError(t, err)
	_, err = svc.Save(context.Background(), 1, keyedDraft("k-1"))
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
	assert.Len(t, repo.saved, 1)

	// Keys are per company.
	_, err = svc.Save(context.Background(), 2, keyedDraft("k-1"))
	assert.NoError(t, err)
	// Saves without a key are never deduplicated.
	_, err = svc.Save(context.Background(), 1, keyedDraft(""))
	assert.NoError(t, err)
	assert.Len(t, repo.saved, 3)
}

func TestSaveReleasesKeyOnFailure(t *testing.T) {
	repo := newStubRepo()
	repo.saveErr = errors.New("insert pda: connection reset")
	keys := &memKeys{}
	svc := newTestService(repo, nil)
	svc.keys = keys

	_, err := svc.Save(context.Background(), 1, keyedDraft("k-2"))
	require.Error(t, err)
	assert.Equal(t, []string{"1/pda.save/k-2"}, keys.released)

	repo.saveErr = nil
	_, err = svc.Save(context.Background(), 1, keyedDraft("k-2"))
	assert.NoError(t, err)
}

func TestDetailAttachesRemarks(t *testing.T) {
	svc := newTestService(newStubRepo(), nil)

	d, err := svc.Detail(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.NotNil(t, d.Remarks)
	assert.Len(t, d.Items, 1)

	_, err = svc.Detail(context.Background(), 1, 2)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestTaxesUseTaxableServices(t *testing.T) {
	svc := newTestService(newStubRepo(), nil)

	res, err := svc.Taxes(context.Background(), 1, TaxRequest{
		ROE: 5,
		Items: []pricing.DraftItem{
			{ServiceName: "Agency Fee", Value: 1000, Currency: "USD"},
			{ServiceName: "Pilotage", Value: 2000, Currency: "BRL"},
		},
		Suppressed: []string{"bank charges"},
	})
	require.NoError(t, err)

	names := make([]string, 0, len(res.Items))
	for _, it := range res.Items {
		names = append(names, it.ServiceName)
	}
	assert.Equal(t, []string{"Agency Fee", "Pilotage", pricing.LabelMunicipalTax, pricing.LabelFederalTax}, names)
	assert.InDelta(t, 250.0, res.Items[2].Value.Float64(), 1e-9)
	assert.InDelta(t, 26.6, res.Items[3].Value.Float64(), 1e-9)
	assert.Equal(t, []string{"bank charges"}, res.Suppressed)
}

// =============================================================================
// Handler
// =============================================================================

func newTestRouter(svc PDAService) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.ContextWithPrincipal(r.Context(), shared.Principal{UserID: 1, CompanyID: 1, Name: "ops"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	r.Route("/api/pda", NewHandler(nil, svc).MountRoutes)
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerCalculateAndSave(t *testing.T) {
	h := newTestRouter(newTestService(newStubRepo(), nil))

	rr := do(h, http.MethodPost, "/api/pda/calculate", `{"ship_id":"1","port_id":10,"client_id":20,"roe":"5,0","totalCargo":"1000"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var preview map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &preview))
	assert.Len(t, preview["items"], 4)
	assert.Equal(t, 1000.0, preview["totalCargo"])
	assert.Nil(t, preview["eta"])

	rr = do(h, http.MethodPost, "/api/pda/calculate", `{"ship_id":"","port_id":10,"client_id":20,"roe":5}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(h, http.MethodPost, "/api/pda/calculate", `{"ship_id":7,"port_id":10,"client_id":20,"roe":5}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(h, http.MethodPost, "/api/pda/save", `{"pdaData":{"ship":{"id":1},"port":{"id":10},"client":{"id":20},"roe":5,"items":[]}}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"message":"PDA saved","pdaId":1}`, rr.Body.String())

	rr = do(h, http.MethodPost, "/api/pda/save", `{"pdaData":{"eta":"next tuesday"}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerSaveReadsIdempotencyKey(t *testing.T) {
	svc := newTestService(newStubRepo(), nil)
	svc.keys = &memKeys{}
	h := newTestRouter(svc)

	body := `{"pdaData":{"ship":{"id":1},"port":{"id":10},"client":{"id":20}}}`
	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		req := httptest.NewRequest(http.MethodPost, "/api/pda/save", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", " save-7 ")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code, "attempt %d: %s", i, rr.Body.String())
	}
}

func TestHandlerSaveFailureIsInternal(t *testing.T) {
	repo := newStubRepo()
	repo.saveErr = errors.New("insert pda item 2: connection reset")
	h := newTestRouter(newTestService(repo, nil))

	rr := do(h, http.MethodPost, "/api/pda/save", `{"pdaData":{"ship":{"id":1},"port":{"id":10},"client":{"id":20}}}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection reset")
}

func TestHandlerListDetailAndTaxes(t *testing.T) {
	h := newTestRouter(newTestService(newStubRepo(), nil))

	rr := do(h, http.MethodGet, "/api/pda/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = do(h, http.MethodGet, "/api/pda/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"service_name":"Pilotage"`)

	rr = do(h, http.MethodGet, "/api/pda/2", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(h, http.MethodPost, "/api/pda/taxes", `{"roe":5,"items":[{"service_name":"Agency Fee","value":100,"currency":"USD"}]}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res TaxResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Len(t, res.Items, 4)
	assert.Equal(t, "500,00", res.Items[0].DisplayBRL)
}
