package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/jamiifunds/internal/app/chamas"
	"github.com/dalemusser/jamiifunds/internal/app/payments"
	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"github.com/dalemusser/jamiifunds/internal/testutil"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:                 "mongodb://localhost:27017",
		MongoDatabase:            "jamiifunds",
		MongoMaxPoolSize:         100,
		MongoMinPoolSize:         10,
		LoanSavingsMultiple:      3,
		LoanDefaultInterestRate:  "1.50",
		LoanMaxTenureMonths:      60,
		PhoneCountryCode:         "254",

		LoanInterestAccrualInterval: 24 * time.Hour,

		PaymentInitiationTimeout: 15 * time.Minute,
		PaymentSweepInterval:     time.Minute,
		AuditLogLoan:             "all",
		AuditLogPayment:          "db",
		AuditLogMembership:       "off",
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", func(*AppConfig) {}, ""},
		{"pool sizes inverted", func(c *AppConfig) { c.MongoMinPoolSize = 200 }, "mongo_min_pool_size"},
		{"zero multiple", func(c *AppConfig) { c.LoanSavingsMultiple = 0 }, "loan_savings_multiple"},
		{"zero tenure", func(c *AppConfig) { c.LoanMaxTenureMonths = 0 }, "loan_max_tenure_months"},
		{"negative accrual interval", func(c *AppConfig) { c.LoanInterestAccrualInterval = -time.Hour }, "loan_interest_accrual_interval"},
		{"bad rate", func(c *AppConfig) { c.LoanDefaultInterestRate = "one" }, "loan_default_interest_rate"},
		{"negative rate", func(c *AppConfig) { c.LoanDefaultInterestRate = "-1" }, "loan_default_interest_rate"},
		{"long country code", func(c *AppConfig) { c.PhoneCountryCode = "2545" }, "phone_country_code"},
		{"plus in country code", func(c *AppConfig) { c.PhoneCountryCode = "+254" }, "phone_country_code"},
		{"zero payment timeout", func(c *AppConfig) { c.PaymentInitiationTimeout = 0 }, "payment_initiation_timeout"},
		{"bad audit mode", func(c *AppConfig) { c.AuditLogPayment = "both" }, "audit_log_payment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(nil, cfg, testLogger())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateConfig: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewServices_WiresMongoStores(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	svc, err := NewServices(db, validConfig(), nil, testLogger())
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}
	if svc.Savings.Multiple() != 3 {
		t.Errorf("savings multiple = %d, want 3", svc.Savings.Multiple())
	}
	if svc.Profits == nil {
		t.Error("profits service not wired")
	}

	g, err := svc.Chamas.CreateGroup(ctx, "Upendo", "", nil)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	p, err := svc.Chamas.RegisterPerson(ctx, chamas.PersonInput{FullName: "Akinyi", Phone: "0711000222", NationalID: "A1"}, nil)
	if err != nil {
		t.Fatalf("RegisterPerson: %v", err)
	}
	m, err := svc.Chamas.Join(ctx, g.ID, p.ID, false, nil)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	// Without a provider, initiation fails and the event is recorded as failed.
	ev, _, err := svc.Payments.InitiateContribution(ctx, m.ID, money.MustParse("100.00"))
	if err == nil {
		t.Fatal("expected ErrProviderUnavailable")
	}
	stored, gerr := svc.Stores.PaymentEvents.GetByID(ctx, ev.ID)
	if gerr != nil {
		t.Fatalf("GetByID: %v", gerr)
	}
	if stored.Status != "failed" {
		t.Errorf("status = %s, want failed", stored.Status)
	}
	if !strings.Contains(err.Error(), payments.ErrProviderUnavailable.Error()) {
		t.Errorf("err = %v", err)
	}
}

func TestBuildHandler_MountsRoutes(t *testing.T) {
	db := testutil.SetupTestDB(t)

	svc, err := NewServices(db, validConfig(), nil, testLogger())
	if err != nil {
		t.Fatalf("NewServices: %v", err)
	}
	deps := DBDeps{MongoClient: db.Client(), MongoDatabase: db, Runtime: &Runtime{Services: svc}}

	h, err := BuildHandler(nil, validConfig(), deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, testutil.NewJSONRequest(http.MethodPost, "/mpesa/callback", `{"Body":{}}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("POST /mpesa/callback with empty body = %d, want 400", rec.Code)
	}
}

func TestBuildHandler_RequiresStartup(t *testing.T) {
	if _, err := BuildHandler(nil, validConfig(), DBDeps{}, testLogger()); err == nil {
		t.Error("expected error when Startup has not run")
	}
}

func TestShutdown_WithoutRuntime(t *testing.T) {
	if err := Shutdown(context.Background(), nil, validConfig(), DBDeps{}, testLogger()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
