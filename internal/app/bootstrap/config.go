// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"regexp"
	"time"

	"github.com/dalemusser/jamiifunds/internal/domain/money"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for JamiiFunds.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, loan_savings_multiple, etc.
//   - Environment variables: JAMIIFUNDS_MONGO_URI, JAMIIFUNDS_LOAN_SAVINGS_MULTIPLE, etc.
//   - Command-line flags: --mongo_uri, --loan_savings_multiple, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "jamiifunds", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Lending rules
	{Name: "loan_savings_multiple", Default: 3, Desc: "Confirmed savings must be at least this multiple of the principal"},
	{Name: "loan_default_interest_rate", Default: "1.50", Desc: "Monthly interest rate in percent used when an application names none"},
	{Name: "loan_max_tenure_months", Default: 60, Desc: "Longest loan tenure accepted, in months"},
	{Name: "loan_interest_accrual_interval", Default: "24h", Desc: "How often the current month's loan interest is recorded (0 disables)"},

	{Name: "phone_country_code", Default: "254", Desc: "International dialling prefix used to normalize phone numbers"},

	// Mobile-money payments
	{Name: "payment_initiation_timeout", Default: "15m", Desc: "Pending payments with no callback after this long are timed out"},
	{Name: "payment_sweep_interval", Default: "1m", Desc: "How often stale payments are swept (0 disables)"},

	// Audit logging settings
	{Name: "audit_log_loan", Default: "all", Desc: "Loan event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_payment", Default: "all", Desc: "Payment event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_membership", Default: "all", Desc: "Membership event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Database operation budgets
	{Name: "timeout_short", Default: "5s", Desc: "Budget for single-document reads and updates"},
	{Name: "timeout_medium", Default: "10s", Desc: "Budget for list queries and aggregations"},
	{Name: "timeout_long", Default: "30s", Desc: "Budget for multi-collection transactions"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, JAMIIFUNDS_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "JAMIIFUNDS", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		LoanSavingsMultiple:     appValues.Int("loan_savings_multiple"),
		LoanDefaultInterestRate: appValues.String("loan_default_interest_rate"),
		LoanMaxTenureMonths:     appValues.Int("loan_max_tenure_months"),

		LoanInterestAccrualInterval: appValues.Duration("loan_interest_accrual_interval", 24*time.Hour),

		PhoneCountryCode: appValues.String("phone_country_code"),

		PaymentInitiationTimeout: appValues.Duration("payment_initiation_timeout", 15*time.Minute),
		PaymentSweepInterval:     appValues.Duration("payment_sweep_interval", time.Minute),

		AuditLogLoan:       appValues.String("audit_log_loan"),
		AuditLogPayment:    appValues.String("audit_log_payment"),
		AuditLogMembership: appValues.String("audit_log_membership"),

		TimeoutShort:  appValues.Duration("timeout_short", 5*time.Second),
		TimeoutMedium: appValues.Duration("timeout_medium", 10*time.Second),
		TimeoutLong:   appValues.Duration("timeout_long", 30*time.Second),
	}

	return coreCfg, appCfg, nil
}

var countryCodeRE = regexp.MustCompile(`^[0-9]{1,3}$`)

var auditModes = map[string]bool{"all": true, "db": true, "log": true, "off": true}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	if appCfg.MongoMinPoolSize > appCfg.MongoMaxPoolSize {
		return fmt.Errorf("mongo_min_pool_size (%d) exceeds mongo_max_pool_size (%d)", appCfg.MongoMinPoolSize, appCfg.MongoMaxPoolSize)
	}
	if appCfg.LoanSavingsMultiple <= 0 {
		return fmt.Errorf("loan_savings_multiple must be positive, got %d", appCfg.LoanSavingsMultiple)
	}
	if appCfg.LoanMaxTenureMonths <= 0 {
		return fmt.Errorf("loan_max_tenure_months must be positive, got %d", appCfg.LoanMaxTenureMonths)
	}
	if appCfg.LoanInterestAccrualInterval < 0 {
		return fmt.Errorf("loan_interest_accrual_interval must not be negative")
	}
	if _, err := money.ParseRate(appCfg.LoanDefaultInterestRate); err != nil {
		return fmt.Errorf("invalid loan_default_interest_rate %q: %w", appCfg.LoanDefaultInterestRate, err)
	}
	if !countryCodeRE.MatchString(appCfg.PhoneCountryCode) {
		return fmt.Errorf("phone_country_code must be 1-3 digits, got %q", appCfg.PhoneCountryCode)
	}
	if appCfg.PaymentInitiationTimeout <= 0 {
		return fmt.Errorf("payment_initiation_timeout must be positive")
	}
	for key, mode := range map[string]string{
		"audit_log_loan":       appCfg.AuditLogLoan,
		"audit_log_payment":    appCfg.AuditLogPayment,
		"audit_log_membership": appCfg.AuditLogMembership,
	} {
		if !auditModes[mode] {
			return fmt.Errorf("%s must be one of all, db, log, off; got %q", key, mode)
		}
	}
	return nil
}
