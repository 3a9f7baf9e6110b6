// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, logging, CORS, body limits); the
// fields here are the ledger's own.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Lending rules
	LoanSavingsMultiple     int    // principal may not exceed confirmed savings / multiple
	LoanDefaultInterestRate string // monthly percent, e.g. "1.50"
	LoanMaxTenureMonths     int

	LoanInterestAccrualInterval time.Duration // how often monthly interest is recorded; 0 disables it

	// Phone numbers are stored with this international prefix (e.g., 254).
	PhoneCountryCode string

	// Mobile-money payments
	PaymentInitiationTimeout time.Duration // pending payments older than this are timed out
	PaymentSweepInterval     time.Duration // how often the sweeper runs; 0 disables it

	// Audit logging: "all" (db+log), "db", "log", or "off"
	AuditLogLoan       string
	AuditLogPayment    string
	AuditLogMembership string

	// Operation budgets for database work
	TimeoutShort  time.Duration
	TimeoutMedium time.Duration
	TimeoutLong   time.Duration
}
