// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	healthfeature "github.com/dalemusser/jamiifunds/internal/app/features/health"
	mpesafeature "github.com/dalemusser/jamiifunds/internal/app/features/mpesa"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed. The ledger exposes only the provider
// callback and a health check; everything else is driven through the core
// services.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if deps.Runtime == nil || deps.Runtime.Services == nil {
		return nil, errors.New("services not initialized: Startup must run before BuildHandler")
	}
	svc := deps.Runtime.Services

	r := chi.NewRouter()

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, "jamiifunds", logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Mobile-money result callbacks
	mpesaHandler := mpesafeature.NewHandler(svc.Reconcile, logger)
	r.Mount("/mpesa", mpesafeature.Routes(mpesaHandler))

	return r, nil
}
