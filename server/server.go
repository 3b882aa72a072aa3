package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/conflator/api/handlers"
	"github.com/tebben/conflator/api/middleware"
	"github.com/tebben/conflator/settings"
)

// Services are the operations served over HTTP. Matcher is optional, the
// match endpoint is only registered when it is set.
type Services struct {
	Resolver handlers.RouteResolver
	Matcher  handlers.WayMatcher
	Versions []string
}

// Start starts the conflator server with the given configuration and
// listens for incoming HTTP requests on the configured port until a stop
// signal is received.
func Start(config settings.Config, services Services) {
	router := createRouter(config, services)
	server := &http.Server{Addr: fmt.Sprintf(":%v", config.Server.Port), Handler: router}
	serverCtx, serverStopCtx := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		log.Info("Stop signal received, shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(serverCtx, 5*time.Second)
		defer cancel()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}

		log.Info("Server stopped successfully")
		serverStopCtx()
	}()

	log.Infof("Conflator started, running on port %v", config.Server.Port)

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}

	// Wait for server context to be stopped
	<-serverCtx.Done()
}

// createRouter creates and configures the router for the server.
// It sets up the necessary middleware and routes for handling API requests.
func createRouter(config settings.Config, services Services) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.Logger("router", log.StandardLogger(), logrus.DebugLevel))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Throttle(config.Server.MaxConcurrentRequests))
	router.Use(chimiddleware.Timeout(time.Duration(config.Server.Timeout) * time.Second))
	router.Use(chimiddleware.Compress(5, "application/json"))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.Server.CORS.AllowOrigins,
		AllowedMethods:   config.Server.CORS.AllowMethods,
		AllowedHeaders:   config.Server.CORS.AllowHeaders,
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           600,
	}))
	router.NotFound(handlers.NotFoundHandler)

	humaConfig := createHumaConfig()
	api := humachi.New(router, humaConfig)
	registerRoutes(api, services)

	return router
}

func createHumaConfig() huma.Config {
	humaConfig := huma.DefaultConfig("Conflator", "1.0.0")
	humaConfig.CreateHooks = nil
	humaConfig.Info.Contact = &huma.Contact{
		URL: "https://github.com/tebben/conflator",
	}
	humaConfig.Info.Description = "Conflator expresses driving routes in the segments of a versioned conflation map. Routes are computed by an OSRM instance per conflation map version, the route is then matched against the base road network in PostGIS and re-expressed as an ordered list of conflation map segment ids or traffic message channel codes."
	humaConfig.Info.License = &huma.License{
		Name: "MIT",
	}

	return humaConfig
}

func registerRoutes(api huma.API, services Services) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Status",
		Description: "Get the status of the conflator.",
	}, handlers.StatusHandler(time.Now(), services.Versions))

	huma.Register(api, huma.Operation{
		OperationID: "route",
		Method:      http.MethodPost,
		Path:        "/route",
		Summary:     "Route",
		Description: "Route between waypoints and return the route as conflation map ids in travel order, or as traffic message channel codes.",
	}, handlers.RouteHandler(services.Resolver))

	if services.Matcher != nil {
		huma.Register(api, huma.Operation{
			OperationID: "match",
			Method:      http.MethodPost,
			Path:        "/match",
			Summary:     "Match",
			Description: "Match a GPS trace to the road network and return the conflation map ids it passes.",
		}, handlers.MatchHandler(services.Matcher))
	}
}
