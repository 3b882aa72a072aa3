package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/conflator/conflation"
	"github.com/tebben/conflator/database"
	"github.com/tebben/conflator/httpclientpool"
	"github.com/tebben/conflator/mapversion"
	"github.com/tebben/conflator/nodeways"
	"github.com/tebben/conflator/preprocess"
	"github.com/tebben/conflator/routing"
	"github.com/tebben/conflator/server"
	"github.com/tebben/conflator/settings"
)

const usage = `usage: conflator <command>

commands:
  serve                                   start the HTTP server
  route <version> <tmcs> lon,lat lon,lat  resolve a route and print it
  process                                 normalise the raw exports into parquet
  create <version> <revision>             load the parquet files into PostGIS
  index                                   build the node to segment index`

func main() {
	if err := settings.InitializeConfig(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	config := settings.GetConfig()

	level, err := log.ParseLevel(config.Log.Level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(level)

	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	command := os.Args[1]
	switch command {
	case "serve":
		err = serve(config)
	case "route":
		err = route(config, os.Args[2:])
	case "process":
		err = preprocess.ProcessAll(config.Process.Folder)
	case "create":
		err = create(config, os.Args[2:])
	case "index":
		err = index(config)
	default:
		log.Fatalf("Unknown command %q\n%s", command, usage)
	}

	if err != nil {
		log.Fatal(err)
	}
}

// newResolver opens the PostGIS pool the resolver queries, the caller closes
// it.
func newResolver(config settings.Config) (*conflation.Resolver, *routing.Client, *pgxpool.Pool, error) {
	pool, err := database.NewPool(context.Background(), config.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error connecting to database: %w", err)
	}

	httpClient := httpclientpool.GetPoolInstance(time.Duration(config.Routing.Timeout) * time.Second).GetClient()
	client := routing.NewClient(config.Routing.Servers, httpClient)
	store := database.NewWayStore(pool, time.Duration(config.Conflation.VersionCacheMinutes)*time.Minute)

	resolver := conflation.NewResolver(client, store, conflation.Options{
		Buffer:  config.Conflation.Buffer,
		Workers: config.Conflation.Workers,
	})
	return resolver, client, pool, nil
}

func serve(config settings.Config) error {
	defer httpclientpool.GetPoolInstance(0).Close()

	resolver, client, pool, err := newResolver(config)
	if err != nil {
		return err
	}
	defer pool.Close()

	services := server.Services{
		Resolver: resolver,
		Versions: client.Versions(),
	}

	if _, err := os.Stat(config.NodeWays.Path); err == nil {
		ix, err := nodeways.Open(config.NodeWays.Path)
		if err != nil {
			return err
		}
		defer ix.Close()
		services.Matcher = nodeways.NewMatcher(client, ix)
	} else {
		log.Warnf("No node index at %s, /match is disabled", config.NodeWays.Path)
	}

	server.Start(config, services)
	return nil
}

func route(config settings.Config, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("expected a version, true or false and at least two locations\n%s", usage)
	}

	returnTmcs, err := strconv.ParseBool(args[1])
	if err != nil {
		return fmt.Errorf("invalid tmcs flag %q: %w", args[1], err)
	}

	locations := make([]routing.Location, 0, len(args)-2)
	for _, arg := range args[2:] {
		location, err := parseLocation(arg)
		if err != nil {
			return err
		}
		locations = append(locations, location)
	}

	resolver, _, pool, err := newResolver(config)
	if err != nil {
		return err
	}
	defer pool.Close()

	timeStart := time.Now()
	result, err := resolver.Resolve(context.Background(), conflation.Request{
		RequestID:  uuid.New().String(),
		Version:    args[0],
		Route:      routing.Request{Locations: locations},
		ReturnTmcs: returnTmcs,
	})
	if err != nil {
		return err
	}

	if result == nil {
		log.Info("No route found")
		return nil
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(output))

	log.Infof("-----------")
	log.Infof("%v", time.Since(timeStart))
	return nil
}

// parseLocation parses a "lon,lat" argument.
func parseLocation(s string) (routing.Location, error) {
	lon, lat, ok := strings.Cut(s, ",")
	if !ok {
		return routing.Location{}, fmt.Errorf("invalid location %q, expected lon,lat", s)
	}

	location := routing.Location{}
	var err error
	if location.Lon, err = strconv.ParseFloat(strings.TrimSpace(lon), 64); err != nil || location.Lon < -180 || location.Lon > 180 {
		return routing.Location{}, fmt.Errorf("invalid longitude in %q", s)
	}
	if location.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil || location.Lat < -90 || location.Lat > 90 {
		return routing.Location{}, fmt.Errorf("invalid latitude in %q", s)
	}

	return location, nil
}

func create(config settings.Config, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("expected a conflation map version and a base map revision\n%s", usage)
	}

	version, err := mapversion.Parse(args[0])
	if err != nil {
		return err
	}
	if err := database.StartCleanup(); err != nil {
		return err
	}
	defer database.CloseDBPools()

	return database.CreateDB(context.Background(), config.Database, config.Process.Folder, version, args[1])
}

func index(config settings.Config) error {
	ix, err := nodeways.Open(config.NodeWays.Path)
	if err != nil {
		return err
	}
	defer ix.Close()

	return ix.Build(filepath.Join(config.Process.Folder, preprocess.SegmentsFile))
}
