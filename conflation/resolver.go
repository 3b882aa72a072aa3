package conflation

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/conflator/mapversion"
	"github.com/tebben/conflator/route"
	"github.com/tebben/conflator/routing"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Buffer around the route geometry in degrees.
	Buffer float64
	// Workers bounds the ways resolved concurrently within one request.
	Workers int
}

type Request struct {
	RequestID  string
	Version    string
	Route      routing.Request
	ReturnTmcs bool
}

type Result struct {
	// Ways is the ordered conflation map path.
	Ways []int64 `json:"ways"`
	// Tmcs is only set when traffic codes were requested.
	Tmcs        []string    `json:"tmcs,omitempty"`
	Diagnostics Diagnostics `json:"diagnostics"`
}

// Resolver runs the full pipeline for a request: route, extract, look up
// the ways along the route and re-express the route in segment ids.
type Resolver struct {
	router  Router
	store   WayStore
	options Options
}

func NewResolver(router Router, store WayStore, options Options) *Resolver {
	if options.Workers <= 0 {
		options.Workers = 1
	}

	return &Resolver{router: router, store: store, options: options}
}

// Resolve returns a nil result when the routing engine has no route. The
// computation is not cancelled when ctx is.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	logger := log.WithFields(log.Fields{"request": req.RequestID, "version": req.Version})
	timeStart := time.Now()

	version, err := mapversion.Parse(req.Version)
	if err != nil {
		return nil, err
	}

	osrmRoute, err := r.router.Route(ctx, req.Version, req.Route)
	if err != nil {
		return nil, fmt.Errorf("routing failed: %w", err)
	}
	if osrmRoute == nil {
		logger.Info("routing engine returned no route")
		return nil, nil
	}

	extracted := route.Extract(osrmRoute.Legs, osrmRoute.Geometry.Coordinates)
	if len(extracted.Nodes) == 0 {
		logger.Info("routing engine returned no nodes")
		return nil, nil
	}
	logger.Debugf("extracted %d nodes on %d named ways", len(extracted.Nodes), len(extracted.Ways))

	revision, err := r.store.BaseRevision(ctx, version)
	if err != nil {
		return nil, spatialError(err)
	}

	queryStart := time.Now()
	ways, err := r.store.WaysAlong(ctx, version, revision, extracted.Geometry, r.options.Buffer)
	if err != nil {
		return nil, spatialError(err)
	}
	logger.Debugf("spatial query returned %d ways in %v", len(ways), time.Since(queryStart))

	result := &Result{
		Diagnostics: Diagnostics{
			DisconnectedLegs: extracted.DisconnectedLegs,
			KeyCollisions:    extracted.KeyCollisions,
		},
	}

	traversals, unmatched := Traversals(extracted, ways)
	result.Diagnostics.UnmatchedEdges = unmatched

	anomalies, err := r.chainTraversals(ctx, traversals, ways)
	if err != nil {
		return nil, err
	}
	for _, a := range anomalies {
		logger.WithFields(log.Fields{"way": a.WayID, "direction": a.Direction}).Warnf("way ordered by storage order: %s", a.Kind)
	}
	result.Diagnostics.Anomalies = anomalies

	path := Assemble(traversals)
	result.Ways = make([]int64, len(path))
	for i, s := range path {
		result.Ways[i] = s.ID
	}

	if req.ReturnTmcs {
		endpoints, err := r.store.TmcEndpoints(ctx, version, TmcCodes(path))
		if err != nil {
			return nil, spatialError(err)
		}
		result.Tmcs = ResolveTmcs(path, endpoints)
	}

	logger.Infof("resolved %d segments over %d ways in %v", len(result.Ways), len(traversals), time.Since(timeStart))

	return result, nil
}

// chainTraversals picks the direction and orders the segments of every
// traversal. Traversals touch disjoint data and run concurrently.
func (r *Resolver) chainTraversals(ctx context.Context, traversals []WayTraversal, ways []BaseWay) ([]Anomaly, error) {
	byID := make(map[int64]*BaseWay, len(ways))
	for i := range ways {
		byID[ways[i].ID] = &ways[i]
	}

	found := make([]*Anomaly, len(traversals))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.options.Workers)

	for i := range traversals {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			t := &traversals[i]
			way, ok := byID[t.WayID]
			if !ok {
				return nil
			}

			forward, backward := way.SegmentsFor(Forward), way.SegmentsFor(Backward)
			direction := ResolveDirection(t.Nodes, forward, backward)

			segments := forward
			if direction == Backward {
				segments = backward
			}

			chain, kind := SortSegments(segments)
			t.Chain = chain
			if kind != nil {
				found[i] = &Anomaly{WayID: t.WayID, Direction: direction.String(), Kind: *kind}
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var anomalies []Anomaly
	for _, a := range found {
		if a != nil {
			anomalies = append(anomalies, *a)
		}
	}

	return anomalies, nil
}

func spatialError(err error) error {
	if errors.Is(err, ErrSpatialQuery) || errors.Is(err, mapversion.ErrUnsupportedVersion) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSpatialQuery, err)
}
