package handlers

import (
	"context"
	"errors"
	"regexp"

	"github.com/danielgtaylor/huma/v2"
	log "github.com/sirupsen/logrus"
	"github.com/tebben/conflator/api/middleware"
	"github.com/tebben/conflator/conflation"
	"github.com/tebben/conflator/mapversion"
	"github.com/tebben/conflator/routing"
)

var truthy = regexp.MustCompile(`(?i)^(1|true|t|y|yes)$`)

type RouteResolver interface {
	Resolve(ctx context.Context, req conflation.Request) (*conflation.Result, error)
}

type RouteInput struct {
	Version     string `query:"conflation_map_version" required:"true" example:"2022_v0_6_0" doc:"Conflation map version to express the route in"`
	ReturnTmcs  string `query:"return_tmcs" example:"true" doc:"Return traffic message channel codes instead of conflation map ids, one of 1, true, t, y or yes"`
	Diagnostics bool   `query:"diagnostics" doc:"Include the anomalies and counters collected while resolving the route"`
	Body        struct {
		Locations        []routing.Location `json:"locations" minItems:"2" doc:"Waypoints in travel order"`
		Radius           *float64           `json:"radius,omitempty" minimum:"0" doc:"Snapping radius in meters applied to every waypoint"`
		Snapping         *string            `json:"snapping,omitempty" doc:"Routing engine snapping mode"`
		ContinueStraight *bool              `json:"continue_straight,omitempty" doc:"Force the route to keep going straight at waypoints, defaults to true"`
	}
}

type RouteResult struct {
	Body struct {
		Ways        any                     `json:"ways" doc:"Conflation map ids or traffic message channel codes in travel order, null when there is no route"`
		Diagnostics *conflation.Diagnostics `json:"diagnostics,omitempty" doc:"Present when requested and a route was found"`
	}
}

// RouteHandler expresses a route between waypoints in conflation map ids.
func RouteHandler(resolver RouteResolver) func(ctx context.Context, input *RouteInput) (*RouteResult, error) {
	return func(ctx context.Context, input *RouteInput) (*RouteResult, error) {
		req := conflation.Request{
			RequestID:  middleware.RequestID(ctx),
			Version:    input.Version,
			ReturnTmcs: truthy.MatchString(input.ReturnTmcs),
			Route: routing.Request{
				Locations:        input.Body.Locations,
				Radius:           input.Body.Radius,
				Snapping:         input.Body.Snapping,
				ContinueStraight: input.Body.ContinueStraight,
			},
		}

		result, err := resolver.Resolve(ctx, req)
		if err != nil {
			return nil, toHumaError(req.RequestID, err)
		}

		routeResult := &RouteResult{}
		switch {
		case result == nil:
			routeResult.Body.Ways = nil
		case req.ReturnTmcs:
			routeResult.Body.Ways = nonNil(result.Tmcs)
		default:
			routeResult.Body.Ways = nonNil(result.Ways)
		}
		if input.Diagnostics && result != nil {
			routeResult.Body.Diagnostics = &result.Diagnostics
		}

		return routeResult, nil
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func toHumaError(requestID string, err error) error {
	if errors.Is(err, mapversion.ErrUnsupportedVersion) {
		return huma.Error400BadRequest(err.Error())
	}

	log.WithField("request", requestID).Errorf("request failed: %v", err)
	if errors.Is(err, conflation.ErrSpatialQuery) {
		return huma.Error500InternalServerError("spatial query failed")
	}
	return huma.Error500InternalServerError("request failed")
}
