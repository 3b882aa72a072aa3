package handlers

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/tebben/conflator/api/middleware"
	"github.com/tebben/conflator/routing"
)

type WayMatcher interface {
	Match(ctx context.Context, version string, locations []routing.Location) ([]int64, error)
}

type MatchInput struct {
	Version string `query:"conflation_map_version" required:"true" example:"2022_v0_6_0" doc:"Conflation map version of the routing engine to match with"`
	Body    struct {
		Coordinates [][]float64 `json:"coordinates" minItems:"1" doc:"GPS trace as [lon, lat] pairs"`
	}
}

type MatchResult struct {
	Body struct {
		Ways []int64 `json:"ways" doc:"Conflation map ids along the trace, null when it could not be matched"`
	}
}

// MatchHandler matches a GPS trace to conflation map ids.
func MatchHandler(matcher WayMatcher) func(ctx context.Context, input *MatchInput) (*MatchResult, error) {
	return func(ctx context.Context, input *MatchInput) (*MatchResult, error) {
		locations := make([]routing.Location, len(input.Body.Coordinates))
		for i, c := range input.Body.Coordinates {
			if len(c) != 2 || c[0] < -180 || c[0] > 180 || c[1] < -90 || c[1] > 90 {
				return nil, huma.Error400BadRequest(fmt.Sprintf("coordinate %d is not a valid [lon, lat] pair", i))
			}
			locations[i] = routing.Location{Lon: c[0], Lat: c[1]}
		}

		ways, err := matcher.Match(ctx, input.Version, locations)
		if err != nil {
			return nil, toHumaError(middleware.RequestID(ctx), err)
		}

		matchResult := &MatchResult{}
		matchResult.Body.Ways = ways
		return matchResult, nil
	}
}
