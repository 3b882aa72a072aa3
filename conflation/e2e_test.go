package conflation_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebben/conflator/conflation"
	"github.com/tebben/conflator/database"
	"github.com/tebben/conflator/httpclientpool"
	"github.com/tebben/conflator/routing"
	"github.com/tebben/conflator/settings"
)

const e2eVersion = "2022_v0_6_0"

// liveResolver runs against the OSRM and PostGIS instances configured in
// the file CONFLATOR_E2E_CONFIG points to.
func liveResolver(t *testing.T) *conflation.Resolver {
	t.Helper()

	path := os.Getenv("CONFLATOR_E2E_CONFIG")
	if path == "" {
		t.Skip("CONFLATOR_E2E_CONFIG not set")
	}

	config, err := settings.Load(path)
	require.NoError(t, err)
	pool, err := database.NewPool(context.Background(), config.Database)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	client := routing.NewClient(config.Routing.Servers, httpclientpool.New(time.Duration(config.Routing.Timeout)*time.Second).GetClient())
	store := database.NewWayStore(pool, time.Minute)

	return conflation.NewResolver(client, store, conflation.Options{
		Buffer:  config.Conflation.Buffer,
		Workers: config.Conflation.Workers,
	})
}

func resolve(t *testing.T, resolver *conflation.Resolver, tmcs bool, locations ...routing.Location) *conflation.Result {
	t.Helper()

	result, err := resolver.Resolve(context.Background(), conflation.Request{
		Version:    e2eVersion,
		Route:      routing.Request{Locations: locations},
		ReturnTmcs: tmcs,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func TestSpectrumTheaterToEdgecomb(t *testing.T) {
	resolver := liveResolver(t)
	locations := []routing.Location{
		{Lon: -73.7768, Lat: 42.64322},
		{Lon: -73.79146, Lat: 42.64318},
	}

	ways := resolve(t, resolver, false, locations...).Ways
	assert.Equal(t, []int64{
		3476729, 1949401, 1080504, 1431702, 4044624, 154804, 1875542, 3259697,
		3259093, 2490467, 2994726, 249486, 798032, 2898853, 1852468, 3188250,
		801243, 801244, 801245, 1159788, 551188, 551189, 1653368, 2392834,
		1625641, 3166144, 3899824, 1992667, 3592778, 1030343, 1030344, 3852732,
		2777990, 2222229, 1470478, 4071597, 2930059, 2930060,
	}, ways)

	tmcs := resolve(t, resolver, true, locations...).Tmcs
	assert.Equal(t, []string{"120-11205", "120N31419", "120-31418", "120-31417"}, tmcs)
}

func TestHighwayInterchange(t *testing.T) {
	resolver := liveResolver(t)
	locations := []routing.Location{
		{Lon: -73.70219, Lat: 42.62859},
		{Lon: -73.71817, Lat: 42.65522},
		{Lon: -73.70975, Lat: 42.69471},
	}
	expected := []string{
		"120+05843", "120P05843", "120+05844", "120P05844",
		"120+05845", "120P27748", "120P27750", "120P27752",
		"120+05939", "120P05939", "120+05940", "120P05940",
	}

	t.Run("two locations", func(t *testing.T) {
		tmcs := resolve(t, resolver, true, locations[0], locations[2]).Tmcs
		assert.Equal(t, expected, tmcs)
	})

	t.Run("three locations", func(t *testing.T) {
		tmcs := resolve(t, resolver, true, locations...).Tmcs
		assert.Equal(t, expected, tmcs)
	})
}

func TestWaypointsAreVisited(t *testing.T) {
	resolver := liveResolver(t)
	locations := []routing.Location{
		{Lon: -73.80345, Lat: 42.65029},
		{Lon: -73.79874, Lat: 42.65536},
		{Lon: -73.80065, Lat: 42.65606},
		{Lon: -73.80577, Lat: 42.6552},
	}

	ways := resolve(t, resolver, false, locations...).Ways
	assert.Equal(t, []int64{
		2414212, 1001101, 102666, 1905458, 1620529, 2912399, 1399419, 3630765,
		3630766, 3630767, 3266963, 3266964, 3065484, 1260190, 2591707, 132695,
		542304, 1443686, 2793467, 4010695, 3846239, 1766659, 791843, 2453845,
		3755631, 2478759, 2202761, 2202762, 2038036, 2102826, 978013, 1228375,
		3237109,
	}, ways)

	tmcs := resolve(t, resolver, true, locations...).Tmcs
	assert.Equal(t, []string{"120+24614", "120-24633", "120-24617"}, tmcs)
}
