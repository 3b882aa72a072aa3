package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tebben/conflator/mapversion"
)

const (
	codeOk      = "Ok"
	codeNoRoute = "NoRoute"
	codeNoMatch = "NoMatch"
)

// Client calls the OSRM instance registered for a conflation map version.
type Client struct {
	servers    map[string]string
	httpClient *http.Client
}

func NewClient(servers map[string]string, httpClient *http.Client) *Client {
	return &Client{servers: servers, httpClient: httpClient}
}

// Versions returns the conflation map versions with a routing engine, sorted.
func (c *Client) Versions() []string {
	versions := make([]string, 0, len(c.servers))
	for v := range c.servers {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}

func (c *Client) host(version string) (string, error) {
	host, ok := c.servers[version]
	if !ok {
		return "", fmt.Errorf("%w %q, the supported versions are [%s]",
			mapversion.ErrUnsupportedVersion, version, strings.Join(c.Versions(), ", "))
	}

	return strings.TrimRight(host, "/"), nil
}

// Route requests a driving route through all locations in order. A nil route
// and nil error mean the engine found no route.
func (c *Client) Route(ctx context.Context, version string, req Request) (*Route, error) {
	host, err := c.host(version)
	if err != nil {
		return nil, err
	}

	routeURL := fmt.Sprintf("%s/route/v1/driving/%s?%s", host, encodeLocations(req.Locations), routeQuery(req).Encode())

	var response Response
	if err := c.get(ctx, routeURL, &response); err != nil {
		return nil, err
	}

	switch response.Code {
	case codeOk:
	case codeNoRoute:
		return nil, nil
	default:
		return nil, fmt.Errorf("routing engine returned %s: %s", response.Code, response.Message)
	}

	if len(response.Routes) == 0 {
		return nil, nil
	}

	return &response.Routes[0], nil
}

// Match snaps a GPS trace onto the road network and returns the matched
// legs of every matching in order.
func (c *Client) Match(ctx context.Context, version string, locations []Location) ([]Leg, error) {
	host, err := c.host(version)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("annotations", "nodes")
	query.Set("overview", "false")

	matchURL := fmt.Sprintf("%s/match/v1/driving/%s?%s", host, encodeLocations(locations), query.Encode())

	var response MatchResponse
	if err := c.get(ctx, matchURL, &response); err != nil {
		return nil, err
	}

	switch response.Code {
	case codeOk:
	case codeNoMatch:
		return nil, nil
	default:
		return nil, fmt.Errorf("routing engine returned %s: %s", response.Code, response.Message)
	}

	var legs []Leg
	for _, matching := range response.Matchings {
		legs = append(legs, matching.Legs...)
	}

	return legs, nil
}

func (c *Client) get(ctx context.Context, requestURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	log.Debugf("routing request: %s", requestURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("routing engine unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read routing response: %w", err)
	}

	// OSRM reports NoRoute and NoMatch with a 400 status and a JSON body.
	if err := json.Unmarshal(body, target); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("routing engine returned HTTP %d", resp.StatusCode)
		}
		return fmt.Errorf("failed to decode routing response: %w", err)
	}

	return nil
}

func encodeLocations(locations []Location) string {
	parts := make([]string, len(locations))
	for i, l := range locations {
		parts[i] = formatFloat(l.Lon) + "," + formatFloat(l.Lat)
	}

	return strings.Join(parts, ";")
}

func routeQuery(req Request) url.Values {
	continueStraight := true
	if req.ContinueStraight != nil {
		continueStraight = *req.ContinueStraight
	}

	query := url.Values{}
	query.Set("annotations", "true")
	query.Set("continue_straight", strconv.FormatBool(continueStraight))
	query.Set("steps", "true")
	query.Set("overview", "full")
	query.Set("geometries", "geojson")

	if req.Radius != nil {
		radiuses := make([]string, len(req.Locations))
		for i := range radiuses {
			radiuses[i] = formatFloat(*req.Radius)
		}
		query.Set("radiuses", strings.Join(radiuses, ";"))
	}

	if req.Snapping != nil {
		query.Set("snapping", *req.Snapping)
	}

	return query
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
