package conflation

import "github.com/tebben/conflator/route"

// TmcCodes returns the distinct traffic codes on a path.
func TmcCodes(path []MapSegment) []string {
	seen := make(map[string]struct{})
	var codes []string
	for _, s := range path {
		if s.Tmc == "" {
			continue
		}
		if _, ok := seen[s.Tmc]; !ok {
			seen[s.Tmc] = struct{}{}
			codes = append(codes, s.Tmc)
		}
	}
	return codes
}

// ResolveTmcs reduces a segment path to its traffic codes. Immediate repeats
// collapse, codes branching off the path are dropped and the result holds
// every code once, in path order.
func ResolveTmcs(path []MapSegment, endpoints map[string]TmcEndpoints) []string {
	var raw []string
	for _, s := range path {
		if s.Tmc == "" {
			continue
		}
		if n := len(raw); n > 0 && raw[n-1] == s.Tmc {
			continue
		}
		raw = append(raw, s.Tmc)
	}

	starts := make(map[route.CoordKey]map[string]struct{})
	for _, code := range raw {
		ep, ok := endpoints[code]
		if !ok {
			continue
		}
		if starts[ep.Start] == nil {
			starts[ep.Start] = make(map[string]struct{})
		}
		starts[ep.Start][code] = struct{}{}
	}

	var accepted []string
	for i, code := range raw {
		if n := len(accepted); n > 0 {
			prev, ok := endpoints[accepted[n-1]]
			if ok && len(starts[prev.End]) > 1 && !continuesFrom(prev.End, code, i == len(raw)-1, endpoints, starts) {
				continue
			}
		}
		accepted = append(accepted, code)
	}

	seen := make(map[string]struct{}, len(accepted))
	result := make([]string, 0, len(accepted))
	for _, code := range accepted {
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		result = append(result, code)
	}

	return result
}

// continuesFrom reports whether code starts at the branching point and leads
// somewhere, or closes the path.
func continuesFrom(branch route.CoordKey, code string, last bool, endpoints map[string]TmcEndpoints, starts map[route.CoordKey]map[string]struct{}) bool {
	ep, ok := endpoints[code]
	if !ok || ep.Start != branch {
		return false
	}

	return last || len(starts[ep.End]) > 0
}
