// Package steps defines the step model of the pipeline: addressable units
// of work that read upstream datasets and write exactly one downstream
// dataset. Transform functions register here and are dispatched by URI.
package steps

import (
	"fmt"
	"strings"

	"github.com/terracehq/terrace/pkg/catalog"
)

// Step schemes. snapshot, grapher and export imply their channel; data
// carries the channel as the first path segment.
const (
	SchemeSnapshot = "snapshot"
	SchemeData     = "data"
	SchemeGrapher  = "grapher"
	SchemeExport   = "export"
)

// URI addresses one step, e.g.
//
//	snapshot://demography/2026-07-01/population.csv
//	data://garden/demography/2026-07-01/un_population
//	grapher://demography/2026-07-01/un_population
//	export://demography/2026-07-01/population_explorer
type URI struct {
	Scheme    string
	Channel   string
	Namespace string
	Version   string
	Name      string
}

// Parse validates and decomposes a step URI.
func Parse(s string) (URI, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return URI{}, fmt.Errorf("step uri %q: missing scheme", s)
	}
	parts := strings.Split(rest, "/")
	for _, p := range parts {
		if p == "" {
			return URI{}, fmt.Errorf("step uri %q: empty path segment", s)
		}
	}

	var u URI
	switch scheme {
	case SchemeData:
		if len(parts) != 4 {
			return URI{}, fmt.Errorf("step uri %q: want data://<channel>/<namespace>/<version>/<name>", s)
		}
		u = URI{Scheme: scheme, Channel: parts[0], Namespace: parts[1], Version: parts[2], Name: parts[3]}
		switch u.Channel {
		case catalog.ChannelMeadow, catalog.ChannelGarden, catalog.ChannelExplorer:
		default:
			return URI{}, fmt.Errorf("step uri %q: unknown data channel %q", s, u.Channel)
		}
	case SchemeSnapshot, SchemeGrapher, SchemeExport:
		if len(parts) != 3 {
			return URI{}, fmt.Errorf("step uri %q: want %s://<namespace>/<version>/<name>", s, scheme)
		}
		u = URI{Scheme: scheme, Channel: scheme, Namespace: parts[0], Version: parts[1], Name: parts[2]}
	default:
		return URI{}, fmt.Errorf("step uri %q: unknown scheme %q", s, scheme)
	}
	return u, nil
}

// String renders the canonical form.
func (u URI) String() string {
	if u.Scheme == SchemeData {
		return fmt.Sprintf("data://%s/%s/%s/%s", u.Channel, u.Namespace, u.Version, u.Name)
	}
	return fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Namespace, u.Version, u.Name)
}

// Path renders the step's location relative to a channel root:
// <channel>/<namespace>/<version>/<name>.
func (u URI) Path() string {
	return fmt.Sprintf("%s/%s/%s/%s", u.Channel, u.Namespace, u.Version, u.Name)
}
