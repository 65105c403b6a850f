package main

import (
	"net/url"

	"github.com/spf13/cobra"

	"cachepledge.org/internal/registry"
)

// filterFlags mirrors the admin list query parameters.
type filterFlags struct {
	state      string
	cacheType  string
	gcUsername string
	search     string
	startDate  string
	endDate    string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.state, "state", "", "state code, e.g. NSW")
	cmd.Flags().StringVar(&f.cacheType, "cache-type", "", "cache type, e.g. TRADITIONAL")
	cmd.Flags().StringVar(&f.gcUsername, "gc-username", "", "geocaching username substring")
	cmd.Flags().StringVar(&f.search, "search", "", "free-text search")
	cmd.Flags().StringVar(&f.startDate, "start-date", "", "created on or after (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&f.endDate, "end-date", "", "created on or before (YYYY-MM-DD or RFC 3339)")
}

func (f *filterFlags) filter() (registry.Filter, error) {
	return registry.FilterFromQuery(url.Values{
		"state":      {f.state},
		"cacheType":  {f.cacheType},
		"gcUsername": {f.gcUsername},
		"search":     {f.search},
		"startDate":  {f.startDate},
		"endDate":    {f.endDate},
	})
}
