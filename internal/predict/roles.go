package predict

import (
	"goalcast/internal/features"
)

// Side is where a feature value for an upcoming fixture comes from
type Side int

const (
	// SideBoth averages the home and away teams' recent rows
	SideBoth Side = iota
	// SideHome uses the home team's recent home matches
	SideHome
	// SideAway uses the away team's recent away matches
	SideAway
)

func (s Side) String() string {
	switch s {
	case SideHome:
		return "home"
	case SideAway:
		return "away"
	}
	return "both"
}

// Roles assigns feature columns to a side. It is immutable once built;
// columns it does not name are match-level and use SideBoth.
type Roles struct {
	sides map[string]Side
}

// NewRoles builds a role table. A column named in both lists is home.
func NewRoles(home, away []string) Roles {
	sides := make(map[string]Side, len(home)+len(away))
	for _, name := range away {
		sides[name] = SideAway
	}
	for _, name := range home {
		sides[name] = SideHome
	}
	return Roles{sides: sides}
}

// Of returns the side of a column
func (r Roles) Of(name string) Side {
	return r.sides[name]
}

// Football-data columns that describe one side of a match
var (
	HomeColumns = []string{
		"FTHG", "HG", "HTHG", "HS", "HST", "HHW", "HC", "HF", "HFKC", "HO", "HY", "HR", "HBP",
		"B365H", "BFH", "BSH", "BWH", "GBH", "IWH", "LBH", "PSH", "SOH", "SBH", "SJH", "SYH", "VCH", "WHH",
		"BbMxH", "BbAvH", "MaxH", "AvgH", "BFEH", "BbMxAHH", "BbAvAHH", "GBAHH", "LBAHH", "B365AHH", "PAHH",
		"MaxAHH", "AvgAHH", "BbAHh", "AHh", "GBAH", "LBAH", "B365AH",
	}
	AwayColumns = []string{
		"FTAG", "AG", "HTAG", "AS", "AST", "AHW", "AC", "AF", "AFKC", "AO", "AY", "AR", "ABP",
		"B365A", "BFA", "BSA", "BWA", "GBA", "IWA", "LBA", "PSA", "SOA", "SBA", "SJA", "SYA", "VCA", "WHA",
		"BbMxA", "BbAvA", "MaxA", "AvgA", "BFEA", "BbMxAHA", "BbAvAHA", "GBAHA", "LBAHA", "B365AHA", "PAHA",
		"MaxAHA", "AvgAHA",
	}
)

// DefaultRoles combines the football-data side columns with the names the
// synthesizer produces for opts.
func DefaultRoles(opts features.Options) Roles {
	home := append([]string(nil), HomeColumns...)
	home = append(home, features.ColumnsFor(features.RoleHome, opts).All()...)
	away := append([]string(nil), AwayColumns...)
	away = append(away, features.ColumnsFor(features.RoleAway, opts).All()...)
	return NewRoles(home, away)
}
