// Package catalog is the typed schema registry for the warehouse.
//
// Every relation the pipeline reads or writes is registered here as a
// logical table with a fixed physical identifier. SQL is always built
// from these constants, never from configuration strings, and the full
// registry is validated once at startup.
package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Table identifies a logical warehouse relation.
type Table int

const (
	RawEvents Table = iota
	DimTime
	DimLocation
	DimMagnitude
	FactEvents
	CubeTimeMagnitude
	CubeLocationMagnitude
	CubeDepthAnalysis
	CubeTemporalTrends
	CubeMoonPhase
)

// physical maps each logical table to its physical identifier.
var physical = map[Table]string{
	RawEvents:             "raw_earthquakes",
	DimTime:               "dim_time",
	DimLocation:           "dim_location",
	DimMagnitude:          "dim_magnitude",
	FactEvents:            "fact_earthquakes",
	CubeTimeMagnitude:     "cube_time_magnitude",
	CubeLocationMagnitude: "cube_location_magnitude",
	CubeDepthAnalysis:     "cube_depth_analysis",
	CubeTemporalTrends:    "cube_temporal_trends",
	CubeMoonPhase:         "cube_moon_phase",
}

// Name returns the physical identifier for a logical table.
func (t Table) Name() string {
	name, ok := physical[t]
	if !ok {
		return fmt.Sprintf("table(%d)", int(t))
	}
	return name
}

// String implements fmt.Stringer.
func (t Table) String() string { return t.Name() }

// Dimensions lists the dimension tables in build order.
func Dimensions() []Table {
	return []Table{DimTime, DimLocation, DimMagnitude}
}

// Cubes lists the cube tables.
func Cubes() []Table {
	return []Table{
		CubeTimeMagnitude,
		CubeLocationMagnitude,
		CubeDepthAnalysis,
		CubeTemporalTrends,
		CubeMoonPhase,
	}
}

// All lists every registered table.
func All() []Table {
	all := make([]Table, 0, len(physical))
	for t := range physical {
		all = append(all, t)
	}
	return all
}

// partitionPrefix prefixes every per-partition raw relation.
const partitionPrefix = "raw_earthquakes_"

// PartitionTable returns the physical identifier of the per-year raw
// relation backing a partition.
func PartitionTable(year int) string {
	return partitionPrefix + strconv.Itoa(year)
}

// ParsePartitionTable reports whether name is a per-partition relation
// and returns its year.
func ParsePartitionTable(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, partitionPrefix)
	if !ok {
		return 0, false
	}
	year, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return year, true
}

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks the registry for duplicate or malformed identifiers.
// It is called once at startup; a failure is a programming error.
func Validate() error {
	seen := make(map[string]Table, len(physical))
	for t, name := range physical {
		if !identRe.MatchString(name) {
			return fmt.Errorf("table %d has malformed identifier %q", int(t), name)
		}
		if strings.HasPrefix(name, partitionPrefix) {
			return fmt.Errorf("table %q collides with partition naming", name)
		}
		if prev, dup := seen[name]; dup {
			return fmt.Errorf("tables %d and %d share identifier %q", int(prev), int(t), name)
		}
		seen[name] = t
	}
	return nil
}
