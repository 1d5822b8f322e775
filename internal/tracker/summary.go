package tracker

// YearRange is an inclusive span of years.
type YearRange struct {
	First int
	Last  int
}

// Summary describes the tracked load state.
type Summary struct {
	// TotalYears is the number of tracked partitions.
	TotalYears int

	// Range spans the minimum and maximum loaded years. Nil when
	// nothing is loaded.
	Range *YearRange

	// LoadedYears lists the tracked years, ascending.
	LoadedYears []int

	// Gaps lists the maximal missing-year ranges strictly between the
	// minimum and maximum loaded year, ascending. Years outside the
	// observed span are never reported as gaps.
	Gaps []YearRange

	// TotalEvents sums the recorded row counts across partitions.
	TotalEvents int64

	// LastUpdated is the RFC3339 stamp of the last metadata write.
	LastUpdated string
}

// Summary computes the load state summary from persisted metadata.
func (t *Tracker) Summary() Summary {
	meta := t.load()

	s := Summary{
		TotalYears:  len(meta.LoadedYears),
		LoadedYears: meta.LoadedYears,
		LastUpdated: meta.LastUpdated,
	}
	for _, d := range meta.YearDetails {
		s.TotalEvents += d.RowCount
	}
	if len(meta.LoadedYears) == 0 {
		return s
	}

	years := meta.LoadedYears
	s.Range = &YearRange{First: years[0], Last: years[len(years)-1]}

	for i := 0; i < len(years)-1; i++ {
		if years[i+1]-years[i] > 1 {
			s.Gaps = append(s.Gaps, YearRange{First: years[i] + 1, Last: years[i+1] - 1})
		}
	}
	return s
}
