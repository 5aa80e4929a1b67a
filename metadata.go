package smokerlog

type PlotOptions struct {
	Title   string
	Columns []string
	Colors  []string
	XLabel  string
	YLabel  string
	YUnit   string
}

// Metadata describes the series carried by a stream or snapshot. DATA
// messages refer to columns by index (SeriesID).
type Metadata struct {
	XIsTimestamp bool
	Region       *Region `json:",omitempty"`
	PlotOptions  PlotOptions
}

func (m Metadata) SeriesID(name string) (uint32, bool) {
	for i, c := range m.PlotOptions.Columns {
		if c == name {
			return uint32(i), true
		}
	}
	return 0, false
}
