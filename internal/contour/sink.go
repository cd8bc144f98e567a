package contour

// Sink receives every completed polyline. The points slice is handed over to
// the sink and is not touched by the generator afterwards. Returning an error
// aborts the scan.
type Sink interface {
	Accept(level float64, points []Point) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(level float64, points []Point) error

// Accept calls f(level, points).
func (f SinkFunc) Accept(level float64, points []Point) error {
	return f(level, points)
}

// Polyline is a completed contour line.
type Polyline struct {
	Level  float64 `json:"level" yaml:"level"`
	Points []Point `json:"points" yaml:"points"`
}

// Closed reports whether the first and last vertices coincide.
func (p Polyline) Closed() bool {
	return len(p.Points) > 2 && near(p.Points[0], p.Points[len(p.Points)-1])
}

// Collector is a Sink that keeps every polyline in memory.
type Collector struct {
	Polylines []Polyline
}

// Accept records the polyline.
func (c *Collector) Accept(level float64, points []Point) error {
	c.Polylines = append(c.Polylines, Polyline{Level: level, Points: points})
	return nil
}

// ByLevel returns the collected polylines at the given level.
func (c *Collector) ByLevel(level float64) []Polyline {
	var out []Polyline
	for _, p := range c.Polylines {
		if p.Level == level {
			out = append(out, p)
		}
	}
	return out
}
