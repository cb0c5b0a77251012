package geo

import "math"

const earthRadiusMeters = 6371000.0

// Point is a WGS84 position in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// StepToward moves from `from` toward `to` by step, measured in degrees on the
// lat/lon plane. When the remaining distance is not larger than step, `to` is
// returned so a mover can never overshoot its target.
func StepToward(from, to Point, step float64) Point {
	dLat := to.Lat - from.Lat
	dLon := to.Lon - from.Lon
	remaining := math.Hypot(dLat, dLon)
	if step <= 0 || remaining == 0 {
		return from
	}
	if remaining <= step {
		return to
	}
	frac := step / remaining
	return Point{
		Lat: from.Lat + dLat*frac,
		Lon: from.Lon + dLon*frac,
	}
}

// NearlyEqual reports whether a and b are identical once rounded to precision
// decimal digits.
func NearlyEqual(a, b Point, precision int) bool {
	return round(a.Lat, precision) == round(b.Lat, precision) &&
		round(a.Lon, precision) == round(b.Lon, precision)
}

func round(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}

// Distance is the haversine distance in meters.
func Distance(a, b Point) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// Bearing returns the initial bearing from a to b in degrees [0, 360).
func Bearing(a, b Point) float64 {
	y := math.Sin((b.Lon-a.Lon)*math.Pi/180.0) * math.Cos(b.Lat*math.Pi/180.0)
	x := math.Cos(a.Lat*math.Pi/180.0)*math.Sin(b.Lat*math.Pi/180.0) - math.Sin(a.Lat*math.Pi/180.0)*math.Cos(b.Lat*math.Pi/180.0)*math.Cos((b.Lon-a.Lon)*math.Pi/180.0)
	brng := math.Atan2(y, x) * 180.0 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}

// DistanceToSegment returns the distance in meters from p to the segment a-b,
// using an equirectangular projection centred on p.
func DistanceToSegment(p, a, b Point) float64 {
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	toXY := func(q Point) (x, y float64) {
		y = (q.Lat - p.Lat) * math.Pi / 180 * earthRadiusMeters
		x = (q.Lon - p.Lon) * math.Pi / 180 * earthRadiusMeters * cosLat
		return
	}
	x0, y0 := toXY(a)
	x1, y1 := toXY(b)
	dx := x1 - x0
	dy := y1 - y0
	segLen2 := dx*dx + dy*dy
	t := 0.0
	if segLen2 > 0 {
		// projection of the origin (p) onto the segment
		t = -(x0*dx + y0*dy) / segLen2
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	px := x0 + t*dx
	py := y0 + t*dy
	return math.Hypot(px, py)
}

// Bounds is a lat/lon rectangle.
type Bounds struct {
	South, West, North, East float64
}

// Contains reports whether p lies inside b, edges included.
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.South && p.Lat <= b.North && p.Lon >= b.West && p.Lon <= b.East
}
