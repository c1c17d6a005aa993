package astrology

import (
	"math"
	"time"

	"github.com/soniakeys/meeus/v3/base"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/soniakeys/meeus/v3/moonposition"
	"github.com/soniakeys/meeus/v3/nutation"
	"github.com/soniakeys/meeus/v3/sidereal"
	"github.com/soniakeys/meeus/v3/solar"
)

// Body is a celestial object's geocentric ecliptic longitude in degrees.
type Body struct {
	Name      string
	Longitude float64
}

// Chart is the raw output of a ChartCalculator.
type Chart struct {
	Bodies    []Body
	Ascendant float64
}

type ChartCalculator interface {
	Chart(moment time.Time, coords Coordinates) (Chart, error)
}

// EphemerisCalculator takes the Sun, the Moon and sidereal time from Meeus'
// algorithms. Planets come from mean orbital elements (valid roughly
// 1800-2050, about a degree of error) since the VSOP87 theory needs
// external data files.
type EphemerisCalculator struct{}

func NewEphemerisCalculator() *EphemerisCalculator {
	return &EphemerisCalculator{}
}

type orbit struct {
	name string
	// value at J2000 and rate per Julian century:
	// semi-major axis, eccentricity, inclination, mean longitude,
	// longitude of perihelion, longitude of ascending node
	a, aDot       float64
	e, eDot       float64
	i, iDot       float64
	l, lDot       float64
	peri, periDot float64
	node, nodeDot float64
}

// earthOrbit turns heliocentric planet positions into geocentric ones.
var earthOrbit = orbit{"Earth",
	1.00000261, 0.00000562, 0.01671123, -0.00004392, -0.00001531, -0.01294668,
	100.46457166, 35999.37244981, 102.93768193, 0.32327364, 0.0, 0.0}

var planetOrbits = []orbit{
	{"Mercury", 0.38709927, 0.00000037, 0.20563593, 0.00001906, 7.00497902, -0.00594749,
		252.25032350, 149472.67411175, 77.45779628, 0.16047689, 48.33076593, -0.12534081},
	{"Venus", 0.72333566, 0.00000390, 0.00677672, -0.00004107, 3.39467605, -0.00078890,
		181.97909950, 58517.81538729, 131.60246718, 0.00268329, 76.67984255, -0.27769418},
	{"Mars", 1.52371034, 0.00001847, 0.09339410, 0.00007882, 1.84969142, -0.00813131,
		-4.55343205, 19140.30268499, -23.94362959, 0.44441088, 49.55953891, -0.29257343},
	{"Jupiter", 5.20288700, -0.00011607, 0.04838624, -0.00013253, 1.30439695, -0.00183714,
		34.39644051, 3034.74612775, 14.72847983, 0.21252668, 100.47390909, 0.20469106},
	{"Saturn", 9.53667594, -0.00125060, 0.05386179, -0.00050991, 2.48599187, 0.00193609,
		49.95424423, 1222.49362201, 92.59887831, -0.41897216, 113.66242448, -0.28867794},
	{"Uranus", 19.18916464, -0.00196176, 0.04725744, -0.00004397, 0.77263783, -0.00242939,
		313.23810451, 428.48202785, 170.95427630, 0.40805281, 74.01692503, 0.04240589},
	{"Neptune", 30.06992276, 0.00026291, 0.00859048, 0.00005105, 1.77004347, 0.00035372,
		-55.12002969, 218.45945325, 44.96476227, -0.32241464, 131.78422574, -0.00508664},
	{"Pluto", 39.48211675, -0.00031596, 0.24882730, 0.00005170, 17.14001206, 0.00004818,
		238.92903833, 145.20780515, 224.06891629, -0.04062942, 110.30393684, -0.01183482},
}

func (EphemerisCalculator) Chart(moment time.Time, coords Coordinates) (Chart, error) {
	jd := julian.TimeToJD(moment.UTC())
	t := base.J2000Century(jd)

	moon, _, _ := moonposition.Position(jd)
	bodies := make([]Body, 0, len(planetOrbits)+2)
	bodies = append(bodies,
		Body{Name: "Sun", Longitude: normalizeDegrees(solar.ApparentLongitude(t).Deg())},
		Body{Name: "Moon", Longitude: normalizeDegrees(moon.Deg())},
	)

	ex, ey, _ := heliocentric(earthOrbit, t)
	for _, o := range planetOrbits {
		x, y, _ := heliocentric(o, t)
		bodies = append(bodies, Body{
			Name:      o.name,
			Longitude: normalizeDegrees(rad2deg(math.Atan2(y-ey, x-ex))),
		})
	}

	return Chart{
		Bodies:    bodies,
		Ascendant: ascendant(jd, coords),
	}, nil
}

// heliocentric returns ecliptic J2000 coordinates in AU.
func heliocentric(o orbit, t float64) (x, y, z float64) {
	a := o.a + o.aDot*t
	e := o.e + o.eDot*t
	inc := deg2rad(o.i + o.iDot*t)
	l := o.l + o.lDot*t
	peri := o.peri + o.periDot*t
	node := o.node + o.nodeDot*t

	m := deg2rad(normalizeDegrees(l - peri))
	w := deg2rad(peri - node)
	n := deg2rad(node)

	ecc := solveKepler(m, e)
	xp := a * (math.Cos(ecc) - e)
	yp := a * math.Sqrt(1-e*e) * math.Sin(ecc)

	cw, sw := math.Cos(w), math.Sin(w)
	cn, sn := math.Cos(n), math.Sin(n)
	ci, si := math.Cos(inc), math.Sin(inc)

	x = (cw*cn-sw*sn*ci)*xp + (-sw*cn-cw*sn*ci)*yp
	y = (cw*sn+sw*cn*ci)*xp + (-sw*sn+cw*cn*ci)*yp
	z = (sw*si)*xp + (cw*si)*yp
	return x, y, z
}

func solveKepler(m, e float64) float64 {
	ecc := m + e*math.Sin(m)
	for range 10 {
		delta := (ecc - e*math.Sin(ecc) - m) / (1 - e*math.Cos(ecc))
		ecc -= delta
		if math.Abs(delta) < 1e-10 {
			break
		}
	}
	return ecc
}

// ascendant uses east-positive longitude.
func ascendant(jd float64, coords Coordinates) float64 {
	ramc := sidereal.Apparent(jd).Rad() + deg2rad(coords.Longitude)
	_, dEps := nutation.Nutation(jd)
	eps := nutation.MeanObliquity(jd).Rad() + dEps.Rad()
	lat := deg2rad(math.Max(-89.9, math.Min(89.9, coords.Latitude)))

	asc := math.Atan2(math.Cos(ramc), -(math.Sin(ramc)*math.Cos(eps) + math.Tan(lat)*math.Sin(eps)))
	return normalizeDegrees(rad2deg(asc))
}

func normalizeDegrees(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

func deg2rad(d float64) float64 { return d * math.Pi / 180 }
func rad2deg(r float64) float64 { return r * 180 / math.Pi }
