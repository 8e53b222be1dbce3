package queue

import "math"

// Gender preference values. GenderAny matches every profile.
const (
	GenderMale   = "male"
	GenderFemale = "female"
	GenderAny    = "any"
)

// Profile is the read-only snapshot of a user's matchable attributes,
// captured from the profile service at enqueue time.
type Profile struct {
	Age    int     `json:"age"`
	Gender string  `json:"gender"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

// Criteria is a user's match-acceptance window. MaxDistanceKm of 0 means
// no distance limit; an empty GenderPref behaves like GenderAny.
type Criteria struct {
	AgeMin        int     `json:"age_min"`
	AgeMax        int     `json:"age_max"`
	MaxDistanceKm float64 `json:"max_distance_km"`
	GenderPref    string  `json:"gender_pref"`
}

// Accepts reports whether a candidate profile at the given distance falls
// inside the criteria window.
func (c Criteria) Accepts(p Profile, distanceKm float64) bool {
	if p.Age < c.AgeMin || p.Age > c.AgeMax {
		return false
	}
	if c.MaxDistanceKm > 0 && distanceKm > c.MaxDistanceKm {
		return false
	}
	if c.GenderPref != "" && c.GenderPref != GenderAny && c.GenderPref != p.Gender {
		return false
	}
	return true
}

// MutuallyCompatible reports whether each user's profile satisfies the
// other's criteria. Pairing requires compatibility in both directions.
func MutuallyCompatible(a Profile, ac Criteria, b Profile, bc Criteria) bool {
	d := DistanceKm(a.Lat, a.Lng, b.Lat, b.Lng)
	return ac.Accepts(b, d) && bc.Accepts(a, d)
}

// DistanceKm computes the haversine distance between two coordinates.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0

	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
