package domain

// SelectNearest returns the candidate closest to origin along with its
// distance in kilometers. ok is false when candidates is empty.
//
// Candidates are scanned in order and only a strictly smaller distance
// replaces the running minimum, so the first of several equidistant
// candidates wins.
func SelectNearest(origin Coordinate, candidates []SeismicEvent) (nearest SeismicEvent, distanceKm float64, ok bool) {
	for i := range candidates {
		d := Distance(origin, candidates[i].Coordinate)
		if !ok || d < distanceKm {
			nearest = candidates[i]
			distanceKm = d
			ok = true
		}
	}
	return nearest, distanceKm, ok
}
