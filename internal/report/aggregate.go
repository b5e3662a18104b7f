package report

// Sums holds the shot totals across every brand in one report.
type Sums struct {
	FirstShot  int `json:"first_shot"`
	SecondShot int `json:"second_shot"`
}

// ShotSums adds up first and second doses across entries. Absent counts
// contribute zero and an empty list yields zero sums.
func ShotSums(entries []VaccineEntry) Sums {
	var s Sums
	for _, e := range entries {
		s.FirstShot += e.FirstShot.OrZero()
		s.SecondShot += e.SecondShot.OrZero()
	}
	return s
}
