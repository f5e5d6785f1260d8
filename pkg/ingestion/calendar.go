package ingestion

import "time"

// KST is the issuer's time zone. Korea has no daylight saving time.
var KST = time.FixedZone("KST", 9*60*60)

// FirstDrawAt is when round 1 was drawn. Rounds follow weekly.
var FirstDrawAt = time.Date(2002, time.December, 7, 20, 35, 0, 0, KST)

const drawInterval = 7 * 24 * time.Hour

// ExpectedRound returns the latest round whose draw time is at or before now, 0 before round 1.
func ExpectedRound(now time.Time) int {
	if now.Before(FirstDrawAt) {
		return 0
	}
	return int(now.Sub(FirstDrawAt)/drawInterval) + 1
}

// DrawTimeFor returns the scheduled draw time of round.
func DrawTimeFor(round int) time.Time {
	if round < 1 {
		return time.Time{}
	}
	return FirstDrawAt.AddDate(0, 0, 7*(round-1))
}
