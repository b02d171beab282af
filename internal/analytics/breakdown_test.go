package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Leganyst/travel-booking-core/internal/model"
)

func TestByDestination_SharesSumTo100(t *testing.T) {
	dests := []string{"Lisbon", "Rome", "Oslo", "Lisbon", "Rome", "Kyoto", ""}
	var records []model.BookingRecord
	for i, d := range dests {
		r := rec(i+1, "c1", testAt, model.BookingStatusConfirmed, 100)
		r.Destination = d
		records = append(records, r)
	}

	shares := ByDestination(records)

	require.Len(t, shares, 5)
	require.Equal(t, "Lisbon", shares[0].Key)
	require.Equal(t, "Rome", shares[1].Key)
	require.Equal(t, 200.0, shares[0].Revenue)

	total := 0
	keys := make(map[string]bool)
	for _, s := range shares {
		total += int(math.Round(s.SharePercent * 100))
		keys[s.Key] = true
	}
	require.Equal(t, 10000, total)
	require.True(t, keys[UnknownKey])
}

func TestByCountry_ThreeEqualGroups(t *testing.T) {
	var records []model.BookingRecord
	for i, c := range []string{"Italy", "Norway", "Japan"} {
		r := rec(i+1, "c1", testAt, model.BookingStatusConfirmed, 100)
		r.Country = c
		records = append(records, r)
	}

	shares := ByCountry(records)

	sum := 0.0
	for _, s := range shares {
		sum += s.SharePercent
	}
	require.InDelta(t, 100.0, sum, 1e-9)
	require.Equal(t, 33.34, shares[0].SharePercent)
}

func TestBySource_Empty(t *testing.T) {
	require.Empty(t, BySource(nil))
	require.NotNil(t, BySource(nil))
}
