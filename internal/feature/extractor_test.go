package feature

import (
	"testing"

	"offcampus/internal/model"
)

func f64(v float64) *float64 { return &v }

func TestExtractFlattensUnits(t *testing.T) {
	t.Parallel()

	listings := []model.Listing{
		{
			ID:        "p1",
			City:      "College Station",
			State:     "TX",
			WalkScore: f64(40),
			Rating:    f64(4.5),
			Latitude:  f64(30.6),
			Longitude: f64(-96.3),
			Rentals: []model.RentalUnit{
				{Key: "u1", PropertyID: "p1", Rent: f64(900), SquareFeet: f64(600), Details: []string{"1 Beds", "1 Baths"}},
				{Key: "u2", PropertyID: "p1", Rent: f64(1200), SquareFeet: f64(800)},
			},
		},
	}

	rows := Extract(listings)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Details != "1 Beds, 1 Baths" {
		t.Fatalf("expected joined details, got %q", rows[0].Details)
	}
	if rows[0].PropertyID != "p1" || rows[0].UnitKey != "u1" {
		t.Fatalf("unexpected identity: %s/%s", rows[0].PropertyID, rows[0].UnitKey)
	}
	if rows[1].Details != "" {
		t.Fatalf("expected empty details for tagless unit, got %q", rows[1].Details)
	}
	if got := rows[0].Numeric(ColWalkScore); got == nil || *got != 40 {
		t.Fatalf("expected walk score propagated from listing, got %v", got)
	}
	if rows[0].Categorical(ColCity) != "College Station" {
		t.Fatalf("expected city propagated, got %q", rows[0].Categorical(ColCity))
	}
}

func TestExtractUnitsDropsOrphans(t *testing.T) {
	t.Parallel()

	listings := []model.Listing{{ID: "p1", City: "Bryan"}}
	units := []model.RentalUnit{
		{Key: "u1", PropertyID: "p1", Rent: f64(800)},
		{Key: "u2", PropertyID: "missing-parent", Rent: f64(700)},
	}

	rows := ExtractUnits(units, listings)
	if len(rows) != 1 {
		t.Fatalf("expected orphan unit dropped, got %d rows", len(rows))
	}
	if rows[0].UnitKey != "u1" {
		t.Fatalf("expected surviving unit u1, got %s", rows[0].UnitKey)
	}
}

func TestPetFees(t *testing.T) {
	t.Parallel()

	listing := model.Listing{
		ID: "p1",
		PetFees: []model.PetPolicy{
			{Title: "Cats Allowed", Fees: []model.FeeEntry{{Key: FeeKeyMonthlyPetRent, Value: "$15"}}},
			{Title: "Dogs Allowed", Fees: []model.FeeEntry{
				{Key: FeeKeyMonthlyPetRent, Value: "$25"},
				{Key: FeeKeyOneTime, Value: "$300"},
			}},
		},
	}

	if got := MonthlyPetFee(listing, "Dogs Allowed"); got == nil || *got != 25 {
		t.Fatalf("expected monthly dog fee 25, got %v", got)
	}
	if got := OneTimePetFee(listing, "Dogs Allowed"); got == nil || *got != 300 {
		t.Fatalf("expected one time dog fee 300, got %v", got)
	}
	if got := MonthlyPetFee(listing, "Cats Allowed"); got == nil || *got != 15 {
		t.Fatalf("expected monthly cat fee 15, got %v", got)
	}
	if got := OneTimePetFee(listing, "Cats Allowed"); got != nil {
		t.Fatalf("expected nil for absent fee entry, got %v", *got)
	}
	if got := MonthlyPetFee(listing, "Birds Allowed"); got != nil {
		t.Fatalf("expected nil for absent pet type, got %v", *got)
	}
}

func TestPetFeeUnparseableValue(t *testing.T) {
	t.Parallel()

	listing := model.Listing{
		ID: "p1",
		PetFees: []model.PetPolicy{
			{Title: "Dogs Allowed", Fees: []model.FeeEntry{{Key: FeeKeyMonthlyPetRent, Value: "call for details"}}},
		},
	}
	if got := MonthlyPetFee(listing, "Dogs Allowed"); got != nil {
		t.Fatalf("expected nil for unparseable fee, got %v", *got)
	}
}
