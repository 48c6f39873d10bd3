package planner

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestBuildCurveCarriesBalancesForward(t *testing.T) {
	curve := BuildCurve(d(2024, 3, 1), 4, map[string]decimal.Decimal{
		"2024-03-01": dec("100"),
		"2024-03-03": dec("50"),
	})

	want := []string{"100", "100", "50", "50"}
	for i, w := range want {
		if got := curve.Balance(i); !got.Equal(dec(w)) {
			t.Fatalf("balance day %d = %s, want %s", i, got, w)
		}
	}
}

func TestBuildCurveBackfillsBeforeFirstPoint(t *testing.T) {
	curve := BuildCurve(d(2024, 3, 1), 3, map[string]decimal.Decimal{
		"2024-03-03": dec("70"),
	})

	for i := 0; i < curve.Days(); i++ {
		if got := curve.Balance(i); !got.Equal(dec("70")) {
			t.Fatalf("balance day %d = %s, want 70", i, got)
		}
	}
}

func TestDetectDeficitsFlagsDatesWhereOutflowOutrunsForecast(t *testing.T) {
	curve := BuildCurve(d(2024, 3, 1), 3, map[string]decimal.Decimal{"2024-03-01": dec("100")})
	outflows := []decimal.Decimal{dec("50"), dec("80"), decimal.Zero}

	deficits := DetectDeficits(curve, outflows)
	if len(deficits) != 2 {
		t.Fatalf("deficits = %d, want 2", len(deficits))
	}
	if !deficits[0].Date.Equal(d(2024, 3, 2)) || !deficits[0].Shortfall.Equal(dec("30")) {
		t.Fatalf("first deficit = %+v, want 2024-03-02 shortfall 30", deficits[0])
	}
	if !deficits[1].Date.Equal(d(2024, 3, 3)) || !deficits[1].Shortfall.Equal(dec("30")) {
		t.Fatalf("second deficit = %+v, want 2024-03-03 shortfall 30", deficits[1])
	}
}

func TestDetectDeficitsExactZeroBalanceIsNotADeficit(t *testing.T) {
	curve := BuildCurve(d(2024, 3, 1), 2, map[string]decimal.Decimal{"2024-03-01": dec("100")})

	deficits := DetectDeficits(curve, []decimal.Decimal{dec("100"), decimal.Zero})
	if len(deficits) != 0 {
		t.Fatalf("deficits = %+v, want none when the balance lands exactly on zero", deficits)
	}
}

func TestDetectDeficitsReportsNegativeForecastWithoutOutflows(t *testing.T) {
	curve := BuildCurve(d(2024, 3, 1), 2, map[string]decimal.Decimal{
		"2024-03-01": dec("-200"),
		"2024-03-02": dec("1500"),
	})

	deficits := DetectDeficits(curve, make([]decimal.Decimal, 2))
	if len(deficits) != 1 {
		t.Fatalf("deficits = %+v, want only the negative forecast day", deficits)
	}
	if !deficits[0].Date.Equal(d(2024, 3, 1)) || !deficits[0].Shortfall.Equal(dec("200")) {
		t.Fatalf("deficit = %+v, want 2024-03-01 shortfall 200", deficits[0])
	}
}

func TestDetectDeficitsMatchesRunningBalance(t *testing.T) {
	curve := BuildCurve(d(2024, 3, 1), 5, map[string]decimal.Decimal{
		"2024-03-01": dec("100"),
		"2024-03-03": dec("-40"),
		"2024-03-05": dec("250"),
	})
	outflows := []decimal.Decimal{dec("30"), decimal.Zero, dec("10"), dec("5"), dec("300")}

	flagged := map[string]decimal.Decimal{}
	for _, df := range DetectDeficits(curve, outflows) {
		flagged[df.Date.Format("2006-01-02")] = df.Shortfall
	}

	cum := decimal.Zero
	for i := 0; i < curve.Days(); i++ {
		cum = cum.Add(outflows[i])
		avail := curve.Balance(i).Sub(cum)
		key := curve.Date(i).Format("2006-01-02")
		shortfall, ok := flagged[key]
		if avail.IsNegative() != ok {
			t.Fatalf("day %s: flagged=%v, running balance %s", key, ok, avail)
		}
		if ok && !shortfall.Equal(avail.Neg()) {
			t.Fatalf("day %s: shortfall %s, want %s", key, shortfall, avail.Neg())
		}
	}
}
