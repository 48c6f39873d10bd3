package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cashplan-fin/cashplan-fin/internal/forecast"
)

// ForecastBackfillMode enumerates supported execution strategies.
type ForecastBackfillMode string

const (
	// ForecastBackfillModeDry previews the run without storing it.
	ForecastBackfillModeDry ForecastBackfillMode = "dry"
	// ForecastBackfillModeApply registers the run after confirmation.
	ForecastBackfillModeApply ForecastBackfillMode = "apply"
)

// ForecastRegistrar stores a validated forecast run.
type ForecastRegistrar interface {
	Register(ctx context.Context, run forecast.Run) (forecast.Run, error)
}

// ForecastOpsCLI bundles operational forecast commands.
type ForecastOpsCLI struct {
	registrar ForecastRegistrar
}

// NewForecastOpsCLI initialises the forecast ops commands.
func NewForecastOpsCLI(registrar ForecastRegistrar) (*ForecastOpsCLI, error) {
	if registrar == nil {
		return nil, errors.New("forecast cli: registrar is required")
	}
	return &ForecastOpsCLI{registrar: registrar}, nil
}

// ForecastBackfillOptions configures the backfill command execution.
type ForecastBackfillOptions struct {
	From         string
	To           string
	Mode         ForecastBackfillMode
	Source       string
	SourceReader io.Reader
	JSONOutput   bool
	Stdout       io.Writer
	Stderr       io.Writer
	Stdin        io.Reader
	Confirm      func(io.Reader, io.Writer) (bool, error)
}

// ForecastBackfillSummary captures the structured reporting outcome.
type ForecastBackfillSummary struct {
	Mode         ForecastBackfillMode `json:"mode"`
	From         string               `json:"from"`
	To           string               `json:"to"`
	HorizonDays  int                  `json:"horizon_days"`
	BalanceDates int                  `json:"balance_dates"`
	Missing      []string             `json:"missing_dates,omitempty"`
	ForecastID   int64                `json:"forecast_id,omitempty"`
}

// BackfillCommand loads daily balances from CSV and registers them as a
// forecast run. Dates absent from the source fall back to carry-forward at
// planning time; dry mode lists them so the operator can decide.
func (c *ForecastOpsCLI) BackfillCommand(ctx context.Context, opts ForecastBackfillOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Mode == "" {
		opts.Mode = ForecastBackfillModeDry
	}
	mode := ForecastBackfillMode(strings.ToLower(string(opts.Mode)))
	switch mode {
	case ForecastBackfillModeDry, ForecastBackfillModeApply:
	default:
		fmt.Fprintf(opts.Stderr, "forecast backfill: invalid mode %q (expected dry or apply)\n", opts.Mode)
		return 1
	}
	from, err := time.Parse(forecast.DateLayout, strings.TrimSpace(opts.From))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "forecast backfill: invalid --from %q (expected YYYY-MM-DD)\n", opts.From)
		return 1
	}
	to, err := time.Parse(forecast.DateLayout, strings.TrimSpace(opts.To))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "forecast backfill: invalid --to %q (expected YYYY-MM-DD)\n", opts.To)
		return 1
	}
	if from.After(to) {
		fmt.Fprintln(opts.Stderr, "forecast backfill: --from must be earlier than --to")
		return 1
	}

	balances, err := loadBackfillBalances(from, to, opts)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "forecast backfill: %v\n", err)
		return 1
	}

	horizon := int(to.Sub(from).Hours()/24) + 1
	var missing []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if _, ok := balances[d.Format(forecast.DateLayout)]; !ok {
			missing = append(missing, d.Format(forecast.DateLayout))
		}
	}

	summary := ForecastBackfillSummary{
		Mode:         mode,
		From:         from.Format(forecast.DateLayout),
		To:           to.Format(forecast.DateLayout),
		HorizonDays:  horizon,
		BalanceDates: len(balances),
		Missing:      missing,
	}

	if mode == ForecastBackfillModeDry {
		if err := writeForecastBackfillOutput(opts, summary); err != nil {
			fmt.Fprintf(opts.Stderr, "forecast backfill: %v\n", err)
			return 1
		}
		if len(missing) > 0 {
			return 10
		}
		return 0
	}

	if len(balances) == 0 {
		fmt.Fprintln(opts.Stderr, "forecast backfill: source has no balances in range")
		return 1
	}

	confirm := opts.Confirm
	if confirm == nil {
		confirm = defaultBackfillConfirm
	}
	ok, err := confirm(opts.Stdin, opts.Stdout)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "forecast backfill: confirmation failed: %v\n", err)
		return 1
	}
	if !ok {
		fmt.Fprintln(opts.Stderr, "forecast backfill: cancelled by user")
		return 1
	}

	run, err := c.registrar.Register(ctx, forecast.Run{
		RunDate:     from,
		HorizonDays: horizon,
		Balances:    balances,
	})
	if err != nil {
		fmt.Fprintf(opts.Stderr, "forecast backfill: register failed: %v\n", err)
		return 1
	}
	summary.ForecastID = run.ID
	if err := writeForecastBackfillOutput(opts, summary); err != nil {
		fmt.Fprintf(opts.Stderr, "forecast backfill: %v\n", err)
		return 1
	}
	return 0
}

// loadBackfillBalances reads date,balance records inside [from,to]. Column
// aliases ds and yhat match the CSV the forecasting pipeline exports.
func loadBackfillBalances(from, to time.Time, opts ForecastBackfillOptions) (map[string]decimal.Decimal, error) {
	var data []byte
	var err error
	switch {
	case opts.SourceReader != nil:
		data, err = io.ReadAll(opts.SourceReader)
	case opts.Source == "-":
		if opts.Stdin == nil {
			return nil, errors.New("source - requires stdin")
		}
		data, err = io.ReadAll(opts.Stdin)
	case strings.TrimSpace(opts.Source) == "":
		return nil, errors.New("--source is required")
	default:
		data, err = os.ReadFile(opts.Source)
	}
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	header, err := nextNonEmptyRecord(reader)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]decimal.Decimal{}, nil
		}
		return nil, err
	}
	dateIdx, balanceIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "date", "ds":
			dateIdx = i
		case "balance", "yhat":
			balanceIdx = i
		}
	}
	if dateIdx < 0 || balanceIdx < 0 {
		return nil, errors.New("missing required columns in source (need date, balance)")
	}

	result := make(map[string]decimal.Decimal)
	for {
		record, err := nextNonEmptyRecord(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if dateIdx >= len(record) || balanceIdx >= len(record) {
			return nil, errors.New("invalid record length in source")
		}
		dateStr := strings.TrimSpace(record[dateIdx])
		if dateStr == "" {
			continue
		}
		day, err := time.Parse(forecast.DateLayout, dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q in source", dateStr)
		}
		if day.Before(from) || day.After(to) {
			continue
		}
		key := day.Format(forecast.DateLayout)
		if _, ok := result[key]; ok {
			return nil, fmt.Errorf("duplicate date %s in source", key)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(record[balanceIdx]))
		if err != nil {
			return nil, fmt.Errorf("invalid balance for %s: %v", key, err)
		}
		result[key] = amount
	}
	return result, nil
}

func nextNonEmptyRecord(r *csv.Reader) ([]string, error) {
	for {
		record, err := r.Read()
		if err != nil {
			return nil, err
		}
		if len(record) == 0 {
			continue
		}
		skip := true
		for _, field := range record {
			trimmed := strings.TrimSpace(field)
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, "#") {
				continue
			}
			skip = false
		}
		if skip {
			continue
		}
		return record, nil
	}
}

func writeForecastBackfillOutput(opts ForecastBackfillOptions, summary ForecastBackfillSummary) error {
	if opts.JSONOutput {
		return json.NewEncoder(opts.Stdout).Encode(summary)
	}
	renderForecastBackfillHuman(opts.Stdout, summary)
	return nil
}

func renderForecastBackfillHuman(out io.Writer, summary ForecastBackfillSummary) {
	fmt.Fprintf(out, "Forecast backfill (%s) for %s to %s\n", summary.Mode, summary.From, summary.To)
	fmt.Fprintf(out, "%d day horizon, %d balance date(s) from source.\n", summary.HorizonDays, summary.BalanceDates)
	if len(summary.Missing) == 0 {
		fmt.Fprintln(out, "Every date in range is covered.")
	} else {
		fmt.Fprintf(out, "%d date(s) rely on carry-forward:\n", len(summary.Missing))
		for _, date := range summary.Missing {
			fmt.Fprintf(out, " - %s\n", date)
		}
	}
	if summary.ForecastID > 0 {
		fmt.Fprintf(out, "Registered forecast run %d.\n", summary.ForecastID)
	}
}

func defaultBackfillConfirm(r io.Reader, w io.Writer) (bool, error) {
	fmt.Fprint(w, "Register forecast run? Type YES to confirm: ")
	reader := bufio.NewReader(r)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	response := strings.TrimSpace(line)
	return strings.EqualFold(response, "YES"), nil
}
