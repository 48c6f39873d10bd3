package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cashplan-fin/cashplan-fin/internal/forecast"
)

type stubRegistrar struct {
	run forecast.Run
	err error
}

func (s *stubRegistrar) Register(_ context.Context, run forecast.Run) (forecast.Run, error) {
	if s.err != nil {
		return forecast.Run{}, s.err
	}
	s.run = run
	run.ID = 12
	return run, nil
}

func confirmYes(io.Reader, io.Writer) (bool, error) { return true, nil }
func confirmNo(io.Reader, io.Writer) (bool, error)  { return false, nil }

func TestBackfillCommandDryJSONComplete(t *testing.T) {
	cli, err := NewForecastOpsCLI(&stubRegistrar{})
	require.NoError(t, err)

	source := strings.NewReader("date,balance\n2024-03-01,1200.50\n2024-03-02,900\n2024-03-03,1500\n")
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.BackfillCommand(context.Background(), ForecastBackfillOptions{
		From:         "2024-03-01",
		To:           "2024-03-03",
		SourceReader: source,
		JSONOutput:   true,
		Stdout:       stdout,
		Stderr:       stderr,
	})
	require.Zero(t, exitCode)
	require.Empty(t, stderr.String())

	var summary ForecastBackfillSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, ForecastBackfillModeDry, summary.Mode)
	require.Equal(t, 3, summary.HorizonDays)
	require.Equal(t, 3, summary.BalanceDates)
	require.Empty(t, summary.Missing)
	require.Zero(t, summary.ForecastID)
}

func TestBackfillCommandDryReportsCarryForward(t *testing.T) {
	cli, err := NewForecastOpsCLI(&stubRegistrar{})
	require.NoError(t, err)

	source := strings.NewReader("date,balance\n2024-03-01,1000\n2024-03-04,800\n")
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.BackfillCommand(context.Background(), ForecastBackfillOptions{
		From:         "2024-03-01",
		To:           "2024-03-05",
		SourceReader: source,
		JSONOutput:   true,
		Stdout:       stdout,
		Stderr:       stderr,
	})
	require.Equal(t, 10, exitCode)

	var summary ForecastBackfillSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, []string{"2024-03-02", "2024-03-03", "2024-03-05"}, summary.Missing)
}

func TestBackfillCommandAcceptsPipelineColumns(t *testing.T) {
	cli, err := NewForecastOpsCLI(&stubRegistrar{})
	require.NoError(t, err)

	source := strings.NewReader("ds,yhat\n2024-03-01,1000\n2024-03-02,1100\n")
	stdout := new(bytes.Buffer)
	exitCode := cli.BackfillCommand(context.Background(), ForecastBackfillOptions{
		From:         "2024-03-01",
		To:           "2024-03-02",
		SourceReader: source,
		JSONOutput:   true,
		Stdout:       stdout,
		Stderr:       new(bytes.Buffer),
	})
	require.Zero(t, exitCode)

	var summary ForecastBackfillSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, 2, summary.BalanceDates)
}

func TestBackfillCommandInvalidRange(t *testing.T) {
	cli, err := NewForecastOpsCLI(&stubRegistrar{})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	exitCode := cli.BackfillCommand(context.Background(), ForecastBackfillOptions{
		From:   "March 1",
		To:     "2024-03-05",
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "invalid --from")
}

func TestBackfillCommandRejectsDuplicateDates(t *testing.T) {
	cli, err := NewForecastOpsCLI(&stubRegistrar{})
	require.NoError(t, err)

	source := strings.NewReader("date,balance\n2024-03-01,1000\n2024-03-01,900\n")
	stderr := new(bytes.Buffer)
	exitCode := cli.BackfillCommand(context.Background(), ForecastBackfillOptions{
		From:         "2024-03-01",
		To:           "2024-03-02",
		SourceReader: source,
		Stdout:       new(bytes.Buffer),
		Stderr:       stderr,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "duplicate date")
}

func TestBackfillCommandApplyRegistersRun(t *testing.T) {
	registrar := &stubRegistrar{}
	cli, err := NewForecastOpsCLI(registrar)
	require.NoError(t, err)

	source := strings.NewReader("date,balance\n2024-03-01,1000\n2024-03-02,1100\n2024-03-03,900\n")
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	exitCode := cli.BackfillCommand(context.Background(), ForecastBackfillOptions{
		From:         "2024-03-01",
		To:           "2024-03-03",
		Mode:         ForecastBackfillModeApply,
		SourceReader: source,
		JSONOutput:   true,
		Stdout:       stdout,
		Stderr:       stderr,
		Confirm:      confirmYes,
	})
	require.Zero(t, exitCode)
	require.Empty(t, stderr.String())

	require.Equal(t, 3, registrar.run.HorizonDays)
	require.Equal(t, "2024-03-01", registrar.run.RunDate.Format(forecast.DateLayout))
	require.Len(t, registrar.run.Balances, 3)
	require.True(t, registrar.run.Balances["2024-03-02"].Equal(decimal.RequireFromString("1100")))

	var summary ForecastBackfillSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, int64(12), summary.ForecastID)
}

func TestBackfillCommandApplyCancelled(t *testing.T) {
	registrar := &stubRegistrar{}
	cli, err := NewForecastOpsCLI(registrar)
	require.NoError(t, err)

	source := strings.NewReader("date,balance\n2024-03-01,1000\n")
	stderr := new(bytes.Buffer)
	exitCode := cli.BackfillCommand(context.Background(), ForecastBackfillOptions{
		From:         "2024-03-01",
		To:           "2024-03-01",
		Mode:         ForecastBackfillModeApply,
		SourceReader: source,
		Stdout:       new(bytes.Buffer),
		Stderr:       stderr,
		Confirm:      confirmNo,
	})
	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "cancelled")
	require.Empty(t, registrar.run.Balances)
}
