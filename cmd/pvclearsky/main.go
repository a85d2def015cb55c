package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/lox/pvclearsky/internal/api"
	"github.com/lox/pvclearsky/internal/chart"
	"github.com/lox/pvclearsky/internal/clearsky"
	"github.com/lox/pvclearsky/internal/dataset"
	"github.com/lox/pvclearsky/internal/httputil"
	"github.com/lox/pvclearsky/internal/ingest"
	"github.com/lox/pvclearsky/internal/kpv"
	"github.com/lox/pvclearsky/internal/models"
	"github.com/lox/pvclearsky/internal/narrative"
	"github.com/lox/pvclearsky/internal/store"
	"github.com/lox/pvclearsky/internal/timeconv"
)

type CLI struct {
	Data    string `help:"Dataset directory holding metadata.csv and stationNN.csv." default:"data" type:"path" env:"PVCLEARSKY_DATA"`
	DB      string `help:"SQLite database. When set, station data is read from it instead of CSV." type:"path" env:"PVCLEARSKY_DB"`
	TZ      string `help:"Dataset timezone." name:"tz" default:"UTC+8" enum:"UTC,UTC+8" env:"PVCLEARSKY_TZ"`
	QC      bool   `help:"Drop records failing the irradiance quality-control check." name:"qc"`
	Model   string `help:"Clear-sky model config (YAML). Defaults to direct_dc PVWatts." type:"existingfile" env:"PVCLEARSKY_MODEL"`
	Verbose bool   `help:"Debug logging." short:"v"`
	JSONLog bool   `help:"Log as JSON." name:"json-log"`

	Import     ImportCmd     `cmd:"" help:"Import a CSV dataset directory into the database."`
	Irradiance IrradianceCmd `cmd:"" help:"Import a clear-sky irradiance CSV into the database."`
	Fetch      FetchCmd      `cmd:"" help:"Download the dataset over HTTP(S) or FTP."`
	Files      FilesCmd      `cmd:"" help:"List dataset files."`
	Info       InfoCmd       `cmd:"" help:"Summarise the dataset or one station."`
	Intersect  IntersectCmd  `cmd:"" help:"Show the overlapping date range of two stations."`
	Area       AreaCmd       `cmd:"" help:"Multiply two metadata columns of a station, e.g. panel size by panel count."`
	Select     SelectCmd     `cmd:"" help:"Export a station's records between two dates as CSV."`
	KPV        KPVCmd        `cmd:"" name:"kpv" help:"Compute K_PV and per-day error statistics for a window."`
	Runs       RunsCmd       `cmd:"" help:"List recent import runs."`
	Serve      ServeCmd      `cmd:"" help:"Run the HTTP API."`
}

// App carries global flags and lazily opened resources to commands.
type App struct {
	cli   *CLI
	db    *sql.DB
	store *store.Store
}

func (a *App) openStore() (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if a.cli.DB == "" {
		return nil, fmt.Errorf("--db is required")
	}
	db, err := sql.Open("sqlite", a.cli.DB)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.ApplyPragmas(db); err != nil {
		slog.Warn("database pragmas failed", "err", err)
	}

	st := store.New(db, time.UTC)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.db, a.store = db, st
	return st, nil
}

func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) dataset() (*dataset.Dataset, error) {
	tz, err := timeconv.ParseTimezone(a.cli.TZ)
	if err != nil {
		return nil, err
	}
	var opts []dataset.Option
	if a.cli.QC {
		opts = append(opts, dataset.WithQC(ingest.DefaultQC))
	}

	var src dataset.Source = dataset.DirSource{Dir: a.cli.Data}
	if a.cli.DB != "" {
		st, err := a.openStore()
		if err != nil {
			return nil, err
		}
		src = dataset.StoreSource{Store: st}
	}
	return dataset.New(src, tz, opts...)
}

func (a *App) calculator() (*kpv.Calculator, error) {
	cfg := clearsky.DefaultConfig()
	if a.cli.Model != "" {
		var err error
		if cfg, err = clearsky.LoadConfig(a.cli.Model); err != nil {
			return nil, err
		}
	}

	var st *store.Store
	if cfg.Irradiance.Source == "store" {
		var err error
		if st, err = a.openStore(); err != nil {
			return nil, err
		}
	}
	src, err := dataset.IrradianceSource(cfg.Irradiance, st)
	if err != nil {
		return nil, err
	}
	model, err := clearsky.New(cfg, src)
	if err != nil {
		return nil, err
	}
	floor, err := kpv.ParseFloor(cfg.Floor)
	if err != nil {
		return nil, err
	}
	slog.Debug("model configured", "strategy", cfg.Strategy, "floor", cfg.Floor)
	return kpv.NewCalculator(model, floor), nil
}

type ImportCmd struct {
	Dir string `arg:"" optional:"" help:"Directory to import (defaults to --data)." type:"existingdir"`
}

func (c *ImportCmd) Run(app *App) error {
	st, err := app.openStore()
	if err != nil {
		return err
	}
	dir := c.Dir
	if dir == "" {
		dir = app.cli.Data
	}
	res, err := ingest.NewImporter(st).ImportDir(dir)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d stations, %d records\n", res.Stations, res.Records)
	for _, name := range res.Skipped {
		fmt.Printf("skipped %s (unchanged)\n", name)
	}
	return nil
}

type IrradianceCmd struct {
	Name  string        `arg:"" help:"Table name referenced by irradiance.name in the model config."`
	Path  string        `arg:"" help:"CSV with ghi,dni,dhi and optional date_time columns." type:"existingfile"`
	Start time.Time     `help:"Re-index samples from this UTC time (RFC 3339). Required when the CSV has no date_time column."`
	Step  time.Duration `help:"Spacing of re-indexed samples." default:"15m"`
}

func (c *IrradianceCmd) Run(app *App) error {
	st, err := app.openStore()
	if err != nil {
		return err
	}
	n, err := ingest.NewImporter(st).ImportIrradiance(c.Name, c.Path, c.Start, c.Step)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d irradiance samples into %q\n", n, c.Name)
	return nil
}

type FetchCmd struct {
	URL    string   `arg:"" help:"Base URL of the dataset (http, https or ftp)."`
	Files  []string `help:"Files to download (defaults to metadata.csv and station00-09.csv)."`
	Import bool     `help:"Import the downloaded files into --db."`
}

func (c *FetchCmd) Run(ctx context.Context, app *App) error {
	paths, err := ingest.NewFetcher(httputil.NewClient()).FetchDataset(ctx, c.URL, c.Files, app.cli.Data)
	if err != nil {
		return err
	}
	fmt.Printf("downloaded %d files to %s\n", len(paths), app.cli.Data)
	if !c.Import {
		return nil
	}
	return (&ImportCmd{Dir: app.cli.Data}).Run(app)
}

type FilesCmd struct{}

func (c *FilesCmd) Run(app *App) error {
	ds, err := app.dataset()
	if err != nil {
		return err
	}
	files, err := ds.ShowFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return nil
}

type InfoCmd struct {
	Station int `arg:"" optional:"" default:"-1" help:"Station index for per-column statistics."`
}

func (c *InfoCmd) Run(app *App) error {
	ds, err := app.dataset()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if c.Station < 0 {
		summary, err := ds.Info()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "INDEX\tSTATION\tRECORDS")
		for _, m := range ds.Metadata() {
			fmt.Fprintf(w, "%d\t%s\t%d\n", m.Index, m.StationID, summary.Stations[m.StationID])
		}
		fmt.Fprintf(w, "\ttotal\t%d\n", summary.Total)
		return nil
	}

	stats, err := ds.StationInfo(c.Station)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "COLUMN\tCOUNT\tMEAN\tSTD\tMIN\t25%\t50%\t75%\tMAX")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\n",
			s.Column, s.Count, s.Mean, s.Std, s.Min, s.Q25, s.Median, s.Q75, s.Max)
	}
	return nil
}

type IntersectCmd struct {
	A int `arg:"" help:"First station index."`
	B int `arg:"" help:"Second station index."`
}

func (c *IntersectCmd) Run(app *App) error {
	ds, err := app.dataset()
	if err != nil {
		return err
	}
	in, err := ds.DateIntersection(c.A, c.B)
	if err != nil {
		return err
	}
	layout := timeconv.Layout
	fmt.Printf("station %d: %s .. %s\n", c.A, in.A.Start.Format(layout), in.A.End.Format(layout))
	fmt.Printf("station %d: %s .. %s\n", c.B, in.B.Start.Format(layout), in.B.End.Format(layout))
	fmt.Printf("overlap:    %s .. %s\n", in.Overlap.Start.Format(layout), in.Overlap.End.Format(layout))
	return nil
}

type AreaCmd struct {
	Station int    `arg:"" help:"Station index."`
	A       string `help:"First metadata column." default:"Panel_Size"`
	B       string `help:"Second metadata column." default:"Panel_Number"`
}

func (c *AreaCmd) Run(app *App) error {
	ds, err := app.dataset()
	if err != nil {
		return err
	}
	area, err := ds.PanelArea(c.Station, c.A, c.B)
	if err != nil {
		return err
	}
	fmt.Printf("%g\n", area)
	return nil
}

type SelectCmd struct {
	Station int    `arg:"" help:"Station index."`
	Start   string `arg:"" help:"First timestamp, inclusive, in the dataset timezone."`
	End     string `arg:"" help:"Last timestamp, inclusive, in the dataset timezone."`
	Out     string `help:"Output CSV path (stdout when empty)." short:"o"`
}

func (c *SelectCmd) Run(app *App) error {
	ds, err := app.dataset()
	if err != nil {
		return err
	}
	records, err := ds.SelectDateRange(c.Station, c.Start, c.End)
	if err != nil {
		return err
	}

	out, closeOut, err := output(c.Out)
	if err != nil {
		return err
	}
	defer closeOut()

	w := csv.NewWriter(out)
	w.Write([]string{ingest.ColDateTime, ingest.ColPower, ingest.ColTotalIrradiance, ingest.ColDiffuseIrradiance, ingest.ColTemperature})
	for _, r := range records {
		w.Write([]string{
			r.Timestamp.Format(timeconv.Layout),
			ingest.FormatFloat(r.Power),
			ingest.FormatFloat(r.TotalIrradiance),
			ingest.FormatFloat(r.DiffuseIrradiance),
			ingest.FormatFloat(r.Temperature),
		})
	}
	w.Flush()
	return w.Error()
}

type KPVCmd struct {
	Station   int    `arg:"" help:"Station index."`
	Start     int    `help:"First record of the window." default:"0"`
	End       int    `help:"End of the window, exclusive (defaults to one day after start)."`
	Out       string `help:"Write measured, reference and K_PV per step as CSV." short:"o"`
	KPVChart  string `help:"Write the K_PV chart PNG." name:"kpv-chart"`
	SkyChart  string `help:"Write the measured vs clear-sky chart PNG." name:"clearsky-chart"`
	Card      string `help:"Write the summary card PNG."`
	Narrative bool   `help:"Summarise the report with OpenAI (needs OPENAI_API_KEY)."`
	LLMModel  string `help:"OpenAI chat model for --narrative." name:"llm-model" env:"OPENAI_MODEL"`
}

func (c *KPVCmd) Run(ctx context.Context, app *App) error {
	ds, err := app.dataset()
	if err != nil {
		return err
	}
	calc, err := app.calculator()
	if err != nil {
		return err
	}
	end := c.End
	if end == 0 {
		end = c.Start + models.StepsPerDay
	}
	a, err := ds.Analyze(calc, c.Station, c.Start, end)
	if err != nil {
		return err
	}
	res := a.Result

	fmt.Printf("%s  model=%s  window=[%d, %d)  timezone=%s\n", a.Station.StationID, res.Model, res.Start, res.End, a.Timezone)
	fmt.Printf("mean K_PV: %.3f\n", res.MeanKPV)
	if a.ReportError != "" {
		fmt.Printf("report: %s\n", a.ReportError)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tMAPE %\tRMSE\tMAE")
	for _, r := range a.Reports {
		fmt.Fprintf(w, "%s\t%.2f\t%.3f\t%.3f\n", r.Label, r.MAPE, r.RMSE, r.MAE)
	}
	w.Flush()

	if c.Out != "" {
		if err := writeWindowCSV(c.Out, a); err != nil {
			return err
		}
	}
	if c.KPVChart != "" {
		if err := writePNG(c.KPVChart, func() ([]byte, error) { return chart.KPV(res) }); err != nil {
			return err
		}
	}
	if c.SkyChart != "" {
		if err := writePNG(c.SkyChart, func() ([]byte, error) { return chart.ClearSky(res, a.Reports) }); err != nil {
			return err
		}
	}
	if c.Card != "" {
		if err := writePNG(c.Card, func() ([]byte, error) {
			return chart.Card(chart.CardData{StationID: a.Station.StationID, Result: res, Reports: a.Reports})
		}); err != nil {
			return err
		}
	}

	if c.Narrative {
		s, err := narrative.NewSummarizer(os.Getenv("OPENAI_API_KEY"), c.LLMModel)
		if err != nil {
			return err
		}
		text, err := s.Summarize(ctx, a.Station.StationID, res, a.Reports)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s\n", text)
	}
	return nil
}

func writeWindowCSV(path string, a *dataset.Analysis) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	res := a.Result
	w := csv.NewWriter(f)
	w.Write([]string{"step", "measured_power", "reference_power", "k_pv"})
	for i := range res.KPV {
		w.Write([]string{
			strconv.Itoa(res.Start + i),
			ingest.FormatFloat(res.MeasuredPower[i]),
			ingest.FormatFloat(res.ReferencePower[i]),
			ingest.FormatFloat(res.KPV[i]),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	slog.Info("wrote window", "path", path, "steps", len(res.KPV))
	return nil
}

func writePNG(path string, render func() ([]byte, error)) error {
	data, err := render()
	if err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	slog.Info("wrote chart", "path", path, "bytes", len(data))
	return nil
}

func output(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

type RunsCmd struct {
	Limit int `help:"Number of runs to show." default:"20"`
}

func (c *RunsCmd) Run(app *App) error {
	st, err := app.openStore()
	if err != nil {
		return err
	}
	runs, err := st.GetRecentImportRuns(c.Limit)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tKIND\tTARGET\tSTARTED\tSTORED\tOK\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%t\t%s\n",
			r.ID, r.Kind, r.Target, r.StartedAt.Format(time.RFC3339), r.RecordsStored.Int64, r.Success, r.ErrorMessage.String)
	}
	return nil
}

type ServeCmd struct {
	Port     string        `help:"HTTP server port." default:"8080" env:"PORT"`
	CacheTTL time.Duration `help:"How long rendered charts are cached." default:"1h"`
	LLMModel string        `help:"OpenAI chat model for narrative summaries." name:"llm-model" env:"OPENAI_MODEL"`
}

func (c *ServeCmd) Run(ctx context.Context, app *App) error {
	ds, err := app.dataset()
	if err != nil {
		return err
	}
	calc, err := app.calculator()
	if err != nil {
		return err
	}

	opts := []api.Option{api.WithChartCache(chart.NewCache(c.CacheTTL))}
	if app.store != nil {
		opts = append(opts, api.WithStore(app.store))
	}
	if s, err := narrative.NewSummarizer(os.Getenv("OPENAI_API_KEY"), c.LLMModel); err != nil {
		slog.Info("narrative summaries disabled", "err", err)
	} else {
		opts = append(opts, api.WithNarrator(s))
	}

	slog.Info("starting server", "port", c.Port, "stations", len(ds.Metadata()), "model", calc.Model.Name())
	return api.NewServer(ds, calc, c.Port, opts...).Run(ctx)
}

func setupLogging(cli *CLI) {
	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cli.JSONLog {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	app := &App{cli: &cli}
	defer app.Close()

	kctx := kong.Parse(&cli,
		kong.Name("pvclearsky"),
		kong.Description("Clear-sky performance index (K_PV) for PV station telemetry."),
		kong.UsageOnError(),
		kong.Bind(app),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	setupLogging(&cli)

	if err := kctx.Run(); err != nil {
		slog.Error("command failed", "command", kctx.Command(), "err", err)
		app.Close()
		cancel()
		os.Exit(1)
	}
}
