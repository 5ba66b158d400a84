package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/lox/drillprep/internal/channels"
	"github.com/lox/drillprep/internal/decimate"
	"github.com/lox/drillprep/internal/export"
	"github.com/lox/drillprep/internal/ingest"
	"github.com/lox/drillprep/internal/mapping"
	"github.com/lox/drillprep/internal/models"
	"github.com/lox/drillprep/internal/store"
	"github.com/lox/drillprep/internal/survey"
)

// CatalogSource picks the channel catalog: a YAML file, the server database
// or the built-in catalog, in that order.
type CatalogSource struct {
	Catalog string `help:"Channel catalog YAML file." type:"existingfile" env:"DRILLPREP_CATALOG"`
	DB      string `help:"Read the catalog from this server database." type:"existingfile"`
}

func (c CatalogSource) load() (*channels.Catalog, error) {
	switch {
	case c.Catalog != "":
		return channels.Load(c.Catalog)
	case c.DB != "":
		st, err := store.Open(c.DB)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		return st.Catalog()
	}
	return channels.Default(), nil
}

type MapCmd struct {
	File string            `arg:"" help:"Log file (.las, .csv or .xlsx)." type:"existingfile"`
	Set  map[string]string `help:"Map a column by hand, e.g. --set WOB=ML_WOB."`
	Out  string            `short:"o" help:"Write the mapped log here; the extension picks the format."`

	CatalogSource `embed:""`
}

func (c *MapCmd) Run() error {
	m, ds, err := mapFile(c.File, c.CatalogSource, c.Set)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCOLUMN\tUNIT\tCHANNEL\tMAPPED UNIT")
	for i, col := range m.Columns {
		mapped := col.Mapped
		if mapped == "" {
			mapped = "-"
		}
		if col.ManualEdit {
			mapped += " *"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i, col.Original, col.OriginalUnit, mapped, col.MappedUnit)
	}
	tw.Flush()

	audit := ingest.AuditDataset(ds)
	fmt.Printf("\n%d rows, quality %d (%s): completeness %d, conformity %d, statistics %d\n",
		audit.Rows, audit.Overall, audit.Grade, audit.Completeness, audit.Conformity, audit.Statistics)
	for _, issue := range audit.Issues {
		fmt.Printf("  %s: %s\n", issue.Column, strings.Join(issue.Flags, ", "))
	}

	if c.Out == "" {
		return nil
	}
	mapped, err := m.Complete()
	if err != nil {
		return err
	}
	return writeFile(c.Out, mapped)
}

type DecimateCmd struct {
	File       string            `arg:"" help:"Log file (.las, .csv or .xlsx)." type:"existingfile"`
	Out        string            `short:"o" required:"" help:"Output file; the extension picks the format."`
	Set        map[string]string `help:"Map a column by hand, e.g. --set WOB=ML_WOB."`
	Interval   float64           `help:"Depth interval; 0 keeps every row." default:"10"`
	Smoothing  bool              `help:"Apply 3-point smoothing."`
	Outliers   bool              `help:"Drop outliers within each bin."`
	Filter     string            `help:"Depth filter." default:"all" enum:"all,section,formation"`
	Section    string            `help:"Section id for --filter=section."`
	Formation  string            `help:"Formation id for --filter=formation."`
	Sections   string            `help:"JSON file of hole sections." type:"existingfile"`
	Formations string            `help:"JSON file of formations." type:"existingfile"`
	Survey     string            `help:"JSON file of survey stations (md, inclination)." type:"existingfile"`

	CatalogSource `embed:""`
}

func (c *DecimateCmd) Run() error {
	m, _, err := mapFile(c.File, c.CatalogSource, c.Set)
	if err != nil {
		return err
	}
	ds, err := m.Complete()
	if err != nil {
		return err
	}
	rows := mapping.DrillingRows(ds)

	in := decimate.Input{
		Rows: rows,
		Config: models.DecimationConfig{
			DepthInterval:     c.Interval,
			FilterMode:        models.FilterMode(c.Filter),
			SelectedSection:   c.Section,
			SelectedFormation: c.Formation,
			EnableSmoothing:   c.Smoothing,
			OutlierRemoval:    c.Outliers,
		},
	}
	var stations []models.SurveyStation
	for _, f := range []struct {
		path string
		v    any
	}{{c.Sections, &in.Sections}, {c.Formations, &in.Formations}, {c.Survey, &stations}} {
		if err := readJSON(f.path, f.v); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var tokens decimate.Tokens
	points, err := decimate.NewEngine().Run(ctx, tokens.Next(), in)
	if err != nil {
		return err
	}
	points = survey.Enrich(points, stations)
	zap.S().Infof("decimate: %d rows -> %d points", len(rows), len(points))

	return writeFile(c.Out, export.Decimated(points, in.Sections, ds))
}

type FetchCmd struct {
	List FetchListCmd `cmd:"" help:"List log files in the drop."`
	Get  FetchGetCmd  `cmd:"" help:"Download one file."`
	Pull FetchPullCmd `cmd:"" help:"Store every new file in the drop into the server database."`
}

type FetchListCmd struct {
	FTP FTPFlags `embed:"" prefix:"ftp-"`
}

func (c *FetchListCmd) Run() error {
	src, err := requireFTP(c.FTP)
	if err != nil {
		return err
	}
	files, err := src.List(context.Background())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", f.Name, f.Size, f.Modified.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

type FetchGetCmd struct {
	Name string   `arg:"" help:"File name in the drop."`
	Out  string   `short:"o" help:"Output path (defaults to the file name)."`
	FTP  FTPFlags `embed:"" prefix:"ftp-"`
}

func (c *FetchGetCmd) Run() error {
	src, err := requireFTP(c.FTP)
	if err != nil {
		return err
	}
	body, err := src.Fetch(context.Background(), c.Name)
	if err != nil {
		return err
	}
	out := c.Out
	if out == "" {
		out = filepath.Base(c.Name)
	}
	if err := os.WriteFile(out, body, 0o644); err != nil {
		return err
	}
	zap.S().Infof("fetch: wrote %s (%d bytes)", out, len(body))
	return nil
}

type FetchPullCmd struct {
	DB  string   `help:"SQLite database path." default:"data/drillprep.db" env:"DRILLPREP_DB"`
	FTP FTPFlags `embed:"" prefix:"ftp-"`
}

func (c *FetchPullCmd) Run() error {
	src, err := requireFTP(c.FTP)
	if err != nil {
		return err
	}
	st, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := ingest.NewScheduler(st, src, nil, ingest.SchedulerConfig{}).PollOnce(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("stored %d new logs\n", n)
	return nil
}

type CatalogCmd struct {
	Search string `help:"Only channels whose name or aliases contain this."`
	Shared bool   `help:"List aliases owned by more than one channel."`
	YAML   bool   `help:"Print the catalog as YAML."`

	CatalogSource `embed:""`
}

func (c *CatalogCmd) Run() error {
	cat, err := c.load()
	if err != nil {
		return err
	}

	switch {
	case c.YAML:
		data, err := cat.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	case c.Shared:
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ALIAS\tRESOLVES TO\tALSO LISTED BY")
		for _, s := range cat.SharedAliases() {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Alias, s.Owners[0], strings.Join(s.Owners[1:], ", "))
		}
		return tw.Flush()
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCHANNEL\tALIASES")
	for _, ch := range cat.Search(c.Search) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ch.ID, ch.StandardName, strings.Join(ch.Aliases, ", "))
	}
	return tw.Flush()
}

func mapFile(path string, src CatalogSource, set map[string]string) (*mapping.Mapping, *models.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	ds, err := ingest.Read(path, f)
	if err != nil {
		return nil, nil, err
	}
	cat, err := src.load()
	if err != nil {
		return nil, nil, err
	}

	m := mapping.Build(ds, cat)
	for column, channel := range set {
		i := ds.Column(column)
		if i < 0 {
			return nil, nil, fmt.Errorf("--set %s: %w", column, mapping.ErrNoColumn)
		}
		if err := m.Update(i, channel, ""); err != nil {
			return nil, nil, err
		}
	}
	return m, ds, nil
}

func writeFile(path string, ds *models.Dataset) error {
	format, err := export.ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, format, ds); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	zap.S().Infof("wrote %s (%d rows)", path, len(ds.Rows))
	return nil
}

func readJSON(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func requireFTP(flags FTPFlags) (*ingest.FTPSource, error) {
	src := flags.source()
	if src == nil {
		return nil, fmt.Errorf("--ftp-host (or DRILLPREP_FTP_HOST) is required")
	}
	return src, nil
}
