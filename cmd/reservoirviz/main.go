package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"github.com/lox/reservoirviz/internal/api"
	"github.com/lox/reservoirviz/internal/cache"
	"github.com/lox/reservoirviz/internal/fetch"
	"github.com/lox/reservoirviz/internal/frame"
	"github.com/lox/reservoirviz/internal/imagegen"
	"github.com/lox/reservoirviz/internal/ingest"
	"github.com/lox/reservoirviz/internal/logging"
	"github.com/lox/reservoirviz/internal/maplayer"
	"github.com/lox/reservoirviz/internal/models"
	"github.com/lox/reservoirviz/internal/rft"
	"github.com/lox/reservoirviz/internal/store"
)

type Globals struct {
	DB        string `help:"Path to SQLite database." default:"data/reservoirviz.db" env:"RESERVOIRVIZ_DB"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" env:"LOG_LEVEL"`
	LogFormat string `help:"Log format (json, console)." default:"console" env:"LOG_FORMAT" enum:"json,console"`
	EnvFile   string `help:"Environment file loaded before parsing flags." default:".env" name:"env-file"`

	CacheSize int           `help:"Maximum memoized results held in memory." default:"256" env:"CACHE_SIZE"`
	CacheTTL  time.Duration `help:"Lifetime of memoized results." default:"1h" env:"CACHE_TTL"`
	RedisURL  string        `help:"Redis URL for the shared cache level." env:"REDIS_URL"`

	S3Endpoint  string `help:"S3 endpoint for s3:// locations." env:"S3_ENDPOINT"`
	S3AccessKey string `help:"S3 access key." env:"S3_ACCESS_KEY"`
	S3SecretKey string `help:"S3 secret key." env:"S3_SECRET_KEY"`
	S3Region    string `help:"S3 region." env:"S3_REGION"`
	S3Insecure  bool   `help:"Use plain HTTP for S3." env:"S3_INSECURE"`

	log *zap.Logger `kong:"-"`
}

type CLI struct {
	Globals

	Serve            ServeCmd            `cmd:"" help:"Run the HTTP server."`
	Migrate          MigrateCmd          `cmd:"" help:"Apply database migrations and exit."`
	ImportRFT        ImportRFTCmd        `cmd:"" name:"import-rft" help:"Import an RFT observation CSV."`
	ImportFaults     ImportFaultsCmd     `cmd:"" name:"import-faults" help:"Import fault polylines from CSV."`
	ImportFormations ImportFormationsCmd `cmd:"" name:"import-formations" help:"Import well zonation from CSV."`
	ImportPressures  ImportPressuresCmd  `cmd:"" name:"import-pressures" help:"Import observed or simulated pressure profiles from CSV."`
	RegisterSurface  RegisterSurfaceCmd  `cmd:"" name:"register-surface" help:"Add or update a surface catalog entry."`
	Layer            LayerCmd            `cmd:"" help:"Print the map layer JSON for a surface."`
	Crossplot        CrossplotCmd        `cmd:"" help:"Print the RFT crossplot figure JSON."`
}

func main() {
	loadEnvFile(os.Args[1:])

	var cli CLI
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx := kong.Parse(&cli,
		kong.Name("reservoirviz"),
		kong.Description("Reservoir surface maps, cross-sections and RFT pressure figures."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	log, err := logging.New(cli.LogLevel, cli.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()
	cli.log = log

	kctx.FatalIfErrorf(kctx.Run(&cli.Globals))
}

// loadEnvFile loads the --env-file named in args, or .env, before kong
// reads env tags. Variables already set are not overridden.
func loadEnvFile(args []string) {
	path := ".env"
	for i, a := range args {
		switch {
		case strings.HasPrefix(a, "--env-file="):
			path = strings.TrimPrefix(a, "--env-file=")
		case a == "--env-file" && i+1 < len(args):
			path = args[i+1]
		}
	}
	if err := godotenv.Load(path); err != nil && path != ".env" {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", path, err)
	}
}

// openStore opens and migrates the database.
func (g *Globals) openStore(ctx context.Context) (*store.Store, func(), error) {
	if err := os.MkdirAll(filepath.Dir(g.DB), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, g.log)
	if err := st.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

func (g *Globals) fetcher() (*fetch.Fetcher, error) {
	var opts []fetch.Option
	if g.S3Endpoint != "" {
		opts = append(opts, fetch.WithS3(fetch.S3Config{
			Endpoint:  g.S3Endpoint,
			AccessKey: g.S3AccessKey,
			SecretKey: g.S3SecretKey,
			Region:    g.S3Region,
			UseSSL:    !g.S3Insecure,
		}))
	}
	return fetch.New(g.log, opts...)
}

// layerBuilder wires the fetcher and memo cache, with Redis as a shared
// second level when configured. The returned func releases the Redis
// connection.
func (g *Globals) layerBuilder(ctx context.Context) (*maplayer.Builder, func(), error) {
	f, err := g.fetcher()
	if err != nil {
		return nil, nil, err
	}
	var opts []cache.Option
	closeFn := func() {}
	if g.RedisURL != "" {
		r, err := cache.DialRedis(ctx, g.RedisURL, "reservoirviz:", 30*time.Second, g.log)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, cache.WithShared(r))
		closeFn = func() { r.Close() }
	}
	c := cache.New(g.CacheSize, g.CacheTTL, g.log, opts...)
	return maplayer.NewBuilder(f, c, g.log), closeFn, nil
}

type ServeCmd struct {
	Port       string `help:"HTTP server port." default:"8080" env:"PORT"`
	LegendDir  string `help:"Directory for cached legend PNGs." default:"data/legends" env:"LEGEND_DIR"`
	AllowPaths bool   `help:"Allow surface endpoints to load raw path= locations." env:"ALLOW_PATHS"`
}

func (c *ServeCmd) Run(g *Globals, ctx context.Context) error {
	st, closeDB, err := g.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	layers, closeCache, err := g.layerBuilder(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	legends := imagegen.NewCache(c.LegendDir, 24*time.Hour, g.log)
	srv := api.NewServer(st, layers, legends, c.Port, g.log)
	srv.SetAllowPaths(c.AllowPaths)
	return srv.Run(ctx)
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(g *Globals, ctx context.Context) error {
	st, closeDB, err := g.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	v, err := st.MigrationVersion(ctx)
	if err != nil {
		return err
	}
	g.log.Info("database migrated", zap.Int("version", v))
	return nil
}

func (g *Globals) importer(ctx context.Context) (*ingest.Importer, func(), error) {
	st, closeDB, err := g.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	f, err := g.fetcher()
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return ingest.NewImporter(f, st, g.log), closeDB, nil
}

type ImportRFTCmd struct {
	Location string `arg:"" help:"CSV path or URL."`
	Force    bool   `help:"Import even if the content is unchanged."`
}

func (c *ImportRFTCmd) Run(g *Globals, ctx context.Context) error {
	im, done, err := g.importer(ctx)
	if err != nil {
		return err
	}
	defer done()
	_, err = im.ImportRFT(ctx, c.Location, c.Force)
	return err
}

type ImportFaultsCmd struct {
	Location string `arg:"" help:"CSV path or URL."`
	Force    bool   `help:"Import even if the content is unchanged."`
}

func (c *ImportFaultsCmd) Run(g *Globals, ctx context.Context) error {
	im, done, err := g.importer(ctx)
	if err != nil {
		return err
	}
	defer done()
	_, err = im.ImportFaults(ctx, c.Location, c.Force)
	return err
}

type ImportFormationsCmd struct {
	Location string `arg:"" help:"CSV path or URL."`
	Force    bool   `help:"Import even if the content is unchanged."`
}

func (c *ImportFormationsCmd) Run(g *Globals, ctx context.Context) error {
	im, done, err := g.importer(ctx)
	if err != nil {
		return err
	}
	defer done()
	_, err = im.ImportFormations(ctx, c.Location, c.Force)
	return err
}

type ImportPressuresCmd struct {
	Location  string `arg:"" help:"CSV path or URL."`
	Simulated bool   `help:"The file holds simulated profiles with ENSEMBLE and REAL columns."`
	Force     bool   `help:"Import even if the content is unchanged."`
}

func (c *ImportPressuresCmd) Run(g *Globals, ctx context.Context) error {
	im, done, err := g.importer(ctx)
	if err != nil {
		return err
	}
	defer done()
	_, err = im.ImportPressures(ctx, c.Location, c.Simulated, c.Force)
	return err
}

type RegisterSurfaceCmd struct {
	Name     string   `help:"Catalog name." required:""`
	Location string   `help:"Irap file path or URL." required:""`
	Unit     string   `help:"Value unit shown on legends."`
	Colormap string   `help:"Default colormap." default:"viridis"`
	Min      *float64 `help:"Default legend minimum."`
	Max      *float64 `help:"Default legend maximum."`
}

func (c *RegisterSurfaceCmd) Run(g *Globals, ctx context.Context) error {
	if _, err := imagegen.LookupColormap(c.Colormap); err != nil {
		return err
	}
	im, done, err := g.importer(ctx)
	if err != nil {
		return err
	}
	defer done()
	return im.RegisterSurface(ctx, models.SurfaceEntry{
		Name:     c.Name,
		Location: c.Location,
		Unit:     c.Unit,
		Colormap: c.Colormap,
		MinValue: c.Min,
		MaxValue: c.Max,
	})
}

type LayerCmd struct {
	Location    string   `arg:"" help:"Irap file path or URL."`
	Name        string   `help:"Layer name." default:"surface"`
	Color       string   `help:"Colormap." default:"viridis"`
	Min         *float64 `help:"Legend minimum."`
	Max         *float64 `help:"Legend maximum."`
	Unit        string   `help:"Value unit."`
	Hillshading bool     `help:"Allow hillshading."`
}

func (c *LayerCmd) Run(g *Globals, ctx context.Context) error {
	layers, closeCache, err := g.layerBuilder(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	s, err := layers.Load(ctx, c.Location)
	if err != nil {
		return err
	}
	layer, err := layers.MakeLayer(ctx, s, maplayer.LayerOptions{
		Name:        c.Name,
		Min:         c.Min,
		Max:         c.Max,
		Color:       c.Color,
		Hillshading: c.Hillshading,
		Unit:        c.Unit,
	})
	if err != nil {
		return err
	}
	return printJSON(layer)
}

type CrossplotCmd struct {
	Well    []string `help:"Wells to include; all wells when empty."`
	SizeBy  string   `help:"Column scaling marker size." default:"DIFF"`
	ColorBy string   `help:"Column colouring markers." default:"STDDEV"`
}

func (c *CrossplotCmd) Run(g *Globals, ctx context.Context) error {
	st, closeDB, err := g.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	rows, err := st.Observations(ctx)
	if err != nil {
		return err
	}
	df := frame.Frame(rows)
	wells := c.Well
	if len(wells) == 0 {
		wells, _ = df.Unique(frame.Well)
	}
	fig, err := rft.UpdateCrossplot(df, wells, strings.ToUpper(c.SizeBy), strings.ToUpper(c.ColorBy))
	if err != nil {
		return err
	}
	return printJSON(fig)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
