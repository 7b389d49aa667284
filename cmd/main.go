package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/dagaz/featureflag"
	"github.com/aukilabs/dagaz/ground"
	"github.com/aukilabs/dagaz/heightcache"
	dhttp "github.com/aukilabs/dagaz/http"
	"github.com/aukilabs/dagaz/raycast"
	"github.com/aukilabs/dagaz/smoketest"
	"github.com/aukilabs/dagaz/terrain"
	dwebsocket "github.com/aukilabs/dagaz/websocket"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Dagaz version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "dagaz_info",
		Help:        "Dagaz information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr                    string         `cli:""        env:"DAGAZ_ADDR"                       help:"Listening address for client connections."`
	AdminAddr               string         `cli:""        env:"DAGAZ_ADMIN_ADDR"                 help:"Admin listening address."`
	PublicEndpoint          string         `cli:""        env:"DAGAZ_PUBLIC_ENDPOINT"            help:"The public endpoint where this Dagaz server is reachable."`
	APIKey                  string         `cli:""        env:"DAGAZ_API_KEY"                    help:"The key clients must present. Empty disables authentication."`
	LogLevel                string         `cli:""        env:"DAGAZ_LOG_LEVEL"                  help:"Log level (debug|info|warning|error)."`
	LogIndent               bool           `cli:""        env:"DAGAZ_LOG_INDENT"                 help:"Indent logs."`
	DefaultMaxVerticalDelta float64        `cli:""        env:"DAGAZ_DEFAULT_MAX_VERTICAL_DELTA" help:"The maximum vertical distance between a queried point and its ground height when a query does not specify one."`
	TickInterval            time.Duration  `cli:",hidden" env:"DAGAZ_TICK_INTERVAL"              help:"The duration between each cache maintenance pass."`
	Cache                   cacheConfig    `cli:",hidden" env:"-"                                help:"Height cache configuration."`
	Raycast                 raycastConfig  `cli:",hidden" env:"-"                                help:"Raycast configuration."`
	Prefetch                prefetchConfig `cli:",hidden" env:"-"                                help:"Prefetch configuration."`
	Terrain                 terrainConfig  `cli:""        env:"-"                                help:"Terrain configuration."`
	ClientIdleTimeout       time.Duration  `cli:",hidden" env:"DAGAZ_CLIENT_IDLE_TIMEOUT"        help:"Time until an idle client will be disconnected."`
	ClientStatsInterval     time.Duration  `cli:",hidden" env:"DAGAZ_CLIENT_STATS_INTERVAL"      help:"The duration between each stats message sent to a client. Zero disables stats messages."`
	LogSummaryInterval      time.Duration  `cli:",hidden" env:"DAGAZ_LOG_SUMMARY_INTERVAL"       help:"The duration between each log summary by connection."`
	ShutdownTimeout         time.Duration  `cli:",hidden" env:"DAGAZ_SHUTDOWN_TIMEOUT"           help:"The time given to servers to finish in-flight requests on exit."`
	Events                  eventsConfig   `cli:",hidden" env:"-"                                help:"Event pusher configuration."`
	FeatureFlags            []string       `cli:",hidden" env:"DAGAZ_FEATURE_FLAGS"              help:"Comma separated feature flags"`
	Version                 bool           `cli:""        env:"-"                                help:"Show version."`
	Help                    bool           `cli:""        env:"-"                                help:"Show help."`
}

type cacheConfig struct {
	Capacity int `cli:",hidden" env:"DAGAZ_CACHE_CAPACITY" help:"The number of heights kept after each eviction pass."`
}

type raycastConfig struct {
	CastHeight  float64 `cli:",hidden" env:"DAGAZ_RAYCAST_CAST_HEIGHT"  help:"How far above a queried point rays start."`
	MaxDistance float64 `cli:",hidden" env:"DAGAZ_RAYCAST_MAX_DISTANCE" help:"The length of cast rays."`
}

type prefetchConfig struct {
	Radius float64 `cli:",hidden" env:"DAGAZ_PREFETCH_RADIUS" help:"The radius around the anchor where heights are prefetched. Zero disables prefetching."`
	Step   float64 `cli:",hidden" env:"DAGAZ_PREFETCH_STEP"   help:"The spacing between prefetched points."`
}

type terrainConfig struct {
	File             string  `cli:"" env:"DAGAZ_TERRAIN_FILE"               help:"A JSON file with the terrain quads to load on start."`
	Resolution       float64 `cli:"" env:"DAGAZ_TERRAIN_RESOLUTION"         help:"The size of a terrain grid cell."`
	FlatGroundSize   float64 `cli:"" env:"DAGAZ_TERRAIN_FLAT_GROUND_SIZE"   help:"The size of a flat ground square centered on the origin. Zero disables it."`
	FlatGroundHeight float64 `cli:"" env:"DAGAZ_TERRAIN_FLAT_GROUND_HEIGHT" help:"The height of the flat ground square."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"DAGAZ_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed. Empty disables events."`
	FlushInterval time.Duration `cli:",hidden" env:"DAGAZ_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"DAGAZ_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"DAGAZ_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:                    ":4000",
		AdminAddr:               ":18190",
		PublicEndpoint:          "http://localhost:4000",
		LogLevel:                logs.InfoLevel.String(),
		DefaultMaxVerticalDelta: 2,
		TickInterval:            time.Millisecond * 100,
		Cache: cacheConfig{
			Capacity: heightcache.DefaultCapacity,
		},
		Raycast: raycastConfig{
			CastHeight:  raycast.DefaultCastHeight,
			MaxDistance: raycast.DefaultMaxDistance,
		},
		Prefetch: prefetchConfig{
			Step: 1,
		},
		Terrain: terrainConfig{
			Resolution: 2,
		},
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		ShutdownTimeout:    time.Second * 10,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Dagaz ground height server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	transport := metrics.HTTPTransport(http.DefaultTransport)

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     transport,
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "dagaz",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	surface, err := loadTerrain(conf.Terrain)
	if err != nil {
		logs.Fatal(errors.New("loading terrain failed").Wrap(err))
	}

	featureFlags := featureflag.New(conf.FeatureFlags)
	cache := heightcache.New(conf.Cache.Capacity)
	scheduler := raycast.NewScheduler(surface, cache,
		raycast.WithCastHeight(conf.Raycast.CastHeight),
		raycast.WithMaxDistance(conf.Raycast.MaxDistance),
	)
	var anchor ground.AtomicAnchor
	groundService := ground.New(cache, scheduler, &anchor,
		ground.WithPrefetch(conf.Prefetch.Radius, conf.Prefetch.Step),
		ground.WithFeatureFlags(featureFlags),
	)

	var ready atomic.Bool
	readinessCheck := ready.Load

	withAuth := func(h http.Handler) http.Handler {
		return dhttp.HandleWithCORS(dhttp.VerifyAPIKeyHandler(conf.APIKey, h))
	}

	var service http.ServeMux

	api := dhttp.API{
		Ground:                  groundService,
		Anchor:                  &anchor,
		Terrain:                 surface,
		DefaultMaxVerticalDelta: conf.DefaultMaxVerticalDelta,
	}
	api.Register(&service, withAuth)

	service.Handle("/health", dhttp.HandleWithCORS(http.HandlerFunc(dhttp.HandleHealthCheck)))
	service.Handle("/ready", dhttp.HandleWithCORS(dhttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/version", dhttp.HandleWithCORS(dhttp.HandleVersion(version)))

	service.Handle("POST /smoke-test", withAuth(smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		UserAgent: fmt.Sprintf("Dagaz %s", version),
		SendResult: func(ctx context.Context, res smoketest.Result) error {
			logs.WithTag("from_endpoint", res.FromEndpoint).
				WithTag("to_endpoint", res.ToEndpoint).
				WithTag("status", res.Status).
				WithTag("latency_ms", res.LatencyMilliSec).
				WithTag("resolved", res.Resolved).
				WithTag("error", res.Error).
				Info("smoke test done")
			return nil
		},
	})))

	service.Handle("/ws", dhttp.HandleWithCORS(websocket.Server{
		Handshake: dhttp.VerifyAPIKey(conf.APIKey),
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var h dwebsocket.Handler = &dwebsocket.GroundHandler{
				Service:                 groundService,
				Anchor:                  &anchor,
				DefaultMaxVerticalDelta: conf.DefaultMaxVerticalDelta,
				ClientStatsInterval:     conf.ClientStatsInterval,
				ClientIdleTimeout:       conf.ClientIdleTimeout,
			}
			h = dwebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
			h = dwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			dwebsocket.Handle(ctx, conn, h)
		},
	}))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", dhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", dhttp.HandleReadyCheck(readinessCheck))

	groundService.Start(ctx, conf.TickInterval)
	ready.Store(true)

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("cache_capacity", cache.Capacity()).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting dagaz server")

	dhttp.ListenAndServe(ctx, conf.ShutdownTimeout,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			dhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
	ready.Store(false)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), conf.ShutdownTimeout)
	defer stopCancel()

	if err := groundService.Stop(stopCtx); err != nil {
		logs.Warn(errors.New("stopping ground service failed").Wrap(err))
	}
}

func loadTerrain(conf terrainConfig) (*terrain.Surface, error) {
	surface := terrain.NewSurface(conf.Resolution)

	if conf.FlatGroundSize > 0 {
		surface.Insert(terrain.FlatGround(conf.FlatGroundHeight, conf.FlatGroundSize))
	}

	if conf.File != "" {
		quads, err := terrain.LoadFile(conf.File)
		if err != nil {
			return nil, err
		}
		surface.Insert(quads...)

		logs.WithTag("file", conf.File).
			WithTag("quads", len(quads)).
			Info("terrain loaded")
	}

	return surface, nil
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.TickInterval <= 0 {
		return errors.New("tick interval must be positive").
			WithTag("tick_interval", conf.TickInterval)
	}

	if conf.Raycast.MaxDistance <= 0 {
		return errors.New("raycast max distance must be positive").
			WithTag("max_distance", conf.Raycast.MaxDistance)
	}

	if conf.DefaultMaxVerticalDelta < 0 {
		return errors.New("default max vertical delta must not be negative").
			WithTag("default_max_vertical_delta", conf.DefaultMaxVerticalDelta)
	}

	if conf.Prefetch.Radius > 0 && conf.Prefetch.Step <= 0 {
		return errors.New("prefetch step must be positive when prefetching").
			WithTag("prefetch_step", conf.Prefetch.Step)
	}

	for _, f := range conf.FeatureFlags {
		if !isKnownFlag(featureflag.Flag(f)) {
			return errors.New("unknown feature flag").
				WithTag("flag", f).
				WithTag("known", featureflag.Flags())
		}
	}

	return nil
}

func isKnownFlag(flag featureflag.Flag) bool {
	for _, f := range featureflag.Flags() {
		if f == flag {
			return true
		}
	}
	return false
}
