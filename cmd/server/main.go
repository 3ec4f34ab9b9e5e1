package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	persistlog "dreamdecor.ai/internal/persistence/log"
	"dreamdecor.ai/internal/persistence/savestore"
	"dreamdecor.ai/internal/sim/catalogs"
	"dreamdecor.ai/internal/sim/clock"
	"dreamdecor.ai/internal/sim/room"
	"dreamdecor.ai/internal/sim/tuning"
	"dreamdecor.ai/internal/textgen"
	"dreamdecor.ai/internal/transport/observer"
	"dreamdecor.ai/internal/transport/ws"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		catalogPath = flag.String("catalog", "", "path to furniture.json (default: <configs>/furniture.json, then the bundled catalog)")
		storeKind   = flag.String("store", "sql", "save store: sql (DB_DIALECT), dir, or memory")
		textgenMode = flag.String("textgen", "auto", "goal/news generator: auto (remote when DD_TEXTGEN_URL is set, else local), local, or off")
		envFile     = flag.String("env", ".env", "dotenv file loaded before reading the environment (optional)")
		disableLog  = flag.Bool("disable_action_log", false, "do not write the action log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Printf("env file %s: %v", *envFile, err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	cat, err := loadCatalog(*configDir, *catalogPath, logger)
	if err != nil {
		logger.Fatalf("load catalog: %v", err)
	}
	logger.Printf("catalog digest=%s items=%d", cat.Digest, len(cat.Palette))

	ctx, cancel := signalContext()
	defer cancel()

	_ = os.MkdirAll(*dataDir, 0o755)
	store, err := openStore(ctx, *storeKind, *dataDir)
	if err != nil {
		logger.Fatalf("open save store: %v", err)
	}
	defer store.Close()

	gen := buildGenerator(*textgenMode, tune, cat, logger)

	cfg := room.Config{
		Tuning:    tune,
		Catalog:   cat,
		Clock:     clock.RealClock{},
		Generator: gen,
		Store:     store,
		Logger:    logger,
	}
	if !*disableLog {
		actions := persistlog.NewActionLogger(*dataDir)
		defer actions.Close()
		cfg.Actions = actions
	}

	wsSrv := ws.NewServer(cfg, logger)
	hub := observer.NewHub(cfg.Clock)
	wsSrv.SetObserver(hub)
	router := newRouter(routerConfig{
		WS:          wsSrv,
		Observer:    observer.NewServer(hub, logger),
		Store:       store,
		ArchiveDir:  *dataDir,
		Logger:      logger,
		EnableAdmin: envBool("DD_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()),
		Started:     time.Now(),
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func loadCatalog(configDir, path string, logger *log.Logger) (*catalogs.Catalog, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = filepath.Join(configDir, "furniture.json")
	}
	cat, err := catalogs.Load(path)
	if err == nil {
		return cat, nil
	}
	if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	logger.Printf("catalog not found (%s); using bundled catalog", path)
	return catalogs.Default(), nil
}

func openStore(ctx context.Context, kind, dataDir string) (savestore.Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "sql":
		return savestore.OpenFromEnv(ctx, filepath.Join(dataDir, "saves", "saves.sqlite"))
	case "dir":
		return savestore.OpenDir(filepath.Join(dataDir, "saves"))
	case "memory":
		return savestore.NewMemory(), nil
	default:
		return nil, errors.New("unknown -store " + kind)
	}
}

// buildGenerator returns nil for "off"; rooms then run without goals or news.
func buildGenerator(mode string, tune tuning.Tuning, cat *catalogs.Catalog, logger *log.Logger) textgen.Generator {
	local := textgen.NewLocal(tune.Progression, cat, time.Now().UnixNano())
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "off":
		logger.Printf("text generation disabled")
		return nil
	case "local":
		return local
	}
	url := strings.TrimSpace(os.Getenv("DD_TEXTGEN_URL"))
	if url == "" {
		return local
	}
	logger.Printf("remote text generator %s (local fallback)", url)
	return textgen.Fallback{
		Primary:   textgen.NewRemote(url, os.Getenv("DD_TEXTGEN_TOKEN"), cat),
		Secondary: local,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(name string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
