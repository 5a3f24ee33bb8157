/*
Qmaze trains a tabular q-learning agent on a small fixed maze and serves what it learned: a live
page of the value table pushed over a websocket, a json api for training and reading values, and
a tiny token registry whose metadata renders the current greedy policy. All arithmetic is integer
and the random stream is a plain LCG threaded through the persisted state, so a training call on
a given state always produces the same table.
*/

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qmaze/events"
	"qmaze/maze"
	"qmaze/metrics"
	"qmaze/qtable"
	"qmaze/reinforcement"
	"qmaze/server"
	"qmaze/store"
	"qmaze/token"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "./config.yaml", "path to the training config")
	host       = flag.String("host", "", "The host ip")
	port       = flag.String("port", "8080", "The host port")
	dbg        = flag.Bool("debug", false, "print the maze, policy and values after the startup training call")

	appLogger = log.New(os.Stderr, "[APP] ", log.LstdFlags)
)

// Store backends selectable with QMAZE_STORE.
const (
	backendFile  = "file"
	backendRedis = "redis"
	backendMongo = "mongo"
)

const (
	lockTTL     = 30 * time.Second
	dialTimeout = 5 * time.Second
)

// settings are the deployment values read from the environment (and .env, if present).
type settings struct {
	Backend   string
	StatePath string
	RedisAddr string
	MongoURI  string
	MongoDB   string
	JWTSecret string
	JWTIssuer string
}

func loadSettings() settings {
	if err := godotenv.Load(); err != nil {
		appLogger.Printf("[INFO] .env file not found or could not be loaded: %v", err)
	}

	env := viper.New()
	env.AutomaticEnv()
	env.SetDefault("QMAZE_STORE", backendFile)
	env.SetDefault("QMAZE_STATE_PATH", "./state")
	env.SetDefault("REDIS_ADDR", "localhost:6379")
	env.SetDefault("MONGO_DB", "qmaze")
	env.SetDefault("JWT_ISSUER", "qmaze")

	return settings{
		Backend:   env.GetString("QMAZE_STORE"),
		StatePath: env.GetString("QMAZE_STATE_PATH"),
		RedisAddr: env.GetString("REDIS_ADDR"),
		MongoURI:  env.GetString("MONGO_URI"),
		MongoDB:   env.GetString("MONGO_DB"),
		JWTSecret: env.GetString("JWT_SECRET"),
		JWTIssuer: env.GetString("JWT_ISSUER"),
	}
}

// openStore connects the configured backend. The returned closer releases its connections.
func openStore(ctx context.Context, env settings) (st store.Store, closer func(), err error) {
	closer = func() {}
	switch env.Backend {
	case backendFile:
		st, err = store.NewFileStore(env.StatePath)
	case backendRedis:
		client := redis.NewClient(&redis.Options{Addr: env.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		if err = client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, closer, fmt.Errorf("redis ping %s: %w", env.RedisAddr, err)
		}
		rs := store.NewRedisStore(client, lockTTL)
		st, closer = rs, func() { _ = rs.Close() }
	case backendMongo:
		if env.MongoURI == "" {
			return nil, closer, errors.New("MONGO_URI is not set")
		}
		var client *mongo.Client
		if client, err = mongo.Connect(ctx, options.Client().ApplyURI(env.MongoURI)); err != nil {
			return nil, closer, fmt.Errorf("mongo connect: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		if err = client.Ping(pingCtx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, closer, fmt.Errorf("mongo ping: %w", err)
		}
		st = store.NewMongoStore(client, env.MongoDB, "states")
		closer = func() { _ = client.Disconnect(context.Background()) }
	default:
		err = fmt.Errorf("unknown store backend %q", env.Backend)
	}
	return
}

// logEvents writes every bus event to the app log until ctx is done.
func logEvents(ctx context.Context, feed <-chan events.Event) {
	for {
		select {
		case ev := <-feed:
			appLogger.Printf("[EVENT] kind=%s id=%s attrs=%v", ev.Kind, ev.ID, ev.Attrs)
		case <-ctx.Done():
			return
		}
	}
}

func runApp() (err error) {
	flag.Parse()
	addr := *host + ":" + *port

	var algConfig *reinforcement.TrainingConfig
	if algConfig, err = reinforcement.FromYaml(*configPath); err != nil {
		return
	}
	var layout maze.Layout
	if layout, err = algConfig.MazeLayout(); err != nil {
		return
	}
	var params reinforcement.Params
	if params, err = algConfig.Params(); err != nil {
		return
	}
	var fresh qtable.State
	if fresh, err = algConfig.InitialState(); err != nil {
		return
	}

	appCtx, appCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer appCancel()

	env := loadSettings()
	st, closeStore, err := openStore(appCtx, env)
	if err != nil {
		return
	}
	defer closeStore()
	appLogger.Printf("[INFO] state store: %s", env.Backend)

	var state qtable.State
	if state, err = store.LoadOrNew(appCtx, st, store.DefaultKey, fresh); err != nil {
		return
	}

	bus := events.New()
	stateUpdates := make(chan qtable.State, 1)
	// Offers training snapshots to the views without ever stalling training.
	exportStates := func(episode uint32, snap qtable.State) {
		select {
		case stateUpdates <- snap:
		default:
		}
	}

	engine := reinforcement.NewEngine(
		layout,
		state,
		reinforcement.WithNotifier(bus),
		reinforcement.WithProgress(algConfig.ProgressEvery(), exportStates),
		reinforcement.WithLogger(log.New(os.Stderr, "[TRAIN] ", log.LstdFlags)),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []server.Option{
		server.WithStore(st, store.DefaultKey),
		server.WithMetrics(metrics.NewRecorder(reg), reg),
		server.WithTokens(token.NewRegistry(bus)),
	}
	if env.JWTSecret != "" {
		opts = append(opts, server.WithAuth(server.NewAuthenticator(env.JWTSecret, env.JWTIssuer)))
	} else {
		appLogger.Println("[WARNING] JWT_SECRET not set, training and minting are unauthenticated")
	}

	var srv *server.Server
	if srv, err = server.NewServer(appCtx, addr, engine, stateUpdates, opts...); err != nil {
		return
	}

	group, groupCtx := errgroup.WithContext(appCtx)
	group.Go(func() error {
		logEvents(groupCtx, bus.SubscribeAll())
		return nil
	})
	group.Go(func() error {
		return srv.Serve(groupCtx)
	})
	group.Go(func() error {
		// The startup training call; another process holding the lock is not fatal.
		stats, snap, err := srv.Train(groupCtx, params)
		if errors.Is(err, store.ErrLocked) {
			appLogger.Printf("[WARNING] skipped startup training: %v", err)
			return nil
		}
		if err != nil {
			return err
		}
		appLogger.Printf("[INFO] startup training: episodes=%d steps=%d goals=%d seed=%d",
			stats.Episodes, stats.Steps, stats.GoalsReached, snap.Seed)

		if *dbg {
			maze.ShowGrid(os.Stdout, &layout)
			qtable.ShowPolicy(os.Stdout, &layout, &snap.Table)
			qtable.ShowValues(os.Stdout, &layout, &snap.Table)
		}
		return nil
	})

	err = group.Wait()
	return
}

func main() {
	if err := runApp(); err != nil {
		appLogger.Println(err)
		os.Exit(1)
	}
}
