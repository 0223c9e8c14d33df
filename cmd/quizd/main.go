package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	api "github.com/mind-engage/mindengage-quiz/internal/api/http"
	"github.com/mind-engage/mindengage-quiz/internal/attempt"
	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/config"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/events"
	"github.com/mind-engage/mindengage-quiz/internal/lock"
	"github.com/mind-engage/mindengage-quiz/internal/metrics"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/scoring"
	"github.com/mind-engage/mindengage-quiz/internal/storage"
)

func main() {
	issue := flag.String("issue-token", "", "print a bearer token for subject:role and exit")
	flag.Parse()

	cfg := config.FromEnv()
	authSvc := auth.NewAuthService(cfg.HMACSecret)

	if *issue != "" {
		sub, role, ok := strings.Cut(*issue, ":")
		if !ok {
			log.Fatalf("-issue-token wants subject:role")
		}
		tok, err := authSvc.IssueJWT(sub, role, 8*time.Hour)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Stores ---
	setup, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	st, err := openStores(setup, cfg)
	if err != nil {
		log.Fatalf("stores: %v", err)
	}
	defer st.close()

	if cfg.SeedFile != "" {
		f, err := os.Open(cfg.SeedFile)
		if err != nil {
			log.Fatalf("seed file: %v", err)
		}
		n, err := quiz.Seed(setup, st.seed, f)
		f.Close()
		if err != nil {
			log.Fatalf("seed: %v", err)
		}
		log.Printf("seeded %d quizzes from %s", n, cfg.SeedFile)
	}

	// --- Locks and definitions cache ---
	var (
		locker lock.Locker      = lock.NewLocal()
		defs   quiz.Definitions = st.defs
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(setup).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		locker = lock.NewRedis(rdb, 0)
		defs = quiz.NewCachedDefinitions(defs, rdb, cfg.DefsCacheTTL)
	}

	// --- Blobs ---
	var blobs storage.BlobStore
	switch cfg.BlobDriver {
	case "minio":
		blobs, err = storage.NewMinIOStore(setup, storage.MinIOConfig(cfg.MinIO))
	default:
		blobs, err = storage.NewFSStore(cfg.BlobBasePath)
	}
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// --- Events ---
	var pubs events.Fanout
	if st.sql != nil {
		pubs = append(pubs, events.NewEventLog(st.sql, cfg.EventSiteID))
	}
	if cfg.RabbitMQURI != "" {
		mq, err := events.NewAMQPPublisher(cfg.RabbitMQURI, cfg.RabbitMQExch)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer mq.Close()
		pubs = append(pubs, mq)
	}

	// --- Engine ---
	leveler, err := scoring.LevelerByName(cfg.PlacementStrategy,
		scoring.FlatCutoffs{IntermediateAt: cfg.LevelIntermediateAt, AdvancedAt: cfg.LevelAdvancedAt},
		scoring.DifficultyBuckets{MinAccuracy: cfg.BucketMinAccuracy})
	if err != nil {
		log.Fatalf("placement: %v", err)
	}
	eng := attempt.NewEngine(defs, st.attempts,
		attempt.WithLocker(locker),
		attempt.WithBlobStore(blobs),
		attempt.WithPublisher(pubs),
		attempt.WithMetrics(metrics.Prom{}),
		attempt.WithPolicy(scoring.Policy{Placement: leveler, DefaultPassThreshold: cfg.DefaultPassThreshold}),
		attempt.WithQuestionGrace(cfg.QuestionGrace),
	)
	go attempt.NewSweeper(eng, cfg.SweepInterval).Run(ctx)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Protected API (JWT -> subject and role in context -> capability checks)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		api.MountAttempts(pr, eng)
		pr.Route("/assets", func(ar chi.Router) {
			api.MountAssets(ar, blobs)
		})
	})

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Printf("listening on %s (db=%s, blobs=%s)", cfg.HTTPAddr, cfg.DBDriver, cfg.BlobDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdown, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdown); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

type stores struct {
	defs     quiz.Definitions
	seed     quiz.Putter
	attempts attempt.Store
	sql      *sql.DB // set for sqlite and postgres
	close    func()
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	switch cfg.DBDriver {
	case "memory":
		defs := quiz.NewMemoryStore()
		return stores{defs: defs, seed: defs, attempts: attempt.NewMemoryStore(), close: func() {}}, nil

	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return stores{}, err
		}
		if err := client.Ping(ctx, nil); err != nil {
			return stores{}, err
		}
		ms := attempt.NewMongoStore(client.Database(cfg.MongoDatabase))
		if err := ms.EnsureIndexes(ctx); err != nil {
			return stores{}, err
		}
		// definitions live in memory, loaded from SEED_FILE
		defs := quiz.NewMemoryStore()
		return stores{
			defs: defs, seed: defs, attempts: ms,
			close: func() { _ = client.Disconnect(context.Background()) },
		}, nil

	default:
		dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
		if err != nil {
			return stores{}, err
		}
		defs := quiz.NewSQLStore(dbh)
		return stores{
			defs: defs, seed: defs, attempts: attempt.NewSQLStore(dbh), sql: dbh,
			close: func() { _ = dbh.Close() },
		}, nil
	}
}
