package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Astemirdum/library-system/library/config"
	"github.com/Astemirdum/library-system/library/internal/events"
	"github.com/Astemirdum/library-system/library/internal/handler"
	"github.com/Astemirdum/library-system/library/internal/repository/postgres"
	"github.com/Astemirdum/library-system/library/internal/server"
	"github.com/Astemirdum/library-system/library/internal/service/circulation"
	"github.com/Astemirdum/library-system/library/internal/service/inventory"
	"github.com/Astemirdum/library-system/library/internal/service/notifier"
	"github.com/Astemirdum/library-system/library/internal/service/request"
	"github.com/Astemirdum/library-system/library/internal/service/wallet"
	"github.com/Astemirdum/library-system/library/migrations"
	"github.com/Astemirdum/library-system/pkg/kafka"
	"github.com/Astemirdum/library-system/pkg/logger"
	pgdb "github.com/Astemirdum/library-system/pkg/postgres"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "library")
	db, err := pgdb.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return fmt.Errorf("db init %v", err)
	}
	store, err := postgres.NewStore(db, log)
	if err != nil {
		return fmt.Errorf("store init %v", err)
	}

	var pub events.Publisher = events.NopPublisher{}
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		log.Warn("kafka unavailable, events disabled", zap.Error(err))
	} else {
		pub = events.NewPublisher(producer, cfg.Kafka.AuditTopic, cfg.Kafka.NotifyTopic, log)
	}

	inventorySvc := inventory.NewService(store, log)
	walletSvc := wallet.NewService(store, log)
	requestSvc := request.NewService(store, cfg.Request, log)
	circulationSvc := circulation.NewService(store, cfg.Circulation, log)
	notifierSvc := notifier.NewService(store, pub, cfg.Notifier, log)

	h := handler.New(inventorySvc, requestSvc, circulationSvc, walletSvc, pub, log)

	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run()
	})
	g.Go(func() error {
		return notifierSvc.Run(ctx)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second*5)
	defer closeCancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.Error("srv.Stop", zap.Error(err))
	}
	cancel()
	if err := g.Wait(); err != nil &&
		!errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		log.Error("run", zap.Error(err))
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("producer.Close", zap.Error(err))
		}
	}
	db.Close()
	log.Info("Graceful shutdown finished")
	return nil
}
