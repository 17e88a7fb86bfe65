package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	attachapp "attach_server/server/attachments/app"
	"attach_server/server/attachments/registry"
	commonlog "attach_server/server/common/log"
)

// The notes owner type exercises the full attachment surface out of the box.
// Applications embedding this server register their own owner types the same
// way.
var demoDDL = []string{`
CREATE TABLE IF NOT EXISTS notes(
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	title TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`}

func main() {
	cfg := attachapp.LoadConfig()

	server, err := attachapp.NewServer(cfg, []registry.ModelSpec{
		{OwnerType: "notes"},
	}, demoDDL)
	if err != nil {
		log.Fatalf("initialize attachments server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		commonlog.Infof("start attachments http server on :%s", cfg.Port)
		if err := server.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("run attachments http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		commonlog.Errorf("shutdown attachments server gracefully: %v", err)
	}
}
