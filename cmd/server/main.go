package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ompatelz/chattingapp/internal/bootstrap"
)

func main() {
	port := flag.String("port", "", "port to listen on (default 8765, or CHAT_PORT)")
	flag.Parse()

	app, err := bootstrap.NewApp(*port)
	if err != nil {
		logrus.Fatalf("Failed to initialize application: %v", err)
	}

	if err := app.Start(); err != nil {
		logrus.Fatalf("Failed to start: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutdown signal received")

	app.Shutdown()
}
