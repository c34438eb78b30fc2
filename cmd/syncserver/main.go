package main

// syncserver runs the loopback dev server: the server half of the sync
// protocol backed by an in-memory store. It exists for local development and
// integration testing of the client; it is not the production server.

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"trisync/core"
	"trisync/internal/devserver"
	"trisync/pkg/utils"
)

func main() {
	addr := utils.EnvOrDefault("TRISYNC_LISTEN", ":8800")
	apiKey := utils.EnvOrDefault("TRISYNC_API_KEY", "dev")

	tel := core.NewTelemetry()
	store := core.NewTripleStoreWith(core.NewClock(), tel)
	srv := devserver.New(store, apiKey, logrus.StandardLogger(), tel)

	logrus.Infof("sync dev server listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		logrus.Fatal(err)
	}
}
