package main

import (
	"flag"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/solo-io/squash-session/pkg/debuglog"
)

// Helper program to gather engine logs from sessions started with --log-spool-url
func main() {
	addr := flag.String("listen", ":8080", "address to listen on")
	flag.Parse()
	http.HandleFunc("/", debuglog.SpoolHandler(os.Stdout))
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Fatal(err)
	}
}
