// Command dfs runs one storage-server instance: a TCP listener
// speaking the DFC/DFS piece protocol, plus a secondary HTTP listener
// exposing /healthz and /stats for operators. Credentials are read
// from the fixed path conf/dfs.conf, matching the original dfs.cpp.
//
// Usage: dfs <folder> <port> [admin-port]
package main

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/svmk2808/dfshard/internal/adminapi"
	"github.com/svmk2808/dfshard/internal/config"
	"github.com/svmk2808/dfshard/internal/dfs"
	"github.com/svmk2808/dfshard/internal/dfsstore"
)

// credentialsPath is the fixed location the original dfs.cpp reads its
// credentials from (fileName = "conf/dfs.conf"), unchanged here since
// spec.md §6 does not expose it as a CLI argument.
const credentialsPath = "conf/dfs.conf"

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: dfs <folder> <port> [admin-port]")
		os.Exit(1)
	}
	storageRoot := os.Args[1]
	port, err := strconv.Atoi(os.Args[2])
	if err != nil {
		log.Fatalf("dfs: invalid port %q: %v", os.Args[2], err)
	}
	adminPort := port + 1000
	if len(os.Args) >= 4 {
		adminPort, err = strconv.Atoi(os.Args[3])
		if err != nil {
			log.Fatalf("dfs: invalid admin port %q: %v", os.Args[3], err)
		}
	}

	auth, err := config.LoadServerConfig(credentialsPath)
	if err != nil {
		log.Fatalf("dfs: loading credentials from %s: %v", credentialsPath, err)
	}

	store, err := dfsstore.Open(storageRoot)
	if err != nil {
		log.Fatalf("dfs: opening storage root %s: %v", storageRoot, err)
	}
	defer store.Close()

	server := dfs.New(store, auth)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Fatalf("dfs: listening on port %d: %v", port, err)
	}

	adminLn, err := net.Listen("tcp", fmt.Sprintf(":%d", adminPort))
	if err != nil {
		log.Fatalf("dfs: listening on admin port %d: %v", adminPort, err)
	}
	adminSrv := &http.Server{Handler: adminapi.NewRouter(server, store)}
	go func() {
		if err := adminSrv.Serve(adminLn); err != nil && err != http.ErrServerClosed {
			log.Printf("dfs: admin server stopped: %v", err)
		}
	}()

	go func() {
		if err := server.Serve(ln); err != nil {
			log.Printf("dfs: accept loop stopped: %v", err)
		}
	}()

	log.Printf("dfs: serving %s on :%d (admin on :%d)", storageRoot, port, adminPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Printf("dfs: shutting down")
	ln.Close()
	adminLn.Close()
}
