// Package main is a minimal HTTP health check binary for use in distroless
// containers. It exits 0 when the coordinator's /health endpoint returns HTTP
// 200, and 1 otherwise. The port follows ROOMGATE_PORT (default 8080).
// Compile with CGO_ENABLED=0 for a fully static binary.
package main

import (
	"net/http"
	"os"
	"time"
)

func healthURL() string {
	port := os.Getenv("ROOMGATE_PORT")
	if port == "" {
		port = "8080"
	}
	return "http://localhost:" + port + "/health"
}

func main() {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(healthURL())
	if err != nil {
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
