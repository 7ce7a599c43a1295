package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// Smoke test against a running sigauth-api: log in, read the directory
// snapshot and check the bootstrap container is visible.
func main() {
	base := os.Getenv("SIGAUTH_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	name := os.Getenv("SIGAUTH_SMOKE_ACCOUNT")
	password := os.Getenv("SIGAUTH_SMOKE_PASSWORD")
	if name == "" || password == "" {
		log.Fatal("set SIGAUTH_SMOKE_ACCOUNT and SIGAUTH_SMOKE_PASSWORD")
	}

	client := &http.Client{Timeout: 5 * time.Second}

	body, _ := json.Marshal(map[string]string{"name": name, "password": password})
	resp, err := client.Post(base+"/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("login: unexpected status %d", resp.StatusCode)
	}
	var sid string
	for _, c := range resp.Cookies() {
		if c.Name == "sid" {
			sid = c.Value
		}
	}
	if sid == "" {
		log.Fatal("login: no session cookie in response")
	}

	req, err := http.NewRequest(http.MethodGet, base+"/v1/bootstrap", nil)
	if err != nil {
		log.Fatalf("bootstrap request: %v", err)
	}
	req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
	snapResp, err := client.Do(req)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer snapResp.Body.Close()
	if snapResp.StatusCode != http.StatusOK {
		log.Fatalf("bootstrap: unexpected status %d", snapResp.StatusCode)
	}

	var snap struct {
		Containers []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"containers"`
	}
	if err := json.NewDecoder(snapResp.Body).Decode(&snap); err != nil {
		log.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Containers) == 0 {
		log.Fatal("snapshot holds no containers; expected at least the bootstrap container")
	}

	fmt.Printf("✅ sigauth-api smoke test passed: %d containers visible\n", len(snap.Containers))
}
