// Command smoke exercises a running casechain-api end to end: it grants
// roles, files a case, submits evidence, walks the case to CLOSED and
// checks that the terminal stage rejects further movement. It needs a
// bootstrapped admin (CASECHAIN_BOOTSTRAP_ADMIN on the server).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

var (
	baseURL = envOr("CASECHAIN_API_URL", "http://localhost:8080")
	client  = &http.Client{Timeout: 10 * time.Second}
)

func main() {
	log.SetFlags(0)
	suffix := fmt.Sprintf("%06d", rand.New(rand.NewSource(time.Now().UnixNano())).Intn(1_000_000))

	adminAddr := envOr("CASECHAIN_SMOKE_ADMIN", "smoke-admin")
	adminTok := token(adminAddr, "")

	police := "smoke-police-" + suffix
	prosecutor := "smoke-prosecutor-" + suffix
	judge := "smoke-judge-" + suffix
	grant(adminTok, police, "police")
	grant(adminTok, prosecutor, "prosecutor")
	grant(adminTok, judge, "judge")

	policeTok := token(police, "police")
	prosecutorTok := token(prosecutor, "prosecutor")
	judgeTok := token(judge, "judge")

	var cs struct {
		ID    string `json:"id"`
		Stage string `json:"stage"`
	}
	post(policeTok, "/v1/cases", map[string]any{
		"type":        "public-prosecution",
		"title":       "smoke case " + suffix,
		"prosecutors": []string{prosecutor},
		"judges":      []string{judge},
	}, http.StatusCreated, &cs)
	if cs.Stage != "INVESTIGATION" {
		log.Fatalf("new case stage = %s", cs.Stage)
	}

	var ev struct {
		ID          string `json:"id"`
		Fingerprint string `json:"fingerprint"`
	}
	post(policeTok, "/v1/cases/"+cs.ID+"/evidence", map[string]any{
		"name":    "field-report.pdf",
		"content": []byte("smoke evidence payload " + suffix),
	}, http.StatusCreated, &ev)
	if ev.Fingerprint == "" {
		log.Fatal("evidence fingerprint missing")
	}

	var v struct {
		Result string `json:"result"`
	}
	post(policeTok, "/v1/evidence/"+ev.ID+"/verify", nil, http.StatusOK, &v)
	if v.Result != "match" && v.Result != "unanchored" {
		log.Fatalf("verify result = %s", v.Result)
	}

	advance(policeTok, cs.ID, http.StatusOK)     // INVESTIGATION -> PROCURATORATE
	advance(prosecutorTok, cs.ID, http.StatusOK) // PROCURATORATE -> COURT_TRIAL
	advance(judgeTok, cs.ID, http.StatusOK)      // COURT_TRIAL -> CLOSED
	advance(judgeTok, cs.ID, http.StatusConflict)

	fmt.Printf("✅ casechain smoke test passed: case=%s evidence=%s verify=%s\n", cs.ID, ev.ID, v.Result)
}

func advance(tok, caseID string, wantStatus int) {
	post(tok, "/v1/cases/"+caseID+"/advance", map[string]any{"comment": "smoke"}, wantStatus, nil)
}

func grant(tok, address, role string) {
	post(tok, "/v1/roles", map[string]any{"address": address, "role": role}, http.StatusCreated, nil)
}

func token(address, role string) string {
	var resp struct {
		Token string `json:"token"`
	}
	post("", "/v1/auth/token", map[string]any{"address": address, "role": role}, http.StatusOK, &resp)
	return resp.Token
}

func post(tok, path string, body any, wantStatus int, out any) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal %s: %v", path, err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(http.MethodPost, baseURL+path, payload)
	if err != nil {
		log.Fatalf("request %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		log.Fatalf("POST %s: status %d, want %d: %s", path, resp.StatusCode, wantStatus, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			log.Fatalf("decode %s: %v", path, err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
