package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"procuredata.io/internal/auth"
	"procuredata.io/internal/demo"
)

// step is one workflow call made by a demo user.
type step struct {
	user   string
	action string
	want   string
}

// lifecycle walks a request from submission to delivery.
var lifecycle = []step{
	{user: demo.SubjectUserID, action: "pre-approve", want: "pending_holder"},
	{user: demo.HolderUserID, action: "approve", want: "approved"},
	{user: demo.HolderUserID, action: "complete", want: "completed"},
}

type client struct {
	baseURL string
	http    *http.Client
	tokens  map[string]string
	runID   string
}

func main() {
	var (
		baseURL  = flag.String("base-url", "http://localhost:8080", "API base URL")
		secret   = flag.String("jwt-secret", os.Getenv("PROCUREDATA_JWT_SECRET"), "HS256 secret shared with the API")
		audience = flag.String("audience", "authenticated", "token audience")
		workers  = flag.Int("workers", 1, "concurrent request lifecycles")
		count    = flag.Int("requests", 1, "lifecycles per worker")
	)
	flag.Parse()

	if *secret == "" {
		log.Fatal("missing secret: provide -jwt-secret or PROCUREDATA_JWT_SECRET")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	issuer, err := auth.NewIssuer(auth.TokenConfig{Secret: []byte(*secret), Audience: *audience})
	if err != nil {
		log.Fatalf("issuer: %v", err)
	}
	tokens := make(map[string]string)
	for _, id := range []string{demo.ConsumerUserID, demo.SubjectUserID, demo.HolderUserID} {
		tok, err := issuer.Issue(id, "", time.Hour)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		tokens[id] = tok
	}

	c := &client{
		baseURL: *baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		tokens:  tokens,
		runID:   uuid.NewString(),
	}
	log.Printf("Launching demo run %s: base=%s workers=%d requests=%d", c.runID, *baseURL, *workers, *count)

	var completed, failed, rateLimited int64
	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for n := 0; n < *count; n++ {
				if ctx.Err() != nil {
					return
				}
				err := c.runLifecycle(ctx)
				switch {
				case err == nil:
					atomic.AddInt64(&completed, 1)
				case errors.Is(err, errRateLimited):
					atomic.AddInt64(&rateLimited, 1)
					time.Sleep(250 * time.Millisecond)
				default:
					atomic.AddInt64(&failed, 1)
					log.Printf("worker %d: %v", id, err)
				}
			}
		}(i)
	}
	wg.Wait()

	log.Printf("Run complete: %d completed / %d failed (rate_limited=%d)", completed, failed, rateLimited)
	if failed > 0 {
		os.Exit(1)
	}
}

var errRateLimited = errors.New("rate limited")

func (c *client) runLifecycle(ctx context.Context) error {
	var tx struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err := c.post(ctx, demo.ConsumerUserID, "/v1/transactions", map[string]any{
		"asset_id":             demo.AssetESGID,
		"consumer_org_id":      demo.ConsumerOrgID,
		"purpose":              "Homologación de proveedores",
		"justification":        "Auditoría ESG anual",
		"access_duration_days": 90,
	}, &tx)
	if err != nil {
		return fmt.Errorf("request access: %w", err)
	}
	log.Printf("transaction %s: %s", tx.ID, tx.Status)

	for _, s := range lifecycle {
		if err := c.post(ctx, s.user, "/v1/transactions/"+tx.ID+"/"+s.action, map[string]any{"notes": "demo " + c.runID}, &tx); err != nil {
			return fmt.Errorf("%s %s: %w", s.action, tx.ID, err)
		}
		if tx.Status != s.want {
			return fmt.Errorf("%s %s: status %s, expected %s", s.action, tx.ID, tx.Status, s.want)
		}
		log.Printf("transaction %s: %s", tx.ID, tx.Status)
	}
	return nil
}

func (c *client) post(ctx context.Context, userID, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens[userID])
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", c.runID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		return errRateLimited
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
