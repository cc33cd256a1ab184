// Command loadtest fires concurrent submissions for the same facility
// window at a running server and reports how many were admitted.  With a
// facility of capacity C and quantity 1, exactly C should be admitted no
// matter how many requests race.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/neighborhood/facility-booking/internal/logging"
	"github.com/neighborhood/facility-booking/internal/utils"
)

type outcome struct {
	status  int
	kind    string
	latency time.Duration
	retries int
	err     error
}

func main() {
	_ = godotenv.Load()
	logging.Init("facility-booking-loadtest", "development", "info")

	base := flag.String("url", "http://localhost:8080", "server base URL")
	facility := flag.String("facility", "court-1", "facility id")
	date := flag.String("date", time.Now().AddDate(0, 0, 1).Format(time.DateOnly), "reservation date")
	start := flag.String("start", "18:00", "window start")
	end := flag.String("end", "19:00", "window end")
	n := flag.Int("n", 100, "concurrent requests")
	qty := flag.Int("quantity", 1, "quantity per request")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal().Msg("JWT_SECRET is not set")
	}
	body, _ := json.Marshal(map[string]any{
		"facility_id": *facility, "date": *date, "start_time": *start, "end_time": *end, "quantity": *qty, "purpose": "loadtest",
	})

	client := &http.Client{Timeout: 10 * time.Second}
	results := make([]outcome, *n)
	var wg sync.WaitGroup
	gate := make(chan struct{})
	for i := 0; i < *n; i++ {
		tok, err := utils.NewAccessToken(secret, "loadtest-"+strconv.Itoa(i), "RESIDENT", time.Hour)
		if err != nil {
			log.Fatal().Err(err).Msg("token")
		}
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			<-gate
			results[i] = submit(client, *base+"/v1/reservations", token, body)
		}(i, tok.Token)
	}
	began := time.Now()
	close(gate)
	wg.Wait()
	report(results, time.Since(began))
}

var errUnavailable = errors.New("service unavailable")

// submit retries 503 responses with backoff; every other status is final.
func submit(client *http.Client, url, token string, body []byte) outcome {
	var out outcome
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second

	began := time.Now()
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		out.status, out.kind = resp.StatusCode, payload.Error
		if resp.StatusCode == http.StatusServiceUnavailable {
			return errUnavailable
		}
		return nil
	}, bo)
	out.latency = time.Since(began)
	out.retries = attempt - 1
	out.err = err
	return out
}

func report(results []outcome, total time.Duration) {
	counts := map[string]int{}
	lat := make([]time.Duration, 0, len(results))
	retries := 0
	for _, r := range results {
		key := strconv.Itoa(r.status)
		if r.kind != "" {
			key += " " + r.kind
		}
		if r.err != nil && r.status == 0 {
			key = "transport error"
		}
		counts[key]++
		retries += r.retries
		lat = append(lat, r.latency)
	}
	sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("requests: %d in %s (%d retries)\n", len(results), total.Round(time.Millisecond), retries)
	for _, k := range keys {
		fmt.Printf("  %-32s %d\n", k, counts[k])
	}
	if len(lat) > 0 {
		fmt.Printf("latency p50=%s p95=%s max=%s\n",
			lat[len(lat)/2].Round(time.Millisecond),
			lat[len(lat)*95/100].Round(time.Millisecond),
			lat[len(lat)-1].Round(time.Millisecond))
	}
}
