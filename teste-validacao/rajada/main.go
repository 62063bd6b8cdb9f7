// rajada dispara N requests simultâneos contra o gateway e imprime quantos
// voltaram com cada status, para ver o burst limiter (429 BURST_LIMITED) e o
// limite de janela em ação.
//
//	go run ./teste-validacao/rajada -url http://localhost:8080/api/books -n 50 -c 25
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	target := flag.String("url", "http://localhost:8080/api/books", "endpoint do gateway")
	total := flag.Int("n", 50, "total de requests")
	conc := flag.Int("c", 25, "requests simultâneos")
	ua := flag.String("ua", "Mozilla/5.0 (rajada)", "User-Agent enviado")
	timeout := flag.Duration("timeout", 10*time.Second, "timeout por request")
	flag.Parse()

	res, err := fire(context.Background(), *target, *total, *conc, *ua, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rajada: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(res.String())
}

type result struct {
	mu       sync.Mutex
	byStatus map[int]int
	codes    map[string]int
	failures int
	elapsed  time.Duration
}

type errBody struct {
	Code string `json:"code"`
}

func fire(ctx context.Context, target string, total, conc int, ua string, timeout time.Duration) (*result, error) {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", ua)

	res := &result{byStatus: map[int]int{}, codes: map[string]int{}}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(conc, 1))

	start := time.Now()
	for i := 0; i < total; i++ {
		g.Go(func() error {
			var eb errBody
			resp, err := client.R().SetContext(gctx).SetError(&eb).Get(target)

			res.mu.Lock()
			defer res.mu.Unlock()
			if err != nil {
				res.failures++
				return nil
			}
			res.byStatus[resp.StatusCode()]++
			if eb.Code != "" {
				res.codes[eb.Code]++
			}
			return nil
		})
	}
	err := g.Wait()
	res.elapsed = time.Since(start)
	return res, err
}

func (r *result) String() string {
	statuses := make([]int, 0, len(r.byStatus))
	for s := range r.byStatus {
		statuses = append(statuses, s)
	}
	sort.Ints(statuses)

	out := fmt.Sprintf("tempo: %s\n", r.elapsed.Round(time.Millisecond))
	for _, s := range statuses {
		out += fmt.Sprintf("  %d: %d\n", s, r.byStatus[s])
	}
	for code, n := range r.codes {
		out += fmt.Sprintf("  %s: %d\n", code, n)
	}
	if r.failures > 0 {
		out += fmt.Sprintf("  falhas de rede: %d\n", r.failures)
	}
	return out
}
