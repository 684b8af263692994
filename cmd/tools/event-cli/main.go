package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/annel0/chunk-engine/internal/auth"
	"github.com/annel0/chunk-engine/internal/eventbus"
)

const (
	defaultServerAddr = "nats://localhost:4222"
	timeFormat        = "2006-01-02T15:04:05Z"
)

func main() {
	var (
		serverAddr = flag.String("server", defaultServerAddr, "NATS server address")
		stream     = flag.String("stream", "EVENTS", "JetStream stream name")
		command    = flag.String("cmd", "tail", "Command: tail, stats, token")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated)")
		chunks     = flag.String("chunks", "", "Chunk filter, keys x,y,z separated by ';'")
		since      = flag.String("since", "1h", "Time duration since now (e.g., 1h, 30m)")
		wait       = flag.Duration("wait", 3*time.Second, "How long stats collects retained events")
		limit      = flag.Int("limit", 100, "Maximum number of events")
		follow     = flag.Bool("follow", false, "Follow new events (like tail -f)")
		secret     = flag.String("secret", os.Getenv("CHUNK_ENGINE_ADMIN_SECRET"), "Admin token secret")
		operator   = flag.String("operator", "operator", "Operator name for token")
		ttl        = flag.Duration("ttl", time.Hour, "Token lifetime")
	)
	flag.Parse()

	// token не требует подключения к шине
	if *command == "token" {
		if err := printToken(*secret, *operator, *ttl); err != nil {
			log.Fatalf("❌ Token failed: %v", err)
		}
		return
	}

	startTime, err := parseSinceTime(*since, time.Now())
	if err != nil {
		log.Fatalf("❌ Invalid since time: %v", err)
	}

	bus, err := eventbus.NewJetStreamBus(*serverAddr, *stream, 0)
	if err != nil {
		log.Fatalf("❌ Failed to connect to server: %v", err)
	}
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	filter := eventbus.Filter{Types: parseStringList(*eventTypes), Chunks: parseChunkList(*chunks)}

	switch *command {
	case "tail":
		if err := tailEvents(ctx, bus, filter, startTime, *limit, *follow); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "stats":
		if err := showStats(ctx, bus, filter, startTime, *wait); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, token")
		os.Exit(1)
	}
}

// tailEvents выводит события с момента since
func tailEvents(ctx context.Context, bus eventbus.EventBus, filter eventbus.Filter, since time.Time, limit int, follow bool) error {
	fmt.Printf("🎬 Tailing events (limit: %d, follow: %v)\n", limit, follow)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    sync.Mutex
		count int
	)
	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		if ev.Timestamp.Before(since) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if !follow && count >= limit {
			return
		}
		fmt.Println(formatEvent(ev))
		count++
		if !follow && count >= limit {
			cancel()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	<-ctx.Done()

	mu.Lock()
	fmt.Printf("\n📊 Total events: %d\n", count)
	mu.Unlock()
	return nil
}

// showStats считает события по типам за время wait
func showStats(ctx context.Context, bus eventbus.EventBus, filter eventbus.Filter, since time.Time, wait time.Duration) error {
	fmt.Println("📊 Event statistics")

	counter := newTypeCounter()
	sub, err := bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		if !ev.Timestamp.Before(since) {
			counter.add(ev.EventType)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %v", err)
	}

	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
	sub.Unsubscribe()

	total, stats := counter.snapshot()
	fmt.Printf("Since: %s\n", since.UTC().Format(timeFormat))
	fmt.Printf("Total events: %d\n", total)
	fmt.Println("\nBy event type:")
	for _, s := range stats {
		fmt.Printf("  %s: %d events\n", s.eventType, s.count)
	}
	return nil
}

// printToken выпускает токен администратора для /api/admin
func printToken(secret, operator string, ttl time.Duration) error {
	signer, err := auth.NewSigner(secret)
	if err != nil {
		return err
	}
	token, err := signer.Generate(operator, true, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

type typeStat struct {
	eventType string
	count     int
}

type typeCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newTypeCounter() *typeCounter {
	return &typeCounter{counts: make(map[string]int)}
}

func (c *typeCounter) add(eventType string) {
	c.mu.Lock()
	c.counts[eventType]++
	c.mu.Unlock()
}

// snapshot итог и счётчики по убыванию
func (c *typeCounter) snapshot() (int, []typeStat) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	stats := make([]typeStat, 0, len(c.counts))
	for t, n := range c.counts {
		total += n
		stats = append(stats, typeStat{t, n})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].count != stats[j].count {
			return stats[i].count > stats[j].count
		}
		return stats[i].eventType < stats[j].eventType
	})
	return total, stats
}

// formatEvent событие в читаемом формате
func formatEvent(ev *eventbus.Envelope) string {
	line := fmt.Sprintf("[%s] %s [%s] %s",
		ev.Timestamp.Format("15:04:05"),
		ev.Source,
		ev.EventType,
		ev.ID)

	// Добавляем детали в зависимости от типа события
	switch ev.EventType {
	case eventbus.EventChunkTransition:
		var p eventbus.TransitionPayload
		if ev.Decode(&p) == nil {
			line += fmt.Sprintf("\n  Chunk: (%d,%d,%d) %s -> %s tick=%d", p.X, p.Y, p.Z, p.From, p.To, p.Tick)
		}
	case eventbus.EventChunkLoaded:
		var p eventbus.LoadPayload
		if ev.Decode(&p) == nil {
			line += fmt.Sprintf("\n  Chunk: (%d,%d,%d) result=%s", p.X, p.Y, p.Z, p.Result)
		}
	case eventbus.EventChunkSaved:
		var p eventbus.SavePayload
		if ev.Decode(&p) == nil {
			line += fmt.Sprintf("\n  Chunk: (%d,%d,%d)", p.X, p.Y, p.Z)
			if p.Error != "" {
				line += " error: " + p.Error
			}
		}
	}
	return line
}

// parseChunkList ключи чанков через ';', пробелы внутри ключа убираются
func parseChunkList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		key := strings.ReplaceAll(part, " ", "")
		if key != "" {
			out = append(out, key)
		}
	}
	return out
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m"
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return time.Time{}, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		// Пробуем парсить как абсолютное время
		return time.Parse(timeFormat, since)
	}

	return from.Add(-duration), nil
}
