package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"smartattend/internal/config"
	"smartattend/internal/queue"
	"smartattend/internal/store"
)

// Worker consumes accepted check-ins and keeps per-subject daily counters in
// redis so dashboards can watch a class fill up without hitting Postgres.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "smartattend:checkins")
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for check-ins...")
	for msg := range messages {
		if msg.Type != queue.TypeCheckIn {
			continue
		}

		var evt queue.CheckIn
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			log.Printf("bad check-in payload: %v", err)
			continue
		}

		key := "smartattend:count:" + evt.Subject + ":" + evt.Date
		count, err := redisClient.Client.Incr(ctx, key).Result()
		if err != nil {
			log.Printf("counter update failed for %s: %v", key, err)
			continue
		}
		log.Printf("check-in: %s for %s on %s (%d today)", evt.StudentID, evt.Subject, evt.Date, count)
	}

	log.Println("worker stopped")
}
