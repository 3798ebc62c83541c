package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rollcall/internal/config"
	"rollcall/internal/faceclient"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker consumes camera frames, calls the face service, and publishes
// recognized-student events back to the session machines.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down worker...")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var frames, recognized queue.Queue
	if cfg.QueueBackend == "memory" {
		frames = queue.NewInMemory(64)
		recognized = queue.NewInMemory(64)
	} else {
		frames = queue.NewRedisQueue(redisClient.Client, cfg.FrameQueueKey)
		recognized = queue.NewRedisQueue(redisClient.Client, cfg.RecognizedQueueKey)
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	// Check face service health on startup
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Printf("WARNING: Face service not available: %v", err)
			log.Println("Worker will retry recognition when frames arrive")
		} else {
			log.Println("Face service connected")
		}
	}

	messages, err := frames.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for frames...")
	for msg := range messages {
		if msg.Type != queue.TypeFrame {
			continue
		}

		var frame queue.FramePayload
		if err := json.Unmarshal(msg.Body, &frame); err != nil {
			log.Printf("frame decode failed: %v", err)
			continue
		}
		log.Printf("processing frame for session %s", frame.SessionRef)

		result, err := face.Recognize(ctx, frame.ImageURL, frame.ClassID)
		if err != nil {
			log.Printf("recognition failed for session %s: %v", frame.SessionRef, err)
			continue
		}
		if len(result.Matches) == 0 {
			log.Printf("session %s: no matches in frame (%d faces)", frame.SessionRef, result.FacesDetected)
			continue
		}

		students := make([]queue.RecognizedStudent, 0, len(result.Matches))
		for _, m := range result.Matches {
			students = append(students, queue.RecognizedStudent{
				StudentID:  m.StudentID,
				RollNumber: m.RollNumber,
				Name:       m.Name,
				Similarity: m.Similarity,
			})
		}

		out, err := queue.NewMessage(queue.TypeRecognized, queue.RecognizedPayload{
			SessionRef: frame.SessionRef,
			Students:   students,
		})
		if err != nil {
			log.Printf("recognized encode failed: %v", err)
			continue
		}
		if err := recognized.Publish(ctx, out); err != nil {
			log.Printf("recognized publish failed: %v", err)
			continue
		}
		log.Printf("session %s: %d student(s) recognized", frame.SessionRef, len(students))

		time.Sleep(10 * time.Millisecond) // Small delay between frames
	}

	log.Println("worker stopped")
}
