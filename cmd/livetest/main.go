// Package main provides a load testing tool for the live feed WebSocket.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"agora/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// Metrics tracks the test results
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	MessagesSent         int64
	MessagesReceived     int64
	RepliesPosted        int64
	Errors               int64
}

var metrics Metrics

func main() {
	host := flag.String("host", "localhost:8080", "API server host")
	postID := flag.Uint("post", 1, "Post whose reply feed clients subscribe to")
	firstUser := flag.Uint("user", 1, "First user id to mint tokens for")
	clients := flag.Int("clients", 50, "Number of concurrent clients")
	replyEvery := flag.Duration("reply-every", 2*time.Second, "Interval between replies posted by the driver (0 disables)")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	log.Printf("🚀 Starting Live Feed Load Test")
	log.Printf("Target: %s", *host)
	log.Printf("Clients: %d", *clients)
	log.Printf("Duration: %v", *duration)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})

	for i := 0; i < *clients; i++ {
		token, err := mintToken(cfg, *firstUser+uint(i))
		if err != nil {
			log.Fatalf("❌ Token signing failed: %v", err)
		}
		wg.Add(1)
		go runClient(*host, token, *postID, stopChan, &wg)
		time.Sleep(20 * time.Millisecond)
	}

	if *replyEvery > 0 {
		token, err := mintToken(cfg, *firstUser)
		if err != nil {
			log.Fatalf("❌ Token signing failed: %v", err)
		}
		wg.Add(1)
		go runReplier(*host, token, *postID, *replyEvery, stopChan, &wg)
	}

	select {
	case <-time.After(*duration):
		log.Println("⏱️  Test duration reached")
	case <-interrupt:
		log.Println("🛑 Interrupted by user")
	}

	close(stopChan)
	log.Println("Waiting for clients to disconnect...")
	wg.Wait()

	printMetrics()
}

func mintToken(cfg *config.Config, userID uint) (string, error) {
	claims := jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if cfg.JWTIssuer != "" {
		claims["iss"] = cfg.JWTIssuer
	}
	if cfg.JWTAudience != "" {
		claims["aud"] = cfg.JWTAudience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

func runClient(host, token string, postID uint, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws", RawQuery: "token=" + url.QueryEscape(token)}

	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = c.Close() }()

	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	go func() {
		for {
			_, _, err := c.ReadMessage()
			if err != nil {
				return
			}
			atomic.AddInt64(&metrics.MessagesReceived, 1)
		}
	}()

	if err := send(c, map[string]any{"type": "subscribe_replies", "post_id": postID}); err != nil {
		return
	}

	ticker := time.NewTicker(time.Second * 5)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if err := send(c, map[string]any{"type": "ping"}); err != nil {
				return
			}
		}
	}
}

func send(c *websocket.Conn, msg map[string]any) error {
	msgJSON, _ := json.Marshal(msg)
	if err := c.WriteMessage(websocket.TextMessage, msgJSON); err != nil {
		atomic.AddInt64(&metrics.Errors, 1)
		return err
	}
	atomic.AddInt64(&metrics.MessagesSent, 1)
	return nil
}

// runReplier posts top-level replies so subscribers have events to receive.
func runReplier(host, token string, postID uint, every time.Duration, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}
	replyURL := fmt.Sprintf("http://%s/api/posts/%d/replies", host, postID)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
		}

		body, _ := json.Marshal(map[string]string{"text": fmt.Sprintf("Load test reply %d", n)})
		req, _ := http.NewRequest(http.MethodPost, replyURL, bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddInt64(&metrics.Errors, 1)
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			atomic.AddInt64(&metrics.Errors, 1)
			continue
		}
		atomic.AddInt64(&metrics.RepliesPosted, 1)
	}
}

func printMetrics() {
	log.Println("\n📊 Test Results")
	log.Println("===============")
	log.Printf("Connections Attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("Connections Successful: %d", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	log.Printf("Connections Failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("Messages Sent: %d", atomic.LoadInt64(&metrics.MessagesSent))
	log.Printf("Messages Received: %d", atomic.LoadInt64(&metrics.MessagesReceived))
	log.Printf("Replies Posted: %d", atomic.LoadInt64(&metrics.RepliesPosted))
	log.Printf("Total Errors: %d", atomic.LoadInt64(&metrics.Errors))
}
