//go:build ignore

package main

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run scripts/watch_clicks.go <url_id> <token> [host]")
		fmt.Println("Example: go run scripts/watch_clicks.go 62 $TEST_TOKEN localhost:8080")
		os.Exit(1)
	}

	host := "localhost:8080"
	if len(os.Args) > 3 {
		host = os.Args[3]
	}

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/v1/ws/clicks"}
	q := u.Query()
	q.Set("url_id", os.Args[1])
	q.Set("token", os.Args[2])
	u.RawQuery = q.Encode()

	fmt.Printf("Connecting to %s\n", u.Redacted())

	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			log.Fatalf("dial: %v (status %d)", err, resp.StatusCode)
		}
		log.Fatal("dial:", err)
	}
	defer c.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			fmt.Printf("%s %s\n", time.Now().Format(time.TimeOnly), message)
		}
	}()

	select {
	case <-done:
	case <-interrupt:
		fmt.Println("\nclosing connection...")

		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("write close:", err)
			return
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
