package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	ws "nhooyr.io/websocket"
)

// Drives one reading session end to end against a running companion server:
// create, start, connect the listener socket, play the assistant's turn,
// interrupt as the child, and watch the states roll by.
func main() {
	base := flag.String("server", "http://localhost:8080", "Companion server base URL")
	bookID := flag.String("book", "", "Book ID to read (defaults to the first listed book)")
	timeout := flag.Duration("timeout", 30*time.Second, "Timeout for the whole run")
	interrupt := flag.Bool("interrupt", true, "Simulate a child interruption during narration")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *bookID == "" {
		*bookID = firstBook(ctx, *base)
	}

	fmt.Printf("=== Reading Session Simulation ===\n")
	fmt.Printf("Server: %s\n", *base)
	fmt.Printf("Book:   %s\n\n", *bookID)

	// Step 1: create the session
	fmt.Println("[1] Creating session...")
	var created struct {
		SessionID string `json:"session_id"`
		BookTitle string `json:"book_title"`
		Pages     int    `json:"pages"`
	}
	postJSON(ctx, *base+"/sessions", map[string]any{"book_id": *bookID}, &created)
	fmt.Printf("    session=%s title=%q pages=%d\n", created.SessionID, created.BookTitle, created.Pages)
	id := created.SessionID

	// Step 2: mint a listener token
	fmt.Println("[2] Minting listener token...")
	var minted struct {
		Token string `json:"token"`
	}
	postJSON(ctx, *base+"/sessions/"+id+"/listener-token", nil, &minted)

	// Step 3: start reading
	fmt.Println("[3] Starting session...")
	postJSON(ctx, *base+"/sessions/"+id+"/start", nil, nil)

	// Step 4: connect the listener websocket
	fmt.Println("[4] Connecting listener websocket...")
	wsURL := strings.Replace(*base, "http", "ws", 1) + "/ws/listener?session_id=" + id
	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer "+minted.Token)
	conn, _, err := ws.Dial(ctx, wsURL, &ws.DialOptions{HTTPHeader: hdr})
	if err != nil {
		log.Fatalf("dial listener ws: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "done")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg struct {
				Type    string `json:"type"`
				State   string `json:"state"`
				Context struct {
					CurrentPage *struct {
						ID    string `json:"id"`
						Index int    `json:"index"`
						Total int    `json:"total"`
					} `json:"current_page"`
					PausePositionMs *int64 `json:"pause_position_ms"`
				} `json:"context"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			ts := time.Now().Format("15:04:05.000")
			line := fmt.Sprintf("[%s] <- %s", ts, msg.State)
			if p := msg.Context.CurrentPage; p != nil {
				line += fmt.Sprintf(" page=%s (%d/%d)", p.ID, p.Index+1, p.Total)
			}
			if msg.Context.PausePositionMs != nil {
				line += fmt.Sprintf(" paused_at=%dms", *msg.Context.PausePositionMs)
			}
			fmt.Println(line)
		}
	}()

	send := func(typ string) {
		b, _ := json.Marshal(map[string]any{"type": typ, "ts_ms": time.Now().UnixMilli()})
		if err := conn.Write(ctx, ws.MessageText, b); err != nil {
			log.Fatalf("send %s: %v", typ, err)
		}
		fmt.Printf("    -> %s\n", typ)
	}

	// Step 5: assistant takes its turn, then yields; pre-roll should start
	// narration shortly after.
	fmt.Println("[5] Assistant turn...")
	send("assistant_speech_start")
	time.Sleep(1500 * time.Millisecond)
	send("assistant_speech_stop")
	time.Sleep(3 * time.Second)

	if *interrupt {
		// Step 6: child interrupts mid-narration, then goes quiet again.
		fmt.Println("[6] Child interruption...")
		send("child_speech_start")
		time.Sleep(1200 * time.Millisecond)
		send("child_speech_stop")
	}

	fmt.Println("\n[*] Watching the session until timeout (Ctrl+C to quit)...")
	select {
	case <-done:
		fmt.Println("[*] Listener socket closed")
	case <-ctx.Done():
		fmt.Println("[*] Timeout reached")
	}

	endCtx, endCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer endCancel()
	fmt.Println("[*] Ending session")
	postJSON(endCtx, *base+"/sessions/"+id+"/end", nil, nil)
}

func firstBook(ctx context.Context, base string) string {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, base+"/books", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("list books: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Books []struct {
			ID string `json:"id"`
		} `json:"books"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || len(out.Books) == 0 {
		log.Fatalf("no books available on %s", base)
	}
	return out.Books[0].ID
}

func postJSON(ctx context.Context, url string, body any, out any) {
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, rd)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		log.Fatalf("POST %s: status %d", url, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("POST %s: decode: %v", url, err)
		}
	}
}
