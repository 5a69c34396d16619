package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 250 // pairs of users talking to each other
	MsgCount  = 20  // messages per user
)

type AuthResponse struct {
	Token    string `json:"access_token"`
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func main() {
	log.Printf("starting load test: %d users, %d messages each", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("load test complete")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	a := authenticate(userA, pass)
	b := authenticate(userB, pass)
	if a.Token == "" || b.Token == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, a, b.ID)
	go spamChat(&wsWg, b, a.ID)
	wsWg.Wait()
}

// authenticate registers (ignoring "already exists") and logs in.
func authenticate(username, password string) AuthResponse {
	postJSON("/register", map[string]string{
		"name":     username,
		"email":    username + "@loadtest.local",
		"username": username,
		"password": password,
	})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("login failed [%s]: %v", username, err)
		return AuthResponse{}
	}
	defer resp.Body.Close()

	var data AuthResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data
}

func spamChat(wg *sync.WaitGroup, self AuthResponse, peerID int64) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, self.Token), nil)
	if err != nil {
		log.Printf("ws connect failed [%s]: %v", self.Username, err)
		return
	}
	defer conn.Close()

	// Bind this connection to the authenticated user before sending.
	if err := conn.WriteJSON(envelope{
		Event: "registerUser",
		Data:  map[string]int64{"userId": self.ID},
	}); err != nil {
		log.Printf("registerUser failed [%s]: %v", self.Username, err)
		return
	}

	// Drain inbound frames so slow-reader eviction never kicks in.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < MsgCount; i++ {
		content := fmt.Sprintf("load test message %d from %s", i, self.Username)
		err := conn.WriteJSON(envelope{
			Event: "sendMessage",
			Data: map[string]interface{}{
				"senderId":         self.ID,
				"receiverId":       peerID,
				"content":          content,
				"correlationToken": fmt.Sprintf("%s-%d", self.Username, i),
			},
		})
		if err != nil {
			log.Printf("send failed [%s]: %v", self.Username, err)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("%s finished sending %d messages", self.Username, MsgCount)
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
