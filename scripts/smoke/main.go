package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/founderskick/realtime/pkg/model"
)

// End-to-end check of the durable path: alice messages bob, bob's fetch
// returns it and marks it read, bob's conversation list shows alice.

func login(apiAddr, userID string) string {
	reqBody, _ := json.Marshal(map[string]string{"user_id": userID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Fatal(err)
	}
	return out.Token
}

func do(method, url, token string, body any) []byte {
	var buf io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		buf = bytes.NewBuffer(data)
	}
	req, _ := http.NewRequest(method, url, buf)
	req.Header.Add("Authorization", "Bearer "+token)
	req.Header.Add("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		log.Fatalf("%s %s: %d %s", method, url, resp.StatusCode, data)
	}
	return data
}

func main() {
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	flag.Parse()

	alice := login(*apiAddr, "smoke_alice")
	bob := login(*apiAddr, "smoke_bob")

	var sent model.Message
	json.Unmarshal(do("POST", *apiAddr+"/api/messages", alice,
		map[string]string{"receiver_id": "smoke_bob", "text": "hello from the smoke test"}), &sent)
	fmt.Printf("sent message %d\n", sent.ID)
	if sent.IsRead {
		log.Fatal("new message must start unread")
	}

	var fetched []model.Message
	json.Unmarshal(do("GET", *apiAddr+"/api/messages/smoke_alice", bob, nil), &fetched)
	if len(fetched) == 0 {
		log.Fatal("bob's fetch returned no messages")
	}
	fmt.Printf("bob fetched %d messages\n", len(fetched))

	var conversations []model.ConversationSummary
	json.Unmarshal(do("GET", *apiAddr+"/api/conversations", bob, nil), &conversations)
	found := false
	for _, c := range conversations {
		if c.OtherUserID == "smoke_alice" {
			found = true
		}
	}
	if !found {
		log.Fatal("bob's conversation list is missing smoke_alice")
	}
	fmt.Println("smoke test passed")
}
