package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/founderskick/realtime/pkg/model"
)

type loginResponse struct {
	Token string `json:"token"`
}

func login(apiAddr, userID string) (string, error) {
	reqBody, _ := json.Marshal(map[string]string{"user_id": userID})
	resp, err := http.Post(apiAddr+"/login", "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", string(body))
	}

	var loginResp loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", err
	}
	return loginResp.Token, nil
}

func send(c *websocket.Conn, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.WriteJSON(map[string]any{"type": eventType, "payload": json.RawMessage(data)})
}

func printEvent(data []byte) {
	var ev model.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Printf("<< %s", data)
		return
	}
	switch ev.Kind {
	case model.KindNewMessage:
		var msg model.Message
		json.Unmarshal(ev.Payload, &msg)
		fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04:05"), msg.SenderID, msg.Text)
	case model.KindMessageSent:
		fmt.Println("(sent)")
	case model.KindMessageError:
		fmt.Printf("(error) %s\n", ev.Payload)
	case model.KindUserTyping:
		var sig model.TypingSignal
		json.Unmarshal(ev.Payload, &sig)
		if sig.IsTyping {
			fmt.Printf("... %s is typing\n", sig.UserID)
		}
	case model.KindUserOnline, model.KindUserOffline:
		var p model.PresenceUpdate
		json.Unmarshal(ev.Payload, &p)
		state := "online"
		if !p.IsOnline {
			state = "offline"
		}
		fmt.Printf("* %s is %s\n", p.UserID, state)
	case model.KindConnectionRequest:
		fmt.Printf("* connection request: %s\n", ev.Payload)
	case model.KindConnectionAccepted:
		fmt.Printf("* connection accepted: %s\n", ev.Payload)
	default:
		fmt.Printf("<< %s\n", data)
	}
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	apiAddr := flag.String("api", "http://localhost:8081", "api service address")
	userID := flag.String("user", "user1", "user id")
	to := flag.String("to", "", "user id to message")
	flag.Parse()

	if *to == "" {
		log.Fatal("-to is required")
	}

	// 1. Login to get token
	log.Printf("Logging in as %s...", *userID)
	token, err := login(*apiAddr, *userID)
	if err != nil {
		log.Fatal("Login failed:", err)
	}

	// 2. Connect to the gateway with the token
	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/ws"}
	header := http.Header{}
	header.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer c.Close()

	// 3. Bind our identity, then chat
	if err := send(c, "join", map[string]string{"user_id": *userID}); err != nil {
		log.Fatal("join:", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				log.Println("read:", err)
				return
			}
			printEvent(data)
		}
	}()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			send(c, "typing", map[string]any{"receiver_id": *to, "is_typing": false})
			if err := send(c, "sendMessage", map[string]string{"receiver_id": *to, "text": line}); err != nil {
				log.Println("send:", err)
				return
			}
		}
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-done:
	case <-interrupt:
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
