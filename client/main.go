package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Message mirrors the server's wire envelope.
type Message struct {
	Type   string `json:"type"`
	Params Params `json:"params"`
}

type Params struct {
	Room      string          `json:"room,omitempty"`
	Player    *Player         `json:"player,omitempty"`
	Count     int             `json:"no-clients,omitempty"`
	TicTacToe json.RawMessage `json:"tictactoe,omitempty"`
}

type Player struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Piece string `json:"piece,omitempty"`
}

func send(c *websocket.Conn, msg *Message) error {
	return c.WriteJSON(msg)
}

func main() {
	addr := flag.String("addr", "localhost:8080", "relay server address")
	id := flag.String("id", "", "participant id")
	name := flag.String("name", "", "display name")
	flag.Parse()

	if *id == "" {
		*id = fmt.Sprintf("p%d", time.Now().UnixNano()%100000)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s as %s", u.String(), *id)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	var roomCode string

	// Read loop
	go func() {
		defer close(done)
		for {
			var msg Message
			if err := c.ReadJSON(&msg); err != nil {
				log.Println("Read error:", err)
				return
			}
			switch msg.Type {
			case "info":
				if msg.Params.Room != "" {
					roomCode = msg.Params.Room
					log.Printf("<- room %s (%d inside)", msg.Params.Room, msg.Params.Count)
				} else {
					log.Println("<- info: room unavailable")
				}
			case "readyToChoose":
				log.Printf("<- paired with %s, you choose: type 'choose X' or 'choose O'", msg.Params.Player.ID)
			case "ready":
				log.Printf("<- paired with %s, waiting for their choice", msg.Params.Player.ID)
			case "start":
				log.Printf("<- game on against %s playing %s", msg.Params.Player.ID, msg.Params.Player.Piece)
			case "game":
				log.Printf("<- opponent move: %s", string(msg.Params.TicTacToe))
			case "close":
				log.Println("<- room closed")
				roomCode = ""
			default:
				log.Printf("<- %s", msg.Type)
			}
		}
	}()

	log.Println("Commands: create | join CODE | choose X|O | move N | leave")

	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}

			var msg *Message
			switch fields[0] {
			case "create":
				msg = &Message{Type: "create", Params: Params{
					Player: &Player{ID: *id, Name: *name},
				}}
			case "join":
				if len(fields) < 2 {
					log.Println("usage: join CODE")
					continue
				}
				roomCode = strings.ToUpper(fields[1])
				msg = &Message{Type: "join", Params: Params{
					Room:   roomCode,
					Player: &Player{ID: *id, Name: *name},
				}}
			case "choose":
				if len(fields) < 2 {
					log.Println("usage: choose X|O")
					continue
				}
				msg = &Message{Type: "choose", Params: Params{
					Room:   roomCode,
					Player: &Player{ID: *id, Piece: strings.ToUpper(fields[1])},
				}}
			case "move":
				if len(fields) < 2 {
					log.Println("usage: move N")
					continue
				}
				position, err := strconv.Atoi(fields[1])
				if err != nil {
					log.Println("move takes a board position number")
					continue
				}
				payload, _ := json.Marshal(map[string]int{"position": position})
				msg = &Message{Type: "game", Params: Params{
					Room:      roomCode,
					Player:    &Player{ID: *id},
					TicTacToe: payload,
				}}
			case "leave":
				msg = &Message{Type: "leave", Params: Params{Room: roomCode}}
			default:
				log.Printf("unknown command %q", fields[0])
				continue
			}

			if err := send(c, msg); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
