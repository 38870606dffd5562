// pushprobe dials the backend push channel, subscribes a user channel, and
// dumps every event it receives. Diagnostic tool for missed match_found or
// chat_ended deliveries.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hobbymatch/hobbymatch/internal/proto"
	"github.com/hobbymatch/hobbymatch/internal/utils"
)

func main() {
	if err := run(); err != nil {
		log.Printf("pushprobe: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:5000/ws", "push channel address")
	user := flag.String("user", "", "user id to subscribe for match notifications")
	room := flag.String("room", "", "room to join for room events")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	probe := utils.NewID()
	fmt.Printf("connected to %s (probe %s)\n", *addr, probe)

	emit := func(event string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		return wsjson.Write(ctx, conn, proto.Envelope{Event: event, Data: data})
	}

	if *user != "" {
		if err := emit(proto.EventJoinUserRoom, proto.JoinUserRoomData{UserID: *user}); err != nil {
			return fmt.Errorf("join user channel: %w", err)
		}
		fmt.Printf("subscribed user channel %s\n", *user)
	}
	if *room != "" {
		if err := emit(proto.EventJoinRoom, proto.JoinRoomData{Room: *room, Username: "pushprobe-" + probe}); err != nil {
			return fmt.Errorf("join room: %w", err)
		}
		fmt.Printf("joined room %s\n", *room)
	}

	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("event=%s data=%s\n", env.Event, string(env.Data))
	}
}
