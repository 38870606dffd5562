package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hobbymatch/hobbymatch/internal/app"
	"github.com/hobbymatch/hobbymatch/internal/chat"
)

// chatScreen runs the interactive room loop: render the timeline, forward
// stdin lines as messages, and react to room events until the chat ends or
// the user walks away. Commands: /leave keeps the room resumable, /end
// terminates it for both sides.
func chatScreen(ctx context.Context, a *app.App, roomID, username string) error {
	room := a.NewRoom(roomID, username)
	if err := room.Join(ctx); err != nil {
		return err
	}

	for _, msg := range room.Messages() {
		printMessage(msg)
	}
	fmt.Println("-- connected; type a message, /leave to step out, /end to finish the chat --")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return leaveQuietly(room)

		case ev := <-room.Events():
			switch ev.Kind {
			case chat.EventMessages:
				for _, msg := range ev.Messages {
					printMessage(msg)
				}
			case chat.EventNotice:
				printMessage(ev.Notice)
			case chat.EventEnded:
				fmt.Println("-- chat ended --")
				return nil
			}

		case line, ok := <-lines:
			if !ok {
				return leaveQuietly(room)
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			switch text {
			case "/leave":
				if err := room.Leave(ctx); err != nil {
					return err
				}
				fmt.Println("-- left room (resumable with `hobbymatch resume`) --")
				return nil
			case "/end":
				if err := room.End(ctx); err != nil {
					a.Log.Warn().Err(err).Msg("end chat")
				}
				fmt.Println("-- chat ended --")
				return nil
			default:
				if err := room.Send(ctx, text); err != nil {
					fmt.Printf("!! message not sent: %v\n", err)
				}
			}
		}
	}
}

func leaveQuietly(room *chat.Room) error {
	leaveCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := room.Leave(leaveCtx); err != nil {
		return nil // already terminal
	}
	return nil
}

func printMessage(msg chat.Message) {
	if msg.Sender == chat.SystemSender {
		fmt.Printf("** %s\n", msg.Body)
		return
	}
	fmt.Printf("[%s] %s\n", msg.Sender, msg.Body)
}
