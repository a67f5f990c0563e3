package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/park285/Cheese-TicTacToe-bot/internal/board"
	"github.com/park285/Cheese-TicTacToe-bot/internal/irisfast"
	"github.com/park285/Cheese-TicTacToe-bot/internal/keyboard"
)

var (
	envFile  = flag.String("env", ".env", "optional dotenv file")
	sendRoom = flag.String("send", "", "room to post a test board to (send, edit, delete)")
	watch    = flag.Duration("watch", 10*time.Second, "how long to print websocket traffic")
)

func main() {
	flag.Parse()
	_ = godotenv.Load(*envFile)

	baseURL := os.Getenv("IRIS_BASE_URL")
	wsURL := os.Getenv("IRIS_WS_URL")
	userID := os.Getenv("X_USER_ID")
	userEmail := os.Getenv("X_USER_EMAIL")
	sessionID := os.Getenv("X_SESSION_ID")

	if baseURL == "" {
		log.Fatal("IRIS_BASE_URL is required")
	}

	headers := func() map[string]string {
		m := map[string]string{}
		if userID != "" {
			m["X-User-Id"] = userID
		}
		if userEmail != "" {
			m["X-User-Email"] = userEmail
		}
		if sessionID != "" {
			m["X-Session-Id"] = sessionID
		}
		return m
	}

	client := irisfast.NewClient(baseURL,
		irisfast.WithHeaderProvider(headers),
		irisfast.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cfg, err := client.GetConfig(ctx)
	if err != nil {
		log.Printf("/config error: %v", err)
	} else {
		log.Printf("/config ok: bot=%s port=%d polling=%d rate=%d endpoint=%s", cfg.BotName, cfg.BotHTTPPort, cfg.DBRate, cfg.SendRate, cfg.WebServerEndpoint)
	}

	if *sendRoom != "" {
		checkEgress(client, *sendRoom)
	}

	if wsURL == "" {
		log.Println("IRIS_WS_URL not set; skipping WS check")
		return
	}

	ws := irisfast.NewWebSocket(wsURL, 5, time.Second)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		log.Printf("WS state: %s", state)
	})
	ws.OnMessage(func(msg *irisfast.Message) {
		fmt.Printf("WS msg room=%s from=%s user=%s text=%q callback=%q\n", msg.Room, msg.SenderName(), msg.UserID(), msg.Msg, msg.Callback)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	t := time.NewTimer(*watch)
	<-t.C
	_ = ws.Close(context.Background())
}

// checkEgress posts a board, edits it in place and deletes it, which is the full cycle fan-out relies on.
func checkEgress(client *irisfast.Client, room string) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var b board.Board
	id, err := client.Send(ctx, room, "irischeck: empty board", keyboard.Render(b))
	if err != nil {
		log.Printf("send error: %v", err)
		return
	}
	log.Printf("send ok: message_id=%q", id)
	if id == "" {
		log.Println("server returned no message id; edits will fall back to new messages")
		return
	}
	b, _ = b.Place(1, 1, board.X)
	if err := client.Edit(ctx, room, id, "irischeck: edited board", keyboard.Render(b)); err != nil {
		log.Printf("edit error: %v", err)
	} else {
		log.Println("edit ok")
	}
	if err := client.Delete(ctx, room, id); err != nil {
		log.Printf("delete error: %v", err)
	} else {
		log.Println("delete ok")
	}
}
