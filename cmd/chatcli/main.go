package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	"github.com/tradeguard/chatsync/internal/chat"
	"github.com/tradeguard/chatsync/internal/config"
	"github.com/tradeguard/chatsync/internal/identity"
	"github.com/tradeguard/chatsync/internal/registry"
	"github.com/tradeguard/chatsync/internal/rest"
	"github.com/tradeguard/chatsync/internal/stats"
	"github.com/tradeguard/chatsync/internal/transport"
	"github.com/tradeguard/chatsync/internal/types"
)

var (
	serverURL string
	token     string
	roomId    string
	admin     bool
	debugAddr string
	envFile   string
)

func main() {
	flag.StringVar(&serverURL, "server-url", "", "chat service base URL (falls back to CHATSYNC_SERVER_URL)")
	flag.StringVar(&token, "token", "", "bearer token (falls back to CHATSYNC_TOKEN)")
	flag.StringVar(&roomId, "room", "", "order room to join")
	flag.BoolVar(&admin, "admin", false, "subscribe to the admin broadcast room")
	flag.StringVar(&debugAddr, "debug-addr", "", "expose expvar stats on this address")
	flag.StringVar(&envFile, "env-file", "", "load environment from this file")
	flag.Parse()

	logger := log.New(os.Stderr, "[chatsync] ", log.LstdFlags)

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			logger.Fatal("load env file:", err)
		}
	}
	if serverURL == "" {
		serverURL = os.Getenv("CHATSYNC_SERVER_URL")
	}
	if token == "" {
		token = os.Getenv("CHATSYNC_TOKEN")
	}

	cfg, err := config.NewConfig(serverURL, token)
	if err != nil {
		logger.Fatal("config:", err)
	}

	local, err := identity.LocalUser(cfg.Token)
	if err != nil {
		logger.Fatal("identity:", err)
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	if debugAddr != "" {
		go func() {
			h := handlers.CORS(
				handlers.MaxAge(3600),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
			)(mux)
			logger.Printf("debug listener on %s", debugAddr)
			if err := http.ListenAndServe(debugAddr, h); err != nil {
				logger.Println("debug listener:", err)
			}
		}()
	}

	reg := registry.NewRegistry(logger, cfg, statsUpdater)
	ref, err := reg.Acquire(cfg.Token)
	if err != nil {
		logger.Fatal("acquire transport:", err)
	}
	defer ref.Release()

	httpBase := strings.Replace(strings.Replace(cfg.ServerURL, "ws://", "http://", 1), "wss://", "https://", 1)
	restClient := rest.NewClient(httpBase, cfg.Token, logger)

	session := chat.NewSession(logger, statsUpdater, ref.Handle(), restClient, local, cfg)
	defer session.Close()

	session.SetMessageListener(func(roomId string, msg types.Message) {
		fmt.Printf("[%s] %s %s: %s\n", roomId, msg.CreatedAt.Format(time.Kitchen), msg.SenderDisplay, msg.Content)
	})
	session.Notifier().SetSoundHook(func() {
		fmt.Print("\a")
	})

	ref.Handle().OnStateChange(func(state transport.ConnState) {
		logger.Println("connection state:", state)
	})

	if admin {
		if err := session.JoinAdmin(); err != nil {
			logger.Fatal("join admin:", err)
		}

		rooms, err := restClient.ListRooms(context.Background())
		if err != nil {
			logger.Println("list rooms:", err)
		}
		for _, r := range rooms {
			fmt.Printf("room %s (order %s): %d unread\n", r.Id, r.OrderId, r.UnreadCount)
		}
	}

	if roomId != "" {
		if err := session.Join(roomId); err != nil {
			logger.Fatal("join room:", err)
		}

		history, err := session.LoadHistory(context.Background(), roomId)
		if err != nil {
			logger.Println("load history:", err)
		}
		for _, msg := range history {
			fmt.Printf("[%s] %s %s: %s\n", roomId, msg.CreatedAt.Format(time.Kitchen), msg.SenderDisplay, msg.Content)
		}

		if err := session.Focus(context.Background(), roomId); err != nil {
			logger.Println("focus room:", err)
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case sig := <-sigs:
			logger.Printf("received signal: %s", sig)
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if roomId == "" {
				logger.Println("no room joined, ignoring input")
				continue
			}

			session.AnnounceTyping(roomId)
			if _, err := session.Send(roomId, line); err != nil {
				logger.Println("send:", err)
			}
		}
	}
}
