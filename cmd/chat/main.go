package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chineduokotu/chris-market-place/internal/api"
	"github.com/chineduokotu/chris-market-place/internal/config"
	"github.com/chineduokotu/chris-market-place/internal/domain"
	"github.com/chineduokotu/chris-market-place/internal/realtime"
	"github.com/chineduokotu/chris-market-place/internal/security"
	"github.com/chineduokotu/chris-market-place/internal/session"
	"github.com/chineduokotu/chris-market-place/internal/store/sqlite"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := sqlite.Open(cfg.CredentialDB)
	if err != nil {
		log.Fatalf("failed to open credential store: %v", err)
	}
	defer db.Close()
	if err := sqlite.Migrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	encryptor, err := security.NewEncryptor([]byte(cfg.CredentialSecret))
	if err != nil {
		log.Fatalf("failed to initialize encryptor: %v", err)
	}
	credRepo := sqlite.NewCredentialRepo(db, encryptor)
	inspector := security.NewTokenInspector()

	client := api.NewClient(cfg.APIBaseURL)
	transport := realtime.NewPusherTransport(realtime.Options{
		URL:          cfg.WSAddr(),
		AuthEndpoint: cfg.AuthEndpoint,
	})
	defer transport.Close()

	sess := session.New(client, transport)
	defer sess.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Adopt a persisted credential, if any, before connecting.
	if cred, err := credRepo.Load(ctx); err == nil {
		if inspector.Expired(cred.Token, time.Now()) {
			log.Printf("stored credential for %s has expired, ignoring", cred.UserName)
		} else {
			client.SetToken(cred.Token)
			sess.SetCredential(cred)
			log.Printf("logged in as %s (user %d)", cred.UserName, cred.UserID)
		}
	} else if err != domain.ErrNoCredential {
		log.Printf("failed to load credential: %v", err)
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := transport.Connect(dialCtx); err != nil {
		log.Printf("realtime connect failed (will keep working without): %v", err)
	}
	dialCancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Println("chat console - commands: login, logout, list, open, start, send, typing, read, back, close, status, quit")
	for {
		select {
		case <-stop:
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := runCommand(ctx, line, sess, client, credRepo, inspector); quit {
				return
			}
		}
	}
}

func runCommand(ctx context.Context, line string, sess *session.Session, client *api.Client, credRepo domain.CredentialRepository, inspector *security.TokenInspector) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		return true

	case "login":
		if len(args) < 2 {
			fmt.Println("usage: login <email> <password>")
			return false
		}
		resp, err := client.Login(ctx, args[0], args[1])
		if err != nil {
			fmt.Printf("login failed: %v\n", err)
			return false
		}
		cred := &domain.Credential{Token: resp.Token}
		if resp.User != nil {
			cred.UserID = resp.User.ID
			cred.UserName = resp.User.Name
		} else if id, err := inspector.Inspect(resp.Token); err == nil {
			cred.UserID = id.UserID
			cred.UserName = id.UserName
		}
		if err := credRepo.Save(ctx, cred); err != nil {
			log.Printf("failed to persist credential: %v", err)
		}
		sess.SetCredential(cred)
		fmt.Printf("logged in as %s (user %d)\n", cred.UserName, cred.UserID)

	case "logout":
		if err := client.Logout(ctx); err != nil {
			log.Printf("logout request failed: %v", err)
		}
		if err := credRepo.Clear(ctx); err != nil {
			log.Printf("failed to clear credential: %v", err)
		}
		sess.SetCredential(nil)
		fmt.Println("logged out")

	case "list":
		sess.RefreshDirectory(ctx)
		convs := sess.Conversations()
		if len(convs) == 0 {
			fmt.Println("no conversations")
			return false
		}
		for _, c := range convs {
			name := "?"
			if c.OtherUser != nil {
				name = c.OtherUser.Name
			}
			preview := ""
			if c.LastMessage != nil {
				preview = c.LastMessage.Body
			}
			fmt.Printf("[%d] %s (unread %d) %s\n", c.ID, name, c.UnreadCount, preview)
		}
		fmt.Printf("total unread: %d\n", sess.UnreadTotal())

	case "open":
		id, err := parseID(args)
		if err != nil {
			fmt.Println("usage: open <conversation-id>")
			return false
		}
		sess.OpenChat(ctx, id)
		printThread(sess)

	case "start":
		if len(args) < 1 {
			fmt.Println("usage: start <user-id> [booking-id]")
			return false
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fmt.Println("usage: start <user-id> [booking-id]")
			return false
		}
		var bookingID *int64
		if len(args) > 1 {
			if b, err := strconv.ParseInt(args[1], 10, 64); err == nil {
				bookingID = &b
			}
		}
		conv, err := sess.StartConversation(ctx, userID, bookingID)
		if err != nil {
			fmt.Printf("start failed: %v\n", err)
			return false
		}
		fmt.Printf("conversation %d opened\n", conv.ID)
		printThread(sess)

	case "send":
		if len(args) == 0 {
			fmt.Println("usage: send <text>")
			return false
		}
		msg, err := sess.SendMessage(ctx, strings.Join(args, " "), "text")
		if err != nil {
			fmt.Printf("send failed: %v\n", err)
			return false
		}
		fmt.Printf("sent message %d\n", msg.ID)

	case "typing":
		if active := sess.ActiveConversation(); active != nil {
			sess.SignalTyping(active.ID)
		}

	case "read":
		id, err := parseID(args)
		if err != nil {
			fmt.Println("usage: read <message-id>")
			return false
		}
		sess.MarkMessageRead(ctx, id)

	case "back":
		sess.BackToList()

	case "close":
		sess.CloseChat()

	case "status":
		fmt.Printf("connection: %s, open: %v, loading: %v, unread: %d\n",
			sess.ConnectionStatus(), sess.IsOpen(), sess.IsLoading(), sess.UnreadTotal())
		if typing := sess.TypingUsers(); len(typing) > 0 {
			fmt.Printf("typing: %v\n", typing)
		}

	default:
		fmt.Printf("unknown command %q\n", cmd)
	}
	return false
}

func parseID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing id")
	}
	return strconv.ParseInt(args[0], 10, 64)
}

func printThread(sess *session.Session) {
	active := sess.ActiveConversation()
	if active == nil {
		return
	}
	for _, m := range sess.Messages() {
		sender := "?"
		if m.Sender != nil {
			sender = m.Sender.Name
		}
		read := ""
		if m.ReadAt != nil {
			read = " (read)"
		}
		fmt.Printf("%s %s: %s%s\n", m.CreatedAt.Format("15:04"), sender, m.Body, read)
	}
}
