// sendmectl runs offline queries against a profile's local cache. It never
// talks to the daemon or the remote backend; everything it prints comes from
// the sqlite mirror the daemon maintains.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/sendme/internal/session"
	"github.com/matheus3301/sendme/internal/store"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	limitFlag := flag.Int("limit", 50, "maximum rows to return")
	chatFlag := flag.String("chat", "", "restrict search to one chat id")
	flag.Parse()

	profileName := session.Resolve(*profileFlag)
	if err := session.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	db, err := store.Open(session.CacheDBPath(profileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot open cache for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	switch args[0] {
	case "chats":
		cmdChats(db, *limitFlag, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: sendmectl messages <chat-id>")
			os.Exit(1)
		}
		cmdMessages(db, args[1], *limitFlag, *jsonFlag)
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: sendmectl search <query>")
			os.Exit(1)
		}
		cmdSearch(db, args[1], *chatFlag, *limitFlag, *jsonFlag)
	case "outbox":
		cmdOutbox(db, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: sendmectl [--profile <name>] [--json] [--limit <n>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  chats                 List cached chats")
	fmt.Fprintln(os.Stderr, "  messages <chat-id>    List cached messages for a chat")
	fmt.Fprintln(os.Stderr, "  search [--chat <id>] <query>")
	fmt.Fprintln(os.Stderr, "                        Full-text search over cached messages")
	fmt.Fprintln(os.Stderr, "  outbox                List undelivered queued sends")
}

func cmdChats(db *store.DB, limit int, jsonOut bool) {
	chats, err := db.ListChats(limit, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(chats)
		return
	}
	if len(chats) == 0 {
		fmt.Println("No chats cached.")
		return
	}
	for _, c := range chats {
		kind := "1:1"
		if c.IsGroup {
			kind = "group"
		}
		fmt.Printf("%-36s %-6s unread=%-3d %s  %s\n",
			c.ChatID, kind, c.UnreadCount, formatTS(c.LastMessageAt), c.DisplayName)
	}
}

func cmdMessages(db *store.DB, chatID string, limit int, jsonOut bool) {
	msgs, err := db.ListMessages(chatID, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages cached for this chat.")
		return
	}
	for _, m := range msgs {
		body := m.Content
		if m.ImageURL != "" {
			body = "[image] " + m.ImageURL
		}
		fmt.Printf("%s %-10s %-12s %s\n", formatTS(m.Timestamp), m.SendState, m.SenderUID, body)
	}
}

func cmdSearch(db *store.DB, query, chatID string, limit int, jsonOut bool) {
	results, err := db.SearchMessages(query, chatID, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(results)
		return
	}
	if len(results) == 0 {
		fmt.Println("No matches.")
		return
	}
	for _, r := range results {
		fmt.Printf("%s %-36s %-12s %s\n", formatTS(r.Message.Timestamp), r.Message.ChatID, r.Message.SenderUID, r.Snippet)
	}
}

func cmdOutbox(db *store.DB, jsonOut bool) {
	entries, err := db.PendingOutbox()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(entries)
		return
	}
	if len(entries) == 0 {
		fmt.Println("Outbox is empty.")
		return
	}
	for _, e := range entries {
		fmt.Printf("%-36s %-36s %-8s %s\n", e.ClientMsgID, e.ChatID, e.Status, e.Content)
	}
}

func formatTS(millis int64) string {
	if millis == 0 {
		return "                   "
	}
	return time.UnixMilli(millis).Format("2006-01-02 15:04:05")
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
