package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Read-only dump of the messaging store: conversations and messages as a
// table, unread messages highlighted. Safe to run next to a live server.
func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:, conv:, user:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Conversation", "Sender", "At", "Read", "Content"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if err := item.Value(func(val []byte) error {
				table.Append(toRow(key, val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Error while scanning: ", err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	// BypassLockGuard allows opening while the server holds the lock.
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	return badger.Open(opts)
}

type storedMessage struct {
	ID             string `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	At             int64  `json:"at"`
	Read           bool   `json:"read"`
}

func toRow(key string, val []byte) []string {
	var msg storedMessage
	if err := json.Unmarshal(val, &msg); err != nil || msg.ID == "" {
		// Not a message row (conv:/user:/msgidx:), dump raw.
		return []string{key, "", "", "", "", string(val)}
	}

	read := color.Green.Sprint("yes")
	if !msg.Read {
		read = color.Red.Sprint("NO")
	}
	return []string{
		key,
		fmt.Sprintf("%d", msg.ConversationID),
		msg.SenderID,
		time.Unix(0, msg.At).UTC().Format(time.RFC3339),
		read,
		msg.Content,
	}
}
