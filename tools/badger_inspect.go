package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// diskMessage mirrors the CBOR layout the message repository persists.
type diskMessage struct {
	ID         string `cbor:"id"`
	SenderID   string `cbor:"sender_id"`
	ReceiverID string `cbor:"receiver_id"`
	Content    string `cbor:"content"`
	At         int64  `cbor:"at"`
	Status     string `cbor:"status"`
	ReadAt     *int64 `cbor:"read_at,omitempty"`
}

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	// Default to the primary message records, skipping umsg: index entries
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Timestamp", "Sender", "Receiver", "Status", "Read At", "Content"})
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

			// The per-user index only stores primary keys, nothing to decode
			if strings.HasPrefix(string(item.Key()), "umsg:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				var m diskMessage
				if err := cbor.Unmarshal(v, &m); err != nil {
					// Log and keep scanning instead of stopping the whole dump
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				readAt := ""
				if m.ReadAt != nil {
					readAt = time.Unix(0, *m.ReadAt).UTC().Format("15:04:05")
				}

				content := m.Content
				if len(content) > 40 {
					content = content[:40] + "..."
				}

				table.Append([]string{
					string(item.Key()),
					time.Unix(0, m.At).UTC().Format("15:04:05"),
					m.SenderID,
					m.ReceiverID,
					m.Status,
					readAt,
					content,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// If a truncate is required, open once in write mode then retry read-only
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}

			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
