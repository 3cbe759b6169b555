package main

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/council/internal/config"
	"github.com/mtzanidakis/council/internal/store"
)

const archiveDir = "conversations"

// archiveStore is the persistence export and import work against.
type archiveStore interface {
	ListConversations() ([]store.ConversationSummary, error)
	GetConversation(id string) (*store.Conversation, error)
	ImportConversation(c *store.Conversation) error
}

func parseArchiveArgs(args []string, name string) (file string, overwrite bool, err error) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return "", false, fmt.Errorf("missing value for -f")
			}
			i++
			file = args[i]
		case "-overwrite":
			overwrite = true
		}
	}
	if file == "" {
		fmt.Fprintf(os.Stderr, "Usage: council %s -f <archive.tar.zst>\n", name)
		return "", false, fmt.Errorf("missing -f flag")
	}
	return file, overwrite, nil
}

func openStore() (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return store.New(cfg.Store)
}

func runExport(args []string) error {
	outputPath, _, err := parseArchiveArgs(args, "export")
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	n, err := exportConversations(db, f)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	size := int64(0)
	if info, _ := os.Stat(outputPath); info != nil {
		size = info.Size()
	}
	fmt.Printf("Export complete: %d conversations, %s\n", n, formatSize(size))
	return nil
}

// exportConversations writes every conversation as one JSON document into a
// zstd-compressed tar.
func exportConversations(db archiveStore, w io.Writer) (int, error) {
	list, err := db.ListConversations()
	if err != nil {
		return 0, fmt.Errorf("list conversations: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	count := 0
	for _, summary := range list {
		c, err := db.GetConversation(summary.ID)
		if err != nil {
			return count, fmt.Errorf("load conversation %s: %w", summary.ID, err)
		}
		if c == nil {
			// Deleted since listing.
			continue
		}
		data, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			return count, fmt.Errorf("encode conversation %s: %w", c.ID, err)
		}

		hdr := &tar.Header{
			Name:    path.Join(archiveDir, c.ID+".json"),
			Mode:    0o644,
			Size:    int64(len(data)),
			ModTime: time.Now(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return count, fmt.Errorf("write tar header: %w", err)
		}
		if _, err := tw.Write(data); err != nil {
			return count, fmt.Errorf("write tar data: %w", err)
		}
		count++
	}

	// Close explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return count, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return count, fmt.Errorf("close zstd: %w", err)
	}
	return count, nil
}

func runImport(args []string) error {
	inputPath, overwrite, err := parseArchiveArgs(args, "import")
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	imported, skipped, err := importConversations(db, f, overwrite)
	if err != nil {
		return err
	}
	if skipped > 0 {
		fmt.Printf("Skipped %d existing conversations, add -overwrite to replace them\n", skipped)
	}
	fmt.Printf("Import complete: %d conversations\n", imported)
	return nil
}

// importConversations loads every conversation document in the archive. Existing
// conversations are kept unless overwrite is set.
func importConversations(db archiveStore, r io.Reader, overwrite bool) (imported, skipped int, err error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return 0, 0, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return imported, skipped, fmt.Errorf("read tar entry: %w", err)
		}

		id := conversationFromPath(hdr.Name)
		if id == "" || hdr.Typeflag != tar.TypeReg {
			continue
		}

		var c store.Conversation
		if err := json.NewDecoder(tr).Decode(&c); err != nil {
			return imported, skipped, fmt.Errorf("decode %s: %w", hdr.Name, err)
		}
		if c.ID != id {
			return imported, skipped, fmt.Errorf("%s holds conversation %q", hdr.Name, c.ID)
		}

		if !overwrite {
			existing, err := db.GetConversation(c.ID)
			if err != nil {
				return imported, skipped, fmt.Errorf("check conversation %s: %w", c.ID, err)
			}
			if existing != nil {
				slog.Info("conversation exists, skipping", "id", c.ID)
				skipped++
				continue
			}
		}

		if err := db.ImportConversation(&c); err != nil {
			return imported, skipped, err
		}
		imported++
	}
	return imported, skipped, nil
}

// conversationFromPath maps "conversations/<id>.json" to its id. Other entries
// yield "".
func conversationFromPath(name string) string {
	name = strings.TrimLeft(name, "./")
	dir, file := path.Split(name)
	if path.Clean(dir) != archiveDir {
		return ""
	}
	id, ok := strings.CutSuffix(file, ".json")
	if !ok {
		return ""
	}
	return id
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
