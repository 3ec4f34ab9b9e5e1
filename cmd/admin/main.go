package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"dreamdecor.ai/internal/persistence/archive"
	"dreamdecor.ai/internal/persistence/savestore"
	"dreamdecor.ai/internal/persistence/snapshot"
)

func main() {
	// DB_DIALECT and friends may live in .env next to the server.
	_ = godotenv.Load()

	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "show":
			showCmd(os.Args[2:])
			return
		case "delete":
			deleteCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "remote":
			remoteCmd(os.Args[2:])
			return
		case "list":
			listCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

type storeFlags struct {
	dataDir *string
	kind    *string
}

func addStoreFlags(fs *flag.FlagSet) storeFlags {
	return storeFlags{
		dataDir: fs.String("data", "./data", "runtime data directory"),
		kind:    fs.String("store", "sql", "save store: sql (DB_DIALECT) or dir"),
	}
}

func (f storeFlags) open(ctx context.Context) savestore.Store {
	var (
		s   savestore.Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(*f.kind)) {
	case "", "sql":
		s, err = savestore.OpenFromEnv(ctx, filepath.Join(*f.dataDir, "saves", "saves.sqlite"))
	case "dir":
		s, err = savestore.OpenDir(filepath.Join(*f.dataDir, "saves"))
	default:
		err = fmt.Errorf("unknown -store %q", *f.kind)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "open store:", err)
		os.Exit(1)
	}
	return s
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	sf := addStoreFlags(fs)
	_ = fs.Parse(args)

	ctx := context.Background()
	store := sf.open(ctx)
	defer store.Close()

	headers, err := store.List(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, h := range headers {
		fmt.Printf("%s\tv%d\t%s\n", h.Identity, h.Version, h.SavedAt.Format(time.RFC3339))
	}
}

func showCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	sf := addStoreFlags(fs)
	identity := fs.String("identity", "", "player identity")
	_ = fs.Parse(args)

	ctx := context.Background()
	store := sf.open(ctx)
	defer store.Close()

	snap := mustLoad(ctx, store, *identity)
	printJSON(snap)
}

func deleteCmd(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	sf := addStoreFlags(fs)
	identity := fs.String("identity", "", "player identity")
	keep := fs.Bool("archive", true, "copy the save to <data>/archives before deleting")
	_ = fs.Parse(args)

	if strings.TrimSpace(*identity) == "" {
		fmt.Fprintln(os.Stderr, "missing -identity")
		os.Exit(2)
	}
	ctx := context.Background()
	store := sf.open(ctx)
	defer store.Close()

	if *keep {
		snap := mustLoad(ctx, store, *identity)
		path, err := archive.ArchiveSave(*sf.dataDir, snap, "admin delete", time.Now())
		if err != nil {
			fmt.Fprintln(os.Stderr, "archive:", err)
			os.Exit(1)
		}
		fmt.Printf("archived %s\n", path)
	}
	if err := store.Delete(ctx, *identity); err != nil {
		fmt.Fprintln(os.Stderr, "delete:", err)
		os.Exit(1)
	}
	fmt.Printf("deleted %s\n", *identity)
}

// exportCmd writes a save out as a .snap.zst file, or as JSON when -out
// ends in .json.
func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	sf := addStoreFlags(fs)
	identity := fs.String("identity", "", "player identity")
	outPath := fs.String("out", "", "output path (default: <key>.snap.zst)")
	_ = fs.Parse(args)

	ctx := context.Background()
	store := sf.open(ctx)
	defer store.Close()

	snap := mustLoad(ctx, store, *identity)
	out := strings.TrimSpace(*outPath)
	if out == "" {
		out = savestore.Key(*identity) + savestore.FileExt
	}
	if err := writeSnapshotFile(out, snap); err != nil {
		fmt.Fprintln(os.Stderr, "export:", err)
		os.Exit(1)
	}
	fmt.Printf("exported %s -> %s\n", *identity, out)
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	sf := addStoreFlags(fs)
	inPath := fs.String("in", "", "input .snap.zst or .json file")
	identity := fs.String("identity", "", "store under this identity (default: the file's header identity)")
	_ = fs.Parse(args)

	snap, err := readSnapshotFile(*inPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	id := strings.TrimSpace(*identity)
	if id == "" {
		id = snap.Header.Identity
	}
	if id == "" {
		fmt.Fprintln(os.Stderr, "file has no identity; pass -identity")
		os.Exit(2)
	}

	ctx := context.Background()
	store := sf.open(ctx)
	defer store.Close()

	if err := store.Save(ctx, id, snap); err != nil {
		fmt.Fprintln(os.Stderr, "import:", err)
		os.Exit(1)
	}
	fmt.Printf("imported %s as %s\n", *inPath, id)
}

// inspectCmd prints a snapshot file without touching any store.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	headerOnly := fs.Bool("header", false, "print only the header")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin inspect [-header] FILE...")
		os.Exit(2)
	}
	for _, path := range fs.Args() {
		if *headerOnly && strings.HasSuffix(path, ".zst") {
			h, err := readHeader(path)
			if err != nil {
				fmt.Fprintln(os.Stderr, path+":", err)
				os.Exit(1)
			}
			printJSON(h)
			continue
		}
		snap, err := readSnapshotFile(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, path+":", err)
			os.Exit(1)
		}
		if *headerOnly {
			printJSON(snap.Header)
			continue
		}
		printJSON(snap)
	}
}

func mustLoad(ctx context.Context, store savestore.Store, identity string) snapshot.SaveV1 {
	if strings.TrimSpace(identity) == "" {
		fmt.Fprintln(os.Stderr, "missing -identity")
		os.Exit(2)
	}
	snap, ok, err := store.Load(ctx, identity)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "no save for", identity)
		os.Exit(1)
	}
	return snap
}

func writeSnapshotFile(path string, snap snapshot.SaveV1) error {
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		b, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(path, append(b, '\n'), 0o644)
	}
	return snapshot.WriteFile(path, snap)
}

func readSnapshotFile(path string) (snapshot.SaveV1, error) {
	if strings.TrimSpace(path) == "" {
		return snapshot.SaveV1{}, errors.New("missing file path")
	}
	if !strings.HasSuffix(strings.ToLower(path), ".json") {
		return snapshot.ReadFile(path)
	}
	var snap snapshot.SaveV1
	b, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, err
	}
	if snap.Header.Version != snapshot.Version {
		return snap, fmt.Errorf("unsupported save version %d", snap.Header.Version)
	}
	return snap, nil
}

func readHeader(path string) (snapshot.Header, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return snapshot.Header{}, err
	}
	return snapshot.ReadHeader(b)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
