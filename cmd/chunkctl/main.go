// chunkctl uploads, downloads, lists and deletes files through a chunkdrive
// API server.
//
//	chunkctl upload [--chunk-size N] [--type MIME] PATH
//	chunkctl download [--out PATH] FILE_ID
//	chunkctl list
//	chunkctl info FILE_ID
//	chunkctl delete FILE_ID...
//
// The server address and token come from --server/--token or the
// CHUNKDRIVE_URL/CHUNKDRIVE_TOKEN environment variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"chunkdrive/internal/client"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return fmt.Errorf("missing command")
	}
	command, rest := args[0], args[1:]

	flagSet := pflag.NewFlagSet("chunkctl "+command, pflag.ContinueOnError)
	server := flagSet.String("server", envOr("CHUNKDRIVE_URL", "http://localhost:8080"), "API base URL")
	token := flagSet.String("token", os.Getenv("CHUNKDRIVE_TOKEN"), "bearer token")
	timeout := flagSet.Duration("timeout", 10*time.Minute, "overall request timeout")
	chunkSize := flagSet.Int64("chunk-size", client.DefaultChunkSize, "chunk size in bytes (upload)")
	fileType := flagSet.String("type", "", "MIME type (upload; default from extension)")
	outPath := flagSet.StringP("out", "o", "", "output path (download; default stdout)")

	if err := flagSet.Parse(rest); err != nil {
		return err
	}
	positional := flagSet.Args()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c := client.New(client.Options{BaseURL: *server, Token: *token})

	switch command {
	case "upload":
		if len(positional) != 1 {
			return fmt.Errorf("upload takes exactly one PATH")
		}
		return upload(ctx, c, positional[0], *fileType, *chunkSize, stdout)
	case "download":
		if len(positional) != 1 {
			return fmt.Errorf("download takes exactly one FILE_ID")
		}
		return download(ctx, c, positional[0], *outPath)
	case "list":
		list, err := c.List(ctx)
		if err != nil {
			return err
		}
		return printJSON(stdout, list)
	case "info":
		if len(positional) != 1 {
			return fmt.Errorf("info takes exactly one FILE_ID")
		}
		meta, err := c.Metadata(ctx, positional[0])
		if err != nil {
			return err
		}
		return printJSON(stdout, meta)
	case "delete":
		if len(positional) == 0 {
			return fmt.Errorf("delete needs at least one FILE_ID")
		}
		report, err := c.Delete(ctx, positional)
		if err != nil {
			return err
		}
		return printJSON(stdout, report)
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", command)
	}
}

func upload(ctx context.Context, c *client.Client, path, fileType string, chunkSize int64, stdout io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if fileType == "" {
		fileType = mime.TypeByExtension(filepath.Ext(path))
	}
	if fileType == "" {
		fileType = "application/octet-stream"
	}

	fileID, err := c.Upload(ctx, f, filepath.Base(path), fileType, info.Size(), chunkSize, func(res client.ChunkResult) {
		fmt.Fprintf(os.Stderr, "chunk %d/%d stored\n", res.ChunkIndex, res.TotalChunks)
	})
	if err != nil {
		if fileID != "" {
			return fmt.Errorf("upload of %s stopped: %w", fileID, err)
		}
		return err
	}
	_, err = fmt.Fprintln(stdout, fileID)
	return err
}

func download(ctx context.Context, c *client.Client, fileID, outPath string) error {
	var w io.Writer = os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	n, err := c.Download(ctx, fileID, w)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d bytes written\n", n)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `usage: chunkctl <command> [flags] [args]

commands:
  upload PATH          split PATH into chunks and upload it
  download FILE_ID     download a file (--out PATH)
  list                 list your files
  info FILE_ID         show file metadata
  delete FILE_ID...    delete files`)
}
