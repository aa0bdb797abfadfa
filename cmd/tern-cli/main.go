package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ternhq/tern"
	"github.com/ternhq/tern/internal/logging"
	"github.com/ternhq/tern/transports/httpclient"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	// Missing .env is fine; environment variables still apply.
	_ = godotenv.Load()

	switch os.Args[1] {
	case "fetch":
		if len(os.Args) < 3 {
			printUsage()
			os.Exit(2)
		}
		if err := runFetch(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "fetch failed: %v\n", err)
			os.Exit(1)
		}
	case "validate-stubs":
		if len(os.Args) < 3 {
			printUsage()
			os.Exit(2)
		}
		if err := runValidateStubs(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "stub manifest invalid: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("stub manifest ok: %s\n", os.Args[2])
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Println("tern-cli usage:")
	fmt.Println("  tern-cli fetch <url>")
	fmt.Println("  tern-cli validate-stubs <manifest.json>")
}

func runFetch(rawURL string) error {
	log, err := logging.New(logging.Config{
		Level:    getEnvOrDefault("TERN_LOG_LEVEL", "info"),
		Console:  getEnvBoolOrDefault("TERN_LOG_CONSOLE", true),
		FilePath: os.Getenv("TERN_LOG_FILE"),
	})
	if err != nil {
		return err
	}

	opts := []tern.Option{
		tern.WithLogger(log),
		tern.WithTransport(httpclient.New(httpclient.Config{
			Timeout:    time.Duration(getEnvIntOrDefault("TERN_HTTP_TIMEOUT_MS", 30000)) * time.Millisecond,
			ChunkBytes: getEnvIntOrDefault("TERN_CHUNK_BYTES", 32*1024),
		})),
	}
	if path := os.Getenv("TERN_STUB_MANIFEST"); path != "" {
		opts = append(opts,
			tern.WithStubManifestFile(path),
			tern.WithStubBehavior(tern.StubBehavior{Mode: tern.StubImmediate}),
		)
	}
	provider, err := tern.New(opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	call := provider.RequestWithProgress(ctx, tern.StaticTarget{URLBase: rawURL})
	go func() {
		<-ctx.Done()
		call.Cancel()
	}()

	for ev := range call.Events() {
		switch {
		case ev.Terminal == tern.TerminalCompleted:
			fmt.Fprintf(os.Stderr, "done: status=%d bytes=%d\n", ev.Response.StatusCode, len(ev.Response.Body))
			os.Stdout.Write(ev.Response.Body)
			return nil
		case ev.Terminal == tern.TerminalFailed:
			return ev.Err
		case ev.Terminal == tern.TerminalInterrupted:
			return fmt.Errorf("interrupted")
		case ev.Progress != nil:
			fmt.Fprintf(os.Stderr, "progress: %d/%d (%.0f%%)\n", ev.Progress.BytesTransferred, ev.Progress.BytesExpected, ev.Progress.Fraction()*100)
		}
	}
	return fmt.Errorf("stream ended without terminal event")
}

func runValidateStubs(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return tern.ValidateStubManifest(data)
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBoolOrDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
