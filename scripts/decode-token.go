package main

import (
	"fmt"
	"os"
	"time"

	"github.com/classmark/attendance-server/internal/store"
	"github.com/classmark/attendance-server/internal/token"
)

// Decodes a rotating QR token against a signing secret. Useful when checking
// what a scanner actually captured.
func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: go run scripts/decode-token.go <secret> <token>\n")
		os.Exit(1)
	}

	minter, err := token.NewMinter(os.Args[1], 5*time.Second, time.Minute, store.NewMemoryStore())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	claims, err := minter.Verify(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("sessionId: %s\n", claims.SessionID)
	fmt.Printf("nonce:     %s\n", claims.Nonce)
	fmt.Printf("issuedAt:  %s\n", time.UnixMilli(claims.IssuedAt).Format(time.RFC3339Nano))
	fmt.Printf("expiresAt: %s\n", time.UnixMilli(claims.ExpiresAt).Format(time.RFC3339Nano))
}
