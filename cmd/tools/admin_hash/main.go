package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/david/opportunity-importer/internal/auth"
)

// Reads the admin secret from the first argument or stdin and prints a
// bcrypt hash for ADMIN_SECRET_HASH.
func main() {
	secret := ""
	if len(os.Args) > 1 {
		secret = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "usage: admin_hash <secret>  (or pipe the secret on stdin)")
			os.Exit(1)
		}
		secret = strings.TrimRight(line, "\r\n")
	}

	hash, err := auth.HashSecret(secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
