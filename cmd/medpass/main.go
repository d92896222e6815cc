package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

const usage = `usage: medpass [-env=<path>] <command> [<args>]

Configuration flags:

   -env        Optional dotenv file read before the environment. Defaults to .env.

Sessions are kept in the backend chosen by SESSION_BACKEND (memory, redis or
postgres). With the memory backend a session only lives for one command.

Account commands
   login       Request an OTP for a mobile number and sign in with it
   whoami      Show the stored session
   refresh     Reload the profile from the server
   logout      Remove the stored session

Wallet commands
   status      Check the wallet status code
   overview    Balance, cashback, spending and recent transactions
   activate    Activate a wallet waiting for its OTP
   transactions
               List the wallet history
   add-money   Create an add-money order for an amount
   pay         Pay a merchant service from the wallet
   pin         Manage the transaction PIN: setup, verify or disable
   kyc         Show the KYC status, update the profile or upload documents

Merchant commands
   merchants   Search merchants near a location
   merchant    Show one merchant and its services
   services    Show a merchant's branches and working hours

Other commands
   help        Display help message
`

var envFlag = flag.String("env", ".env", "dotenv file")

func main() {
	flag.Parse()
	log.SetFlags(0)
	args := flag.Args()
	if len(args) == 0 {
		log.Printf("missing command\n\n")
		fmt.Print(usage)
		return
	}
	cmd := args[0]
	args = args[1:]
	if cmd == "help" {
		fmt.Print(usage)
		return
	}
	run, ok := commands[cmd]
	if !ok {
		log.Printf("unknown command: %s\n\n", cmd)
		fmt.Print(usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, *envFlag, os.Stdout, os.Stderr)
	if err != nil {
		log.Fatalf("startup error: %v\n", err)
	}
	err = run(ctx, a, args)
	a.close()
	if err != nil {
		log.Fatalf("%s error: %v\n", cmd, err)
	}
}
