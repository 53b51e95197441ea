package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/darasahq/darasa/core/session"
)

var errHelp = errors.New("help provided")

// commandLine recovers users stuck on a stale tenant selection without
// touching the backing store by hand.
type commandLine struct {
	scope session.ScopeStore
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  scope -user USER_KEY      - show the user's persisted tenant selection")
	fmt.Println("  clearscope -user USER_KEY - clear the user's persisted tenant selection")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	scopeCmd := flag.NewFlagSet("scope", flag.ExitOnError)
	scopeUser := scopeCmd.String("user", "", "The user's session key.")

	clearScopeCmd := flag.NewFlagSet("clearscope", flag.ExitOnError)
	clearScopeUser := clearScopeCmd.String("user", "", "The user's session key.")

	switch args[1] {
	case "scope":
		if err := scopeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *scopeUser == "" {
			scopeCmd.Usage()
			return errHelp
		}
		return cli.showScope(*scopeUser)
	case "clearscope":
		if err := clearScopeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *clearScopeUser == "" {
			clearScopeCmd.Usage()
			return errHelp
		}
		return cli.clearScope(*clearScopeUser)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) showScope(userKey string) error {
	id, ok, err := cli.scope.Get(context.Background(), userKey)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("no tenant selection persisted for %q\n", userKey)
		return nil
	}
	fmt.Printf("%s -> company %s\n", userKey, id)
	return nil
}

func (cli *commandLine) clearScope(userKey string) error {
	if err := cli.scope.Clear(context.Background(), userKey); err != nil {
		return err
	}
	fmt.Printf("cleared tenant selection for %q\n", userKey)
	return nil
}
