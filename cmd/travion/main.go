package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/travion/travion-go/internal/app"
	"github.com/travion/travion-go/pkg/slogx"
	"github.com/travion/travion-go/pkg/travion"
)

func main() {
	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}
	defer application.Close()

	ctx := slogx.WithContext(context.Background(), application.Logger())
	application.Rehydrate(ctx)

	if err := run(ctx, application, os.Args[1:]); err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

func run(ctx context.Context, application *app.Application, args []string) error {
	if len(args) == 0 {
		return usage()
	}

	session := application.Session()

	switch args[0] {
	case "status":
		return printJSON(session.State())

	case "login":
		if len(args) != 3 {
			return fmt.Errorf("usage: travion login <email> <password>")
		}
		if err := session.Login(ctx, args[1], args[2]); err != nil {
			return err
		}
		return printJSON(session.State())

	case "register":
		if len(args) != 4 {
			return fmt.Errorf("usage: travion register <name> <email> <password>")
		}
		err := session.Register(ctx, travion.RegisterRequest{
			Name:     args[1],
			Email:    args[2],
			Password: args[3],
		})
		if err != nil {
			return err
		}
		return printJSON(session.State())

	case "profile":
		if err := session.RefreshProfile(ctx); err != nil {
			return err
		}
		return printJSON(session.State())

	case "refresh":
		tokens, err := application.Auth().RefreshToken(ctx)
		if err != nil {
			return err
		}
		return printJSON(tokens)

	case "logout":
		if err := session.Logout(ctx); err != nil {
			return err
		}
		return printJSON(session.State())

	default:
		return usage()
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func usage() error {
	return fmt.Errorf("usage: travion <status|login|register|profile|refresh|logout>")
}
