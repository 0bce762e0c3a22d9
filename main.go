package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/k64z/steamguard/steamapi"
	"github.com/k64z/steamguard/steamtime"
	"github.com/k64z/steamguard/steamtotp"
	"github.com/k64z/steamguard/steamweb"
)

func main() {
	_ = godotenv.Load()

	sharedSecret := os.Getenv("STEAM_SHARED_SECRET")
	if sharedSecret == "" {
		log.Fatal("STEAM_SHARED_SECRET is not set")
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("main error: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shared := steamweb.NewShared()
	oracle := steamtime.NewOracle(
		steamtime.WithLogger(logger),
		steamtime.WithQuery(shared.GatedTimeQuery(steamapi.QueryTime)),
	)

	code, err := steamtotp.GenerateAuthCode(sharedSecret, oracle.SteamTime(ctx))
	if err != nil {
		log.Fatalf("main error: %v", err)
	}

	fmt.Println(code)
}
