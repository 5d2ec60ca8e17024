package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/park285/Connect4-Screen-bot/internal/screen"
)

func main() {
	baseURL := flag.String("agent", os.Getenv("SCREEN_AGENT_URL"), "screen agent base URL")
	token := flag.String("token", os.Getenv("SCREEN_AGENT_TOKEN"), "bearer token for the agent")
	x := flag.Int("x", -1, "pixel x to sample (default: pointer position)")
	y := flag.Int("y", -1, "pixel y to sample (default: pointer position)")
	local := flag.Bool("local", false, "also sample the local display")
	flag.Parse()

	if *baseURL == "" {
		log.Fatal("SCREEN_AGENT_URL is required")
	}

	headers := func() map[string]string {
		if *token == "" {
			return nil
		}
		return map[string]string{"Authorization": "Bearer " + *token}
	}
	client := screen.NewAgentClient(*baseURL,
		screen.WithHeaderProvider(headers),
		screen.WithTimeout(5*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	info, err := client.Info(ctx)
	if err != nil {
		log.Printf("/info error: %v", err)
	} else {
		log.Printf("/info ok: name=%s version=%s screen=%dx%d", info.Name, info.Version, info.Width, info.Height)
	}

	ptr, err := client.PointerPosition(ctx)
	if err != nil {
		log.Fatalf("/pointer error: %v", err)
	}
	log.Printf("/pointer ok: %s", ptr)

	at := ptr
	if *x >= 0 && *y >= 0 {
		at = screen.Point{X: *x, Y: *y}
	}
	clr, err := client.SampleColor(ctx, at)
	if err != nil {
		log.Fatalf("/pixel error: %v", err)
	}
	fmt.Printf("agent pixel %s = %s\n", at, clr)

	if !*local {
		return
	}
	for i, b := range screen.DisplayBounds() {
		log.Printf("display %d: %v", i, b)
	}
	lclr, err := screen.NewLocalSampler().SampleColor(ctx, at)
	if err != nil {
		log.Printf("local capture error: %v", err)
		return
	}
	fmt.Printf("local pixel %s = %s (agent %s, match=%v)\n", at, lclr, clr, lclr == clr)
}
